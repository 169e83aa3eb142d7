// Package decode implements the FramebufferUpdate rectangle decoders: Raw,
// CopyRect, RRE, Hextile, ZRLE, Tight, and the pseudo-encodings carried in
// the same rectangle stream. Every decoder reads directly from the
// session's buffered connection and writes through the rfb.Framebuffer
// collaborator interface, the same "decode straight into caller-owned
// storage" shape the teacher uses for its own frame pipeline
// (internal/remote/desktop/encode.go), just running in the opposite
// direction.
package decode

import (
	"io"

	"github.com/breeze-rmm/vncclient/internal/rfberr"
)

// ReadCint reads Tight's compact variable-length unsigned integer: up to
// three bytes, the first two carrying 7 data bits each with the high bit
// as a continuation flag, the third carrying a full 8 data bits with no
// continuation bit of its own.
func ReadCint(r io.Reader) (int, error) {
	var b [1]byte
	value := 0
	for i := 0; i < 3; i++ {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, rfberr.Wrap(rfberr.KindNetworkIO, err, "cint: read byte %d", i)
		}
		if i < 2 {
			value |= int(b[0]&0x7f) << (7 * i)
			if b[0]&0x80 == 0 {
				return value, nil
			}
		} else {
			value |= int(b[0]) << 14
		}
	}
	return value, nil
}

// WriteCint is the encoder counterpart, used only by tests exercising the
// round-trip property; the client never sends a cint on the wire itself.
func WriteCint(w io.Writer, n int) error {
	if n < 0 {
		return rfberr.New(rfberr.KindProtocolViolation, "cint: negative value %d", n)
	}
	var buf []byte
	b0 := byte(n & 0x7f)
	n >>= 7
	if n == 0 {
		buf = []byte{b0}
	} else {
		b0 |= 0x80
		b1 := byte(n & 0x7f)
		n >>= 7
		if n == 0 {
			buf = []byte{b0, b1}
		} else {
			b1 |= 0x80
			b2 := byte(n & 0xff)
			buf = []byte{b0, b1, b2}
		}
	}
	_, err := w.Write(buf)
	return err
}

// ReadRunLength decodes ZRLE's run-length convention: a sum of 0xFF bytes
// plus a trailing byte below 0xFF, the total plus one being the run
// length.
func ReadRunLength(r io.Reader) (int, error) {
	var b [1]byte
	run := 0
	for {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, rfberr.Wrap(rfberr.KindNetworkIO, err, "zrle: read run-length byte")
		}
		run += int(b[0])
		if b[0] != 0xff {
			return run + 1, nil
		}
	}
}

// WriteRunLength is the encoder counterpart used by the run-length
// round-trip test.
func WriteRunLength(w io.Writer, run int) error {
	if run < 1 {
		return rfberr.New(rfberr.KindProtocolViolation, "zrle: run length must be >= 1, got %d", run)
	}
	remaining := run - 1
	for remaining >= 0xff {
		if _, err := w.Write([]byte{0xff}); err != nil {
			return err
		}
		remaining -= 0xff
	}
	_, err := w.Write([]byte{byte(remaining)})
	return err
}
