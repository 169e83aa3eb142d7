// Package zlibstream provides the independent zlib decompression contexts
// that ZRLE and Tight rectangles decode through. The RFB wire format
// multiplexes several logical zlib streams over one TCP connection: ZRLE
// uses a single persistent stream for the whole session, and Tight uses up
// to four, selected per-rectangle by a 2-bit index in the compression
// control byte. Each stream's dictionary carries forward from the
// rectangle that last used it, so a decoder must keep the contexts alive
// for the session's lifetime rather than opening a fresh zlib.Reader per
// rectangle.
//
// Go's compress/zlib has no equivalent to the source's raw inflate with
// manual Z_SYNC_FLUSH control; it only exposes whole-stream Reset. To get
// the same "keep decoding where the last rectangle left off" behavior, each
// Pool slot feeds a growable bytes.Buffer: new compressed bytes are
// appended, the zlib.Reader itself is created lazily on first use per slot
// (reading from that same buffer) and never reset, since a fresh
// zlib.Reader would require a brand new zlib header, which the server
// never re-sends mid-session.
package zlibstream

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
)

// NumTightStreams is the number of independent Tight zlib contexts (0-3,
// selected by the low two bits of the compression control byte).
const NumTightStreams = 4

// Context is one independent zlib decompression stream. It is not safe for
// concurrent use; the session serializes all rectangle decoding onto a
// single goroutine, so no locking is needed here.
type Context struct {
	buf    bytes.Buffer
	reader io.ReadCloser
}

// Decompress feeds compressed into the context's zlib stream and returns
// exactly wantLen bytes of decompressed output. It blocks (in the sense of
// looping) until either wantLen bytes have been produced or the stream
// reports an error; RFB guarantees the server never sends more compressed
// bytes than are needed to produce the rectangle's declared pixel count,
// so compressed is exactly one rectangle's compressed payload.
func (c *Context) Decompress(compressed []byte, wantLen int) ([]byte, error) {
	c.buf.Write(compressed)

	if c.reader == nil {
		r, err := zlib.NewReader(&c.buf)
		if err != nil {
			return nil, fmt.Errorf("zlib: open stream: %w", err)
		}
		c.reader = r
	}

	out := make([]byte, wantLen)
	if _, err := io.ReadFull(c.reader, out); err != nil {
		return nil, fmt.Errorf("zlib: read %d bytes: %w", wantLen, err)
	}
	return out, nil
}

// Reset discards the context's state, for use when a server indicates (via
// a reset flag, as Tight's control byte does per stream) that the next
// payload starts a fresh zlib stream.
func (c *Context) Reset() {
	c.buf.Reset()
	if c.reader != nil {
		c.reader.Close()
		c.reader = nil
	}
}

// Pool holds the fixed set of independent zlib contexts a connection needs:
// one for ZRLE, four for Tight.
type Pool struct {
	ZRLE  Context
	Tight [NumTightStreams]Context
}

// ResetAll discards every context's state. Used when a SetEncodings message
// is resent mid-session in a way that invalidates prior dictionaries (the
// client never does this on its own initiative, but it is provided for a
// caller that re-establishes a ZRLE/Tight stream after a pixel format
// change forces the encoder to restart its compressors).
func (p *Pool) ResetAll() {
	p.ZRLE.Reset()
	for i := range p.Tight {
		p.Tight[i].Reset()
	}
}
