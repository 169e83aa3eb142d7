package decode

import (
	"encoding/binary"
	"io"

	"github.com/breeze-rmm/vncclient/internal/rfb"
	"github.com/breeze-rmm/vncclient/internal/rfberr"
)

// ReadPixel reads one pixel at f's full wire width (1, 2, or 4 bytes) and
// assembles it into a uint32 per f's declared byte order.
func ReadPixel(r io.Reader, f rfb.PixelFormat) (uint32, error) {
	buf := make([]byte, f.BytesPerPixel())
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, rfberr.Wrap(rfberr.KindNetworkIO, err, "decode: read pixel")
	}
	return decodeFixedWidth(buf, f), nil
}

// WritePixel is the encoder counterpart, used by this package's own tests
// to exercise round-trip properties; the client never emits a raw pixel on
// the wire itself (SetPixelFormat negotiates the format, it doesn't carry
// pixel data).
func WritePixel(w io.Writer, f rfb.PixelFormat, pixel uint32) error {
	buf := make([]byte, f.BytesPerPixel())
	encodeFixedWidth(buf, f, pixel)
	_, err := w.Write(buf)
	return err
}

func decodeFixedWidth(buf []byte, f rfb.PixelFormat) uint32 {
	switch len(buf) {
	case 1:
		return uint32(buf[0])
	case 2:
		if f.BigEndian {
			return uint32(binary.BigEndian.Uint16(buf))
		}
		return uint32(binary.LittleEndian.Uint16(buf))
	default:
		if f.BigEndian {
			return binary.BigEndian.Uint32(buf)
		}
		return binary.LittleEndian.Uint32(buf)
	}
}

func encodeFixedWidth(buf []byte, f rfb.PixelFormat, pixel uint32) {
	switch len(buf) {
	case 1:
		buf[0] = byte(pixel)
	case 2:
		if f.BigEndian {
			binary.BigEndian.PutUint16(buf, uint16(pixel))
		} else {
			binary.LittleEndian.PutUint16(buf, uint16(pixel))
		}
	default:
		if f.BigEndian {
			binary.BigEndian.PutUint32(buf, pixel)
		} else {
			binary.LittleEndian.PutUint32(buf, pixel)
		}
	}
}

// cpixelApplies reports whether f qualifies for ZRLE's compact 3-byte
// CPIXEL form: 32bpp true-color where one byte of the 4-byte word is
// provably always zero, either because every channel's shift places it in
// the upper 24 bits (the "MSB case") or because every channel's max value
// shifted into position never reaches the top byte (the "LSB case").
func cpixelApplies(f rfb.PixelFormat) bool {
	if f.BitsPerPixel != 32 || !f.TrueColor {
		return false
	}
	return cpixelMSB(f) || cpixelLSB(f)
}

func cpixelMSB(f rfb.PixelFormat) bool {
	return f.RedShift > 7 && f.GreenShift > 7 && f.BlueShift > 7
}

func cpixelLSB(f rfb.PixelFormat) bool {
	return f.RedMax<<uint(f.RedShift) < 1<<24 &&
		f.GreenMax<<uint(f.GreenShift) < 1<<24 &&
		f.BlueMax<<uint(f.BlueShift) < 1<<24
}

// cpixelSkipsLeadingByte reports which of the 4 bytes a 3-byte CPIXEL
// omits. The always-zero byte is the most significant one in the LSB case
// and the least significant one in the MSB case, so it comes first on the
// wire for LSB-case big-endian and MSB-case little-endian formats, and last
// for the other two combinations.
func cpixelSkipsLeadingByte(f rfb.PixelFormat) bool {
	if cpixelLSB(f) {
		return f.BigEndian
	}
	return !f.BigEndian
}

// DecodeCPixel reads one ZRLE CPIXEL: 3 bytes when f qualifies for the
// compact form (the always-zero byte is skipped on the wire and restored
// as zero here), else the full bpp-width pixel.
func DecodeCPixel(r io.Reader, f rfb.PixelFormat) (uint32, error) {
	if !cpixelApplies(f) {
		return ReadPixel(r, f)
	}
	var three [3]byte
	if _, err := io.ReadFull(r, three[:]); err != nil {
		return 0, rfberr.Wrap(rfberr.KindNetworkIO, err, "decode: read CPIXEL")
	}

	var buf [4]byte
	if cpixelSkipsLeadingByte(f) {
		// The omitted byte is the first byte of the word; shift the three
		// received bytes one position to make room for it.
		copy(buf[1:], three[:])
	} else {
		copy(buf[0:3], three[:])
	}
	return decodeFixedWidth(buf[:], f), nil
}

// EncodeCPixel is the encoder counterpart used by the CPIXEL-invariance
// test.
func EncodeCPixel(w io.Writer, f rfb.PixelFormat, pixel uint32) error {
	if !cpixelApplies(f) {
		return WritePixel(w, f, pixel)
	}
	var buf [4]byte
	encodeFixedWidth(buf[:], f, pixel)
	if cpixelSkipsLeadingByte(f) {
		_, err := w.Write(buf[1:4])
		return err
	}
	_, err := w.Write(buf[0:3])
	return err
}

// DecodeTPixel reads one Tight TPIXEL: when f.Depth is 24, always 3 raw
// channel bytes (red, green, blue, in that order, with the first and third
// exchanged when f's byte order differs from the host's) reassembled into a
// 32-bit pixel using f's advertised shifts rather than f's native byte
// width; any other depth reads the full bpp-width pixel unchanged.
func DecodeTPixel(r io.Reader, f rfb.PixelFormat) (uint32, error) {
	if f.Depth != 24 {
		return ReadPixel(r, f)
	}
	var rgb [3]byte
	if _, err := io.ReadFull(r, rgb[:]); err != nil {
		return 0, rfberr.Wrap(rfberr.KindNetworkIO, err, "decode: read TPIXEL")
	}
	red, green, blue := uint32(rgb[0]), uint32(rgb[1]), uint32(rgb[2])
	if f.RemoteSwap() {
		red, blue = blue, red
	}
	return (red << uint(f.RedShift)) | (green << uint(f.GreenShift)) | (blue << uint(f.BlueShift)), nil
}

// EncodeTPixel is the encoder counterpart used by this package's TPIXEL
// test.
func EncodeTPixel(w io.Writer, f rfb.PixelFormat, pixel uint32) error {
	if f.Depth != 24 {
		return WritePixel(w, f, pixel)
	}
	red := byte((pixel >> uint(f.RedShift)) & uint32(f.RedMax))
	green := byte((pixel >> uint(f.GreenShift)) & uint32(f.GreenMax))
	blue := byte((pixel >> uint(f.BlueShift)) & uint32(f.BlueMax))
	if f.RemoteSwap() {
		red, blue = blue, red
	}
	_, err := w.Write([]byte{red, green, blue})
	return err
}
