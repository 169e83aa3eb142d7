package rfb

import (
	"encoding/binary"
	"fmt"
	"unsafe"
)

// PixelFormat describes how pixels are packed on the wire and, by
// extension, how the client's framebuffer must convert them. The wire
// representation is 16 bytes: bpp, depth, big-endian flag, true-color flag,
// red/green/blue max (u16 each), red/green/blue shift (u8 each), 3 padding
// bytes.
type PixelFormat struct {
	BitsPerPixel int
	Depth        int
	BigEndian    bool
	TrueColor    bool
	RedMax       int
	GreenMax     int
	BlueMax      int
	RedShift     int
	GreenShift   int
	BlueShift    int
}

const WireSize = 16

// hostIsBigEndian reports the host's native byte order, used to derive the
// "remote swap" flag: when the wire format's byte order disagrees with the
// host's, multi-byte pixels must be byte-reversed on ingest.
var hostIsBigEndian = func() bool {
	var x uint16 = 1
	b := (*[2]byte)(unsafe.Pointer(&x))
	return b[0] == 0
}()

// RemoteSwap reports whether multi-byte pixels arriving in this format must
// be byte-swapped before use by a host-native consumer.
func (f PixelFormat) RemoteSwap() bool {
	return f.BitsPerPixel > 8 && f.BigEndian != hostIsBigEndian
}

// BytesPerPixel is BitsPerPixel/8, the on-wire pixel stride for Raw/RRE/etc.
func (f PixelFormat) BytesPerPixel() int {
	return f.BitsPerPixel / 8
}

// Equal compares two formats field by field (used by the round-trip test
// and by WMVi/PixelFormatChange handling to detect an actual change).
func (f PixelFormat) Equal(o PixelFormat) bool {
	return f == o
}

// Encode writes the 16-byte wire representation of f to buf, which must be
// at least WireSize bytes.
func (f PixelFormat) Encode(buf []byte) {
	_ = buf[15]
	buf[0] = byte(f.BitsPerPixel)
	buf[1] = byte(f.Depth)
	buf[2] = boolByte(f.BigEndian)
	buf[3] = boolByte(f.TrueColor)
	binary.BigEndian.PutUint16(buf[4:6], uint16(f.RedMax))
	binary.BigEndian.PutUint16(buf[6:8], uint16(f.GreenMax))
	binary.BigEndian.PutUint16(buf[8:10], uint16(f.BlueMax))
	buf[10] = byte(f.RedShift)
	buf[11] = byte(f.GreenShift)
	buf[12] = byte(f.BlueShift)
	buf[13], buf[14], buf[15] = 0, 0, 0
}

// DecodePixelFormat parses the 16-byte wire representation.
func DecodePixelFormat(buf []byte) (PixelFormat, error) {
	if len(buf) < WireSize {
		return PixelFormat{}, fmt.Errorf("pixel format: short buffer (%d bytes)", len(buf))
	}
	f := PixelFormat{
		BitsPerPixel: int(buf[0]),
		Depth:        int(buf[1]),
		BigEndian:    buf[2] != 0,
		TrueColor:    buf[3] != 0,
		RedMax:       int(binary.BigEndian.Uint16(buf[4:6])),
		GreenMax:     int(binary.BigEndian.Uint16(buf[6:8])),
		BlueMax:      int(binary.BigEndian.Uint16(buf[8:10])),
		RedShift:     int(buf[10]),
		GreenShift:   int(buf[11]),
		BlueShift:    int(buf[12]),
	}
	switch f.BitsPerPixel {
	case 8, 16, 32:
	default:
		return PixelFormat{}, fmt.Errorf("pixel format: unsupported bits_per_pixel %d", f.BitsPerPixel)
	}
	return f, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// DefaultPixelFormat is a commonly-used 32bpp true-color little-endian
// format, suitable as a client's advertised preference in SetPixelFormat.
var DefaultPixelFormat = PixelFormat{
	BitsPerPixel: 32,
	Depth:        24,
	BigEndian:    false,
	TrueColor:    true,
	RedMax:       255,
	GreenMax:     255,
	BlueMax:      255,
	RedShift:     16,
	GreenShift:   8,
	BlueShift:    0,
}
