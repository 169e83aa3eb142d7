package framebuffer

import (
	"testing"

	"github.com/breeze-rmm/vncclient/internal/rfb"
)

func TestPerfectFormatMatchAgainstDefaultFormat(t *testing.T) {
	m := NewMemory()
	if !m.PerfectFormatMatch(rfb.DefaultPixelFormat) {
		t.Fatal("expected PerfectFormatMatch against DefaultPixelFormat")
	}
	other := rfb.DefaultPixelFormat
	other.BigEndian = true
	if m.PerfectFormatMatch(other) {
		t.Fatal("expected mismatch for a differently-endianed format")
	}
}

func TestFillAndSetPixelAtRoundTrip(t *testing.T) {
	m := NewMemory()
	m.Resize(4, 4)
	m.Fill(0x00112233, 0, 0, 4, 4)
	m.SetPixelAt(0x00AABBCC, 2, 1)

	stride := m.RowStride()
	buf := m.Bytes()
	if got := readNative(buf, stride, 0, 0); got != 0x00112233 {
		t.Fatalf("corner pixel = %#x, want 0x112233", got)
	}
	if got := readNative(buf, stride, 2, 1); got != 0x00AABBCC {
		t.Fatalf("overwritten pixel = %#x, want 0xAABBCC", got)
	}
}

func TestCopyRectMovesPixels(t *testing.T) {
	m := NewMemory()
	m.Resize(4, 4)
	m.SetPixelAt(0x00FF00FF, 0, 0)
	m.CopyRect(0, 0, 2, 2, 1, 1)

	stride := m.RowStride()
	if got := readNative(m.Bytes(), stride, 2, 2); got != 0x00FF00FF {
		t.Fatalf("copied pixel = %#x, want 0xFF00FF", got)
	}
}

func TestBlitRescalesNarrowerChannels(t *testing.T) {
	m := NewMemory()
	m.Resize(1, 1)

	srcFormat := rfb.PixelFormat{
		BitsPerPixel: 16, Depth: 16, TrueColor: true,
		RedMax: 31, GreenMax: 63, BlueMax: 31,
		RedShift: 11, GreenShift: 5, BlueShift: 0,
	}
	// Full-intensity 5/6/5 pixel: all channel bits set.
	wire := uint16(0xFFFF)
	src := []byte{byte(wire), byte(wire >> 8)}
	m.Blit(src, srcFormat, 2, 0, 0, 1, 1)

	got := readNative(m.Bytes(), m.RowStride(), 0, 0)
	if got != 0x00FFFFFF {
		t.Fatalf("rescaled pixel = %#x, want 0xFFFFFF (full white)", got)
	}
}

func readNative(buf []byte, stride, x, y int) uint32 {
	off := y*stride + x*4
	return uint32(buf[off]) | uint32(buf[off+1])<<8 | uint32(buf[off+2])<<16 | uint32(buf[off+3])<<24
}
