// Package framebuffer provides a minimal in-memory rfb.Framebuffer
// backed by a flat byte slice, for cmd/vncprobe and anything else that
// wants to exercise a session without wiring up real screen rendering
// (explicitly out of scope for this client). It always negotiates
// rfb.DefaultPixelFormat, so every decoder's perfect-match fast path and
// every already-native Fill/SetPixelAt/CopyRect call applies directly to
// its backing buffer with no per-pixel conversion.
package framebuffer

import (
	"encoding/binary"
	"sync"

	"github.com/breeze-rmm/vncclient/internal/rfb"
)

// Memory is a lock-guarded pixel buffer storing rfb.DefaultPixelFormat
// pixels as 4 little-endian bytes each, row-major, no row padding.
type Memory struct {
	mu      sync.Mutex
	w, h    int
	format  rfb.PixelFormat
	pix     []byte
	palette [256][3]uint16
}

// NewMemory returns an empty Memory framebuffer; call Resize before use
// (the session does this automatically from the handshake's initial
// geometry, and again on every DesktopResize).
func NewMemory() *Memory {
	return &Memory{format: rfb.DefaultPixelFormat}
}

func (m *Memory) Width() int  { m.mu.Lock(); defer m.mu.Unlock(); return m.w }
func (m *Memory) Height() int { m.mu.Lock(); defer m.mu.Unlock(); return m.h }

// Resize reallocates the backing buffer, discarding prior contents (the
// server always follows a DesktopResize with a full, non-incremental
// repaint, so there's nothing worth preserving across a resize).
func (m *Memory) Resize(width, height int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.w, m.h = width, height
	m.pix = make([]byte, width*height*4)
}

func (m *Memory) RemoteFormat() rfb.PixelFormat { return rfb.DefaultPixelFormat }

// SetRemoteFormat is a no-op: Memory only ever stores DefaultPixelFormat
// pixels, converting on the way in via Blit when the server's actual
// wire format differs (which it shouldn't, since the session always
// requests RemoteFormat()).
func (m *Memory) SetRemoteFormat(rfb.PixelFormat) {}

func (m *Memory) PerfectFormatMatch(f rfb.PixelFormat) bool {
	return f.Equal(rfb.DefaultPixelFormat)
}

func (m *Memory) RowStride() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.w * 4
}

func (m *Memory) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pix
}

// Blit converts src (srcStride bytes per row, encoded in srcFormat) into
// the native 4-byte-per-pixel buffer at (x, y, w, h), one pixel at a time.
// Used whenever PerfectFormatMatch is false — in practice only if a
// server ignores the requested PixelFormat, since Memory always asks for
// its own native format.
func (m *Memory) Blit(src []byte, srcFormat rfb.PixelFormat, srcStride, x, y, w, h int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bpp := srcFormat.BytesPerPixel()
	for row := 0; row < h; row++ {
		srcRow := src[row*srcStride:]
		for col := 0; col < w; col++ {
			wire := readWirePixel(srcRow[col*bpp:], srcFormat)
			native := rescaleToNative(wire, srcFormat)
			m.setPixelLocked(native, x+col, y+row)
		}
	}
}

func (m *Memory) Fill(pixel uint32, x, y, w, h int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			m.setPixelLocked(pixel, x+col, y+row)
		}
	}
}

func (m *Memory) CopyRect(srcX, srcY, dstX, dstY, w, h int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Copy via a scratch row so overlapping source/dest rectangles (e.g.
	// scrolling a window down by a few pixels) read entirely from the old
	// contents before any destination row is overwritten.
	rowBytes := w * 4
	scratch := make([]byte, h*rowBytes)
	for row := 0; row < h; row++ {
		off := ((srcY+row)*m.w + srcX) * 4
		copy(scratch[row*rowBytes:(row+1)*rowBytes], m.pix[off:off+rowBytes])
	}
	for row := 0; row < h; row++ {
		off := ((dstY+row)*m.w + dstX) * 4
		copy(m.pix[off:off+rowBytes], scratch[row*rowBytes:(row+1)*rowBytes])
	}
}

func (m *Memory) SetPixelAt(pixel uint32, x, y int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setPixelLocked(pixel, x, y)
}

func (m *Memory) setPixelLocked(pixel uint32, x, y int) {
	off := (y*m.w + x) * 4
	binary.LittleEndian.PutUint32(m.pix[off:off+4], pixel)
}

func (m *Memory) SetColorMapEntry(index int, r, g, b uint16) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 0 || index >= len(m.palette) {
		return
	}
	m.palette[index] = [3]uint16{r, g, b}
}

func readWirePixel(buf []byte, f rfb.PixelFormat) uint32 {
	switch f.BytesPerPixel() {
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

// rescaleToNative pulls wire's three channels out per srcFormat's
// shift/max layout, rescales each to the 0-255 range DefaultPixelFormat
// uses, and repacks at DefaultPixelFormat's 16/8/0 shifts.
func rescaleToNative(wire uint32, f rfb.PixelFormat) uint32 {
	r := rescaleChannel(int((wire>>uint(f.RedShift))&uint32(f.RedMax)), f.RedMax)
	g := rescaleChannel(int((wire>>uint(f.GreenShift))&uint32(f.GreenMax)), f.GreenMax)
	b := rescaleChannel(int((wire>>uint(f.BlueShift))&uint32(f.BlueMax)), f.BlueMax)
	return uint32(r)<<16 | uint32(g)<<8 | uint32(b)
}

func rescaleChannel(v, max int) int {
	if max == 0 || max == 255 {
		return v
	}
	return v * 255 / max
}

var _ rfb.Framebuffer = (*Memory)(nil)
