package decode

import (
	"bytes"
	"testing"

	"github.com/breeze-rmm/vncclient/internal/rfb"
)

// stubFramebuffer is a minimal in-memory rfb.Framebuffer for exercising
// decoders without any real display backend.
type stubFramebuffer struct {
	width, height int
	format        rfb.PixelFormat
	pixels        map[[2]int]uint32
	backing       []byte
}

func newStubFramebuffer(w, h int, f rfb.PixelFormat) *stubFramebuffer {
	return &stubFramebuffer{width: w, height: h, format: f, pixels: map[[2]int]uint32{}}
}

func (s *stubFramebuffer) Width() int  { return s.width }
func (s *stubFramebuffer) Height() int { return s.height }
func (s *stubFramebuffer) Resize(w, h int) {
	s.width, s.height = w, h
}
func (s *stubFramebuffer) RemoteFormat() rfb.PixelFormat     { return s.format }
func (s *stubFramebuffer) SetRemoteFormat(f rfb.PixelFormat) { s.format = f }
func (s *stubFramebuffer) PerfectFormatMatch(f rfb.PixelFormat) bool {
	return s.format.Equal(f)
}
func (s *stubFramebuffer) RowStride() int { return s.width * s.format.BytesPerPixel() }
func (s *stubFramebuffer) Bytes() []byte {
	if n := s.RowStride() * s.height; len(s.backing) != n {
		s.backing = make([]byte, n)
	}
	return s.backing
}
func (s *stubFramebuffer) Blit(src []byte, srcFormat rfb.PixelFormat, srcStride, x, y, w, h int) {
	bpp := srcFormat.BytesPerPixel()
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			off := row*srcStride + col*bpp
			p, _ := ReadPixel(bytes.NewReader(src[off:off+bpp]), srcFormat)
			s.pixels[[2]int{x + col, y + row}] = p
		}
	}
}
func (s *stubFramebuffer) Fill(pixel uint32, x, y, w, h int) {
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			s.pixels[[2]int{x + col, y + row}] = pixel
		}
	}
}
func (s *stubFramebuffer) CopyRect(srcX, srcY, dstX, dstY, w, h int) {
	vals := make([]uint32, w*h)
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			vals[row*w+col] = s.pixels[[2]int{srcX + col, srcY + row}]
		}
	}
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			s.pixels[[2]int{dstX + col, dstY + row}] = vals[row*w+col]
		}
	}
}
func (s *stubFramebuffer) SetPixelAt(pixel uint32, x, y int) {
	s.pixels[[2]int{x, y}] = pixel
}
func (s *stubFramebuffer) SetColorMapEntry(index int, r, g, b uint16) {}

var _ rfb.Framebuffer = (*stubFramebuffer)(nil)

func TestDecodeRawPerfectMatchFastPath(t *testing.T) {
	f := rfb.DefaultPixelFormat
	fb := newStubFramebuffer(4, 4, f)
	ctx := &Context{FB: fb, Format: f}

	var buf bytes.Buffer
	if err := WritePixel(&buf, f, 0x112233); err != nil {
		t.Fatal(err)
	}

	rect := Rect{X: 0, Y: 0, W: 1, H: 1, Encoding: rfb.EncodingRaw}
	if err := decodeRaw(&buf, rect, ctx); err != nil {
		t.Fatalf("decodeRaw: %v", err)
	}
	if got, _ := ReadPixel(bytes.NewReader(fb.Bytes()[0:4]), f); got != 0x112233 {
		t.Fatalf("pixel = %#x, want 0x112233", got)
	}
}

func TestDecodeCopyRectMovesPixels(t *testing.T) {
	f := rfb.DefaultPixelFormat
	fb := newStubFramebuffer(8, 8, f)
	fb.pixels[[2]int{0, 0}] = 0xAABBCC
	ctx := &Context{FB: fb, Format: f}

	var hdr bytes.Buffer
	hdr.Write([]byte{0, 0, 0, 0}) // src (0,0)
	rect := Rect{X: 2, Y: 2, W: 1, H: 1, Encoding: rfb.EncodingCopyRect}
	if err := decodeCopyRect(&hdr, rect, ctx); err != nil {
		t.Fatalf("decodeCopyRect: %v", err)
	}
	if got := fb.pixels[[2]int{2, 2}]; got != 0xAABBCC {
		t.Fatalf("pixel = %#x, want 0xAABBCC", got)
	}
}

func TestDecodeRREBackgroundAndSubrect(t *testing.T) {
	f := rfb.DefaultPixelFormat
	fb := newStubFramebuffer(10, 10, f)
	ctx := &Context{FB: fb, Format: f}

	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 1}) // 1 subrect
	if err := WritePixel(&buf, f, 0x000000); err != nil {
		t.Fatal(err)
	}
	if err := WritePixel(&buf, f, 0xFFFFFF); err != nil {
		t.Fatal(err)
	}
	buf.Write([]byte{0, 1, 0, 1, 0, 2, 0, 2}) // x=1,y=1,w=2,h=2

	rect := Rect{X: 0, Y: 0, W: 4, H: 4, Encoding: rfb.EncodingRRE}
	if err := decodeRRE(&buf, rect, ctx); err != nil {
		t.Fatalf("decodeRRE: %v", err)
	}
	if got := fb.pixels[[2]int{0, 0}]; got != 0x000000 {
		t.Fatalf("background pixel = %#x", got)
	}
	if got := fb.pixels[[2]int{1, 1}]; got != 0xFFFFFF {
		t.Fatalf("subrect pixel = %#x", got)
	}
}

func TestDecodeRectRejectsOutOfBoundsRectangle(t *testing.T) {
	f := rfb.DefaultPixelFormat
	fb := newStubFramebuffer(4, 4, f)
	ctx := &Context{FB: fb, Format: f}

	rect := Rect{X: 2, Y: 2, W: 4, H: 4, Encoding: rfb.EncodingRaw}
	if _, err := DecodeRect(&bytes.Buffer{}, rect, ctx); err == nil {
		t.Fatal("expected bounds error, got nil")
	}
	if len(fb.pixels) != 0 {
		t.Fatal("expected no mutation on bounds failure")
	}
}

func TestDecodeRectDesktopResizeUpdatesFramebuffer(t *testing.T) {
	f := rfb.DefaultPixelFormat
	fb := newStubFramebuffer(4, 4, f)
	ctx := &Context{FB: fb, Format: f}

	rect := Rect{X: 0, Y: 0, W: 8, H: 6, Encoding: rfb.EncodingDesktopResize}
	ev, err := DecodeRect(&bytes.Buffer{}, rect, ctx)
	if err != nil {
		t.Fatalf("DecodeRect: %v", err)
	}
	if ev.Kind != EventDesktopResize || ev.Width != 8 || ev.Height != 6 {
		t.Fatalf("event = %+v", ev)
	}
	if fb.Width() != 8 || fb.Height() != 6 {
		t.Fatalf("framebuffer not resized: %dx%d", fb.Width(), fb.Height())
	}
}
