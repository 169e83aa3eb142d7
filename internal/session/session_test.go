package session

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/breeze-rmm/vncclient/internal/rfb"
	"github.com/breeze-rmm/vncclient/internal/signalbus"
)

type fakeConn struct {
	server  *bytes.Reader
	written bytes.Buffer
}

func (f *fakeConn) Read(p []byte) (int, error)  { return f.server.Read(p) }
func (f *fakeConn) Write(p []byte) (int, error) { return f.written.Write(p) }
func (f *fakeConn) Close() error                { return nil }
func (f *fakeConn) LocalAddr() net.Addr         { return nil }
func (f *fakeConn) RemoteAddr() net.Addr        { return nil }
func (f *fakeConn) SetDeadline(time.Time) error { return nil }
func (f *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

var _ net.Conn = (*fakeConn)(nil)

type stubFramebuffer struct {
	w, h   int
	format rfb.PixelFormat
	colors map[int][3]uint16
}

func newStubFramebuffer() *stubFramebuffer {
	return &stubFramebuffer{colors: map[int][3]uint16{}}
}
func (s *stubFramebuffer) Width() int                            { return s.w }
func (s *stubFramebuffer) Height() int                           { return s.h }
func (s *stubFramebuffer) Resize(w, h int)                       { s.w, s.h = w, h }
func (s *stubFramebuffer) RemoteFormat() rfb.PixelFormat         { return s.format }
func (s *stubFramebuffer) SetRemoteFormat(f rfb.PixelFormat)     { s.format = f }
func (s *stubFramebuffer) PerfectFormatMatch(rfb.PixelFormat) bool { return false }
func (s *stubFramebuffer) RowStride() int                        { return s.w * s.format.BytesPerPixel() }
func (s *stubFramebuffer) Bytes() []byte                          { return make([]byte, s.RowStride()*s.h) }
func (s *stubFramebuffer) Blit([]byte, rfb.PixelFormat, int, int, int, int, int) {}
func (s *stubFramebuffer) Fill(uint32, int, int, int, int)                      {}
func (s *stubFramebuffer) CopyRect(int, int, int, int, int, int)                {}
func (s *stubFramebuffer) SetPixelAt(uint32, int, int)                          {}
func (s *stubFramebuffer) SetColorMapEntry(index int, r, g, b uint16) {
	s.colors[index] = [3]uint16{r, g, b}
}

var _ rfb.Framebuffer = (*stubFramebuffer)(nil)

func newTestSession() (*Session, *fakeConn, *signalbus.Bus) {
	conn := &fakeConn{server: bytes.NewReader(nil)}
	bus := signalbus.New(8)
	s := New(conn, newStubFramebuffer(), bus, nil)
	return s, conn, bus
}

func TestFailIsStickyAndIdempotent(t *testing.T) {
	s, _, bus := newTestSession()
	ctx := context.Background()

	go func() {
		for range bus.Signals() {
		}
	}()

	first := errors.New("boom")
	got1 := s.fail(ctx, first)
	got2 := s.fail(ctx, errors.New("different error"))

	if got1 != first || got2 != first {
		t.Fatalf("expected sticky first error, got %v then %v", got1, got2)
	}
	if s.Err() != first {
		t.Fatalf("Err() = %v, want %v", s.Err(), first)
	}
}

func TestHandleSetColorMapEntriesAppliesPalette(t *testing.T) {
	s, _, _ := newTestSession()

	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 5, 0, 2}) // first=5, count=2
	buf.Write([]byte{0xFF, 0xFF, 0, 0, 0, 0})
	buf.Write([]byte{0, 0, 0xAA, 0xAA, 0xBB, 0xBB})

	if err := s.handleSetColorMapEntries(&buf); err != nil {
		t.Fatalf("handleSetColorMapEntries: %v", err)
	}
	fb := s.fb.(*stubFramebuffer)
	if fb.colors[5] != ([3]uint16{0xFFFF, 0, 0}) {
		t.Fatalf("entry 5 = %v", fb.colors[5])
	}
	if fb.colors[6] != ([3]uint16{0, 0xAAAA, 0xBBBB}) {
		t.Fatalf("entry 6 = %v", fb.colors[6])
	}
}

func TestHandleServerCutTextRejectsOversizedLength(t *testing.T) {
	s, _, bus := newTestSession()
	go func() {
		for range bus.Signals() {
		}
	}()

	var hdr [7]byte
	binary.BigEndian.PutUint32(hdr[3:7], uint32(rfb.MaxCutTextLength())+1)
	if err := s.handleServerCutText(context.Background(), bytes.NewReader(hdr[:])); err == nil {
		t.Fatal("expected oversized ServerCutText to be rejected")
	}
}

func TestHandleQEMUAudioDataAccumulates(t *testing.T) {
	s, _, _ := newTestSession()

	var buf bytes.Buffer
	buf.WriteByte(rfb.QEMUSubtypeAudio)
	binary.Write(&buf, binary.BigEndian, uint16(rfb.QEMUAudioOpData))
	payload := []byte{1, 2, 3, 4}
	binary.Write(&buf, binary.BigEndian, uint32(len(payload)))
	buf.Write(payload)

	if err := s.handleQEMU(&buf); err != nil {
		t.Fatalf("handleQEMU: %v", err)
	}
}

func TestEnqueueNoopsAfterStopped(t *testing.T) {
	s, _, bus := newTestSession()
	go func() {
		for range bus.Signals() {
		}
	}()
	s.fail(context.Background(), errors.New("stop"))

	s.Enqueue([]byte{1, 2, 3})
	if !s.queue.Empty() {
		t.Fatal("expected enqueue to no-op once session is stopped")
	}
}
