// Package session runs one RFB connection end to end: the handshake, then
// a message loop that drains the outbound xmit queue and decodes inbound
// server messages until the connection ends. It is the one dedicated
// goroutine per connection the design calls the "session task" —
// everything else (pkg/vnc's public API, the signal bridge's dispatch
// goroutine) only ever talks to it through the xmit queue and the signal
// bus, mirroring how internal/sessionbroker.Session in the teacher pack is
// the only thing that touches its own net connection directly.
package session

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/breeze-rmm/vncclient/internal/audio"
	"github.com/breeze-rmm/vncclient/internal/clientmsg"
	"github.com/breeze-rmm/vncclient/internal/decode"
	"github.com/breeze-rmm/vncclient/internal/handshake"
	"github.com/breeze-rmm/vncclient/internal/logging"
	"github.com/breeze-rmm/vncclient/internal/rfb"
	"github.com/breeze-rmm/vncclient/internal/rfberr"
	"github.com/breeze-rmm/vncclient/internal/signalbus"
	"github.com/breeze-rmm/vncclient/internal/transport"
	"github.com/breeze-rmm/vncclient/internal/zlibstream"
)

var log = logging.L("session")

// Config bundles everything Run needs beyond the live connection: the
// handshake policy, whether to request a shared session, the pixel format
// to request, the encoding list to advertise, and the audio sink (may
// be nil).
type Config struct {
	HandshakePolicy handshake.Policy
	Shared          bool
	Encodings       []int32
	PreferredFormat rfb.PixelFormat
	AudioSink       audio.Sink
}

// lastRequest remembers the parameters of the most recent
// FramebufferUpdateRequest, since several pseudo-encodings (DesktopResize,
// ExtKeyEvent) require immediately re-issuing it.
type lastRequest struct {
	incremental    bool
	x, y, w, h     int
}

// Session owns one RFB connection's entire lifetime: the socket, the
// decode context, the xmit queue, and the sticky error the design's error
// policy requires.
type Session struct {
	bus   *signalbus.Bus
	queue *clientmsg.Queue
	audio *audio.Accumulator

	connMu sync.Mutex
	conn   net.Conn
	fb     rfb.Framebuffer

	mu      sync.Mutex
	format  rfb.PixelFormat
	last    lastRequest
	capExt  bool
	capAudio bool

	stopped atomic.Bool
	errMu   sync.Mutex
	err     error

	done      chan struct{}
	closeOnce sync.Once
}

// New creates a Session over an already-dialed connection. fb must be
// non-nil; sink may be nil if the embedder doesn't want audio.
func New(conn net.Conn, fb rfb.Framebuffer, bus *signalbus.Bus, sink audio.Sink) *Session {
	return &Session{
		bus:   bus,
		queue: &clientmsg.Queue{},
		audio: audio.NewAccumulator(sink),
		conn:  conn,
		fb:    fb,
		done:  make(chan struct{}),
	}
}

// Enqueue appends an already-encoded outbound message to the xmit queue;
// it is flushed before the session's next blocking read. Safe to call from
// any goroutine.
func (s *Session) Enqueue(msg []byte) {
	if s.stopped.Load() {
		return
	}
	s.queue.Enqueue(msg)
}

// Run performs the handshake, then the message loop, until the connection
// ends or ctx is cancelled. It always returns a non-nil error (io.EOF on a
// clean server-initiated close), per the sticky-error design: the caller
// is expected to treat any return as "the session is over".
func (s *Session) Run(ctx context.Context, cfg Config) error {
	upgraded, result, err := handshake.Run(ctx, s.getConn(), cfg.Shared, cfg.HandshakePolicy, s.bus)
	if err != nil {
		return s.fail(ctx, err)
	}
	s.setConn(upgraded)

	s.mu.Lock()
	s.format = result.PixelFormat
	s.mu.Unlock()

	s.fb.Resize(result.Width, result.Height)
	s.fb.SetRemoteFormat(result.PixelFormat)

	s.bus.Notify(ctx, signalbus.Signal{Kind: signalbus.KindInitialized})

	format := cfg.PreferredFormat
	if format.BitsPerPixel == 0 {
		format = s.fb.RemoteFormat()
	}
	if format.BitsPerPixel == 0 {
		format = result.PixelFormat
	}
	s.Enqueue(clientmsg.SetPixelFormat(format))
	s.Enqueue(clientmsg.SetEncodings(cfg.Encodings, format))
	s.mu.Lock()
	s.format = format
	s.mu.Unlock()
	s.fb.SetRemoteFormat(format)

	s.requestUpdate(false, 0, 0, result.Width, result.Height)

	buffered := transport.NewBufferedConn(s.getConn())
	return s.messageLoop(ctx, buffered)
}

func (s *Session) setConn(c net.Conn) {
	s.connMu.Lock()
	s.conn = c
	s.connMu.Unlock()
}

func (s *Session) getConn() net.Conn {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return s.conn
}

func (s *Session) closeConn() {
	if c := s.getConn(); c != nil {
		c.Close()
	}
}

func (s *Session) requestUpdate(incremental bool, x, y, w, h int) {
	s.mu.Lock()
	s.last = lastRequest{incremental: incremental, x: x, y: y, w: w, h: h}
	s.mu.Unlock()
	s.Enqueue(clientmsg.FramebufferUpdateRequest(incremental, x, y, w, h))
}

func (s *Session) repeatLastRequest() {
	s.mu.Lock()
	l := s.last
	s.mu.Unlock()
	s.Enqueue(clientmsg.FramebufferUpdateRequest(l.incremental, l.x, l.y, l.w, l.h))
}

// flushXmit writes everything queued so far straight to the connection.
func (s *Session) flushXmit() error {
	out := s.queue.Drain()
	if len(out) == 0 {
		return nil
	}
	_, err := s.getConn().Write(out)
	return err
}

func (s *Session) messageLoop(ctx context.Context, r io.Reader) error {
	dctx := &decode.Context{FB: s.fb, Zlib: &zlibstream.Pool{}}

	for {
		select {
		case <-ctx.Done():
			return s.fail(ctx, ctx.Err())
		case <-s.done:
			return s.fail(ctx, rfberr.New(rfberr.KindNetworkClosed, "session: closed locally"))
		default:
		}

		if err := s.flushXmit(); err != nil {
			return s.fail(ctx, rfberr.Wrap(rfberr.KindNetworkIO, err, "session: flush xmit queue"))
		}

		var typeByte [1]byte
		if _, err := io.ReadFull(r, typeByte[:]); err != nil {
			return s.fail(ctx, rfberr.Wrap(rfberr.KindNetworkIO, err, "session: read message type"))
		}

		s.mu.Lock()
		dctx.Format = s.format
		s.mu.Unlock()

		if err := s.dispatch(ctx, r, dctx, typeByte[0]); err != nil {
			return s.fail(ctx, err)
		}
	}
}

func (s *Session) dispatch(ctx context.Context, r io.Reader, dctx *decode.Context, msgType byte) error {
	switch msgType {
	case rfb.MsgFramebufferUpdate:
		return s.handleFramebufferUpdate(ctx, r, dctx)
	case rfb.MsgSetColorMapEntries:
		return s.handleSetColorMapEntries(r)
	case rfb.MsgBell:
		s.bus.Notify(ctx, signalbus.Signal{Kind: signalbus.KindBell})
		return nil
	case rfb.MsgServerCutText:
		return s.handleServerCutText(ctx, r)
	case rfb.MsgQEMU:
		return s.handleQEMU(r)
	default:
		return rfberr.New(rfberr.KindProtocolViolation, "session: unknown server message type %d", msgType)
	}
}

func (s *Session) handleFramebufferUpdate(ctx context.Context, r io.Reader, dctx *decode.Context) error {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return rfberr.Wrap(rfberr.KindNetworkIO, err, "session: read FramebufferUpdate header")
	}
	count := binary.BigEndian.Uint16(hdr[2:4])

	needsReRequest := false

	for i := uint16(0); i < count; i++ {
		var rectHdr [12]byte
		if _, err := io.ReadFull(r, rectHdr[:]); err != nil {
			return rfberr.Wrap(rfberr.KindNetworkIO, err, "session: read rectangle header")
		}
		rect := decode.Rect{
			X:        int(binary.BigEndian.Uint16(rectHdr[0:2])),
			Y:        int(binary.BigEndian.Uint16(rectHdr[2:4])),
			W:        int(binary.BigEndian.Uint16(rectHdr[4:6])),
			H:        int(binary.BigEndian.Uint16(rectHdr[6:8])),
			Encoding: int32(binary.BigEndian.Uint32(rectHdr[8:12])),
		}

		ev, err := decode.DecodeRect(r, rect, dctx)
		if err != nil {
			return err
		}
		s.handleEvent(ctx, ev, &needsReRequest)
	}

	s.bus.Notify(ctx, signalbus.Signal{Kind: signalbus.KindFramebufferUpdate})
	if needsReRequest {
		s.repeatLastRequest()
	} else {
		s.requestUpdate(true, 0, 0, s.fb.Width(), s.fb.Height())
	}
	return nil
}

func (s *Session) handleEvent(ctx context.Context, ev decode.Event, needsReRequest *bool) {
	switch ev.Kind {
	case decode.EventDesktopResize:
		s.bus.Notify(ctx, signalbus.Signal{Kind: signalbus.KindDesktopResize, Width: ev.Width, Height: ev.Height})
		*needsReRequest = true
	case decode.EventPixelFormatChanged:
		s.mu.Lock()
		s.format = ev.PixelFormat
		s.mu.Unlock()
		s.bus.Notify(ctx, signalbus.Signal{Kind: signalbus.KindPixelFormatChanged, PixelFormat: ev.PixelFormat})
	case decode.EventCursorChanged:
		s.bus.Notify(ctx, signalbus.Signal{Kind: signalbus.KindCursorChanged, Cursor: ev.Cursor})
	case decode.EventPointerChange:
		s.bus.Notify(ctx, signalbus.Signal{Kind: signalbus.KindPointerModeChanged, Absolute: ev.Absolute})
	case decode.EventLedState:
		s.bus.Notify(ctx, signalbus.Signal{Kind: signalbus.KindLedState, LEDs: ev.LEDs})
	case decode.EventExtKeyEvent:
		s.mu.Lock()
		s.capExt = true
		s.mu.Unlock()
		*needsReRequest = true
	case decode.EventAudioCapable:
		s.mu.Lock()
		s.capAudio = true
		s.mu.Unlock()
	}
}

func (s *Session) handleSetColorMapEntries(r io.Reader) error {
	var hdr [5]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return rfberr.Wrap(rfberr.KindNetworkIO, err, "session: read SetColorMapEntries header")
	}
	first := int(binary.BigEndian.Uint16(hdr[1:3]))
	count := int(binary.BigEndian.Uint16(hdr[3:5]))

	for i := 0; i < count; i++ {
		var rgb [6]byte
		if _, err := io.ReadFull(r, rgb[:]); err != nil {
			return rfberr.Wrap(rfberr.KindNetworkIO, err, "session: read color map entry")
		}
		r16 := binary.BigEndian.Uint16(rgb[0:2])
		g16 := binary.BigEndian.Uint16(rgb[2:4])
		b16 := binary.BigEndian.Uint16(rgb[4:6])
		s.fb.SetColorMapEntry(first+i, r16, g16, b16)
	}
	return nil
}

func (s *Session) handleServerCutText(ctx context.Context, r io.Reader) error {
	var hdr [7]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return rfberr.Wrap(rfberr.KindNetworkIO, err, "session: read ServerCutText header")
	}
	length := binary.BigEndian.Uint32(hdr[3:7])
	if int(length) > rfb.MaxCutTextLength() {
		return rfberr.New(rfberr.KindProtocolViolation, "session: ServerCutText length %d exceeds cap", length)
	}
	text := make([]byte, length)
	if _, err := io.ReadFull(r, text); err != nil {
		return rfberr.Wrap(rfberr.KindNetworkIO, err, "session: read ServerCutText body")
	}
	s.bus.Notify(ctx, signalbus.Signal{Kind: signalbus.KindServerCutText, Reason: string(text)})
	return nil
}

func (s *Session) handleQEMU(r io.Reader) error {
	var subtype [1]byte
	if _, err := io.ReadFull(r, subtype[:]); err != nil {
		return rfberr.Wrap(rfberr.KindNetworkIO, err, "session: read QEMU subtype")
	}
	if subtype[0] != rfb.QEMUSubtypeAudio {
		return rfberr.New(rfberr.KindProtocolViolation, "session: unknown QEMU subtype %d", subtype[0])
	}

	var opBuf [2]byte
	if _, err := io.ReadFull(r, opBuf[:]); err != nil {
		return rfberr.Wrap(rfberr.KindNetworkIO, err, "session: read QEMU audio op")
	}
	op := binary.BigEndian.Uint16(opBuf[:])

	switch op {
	case rfb.QEMUAudioOpStart, rfb.QEMUAudioOpStop:
		return nil
	case rfb.QEMUAudioOpData:
		var lenBuf [4]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return rfberr.Wrap(rfberr.KindNetworkIO, err, "session: read QEMU audio data length")
		}
		length := binary.BigEndian.Uint32(lenBuf[:])
		if int(length) > rfb.MaxAudioDataChunk() {
			return rfberr.New(rfberr.KindProtocolViolation, "session: QEMU audio chunk %d exceeds cap", length)
		}
		data := make([]byte, length)
		if _, err := io.ReadFull(r, data); err != nil {
			return rfberr.Wrap(rfberr.KindNetworkIO, err, "session: read QEMU audio data")
		}
		s.audio.Append(data)
		return nil
	default:
		return rfberr.New(rfberr.KindProtocolViolation, "session: unknown QEMU audio op %d", op)
	}
}

// fail installs the sticky error (first one wins), emits the appropriate
// signals, and returns it. Every subsequent call is a no-op returning the
// originally stored error, matching the design's "no retry, one error"
// policy.
func (s *Session) fail(ctx context.Context, err error) error {
	s.errMu.Lock()
	if s.err == nil {
		s.err = err
	}
	stored := s.err
	s.errMu.Unlock()

	if s.stopped.CompareAndSwap(false, true) {
		log.Error("session ending", "error", stored)
		s.audio.Close()
		s.bus.Notify(ctx, signalbus.Signal{Kind: signalbus.KindError, Err: stored, Reason: stored.Error()})
		s.bus.Notify(ctx, signalbus.Signal{Kind: signalbus.KindDisconnected, Err: stored})
		s.closeConn()
	}
	return stored
}

// Close ends the session from the host side: closes the done channel
// (waking the message loop's next select) and the underlying connection,
// which unblocks whatever blocking read the message loop is in. Safe to
// call more than once or concurrently with Run.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.closeConn()
	})
	return nil
}

// Err returns the sticky error that ended the session, or nil if it is
// still running.
func (s *Session) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

// SupportsExtKeyEvent reports whether the server advertised the
// ExtKeyEvent pseudo-encoding, i.e. whether QEMUExtendedKeyEvent should be
// sent instead of the legacy KeyEvent.
func (s *Session) SupportsExtKeyEvent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capExt
}

// SupportsAudio reports whether the server advertised the QEMU audio
// extension.
func (s *Session) SupportsAudio() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capAudio
}

// RequestUpdate enqueues a FramebufferUpdateRequest and remembers it as
// the "last request" pseudo-encodings like DesktopResize re-issue.
func (s *Session) RequestUpdate(incremental bool, x, y, w, h int) {
	s.requestUpdate(incremental, x, y, w, h)
}
