package decode

import (
	"io"

	"github.com/breeze-rmm/vncclient/internal/cursor"
	"github.com/breeze-rmm/vncclient/internal/rfb"
	"github.com/breeze-rmm/vncclient/internal/rfberr"
	"github.com/breeze-rmm/vncclient/internal/zlibstream"
)

// Rect is one FramebufferUpdate rectangle header, already parsed.
type Rect struct {
	X, Y, W, H int
	Encoding   int32
}

// EventKind names an out-of-band effect a rectangle decode can produce,
// beyond writing pixels into the framebuffer. The session goroutine turns
// these into signalbus notifications; this package has no signalbus
// dependency of its own; it only reports what happened.
type EventKind int

const (
	EventNone EventKind = iota
	EventDesktopResize
	EventPointerChange
	EventLedState
	EventPixelFormatChanged
	EventCursorChanged
	EventExtKeyEvent
	EventAudioCapable
)

// Event carries the payload for whichever EventKind was produced.
type Event struct {
	Kind EventKind

	Width, Height int             // EventDesktopResize
	Absolute      bool            // EventPointerChange
	LEDs          byte            // EventLedState
	PixelFormat   rfb.PixelFormat // EventPixelFormatChanged
	Cursor        *cursor.Cursor  // EventCursorChanged
}

// Context bundles the collaborators every decoder needs: the framebuffer
// to write into, the negotiated pixel format, and the persistent zlib
// sub-streams ZRLE and Tight read from.
type Context struct {
	FB     rfb.Framebuffer
	Format rfb.PixelFormat
	Zlib   *zlibstream.Pool
}

// DecodeRect reads and applies one rectangle from r, dispatching to the
// encoding-specific decoder named by rect.Encoding.
func DecodeRect(r io.Reader, rect Rect, ctx *Context) (Event, error) {
	switch rect.Encoding {
	case rfb.EncodingRaw:
		return Event{}, decodeRaw(r, rect, ctx)
	case rfb.EncodingCopyRect:
		return Event{}, decodeCopyRect(r, rect, ctx)
	case rfb.EncodingRRE:
		return Event{}, decodeRRE(r, rect, ctx)
	case rfb.EncodingHextile:
		return Event{}, decodeHextile(r, rect, ctx)
	case rfb.EncodingZRLE:
		return Event{}, decodeZRLE(r, rect, ctx)
	case rfb.EncodingTight:
		return Event{}, decodeTight(r, rect, ctx)

	case rfb.EncodingDesktopResize:
		ctx.FB.Resize(rect.W, rect.H)
		return Event{Kind: EventDesktopResize, Width: rect.W, Height: rect.H}, nil
	case rfb.EncodingPointerChange:
		return Event{Kind: EventPointerChange, Absolute: rect.X != 0}, nil
	case rfb.EncodingExtKeyEvent:
		return Event{Kind: EventExtKeyEvent}, nil
	case rfb.EncodingAudio:
		return Event{Kind: EventAudioCapable}, nil
	case rfb.EncodingLedState:
		return decodeLedState(r)
	case rfb.EncodingWMVi:
		return decodeWMVi(r, ctx)
	case rfb.EncodingRichCursor:
		return decodeRichCursor(r, rect, ctx.Format)
	case rfb.EncodingXCursor:
		return decodeXCursor(r, rect)

	default:
		return Event{}, rfberr.New(rfberr.KindProtocolViolation, "decode: unsupported encoding %d", rect.Encoding)
	}
}

// checkBounds enforces the session's invariant that no rectangle may
// extend past the framebuffer's current dimensions; decoders call this
// before touching the framebuffer so a malformed rect errors out without
// mutating anything.
func checkBounds(rect Rect, fb rfb.Framebuffer) error {
	if rect.X < 0 || rect.Y < 0 || rect.W < 0 || rect.H < 0 {
		return rfberr.New(rfberr.KindProtocolViolation, "decode: negative rectangle %+v", rect)
	}
	if rect.X+rect.W > fb.Width() || rect.Y+rect.H > fb.Height() {
		return rfberr.New(rfberr.KindProtocolViolation, "decode: rectangle %+v exceeds framebuffer %dx%d", rect, fb.Width(), fb.Height())
	}
	return nil
}
