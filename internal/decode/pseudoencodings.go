package decode

import (
	"io"

	"github.com/breeze-rmm/vncclient/internal/cursor"
	"github.com/breeze-rmm/vncclient/internal/rfb"
	"github.com/breeze-rmm/vncclient/internal/rfberr"
)

// decodeLedState reads the 1-byte LED bitmap carried by the LedState
// pseudo-encoding's rectangle body.
func decodeLedState(r io.Reader) (Event, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return Event{}, rfberr.Wrap(rfberr.KindNetworkIO, err, "decode: read LedState byte")
	}
	return Event{Kind: EventLedState, LEDs: b[0]}, nil
}

// decodeWMVi reads the fresh PixelFormat a WMVi pseudo-rectangle carries
// and installs it as the session's new negotiated format.
func decodeWMVi(r io.Reader, ctx *Context) (Event, error) {
	buf := make([]byte, rfb.WireSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Event{}, rfberr.Wrap(rfberr.KindNetworkIO, err, "decode: read WMVi pixel format")
	}
	pf, err := rfb.DecodePixelFormat(buf)
	if err != nil {
		return Event{}, rfberr.Wrap(rfberr.KindProtocolViolation, err, "decode: parse WMVi pixel format")
	}
	ctx.Format = pf
	ctx.FB.SetRemoteFormat(pf)
	return Event{Kind: EventPixelFormatChanged, PixelFormat: pf}, nil
}

// decodeRichCursor reads a RichCursor pseudo-rectangle: the rect's x/y
// double as the cursor hotspot, and w/h as its pixel dimensions.
func decodeRichCursor(r io.Reader, rect Rect, format rfb.PixelFormat) (Event, error) {
	cur, err := cursor.DecodeRich(r, rect.W, rect.H, rect.X, rect.Y, format)
	if err != nil {
		return Event{}, err
	}
	return Event{Kind: EventCursorChanged, Cursor: cur}, nil
}

// decodeXCursor reads an XCursor pseudo-rectangle, same hotspot convention
// as RichCursor but with a fixed 2-color (fg/bg) palette instead of a
// full-depth image.
func decodeXCursor(r io.Reader, rect Rect) (Event, error) {
	cur, err := cursor.DecodeX(r, rect.W, rect.H, rect.X, rect.Y)
	if err != nil {
		return Event{}, err
	}
	return Event{Kind: EventCursorChanged, Cursor: cur}, nil
}
