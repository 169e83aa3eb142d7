package decode

import (
	"encoding/binary"
	"io"

	"github.com/breeze-rmm/vncclient/internal/rfberr"
)

// decodeCopyRect handles the CopyRect encoding: the rectangle body is just
// a source x/y; the w/h come from the rectangle header itself and name
// the destination, since the copied region is always the same size.
func decodeCopyRect(r io.Reader, rect Rect, ctx *Context) error {
	if err := checkBounds(rect, ctx.FB); err != nil {
		return err
	}

	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return rfberr.Wrap(rfberr.KindNetworkIO, err, "decode: read CopyRect source")
	}
	srcX := int(binary.BigEndian.Uint16(hdr[0:2]))
	srcY := int(binary.BigEndian.Uint16(hdr[2:4]))

	srcRect := Rect{X: srcX, Y: srcY, W: rect.W, H: rect.H}
	if err := checkBounds(srcRect, ctx.FB); err != nil {
		return err
	}

	ctx.FB.CopyRect(srcX, srcY, rect.X, rect.Y, rect.W, rect.H)
	return nil
}
