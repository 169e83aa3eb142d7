package decode

import (
	"encoding/binary"
	"io"

	"github.com/breeze-rmm/vncclient/internal/rfberr"
)

// decodeRRE handles the Rise-and-Run-length encoding: a background pixel
// fills the whole rect, then a flat list of foreground subrectangles
// (each its own pixel plus x/y/w/h) paints over it.
func decodeRRE(r io.Reader, rect Rect, ctx *Context) error {
	if err := checkBounds(rect, ctx.FB); err != nil {
		return err
	}

	var countBuf [4]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return rfberr.Wrap(rfberr.KindNetworkIO, err, "decode: read RRE subrect count")
	}
	count := binary.BigEndian.Uint32(countBuf[:])

	bg, err := ReadPixel(r, ctx.Format)
	if err != nil {
		return rfberr.Wrap(rfberr.KindNetworkIO, err, "decode: read RRE background pixel")
	}
	ctx.FB.Fill(bg, rect.X, rect.Y, rect.W, rect.H)

	var sub [8]byte
	for i := uint32(0); i < count; i++ {
		fg, err := ReadPixel(r, ctx.Format)
		if err != nil {
			return rfberr.Wrap(rfberr.KindNetworkIO, err, "decode: read RRE subrect pixel")
		}
		if _, err := io.ReadFull(r, sub[:]); err != nil {
			return rfberr.Wrap(rfberr.KindNetworkIO, err, "decode: read RRE subrect geometry")
		}
		x := int(binary.BigEndian.Uint16(sub[0:2]))
		y := int(binary.BigEndian.Uint16(sub[2:4]))
		w := int(binary.BigEndian.Uint16(sub[4:6]))
		h := int(binary.BigEndian.Uint16(sub[6:8]))

		subRect := Rect{X: rect.X + x, Y: rect.Y + y, W: w, H: h}
		if err := checkBounds(subRect, ctx.FB); err != nil {
			return err
		}
		ctx.FB.Fill(fg, subRect.X, subRect.Y, subRect.W, subRect.H)
	}
	return nil
}
