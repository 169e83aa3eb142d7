package decode

import (
	"io"

	"github.com/breeze-rmm/vncclient/internal/rfberr"
)

const (
	hextileRaw             = 1 << 0
	hextileBackground      = 1 << 1
	hextileForeground      = 1 << 2
	hextileAnySubrects     = 1 << 3
	hextileSubrectsColored = 1 << 4
)

// decodeHextile handles the Hextile encoding: the rect is tiled into 16x16
// cells (the rightmost column and bottom row clipped to whatever remains),
// each carrying its own 1-byte flags describing whether it's raw pixels or
// a background fill plus a list of colored subrectangles. Background and
// foreground colors persist across tiles within the same rect when a tile
// doesn't redeclare them.
func decodeHextile(r io.Reader, rect Rect, ctx *Context) error {
	if err := checkBounds(rect, ctx.FB); err != nil {
		return err
	}

	var bg, fg uint32
	for ty := rect.Y; ty < rect.Y+rect.H; ty += 16 {
		th := 16
		if ty+th > rect.Y+rect.H {
			th = rect.Y + rect.H - ty
		}
		for tx := rect.X; tx < rect.X+rect.W; tx += 16 {
			tw := 16
			if tx+tw > rect.X+rect.W {
				tw = rect.X + rect.W - tx
			}

			var flagByte [1]byte
			if _, err := io.ReadFull(r, flagByte[:]); err != nil {
				return rfberr.Wrap(rfberr.KindNetworkIO, err, "decode: read hextile flags")
			}
			flags := flagByte[0]

			if flags&hextileRaw != 0 {
				scratch := make([]byte, tw*ctx.Format.BytesPerPixel())
				for row := 0; row < th; row++ {
					if _, err := io.ReadFull(r, scratch); err != nil {
						return rfberr.Wrap(rfberr.KindNetworkIO, err, "decode: read hextile raw row")
					}
					ctx.FB.Blit(scratch, ctx.Format, len(scratch), tx, ty+row, tw, 1)
				}
				continue
			}

			if flags&hextileBackground != 0 {
				p, err := ReadPixel(r, ctx.Format)
				if err != nil {
					return rfberr.Wrap(rfberr.KindNetworkIO, err, "decode: read hextile background")
				}
				bg = p
			}
			ctx.FB.Fill(bg, tx, ty, tw, th)

			if flags&hextileForeground != 0 {
				p, err := ReadPixel(r, ctx.Format)
				if err != nil {
					return rfberr.Wrap(rfberr.KindNetworkIO, err, "decode: read hextile foreground")
				}
				fg = p
			}

			if flags&hextileAnySubrects == 0 {
				continue
			}

			var countByte [1]byte
			if _, err := io.ReadFull(r, countByte[:]); err != nil {
				return rfberr.Wrap(rfberr.KindNetworkIO, err, "decode: read hextile subrect count")
			}
			colored := flags&hextileSubrectsColored != 0

			for i := 0; i < int(countByte[0]); i++ {
				color := fg
				if colored {
					p, err := ReadPixel(r, ctx.Format)
					if err != nil {
						return rfberr.Wrap(rfberr.KindNetworkIO, err, "decode: read hextile subrect color")
					}
					color = p
				}

				var xy, wh [1]byte
				if _, err := io.ReadFull(r, xy[:]); err != nil {
					return rfberr.Wrap(rfberr.KindNetworkIO, err, "decode: read hextile subrect xy")
				}
				if _, err := io.ReadFull(r, wh[:]); err != nil {
					return rfberr.Wrap(rfberr.KindNetworkIO, err, "decode: read hextile subrect wh")
				}

				subX := int(xy[0] >> 4)
				subY := int(xy[0] & 0x0f)
				subW := int(wh[0]>>4) + 1
				subH := int(wh[0]&0x0f) + 1

				subRect := Rect{X: tx + subX, Y: ty + subY, W: subW, H: subH}
				if err := checkBounds(subRect, ctx.FB); err != nil {
					return err
				}
				ctx.FB.Fill(color, subRect.X, subRect.Y, subRect.W, subRect.H)
			}
		}
	}
	return nil
}
