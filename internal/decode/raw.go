package decode

import (
	"io"

	"github.com/breeze-rmm/vncclient/internal/rfberr"
)

// decodeRaw handles the Raw encoding: w*h pixels, row-major, in the
// negotiated pixel format with no compression at all. When the
// framebuffer's backing storage is already laid out exactly like the
// wire format, rows are read straight into it; otherwise each row is
// staged through a scratch buffer and converted by Blit.
func decodeRaw(r io.Reader, rect Rect, ctx *Context) error {
	if err := checkBounds(rect, ctx.FB); err != nil {
		return err
	}
	if rect.W == 0 || rect.H == 0 {
		return nil
	}

	bpp := ctx.Format.BytesPerPixel()
	rowBytes := rect.W * bpp

	if ctx.FB.PerfectFormatMatch(ctx.Format) {
		stride := ctx.FB.RowStride()
		buf := ctx.FB.Bytes()
		for row := 0; row < rect.H; row++ {
			y := rect.Y + row
			off := y*stride + rect.X*bpp
			if _, err := io.ReadFull(r, buf[off:off+rowBytes]); err != nil {
				return rfberr.Wrap(rfberr.KindNetworkIO, err, "decode: read raw row")
			}
		}
		return nil
	}

	scratch := make([]byte, rowBytes)
	for row := 0; row < rect.H; row++ {
		if _, err := io.ReadFull(r, scratch); err != nil {
			return rfberr.Wrap(rfberr.KindNetworkIO, err, "decode: read raw row")
		}
		ctx.FB.Blit(scratch, ctx.Format, rowBytes, rect.X, rect.Y+row, rect.W, 1)
	}
	return nil
}
