package decode

import (
	"io"

	"github.com/breeze-rmm/vncclient/internal/rfb"
)

// DecodeGradientRect decodes Tight's gradient filter (subencoding 2) over a
// w×h rect: the wire carries one TPIXEL delta per pixel, row-major; the
// actual pixel is the delta summed with a predictor built from the left,
// above, and above-left neighbors, each channel saturated independently.
// Two row buffers are kept (the previous row and the one being built),
// seeded with zero pixels so the first row and first column predict
// against black, then swapped at the end of each row.
func DecodeGradientRect(r io.Reader, w, h int, f rfb.PixelFormat) ([]uint32, error) {
	pixels := make([]uint32, w*h)
	last := make([]uint32, w)
	current := make([]uint32, w)

	for y := 0; y < h; y++ {
		var left uint32
		for x := 0; x < w; x++ {
			var above, aboveLeft uint32
			if y > 0 {
				above = last[x]
				if x > 0 {
					aboveLeft = last[x-1]
				}
			}

			delta, err := DecodeTPixel(r, f)
			if err != nil {
				return nil, err
			}

			p := PredictGradient(left, above, aboveLeft, delta, f)
			current[x] = p
			pixels[y*w+x] = p
			left = p
		}
		last, current = current, last
	}
	return pixels, nil
}
