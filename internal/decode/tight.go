package decode

import (
	"bytes"
	"image"
	"image/jpeg"
	"io"

	"github.com/breeze-rmm/vncclient/internal/rfb"
	"github.com/breeze-rmm/vncclient/internal/rfberr"
)

const (
	tightFillType   = 0x8
	tightJPEGType   = 0x9
	tightFilterFlag = 0x04

	tightFilterCopy     = 0
	tightFilterPalette  = 1
	tightFilterGradient = 2

	tightMinCompressLen = 12
)

// decodeTight handles the Tight encoding: a compression-control byte
// selects which of four independent zlib streams a basic rectangle uses
// (and which, if any, to reset), then one of three filters (Copy, Palette,
// Gradient) describes how the rectangle's pixels are laid out before
// optional compression, or the control byte names a solid fill or a raw
// JPEG payload instead.
func decodeTight(r io.Reader, rect Rect, ctx *Context) error {
	if err := checkBounds(rect, ctx.FB); err != nil {
		return err
	}
	if rect.W == 0 || rect.H == 0 {
		return nil
	}

	var ctl [1]byte
	if _, err := io.ReadFull(r, ctl[:]); err != nil {
		return rfberr.Wrap(rfberr.KindNetworkIO, err, "decode: read tight control byte")
	}

	resetFlags := ctl[0] >> 4
	for i := 0; i < len(ctx.Zlib.Tight); i++ {
		if resetFlags&(1<<uint(i)) != 0 {
			ctx.Zlib.Tight[i].Reset()
		}
	}

	typeField := ctl[0] & 0x0f
	switch {
	case typeField == tightFillType:
		return tightFill(r, rect, ctx)
	case typeField == tightJPEGType:
		return tightJPEG(r, rect, ctx)
	case typeField <= 0x7:
		return tightBasic(r, rect, ctx, typeField)
	default:
		return rfberr.New(rfberr.KindProtocolViolation, "decode: unknown tight compression-control %#x", ctl[0])
	}
}

func bytesPerTPixel(f rfb.PixelFormat) int {
	if f.Depth == 24 {
		return 3
	}
	return f.BytesPerPixel()
}

func tightFill(r io.Reader, rect Rect, ctx *Context) error {
	p, err := DecodeTPixel(r, ctx.Format)
	if err != nil {
		return rfberr.Wrap(rfberr.KindNetworkIO, err, "decode: read tight fill pixel")
	}
	ctx.FB.Fill(p, rect.X, rect.Y, rect.W, rect.H)
	return nil
}

func tightJPEG(r io.Reader, rect Rect, ctx *Context) error {
	n, err := ReadCint(r)
	if err != nil {
		return rfberr.Wrap(rfberr.KindDecode, err, "decode: read tight JPEG length")
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return rfberr.Wrap(rfberr.KindNetworkIO, err, "decode: read tight JPEG payload")
	}

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return rfberr.Wrap(rfberr.KindDecode, err, "decode: parse tight JPEG payload")
	}
	blitImage(img, rect, ctx)
	return nil
}

func blitImage(img image.Image, rect Rect, ctx *Context) {
	bounds := img.Bounds()
	for row := 0; row < rect.H && row < bounds.Dy(); row++ {
		for col := 0; col < rect.W && col < bounds.Dx(); col++ {
			r16, g16, b16, _ := img.At(bounds.Min.X+col, bounds.Min.Y+row).RGBA()
			r8 := int(r16>>8) * ctx.Format.RedMax / 255
			g8 := int(g16>>8) * ctx.Format.GreenMax / 255
			b8 := int(b16>>8) * ctx.Format.BlueMax / 255
			p := buildPixel(r8, g8, b8, ctx.Format)
			ctx.FB.SetPixelAt(p, rect.X+col, rect.Y+row)
		}
	}
}

func tightBasic(r io.Reader, rect Rect, ctx *Context, typeField byte) error {
	streamID := int(typeField & 0x03)
	filter := byte(tightFilterCopy)
	if typeField&tightFilterFlag != 0 {
		var fb [1]byte
		if _, err := io.ReadFull(r, fb[:]); err != nil {
			return rfberr.Wrap(rfberr.KindNetworkIO, err, "decode: read tight filter id")
		}
		filter = fb[0]
	}

	bpp := bytesPerTPixel(ctx.Format)

	var paletteCount int
	var rowBytes int
	var palette []uint32
	switch filter {
	case tightFilterCopy, tightFilterGradient:
		rowBytes = rect.W * bpp
	case tightFilterPalette:
		var countByte [1]byte
		if _, err := io.ReadFull(r, countByte[:]); err != nil {
			return rfberr.Wrap(rfberr.KindNetworkIO, err, "decode: read tight palette count")
		}
		paletteCount = int(countByte[0]) + 1
		if paletteCount == 2 {
			rowBytes = (rect.W + 7) / 8
		} else {
			rowBytes = rect.W
		}
		// The palette itself always arrives as plain TPIXELs straight off the
		// wire, never part of the zlib region that follows: only the index
		// data below is ever compressed, and the compress/uncompressed
		// threshold is decided on the index data's size alone.
		palette = make([]uint32, paletteCount)
		for i := range palette {
			p, err := DecodeTPixel(r, ctx.Format)
			if err != nil {
				return rfberr.Wrap(rfberr.KindDecode, err, "decode: read tight palette entry")
			}
			palette[i] = p
		}
	default:
		return rfberr.New(rfberr.KindProtocolViolation, "decode: unknown tight filter %d", filter)
	}

	dataLen := rowBytes * rect.H

	var body io.Reader
	if dataLen < tightMinCompressLen {
		buf := make([]byte, dataLen)
		if _, err := io.ReadFull(r, buf); err != nil {
			return rfberr.Wrap(rfberr.KindNetworkIO, err, "decode: read uncompressed tight payload")
		}
		body = bytes.NewReader(buf)
	} else {
		compressedLen, err := ReadCint(r)
		if err != nil {
			return rfberr.Wrap(rfberr.KindDecode, err, "decode: read tight compressed length")
		}
		compressed := make([]byte, compressedLen)
		if _, err := io.ReadFull(r, compressed); err != nil {
			return rfberr.Wrap(rfberr.KindNetworkIO, err, "decode: read tight compressed payload")
		}
		out, err := ctx.Zlib.Tight[streamID].Decompress(compressed, dataLen)
		if err != nil {
			return rfberr.Wrap(rfberr.KindDecode, err, "decode: inflate tight payload")
		}
		body = bytes.NewReader(out)
	}

	switch filter {
	case tightFilterCopy:
		return tightCopyPixels(body, rect, ctx)
	case tightFilterGradient:
		pixels, err := DecodeGradientRect(body, rect.W, rect.H, ctx.Format)
		if err != nil {
			return err
		}
		for row := 0; row < rect.H; row++ {
			for col := 0; col < rect.W; col++ {
				ctx.FB.SetPixelAt(pixels[row*rect.W+col], rect.X+col, rect.Y+row)
			}
		}
		return nil
	default: // tightFilterPalette
		return tightPaletteTile(body, rect, palette, rowBytes, ctx)
	}
}

func tightCopyPixels(r io.Reader, rect Rect, ctx *Context) error {
	for row := 0; row < rect.H; row++ {
		for col := 0; col < rect.W; col++ {
			p, err := DecodeTPixel(r, ctx.Format)
			if err != nil {
				return rfberr.Wrap(rfberr.KindDecode, err, "decode: read tight copy pixel")
			}
			ctx.FB.SetPixelAt(p, rect.X+col, rect.Y+row)
		}
	}
	return nil
}

// tightPaletteTile reads the index data only; palette was already decoded
// from the uncompressed stream before the zlib region (if any) started.
func tightPaletteTile(r io.Reader, rect Rect, palette []uint32, rowBytes int, ctx *Context) error {
	for row := 0; row < rect.H; row++ {
		rowBuf := make([]byte, rowBytes)
		if _, err := io.ReadFull(r, rowBuf); err != nil {
			return rfberr.Wrap(rfberr.KindDecode, err, "decode: read tight palette row")
		}
		for col := 0; col < rect.W; col++ {
			var idx int
			if len(palette) == 2 {
				idx = readPackedIndex(rowBuf, col, 1)
			} else {
				idx = int(rowBuf[col])
			}
			if idx >= len(palette) {
				return rfberr.New(rfberr.KindProtocolViolation, "decode: tight palette index %d out of range", idx)
			}
			ctx.FB.SetPixelAt(palette[idx], rect.X+col, rect.Y+row)
		}
	}
	return nil
}
