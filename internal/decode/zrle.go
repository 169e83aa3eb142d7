package decode

import (
	"encoding/binary"
	"io"

	"github.com/breeze-rmm/vncclient/internal/rfberr"
)

const zrleTileSize = 64

// decodeZRLE handles the ZRLE encoding: the rect body is a u32 length
// followed by that many bytes of zlib-compressed data (against the
// session's single persistent ZRLE stream), which inflates to a sequence
// of 64x64 tiles in raster order, each independently subencoded.
func decodeZRLE(r io.Reader, rect Rect, ctx *Context) error {
	if err := checkBounds(rect, ctx.FB); err != nil {
		return err
	}

	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return rfberr.Wrap(rfberr.KindNetworkIO, err, "decode: read ZRLE payload length")
	}
	length := binary.BigEndian.Uint32(lenBuf[:])

	compressed := make([]byte, length)
	if _, err := io.ReadFull(r, compressed); err != nil {
		return rfberr.Wrap(rfberr.KindNetworkIO, err, "decode: read ZRLE payload")
	}

	tr := newZlibTileReader(&ctx.Zlib.ZRLE, compressed)

	for ty := rect.Y; ty < rect.Y+rect.H; ty += zrleTileSize {
		th := zrleTileSize
		if ty+th > rect.Y+rect.H {
			th = rect.Y + rect.H - ty
		}
		for tx := rect.X; tx < rect.X+rect.W; tx += zrleTileSize {
			tw := zrleTileSize
			if tx+tw > rect.X+rect.W {
				tw = rect.X + rect.W - tx
			}
			if err := decodeZRLETile(tr, tx, ty, tw, th, ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

func decodeZRLETile(r io.Reader, x, y, w, h int, ctx *Context) error {
	var subBuf [1]byte
	if _, err := io.ReadFull(r, subBuf[:]); err != nil {
		return rfberr.Wrap(rfberr.KindDecode, err, "decode: read ZRLE tile subencoding")
	}
	sub := subBuf[0]

	switch {
	case sub == 0:
		return zrleRawTile(r, x, y, w, h, ctx)
	case sub == 1:
		p, err := DecodeCPixel(r, ctx.Format)
		if err != nil {
			return rfberr.Wrap(rfberr.KindDecode, err, "decode: read ZRLE solid pixel")
		}
		ctx.FB.Fill(p, x, y, w, h)
		return nil
	case sub >= 2 && sub <= 16:
		return zrlePaletteTile(r, x, y, w, h, int(sub), ctx)
	case sub == 128:
		return zrleRLETile(r, x, y, w, h, ctx)
	case sub >= 130:
		return zrlePaletteRLETile(r, x, y, w, h, int(sub)-128, ctx)
	default:
		return rfberr.New(rfberr.KindProtocolViolation, "decode: unknown ZRLE tile subencoding %d", sub)
	}
}

func zrleRawTile(r io.Reader, x, y, w, h int, ctx *Context) error {
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			p, err := DecodeCPixel(r, ctx.Format)
			if err != nil {
				return rfberr.Wrap(rfberr.KindDecode, err, "decode: read ZRLE raw pixel")
			}
			ctx.FB.SetPixelAt(p, x+col, y+row)
		}
	}
	return nil
}

func paletteBits(paletteSize int) int {
	switch {
	case paletteSize <= 2:
		return 1
	case paletteSize <= 4:
		return 2
	default:
		return 4
	}
}

func readPalette(r io.Reader, n int, ctx *Context) ([]uint32, error) {
	palette := make([]uint32, n)
	for i := range palette {
		p, err := DecodeCPixel(r, ctx.Format)
		if err != nil {
			return nil, rfberr.Wrap(rfberr.KindDecode, err, "decode: read ZRLE palette entry")
		}
		palette[i] = p
	}
	return palette, nil
}

// zrlePaletteTile reads a packed-palette tile: indices into a small
// palette, bit-packed MSB-first and padded to a byte boundary at the end
// of each row.
func zrlePaletteTile(r io.Reader, x, y, w, h int, paletteSize int, ctx *Context) error {
	palette, err := readPalette(r, paletteSize, ctx)
	if err != nil {
		return err
	}

	bits := paletteBits(paletteSize)
	rowBytes := (w*bits + 7) / 8

	for row := 0; row < h; row++ {
		packed := make([]byte, rowBytes)
		if _, err := io.ReadFull(r, packed); err != nil {
			return rfberr.Wrap(rfberr.KindDecode, err, "decode: read ZRLE packed row")
		}
		bitPos := 0
		for col := 0; col < w; col++ {
			idx := readPackedIndex(packed, bitPos, bits)
			bitPos += bits
			if idx >= len(palette) {
				return rfberr.New(rfberr.KindProtocolViolation, "decode: ZRLE palette index %d out of range", idx)
			}
			ctx.FB.SetPixelAt(palette[idx], x+col, y+row)
		}
	}
	return nil
}

func readPackedIndex(packed []byte, bitPos, bits int) int {
	byteIdx := bitPos / 8
	shift := 8 - bits - (bitPos % 8)
	mask := (1 << bits) - 1
	return int(packed[byteIdx]>>uint(shift)) & mask
}

// zrleRLETile reads plain run-length encoded pixels: each run is a pixel
// followed by a ZRLE run-length, until w*h pixels have been produced.
func zrleRLETile(r io.Reader, x, y, w, h int, ctx *Context) error {
	total := w * h
	produced := 0
	for produced < total {
		p, err := DecodeCPixel(r, ctx.Format)
		if err != nil {
			return rfberr.Wrap(rfberr.KindDecode, err, "decode: read ZRLE RLE pixel")
		}
		run, err := ReadRunLength(r)
		if err != nil {
			return rfberr.Wrap(rfberr.KindDecode, err, "decode: read ZRLE run length")
		}
		for i := 0; i < run && produced < total; i++ {
			ctx.FB.SetPixelAt(p, x+produced%w, y+produced/w)
			produced++
		}
	}
	return nil
}

// zrlePaletteRLETile reads palette-indexed runs: each run is a palette
// index (top bit set means "run follows", clear means a run of 1) and an
// optional ZRLE run-length.
func zrlePaletteRLETile(r io.Reader, x, y, w, h int, paletteSize int, ctx *Context) error {
	palette, err := readPalette(r, paletteSize, ctx)
	if err != nil {
		return err
	}

	total := w * h
	produced := 0
	for produced < total {
		var idxByte [1]byte
		if _, err := io.ReadFull(r, idxByte[:]); err != nil {
			return rfberr.Wrap(rfberr.KindDecode, err, "decode: read ZRLE palette-RLE index")
		}
		hasRun := idxByte[0]&0x80 != 0
		idx := int(idxByte[0] & 0x7f)
		if idx >= len(palette) {
			return rfberr.New(rfberr.KindProtocolViolation, "decode: ZRLE palette-RLE index %d out of range", idx)
		}

		run := 1
		if hasRun {
			n, err := ReadRunLength(r)
			if err != nil {
				return rfberr.Wrap(rfberr.KindDecode, err, "decode: read ZRLE palette-RLE run length")
			}
			run = n
		}
		for i := 0; i < run && produced < total; i++ {
			ctx.FB.SetPixelAt(palette[idx], x+produced%w, y+produced/w)
			produced++
		}
	}
	return nil
}
