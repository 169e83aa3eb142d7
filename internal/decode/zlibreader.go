package decode

import (
	"io"

	"github.com/breeze-rmm/vncclient/internal/rfberr"
	"github.com/breeze-rmm/vncclient/internal/zlibstream"
)

// zlibTileReader adapts a zlibstream.Context, which decompresses in
// caller-chosen chunk sizes, into a plain io.Reader so ZRLE/Tight tile
// parsing can use the same ReadPixel/ReadCint/io.ReadFull helpers raw
// rectangles use. The whole rectangle's compressed payload is handed to
// the context on the first Read; every Read after that only asks for more
// decompressed output from the same stream.
type zlibTileReader struct {
	ctx        *zlibstream.Context
	compressed []byte
}

func newZlibTileReader(ctx *zlibstream.Context, compressed []byte) *zlibTileReader {
	return &zlibTileReader{ctx: ctx, compressed: compressed}
}

func (z *zlibTileReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	out, err := z.ctx.Decompress(z.compressed, len(p))
	z.compressed = nil
	if err != nil {
		return 0, rfberr.Wrap(rfberr.KindDecode, err, "decode: inflate tile stream")
	}
	copy(p, out)
	return len(p), nil
}

var _ io.Reader = (*zlibTileReader)(nil)
