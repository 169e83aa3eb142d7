package zlibstream

import (
	"bytes"
	"compress/zlib"
	"testing"
)

func compressAll(t *testing.T, chunks ...[]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	for _, c := range chunks {
		if _, err := w.Write(c); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := w.Flush(); err != nil {
			t.Fatalf("flush: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return buf.Bytes()
}

func TestContextDecompressSingleShot(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAB}, 1000)
	compressed := compressAll(t, payload)

	var ctx Context
	out, err := ctx.Decompress(compressed, len(payload))
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !bytes.Equal(out, payload) {
		t.Fatal("decompressed output mismatch")
	}
}

func TestContextDecompressAcrossMultipleRectangles(t *testing.T) {
	// Simulate the server's compressor carrying its dictionary across two
	// rectangles, each delivered as its own compressed chunk but against
	// the same zlib stream.
	a := bytes.Repeat([]byte{0x11}, 300)
	b := bytes.Repeat([]byte{0x22}, 500)

	var full bytes.Buffer
	w := zlib.NewWriter(&full)
	w.Write(a)
	w.Flush()
	aEnd := full.Len()
	w.Write(b)
	w.Flush()
	w.Close()
	all := full.Bytes()

	var ctx Context
	out1, err := ctx.Decompress(all[:aEnd], len(a))
	if err != nil {
		t.Fatalf("decompress rect 1: %v", err)
	}
	if !bytes.Equal(out1, a) {
		t.Fatal("rect 1 mismatch")
	}

	out2, err := ctx.Decompress(all[aEnd:], len(b))
	if err != nil {
		t.Fatalf("decompress rect 2: %v", err)
	}
	if !bytes.Equal(out2, b) {
		t.Fatal("rect 2 mismatch")
	}
}

func TestContextResetStartsFreshStream(t *testing.T) {
	payload := bytes.Repeat([]byte{0x33}, 50)
	compressed := compressAll(t, payload)

	var ctx Context
	if _, err := ctx.Decompress(compressed, len(payload)); err != nil {
		t.Fatalf("first decompress: %v", err)
	}
	ctx.Reset()

	compressed2 := compressAll(t, payload)
	out, err := ctx.Decompress(compressed2, len(payload))
	if err != nil {
		t.Fatalf("decompress after reset: %v", err)
	}
	if !bytes.Equal(out, payload) {
		t.Fatal("decompressed output mismatch after reset")
	}
}

func TestPoolResetAllClearsEveryContext(t *testing.T) {
	var p Pool
	payload := []byte{0x01, 0x02, 0x03}
	compressed := compressAll(t, payload)

	if _, err := p.ZRLE.Decompress(compressed, len(payload)); err != nil {
		t.Fatalf("zrle decompress: %v", err)
	}
	if _, err := p.Tight[0].Decompress(compressed, len(payload)); err != nil {
		t.Fatalf("tight[0] decompress: %v", err)
	}

	p.ResetAll()

	if p.ZRLE.reader != nil {
		t.Fatal("expected ZRLE reader to be nil after ResetAll")
	}
	if p.Tight[0].reader != nil {
		t.Fatal("expected Tight[0] reader to be nil after ResetAll")
	}
}
