package decode

import (
	"bytes"
	"testing"
)

func TestCintRoundTrip(t *testing.T) {
	for n := 0; n < 1<<22; n += 997 {
		var buf bytes.Buffer
		if err := WriteCint(&buf, n); err != nil {
			t.Fatalf("WriteCint(%d): %v", n, err)
		}
		got, err := ReadCint(&buf)
		if err != nil {
			t.Fatalf("ReadCint after WriteCint(%d): %v", n, err)
		}
		if got != n {
			t.Fatalf("round trip %d -> %d", n, got)
		}
	}
}

func TestCintBoundaryValues(t *testing.T) {
	for _, n := range []int{0, 1, 0x7f, 0x80, 0x3fff, 0x4000, (1 << 22) - 1} {
		var buf bytes.Buffer
		if err := WriteCint(&buf, n); err != nil {
			t.Fatalf("WriteCint(%d): %v", n, err)
		}
		got, err := ReadCint(&buf)
		if err != nil {
			t.Fatalf("ReadCint: %v", err)
		}
		if got != n {
			t.Fatalf("round trip %d -> %d", n, got)
		}
	}
}

func TestRunLengthRoundTrip(t *testing.T) {
	for _, run := range []int{1, 2, 254, 255, 256, 510, 511, 1000} {
		var buf bytes.Buffer
		if err := WriteRunLength(&buf, run); err != nil {
			t.Fatalf("WriteRunLength(%d): %v", run, err)
		}

		wantFF := (run - 1) / 255
		wantTrailer := (run - 1) % 255
		gotBytes := buf.Len()
		if gotBytes != wantFF+1 {
			t.Fatalf("run %d: encoded in %d bytes, want %d", run, gotBytes, wantFF+1)
		}
		encoded := append([]byte(nil), buf.Bytes()...)
		for i := 0; i < wantFF; i++ {
			if encoded[i] != 0xff {
				t.Fatalf("run %d: byte %d = %#x, want 0xff", run, i, encoded[i])
			}
		}
		if encoded[wantFF] != byte(wantTrailer) {
			t.Fatalf("run %d: trailer = %#x, want %#x", run, encoded[wantFF], wantTrailer)
		}

		got, err := ReadRunLength(&buf)
		if err != nil {
			t.Fatalf("ReadRunLength: %v", err)
		}
		if got != run {
			t.Fatalf("round trip %d -> %d", run, got)
		}
	}
}
