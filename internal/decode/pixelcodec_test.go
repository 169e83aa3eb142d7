package decode

import (
	"bytes"
	"testing"

	"github.com/breeze-rmm/vncclient/internal/rfb"
)

func TestPixelRoundTrip(t *testing.T) {
	formats := []rfb.PixelFormat{
		rfb.DefaultPixelFormat,
		{BitsPerPixel: 16, Depth: 16, TrueColor: true, RedMax: 31, GreenMax: 63, BlueMax: 31, RedShift: 11, GreenShift: 5, BlueShift: 0},
		{BitsPerPixel: 8, Depth: 8, TrueColor: false},
	}
	for _, f := range formats {
		var buf bytes.Buffer
		if err := WritePixel(&buf, f, 0x1234); err != nil {
			t.Fatalf("WritePixel: %v", err)
		}
		got, err := ReadPixel(&buf, f)
		if err != nil {
			t.Fatalf("ReadPixel: %v", err)
		}
		mask := uint32(1)<<uint(f.BitsPerPixel) - 1
		if got != 0x1234&mask {
			t.Fatalf("format %+v: round trip got %#x, want %#x", f, got, 0x1234&mask)
		}
	}
}

func TestCPixelInvarianceLSBCaseBigEndian(t *testing.T) {
	f := rfb.PixelFormat{
		BitsPerPixel: 32, Depth: 24, TrueColor: true,
		RedMax: 255, GreenMax: 255, BlueMax: 255,
		RedShift: 16, GreenShift: 8, BlueShift: 0,
		BigEndian: true,
	}
	if !cpixelApplies(f) {
		t.Fatal("expected format to qualify for CPIXEL")
	}
	pixel := uint32(0x00A1B2C3)
	var buf bytes.Buffer
	if err := EncodeCPixel(&buf, f, pixel); err != nil {
		t.Fatalf("EncodeCPixel: %v", err)
	}
	if buf.Len() != 3 {
		t.Fatalf("expected 3-byte CPIXEL wire form, got %d bytes", buf.Len())
	}
	got, err := DecodeCPixel(&buf, f)
	if err != nil {
		t.Fatalf("DecodeCPixel: %v", err)
	}
	if got != pixel {
		t.Fatalf("round trip = %#x, want %#x", got, pixel)
	}
}

func TestCPixelInvarianceLSBCase(t *testing.T) {
	f := rfb.PixelFormat{
		BitsPerPixel: 32, Depth: 24, TrueColor: true,
		RedMax: 255, GreenMax: 255, BlueMax: 255,
		RedShift: 0, GreenShift: 8, BlueShift: 16,
		BigEndian: false,
	}
	if !cpixelApplies(f) {
		t.Fatal("expected format to qualify for CPIXEL")
	}
	pixel := uint32(0x00C3B2A1)
	var buf bytes.Buffer
	if err := EncodeCPixel(&buf, f, pixel); err != nil {
		t.Fatalf("EncodeCPixel: %v", err)
	}
	if buf.Len() != 3 {
		t.Fatalf("expected 3-byte CPIXEL wire form, got %d bytes", buf.Len())
	}
	got, err := DecodeCPixel(&buf, f)
	if err != nil {
		t.Fatalf("DecodeCPixel: %v", err)
	}
	if got != pixel {
		t.Fatalf("round trip = %#x, want %#x", got, pixel)
	}
}

func TestCPixelFallsBackForNonQualifyingFormat(t *testing.T) {
	f := rfb.PixelFormat{BitsPerPixel: 16, Depth: 16, TrueColor: true, RedMax: 31, GreenMax: 63, BlueMax: 31, RedShift: 11, GreenShift: 5, BlueShift: 0}
	var buf bytes.Buffer
	if err := EncodeCPixel(&buf, f, 0xBEEF); err != nil {
		t.Fatalf("EncodeCPixel: %v", err)
	}
	if buf.Len() != 2 {
		t.Fatalf("expected fallback to full 2-byte width, got %d bytes", buf.Len())
	}
}

func TestTPixelRoundTripDepth24(t *testing.T) {
	f := rfb.PixelFormat{
		BitsPerPixel: 32, Depth: 24, TrueColor: true,
		RedMax: 255, GreenMax: 255, BlueMax: 255,
		RedShift: 16, GreenShift: 8, BlueShift: 0,
	}
	pixel := uint32(0x112233)
	var buf bytes.Buffer
	if err := EncodeTPixel(&buf, f, pixel); err != nil {
		t.Fatalf("EncodeTPixel: %v", err)
	}
	if buf.Len() != 3 {
		t.Fatalf("expected 3-byte TPIXEL wire form, got %d bytes", buf.Len())
	}
	got, err := DecodeTPixel(&buf, f)
	if err != nil {
		t.Fatalf("DecodeTPixel: %v", err)
	}
	if got != pixel {
		t.Fatalf("round trip = %#x, want %#x", got, pixel)
	}
}

func TestTPixelFallsBackForNon24Depth(t *testing.T) {
	f := rfb.PixelFormat{BitsPerPixel: 16, Depth: 16, TrueColor: true, RedMax: 31, GreenMax: 63, BlueMax: 31, RedShift: 11, GreenShift: 5, BlueShift: 0}
	var buf bytes.Buffer
	if err := EncodeTPixel(&buf, f, 0xBEEF); err != nil {
		t.Fatalf("EncodeTPixel: %v", err)
	}
	if buf.Len() != 2 {
		t.Fatalf("expected fallback to full 2-byte width, got %d bytes", buf.Len())
	}
}
