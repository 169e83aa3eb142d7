package clientmsg

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/breeze-rmm/vncclient/internal/rfb"
)

func TestSetEncodingsDropsZRLEForWideChannelFormat(t *testing.T) {
	wide := rfb.PixelFormat{
		BitsPerPixel: 32, Depth: 32, TrueColor: true,
		RedMax: 1023, GreenMax: 1023, BlueMax: 1023,
		RedShift: 20, GreenShift: 10, BlueShift: 0,
	}
	msg := SetEncodings([]int32{rfb.EncodingRaw, rfb.EncodingZRLE, rfb.EncodingTight}, wide)

	count := binary.BigEndian.Uint16(msg[2:4])
	if count != 2 {
		t.Fatalf("count = %d, want 2 (ZRLE dropped)", count)
	}
	for i := 0; i < int(count); i++ {
		code := int32(binary.BigEndian.Uint32(msg[4+4*i : 8+4*i]))
		if code == rfb.EncodingZRLE {
			t.Fatal("ZRLE present in advertised list despite wide channel format")
		}
	}
}

func TestSetEncodingsKeepsZRLEForNarrowFormat(t *testing.T) {
	msg := SetEncodings([]int32{rfb.EncodingZRLE}, rfb.DefaultPixelFormat)
	count := binary.BigEndian.Uint16(msg[2:4])
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}

func TestQueueDrainIsFIFOAndEmptiesQueue(t *testing.T) {
	var q Queue
	q.Enqueue([]byte{1, 2, 3})
	q.Enqueue([]byte{4, 5})

	if q.Empty() {
		t.Fatal("expected non-empty queue")
	}
	out := q.Drain()
	if !bytes.Equal(out, []byte{1, 2, 3, 4, 5}) {
		t.Fatalf("drained = %v", out)
	}
	if !q.Empty() {
		t.Fatal("expected empty queue after drain")
	}
}

func TestFramebufferUpdateRequestEncoding(t *testing.T) {
	msg := FramebufferUpdateRequest(true, 1, 2, 800, 600)
	if msg[0] != rfb.CMsgFramebufferUpdateRequest || msg[1] != 1 {
		t.Fatalf("header = %v", msg[:2])
	}
	if w := binary.BigEndian.Uint16(msg[6:8]); w != 800 {
		t.Fatalf("w = %d", w)
	}
}

func TestClientCutTextEncoding(t *testing.T) {
	msg := ClientCutText([]byte("hello"))
	if n := binary.BigEndian.Uint32(msg[4:8]); n != 5 {
		t.Fatalf("length = %d", n)
	}
	if string(msg[8:]) != "hello" {
		t.Fatalf("text = %q", msg[8:])
	}
}
