// Package clientmsg encodes every outbound client-to-server message and
// queues it for the session goroutine to flush. The host side (anything
// calling into pkg/vnc) only ever appends to the Queue; only the session
// task drains it, mirroring internal/transport's Conn ownership split.
package clientmsg

import (
	"encoding/binary"
	"sync"

	"github.com/breeze-rmm/vncclient/internal/rfb"
)

// Queue is an unbounded, FIFO, mutex-guarded outbound byte buffer. Encode
// functions append whole messages to it; the session task drains the
// entire buffer before every blocking read of the next server message.
type Queue struct {
	mu  sync.Mutex
	buf []byte
}

// Enqueue appends msg to the queue atomically; messages are never
// interleaved mid-write.
func (q *Queue) Enqueue(msg []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.buf = append(q.buf, msg...)
}

// Drain returns everything queued so far and empties the queue. The
// returned slice is safe to write to the transport without holding the
// lock.
func (q *Queue) Drain() []byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) == 0 {
		return nil
	}
	out := q.buf
	q.buf = nil
	return out
}

// Empty reports whether anything is pending, for the session's
// non-blocking xmit-then-read loop.
func (q *Queue) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf) == 0
}

// SetPixelFormat encodes message type 0: 1 type byte, 3 padding, the
// 16-byte PixelFormat.
func SetPixelFormat(f rfb.PixelFormat) []byte {
	buf := make([]byte, 20)
	buf[0] = rfb.CMsgSetPixelFormat
	f.Encode(buf[4:20])
	return buf
}

// SetEncodings encodes message type 2: 1 type byte, 1 padding, a u16
// count, then that many i32 encoding codes. If format has any channel
// max>255 at depth 32, ZRLE is silently dropped from the advertised list,
// since ZRLE's CPIXEL form would be ambiguous for such a format.
func SetEncodings(encodings []int32, format rfb.PixelFormat) []byte {
	list := encodings
	if dropZRLE(format) {
		filtered := make([]int32, 0, len(encodings))
		for _, e := range encodings {
			if e != rfb.EncodingZRLE {
				filtered = append(filtered, e)
			}
		}
		list = filtered
	}

	buf := make([]byte, 4+4*len(list))
	buf[0] = rfb.CMsgSetEncodings
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(list)))
	for i, e := range list {
		binary.BigEndian.PutUint32(buf[4+4*i:8+4*i], uint32(e))
	}
	return buf
}

func dropZRLE(f rfb.PixelFormat) bool {
	if f.Depth != 32 {
		return false
	}
	return f.RedMax > 255 || f.GreenMax > 255 || f.BlueMax > 255
}

// FramebufferUpdateRequest encodes message type 3: 1 type byte, 1
// incremental byte, 4 u16 geometry fields.
func FramebufferUpdateRequest(incremental bool, x, y, w, h int) []byte {
	buf := make([]byte, 10)
	buf[0] = rfb.CMsgFramebufferUpdateRequest
	if incremental {
		buf[1] = 1
	}
	binary.BigEndian.PutUint16(buf[2:4], uint16(x))
	binary.BigEndian.PutUint16(buf[4:6], uint16(y))
	binary.BigEndian.PutUint16(buf[6:8], uint16(w))
	binary.BigEndian.PutUint16(buf[8:10], uint16(h))
	return buf
}

// KeyEvent encodes message type 4, the legacy 8-byte form: 1 type byte, a
// u8 down-flag, 2 padding bytes, a u32 X11 keysym.
func KeyEvent(down bool, key uint32) []byte {
	buf := make([]byte, 8)
	buf[0] = rfb.CMsgKeyEvent
	if down {
		buf[1] = 1
	}
	binary.BigEndian.PutUint32(buf[4:8], key)
	return buf
}

// QEMUExtendedKeyEvent encodes the QEMU extension's 12-byte key event: 1
// type byte, 1 QEMU subtype byte (0, reused from KeyEvent's slot), a u16
// down-flag, a u32 X11 keysym, and a u32 raw XT scancode — gated on the
// ExtKeyEvent pseudo-encoding capability the server must have advertised.
func QEMUExtendedKeyEvent(down bool, key, scancode uint32) []byte {
	buf := make([]byte, 12)
	buf[0] = rfb.CMsgQEMU
	buf[1] = 0
	if down {
		binary.BigEndian.PutUint16(buf[2:4], 1)
	}
	binary.BigEndian.PutUint32(buf[4:8], key)
	binary.BigEndian.PutUint32(buf[8:12], scancode)
	return buf
}

// PointerEvent encodes message type 5: 1 type byte, a button-mask byte,
// 2 u16 coordinates.
func PointerEvent(mask byte, x, y int) []byte {
	buf := make([]byte, 6)
	buf[0] = rfb.CMsgPointerEvent
	buf[1] = mask
	binary.BigEndian.PutUint16(buf[2:4], uint16(x))
	binary.BigEndian.PutUint16(buf[4:6], uint16(y))
	return buf
}

// ClientCutText encodes message type 6: 1 type byte, 3 padding, a u32
// length, then the raw text bytes.
func ClientCutText(text []byte) []byte {
	buf := make([]byte, 8+len(text))
	buf[0] = rfb.CMsgClientCutText
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(text)))
	copy(buf[8:], text)
	return buf
}

// AudioFormat is the QEMU audio extension's SetFormat submessage body that
// QEMUAudioSetFormat encodes after the common QEMU/audio subtype header.
type AudioFormat struct {
	SampleFormat byte
	Channels     byte
	FrequencyHz  uint32
}

// QEMUAudioSetFormat encodes op=SetFormat (the source's numbering reuses
// Start=1/Stop=0 for on/off and a distinct "set format" submessage ahead
// of them; this client sends it only when the embedder sets a format).
func QEMUAudioSetFormat(f AudioFormat) []byte {
	buf := make([]byte, 4+1+1+4)
	buf[0] = rfb.CMsgQEMU
	buf[1] = rfb.QEMUSubtypeAudio
	binary.BigEndian.PutUint16(buf[2:4], 4) // SetFormat op
	buf[4] = f.SampleFormat
	buf[5] = f.Channels
	binary.BigEndian.PutUint32(buf[6:10], f.FrequencyHz)
	return buf
}

// QEMUAudioEnable encodes op=Start: audio streaming begins.
func QEMUAudioEnable() []byte {
	return qemuAudioOp(rfb.QEMUAudioOpStart)
}

// QEMUAudioDisable encodes op=Stop: audio streaming ends.
func QEMUAudioDisable() []byte {
	return qemuAudioOp(rfb.QEMUAudioOpStop)
}

func qemuAudioOp(op uint16) []byte {
	buf := make([]byte, 4)
	buf[0] = rfb.CMsgQEMU
	buf[1] = rfb.QEMUSubtypeAudio
	binary.BigEndian.PutUint16(buf[2:4], op)
	return buf
}
