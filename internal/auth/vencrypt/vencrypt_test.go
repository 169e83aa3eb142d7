package vencrypt

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/breeze-rmm/vncclient/internal/rfb"
)

type fakeRW struct {
	r bytes.Reader
	w bytes.Buffer
}

func newFakeRW(serverBytes []byte) *fakeRW {
	f := &fakeRW{}
	f.r = *bytes.NewReader(serverBytes)
	return f
}

func (f *fakeRW) Read(p []byte) (int, error)  { return f.r.Read(p) }
func (f *fakeRW) Write(p []byte) (int, error) { return f.w.Write(p) }

func encodeSubauths(codes ...int) []byte {
	var buf bytes.Buffer
	buf.WriteByte(byte(len(codes)))
	for _, c := range codes {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], uint32(c))
		buf.Write(b[:])
	}
	return buf.Bytes()
}

func TestNegotiateVeNCryptPicksFirstPreferredOffered(t *testing.T) {
	var server bytes.Buffer
	server.WriteByte(0) // major
	server.WriteByte(2) // minor
	server.WriteByte(0) // version-ack status
	server.Write(encodeSubauths(rfb.VeNCryptTLSVNC, rfb.VeNCryptX509VNC))
	server.WriteByte(0) // subauth-choice ack

	rw := newFakeRW(server.Bytes())
	chosen, err := NegotiateVeNCrypt(rw, []int{rfb.VeNCryptX509VNC, rfb.VeNCryptTLSVNC})
	if err != nil {
		t.Fatalf("negotiate: %v", err)
	}
	if chosen != rfb.VeNCryptX509VNC {
		t.Fatalf("chosen = %d, want %d", chosen, rfb.VeNCryptX509VNC)
	}

	written := rw.w.Bytes()
	if written[0] != 0 || written[1] != 2 {
		t.Fatalf("expected version echo 0.2, got %v", written[:2])
	}
	gotChoice := binary.BigEndian.Uint32(written[2:6])
	if int(gotChoice) != rfb.VeNCryptX509VNC {
		t.Fatalf("wrote choice %d, want %d", gotChoice, rfb.VeNCryptX509VNC)
	}
}

func TestNegotiateVeNCryptRejectsWrongVersion(t *testing.T) {
	server := []byte{0, 3, 0}
	rw := newFakeRW(server)
	if _, err := NegotiateVeNCrypt(rw, []int{rfb.VeNCryptPlain}); err == nil {
		t.Fatal("expected error for unsupported version")
	}
}

func TestNegotiateVeNCryptFailsWhenNothingAcceptable(t *testing.T) {
	var server bytes.Buffer
	server.WriteByte(0)
	server.WriteByte(2)
	server.WriteByte(0)
	server.Write(encodeSubauths(9999))

	rw := newFakeRW(server.Bytes())
	if _, err := NegotiateVeNCrypt(rw, []int{rfb.VeNCryptX509VNC}); err == nil {
		t.Fatal("expected error when no offered subauth is acceptable")
	}
}

func TestIsX509(t *testing.T) {
	if !IsX509(rfb.VeNCryptX509SASL) {
		t.Fatal("X509SASL should be x509")
	}
	if IsX509(rfb.VeNCryptTLSSASL) {
		t.Fatal("TLSSASL should not be x509")
	}
}

func TestInnerAuth(t *testing.T) {
	cases := map[int]int{
		rfb.VeNCryptTLSNone:  rfb.AuthNone,
		rfb.VeNCryptX509VNC:  rfb.AuthVNC,
		rfb.VeNCryptX509SASL: rfb.AuthSASL,
		rfb.VeNCryptPlain:    InnerAuthPlain,
	}
	for subauth, want := range cases {
		got, err := InnerAuth(subauth)
		if err != nil {
			t.Fatalf("InnerAuth(%d): %v", subauth, err)
		}
		if got != want {
			t.Fatalf("InnerAuth(%d) = %d, want %d", subauth, got, want)
		}
	}
}

func TestNegotiateLegacyTLSPrefersNoneOverVNC(t *testing.T) {
	var server bytes.Buffer
	server.WriteByte(2)
	server.WriteByte(rfb.AuthVNC)
	server.WriteByte(rfb.AuthNone)

	rw := newFakeRW(server.Bytes())
	chosen, err := NegotiateLegacyTLS(rw)
	if err != nil {
		t.Fatalf("negotiate: %v", err)
	}
	if chosen != rfb.AuthNone {
		t.Fatalf("chosen = %d, want AuthNone", chosen)
	}
}
