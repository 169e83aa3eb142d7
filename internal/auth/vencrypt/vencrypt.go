// Package vencrypt drives the two TLS-bearing auth negotiations RFB
// defines: the legacy single-byte "TLS" auth type (18) and the layered
// VeNCrypt auth type (19). Both end the same way — a TLS handshake
// followed by an inner auth recursion — but negotiate which subauth to use
// differently, so each gets its own read/write sequence here. The actual
// TLS handshake is left to internal/transport; this package only decides
// which credentials that handshake should use.
package vencrypt

import (
	"encoding/binary"
	"io"

	"github.com/breeze-rmm/vncclient/internal/rfb"
	"github.com/breeze-rmm/vncclient/internal/rfberr"
)

// Version is the VeNCrypt protocol version the client announces and
// requires the server to echo back. The source compares major/minor with
// && where || was likely intended; this client requires the exact pair.
var Version = struct{ Major, Minor byte }{Major: 0, Minor: 2}

// NegotiateVeNCrypt performs the VeNCrypt version handshake and subauth
// selection (RFB auth type 19). preferred lists acceptable subauth codes in
// priority order; the first one the server also offers is chosen. Returns
// the chosen subauth code (one of rfb.VeNCrypt*).
func NegotiateVeNCrypt(rw io.ReadWriter, preferred []int) (int, error) {
	var verBuf [2]byte
	if _, err := io.ReadFull(rw, verBuf[:]); err != nil {
		return 0, rfberr.Wrap(rfberr.KindNetworkIO, err, "vencrypt: read server version")
	}
	if verBuf[0] != Version.Major || verBuf[1] != Version.Minor {
		return 0, rfberr.New(rfberr.KindProtocolViolation, "vencrypt: unsupported server version %d.%d", verBuf[0], verBuf[1])
	}
	if _, err := rw.Write(verBuf[:]); err != nil {
		return 0, rfberr.Wrap(rfberr.KindNetworkIO, err, "vencrypt: echo version")
	}

	var status [1]byte
	if _, err := io.ReadFull(rw, status[:]); err != nil {
		return 0, rfberr.Wrap(rfberr.KindNetworkIO, err, "vencrypt: read version ack")
	}
	if status[0] != 0 {
		return 0, rfberr.New(rfberr.KindAuthFailed, "vencrypt: server rejected version 0.2")
	}

	var countBuf [1]byte
	if _, err := io.ReadFull(rw, countBuf[:]); err != nil {
		return 0, rfberr.Wrap(rfberr.KindNetworkIO, err, "vencrypt: read subauth count")
	}
	count := int(countBuf[0])
	if count == 0 {
		return 0, rfberr.New(rfberr.KindAuthUnsupported, "vencrypt: server offered no subauths")
	}

	offered := make([]int, count)
	raw := make([]byte, count*4)
	if _, err := io.ReadFull(rw, raw); err != nil {
		return 0, rfberr.Wrap(rfberr.KindNetworkIO, err, "vencrypt: read subauth list")
	}
	for i := 0; i < count; i++ {
		offered[i] = int(binary.BigEndian.Uint32(raw[i*4 : i*4+4]))
	}

	chosen := -1
	for _, p := range preferred {
		for _, o := range offered {
			if p == o {
				chosen = p
				break
			}
		}
		if chosen != -1 {
			break
		}
	}
	if chosen == -1 {
		return 0, rfberr.New(rfberr.KindAuthUnsupported, "vencrypt: no acceptable subauth in %v", offered)
	}

	var choiceBuf [4]byte
	binary.BigEndian.PutUint32(choiceBuf[:], uint32(chosen))
	if _, err := rw.Write(choiceBuf[:]); err != nil {
		return 0, rfberr.Wrap(rfberr.KindNetworkIO, err, "vencrypt: write subauth choice")
	}

	var ack [1]byte
	if _, err := io.ReadFull(rw, ack[:]); err != nil {
		return 0, rfberr.Wrap(rfberr.KindNetworkIO, err, "vencrypt: read subauth ack")
	}
	if ack[0] != 0 {
		return 0, rfberr.New(rfberr.KindAuthFailed, "vencrypt: server rejected subauth choice")
	}

	return chosen, nil
}

// IsX509 reports whether subauth requires an x509-verified TLS session, as
// opposed to an anonymous one.
func IsX509(subauth int) bool {
	switch subauth {
	case rfb.VeNCryptX509None, rfb.VeNCryptX509VNC, rfb.VeNCryptX509Plain, rfb.VeNCryptX509SASL:
		return true
	}
	return false
}

// InnerAuth reports which auth recursion follows the TLS handshake for a
// VeNCrypt subauth: one of rfb.AuthNone, rfb.AuthVNC, rfb.AuthSASL, or a
// special "Plain" marker (-1, since Plain has no RFB auth-type code of its
// own and is handled inline by the VeNCrypt layer).
const InnerAuthPlain = -1

func InnerAuth(subauth int) (int, error) {
	switch subauth {
	case rfb.VeNCryptTLSNone, rfb.VeNCryptX509None:
		return rfb.AuthNone, nil
	case rfb.VeNCryptTLSVNC, rfb.VeNCryptX509VNC:
		return rfb.AuthVNC, nil
	case rfb.VeNCryptTLSSASL, rfb.VeNCryptX509SASL:
		return rfb.AuthSASL, nil
	case rfb.VeNCryptPlain, rfb.VeNCryptTLSPlain, rfb.VeNCryptX509Plain:
		return InnerAuthPlain, nil
	default:
		return 0, rfberr.New(rfberr.KindAuthUnsupported, "vencrypt: unknown subauth %d", subauth)
	}
}

// NegotiateLegacyTLS performs the legacy single-byte "TLS" auth type (18)
// subauth selection: after the TLS handshake (always anonymous-DH for this
// legacy path), the server sends a count then that many one-byte RFB auth
// type codes to recurse into.
func NegotiateLegacyTLS(rw io.ReadWriter) (int, error) {
	var countBuf [1]byte
	if _, err := io.ReadFull(rw, countBuf[:]); err != nil {
		return 0, rfberr.Wrap(rfberr.KindNetworkIO, err, "tls-auth: read subtype count")
	}
	count := int(countBuf[0])
	if count == 0 {
		return 0, rfberr.New(rfberr.KindAuthUnsupported, "tls-auth: server offered no subtypes")
	}
	offered := make([]byte, count)
	if _, err := io.ReadFull(rw, offered); err != nil {
		return 0, rfberr.Wrap(rfberr.KindNetworkIO, err, "tls-auth: read subtype list")
	}

	// Prefer None, then VNC, then SASL — the only three recursions RFB
	// defines for this legacy path.
	for _, want := range []byte{rfb.AuthNone, rfb.AuthVNC, rfb.AuthSASL} {
		for _, o := range offered {
			if o == want {
				if _, err := rw.Write([]byte{want}); err != nil {
					return 0, rfberr.Wrap(rfberr.KindNetworkIO, err, "tls-auth: write subtype choice")
				}
				return int(want), nil
			}
		}
	}
	return 0, rfberr.New(rfberr.KindAuthUnsupported, "tls-auth: no acceptable subtype in %v", offered)
}
