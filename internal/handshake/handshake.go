// Package handshake drives the RFB connection from the initial version
// banner through authentication to the point the framebuffer's initial
// geometry and name are known — the VersionExchange, AuthOffer, AuthRun,
// AuthResult, and Initialization states of SPEC_FULL.md §4.5. It asks its
// host for decisions it cannot make alone (which auth type, which
// credential) via internal/signalbus rather than invoking a callback
// mid-stack, so the whole state machine reads top to bottom like ordinary
// sequential code — the same readability the source gets from cooperative
// coroutines, without needing one.
package handshake

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/breeze-rmm/vncclient/internal/auth/ard"
	"github.com/breeze-rmm/vncclient/internal/auth/mslogon"
	"github.com/breeze-rmm/vncclient/internal/auth/saslauth"
	"github.com/breeze-rmm/vncclient/internal/auth/tlsauth"
	"github.com/breeze-rmm/vncclient/internal/auth/vencrypt"
	"github.com/breeze-rmm/vncclient/internal/auth/vncauth"
	"github.com/breeze-rmm/vncclient/internal/logging"
	"github.com/breeze-rmm/vncclient/internal/rfb"
	"github.com/breeze-rmm/vncclient/internal/rfberr"
	"github.com/breeze-rmm/vncclient/internal/secmem"
	"github.com/breeze-rmm/vncclient/internal/signalbus"
	"github.com/breeze-rmm/vncclient/internal/transport"
)

var log = logging.L("handshake")

// Policy carries the configuration the embedder supplies up front:
// preferred auth types in priority order, TLS/VeNCrypt credential
// discovery parameters, and SASL identity. Passwords are fetched lazily
// through the signal bus rather than stored here, except when the
// embedder's config already supplied them (the common non-interactive
// case); Policy.Credential is consulted first and the bus is only used
// when it returns an empty string.
type Policy struct {
	PreferredAuthTypes []int
	PreferredSubauths  []int

	TLSPolicy tlsauth.Policy

	SASLHost     string
	SASLUsername string

	Credential func(field signalbus.CredentialField) string
}

// Result is everything the Initialization state produces, needed to stand
// up a Framebuffer and start the message loop.
type Result struct {
	Version       rfb.Version
	Width, Height int
	PixelFormat   rfb.PixelFormat
	Name          string
}

// Run executes the full handshake over conn, which must be a
// net.Conn-shaped, deadline-capable stream (transport.Conn satisfies this,
// but net.Conn is used here directly so this package can upgrade it to a
// *tls.Conn internally without importing transport). It returns the
// connection to use from here on — conn itself, or a TLS connection over
// it — since session ownership of the transport shifts to the caller only
// after the handshake installs any layered auth.
func Run(ctx context.Context, conn net.Conn, shared bool, policy Policy, bus *signalbus.Bus) (net.Conn, Result, error) {
	version, err := negotiateVersion(conn)
	if err != nil {
		return conn, Result{}, err
	}

	authType, err := negotiateAuthType(ctx, conn, version, policy, bus)
	if err != nil {
		return conn, Result{}, err
	}

	conn, err = runAuth(ctx, conn, authType, version, policy, bus)
	if err != nil {
		return conn, Result{}, err
	}

	if err := checkAuthResult(conn, version, authType); err != nil {
		bus.Notify(ctx, signalbus.Signal{Kind: signalbus.KindAuthFailure, Reason: err.Error(), Err: err})
		return conn, Result{}, err
	}

	result, err := initialize(conn, shared, version)
	if err != nil {
		return conn, Result{}, err
	}

	bus.Notify(ctx, signalbus.Signal{Kind: signalbus.KindConnected})
	return conn, result, nil
}

func negotiateVersion(conn io.ReadWriter) (rfb.Version, error) {
	var banner [12]byte
	if _, err := io.ReadFull(conn, banner[:]); err != nil {
		return rfb.Version{}, rfberr.Wrap(rfberr.KindNetworkIO, err, "handshake: read version banner")
	}

	var major, minor int
	if _, err := fmt.Sscanf(string(banner[:]), "RFB %03d.%03d\n", &major, &minor); err != nil {
		return rfb.Version{}, rfberr.New(rfberr.KindProtocolViolation, "handshake: malformed version banner %q", banner[:])
	}
	server := rfb.Version{Major: major, Minor: minor}
	if server.Major < 3 || (server.Major == 3 && server.Minor < 3) {
		return rfb.Version{}, rfberr.New(rfberr.KindProtocolViolation, "handshake: server version %d.%d older than RFB 3.3", major, minor)
	}

	pinned := server.Min(rfb.Supported)
	out := []byte(fmt.Sprintf("RFB %03d.%03d\n", pinned.Major, pinned.Minor))
	if _, err := conn.Write(out); err != nil {
		return rfb.Version{}, rfberr.Wrap(rfberr.KindNetworkIO, err, "handshake: write version banner")
	}

	log.Debug("version negotiated", "server", fmt.Sprintf("%d.%d", major, minor), "pinned", fmt.Sprintf("%d.%d", pinned.Major, pinned.Minor))
	return pinned, nil
}

func negotiateAuthType(ctx context.Context, conn io.ReadWriter, version rfb.Version, policy Policy, bus *signalbus.Bus) (int, error) {
	var offered []int
	if version.Minor < 7 {
		var buf [4]byte
		if _, err := io.ReadFull(conn, buf[:]); err != nil {
			return 0, rfberr.Wrap(rfberr.KindNetworkIO, err, "handshake: read 3.3 auth type")
		}
		offered = []int{int(binary.BigEndian.Uint32(buf[:]))}
	} else {
		var countBuf [1]byte
		if _, err := io.ReadFull(conn, countBuf[:]); err != nil {
			return 0, rfberr.Wrap(rfberr.KindNetworkIO, err, "handshake: read auth type count")
		}
		count := int(countBuf[0])
		if count == 0 {
			return 0, rfberr.New(rfberr.KindAuthUnsupported, "handshake: server offered no auth types")
		}
		types := make([]byte, count)
		if _, err := io.ReadFull(conn, types); err != nil {
			return 0, rfberr.Wrap(rfberr.KindNetworkIO, err, "handshake: read auth type list")
		}
		for _, t := range types {
			offered = append(offered, int(t))
		}
	}

	chosen := choosePreferred(offered, policy.PreferredAuthTypes)
	if chosen == -1 {
		reply, err := bus.Ask(ctx, signalbus.Signal{Kind: signalbus.KindAuthChooseType, OfferedAuthTypes: offered})
		if err != nil {
			return 0, rfberr.Wrap(rfberr.KindAuthUnsupported, err, "handshake: no auth type chosen")
		}
		chosen = reply.AuthType
	}

	if version.Minor >= 7 {
		if _, err := conn.Write([]byte{byte(chosen)}); err != nil {
			return 0, rfberr.Wrap(rfberr.KindNetworkIO, err, "handshake: write chosen auth type")
		}
	}
	return chosen, nil
}

func choosePreferred(offered, preferred []int) int {
	for _, p := range preferred {
		for _, o := range offered {
			if p == o {
				return p
			}
		}
	}
	if len(offered) == 1 {
		return offered[0]
	}
	return -1
}

func credential(ctx context.Context, policy Policy, bus *signalbus.Bus, field signalbus.CredentialField) (string, error) {
	if policy.Credential != nil {
		if v := policy.Credential(field); v != "" {
			return v, nil
		}
	}
	reply, err := bus.Ask(ctx, signalbus.Signal{Kind: signalbus.KindCredentialNeeded, CredentialField: field})
	if err != nil {
		return "", rfberr.Wrap(rfberr.KindAuthFailed, err, "handshake: credential not supplied")
	}
	return reply.Credential, nil
}

func runAuth(ctx context.Context, conn net.Conn, authType int, version rfb.Version, policy Policy, bus *signalbus.Bus) (net.Conn, error) {
	switch authType {
	case rfb.AuthNone:
		return conn, nil

	case rfb.AuthVNC:
		return conn, runVNCAuth(ctx, conn, policy, bus)

	case rfb.AuthMSLogon:
		return conn, runMSLogonAuth(ctx, conn, policy, bus)

	case rfb.AuthARD:
		return conn, runARDAuth(ctx, conn, policy, bus)

	case rfb.AuthTLS:
		return runLegacyTLSAuth(ctx, conn, version, policy, bus)

	case rfb.AuthVeNCrypt:
		return runVeNCryptAuth(ctx, conn, version, policy, bus)

	case rfb.AuthSASL:
		return conn, runSASLAuth(ctx, conn, false, 0, policy, bus)

	default:
		return conn, rfberr.New(rfberr.KindAuthUnsupported, "handshake: unsupported auth type %d", authType)
	}
}

func runVNCAuth(ctx context.Context, conn io.ReadWriter, policy Policy, bus *signalbus.Bus) error {
	var challenge [vncauth.ChallengeSize]byte
	if _, err := io.ReadFull(conn, challenge[:]); err != nil {
		return rfberr.Wrap(rfberr.KindNetworkIO, err, "vnc auth: read challenge")
	}

	password, err := credential(ctx, policy, bus, signalbus.CredentialPassword)
	if err != nil {
		return err
	}
	passwordSecret := secmem.NewSecureString(password)
	defer passwordSecret.Zero()

	response, err := vncauth.Respond(challenge[:], passwordSecret.String())
	if err != nil {
		return err
	}
	if _, err := conn.Write(response); err != nil {
		return rfberr.Wrap(rfberr.KindNetworkIO, err, "vnc auth: write response")
	}
	return nil
}

func runMSLogonAuth(ctx context.Context, conn io.ReadWriter, policy Policy, bus *signalbus.Bus) error {
	var params mslogon.ServerParams
	params.Generator = make([]byte, mslogon.FieldSize)
	params.Modulus = make([]byte, mslogon.FieldSize)
	params.ServerPub = make([]byte, mslogon.FieldSize)
	for _, field := range [][]byte{params.Generator, params.Modulus, params.ServerPub} {
		if _, err := io.ReadFull(conn, field); err != nil {
			return rfberr.Wrap(rfberr.KindNetworkIO, err, "mslogon: read DH parameters")
		}
	}

	username, err := credential(ctx, policy, bus, signalbus.CredentialUsername)
	if err != nil {
		return err
	}
	password, err := credential(ctx, policy, bus, signalbus.CredentialPassword)
	if err != nil {
		return err
	}
	passwordSecret := secmem.NewSecureString(password)
	defer passwordSecret.Zero()

	resp, err := mslogon.Negotiate(params, nil, username, passwordSecret.String())
	if err != nil {
		return err
	}
	if _, err := conn.Write(resp.ClientPub); err != nil {
		return rfberr.Wrap(rfberr.KindNetworkIO, err, "mslogon: write client pub")
	}
	if _, err := conn.Write(resp.EncryptedUsername); err != nil {
		return rfberr.Wrap(rfberr.KindNetworkIO, err, "mslogon: write encrypted username")
	}
	if _, err := conn.Write(resp.EncryptedPassword); err != nil {
		return rfberr.Wrap(rfberr.KindNetworkIO, err, "mslogon: write encrypted password")
	}
	return nil
}

func runARDAuth(ctx context.Context, conn io.ReadWriter, policy Policy, bus *signalbus.Bus) error {
	var genBuf [2]byte
	if _, err := io.ReadFull(conn, genBuf[:]); err != nil {
		return rfberr.Wrap(rfberr.KindNetworkIO, err, "ard: read generator length")
	}
	var keyLenBuf [2]byte
	if _, err := io.ReadFull(conn, keyLenBuf[:]); err != nil {
		return rfberr.Wrap(rfberr.KindNetworkIO, err, "ard: read key length")
	}
	keyLen := int(binary.BigEndian.Uint16(keyLenBuf[:]))
	if keyLen <= 0 || keyLen > 4096 {
		return rfberr.New(rfberr.KindProtocolViolation, "ard: implausible key length %d", keyLen)
	}

	modulus := make([]byte, keyLen)
	if _, err := io.ReadFull(conn, modulus); err != nil {
		return rfberr.Wrap(rfberr.KindNetworkIO, err, "ard: read modulus")
	}
	serverPub := make([]byte, keyLen)
	if _, err := io.ReadFull(conn, serverPub); err != nil {
		return rfberr.Wrap(rfberr.KindNetworkIO, err, "ard: read server public key")
	}

	username, err := credential(ctx, policy, bus, signalbus.CredentialUsername)
	if err != nil {
		return err
	}
	password, err := credential(ctx, policy, bus, signalbus.CredentialPassword)
	if err != nil {
		return err
	}
	passwordSecret := secmem.NewSecureString(password)
	defer passwordSecret.Zero()

	resp, err := ard.Negotiate(ard.ServerParams{Generator: genBuf[:], Modulus: modulus, ServerPub: serverPub}, nil, username, passwordSecret.String())
	if err != nil {
		return err
	}
	if _, err := conn.Write(resp.Ciphertext); err != nil {
		return rfberr.Wrap(rfberr.KindNetworkIO, err, "ard: write ciphertext")
	}
	if _, err := conn.Write(resp.ClientPub); err != nil {
		return rfberr.Wrap(rfberr.KindNetworkIO, err, "ard: write client pub")
	}
	return nil
}

func runLegacyTLSAuth(ctx context.Context, conn net.Conn, version rfb.Version, policy Policy, bus *signalbus.Bus) (net.Conn, error) {
	tlsConn, err := tlsauth.Upgrade(ctx, conn, false, tlsauth.Policy{
		ServerHost:    policy.TLSPolicy.ServerHost,
		AnonymousOnly: true,
	})
	if err != nil {
		return conn, err
	}

	subtype, err := vencrypt.NegotiateLegacyTLS(tlsConn)
	if err != nil {
		return tlsConn, err
	}

	switch subtype {
	case rfb.AuthNone:
		return tlsConn, nil
	case rfb.AuthVNC:
		return tlsConn, runVNCAuth(ctx, tlsConn, policy, bus)
	case rfb.AuthSASL:
		return tlsConn, runSASLAuth(ctx, tlsConn, true, cipherBits(tlsConn), policy, bus)
	default:
		return tlsConn, rfberr.New(rfberr.KindAuthUnsupported, "tls-auth: unexpected inner auth %d", subtype)
	}
}

func runVeNCryptAuth(ctx context.Context, conn net.Conn, version rfb.Version, policy Policy, bus *signalbus.Bus) (net.Conn, error) {
	preferred := policy.PreferredSubauths
	if len(preferred) == 0 {
		preferred = []int{
			rfb.VeNCryptX509SASL, rfb.VeNCryptX509VNC, rfb.VeNCryptX509None,
			rfb.VeNCryptTLSSASL, rfb.VeNCryptTLSVNC, rfb.VeNCryptTLSNone,
			rfb.VeNCryptX509Plain, rfb.VeNCryptTLSPlain, rfb.VeNCryptPlain,
		}
	}
	chosen, err := vencrypt.NegotiateVeNCrypt(conn, preferred)
	if err != nil {
		return conn, err
	}

	if chosen == rfb.VeNCryptPlain {
		return conn, rfberr.New(rfberr.KindLocalPolicy, "vencrypt: plain (unencrypted credential) subauth refused by policy")
	}

	tlsConn, err := tlsauth.Upgrade(ctx, conn, vencrypt.IsX509(chosen), policy.TLSPolicy)
	if err != nil {
		return conn, err
	}

	inner, err := vencrypt.InnerAuth(chosen)
	if err != nil {
		return tlsConn, err
	}

	switch inner {
	case rfb.AuthNone:
		return tlsConn, nil
	case rfb.AuthVNC:
		return tlsConn, runVNCAuth(ctx, tlsConn, policy, bus)
	case rfb.AuthSASL:
		return tlsConn, runSASLAuth(ctx, tlsConn, true, cipherBits(tlsConn), policy, bus)
	case vencrypt.InnerAuthPlain:
		return tlsConn, rfberr.New(rfberr.KindLocalPolicy, "vencrypt: plain (unencrypted credential) subauth refused by policy")
	default:
		return tlsConn, rfberr.New(rfberr.KindAuthUnsupported, "vencrypt: unexpected inner auth %d", inner)
	}
}

func runSASLAuth(ctx context.Context, conn io.ReadWriter, overTLS bool, tlsBits int, policy Policy, bus *signalbus.Bus) error {
	username, err := credential(ctx, policy, bus, signalbus.CredentialUsername)
	if err != nil {
		return err
	}
	password, err := credential(ctx, policy, bus, signalbus.CredentialPassword)
	if err != nil {
		return err
	}
	passwordSecret := secmem.NewSecureString(password)
	defer passwordSecret.Zero()

	_, err = saslauth.Negotiate(conn, policy.SASLHost, saslauth.Credentials{
		Username: username,
		Password: passwordSecret.String(),
	}, saslauth.SSFPolicy{OverTLS: overTLS, TLSCipherBits: tlsBits})
	return err
}

// cipherBits extracts the negotiated TLS cipher's key strength for SASL's
// SSF_EXTERNAL seed. tlsauth.Upgrade always hands back a *tls.Conn on the
// paths that call this, so the type assertion never fails in practice.
func cipherBits(conn net.Conn) int {
	if t, ok := conn.(*tls.Conn); ok {
		return transport.CipherKeyBits(t.ConnectionState())
	}
	return 128
}

// checkAuthResult reads the u32 SecurityResult every auth type except None
// under RFB 3.3 sends, and the server's optional reason string on failure.
// Auth type None under 3.3 sends no SecurityResult at all; everything else,
// including None negotiated under 3.7+, does.
func checkAuthResult(conn io.Reader, version rfb.Version, authType int) error {
	if authType == rfb.AuthNone && version.Minor < 7 {
		return nil
	}

	var resultBuf [4]byte
	if _, err := io.ReadFull(conn, resultBuf[:]); err != nil {
		return rfberr.Wrap(rfberr.KindNetworkIO, err, "handshake: read SecurityResult")
	}
	if binary.BigEndian.Uint32(resultBuf[:]) == 0 {
		return nil
	}

	if version.Minor < 8 {
		return rfberr.New(rfberr.KindAuthFailed, "handshake: authentication failed")
	}

	var reasonLenBuf [4]byte
	if _, err := io.ReadFull(conn, reasonLenBuf[:]); err != nil {
		return rfberr.Wrap(rfberr.KindNetworkIO, err, "handshake: read failure reason length")
	}
	reasonLen := int(binary.BigEndian.Uint32(reasonLenBuf[:]))
	if reasonLen < 0 || reasonLen > 64*1024 {
		return rfberr.New(rfberr.KindProtocolViolation, "handshake: implausible failure reason length %d", reasonLen)
	}
	reason := make([]byte, reasonLen)
	if _, err := io.ReadFull(conn, reason); err != nil {
		return rfberr.Wrap(rfberr.KindNetworkIO, err, "handshake: read failure reason")
	}
	return rfberr.New(rfberr.KindAuthFailed, "handshake: authentication failed: %s", reason).WithReason(string(reason))
}

// initialize runs the RFB Initialization state: the client sends
// ClientInit (the shared-flag byte), then reads ServerInit (framebuffer
// width/height, pixel format, and desktop name).
func initialize(conn io.ReadWriter, shared bool, version rfb.Version) (Result, error) {
	var sharedByte byte
	if shared {
		sharedByte = 1
	}
	if _, err := conn.Write([]byte{sharedByte}); err != nil {
		return Result{}, rfberr.Wrap(rfberr.KindNetworkIO, err, "handshake: write ClientInit")
	}

	var header [2 + 2 + rfb.WireSize + 4]byte
	if _, err := io.ReadFull(conn, header[:]); err != nil {
		return Result{}, rfberr.Wrap(rfberr.KindNetworkIO, err, "handshake: read ServerInit header")
	}

	width := int(binary.BigEndian.Uint16(header[0:2]))
	height := int(binary.BigEndian.Uint16(header[2:4]))
	pf, err := rfb.DecodePixelFormat(header[4 : 4+rfb.WireSize])
	if err != nil {
		return Result{}, rfberr.Wrap(rfberr.KindProtocolViolation, err, "handshake: decode ServerInit pixel format")
	}

	nameLen := int(binary.BigEndian.Uint32(header[4+rfb.WireSize:]))
	if nameLen < 0 || nameLen > rfb.MaxNameLength() {
		return Result{}, rfberr.New(rfberr.KindProtocolViolation, "handshake: desktop name length %d exceeds cap %d", nameLen, rfb.MaxNameLength())
	}
	nameBuf := make([]byte, nameLen)
	if _, err := io.ReadFull(conn, nameBuf); err != nil {
		return Result{}, rfberr.Wrap(rfberr.KindNetworkIO, err, "handshake: read desktop name")
	}

	log.Info("handshake complete", "width", width, "height", height, "name", string(nameBuf))
	return Result{
		Version:     version,
		Width:       width,
		Height:      height,
		PixelFormat: pf,
		Name:        string(nameBuf),
	}, nil
}
