package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/breeze-rmm/vncclient/internal/rfberr"
)


// X509Credentials names the discoverable PKI material for the VeNCrypt
// X509* subauths: CA trust root, optional CRL, and an optional client
// identity (cert+key). Adapted from the teacher's internal/mtls package,
// which loaded a single fixed cert/key pair; here the set is discovered by
// probing well-known directories per §4.5.1.
type X509Credentials struct {
	CACert []byte
	CACRL  []byte
	Cert   []byte
	Key    []byte
}

// DiscoverX509 searches {sysconfdir}/pki and $HOME/.pki, in that order, for
// the CA/CRL/client cert/client key files named by subtype `name` (the
// VeNCrypt CLIENTNAME identity). A missing CA is fatal; a missing CRL,
// client key, or client cert is not (the client may still do anonymous- or
// server-only-authenticated TLS).
func DiscoverX509(sysconfdir, name string) (X509Credentials, error) {
	home, _ := os.UserHomeDir()
	var roots []string
	if sysconfdir != "" {
		roots = append(roots, filepath.Join(sysconfdir, "pki"))
	}
	if home != "" {
		roots = append(roots, filepath.Join(home, ".pki"))
	}

	var creds X509Credentials
	var caErr error
	for _, root := range roots {
		if creds.CACert == nil {
			if b, err := os.ReadFile(filepath.Join(root, "CA", "cacert.pem")); err == nil {
				creds.CACert = b
			} else {
				caErr = err
			}
		}
		if creds.CACRL == nil {
			if b, err := os.ReadFile(filepath.Join(root, "CA", "cacrl.pem")); err == nil {
				creds.CACRL = b
			}
		}
		if creds.Key == nil {
			if b, err := os.ReadFile(filepath.Join(root, name, "private", "clientkey.pem")); err == nil {
				creds.Key = b
			}
		}
		if creds.Cert == nil {
			if b, err := os.ReadFile(filepath.Join(root, name, "clientcert.pem")); err == nil {
				creds.Cert = b
			}
		}
	}

	if creds.CACert == nil {
		return creds, rfberr.Wrap(rfberr.KindCertificateInvalid, caErr, "no CA certificate found under %v", roots).WithSubtype(rfberr.CertUntrusted)
	}
	return creds, nil
}

// BuildClientConfig constructs the tls.Config for the x509 VeNCrypt
// subauths. Verification is performed by VerifyPeerCertificate rather than the
// stdlib default chain builder, so that CRL checking and the RFB-specific
// "only x509 certs accepted" / hostname rules in §4.5.1 run exactly as
// specified.
func BuildClientConfig(creds X509Credentials, serverHost string) (*tls.Config, error) {
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(creds.CACert) {
		return nil, rfberr.New(rfberr.KindCertificateInvalid, "CA certificate is not valid PEM").WithSubtype(rfberr.CertAlgorithm)
	}

	var crl *x509.RevocationList
	if len(creds.CACRL) > 0 {
		block, err := parseCRL(creds.CACRL)
		if err == nil {
			crl = block
		}
	}

	cfg := &tls.Config{
		RootCAs:            pool,
		InsecureSkipVerify: true, // we do our own VerifyPeerCertificate below
		ServerName:         serverHost,
	}
	if len(creds.Cert) > 0 && len(creds.Key) > 0 {
		cert, err := tls.X509KeyPair(creds.Cert, creds.Key)
		if err != nil {
			return nil, rfberr.Wrap(rfberr.KindTLSFailure, err, "parse client cert/key")
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	cfg.VerifyPeerCertificate = func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		return verifyChain(rawCerts, pool, crl, serverHost)
	}
	return cfg, nil
}

// BuildAnonymousConfig builds the TLS config for the legacy `auth type 18`
// and VeNCrypt `TLS*` (non-x509) subauths. Go's crypto/tls dropped
// anonymous-DH cipher suites long ago (see SPEC_FULL.md §4.5.1 and §9), so
// this is a deliberately weaker approximation: it skips identity
// verification entirely, same as the source's "anonymous" intent, but
// without the source's anonymous-DH cipher — it is ordinary TLS with the
// peer's certificate unchecked.
func BuildAnonymousConfig(serverHost string) *tls.Config {
	return &tls.Config{
		InsecureSkipVerify: true,
		ServerName:         serverHost,
	}
}

func verifyChain(rawCerts [][]byte, roots *x509.CertPool, crl *x509.RevocationList, host string) error {
	if len(rawCerts) == 0 {
		return rfberr.New(rfberr.KindCertificateInvalid, "server presented no certificate").WithSubtype(rfberr.CertUntrusted)
	}
	certs := make([]*x509.Certificate, 0, len(rawCerts))
	for _, raw := range rawCerts {
		cert, err := x509.ParseCertificate(raw)
		if err != nil {
			return rfberr.Wrap(rfberr.KindCertificateInvalid, err, "parse peer certificate").WithSubtype(rfberr.CertAlgorithm)
		}
		certs = append(certs, cert)
	}
	leaf := certs[0]

	now := time.Now()
	if now.Before(leaf.NotBefore) {
		return rfberr.New(rfberr.KindCertificateInvalid, "certificate not yet valid").WithSubtype(rfberr.CertNotYetValid)
	}
	if now.After(leaf.NotAfter) {
		return rfberr.New(rfberr.KindCertificateInvalid, "certificate expired").WithSubtype(rfberr.CertExpired)
	}

	intermediates := x509.NewCertPool()
	for _, c := range certs[1:] {
		intermediates.AddCert(c)
	}
	opts := x509.VerifyOptions{Roots: roots, Intermediates: intermediates, CurrentTime: now}
	if _, err := leaf.Verify(opts); err != nil {
		return rfberr.Wrap(rfberr.KindCertificateInvalid, err, "certificate chain is not trusted").WithSubtype(rfberr.CertUntrusted)
	}

	if crl != nil {
		for _, revoked := range crl.RevokedCertificateEntries {
			if revoked.SerialNumber != nil && revoked.SerialNumber.Cmp(leaf.SerialNumber) == 0 {
				return rfberr.New(rfberr.KindCertificateInvalid, "certificate serial %v is revoked", leaf.SerialNumber).WithSubtype(rfberr.CertRevoked)
			}
		}
	}

	if host != "" {
		if err := leaf.VerifyHostname(host); err != nil {
			return rfberr.Wrap(rfberr.KindCertificateInvalid, err, "certificate does not match host %q", host).WithSubtype(rfberr.CertHostnameMismatch)
		}
	}
	return nil
}

func parseCRL(pemOrDER []byte) (*x509.RevocationList, error) {
	list, err := x509.ParseRevocationList(pemOrDER)
	if err != nil {
		return nil, fmt.Errorf("parse CRL: %w", err)
	}
	return list, nil
}

// UpgradeTLS performs the TLS client handshake over an already-connected
// Conn and returns the resulting *tls.Conn, which itself satisfies Conn. The
// caller owns ctx's lifetime and deadline; the session layer bounds it to
// DialTimeout the same way it bounds the initial TCP dial.
func UpgradeTLS(ctx context.Context, conn net.Conn, cfg *tls.Config) (*tls.Conn, error) {
	tlsConn := tls.Client(conn, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, rfberr.Wrap(rfberr.KindTLSFailure, err, "TLS handshake failed")
	}
	return tlsConn, nil
}

// CipherKeyBits returns the effective key strength of the negotiated TLS
// cipher suite, used to seed SASL's SSF_EXTERNAL per §4.5.2.
func CipherKeyBits(state tls.ConnectionState) int {
	if bits, ok := cipherKeyBits[state.CipherSuite]; ok {
		return bits
	}
	return 128 // conservative default for an unrecognized modern suite
}

var cipherKeyBits = map[uint16]int{
	tls.TLS_AES_128_GCM_SHA256:                  128,
	tls.TLS_AES_256_GCM_SHA384:                  256,
	tls.TLS_CHACHA20_POLY1305_SHA256:             256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256:    128,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384:    256,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256:  128,
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384:  256,
	tls.TLS_RSA_WITH_AES_128_GCM_SHA256:          128,
	tls.TLS_RSA_WITH_AES_256_GCM_SHA384:          256,
}
