// Package tlsauth bridges the subauth decision made by vencrypt to the
// mechanics in internal/transport: given a chosen VeNCrypt subauth (or the
// legacy TLS auth type, which is always anonymous), it discovers or skips
// x509 credentials as appropriate and drives the TLS handshake.
package tlsauth

import (
	"context"
	"crypto/tls"
	"net"

	"github.com/breeze-rmm/vncclient/internal/transport"
)

// Policy names where to look for x509 PKI material when a subauth
// requires it, and the hostname to validate the peer certificate against.
type Policy struct {
	SysconfDir    string
	ClientName    string
	ServerHost    string
	AnonymousOnly bool // true for the legacy TLS auth type (18)
}

// Upgrade performs the TLS handshake appropriate for useX509, returning the
// resulting connection (which itself satisfies transport.Conn).
func Upgrade(ctx context.Context, conn net.Conn, useX509 bool, policy Policy) (*tls.Conn, error) {
	var cfg *tls.Config
	if useX509 && !policy.AnonymousOnly {
		creds, err := transport.DiscoverX509(policy.SysconfDir, policy.ClientName)
		if err != nil {
			return nil, err
		}
		cfg, err = transport.BuildClientConfig(creds, policy.ServerHost)
		if err != nil {
			return nil, err
		}
	} else {
		cfg = transport.BuildAnonymousConfig(policy.ServerHost)
	}

	return transport.UpgradeTLS(ctx, conn, cfg)
}
