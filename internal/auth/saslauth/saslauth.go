// Package saslauth drives RFB's SASL auth type (20), and the SASL
// recursion VeNCrypt's TLSSASL/X509SASL subauths fall into, using
// mellium.im/sasl as the mechanism engine. It owns only the RFB-specific
// wire framing (length-prefixed mechanism name, nullable length-prefixed
// client/server blobs, the trailing "complete" byte); all mechanism logic
// (PLAIN, SCRAM-SHA-1, SCRAM-SHA-256) is delegated to the library.
package saslauth

import (
	"encoding/binary"
	"io"

	"mellium.im/sasl"

	"github.com/breeze-rmm/vncclient/internal/rfb"
	"github.com/breeze-rmm/vncclient/internal/rfberr"
)

// SSFPolicy carries the security-strength-factor bounds RFB mandates: when
// the underlying transport is already TLS, SASL is told to treat the TLS
// cipher's key strength as an external SSF and not to demand anything more
// of itself; when running over a bare socket, SASL must itself negotiate
// at least a 56-bit security layer.
type SSFPolicy struct {
	OverTLS       bool
	TLSCipherBits int
}

// MinSSF and MaxSSF report the security property bounds to enforce for p,
// per §4.5.2: SSF_EXTERNAL-equivalent when already on TLS, otherwise a
// floor of 56 bits and a generous ceiling.
func (p SSFPolicy) MinSSF() int {
	if p.OverTLS {
		return 0
	}
	return 56
}

func (p SSFPolicy) MaxSSF() int {
	if p.OverTLS {
		return 0
	}
	return 100000
}

// Credentials supplies the identity SASL authenticates as.
type Credentials struct {
	Username string
	Password string
	Identity string
}

// Negotiate runs the full SASL exchange over rw: read the server's
// mechanism list, pick one mellium.im/sasl supports, run the step loop to
// completion, and return the negotiated SSF (0 if the mechanism has no
// confidentiality/integrity layer of its own, which is correct when
// running over TLS).
func Negotiate(rw io.ReadWriter, host string, creds Credentials, policy SSFPolicy) (int, error) {
	mechNames, err := readMechList(rw)
	if err != nil {
		return 0, err
	}
	if len(mechNames) == 0 {
		return 0, rfberr.New(rfberr.KindSASLFailure, "sasl: server offered no mechanisms")
	}

	mech, err := pickMechanism(mechNames, policy)
	if err != nil {
		return 0, err
	}

	client := sasl.NewClient(mech, sasl.Credentials(func() ([]byte, []byte, []byte) {
		return []byte(creds.Username), []byte(creds.Password), []byte(creds.Identity)
	}))

	if err := writeMechName(rw, mech.Name); err != nil {
		return 0, err
	}

	_, clientFirst, err := client.Step(nil)
	if err != nil {
		return 0, rfberr.Wrap(rfberr.KindSASLFailure, err, "sasl: start mechanism %s", mech.Name)
	}
	if err := writeNullable(rw, clientFirst); err != nil {
		return 0, err
	}

	for {
		serverIn, serverComplete, err := readServerStep(rw)
		if err != nil {
			return 0, err
		}

		state, clientOut, stepErr := client.Step(serverIn)
		if stepErr != nil {
			return 0, rfberr.Wrap(rfberr.KindSASLFailure, stepErr, "sasl: step mechanism %s", mech.Name)
		}

		localDone := state&sasl.Authenticated != 0 || state&sasl.Errored != 0
		if !localDone || !serverComplete {
			if err := writeNullable(rw, clientOut); err != nil {
				return 0, err
			}
			if serverComplete && !localDone {
				continue
			}
		}

		if state&sasl.Errored != 0 {
			return 0, rfberr.New(rfberr.KindSASLFailure, "sasl: mechanism %s reported an error", mech.Name)
		}
		if localDone && serverComplete {
			break
		}
	}

	// None of the mechanisms pickMechanism offers has a security layer of
	// its own, so the negotiated SSF is 0.
	ssf := 0
	if !policy.OverTLS && ssf < policy.MinSSF() {
		return 0, rfberr.New(rfberr.KindLocalPolicy, "sasl: negotiated security layer below minimum 56-bit SSF")
	}
	return ssf, nil
}

// pickMechanism chooses the strongest supported mechanism the server offers
// (SCRAM-SHA-256, then SCRAM-SHA-1, then PLAIN) that also satisfies
// policy: a bare socket must not
// fall back to PLAIN or ANONYMOUS, since that would transmit the password
// (or nothing at all) with no confidentiality.
func pickMechanism(offered []string, policy SSFPolicy) (sasl.Mechanism, error) {
	supported := map[string]sasl.Mechanism{
		"SCRAM-SHA-256": sasl.ScramSha256,
		"SCRAM-SHA-1":   sasl.ScramSha1,
		"PLAIN":         sasl.Plain,
	}
	// Strongest first, independent of the order the server lists them in.
	preference := []string{"SCRAM-SHA-256", "SCRAM-SHA-1", "PLAIN"}

	offeredSet := make(map[string]bool, len(offered))
	for _, name := range offered {
		offeredSet[name] = true
	}

	for _, name := range preference {
		if !offeredSet[name] {
			continue
		}
		if !policy.OverTLS && name == "PLAIN" {
			continue // refuse plaintext credentials off of TLS, per LocalPolicy
		}
		return supported[name], nil
	}
	return sasl.Mechanism{}, rfberr.New(rfberr.KindAuthUnsupported, "sasl: no supported mechanism in %v", offered)
}

func readMechList(rw io.ReadWriter) ([]string, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(rw, lenBuf[:]); err != nil {
		return nil, rfberr.Wrap(rfberr.KindNetworkIO, err, "sasl: read mechlist length")
	}
	n := int(binary.BigEndian.Uint32(lenBuf[:]))
	if n < 0 || n > rfb.MaxSASLMechList() {
		return nil, rfberr.New(rfberr.KindProtocolViolation, "sasl: mechlist length %d exceeds cap %d", n, rfb.MaxSASLMechList())
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(rw, buf); err != nil {
		return nil, rfberr.Wrap(rfberr.KindNetworkIO, err, "sasl: read mechlist")
	}

	var names []string
	start := 0
	for i, b := range buf {
		if b == ' ' || b == ',' {
			if i > start {
				names = append(names, string(buf[start:i]))
			}
			start = i + 1
		}
	}
	if start < len(buf) {
		names = append(names, string(buf[start:]))
	}
	return names, nil
}

func writeMechName(w io.Writer, name string) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(name)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return rfberr.Wrap(rfberr.KindNetworkIO, err, "sasl: write mechanism name length")
	}
	if _, err := w.Write([]byte(name)); err != nil {
		return rfberr.Wrap(rfberr.KindNetworkIO, err, "sasl: write mechanism name")
	}
	return nil
}

// writeNullable encodes data per the protocol's nullable-blob convention:
// a nil blob (no client response this round) is length 0; a present-but-
// empty blob is length 1 containing a single NUL byte, so the receiver can
// tell "absent" from "empty" apart.
func writeNullable(w io.Writer, data []byte) error {
	var out []byte
	switch {
	case data == nil:
		out = nil
	case len(data) == 0:
		out = []byte{0}
	default:
		out = data
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(out)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return rfberr.Wrap(rfberr.KindNetworkIO, err, "sasl: write blob length")
	}
	if len(out) > 0 {
		if _, err := w.Write(out); err != nil {
			return rfberr.Wrap(rfberr.KindNetworkIO, err, "sasl: write blob")
		}
	}
	return nil
}

// readServerStep reads one serverin blob (length-prefixed, capped, per
// §4.5.2) plus the trailing one-byte completion flag.
func readServerStep(r io.Reader) ([]byte, bool, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, false, rfberr.Wrap(rfberr.KindNetworkIO, err, "sasl: read serverin length")
	}
	n := int(binary.BigEndian.Uint32(lenBuf[:]))
	if n < 0 || n > rfb.MaxSASLServerIn() {
		return nil, false, rfberr.New(rfberr.KindProtocolViolation, "sasl: serverin length %d exceeds cap %d", n, rfb.MaxSASLServerIn())
	}
	var data []byte
	if n > 0 {
		data = make([]byte, n)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, false, rfberr.Wrap(rfberr.KindNetworkIO, err, "sasl: read serverin")
		}
	}

	var completeBuf [1]byte
	if _, err := io.ReadFull(r, completeBuf[:]); err != nil {
		return nil, false, rfberr.Wrap(rfberr.KindNetworkIO, err, "sasl: read complete flag")
	}
	return data, completeBuf[0] != 0, nil
}
