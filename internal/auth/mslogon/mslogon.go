// Package mslogon implements UltraVNC's MS-Logon authentication (auth type
// 0xfffffffa): a 64-bit Diffie-Hellman exchange followed by DES-CBC
// encryption of the zero-padded username and password under the derived
// shared key. Like vncauth, this is a bespoke wire protocol rather than a
// general primitive, so it is built directly on crypto/des and math/big.
package mslogon

import (
	"crypto/cipher"
	"crypto/des"
	"crypto/rand"
	"io"
	"math/big"

	"github.com/breeze-rmm/vncclient/internal/rfberr"
)

// FieldSize is the fixed wire size of the generator, modulus, and each
// public key in the MS-Logon handshake.
const FieldSize = 8

// UsernameFieldSize and PasswordFieldSize are the zero-padded field widths
// the encrypted credential block is sent in.
const (
	UsernameFieldSize = 256
	PasswordFieldSize = 64
)

// ServerParams is the generator, modulus, and server public key read from
// the wire, each an 8-byte big-endian unsigned integer.
type ServerParams struct {
	Generator []byte // FieldSize bytes
	Modulus   []byte // FieldSize bytes
	ServerPub []byte // FieldSize bytes
}

// Response is what the client sends back: its own public key and the
// DES-CBC-encrypted credential fields.
type Response struct {
	ClientPub        []byte // FieldSize bytes
	EncryptedUsername []byte // UsernameFieldSize bytes
	EncryptedPassword []byte // PasswordFieldSize bytes
}

// beBytes renders n as a big-endian byte slice of exactly width bytes,
// truncating or left-zero-padding as needed (DH results can be shorter
// than the field once leading zero bytes are stripped by big.Int).
func beBytes(n *big.Int, width int) []byte {
	raw := n.Bytes()
	out := make([]byte, width)
	if len(raw) >= width {
		copy(out, raw[len(raw)-width:])
	} else {
		copy(out[width-len(raw):], raw)
	}
	return out
}

// Negotiate runs the client side of the DH exchange and returns the
// credential response to send to the server.
func Negotiate(params ServerParams, rnd io.Reader, username, password string) (Response, error) {
	if len(params.Generator) != FieldSize || len(params.Modulus) != FieldSize || len(params.ServerPub) != FieldSize {
		return Response{}, rfberr.New(rfberr.KindProtocolViolation, "mslogon: generator/modulus/server-pub must each be %d bytes", FieldSize)
	}

	gen := new(big.Int).SetBytes(params.Generator)
	mod := new(big.Int).SetBytes(params.Modulus)
	serverPub := new(big.Int).SetBytes(params.ServerPub)

	if mod.Sign() == 0 {
		return Response{}, rfberr.New(rfberr.KindProtocolViolation, "mslogon: modulus is zero")
	}

	priv, err := randBigInt(rnd, mod)
	if err != nil {
		return Response{}, rfberr.Wrap(rfberr.KindAuthFailed, err, "mslogon: generate private key")
	}

	clientPub := new(big.Int).Exp(gen, priv, mod)
	shared := new(big.Int).Exp(serverPub, priv, mod)

	key := beBytes(shared, FieldSize)

	encUser, err := encryptField(key, padField(username, UsernameFieldSize))
	if err != nil {
		return Response{}, err
	}
	encPass, err := encryptField(key, padField(password, PasswordFieldSize))
	if err != nil {
		return Response{}, err
	}

	return Response{
		ClientPub:         beBytes(clientPub, FieldSize),
		EncryptedUsername: encUser,
		EncryptedPassword: encPass,
	}, nil
}

// randBigInt returns a uniform random value in [1, max). Callers pass the
// DH modulus as max, matching the source's use of the modulus's bit length
// to size the private exponent.
func randBigInt(rnd io.Reader, max *big.Int) (*big.Int, error) {
	if rnd == nil {
		rnd = rand.Reader
	}
	n, err := rand.Int(rnd, max)
	if err != nil {
		return nil, err
	}
	if n.Sign() == 0 {
		n.SetInt64(1)
	}
	return n, nil
}

func padField(s string, width int) []byte {
	b := make([]byte, width)
	copy(b, s)
	return b
}

// encryptField DES-CBC-encrypts data (a multiple of the DES block size)
// under key with a zero IV into a newly allocated slice, matching the source's fixed-IV scheme;
// there is no per-session IV negotiation in MS-Logon.
func encryptField(key, data []byte) ([]byte, error) {
	block, err := des.NewCipher(key)
	if err != nil {
		return nil, rfberr.Wrap(rfberr.KindAuthFailed, err, "mslogon: build cipher")
	}
	iv := make([]byte, des.BlockSize)
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, data)
	return out, nil
}
