// Package ard implements Apple Remote Desktop authentication (auth type
// 30): a variable-modulus Diffie-Hellman exchange, MD5-derived AES key, and
// AES-128-ECB encryption of a fixed 128-byte username/password plaintext
// block. As with vncauth and mslogon, this is a bespoke wire protocol
// rather than something a general crypto library models, so it is built
// directly on crypto/aes, crypto/md5, and math/big.
package ard

import (
	"crypto/aes"
	"crypto/md5"
	"crypto/rand"
	"io"
	"math/big"

	"github.com/breeze-rmm/vncclient/internal/rfberr"
)

// CredentialBlockSize is the fixed plaintext size: a 64-byte username half
// and a 64-byte password half, each null-terminated and padded with random
// bytes (not zeros) to frustrate padding-oracle-style inference from a
// captured handshake.
const CredentialBlockSize = 128

const credentialHalfSize = CredentialBlockSize / 2

// ServerParams is the generator and modulus ARD sends, plus its own DH
// public key, each exactly len(Modulus) bytes except Generator which is
// fixed at 2 bytes per the wire format.
type ServerParams struct {
	Generator []byte // 2 bytes
	Modulus   []byte // KeyLen bytes
	ServerPub []byte // KeyLen bytes
}

// Response is the client's DH public key and the encrypted credential
// block, both KeyLen and CredentialBlockSize bytes respectively.
type Response struct {
	Ciphertext []byte // CredentialBlockSize bytes
	ClientPub  []byte // len(params.Modulus) bytes
}

// Negotiate runs the client side of ARD's DH exchange and returns the
// encrypted credential response. rnd supplies both the DH private key and
// the credential-padding randomness; pass nil to use crypto/rand.
func Negotiate(params ServerParams, rnd io.Reader, username, password string) (Response, error) {
	if rnd == nil {
		rnd = rand.Reader
	}
	keyLen := len(params.Modulus)
	if keyLen == 0 || len(params.ServerPub) != keyLen {
		return Response{}, rfberr.New(rfberr.KindProtocolViolation, "ard: modulus/server-pub length mismatch")
	}

	gen := new(big.Int).SetBytes(params.Generator)
	mod := new(big.Int).SetBytes(params.Modulus)
	serverPub := new(big.Int).SetBytes(params.ServerPub)
	if mod.Sign() == 0 {
		return Response{}, rfberr.New(rfberr.KindProtocolViolation, "ard: modulus is zero")
	}

	priv, err := rand.Int(rnd, mod)
	if err != nil {
		return Response{}, rfberr.Wrap(rfberr.KindAuthFailed, err, "ard: generate private key")
	}
	if priv.Sign() == 0 {
		priv.SetInt64(1)
	}

	clientPub := new(big.Int).Exp(gen, priv, mod)
	shared := new(big.Int).Exp(serverPub, priv, mod)

	sum := md5.Sum(leftPadBytes(shared.Bytes(), keyLen))
	aesKey := sum[:aes.BlockSize]

	plaintext, err := buildCredentialBlock(rnd, username, password)
	if err != nil {
		return Response{}, err
	}

	block, err := aes.NewCipher(aesKey)
	if err != nil {
		return Response{}, rfberr.Wrap(rfberr.KindAuthFailed, err, "ard: build AES cipher")
	}
	ciphertext := make([]byte, CredentialBlockSize)
	for i := 0; i < CredentialBlockSize; i += aes.BlockSize {
		block.Encrypt(ciphertext[i:i+aes.BlockSize], plaintext[i:i+aes.BlockSize])
	}

	return Response{
		Ciphertext: ciphertext,
		ClientPub:  leftPadBytes(clientPub.Bytes(), keyLen),
	}, nil
}

// buildCredentialBlock lays out username\0<random padding> in the first
// half and password\0<random padding> in the second half, each exactly
// credentialHalfSize bytes; usernames/passwords longer than
// credentialHalfSize-1 are truncated to leave room for the terminator.
func buildCredentialBlock(rnd io.Reader, username, password string) ([]byte, error) {
	block := make([]byte, CredentialBlockSize)
	if _, err := io.ReadFull(rnd, block); err != nil {
		return nil, rfberr.Wrap(rfberr.KindAuthFailed, err, "ard: generate padding randomness")
	}
	writeField(block[:credentialHalfSize], username)
	writeField(block[credentialHalfSize:], password)
	return block, nil
}

func writeField(dst []byte, s string) {
	if len(s) > len(dst)-1 {
		s = s[:len(dst)-1]
	}
	n := copy(dst, s)
	dst[n] = 0
}

func leftPadBytes(b []byte, width int) []byte {
	if len(b) >= width {
		return b[len(b)-width:]
	}
	out := make([]byte, width)
	copy(out[width-len(b):], b)
	return out
}
