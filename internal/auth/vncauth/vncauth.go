// Package vncauth implements RFB's "VNC Authentication" (auth type 2): a
// DES-based challenge-response keyed by a password, bit-reversed per byte
// for historical compatibility with the original algorithm's byte order.
// There is no third-party Go library for this scheme in the wild; it is a
// bespoke protocol detail rather than a general cryptographic primitive, so
// it is implemented directly against crypto/des.
package vncauth

import (
	"crypto/des"

	"github.com/breeze-rmm/vncclient/internal/rfberr"
)

// ChallengeSize is the fixed length of the server's random challenge and
// the client's encrypted response, in bytes.
const ChallengeSize = 16

// reverseBits reverses the bit order within a single byte. The classic VNC
// password-to-DES-key derivation reverses each key byte's bits before use,
// a quirk inherited from the original implementation's DES key-schedule
// convention.
func reverseBits(b byte) byte {
	var r byte
	for i := 0; i < 8; i++ {
		r <<= 1
		r |= b & 1
		b >>= 1
	}
	return r
}

// deriveKey pads/truncates password to 8 bytes and bit-reverses each byte
// to form the DES key.
func deriveKey(password string) [8]byte {
	var key [8]byte
	n := copy(key[:], password)
	_ = n
	for i := range key {
		key[i] = reverseBits(key[i])
	}
	return key
}

// Respond encrypts the server's 16-byte challenge with a DES-ECB cipher
// keyed by password, producing the 16-byte response to send back in the
// VNC authentication handshake.
func Respond(challenge []byte, password string) ([]byte, error) {
	if len(challenge) != ChallengeSize {
		return nil, rfberr.New(rfberr.KindProtocolViolation, "vnc auth: challenge must be %d bytes, got %d", ChallengeSize, len(challenge))
	}

	key := deriveKey(password)
	block, err := des.NewCipher(key[:])
	if err != nil {
		return nil, rfberr.Wrap(rfberr.KindAuthFailed, err, "vnc auth: build cipher")
	}

	response := make([]byte, ChallengeSize)
	for i := 0; i < ChallengeSize; i += des.BlockSize {
		block.Encrypt(response[i:i+des.BlockSize], challenge[i:i+des.BlockSize])
	}
	return response, nil
}
