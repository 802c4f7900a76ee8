// Package aead wraps ChaCha20-Poly1305 with the per-direction nonce
// convention used throughout the MRP session: either an explicit 12-byte
// nonce (used for the fixed "PS-Msg05" style labels during the handshake),
// or an auto-incrementing little-endian counter nonce (used for session
// traffic after pair-verify completes).
package aead

import (
	"encoding/binary"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/lanikai/atvkit/internal/logging"
)

var log = logging.DefaultLogger.WithTag(logging.TagMRP)

const nonceSize = chacha20poly1305.NonceSize // 12

// AuthenticationError is returned when a ciphertext fails to authenticate.
type AuthenticationError struct {
	cause error
}

func (e *AuthenticationError) Error() string {
	return "aead: authentication failed: " + e.cause.Error()
}

func (e *AuthenticationError) Unwrap() error { return e.cause }

// Cipher wraps one ChaCha20-Poly1305 key pair with independent write/read
// counters. A Cipher is not safe for concurrent use by multiple goroutines
// in the same direction (matches the "single HTTP/session client, serialized
// requests" concurrency model in spec.md §5).
type Cipher struct {
	writeAEAD    cipherAEAD
	readAEAD     cipherAEAD
	writeCounter uint64
	readCounter  uint64
}

// cipherAEAD is the subset of cipher.AEAD used here, kept narrow so tests can
// substitute a fake implementation without pulling in the full interface.
type cipherAEAD interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}

// New builds a Cipher from a 32-byte write key and a 32-byte read key.
func New(writeKey, readKey []byte) (*Cipher, error) {
	w, err := chacha20poly1305.New(writeKey)
	if err != nil {
		return nil, err
	}
	r, err := chacha20poly1305.New(readKey)
	if err != nil {
		return nil, err
	}
	return &Cipher{writeAEAD: w, readAEAD: r}, nil
}

// counterNonce builds a 12-byte nonce: 4 zero bytes followed by an
// 8-byte little-endian counter, then increments the counter.
func counterNonce(counter *uint64) []byte {
	nonce := make([]byte, nonceSize)
	binary.LittleEndian.PutUint64(nonce[4:], *counter)
	*counter++
	return nonce
}

// labelNonce right-pads an ASCII label (e.g. "PS-Msg05") to 12 bytes, per
// spec.md §6.
func labelNonce(label string) []byte {
	nonce := make([]byte, nonceSize)
	copy(nonce, label)
	return nonce
}

// Encrypt seals plaintext under the write key. If label is non-empty, the
// fixed handshake nonce for that label is used (spec.md §6); otherwise the
// write counter nonce is used and incremented.
func (c *Cipher) Encrypt(plaintext, aad []byte, label string) []byte {
	nonce := c.nonceFor(label, true)
	return c.writeAEAD.Seal(nil, nonce, plaintext, aad)
}

// Decrypt opens ciphertext under the read key, symmetric to Encrypt.
func (c *Cipher) Decrypt(ciphertext, aad []byte, label string) ([]byte, error) {
	nonce := c.nonceFor(label, false)
	plaintext, err := c.readAEAD.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		log.Debug("authentication failed for label %q", label)
		return nil, &AuthenticationError{cause: err}
	}
	return plaintext, nil
}

func (c *Cipher) nonceFor(label string, write bool) []byte {
	if label != "" {
		return labelNonce(label)
	}
	if write {
		return counterNonce(&c.writeCounter)
	}
	return counterNonce(&c.readCounter)
}
