// Package mrp implements the MediaRemote Protocol pair-setup and
// pair-verify handshake: SRP-6a pairing followed by an Ed25519/X25519
// authenticated key agreement producing ChaCha20-Poly1305 session keys
// (spec.md §4.E).
package mrp

import (
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"

	"github.com/lanikai/atvkit/internal/logging"
)

var log = logging.DefaultLogger.WithTag(logging.TagMRP)

// Credentials are the long-term pairing artifacts produced by a successful
// pair-setup and consumed by every subsequent pair-verify (spec.md §3).
type Credentials struct {
	// LTPK is the device's long-term Ed25519 public key.
	LTPK []byte
	// LTSK is the client's long-term Ed25519 private key (32-byte seed).
	LTSK []byte
	// AtvID is the device's identifier bytes.
	AtvID []byte
	// ClientID is the client's pairing UUID bytes.
	ClientID []byte
}

// String serializes Credentials as four colon-separated lowercase hex
// fields, per spec.md §6.
func (c Credentials) String() string {
	return strings.Join([]string{
		hex.EncodeToString(c.LTPK),
		hex.EncodeToString(c.LTSK),
		hex.EncodeToString(c.AtvID),
		hex.EncodeToString(c.ClientID),
	}, ":")
}

// InvalidCredentialsError indicates a malformed credentials string or
// login-id, per spec.md §7.
type InvalidCredentialsError struct {
	reason string
}

func (e *InvalidCredentialsError) Error() string {
	return "mrp: invalid credentials: " + e.reason
}

// ParseCredentials parses the colon-separated hex format produced by
// Credentials.String. Fails if the field count differs from four
// (spec.md §3).
func ParseCredentials(s string) (Credentials, error) {
	fields := strings.Split(s, ":")
	if len(fields) != 4 {
		return Credentials{}, &InvalidCredentialsError{reason: "expected 4 colon-separated fields"}
	}

	decoded := make([][]byte, 4)
	for i, f := range fields {
		b, err := hex.DecodeString(f)
		if err != nil {
			return Credentials{}, &InvalidCredentialsError{reason: errors.Wrap(err, "non-hex field").Error()}
		}
		decoded[i] = b
	}

	return Credentials{
		LTPK:     decoded[0],
		LTSK:     decoded[1],
		AtvID:    decoded[2],
		ClientID: decoded[3],
	}, nil
}
