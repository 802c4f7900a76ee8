// Package kdf derives 32-byte session keys from shared secrets using
// HKDF-SHA-512, with the fixed salt/info domain-separation labels used by
// the MRP pairing and verification handshake (spec.md §6).
package kdf

import (
	"crypto/sha512"
	"io"

	"golang.org/x/crypto/hkdf"
)

const outputSize = 32

// Derive computes HKDF-SHA-512(salt, info, ikm) and truncates the expanded
// output to 32 bytes, as every caller in this codebase needs exactly one
// ChaCha20-Poly1305 key or Ed25519 signing input.
func Derive(salt, info, ikm []byte) ([]byte, error) {
	r := hkdf.New(sha512.New, ikm, salt, info)
	out := make([]byte, outputSize)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Named label pairs from spec.md §6, as Labels values; DeriveWith hands
// them to Derive as UTF-8 bytes.
var (
	PairSetupEncrypt = Labels{Salt: "Pair-Setup-Encrypt-Salt", Info: "Pair-Setup-Encrypt-Info"}

	ControllerSign = Labels{
		Salt: "Pair-Setup-Controller-Sign-Salt",
		Info: "Pair-Setup-Controller-Sign-Info",
	}

	AccessorySign = Labels{
		Salt: "Pair-Setup-Accessory-Sign-Salt",
		Info: "Pair-Setup-Accessory-Sign-Info",
	}

	PairVerifyEncrypt = Labels{Salt: "Pair-Verify-Encrypt-Salt", Info: "Pair-Verify-Encrypt-Info"}

	SessionWriteKey = Labels{Salt: "MediaRemote-Salt", Info: "MediaRemote-Write-Encryption-Key"}
	SessionReadKey  = Labels{Salt: "MediaRemote-Salt", Info: "MediaRemote-Read-Encryption-Key"}
)

// Labels is a named (salt, info) pair used as HKDF domain separation.
type Labels struct {
	Salt string
	Info string
}

// DeriveWith runs Derive using this label pair against ikm.
func (l Labels) DeriveWith(ikm []byte) ([]byte, error) {
	return Derive([]byte(l.Salt), []byte(l.Info), ikm)
}
