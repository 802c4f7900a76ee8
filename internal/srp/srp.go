// Package srp implements the client side of SRP-6a (RFC 5054) over the
// 3072-bit MODP group from RFC 3526, using SHA-512 as specified for the MRP
// pairing handshake (spec.md §4.D). The username is always the literal
// "Pair-Setup"; the password is the pairing PIN.
package srp

import (
	"crypto/sha512"
	"encoding/hex"
	"hash"
	"math/big"

	"github.com/pkg/errors"

	"github.com/lanikai/atvkit/internal/logging"
)

var log = logging.DefaultLogger.WithTag(logging.TagMRP)

// username is fixed for MRP pair-setup (spec.md §4.D).
const username = "Pair-Setup"

var hashFunc = sha512.New

// group15N is the RFC 3526 3072-bit MODP group modulus.
var group15N = mustParseHex(
	"FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E088A67CC7" +
		"4020BBEA63B139B22514A08798E3404DDEF9519B3CD3A431B302B0A6DF25F14" +
		"374FE1356D6D51C245E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B" +
		"7EDEE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3DC2007CB8A163" +
		"BF0598DA48361C55D39A69163FA8FD24CF5F83655D23DCA3AD961C62F35620" +
		"8552BB9ED529077096966D670C354E4ABC9804F1746C08CA18217C32905E46" +
		"2E36CE3BE39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9DE2BCB" +
		"F6955817183995497CEA956AE515D2261898FA051015728E5A8AACAA68FFFF" +
		"FFFFFFFFFFFF")

var group15G = big.NewInt(2)

var nLenBytes = (group15N.BitLen() + 7) / 8

func mustParseHex(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("srp: invalid group modulus constant")
	}
	return n
}

// AuthenticationError indicates the server proof did not match what the
// client computed, per spec.md §7.
type AuthenticationError struct {
	cause error
}

func (e *AuthenticationError) Error() string { return "srp: server proof mismatch" }
func (e *AuthenticationError) Unwrap() error { return e.cause }

// Session holds the client-side state of one pair-setup SRP exchange.
// Single use: create with New, call Process once.
type Session struct {
	pin string

	// a is the client private exponent. Per spec.md §4.D, this is exactly the
	// same 32-byte Ed25519 seed generated during MRP initialization (hex
	// encoded), so the same randomness seeds both identity and SRP.
	a *big.Int

	// A is the client public value g^a mod N, computed lazily on first use.
	aPublic *big.Int

	premasterKey []byte

	// sessionKey is K = H(premasterKey), the Apple SRP variant's proof-hash
	// input (spec.md §4.D; see calculateK).
	sessionKey []byte
}

// New creates an SRP session for the given PIN, seeded with clientPrivateHex
// (the hex-encoded 32-byte Ed25519 seed; spec.md §4.D).
func New(pin string, clientPrivateHex string) (*Session, error) {
	raw, err := hex.DecodeString(clientPrivateHex)
	if err != nil {
		return nil, errors.Wrap(err, "srp: invalid client private key")
	}
	a := new(big.Int).SetBytes(raw)
	return &Session{pin: pin, a: a}, nil
}

// PublicKey returns the client's SRP public value A = g^a mod N, N-padded.
func (s *Session) PublicKey() []byte {
	if s.aPublic == nil {
		s.aPublic = new(big.Int).Exp(group15G, s.a, group15N)
	}
	return padToN(s.aPublic)
}

// Process runs the SRP-6a client derivation against the server's public
// value and salt (both hex-encoded, as delivered in the pairing TLV), and
// returns the premaster key (hex-encoded) and the client proof M1 on
// success. A malformed or out-of-range B, a malformed salt, or a zero u
// value fails with a plain error. The server's proof is checked separately
// by VerifyServerProof, which fails with AuthenticationError on mismatch.
func (s *Session) Process(serverPublicHex, saltHex string) (premasterHex string, clientProof []byte, err error) {
	B, ok := new(big.Int).SetString(serverPublicHex, 16)
	if !ok {
		return "", nil, errors.New("srp: invalid server public value")
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return "", nil, errors.Wrap(err, "srp: invalid salt")
	}

	if B.Sign() <= 0 || B.Cmp(group15N) >= 0 {
		return "", nil, errors.New("srp: server public value out of range")
	}

	A := s.PublicKey()
	k := multiplier()
	x := calculateX(salt, []byte(s.pin))
	u := calculateU(new(big.Int).SetBytes(A), B)
	if u.Sign() == 0 {
		return "", nil, errors.New("srp: zero u value")
	}

	premaster := calculateClientS(k, x, s.a, B, u)
	s.premasterKey = premaster
	s.sessionKey = calculateK(premaster)

	M1 := calculateM1([]byte(username), salt, A, padToN(B), s.sessionKey)

	log.Debug("srp: derived premaster key (%d bytes)", len(premaster))

	return hex.EncodeToString(premaster), M1, nil
}

// VerifyServerProof checks the server's M2 proof against the session state
// established by Process. Fails with AuthenticationError on mismatch.
func (s *Session) VerifyServerProof(serverPublicHex string, clientProof, serverProof []byte) error {
	if _, ok := new(big.Int).SetString(serverPublicHex, 16); !ok {
		return errors.New("srp: invalid server public value")
	}
	expected := calculateM2(s.PublicKey(), clientProof, s.sessionKey)
	if !constantTimeEqual(expected, serverProof) {
		return &AuthenticationError{}
	}
	return nil
}

func padToN(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= nLenBytes {
		return b
	}
	padded := make([]byte, nLenBytes)
	copy(padded[nLenBytes-len(b):], b)
	return padded
}

func digest(parts ...[]byte) []byte {
	h := hashFunc()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

func hashToInt(h hash.Hash) *big.Int {
	return new(big.Int).SetBytes(h.Sum(nil))
}

// multiplier computes k = H(N | pad(g)).
func multiplier() *big.Int {
	gBytes := padToN(group15G)
	h := hashFunc()
	h.Write(group15N.Bytes())
	h.Write(gBytes)
	return hashToInt(h)
}

// calculateX computes x = H(salt | H(I | ":" | P)).
func calculateX(salt, password []byte) *big.Int {
	inner := digest([]byte(username), []byte(":"), password)
	return new(big.Int).SetBytes(digest(salt, inner))
}

// calculateU computes u = H(pad(A) | pad(B)).
func calculateU(A, B *big.Int) *big.Int {
	return new(big.Int).SetBytes(digest(padToN(A), padToN(B)))
}

// calculateClientS computes the client-side shared secret:
// S = (B - k*g^x) ^ (a + u*x) mod N.
func calculateClientS(k, x, a, B, u *big.Int) []byte {
	gx := new(big.Int).Exp(group15G, x, group15N)
	kgx := new(big.Int).Mul(k, gx)
	diff := new(big.Int).Sub(B, kgx)
	diff.Mod(diff, group15N)

	exp := new(big.Int).Add(a, new(big.Int).Mul(u, x))

	S := new(big.Int).Exp(diff, exp, group15N)
	return padToN(S)
}

// calculateK computes K = H(S), the Apple SRP variant's hashed premaster
// used in place of the raw premaster for both proof hashes (spec.md §4.D;
// matches the iCloud SRP client's calculateK).
func calculateK(premaster []byte) []byte {
	return digest(premaster)
}

// calculateM1 computes the client proof, per RFC 5054 §3.1:
// M1 = H( (H(N) xor H(g)) | H(I) | s | A | B | K ).
func calculateM1(identity, salt, A, B, K []byte) []byte {
	hn := digest(group15N.Bytes())
	hg := digest(padToN(group15G))
	hxor := make([]byte, len(hn))
	for i := range hn {
		hxor[i] = hn[i] ^ hg[i]
	}
	hi := digest(identity)
	return digest(hxor, hi, salt, A, B, K)
}

// calculateM2 computes the server proof: M2 = H(A | M1 | K).
func calculateM2(A, M1, K []byte) []byte {
	return digest(A, M1, K)
}

func constantTimeEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := range a {
		v |= a[i] ^ b[i]
	}
	return v == 0
}
