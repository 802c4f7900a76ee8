package mrp

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"

	"golang.org/x/crypto/curve25519"

	"github.com/pkg/errors"

	"github.com/lanikai/atvkit/internal/aead"
	"github.com/lanikai/atvkit/internal/kdf"
	"github.com/lanikai/atvkit/internal/tlv"
)

// SessionKeys are the two directional ChaCha20-Poly1305 keys produced by a
// successful pair-verify (spec.md §4.E).
type SessionKeys struct {
	// OutputKey encrypts traffic sent to the device.
	OutputKey []byte
	// InputKey decrypts traffic received from the device.
	InputKey []byte
}

// PairVerify runs the pair-verify handshake against an existing Credentials
// and returns the derived session keys. Fails immediately with
// AuthenticationError on any signature or AEAD mismatch (spec.md §7); there
// is no retry for pair-verify.
func PairVerify(ctx context.Context, ex Exchanger, creds Credentials) (SessionKeys, error) {
	log.Debug("pair-verify: starting")

	var verifyPrivate [32]byte
	if _, err := rand.Read(verifyPrivate[:]); err != nil {
		return SessionKeys{}, errors.Wrap(err, "mrp: generating verify keypair")
	}
	verifyPublic, err := curve25519.X25519(verifyPrivate[:], curve25519.Basepoint)
	if err != nil {
		return SessionKeys{}, errors.Wrap(err, "mrp: computing verify public key")
	}

	// Step 1: send our ephemeral X25519 public key.
	resp, err := ex.Exchange(ctx, map[byte][]byte{
		tlv.State:     {0x01},
		tlv.PublicKey: verifyPublic,
	})
	if err != nil {
		return SessionKeys{}, errors.Wrap(err, "mrp: pair-verify M1")
	}

	sessionPublic, ok := resp[tlv.PublicKey]
	if !ok {
		return SessionKeys{}, errors.New("mrp: pair-verify M2 missing public key")
	}
	encryptedData, ok := resp[tlv.EncryptedData]
	if !ok {
		return SessionKeys{}, errors.New("mrp: pair-verify M2 missing encrypted data")
	}

	shared, err := curve25519.X25519(verifyPrivate[:], sessionPublic)
	if err != nil {
		return SessionKeys{}, authErr("X25519 agreement failed", err)
	}

	sessionKey, err := kdf.PairVerifyEncrypt.DeriveWith(shared)
	if err != nil {
		return SessionKeys{}, errors.Wrap(err, "mrp: deriving pair-verify session key")
	}

	cipher, err := aead.New(sessionKey, sessionKey)
	if err != nil {
		return SessionKeys{}, errors.Wrap(err, "mrp: constructing session cipher")
	}

	decrypted, err := cipher.Decrypt(encryptedData, nil, "PV-Msg02")
	if err != nil {
		return SessionKeys{}, authErr("decrypting M2", err)
	}

	innerFields, err := tlv.Decode(decrypted)
	if err != nil {
		return SessionKeys{}, errors.Wrap(err, "mrp: decoding M2 TLV")
	}

	deviceID, ok := innerFields[tlv.Identifier]
	if !ok {
		return SessionKeys{}, errors.New("mrp: pair-verify M2 missing identifier")
	}
	deviceSignature, ok := innerFields[tlv.Signature]
	if !ok {
		return SessionKeys{}, errors.New("mrp: pair-verify M2 missing signature")
	}

	if !bytesEqual(deviceID, creds.AtvID) {
		return SessionKeys{}, authErr("device identifier mismatch", nil)
	}

	signed := concat(sessionPublic, deviceID, verifyPublic)
	if !ed25519.Verify(ed25519.PublicKey(creds.LTPK), signed, deviceSignature) {
		return SessionKeys{}, authErr("device signature verification failed", nil)
	}

	// Step 2: sign and emit our own identity.
	ourSigned := concat(verifyPublic, creds.ClientID, sessionPublic)
	signingKey := ed25519.NewKeyFromSeed(creds.LTSK)
	ourSignature := ed25519.Sign(signingKey, ourSigned)

	innerTLV := tlv.Encode(map[byte][]byte{
		tlv.Identifier: creds.ClientID,
		tlv.Signature:  ourSignature,
	})
	ourEncrypted := cipher.Encrypt(innerTLV, nil, "PV-Msg03")

	if _, err := ex.Exchange(ctx, map[byte][]byte{
		tlv.State:         {0x03},
		tlv.EncryptedData: ourEncrypted,
	}); err != nil {
		return SessionKeys{}, errors.Wrap(err, "mrp: pair-verify M3")
	}

	// Step 3: derive the two directional session keys used for all traffic
	// after verification.
	outputKey, err := kdf.SessionWriteKey.DeriveWith(shared)
	if err != nil {
		return SessionKeys{}, errors.Wrap(err, "mrp: deriving session write key")
	}
	inputKey, err := kdf.SessionReadKey.DeriveWith(shared)
	if err != nil {
		return SessionKeys{}, errors.Wrap(err, "mrp: deriving session read key")
	}

	log.Debug("pair-verify: complete")

	return SessionKeys{OutputKey: outputKey, InputKey: inputKey}, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
