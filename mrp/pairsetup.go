package mrp

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/lanikai/atvkit/internal/aead"
	"github.com/lanikai/atvkit/internal/kdf"
	"github.com/lanikai/atvkit/internal/srp"
	"github.com/lanikai/atvkit/internal/tlv"
)

// Exchanger sends one pairing TLV to the device and returns its response.
// Implementations own the underlying transport (HTTP, raw socket, …); the
// state machine only knows about request/response TLV pairs, per spec.md
// §9's "callable indirection" design note generalized to pair-setup.
type Exchanger interface {
	Exchange(ctx context.Context, outgoing map[byte][]byte) (incoming map[byte][]byte, err error)
}

// pairSetupMethod is the fixed pair-setup method byte (no MFi variant).
const pairSetupMethod = 0

// PairSetup runs the full pair-setup handshake (spec.md §4.E) and returns
// long-term Credentials on success. Fails immediately — no retry — on any
// protocol or cryptographic error (spec.md §7).
func PairSetup(ctx context.Context, ex Exchanger, pin string) (Credentials, error) {
	log.Debug("pair-setup: starting")

	// Step 0: generate long-term Ed25519 identity and ephemeral randomness.
	// The same 32-byte seed drives both the Ed25519 signing key and the SRP
	// client private exponent, per spec.md §4.D.
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return Credentials{}, errors.Wrap(err, "mrp: generating identity seed")
	}
	signingKey := ed25519.NewKeyFromSeed(seed)
	authPublic := signingKey.Public().(ed25519.PublicKey)

	pairingID := []byte(uuid.New().String())

	srpSession, err := srp.New(pin, hex.EncodeToString(seed))
	if err != nil {
		return Credentials{}, errors.Wrap(err, "mrp: initializing SRP session")
	}

	// Step 1: pair-start.
	resp, err := ex.Exchange(ctx, map[byte][]byte{
		tlv.Method: {pairSetupMethod},
		tlv.State:  {0x01},
	})
	if err != nil {
		return Credentials{}, errors.Wrap(err, "mrp: pair-setup M1")
	}

	// Step 2: receive server SRP public value and salt, run SRP, emit proof.
	serverPublic, ok := resp[tlv.PublicKey]
	if !ok {
		return Credentials{}, errors.New("mrp: pair-setup M2 missing public key")
	}
	salt, ok := resp[tlv.Salt]
	if !ok {
		return Credentials{}, errors.New("mrp: pair-setup M2 missing salt")
	}

	premasterHex, clientProof, err := srpSession.Process(hex.EncodeToString(serverPublic), hex.EncodeToString(salt))
	if err != nil {
		return Credentials{}, authErr("SRP derivation failed", err)
	}

	resp, err = ex.Exchange(ctx, map[byte][]byte{
		tlv.State:     {0x03},
		tlv.PublicKey: srpSession.PublicKey(),
		tlv.Proof:     clientProof,
	})
	if err != nil {
		return Credentials{}, errors.Wrap(err, "mrp: pair-setup M3")
	}

	serverProof, ok := resp[tlv.Proof]
	if !ok {
		return Credentials{}, errors.New("mrp: pair-setup M4 missing proof")
	}
	if err := srpSession.VerifyServerProof(hex.EncodeToString(serverPublic), clientProof, serverProof); err != nil {
		return Credentials{}, authErr("SRP server proof mismatch", err)
	}

	premaster, err := hex.DecodeString(premasterHex)
	if err != nil {
		return Credentials{}, errors.Wrap(err, "mrp: decoding premaster key")
	}

	// Step 3: derive controller-sign and session-encrypt keys, sign our
	// device info, and send it encrypted.
	controllerSignKey, err := kdf.ControllerSign.DeriveWith(premaster)
	if err != nil {
		return Credentials{}, errors.Wrap(err, "mrp: deriving controller sign key")
	}
	sessionKey, err := kdf.PairSetupEncrypt.DeriveWith(premaster)
	if err != nil {
		return Credentials{}, errors.Wrap(err, "mrp: deriving session encrypt key")
	}

	deviceInfo := concat(controllerSignKey, pairingID, authPublic)
	deviceSignature := ed25519.Sign(signingKey, deviceInfo)

	innerTLV := tlv.Encode(map[byte][]byte{
		tlv.Identifier: pairingID,
		tlv.PublicKey:  authPublic,
		tlv.Signature:  deviceSignature,
	})

	cipher, err := aead.New(sessionKey, sessionKey)
	if err != nil {
		return Credentials{}, errors.Wrap(err, "mrp: constructing session cipher")
	}
	encrypted := cipher.Encrypt(innerTLV, nil, "PS-Msg05")

	resp, err = ex.Exchange(ctx, map[byte][]byte{
		tlv.State:         {0x05},
		tlv.EncryptedData: encrypted,
	})
	if err != nil {
		return Credentials{}, errors.Wrap(err, "mrp: pair-setup M5")
	}

	// Step 4: decrypt the device's response and extract its identity.
	respEncrypted, ok := resp[tlv.EncryptedData]
	if !ok {
		return Credentials{}, errors.New("mrp: pair-setup M6 missing encrypted data")
	}
	decrypted, err := cipher.Decrypt(respEncrypted, nil, "PS-Msg06")
	if err != nil {
		return Credentials{}, authErr("decrypting M6", err)
	}

	innerFields, err := tlv.Decode(decrypted)
	if err != nil {
		return Credentials{}, errors.Wrap(err, "mrp: decoding M6 TLV")
	}

	atvID, ok := innerFields[tlv.Identifier]
	if !ok {
		return Credentials{}, errors.New("mrp: pair-setup M6 missing identifier")
	}
	atvLTPK, ok := innerFields[tlv.PublicKey]
	if !ok {
		return Credentials{}, errors.New("mrp: pair-setup M6 missing public key")
	}
	atvSignature, ok := innerFields[tlv.Signature]
	if !ok {
		return Credentials{}, errors.New("mrp: pair-setup M6 missing signature")
	}

	// Resolves spec.md §9's open TODO: verify the device's signature over
	// its own identity, rather than trusting it blindly.
	accessoryX, err := kdf.AccessorySign.DeriveWith(premaster)
	if err != nil {
		return Credentials{}, errors.Wrap(err, "mrp: deriving accessory sign key")
	}
	signed := concat(accessoryX, atvID, atvLTPK)
	if !ed25519.Verify(ed25519.PublicKey(atvLTPK), signed, atvSignature) {
		return Credentials{}, authErr("device signature verification failed", nil)
	}

	log.Debug("pair-setup: complete, atv_id=%x", atvID)

	return Credentials{
		LTPK:     atvLTPK,
		LTSK:     seed,
		AtvID:    atvID,
		ClientID: pairingID,
	}, nil
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
