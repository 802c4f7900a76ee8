package mrp

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha512"
	"math/big"
	"testing"

	"golang.org/x/crypto/curve25519"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/atvkit/internal/aead"
	"github.com/lanikai/atvkit/internal/kdf"
	"github.com/lanikai/atvkit/internal/tlv"
)

// The same RFC 3526 3072-bit group used by internal/srp, duplicated here so
// the fake device in these tests can act as a real SRP-6a server without
// reaching into srp's unexported internals.
var (
	groupN = mustHex("FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD129024E088A67CC7" +
		"4020BBEA63B139B22514A08798E3404DDEF9519B3CD3A431B302B0A6DF25F14" +
		"374FE1356D6D51C245E485B576625E7EC6F44C42E9A637ED6B0BFF5CB6F406B" +
		"7EDEE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45B3DC2007CB8A163" +
		"BF0598DA48361C55D39A69163FA8FD24CF5F83655D23DCA3AD961C62F35620" +
		"8552BB9ED529077096966D670C354E4ABC9804F1746C08CA18217C32905E46" +
		"2E36CE3BE39E772C180E86039B2783A2EC07A28FB5C55DF06F4C52C9DE2BCB" +
		"F6955817183995497CEA956AE515D2261898FA051015728E5A8AACAA68FFFF" +
		"FFFFFFFFFFFF")
	groupG     = big.NewInt(2)
	nLenBytes  = (groupN.BitLen() + 7) / 8
)

func mustHex(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("bad constant")
	}
	return n
}

func padN(n *big.Int) []byte {
	b := n.Bytes()
	if len(b) >= nLenBytes {
		return b
	}
	out := make([]byte, nLenBytes)
	copy(out[nLenBytes-len(b):], b)
	return out
}

func digest(parts ...[]byte) []byte {
	h := sha512.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

func calcX(salt, password []byte) *big.Int {
	inner := digest([]byte("Pair-Setup"), []byte(":"), password)
	return new(big.Int).SetBytes(digest(salt, inner))
}

func calcU(A, B *big.Int) *big.Int {
	return new(big.Int).SetBytes(digest(padN(A), padN(B)))
}

func multiplier() *big.Int {
	return new(big.Int).SetBytes(digest(groupN.Bytes(), padN(groupG)))
}

// fakeDevice plays the Apple TV side of both pair-setup and pair-verify,
// entirely in memory, so the state machine in pairsetup.go/pairverify.go can
// be exercised end to end without real hardware.
type fakeDevice struct {
	t   *testing.T
	pin string

	salt []byte
	v    *big.Int
	b    *big.Int
	B    *big.Int

	ltpk ed25519.PublicKey
	ltsk ed25519.PrivateKey
	id   []byte

	srpPremaster []byte
	clientPublic []byte

	// pair-verify state
	verifyPrivate [32]byte
	verifyPublic  []byte
}

func newFakeDevice(t *testing.T, pin string) *fakeDevice {
	salt := make([]byte, 16)
	_, err := rand.Read(salt)
	require.NoError(t, err)

	x := calcX(salt, []byte(pin))
	v := new(big.Int).Exp(groupG, x, groupN)

	bBytes := make([]byte, 32)
	_, err = rand.Read(bBytes)
	require.NoError(t, err)
	b := new(big.Int).SetBytes(bBytes)

	k := multiplier()
	gb := new(big.Int).Exp(groupG, b, groupN)
	B := new(big.Int).Add(new(big.Int).Mul(k, v), gb)
	B.Mod(B, groupN)

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	return &fakeDevice{
		t: t, pin: pin, salt: salt, v: v, b: b, B: B,
		ltpk: pub, ltsk: priv, id: []byte("AA:BB:CC:DD:EE:FF"),
	}
}

func (d *fakeDevice) Exchange(_ context.Context, outgoing map[byte][]byte) (map[byte][]byte, error) {
	state := outgoing[tlv.State][0]
	switch state {
	case 0x01:
		return map[byte][]byte{
			tlv.PublicKey: padN(d.B),
			tlv.Salt:      d.salt,
		}, nil
	case 0x03:
		return d.handleM3(outgoing)
	case 0x05:
		return d.handleM5(outgoing)
	default:
		d.t.Fatalf("unexpected pair-setup state %d", state)
		return nil, nil
	}
}

func (d *fakeDevice) handleM3(outgoing map[byte][]byte) (map[byte][]byte, error) {
	d.clientPublic = outgoing[tlv.PublicKey]
	A := new(big.Int).SetBytes(d.clientPublic)

	u := calcU(A, d.B)
	Av := new(big.Int).Mul(A, new(big.Int).Exp(d.v, u, groupN))
	Av.Mod(Av, groupN)
	S := new(big.Int).Exp(Av, d.b, groupN)
	d.srpPremaster = padN(S)

	// Mirrors srp.Session.VerifyServerProof: M2 = H(A | M1 | K), with
	// K = H(S).
	serverProof := digest(d.clientPublic, outgoing[tlv.Proof], digest(d.srpPremaster))
	return map[byte][]byte{tlv.Proof: serverProof}, nil
}

func (d *fakeDevice) handleM5(outgoing map[byte][]byte) (map[byte][]byte, error) {
	sessionKey, err := kdf.PairSetupEncrypt.DeriveWith(d.srpPremaster)
	require.NoError(d.t, err)
	cipher, err := aead.New(sessionKey, sessionKey)
	require.NoError(d.t, err)

	plaintext, err := cipher.Decrypt(outgoing[tlv.EncryptedData], nil, "PS-Msg05")
	require.NoError(d.t, err)

	fields, err := tlv.Decode(plaintext)
	require.NoError(d.t, err)

	pairingID := fields[tlv.Identifier]
	clientPub := fields[tlv.PublicKey]
	clientSig := fields[tlv.Signature]

	controllerSignKey, err := kdf.ControllerSign.DeriveWith(d.srpPremaster)
	require.NoError(d.t, err)
	signed := append(append(append([]byte{}, controllerSignKey...), pairingID...), clientPub...)
	require.True(d.t, ed25519.Verify(ed25519.PublicKey(clientPub), signed, clientSig))

	accessoryX, err := kdf.AccessorySign.DeriveWith(d.srpPremaster)
	require.NoError(d.t, err)
	deviceSigned := append(append(append([]byte{}, accessoryX...), d.id...), []byte(d.ltpk)...)
	deviceSig := ed25519.Sign(d.ltsk, deviceSigned)

	inner := tlv.Encode(map[byte][]byte{
		tlv.Identifier: d.id,
		tlv.PublicKey:  []byte(d.ltpk),
		tlv.Signature:  deviceSig,
	})
	encrypted := cipher.Encrypt(inner, nil, "PS-Msg06")

	return map[byte][]byte{tlv.EncryptedData: encrypted}, nil
}

// verifyExchange plays pair-verify against real Credentials.
func (d *fakeDevice) verifyExchange(creds Credentials, tamperIdentifier, tamperSignature bool) func(context.Context, map[byte][]byte) (map[byte][]byte, error) {
	return func(_ context.Context, outgoing map[byte][]byte) (map[byte][]byte, error) {
		state := outgoing[tlv.State][0]
		switch state {
		case 0x01:
			clientPublic := outgoing[tlv.PublicKey]
			_, err := rand.Read(d.verifyPrivate[:])
			require.NoError(d.t, err)
			sessionPublic, err := curve25519.X25519(d.verifyPrivate[:], curve25519.Basepoint)
			require.NoError(d.t, err)
			d.verifyPublic = sessionPublic

			shared, err := curve25519.X25519(d.verifyPrivate[:], clientPublic)
			require.NoError(d.t, err)

			sessionKey, err := kdf.PairVerifyEncrypt.DeriveWith(shared)
			require.NoError(d.t, err)
			cipher, err := aead.New(sessionKey, sessionKey)
			require.NoError(d.t, err)

			deviceID := append([]byte{}, creds.AtvID...)
			if tamperIdentifier {
				deviceID[0] ^= 0xFF
			}
			signed := append(append(append([]byte{}, sessionPublic...), creds.AtvID...), clientPublic...)
			sig := ed25519.Sign(d.ltsk, signed)
			if tamperSignature {
				sig = append([]byte{}, sig...)
				sig[0] ^= 0xFF
			}

			inner := tlv.Encode(map[byte][]byte{
				tlv.Identifier: deviceID,
				tlv.Signature:  sig,
			})
			encrypted := cipher.Encrypt(inner, nil, "PV-Msg02")

			return map[byte][]byte{
				tlv.PublicKey:     sessionPublic,
				tlv.EncryptedData: encrypted,
			}, nil
		case 0x03:
			return map[byte][]byte{}, nil
		default:
			d.t.Fatalf("unexpected pair-verify state %d", state)
			return nil, nil
		}
	}
}

type exchangeFunc func(context.Context, map[byte][]byte) (map[byte][]byte, error)

func (f exchangeFunc) Exchange(ctx context.Context, outgoing map[byte][]byte) (map[byte][]byte, error) {
	return f(ctx, outgoing)
}

func TestPairSetupSucceeds(t *testing.T) {
	device := newFakeDevice(t, "3939")
	creds, err := PairSetup(context.Background(), device, "3939")
	require.NoError(t, err)
	assert.Equal(t, device.id, creds.AtvID)
	assert.Equal(t, []byte(device.ltpk), creds.LTPK)
	assert.Len(t, creds.LTSK, 32)
}

func TestPairSetupWrongPinFails(t *testing.T) {
	device := newFakeDevice(t, "3939")
	_, err := PairSetup(context.Background(), device, "0000")
	require.Error(t, err)
}

func TestCredentialsRoundTripThroughString(t *testing.T) {
	device := newFakeDevice(t, "3939")
	creds, err := PairSetup(context.Background(), device, "3939")
	require.NoError(t, err)

	parsed, err := ParseCredentials(creds.String())
	require.NoError(t, err)
	assert.Equal(t, creds, parsed)
}

func TestPairVerifySucceeds(t *testing.T) {
	setupDevice := newFakeDevice(t, "3939")
	creds, err := PairSetup(context.Background(), setupDevice, "3939")
	require.NoError(t, err)

	verifyDevice := &fakeDevice{t: t, ltsk: setupDevice.ltsk, ltpk: setupDevice.ltpk}
	keys, err := PairVerify(context.Background(), exchangeFunc(verifyDevice.verifyExchange(creds, false, false)), creds)
	require.NoError(t, err)
	assert.Len(t, keys.OutputKey, 32)
	assert.Len(t, keys.InputKey, 32)
	assert.NotEqual(t, keys.OutputKey, keys.InputKey)
}

func TestPairVerifyRejectsTamperedIdentifier(t *testing.T) {
	setupDevice := newFakeDevice(t, "3939")
	creds, err := PairSetup(context.Background(), setupDevice, "3939")
	require.NoError(t, err)

	verifyDevice := &fakeDevice{t: t, ltsk: setupDevice.ltsk, ltpk: setupDevice.ltpk}
	_, err = PairVerify(context.Background(), exchangeFunc(verifyDevice.verifyExchange(creds, true, false)), creds)
	require.Error(t, err)
	var authErr *AuthenticationError
	assert.ErrorAs(t, err, &authErr)
}

func TestPairVerifyRejectsBadSignature(t *testing.T) {
	setupDevice := newFakeDevice(t, "3939")
	creds, err := PairSetup(context.Background(), setupDevice, "3939")
	require.NoError(t, err)

	verifyDevice := &fakeDevice{t: t, ltsk: setupDevice.ltsk, ltpk: setupDevice.ltpk}
	_, err = PairVerify(context.Background(), exchangeFunc(verifyDevice.verifyExchange(creds, false, true)), creds)
	require.Error(t, err)
	var authErr *AuthenticationError
	assert.ErrorAs(t, err, &authErr)
}
