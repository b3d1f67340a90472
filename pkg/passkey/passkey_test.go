package passkey_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"math/big"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-wallet/relay/pkg/passkey"
	"github.com/strata-wallet/relay/pkg/wallet/wallettest"
)

func TestPublicKey_RoundTrip(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	key := passkey.FromECDSA(&priv.PublicKey)
	pub, err := key.ECDSA()
	require.NoError(t, err)
	assert.Equal(t, 0, priv.PublicKey.X.Cmp(pub.X))
	assert.Equal(t, 0, priv.PublicKey.Y.Cmp(pub.Y))
}

func TestPublicKey_OffCurveRejected(t *testing.T) {
	var key passkey.PublicKey
	big.NewInt(1).FillBytes(key.QX[:])
	big.NewInt(1).FillBytes(key.QY[:])

	_, err := key.ECDSA()
	assert.ErrorIs(t, err, passkey.ErrNotOnCurve)
}

func TestPublicKey_Fingerprint(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	key := passkey.FromECDSA(&priv.PublicKey)

	want := ethcrypto.Keccak256(key.QX[:], key.QY[:])[12:]
	assert.Equal(t, want, key.Fingerprint().Bytes())
}

func TestParseAttestationObject(t *testing.T) {
	auth, err := wallettest.NewAuthenticator("wallet.example")
	require.NoError(t, err)

	raw, err := auth.AttestationObject()
	require.NoError(t, err)

	cred, err := passkey.ParseAttestationObject(raw)
	require.NoError(t, err)
	assert.Equal(t, auth.CredentialID(), cred.ID)
	assert.Equal(t, auth.PublicKey(), cred.Key)
	assert.Equal(t, auth.PublicKey().Fingerprint(), cred.Owner())
}

func TestParseAttestationObject_Malformed(t *testing.T) {
	_, err := passkey.ParseAttestationObject([]byte{0xff, 0x00})
	assert.ErrorIs(t, err, passkey.ErrMalformedAttestation)
}

func attestationWithAuthData(t *testing.T, authData []byte) []byte {
	t.Helper()
	raw, err := cbor.Marshal(map[string]any{
		"fmt":      "none",
		"attStmt":  map[string]any{},
		"authData": authData,
	})
	require.NoError(t, err)
	return raw
}

func TestParseAttestationObject_Truncated(t *testing.T) {
	_, err := passkey.ParseAttestationObject(attestationWithAuthData(t, make([]byte, 20)))
	assert.ErrorIs(t, err, passkey.ErrTruncatedAuthData)
}

func TestParseAttestationObject_NoAttestedCredential(t *testing.T) {
	authData := make([]byte, 37)
	authData[32] = 0x01 // UP only, no AT
	_, err := passkey.ParseAttestationObject(attestationWithAuthData(t, authData))
	assert.ErrorIs(t, err, passkey.ErrNoAttestedCredential)
}
