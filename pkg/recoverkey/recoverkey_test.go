package recoverkey

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-wallet/relay/pkg/passkey"
	"github.com/strata-wallet/relay/pkg/sigcodec"
	"github.com/strata-wallet/relay/pkg/wallet/wallettest"
)

func signDigest(t *testing.T, priv *ecdsa.PrivateKey, digest [32]byte) sigcodec.Signature {
	t.Helper()
	r, s, err := ecdsa.Sign(rand.Reader, priv, digest[:])
	require.NoError(t, err)

	var sig sigcodec.Signature
	r.FillBytes(sig.R[:])
	s.FillBytes(sig.S[:])
	return sig
}

func TestCandidates_ContainsTrueSigner(t *testing.T) {
	for range 8 {
		priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		require.NoError(t, err)
		want := passkey.FromECDSA(&priv.PublicKey)

		digest := sha256.Sum256([]byte("wallet action challenge"))
		sig := signDigest(t, priv, digest)

		candidates := Candidates(sig, digest)
		require.NotEmpty(t, candidates)
		require.LessOrEqual(t, len(candidates), 4)
		assert.Contains(t, candidates, want)

		// The normalized form recovers the same signer too.
		assert.Contains(t, Candidates(sigcodec.Normalize(sig), digest), want)
	}
}

func TestCandidates_RejectsOutOfRangeScalars(t *testing.T) {
	digest := sha256.Sum256([]byte("x"))
	var zero sigcodec.Signature
	assert.Empty(t, Candidates(zero, digest))

	var atOrder sigcodec.Signature
	elliptic.P256().Params().N.FillBytes(atOrder.R[:])
	big.NewInt(1).FillBytes(atOrder.S[:])
	assert.Empty(t, Candidates(atOrder, digest))
}

func TestResolve_RegistryFastPath(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	want := passkey.FromECDSA(&priv.PublicKey)

	digest := sha256.Sum256([]byte("login challenge"))
	candidates := Candidates(signDigest(t, priv, digest), digest)
	require.Contains(t, candidates, want)

	registry := func(_ context.Context, owner common.Address) (bool, error) {
		return owner == want.Fingerprint(), nil
	}

	got, err := NewResolver(registry, nil).Resolve(context.Background(), candidates)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestResolve_SecondSignature(t *testing.T) {
	auth, err := wallettest.NewAuthenticator("wallet.example")
	require.NoError(t, err)
	want := auth.PublicKey()

	// First ceremony: ambiguous candidates.
	challenge := []byte("first ceremony challenge material")
	assertion, err := auth.Sign(context.Background(), challenge)
	require.NoError(t, err)
	digest := sigcodec.MessageDigest(assertion.AuthenticatorData, assertion.ClientDataJSON)
	candidates := Candidates(sigcodec.Signature{R: assertion.R, S: assertion.S}, digest)
	require.Contains(t, candidates, want)

	got, err := NewResolver(nil, auth).Resolve(context.Background(), candidates)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestResolve_DifferentCredentialsFail(t *testing.T) {
	first, err := wallettest.NewAuthenticator("wallet.example")
	require.NoError(t, err)
	second, err := wallettest.NewAuthenticator("wallet.example")
	require.NoError(t, err)

	challenge := []byte("first ceremony challenge material")
	assertion, err := first.Sign(context.Background(), challenge)
	require.NoError(t, err)
	digest := sigcodec.MessageDigest(assertion.AuthenticatorData, assertion.ClientDataJSON)
	candidates := Candidates(sigcodec.Signature{R: assertion.R, S: assertion.S}, digest)
	require.NotEmpty(t, candidates)

	// The second ceremony answers from a different credential: no
	// candidate may verify, and no wrong key may ever be returned.
	_, err = NewResolver(nil, second).Resolve(context.Background(), candidates)
	assert.ErrorIs(t, err, ErrKeyRecoveryFailed)
}

func TestResolve_NoCandidates(t *testing.T) {
	_, err := NewResolver(nil, nil).Resolve(context.Background(), nil)
	assert.ErrorIs(t, err, ErrKeyRecoveryFailed)
}
