package sigcodec

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// derSignature builds a DER SEQUENCE by hand so tests control the exact
// integer encodings, including redundant-looking but valid ones.
func derSignature(t *testing.T, r, s *big.Int) []byte {
	t.Helper()

	encodeInt := func(v *big.Int) []byte {
		b := v.Bytes()
		if len(b) == 0 {
			b = []byte{0}
		}
		// High bit set means negative in DER; prepend a zero octet.
		if b[0]&0x80 != 0 {
			b = append([]byte{0}, b...)
		}
		return append([]byte{0x02, byte(len(b))}, b...)
	}

	body := append(encodeInt(r), encodeInt(s)...)
	require.Less(t, len(body), 0x80)
	return append([]byte{0x30, byte(len(body))}, body...)
}

func TestDecodeDER_RoundTrip(t *testing.T) {
	cases := []struct {
		name string
		r, s *big.Int
	}{
		{
			name: "full width scalars",
			r:    new(big.Int).Sub(p256Order, big.NewInt(12345)),
			s:    new(big.Int).Sub(p256Order, big.NewInt(67890)),
		},
		{
			name: "short r needing left padding",
			r:    big.NewInt(0xabcdef),
			s:    new(big.Int).Lsh(big.NewInt(1), 200),
		},
		{
			name: "high bit scalars get DER zero prefix",
			r:    new(big.Int).Lsh(big.NewInt(0x80), 240),
			s:    new(big.Int).Lsh(big.NewInt(0xff), 240),
		},
		{
			name: "single byte scalars",
			r:    big.NewInt(1),
			s:    big.NewInt(2),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sig, err := DecodeDER(derSignature(t, tc.r, tc.s))
			require.NoError(t, err)

			var wantR, wantS [32]byte
			tc.r.FillBytes(wantR[:])
			tc.s.FillBytes(wantS[:])
			assert.Equal(t, wantR, sig.R)
			assert.Equal(t, wantS, sig.S)

			// Re-encoding and decoding again must not drift.
			again, err := DecodeDER(EncodeDER(sig))
			require.NoError(t, err)
			assert.Equal(t, sig, again)
		})
	}
}

func TestDecodeDER_Malformed(t *testing.T) {
	r, s := big.NewInt(7), big.NewInt(9)
	valid := derSignature(t, r, s)

	cases := map[string][]byte{
		"empty":              {},
		"not a sequence":     {0x02, 0x01, 0x01},
		"truncated sequence": valid[:len(valid)-1],
		"trailing bytes":     append(append([]byte{}, valid...), 0x00),
		"zero scalar":        derSignature(t, big.NewInt(0), s),
		"scalar at order":    derSignature(t, p256Order, s),
	}

	for name, der := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeDER(der)
			assert.ErrorIs(t, err, ErrMalformedSignature)
		})
	}
}

func TestNormalizeLowS(t *testing.T) {
	highS := new(big.Int).Sub(p256Order, big.NewInt(5))
	var s [32]byte
	highS.FillBytes(s[:])

	require.False(t, IsLowS(s))
	normalized := NormalizeLowS(s)
	require.True(t, IsLowS(normalized))
	assert.Equal(t, big.NewInt(5), new(big.Int).SetBytes(normalized[:]))

	// Low-s values pass through untouched.
	assert.Equal(t, normalized, NormalizeLowS(normalized))
}

func TestMessageDigest(t *testing.T) {
	authData := []byte{0x01, 0x02, 0x03}
	clientDataJSON := `{"type":"webauthn.get"}`

	inner := sha256.Sum256([]byte(clientDataJSON))
	want := sha256.Sum256(append(authData, inner[:]...))
	assert.Equal(t, want, MessageDigest(authData, clientDataJSON))
}

func TestVerify_BothSForms(t *testing.T) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	digest := sha256.Sum256([]byte("challenge payload"))
	r, s, err := ecdsa.Sign(rand.Reader, priv, digest[:])
	require.NoError(t, err)

	var sig Signature
	r.FillBytes(sig.R[:])
	s.FillBytes(sig.S[:])

	assert.True(t, Verify(&priv.PublicKey, digest, sig))
	assert.True(t, Verify(&priv.PublicKey, digest, Normalize(sig)))

	// Flipping the s form keeps the signature valid; flipping the
	// digest does not.
	other := sha256.Sum256([]byte("different payload"))
	assert.False(t, Verify(&priv.PublicKey, other, sig))
}

func TestCheckClientData(t *testing.T) {
	challenge := []byte("0123456789abcdef0123456789abcdef")
	encoded := base64.RawURLEncoding.EncodeToString(challenge)
	clientDataJSON := `{"type":"webauthn.get","challenge":"` + encoded + `","origin":"https://wallet.example"}`

	typeIndex := uint64(strings.Index(clientDataJSON, `"type"`))
	challengeIndex := uint64(strings.Index(clientDataJSON, `"challenge"`))

	require.NoError(t, CheckClientData(clientDataJSON, challenge, challengeIndex, typeIndex))

	assert.ErrorIs(t,
		CheckClientData(clientDataJSON, []byte("another challenge value!!!!!!!!!"), challengeIndex, typeIndex),
		ErrChallengeMismatch)
	assert.ErrorIs(t,
		CheckClientData(clientDataJSON, challenge, challengeIndex+1, typeIndex),
		ErrChallengeMismatch)
	assert.ErrorIs(t,
		CheckClientData(clientDataJSON, challenge, challengeIndex, typeIndex+3),
		ErrCeremonyTypeMismatch)
	assert.ErrorIs(t,
		CheckClientData(clientDataJSON, challenge, challengeIndex, uint64(len(clientDataJSON))+10),
		ErrCeremonyTypeMismatch)
}
