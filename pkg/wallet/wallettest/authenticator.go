package wallettest

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	cose "github.com/ldclabs/cose/key/ecdsa"

	"github.com/strata-wallet/relay/pkg/passkey"
	"github.com/strata-wallet/relay/pkg/sigcodec"
)

// Authenticator is a software passkey: a P-256 keypair that produces
// WebAuthn-shaped assertions and attestation objects. It implements
// recoverkey.Signer.
type Authenticator struct {
	priv         *ecdsa.PrivateKey
	credentialID []byte
	aaguid       uuid.UUID
	rpIDHash     [32]byte
	origin       string
	signCount    uint32
}

// NewAuthenticator enrolls a fresh software credential for rpID.
func NewAuthenticator(rpID string) (*Authenticator, error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}
	credentialID := make([]byte, 16)
	if _, err := rand.Read(credentialID); err != nil {
		return nil, err
	}
	return &Authenticator{
		priv:         priv,
		credentialID: credentialID,
		aaguid:       uuid.New(),
		rpIDHash:     sha256.Sum256([]byte(rpID)),
		origin:       "https://" + rpID,
	}, nil
}

// PublicKey returns the credential's fixed-width public key.
func (a *Authenticator) PublicKey() passkey.PublicKey {
	return passkey.FromECDSA(&a.priv.PublicKey)
}

// CredentialID returns the opaque credential id.
func (a *Authenticator) CredentialID() []byte {
	return a.credentialID
}

// Sign runs an assertion ceremony over challenge and returns the wire
// tuple, with a canonical low-s signature the way platform
// authenticator stacks hand it to callers after DER decoding.
func (a *Authenticator) Sign(_ context.Context, challenge []byte) (*passkey.Assertion, error) {
	clientDataJSON := fmt.Sprintf(
		`{"type":"webauthn.get","challenge":"%s","origin":"%s","crossOrigin":false}`,
		base64.RawURLEncoding.EncodeToString(challenge), a.origin,
	)
	typeIndex := uint64(strings.Index(clientDataJSON, `"type"`))
	challengeIndex := uint64(strings.Index(clientDataJSON, `"challenge"`))

	a.signCount++
	authData := make([]byte, 37)
	copy(authData, a.rpIDHash[:])
	authData[32] = 0x05 // UP | UV
	binary.BigEndian.PutUint32(authData[33:], a.signCount)

	digest := sigcodec.MessageDigest(authData, clientDataJSON)
	r, s, err := ecdsa.Sign(rand.Reader, a.priv, digest[:])
	if err != nil {
		return nil, err
	}

	assertion := &passkey.Assertion{
		AuthenticatorData: authData,
		ClientDataJSON:    clientDataJSON,
		ChallengeIndex:    challengeIndex,
		TypeIndex:         typeIndex,
	}
	r.FillBytes(assertion.R[:])
	s.FillBytes(assertion.S[:])
	assertion.S = sigcodec.NormalizeLowS(assertion.S)
	return assertion, nil
}

// AttestationObject builds the CTAP2 enrollment envelope carrying the
// credential's COSE public key, for exercising the enrollment decoder.
func (a *Authenticator) AttestationObject() ([]byte, error) {
	coseKey, err := cose.KeyFromPublic(&a.priv.PublicKey)
	if err != nil {
		return nil, err
	}
	keyBytes, err := cbor.Marshal(coseKey)
	if err != nil {
		return nil, err
	}

	authData := make([]byte, 0, 37+16+2+len(a.credentialID)+len(keyBytes))
	authData = append(authData, a.rpIDHash[:]...)
	authData = append(authData, 0x45) // UP | UV | AT
	authData = binary.BigEndian.AppendUint32(authData, a.signCount)
	authData = append(authData, a.aaguid[:]...)
	authData = binary.BigEndian.AppendUint16(authData, uint16(len(a.credentialID)))
	authData = append(authData, a.credentialID...)
	authData = append(authData, keyBytes...)

	return cbor.Marshal(map[string]any{
		"fmt":      "none",
		"attStmt":  map[string]any{},
		"authData": authData,
	})
}
