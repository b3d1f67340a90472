package passkey

import (
	"bytes"
	"crypto/elliptic"
	"encoding/binary"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/ldclabs/cose/key"
	cose "github.com/ldclabs/cose/key/ecdsa"
)

// AuthDataFlag is the flags byte of WebAuthn authenticator data.
// https://www.w3.org/TR/webauthn-3/#sctn-authenticator-data
type AuthDataFlag byte

const (
	AuthDataFlagUserPresent AuthDataFlag = 1 << iota
	_
	AuthDataFlagUserVerified
	_
	_
	_
	AuthDataFlagAttestedCredentialDataIncluded
	AuthDataFlagExtensionDataIncluded
)

func (f AuthDataFlag) UserPresent() bool {
	return f&AuthDataFlagUserPresent != 0
}
func (f AuthDataFlag) UserVerified() bool {
	return f&AuthDataFlagUserVerified != 0
}
func (f AuthDataFlag) AttestedCredentialDataIncluded() bool {
	return f&AuthDataFlagAttestedCredentialDataIncluded != 0
}
func (f AuthDataFlag) ExtensionDataIncluded() bool {
	return f&AuthDataFlagExtensionDataIncluded != 0
}

// attestationObject is the CTAP2 attestation envelope returned by the
// platform credential API at enrollment.
type attestationObject struct {
	Format               string          `cbor:"fmt"`
	AttestationStatement cbor.RawMessage `cbor:"attStmt"`
	AuthData             []byte          `cbor:"authData"`
}

// ParseAttestationObject extracts the enrolled credential from a raw
// attestation object. Enrollment is the only moment the platform
// reveals the credential's public key directly; everything after it
// must recover the key from signatures instead.
func ParseAttestationObject(raw []byte) (*Credential, error) {
	var att attestationObject
	if err := cbor.Unmarshal(raw, &att); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedAttestation, err)
	}
	return parseAuthData(att.AuthData)
}

func parseAuthData(data []byte) (*Credential, error) {
	// rpIdHash (32) + flags (1) + signCount (4)
	if len(data) < 37 {
		return nil, ErrTruncatedAuthData
	}
	flags := AuthDataFlag(data[32])
	if !flags.AttestedCredentialDataIncluded() {
		return nil, ErrNoAttestedCredential
	}

	offset := 37
	if len(data) < offset+18 {
		return nil, ErrTruncatedAuthData
	}
	aaguid := uuid.UUID(data[offset : offset+16])
	offset += 16

	length := int(binary.BigEndian.Uint16(data[offset : offset+2]))
	offset += 2
	if len(data) < offset+length {
		return nil, ErrTruncatedAuthData
	}
	credentialID := bytes.Clone(data[offset : offset+length])
	offset += length

	// Extension data may follow the key, so decode a single CBOR item
	// rather than requiring the key to consume the rest of the buffer.
	var coseKey key.Key
	dec := cbor.NewDecoder(bytes.NewReader(data[offset:]))
	if err := dec.Decode(&coseKey); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedAttestation, err)
	}

	pub, err := cose.KeyToPublic(coseKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedCredential, err)
	}
	if pub.Curve != elliptic.P256() {
		return nil, ErrUnsupportedCredential
	}

	return &Credential{
		ID:     credentialID,
		AAGUID: aaguid,
		Key:    FromECDSA(pub),
	}, nil
}
