// Package passkey models device-bound WebAuthn credentials used as
// smart-wallet signing keys: the P-256 public key extracted at
// enrollment, the keccak fingerprint the wallet contract indexes it by,
// and the assertion tuple produced by a signing ceremony.
package passkey

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// PublicKey is a P-256 point as two 32-byte big-endian field elements,
// the representation the wallet contract stores and verifies against.
type PublicKey struct {
	QX [32]byte
	QY [32]byte
}

// FromECDSA converts a P-256 public key into its fixed-width form.
func FromECDSA(pub *ecdsa.PublicKey) PublicKey {
	var k PublicKey
	pub.X.FillBytes(k.QX[:])
	pub.Y.FillBytes(k.QY[:])
	return k
}

// ECDSA returns the key as a stdlib public key, or ErrNotOnCurve if
// (qx,qy) is not a valid P-256 point.
func (k PublicKey) ECDSA() (*ecdsa.PublicKey, error) {
	x := new(big.Int).SetBytes(k.QX[:])
	y := new(big.Int).SetBytes(k.QY[:])
	if !elliptic.P256().IsOnCurve(x, y) {
		return nil, ErrNotOnCurve
	}
	return &ecdsa.PublicKey{Curve: elliptic.P256(), X: x, Y: y}, nil
}

// Fingerprint derives the address-shaped owner id the wallet contract
// keys nonces and passkey registration by: last20Bytes(keccak256(qx‖qy)).
func (k PublicKey) Fingerprint() common.Address {
	return common.BytesToAddress(ethcrypto.Keccak256(k.QX[:], k.QY[:]))
}

// Credential is an enrolled passkey. Created once from an attestation
// object; immutable thereafter. A new device enrollment yields a new,
// independent Credential.
type Credential struct {
	ID     []byte
	AAGUID uuid.UUID
	Key    PublicKey
}

// Owner is shorthand for the credential key's fingerprint address.
func (c *Credential) Owner() common.Address {
	return c.Key.Fingerprint()
}

// Assertion is the wire tuple a signing ceremony produces. The index
// fields let the on-chain verifier locate the embedded challenge and
// type substrings inside ClientDataJSON without JSON parsing.
type Assertion struct {
	AuthenticatorData []byte
	ClientDataJSON    string
	ChallengeIndex    uint64
	TypeIndex         uint64
	R                 [32]byte
	S                 [32]byte
}
