package recoverkey

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/strata-wallet/relay/pkg/passkey"
	"github.com/strata-wallet/relay/pkg/sigcodec"
)

// ErrKeyRecoveryFailed means no candidate verified the disambiguation
// signature: either two different credentials signed, or a codec defect
// corrupted the material. It is deliberately distinct from a ceremony
// error (user cancellation), which propagates from the Signer as-is.
var ErrKeyRecoveryFailed = errors.New("recoverkey: no candidate key verified the second signature")

// RegistryCheck reports whether an owner fingerprint is already
// enrolled with the wallet contract.
type RegistryCheck func(ctx context.Context, owner common.Address) (bool, error)

// Signer requests one more assertion from the credential being
// identified, over a fresh random challenge.
type Signer interface {
	Sign(ctx context.Context, challenge []byte) (*passkey.Assertion, error)
}

// Resolver disambiguates recovery candidates down to a single key.
type Resolver struct {
	registry RegistryCheck
	signer   Signer
}

// NewResolver builds a resolver. registry may be nil when no enrolled
// wallet is known yet; signer may be nil when a second ceremony is
// unavailable, in which case only the registry fast path can succeed.
func NewResolver(registry RegistryCheck, signer Signer) *Resolver {
	return &Resolver{registry: registry, signer: signer}
}

// Resolve picks the unique candidate that is provably the signer's key.
//
// Fast path: the first candidate whose fingerprint the registry knows.
// Slow path: request a second signature over a fresh random challenge
// and full-verify every candidate against it, trying both s forms.
func (rs *Resolver) Resolve(ctx context.Context, candidates []passkey.PublicKey) (passkey.PublicKey, error) {
	if len(candidates) == 0 {
		return passkey.PublicKey{}, ErrKeyRecoveryFailed
	}

	if rs.registry != nil {
		for _, cand := range candidates {
			known, err := rs.registry(ctx, cand.Fingerprint())
			if err != nil {
				return passkey.PublicKey{}, fmt.Errorf("recoverkey: registry check: %w", err)
			}
			if known {
				return cand, nil
			}
		}
	}

	if rs.signer == nil {
		return passkey.PublicKey{}, ErrKeyRecoveryFailed
	}

	challenge := make([]byte, 32)
	if _, err := rand.Read(challenge); err != nil {
		return passkey.PublicKey{}, fmt.Errorf("recoverkey: challenge: %w", err)
	}

	assertion, err := rs.signer.Sign(ctx, challenge)
	if err != nil {
		return passkey.PublicKey{}, fmt.Errorf("recoverkey: second ceremony: %w", err)
	}
	if err := sigcodec.CheckClientData(
		assertion.ClientDataJSON, challenge,
		assertion.ChallengeIndex, assertion.TypeIndex,
	); err != nil {
		return passkey.PublicKey{}, fmt.Errorf("recoverkey: second ceremony: %w", err)
	}

	digest := sigcodec.MessageDigest(assertion.AuthenticatorData, assertion.ClientDataJSON)
	sig := sigcodec.Signature{R: assertion.R, S: assertion.S}
	forms := []sigcodec.Signature{sig, sigcodec.Normalize(sig)}

	for _, cand := range candidates {
		pub, err := cand.ECDSA()
		if err != nil {
			continue
		}
		for _, form := range forms {
			if sigcodec.Verify(pub, digest, form) {
				return cand, nil
			}
		}
	}

	return passkey.PublicKey{}, ErrKeyRecoveryFailed
}
