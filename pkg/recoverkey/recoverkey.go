// Package recoverkey recovers a passkey's P-256 public key from its
// signatures. Browsers reveal a credential's public key only at
// creation; afterwards the key must be reconstructed from signature
// material, and a single ECDSA signature is ambiguous on two axes: the
// malleable s scalar (s and order-s both verify) and the recovery
// parity of the nonce point. All four combinations are tried
// explicitly.
package recoverkey

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"math/big"

	"github.com/samber/lo"

	"github.com/strata-wallet/relay/pkg/passkey"
	"github.com/strata-wallet/relay/pkg/sigcodec"
)

// Candidates recovers every public key that could have produced sig
// over digest. Combinations that do not land on the curve or do not
// verify are discarded; between one and four candidates remain for a
// genuine signature, and the true signer is always among them.
func Candidates(sig sigcodec.Signature, digest [32]byte) []passkey.PublicKey {
	curve := elliptic.P256()
	n := curve.Params().N

	r := new(big.Int).SetBytes(sig.R[:])
	s := new(big.Int).SetBytes(sig.S[:])
	if r.Sign() == 0 || r.Cmp(n) >= 0 || s.Sign() == 0 || s.Cmp(n) >= 0 {
		return nil
	}
	z := new(big.Int).SetBytes(digest[:])

	sForms := []*big.Int{s, new(big.Int).Sub(n, s)}

	var out []passkey.PublicKey
	for _, sv := range sForms {
		for parity := 0; parity < 2; parity++ {
			pub := recoverCandidate(curve, r, sv, z, parity)
			if pub == nil {
				continue
			}
			if !ecdsa.Verify(pub, digest[:], r, s) {
				continue
			}
			out = append(out, passkey.FromECDSA(pub))
		}
	}

	return lo.UniqBy(out, func(k passkey.PublicKey) [64]byte {
		var id [64]byte
		copy(id[:32], k.QX[:])
		copy(id[32:], k.QY[:])
		return id
	})
}

// recoverCandidate computes Q = r⁻¹(s·R − z·G) where R is the nonce
// point reconstructed from its x coordinate r and the given y parity.
func recoverCandidate(curve elliptic.Curve, r, s, z *big.Int, parity int) *ecdsa.PublicKey {
	p := curve.Params().P
	n := curve.Params().N

	// x³ - 3x + b mod p
	x := r
	y2 := new(big.Int).Mul(x, x)
	y2.Mul(y2, x)
	y2.Sub(y2, new(big.Int).Lsh(x, 1))
	y2.Sub(y2, x)
	y2.Add(y2, curve.Params().B)
	y2.Mod(y2, p)

	// p ≡ 3 (mod 4), so the square root is y2^((p+1)/4) when it exists.
	e := new(big.Int).Add(p, big.NewInt(1))
	e.Rsh(e, 2)
	y := new(big.Int).Exp(y2, e, p)
	if new(big.Int).Exp(y, big.NewInt(2), p).Cmp(y2) != 0 {
		return nil
	}
	if int(y.Bit(0)) != parity {
		y.Sub(p, y)
	}
	if !curve.IsOnCurve(x, y) {
		return nil
	}

	rInv := new(big.Int).ModInverse(r, n)
	if rInv == nil {
		return nil
	}
	u1 := new(big.Int).Mul(z, rInv)
	u1.Neg(u1)
	u1.Mod(u1, n)
	u2 := new(big.Int).Mul(s, rInv)
	u2.Mod(u2, n)

	g1x, g1y := curve.ScalarBaseMult(u1.Bytes())
	r1x, r1y := curve.ScalarMult(x, y, u2.Bytes())
	qx, qy := curve.Add(g1x, g1y, r1x, r1y)
	if qx.Sign() == 0 && qy.Sign() == 0 {
		return nil
	}

	return &ecdsa.PublicKey{Curve: curve, X: qx, Y: qy}
}
