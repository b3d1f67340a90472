// Package sigcodec decodes and normalizes raw WebAuthn ECDSA signatures
// and reproduces the exact digest the authenticator signed. Every
// downstream verification, on- or off-chain, depends on these byte-level
// contracts being exact.
package sigcodec

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"math/big"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

// p256Order is the order of the P-256 base point.
var p256Order = elliptic.P256().Params().N

var p256HalfOrder = new(big.Int).Rsh(p256Order, 1)

// Signature is a raw P-256 signature with both scalars left-padded to
// 32 bytes, the fixed-width form the wallet contract consumes.
type Signature struct {
	R [32]byte
	S [32]byte
}

// DecodeDER parses an authenticator's ASN.1 SEQUENCE of two INTEGERs
// into fixed-width scalars, stripping any leading zero padding.
// Returns ErrMalformedSignature on unexpected tags, lengths, trailing
// bytes, or scalars outside [1, order-1].
func DecodeDER(der []byte) (Signature, error) {
	var sig Signature

	input := cryptobyte.String(der)
	var seq cryptobyte.String
	r, s := new(big.Int), new(big.Int)
	if !input.ReadASN1(&seq, asn1.SEQUENCE) ||
		!input.Empty() ||
		!seq.ReadASN1Integer(r) ||
		!seq.ReadASN1Integer(s) ||
		!seq.Empty() {
		return sig, ErrMalformedSignature
	}
	if !scalarInRange(r) || !scalarInRange(s) {
		return sig, ErrMalformedSignature
	}

	r.FillBytes(sig.R[:])
	s.FillBytes(sig.S[:])
	return sig, nil
}

// EncodeDER is the inverse of DecodeDER, producing minimal ASN.1
// integer encodings regardless of how the scalars were padded.
func EncodeDER(sig Signature) []byte {
	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(child *cryptobyte.Builder) {
		child.AddASN1BigInt(new(big.Int).SetBytes(sig.R[:]))
		child.AddASN1BigInt(new(big.Int).SetBytes(sig.S[:]))
	})
	// Building from two in-range big.Ints cannot fail.
	return b.BytesOrPanic()
}

func scalarInRange(v *big.Int) bool {
	return v.Sign() > 0 && v.Cmp(p256Order) < 0
}

// IsLowS reports whether s is in the lower half of the scalar field,
// the canonical form the wallet contract accepts.
func IsLowS(s [32]byte) bool {
	return new(big.Int).SetBytes(s[:]).Cmp(p256HalfOrder) <= 0
}

// NormalizeLowS maps s to order-s when it is in the upper half of the
// scalar field. Recovery still has to try both forms; see recoverkey.
func NormalizeLowS(s [32]byte) [32]byte {
	v := new(big.Int).SetBytes(s[:])
	if v.Cmp(p256HalfOrder) > 0 {
		v.Sub(p256Order, v)
		v.FillBytes(s[:])
	}
	return s
}

// Normalize returns the signature with a canonical low-s scalar.
func Normalize(sig Signature) Signature {
	sig.S = NormalizeLowS(sig.S)
	return sig
}

// MessageDigest reproduces the value the authenticator actually signed:
// SHA256(authenticatorData ‖ SHA256(clientDataJSON)).
func MessageDigest(authenticatorData []byte, clientDataJSON string) [32]byte {
	clientDataHash := sha256.Sum256([]byte(clientDataJSON))
	h := sha256.New()
	h.Write(authenticatorData)
	h.Write(clientDataHash[:])
	var digest [32]byte
	h.Sum(digest[:0])
	return digest
}

// Verify checks sig over digest under pub. Both s forms of a genuine
// signature verify under textbook ECDSA, so no normalization is needed
// here.
func Verify(pub *ecdsa.PublicKey, digest [32]byte, sig Signature) bool {
	r := new(big.Int).SetBytes(sig.R[:])
	s := new(big.Int).SetBytes(sig.S[:])
	return ecdsa.Verify(pub, digest[:], r, s)
}
