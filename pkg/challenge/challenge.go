// Package challenge constructs the domain-separated hash a passkey
// signs for a wallet action. Field order, big-endian encoding, and
// 32-byte padding are a wire contract with the on-chain verifier; any
// deviation produces signatures that silently fail on-chain.
package challenge

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/samber/lo"
)

// Call is one target invocation inside a wallet action.
type Call struct {
	Target common.Address
	Value  *big.Int
	Data   []byte
}

// SingleCallHash is keccak256(chainId‖wallet‖target‖value‖data‖nonce‖deadline)
// with every numeric field big-endian and left-padded to 32 bytes, and
// addresses likewise padded to full words.
func SingleCallHash(chainID uint64, wallet common.Address, call Call, nonce, deadline uint64) common.Hash {
	return common.BytesToHash(ethcrypto.Keccak256(
		uintWord(chainID),
		addressWord(wallet),
		addressWord(call.Target),
		valueWord(call.Value),
		call.Data,
		uintWord(nonce),
		uintWord(deadline),
	))
}

// BatchCallHash hashes each call as keccak256(target‖value‖keccak256(data)),
// concatenates the per-call hashes and hashes again, then binds the
// result to chain, wallet, nonce, and deadline. Hashing data before
// concatenation keeps call boundaries unambiguous: bytes cannot shift
// between adjacent calls and collide.
func BatchCallHash(chainID uint64, wallet common.Address, calls []Call, nonce, deadline uint64) common.Hash {
	perCall := lo.Map(calls, func(call Call, _ int) []byte {
		return ethcrypto.Keccak256(
			addressWord(call.Target),
			valueWord(call.Value),
			ethcrypto.Keccak256(call.Data),
		)
	})
	callsHash := ethcrypto.Keccak256(perCall...)

	return common.BytesToHash(ethcrypto.Keccak256(
		uintWord(chainID),
		addressWord(wallet),
		callsHash,
		uintWord(nonce),
		uintWord(deadline),
	))
}

func uintWord(v uint64) []byte {
	word := make([]byte, 32)
	new(big.Int).SetUint64(v).FillBytes(word)
	return word
}

func valueWord(v *big.Int) []byte {
	word := make([]byte, 32)
	if v != nil {
		v.FillBytes(word)
	}
	return word
}

func addressWord(addr common.Address) []byte {
	return common.LeftPadBytes(addr.Bytes(), 32)
}
