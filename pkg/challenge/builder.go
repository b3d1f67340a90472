package challenge

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ErrNoCalls rejects an empty batch before anything is hashed.
var ErrNoCalls = errors.New("challenge: batch contains no calls")

// NonceReader reads the wallet contract's current per-key nonce.
type NonceReader interface {
	Nonce(ctx context.Context, wallet, key common.Address) (uint64, error)
}

// Challenge is a fully-built signing challenge. The nonce it embeds was
// read from the contract at build time; it is logically consumed
// exactly once, when the action mines.
type Challenge struct {
	ChainID  uint64
	Wallet   common.Address
	Calls    []Call
	Nonce    uint64
	Deadline uint64
	Hash     common.Hash
}

// Builder constructs challenges against one chain and wallet contract.
type Builder struct {
	chainID uint64
	nonces  NonceReader
}

func NewBuilder(chainID uint64, nonces NonceReader) *Builder {
	return &Builder{chainID: chainID, nonces: nonces}
}

// Single builds the challenge for a single-call action. The nonce is
// read fresh from the contract immediately before hashing, never
// cached, so a concurrently pending action cannot be raced with a
// stale value.
func (b *Builder) Single(ctx context.Context, wallet, key common.Address, call Call, deadline uint64) (*Challenge, error) {
	nonce, err := b.nonces.Nonce(ctx, wallet, key)
	if err != nil {
		return nil, fmt.Errorf("challenge: read nonce: %w", err)
	}
	return &Challenge{
		ChainID:  b.chainID,
		Wallet:   wallet,
		Calls:    []Call{call},
		Nonce:    nonce,
		Deadline: deadline,
		Hash:     SingleCallHash(b.chainID, wallet, call, nonce, deadline),
	}, nil
}

// Batch builds the challenge for a batched action.
func (b *Builder) Batch(ctx context.Context, wallet, key common.Address, calls []Call, deadline uint64) (*Challenge, error) {
	if len(calls) == 0 {
		return nil, ErrNoCalls
	}
	nonce, err := b.nonces.Nonce(ctx, wallet, key)
	if err != nil {
		return nil, fmt.Errorf("challenge: read nonce: %w", err)
	}
	return &Challenge{
		ChainID:  b.chainID,
		Wallet:   wallet,
		Calls:    calls,
		Nonce:    nonce,
		Deadline: deadline,
		Hash:     BatchCallHash(b.chainID, wallet, calls, nonce, deadline),
	}, nil
}
