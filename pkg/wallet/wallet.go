// Package wallet is the boundary to the external smart-wallet
// contract: a read interface over its state, a write interface for
// meta-transactions and guardian calls, and an ethclient-backed
// implementation of both. The contract itself is trusted and never
// reimplemented here; wallettest carries an in-memory stand-in with the
// same observable semantics for tests.
package wallet

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/strata-wallet/relay/pkg/challenge"
	"github.com/strata-wallet/relay/pkg/passkey"
)

// Reader reads wallet contract state. All values are live chain state;
// nothing is cached.
type Reader interface {
	Owner(ctx context.Context, wallet common.Address) (common.Address, error)
	Guardian(ctx context.Context, wallet common.Address) (common.Address, error)
	WithdrawAddress(ctx context.Context, wallet common.Address) (common.Address, error)
	RecoveryPasswordHash(ctx context.Context, wallet common.Address) (common.Hash, error)
	DeadmanTriggeredAt(ctx context.Context, wallet common.Address) (uint64, error)
	DeadmanDelay(ctx context.Context, wallet common.Address) (uint64, error)
	LastActivityTimestamp(ctx context.Context, wallet common.Address) (uint64, error)
	Nonce(ctx context.Context, wallet, key common.Address) (uint64, error)
	IsPasskey(ctx context.Context, wallet, key common.Address) (bool, error)
}

// Writer submits state-changing transactions from the relay's funded
// account. Submissions are serialized internally: the account's
// sequence numbers must be strictly increasing, so concurrent
// unserialized broadcasts would race.
type Writer interface {
	Submit(ctx context.Context, m *MetaCall) (*Receipt, error)
	TriggerDeadman(ctx context.Context, wallet common.Address, password string) (*Receipt, error)
	ExecuteDeadman(ctx context.Context, wallet, token common.Address) (*Receipt, error)
	GuardianRecover(ctx context.Context, wallet, token common.Address) (*Receipt, error)
}

// Simulator dry-runs a meta-call against the contract without
// broadcasting. A nil error means the contract would accept it.
type Simulator interface {
	Simulate(ctx context.Context, m *MetaCall) error
}

// Backend is the full contract collaborator the relay needs.
type Backend interface {
	Reader
	Writer
	Simulator

	// FundingBalance is the relay account's own balance, checked
	// against the operating threshold before any chain write.
	FundingBalance(ctx context.Context) (*big.Int, error)
}

// Kind selects the meta-transaction entry point.
type Kind int

const (
	KindExec Kind = iota
	KindBatchExec
	KindSetWithdrawAddress
	KindSetGuardian
	KindCancelDeadman
)

func (k Kind) String() string {
	switch k {
	case KindExec:
		return "exec"
	case KindBatchExec:
		return "batchExec"
	case KindSetWithdrawAddress:
		return "setWithdrawAddress"
	case KindSetGuardian:
		return "setGuardian"
	case KindCancelDeadman:
		return "cancelDeadman"
	default:
		return "unknown"
	}
}

// MetaCall is one fully-specified meta-transaction: what to execute,
// which passkey authorizes it, and the signature material proving it.
// Nonce is the value the client built its challenge with; the relay
// re-derives the challenge hash from it and compares it against live
// contract state rather than trusting any client-supplied hash.
type MetaCall struct {
	Kind       Kind
	ChainID    uint64
	Wallet     common.Address
	Calls      []challenge.Call
	NewAddress common.Address
	Key        passkey.PublicKey
	Nonce      uint64
	Deadline   uint64
	Auth       Auth
}

// ChallengeHash re-derives the exact digest the passkey must have
// signed for this call. Administrative kinds hash as a single call
// targeting the wallet itself with the corresponding setter calldata.
func (m *MetaCall) ChallengeHash() (common.Hash, error) {
	switch m.Kind {
	case KindExec:
		if len(m.Calls) != 1 {
			return common.Hash{}, ErrBadCallShape
		}
		return challenge.SingleCallHash(m.ChainID, m.Wallet, m.Calls[0], m.Nonce, m.Deadline), nil
	case KindBatchExec:
		if len(m.Calls) == 0 {
			return common.Hash{}, ErrBadCallShape
		}
		return challenge.BatchCallHash(m.ChainID, m.Wallet, m.Calls, m.Nonce, m.Deadline), nil
	case KindSetWithdrawAddress, KindSetGuardian, KindCancelDeadman:
		inner, err := m.InnerCall()
		if err != nil {
			return common.Hash{}, err
		}
		return challenge.SingleCallHash(m.ChainID, m.Wallet, inner, m.Nonce, m.Deadline), nil
	default:
		return common.Hash{}, ErrBadCallShape
	}
}

// InnerCall renders an administrative kind as the self-call it hashes
// as.
func (m *MetaCall) InnerCall() (challenge.Call, error) {
	data, err := packInner(m.Kind, m.NewAddress)
	if err != nil {
		return challenge.Call{}, err
	}
	return challenge.Call{Target: m.Wallet, Value: new(big.Int), Data: data}, nil
}

// Receipt is the inclusion proof returned to the caller.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64
}
