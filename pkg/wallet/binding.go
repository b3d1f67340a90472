package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ErrNotMined means inclusion polling gave up before the transaction
// landed. The broadcast itself is irrevocable; the caller merely
// stopped observing it.
var ErrNotMined = errors.New("wallet: transaction not mined before deadline")

// BindingOption configures a Binding.
type BindingOption func(*Binding)

func WithLogger(logger *slog.Logger) BindingOption {
	return func(b *Binding) {
		b.logger = logger
	}
}

// WithPollInterval overrides how often inclusion is polled for.
func WithPollInterval(d time.Duration) BindingOption {
	return func(b *Binding) {
		b.pollInterval = d
	}
}

// WithMineTimeout bounds how long Submit waits for inclusion.
func WithMineTimeout(d time.Duration) BindingOption {
	return func(b *Binding) {
		b.mineTimeout = d
	}
}

// Binding is the production Backend over a JSON-RPC node. All writes
// are signed by the relay's funding key and serialized by a mutex so
// the account's sequence numbers never race.
type Binding struct {
	client       *ethclient.Client
	chainID      *big.Int
	key          *ecdsa.PrivateKey
	from         common.Address
	logger       *slog.Logger
	pollInterval time.Duration
	mineTimeout  time.Duration

	mu sync.Mutex
}

// NewBinding dials nothing; the caller owns the client's lifecycle.
func NewBinding(client *ethclient.Client, chainID uint64, fundingKeyHex string, opts ...BindingOption) (*Binding, error) {
	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(fundingKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("wallet: parse funding key: %w", err)
	}

	b := &Binding{
		client:       client,
		chainID:      new(big.Int).SetUint64(chainID),
		key:          key,
		from:         ethcrypto.PubkeyToAddress(key.PublicKey),
		logger:       slog.Default(),
		pollInterval: 2 * time.Second,
		mineTimeout:  3 * time.Minute,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// From is the relay's funding account address.
func (b *Binding) From() common.Address {
	return b.from
}

func (b *Binding) FundingBalance(ctx context.Context) (*big.Int, error) {
	return b.client.BalanceAt(ctx, b.from, nil)
}

func (b *Binding) Owner(ctx context.Context, wallet common.Address) (common.Address, error) {
	return b.viewAddress(ctx, wallet, "owner")
}

func (b *Binding) Guardian(ctx context.Context, wallet common.Address) (common.Address, error) {
	return b.viewAddress(ctx, wallet, "guardian")
}

func (b *Binding) WithdrawAddress(ctx context.Context, wallet common.Address) (common.Address, error) {
	return b.viewAddress(ctx, wallet, "withdrawAddress")
}

func (b *Binding) RecoveryPasswordHash(ctx context.Context, wallet common.Address) (common.Hash, error) {
	out, err := b.view(ctx, wallet, "recoveryPasswordHash")
	if err != nil {
		return common.Hash{}, err
	}
	return common.Hash(out[0].([32]byte)), nil
}

func (b *Binding) DeadmanTriggeredAt(ctx context.Context, wallet common.Address) (uint64, error) {
	return b.viewUint(ctx, wallet, "deadmanTriggeredAt")
}

func (b *Binding) DeadmanDelay(ctx context.Context, wallet common.Address) (uint64, error) {
	return b.viewUint(ctx, wallet, "deadmanDelay")
}

func (b *Binding) LastActivityTimestamp(ctx context.Context, wallet common.Address) (uint64, error) {
	return b.viewUint(ctx, wallet, "lastActivityTimestamp")
}

func (b *Binding) Nonce(ctx context.Context, wallet, key common.Address) (uint64, error) {
	out, err := b.view(ctx, wallet, "nonces", key)
	if err != nil {
		return 0, err
	}
	return out[0].(*big.Int).Uint64(), nil
}

func (b *Binding) IsPasskey(ctx context.Context, wallet, key common.Address) (bool, error) {
	out, err := b.view(ctx, wallet, "isPasskey", key)
	if err != nil {
		return false, err
	}
	return out[0].(bool), nil
}

func (b *Binding) Simulate(ctx context.Context, m *MetaCall) error {
	data, err := packMeta(m)
	if err != nil {
		return err
	}
	_, err = b.client.CallContract(ctx, ethereum.CallMsg{
		From: b.from,
		To:   &m.Wallet,
		Data: data,
	}, nil)
	if err != nil {
		return decodeCallError(err)
	}
	return nil
}

func (b *Binding) Submit(ctx context.Context, m *MetaCall) (*Receipt, error) {
	data, err := packMeta(m)
	if err != nil {
		return nil, err
	}
	return b.sendTx(ctx, m.Wallet, data)
}

func (b *Binding) TriggerDeadman(ctx context.Context, wallet common.Address, password string) (*Receipt, error) {
	data, err := walletABI.Pack("triggerDeadmanWithPassword", password)
	if err != nil {
		return nil, err
	}
	return b.sendTx(ctx, wallet, data)
}

func (b *Binding) ExecuteDeadman(ctx context.Context, wallet, token common.Address) (*Receipt, error) {
	data, err := walletABI.Pack("executeDeadman", token)
	if err != nil {
		return nil, err
	}
	return b.sendTx(ctx, wallet, data)
}

func (b *Binding) GuardianRecover(ctx context.Context, wallet, token common.Address) (*Receipt, error) {
	data, err := walletABI.Pack("guardianRecover", token)
	if err != nil {
		return nil, err
	}
	return b.sendTx(ctx, wallet, data)
}

func (b *Binding) view(ctx context.Context, wallet common.Address, method string, args ...any) ([]any, error) {
	data, err := walletABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("wallet: pack %s: %w", method, err)
	}
	raw, err := b.client.CallContract(ctx, ethereum.CallMsg{To: &wallet, Data: data}, nil)
	if err != nil {
		return nil, decodeCallError(err)
	}
	out, err := walletABI.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("wallet: unpack %s: %w", method, err)
	}
	return out, nil
}

func (b *Binding) viewAddress(ctx context.Context, wallet common.Address, method string) (common.Address, error) {
	out, err := b.view(ctx, wallet, method)
	if err != nil {
		return common.Address{}, err
	}
	return out[0].(common.Address), nil
}

func (b *Binding) viewUint(ctx context.Context, wallet common.Address, method string) (uint64, error) {
	out, err := b.view(ctx, wallet, method)
	if err != nil {
		return 0, err
	}
	return out[0].(*big.Int).Uint64(), nil
}

// sendTx signs, broadcasts, and waits for inclusion. Held under the
// mutex end to end so two submissions cannot claim the same account
// nonce.
func (b *Binding) sendTx(ctx context.Context, to common.Address, data []byte) (*Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	nonce, err := b.client.PendingNonceAt(ctx, b.from)
	if err != nil {
		return nil, fmt.Errorf("wallet: account nonce: %w", err)
	}

	gas, err := b.client.EstimateGas(ctx, ethereum.CallMsg{
		From: b.from,
		To:   &to,
		Data: data,
	})
	if err != nil {
		return nil, decodeCallError(err)
	}

	gasPrice, err := b.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("wallet: gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(b.chainID), b.key)
	if err != nil {
		return nil, fmt.Errorf("wallet: sign tx: %w", err)
	}

	if err := b.client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("wallet: broadcast: %w", err)
	}
	b.logger.Info("broadcast", "tx", signed.Hash(), "to", to, "gas", gas)

	return b.waitMined(ctx, signed.Hash())
}

func (b *Binding) waitMined(ctx context.Context, txHash common.Hash) (*Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, b.mineTimeout)
	defer cancel()

	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := b.client.TransactionReceipt(ctx, txHash)
		if err == nil {
			if receipt.Status == types.ReceiptStatusFailed {
				return nil, &RevertError{Reason: RevertExecutionFailed}
			}
			return &Receipt{
				TxHash:      txHash,
				BlockNumber: receipt.BlockNumber.Uint64(),
				GasUsed:     receipt.GasUsed,
			}, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("wallet: receipt: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, ErrNotMined
		case <-ticker.C:
		}
	}
}

// decodeCallError extracts the contract's revert reason from a
// JSON-RPC error, falling back to the raw error when none is attached.
func decodeCallError(err error) error {
	var de interface{ ErrorData() any }
	if errors.As(err, &de) {
		var raw []byte
		switch data := de.ErrorData().(type) {
		case string:
			raw = common.FromHex(data)
		case hexutil.Bytes:
			raw = data
		case []byte:
			raw = data
		}
		if reason, uerr := abi.UnpackRevert(raw); uerr == nil {
			return &RevertError{Reason: reason}
		}
	}
	if strings.Contains(err.Error(), "execution reverted") {
		return &RevertError{Reason: strings.TrimSpace(strings.TrimPrefix(err.Error(), "execution reverted:"))}
	}
	return err
}
