// Package wallettest provides an in-memory stand-in for the external
// smart-wallet contract with the same observable semantics the real
// verifier enforces (deadline, passkey registration, challenge-hash
// verification, nonce consumption, deadman state), plus a software
// authenticator producing real P-256 assertions. Tests drive the whole
// relay against these without a node or a device.
package wallettest

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/strata-wallet/relay/pkg/passkey"
	"github.com/strata-wallet/relay/pkg/sigcodec"
	"github.com/strata-wallet/relay/pkg/wallet"
)

// NativeToken is the zero address, meaning the chain's native asset.
var NativeToken = common.Address{}

// WalletConfig seeds one simulated wallet.
type WalletConfig struct {
	Key             passkey.PublicKey
	Guardian        common.Address
	WithdrawAddress common.Address
	Password        string
	DeadmanDelay    uint64
	Balance         *big.Int
}

type walletState struct {
	owner              common.Address
	guardian           common.Address
	withdrawAddress    common.Address
	passwordHash       common.Hash
	deadmanTriggeredAt uint64
	deadmanDelay       uint64
	deadmanExecuted    bool
	lastActivity       uint64
	nonces             map[common.Address]uint64
	passkeys           map[common.Address]passkey.PublicKey
}

// Contract implements wallet.Backend in memory.
type Contract struct {
	mu sync.Mutex

	chainID uint64
	relay   common.Address
	now     func() time.Time
	funding *big.Int

	wallets    map[common.Address]*walletState
	native     map[common.Address]*big.Int
	tokens     map[common.Address]map[common.Address]*big.Int
	blocks     uint64
	broadcasts int
}

// Option configures the simulator.
type Option func(*Contract)

// WithClock injects a deterministic clock.
func WithClock(now func() time.Time) Option {
	return func(c *Contract) {
		c.now = now
	}
}

// WithFunding sets the relay account's starting balance.
func WithFunding(wei *big.Int) Option {
	return func(c *Contract) {
		c.funding = new(big.Int).Set(wei)
	}
}

// NewContract builds a simulator whose direct (non-meta) writes are
// sent from relay, the way the Binding sends them from its funding
// account.
func NewContract(chainID uint64, relay common.Address, opts ...Option) *Contract {
	c := &Contract{
		chainID: chainID,
		relay:   relay,
		now:     time.Now,
		funding: big.NewInt(1e18),
		wallets: make(map[common.Address]*walletState),
		native:  make(map[common.Address]*big.Int),
		tokens:  make(map[common.Address]map[common.Address]*big.Int),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Deploy registers a wallet with one enrolled passkey.
func (c *Contract) Deploy(addr common.Address, cfg WalletConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()

	owner := cfg.Key.Fingerprint()
	st := &walletState{
		owner:           owner,
		guardian:        cfg.Guardian,
		withdrawAddress: cfg.WithdrawAddress,
		deadmanDelay:    cfg.DeadmanDelay,
		lastActivity:    uint64(c.now().Unix()),
		nonces:          make(map[common.Address]uint64),
		passkeys:        map[common.Address]passkey.PublicKey{owner: cfg.Key},
	}
	if cfg.Password != "" {
		st.passwordHash = wallet.RecoveryPasswordDigest(addr, cfg.Password)
	}
	c.wallets[addr] = st
	if cfg.Balance != nil {
		c.native[addr] = new(big.Int).Set(cfg.Balance)
	}
}

// Fund credits a native balance to any address.
func (c *Contract) Fund(addr common.Address, wei *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.credit(addr, wei)
}

// FundToken credits a token balance to any address.
func (c *Contract) FundToken(token, holder common.Address, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creditToken(token, holder, amount)
}

// SetFunding replaces the relay account balance.
func (c *Contract) SetFunding(wei *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.funding = new(big.Int).Set(wei)
}

// NativeBalance reads any address's native balance.
func (c *Contract) NativeBalance(addr common.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.balance(addr))
}

// TokenBalance reads a holder's balance of token.
func (c *Contract) TokenBalance(token, holder common.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if holders := c.tokens[token]; holders != nil && holders[holder] != nil {
		return new(big.Int).Set(holders[holder])
	}
	return new(big.Int)
}

// Broadcasts counts state-changing transactions that reached the
// simulated chain. Simulations do not count.
func (c *Contract) Broadcasts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.broadcasts
}

func (c *Contract) FundingBalance(context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return new(big.Int).Set(c.funding), nil
}

func (c *Contract) Owner(_ context.Context, addr common.Address) (common.Address, error) {
	return readState(c, addr, func(st *walletState) common.Address { return st.owner })
}

func (c *Contract) Guardian(_ context.Context, addr common.Address) (common.Address, error) {
	return readState(c, addr, func(st *walletState) common.Address { return st.guardian })
}

func (c *Contract) WithdrawAddress(_ context.Context, addr common.Address) (common.Address, error) {
	return readState(c, addr, func(st *walletState) common.Address { return st.withdrawAddress })
}

func (c *Contract) RecoveryPasswordHash(_ context.Context, addr common.Address) (common.Hash, error) {
	return readState(c, addr, func(st *walletState) common.Hash { return st.passwordHash })
}

func (c *Contract) DeadmanTriggeredAt(_ context.Context, addr common.Address) (uint64, error) {
	return readState(c, addr, func(st *walletState) uint64 { return st.deadmanTriggeredAt })
}

func (c *Contract) DeadmanDelay(_ context.Context, addr common.Address) (uint64, error) {
	return readState(c, addr, func(st *walletState) uint64 { return st.deadmanDelay })
}

func (c *Contract) LastActivityTimestamp(_ context.Context, addr common.Address) (uint64, error) {
	return readState(c, addr, func(st *walletState) uint64 { return st.lastActivity })
}

func (c *Contract) Nonce(_ context.Context, addr, key common.Address) (uint64, error) {
	return readState(c, addr, func(st *walletState) uint64 { return st.nonces[key] })
}

func (c *Contract) IsPasskey(_ context.Context, addr, key common.Address) (bool, error) {
	return readState(c, addr, func(st *walletState) bool {
		_, ok := st.passkeys[key]
		return ok
	})
}

func (c *Contract) Simulate(_ context.Context, m *wallet.MetaCall) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.execMeta(m, false)
	return err
}

func (c *Contract) Submit(_ context.Context, m *wallet.MetaCall) (*wallet.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.execMeta(m, true)
}

func (c *Contract) TriggerDeadman(_ context.Context, addr common.Address, password string) (*wallet.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, err := c.state(addr)
	if err != nil {
		return nil, err
	}
	if st.guardian != c.relay {
		return nil, &wallet.RevertError{Reason: wallet.RevertNotGuardian}
	}
	if st.withdrawAddress == (common.Address{}) {
		return nil, &wallet.RevertError{Reason: wallet.RevertNoWithdrawAddress}
	}
	if st.deadmanTriggeredAt != 0 {
		return nil, &wallet.RevertError{Reason: wallet.RevertAlreadyTriggered}
	}
	if wallet.RecoveryPasswordDigest(addr, password) != st.passwordHash {
		return nil, &wallet.RevertError{Reason: wallet.RevertWrongPassword}
	}

	st.deadmanTriggeredAt = uint64(c.now().Unix())
	st.deadmanExecuted = false
	return c.mine(), nil
}

func (c *Contract) ExecuteDeadman(_ context.Context, addr, token common.Address) (*wallet.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, err := c.state(addr)
	if err != nil {
		return nil, err
	}
	if st.guardian != c.relay {
		return nil, &wallet.RevertError{Reason: wallet.RevertNotGuardian}
	}
	if st.deadmanTriggeredAt == 0 {
		return nil, &wallet.RevertError{Reason: wallet.RevertNotTriggered}
	}
	executable := st.deadmanTriggeredAt + st.deadmanDelay
	if now := uint64(c.now().Unix()); now < executable {
		return nil, &wallet.RevertError{
			Reason: fmt.Sprintf("%s: %ds remaining", wallet.RevertDelayNotElapsed, executable-now),
		}
	}

	c.sweep(addr, st.withdrawAddress, token)
	st.deadmanTriggeredAt = 0
	st.deadmanExecuted = true
	return c.mine(), nil
}

func (c *Contract) GuardianRecover(_ context.Context, addr, token common.Address) (*wallet.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st, err := c.state(addr)
	if err != nil {
		return nil, err
	}
	if st.guardian != c.relay {
		return nil, &wallet.RevertError{Reason: wallet.RevertNotGuardian}
	}
	if st.withdrawAddress == (common.Address{}) {
		return nil, &wallet.RevertError{Reason: wallet.RevertNoWithdrawAddress}
	}

	// Emergency path: no password, no delay, and deadman state is left
	// untouched.
	c.sweep(addr, st.withdrawAddress, token)
	return c.mine(), nil
}

// execMeta runs the contract's meta-transaction checks and, when apply
// is set, its effects. The challenge hash is recomputed with the
// contract's stored nonce: a stale client nonce therefore fails
// signature verification, exactly like the real verifier.
func (c *Contract) execMeta(m *wallet.MetaCall, apply bool) (*wallet.Receipt, error) {
	st, err := c.state(m.Wallet)
	if err != nil {
		return nil, err
	}

	if m.Deadline < uint64(c.now().Unix()) {
		return nil, &wallet.RevertError{Reason: wallet.RevertExpiredSignature}
	}

	signer := m.Key.Fingerprint()
	registered, ok := st.passkeys[signer]
	if !ok || registered != m.Key {
		return nil, &wallet.RevertError{Reason: wallet.RevertUnknownPasskey}
	}

	stored := *m
	stored.Nonce = st.nonces[signer]
	expected, err := stored.ChallengeHash()
	if err != nil {
		return nil, err
	}

	if err := c.verifyAuth(m, expected); err != nil {
		return nil, err
	}

	if err := c.applyCalls(m, st, apply); err != nil {
		return nil, err
	}
	if !apply {
		return nil, nil
	}

	st.nonces[signer]++
	st.lastActivity = uint64(c.now().Unix())
	return c.mine(), nil
}

func (c *Contract) verifyAuth(m *wallet.MetaCall, expected common.Hash) error {
	auth := m.Auth
	if err := sigcodec.CheckClientData(
		auth.ClientDataJSON, expected[:],
		auth.ChallengeIndex.Uint64(), auth.TypeIndex.Uint64(),
	); err != nil {
		return &wallet.RevertError{Reason: wallet.RevertInvalidSignature}
	}
	if !sigcodec.IsLowS(auth.S) {
		return &wallet.RevertError{Reason: wallet.RevertInvalidSignature}
	}

	pub, err := m.Key.ECDSA()
	if err != nil {
		return &wallet.RevertError{Reason: wallet.RevertInvalidSignature}
	}
	digest := sigcodec.MessageDigest(auth.AuthenticatorData, auth.ClientDataJSON)
	if !sigcodec.Verify(pub, digest, sigcodec.Signature{R: auth.R, S: auth.S}) {
		return &wallet.RevertError{Reason: wallet.RevertInvalidSignature}
	}
	return nil
}

func (c *Contract) applyCalls(m *wallet.MetaCall, st *walletState, apply bool) error {
	switch m.Kind {
	case wallet.KindExec, wallet.KindBatchExec:
		total := new(big.Int)
		for _, call := range m.Calls {
			if call.Value != nil {
				total.Add(total, call.Value)
			}
		}
		if c.balance(m.Wallet).Cmp(total) < 0 {
			return &wallet.RevertError{Reason: wallet.RevertExecutionFailed}
		}
		if apply {
			for _, call := range m.Calls {
				if call.Value != nil && call.Value.Sign() > 0 {
					c.debit(m.Wallet, call.Value)
					c.credit(call.Target, call.Value)
				}
			}
		}
	case wallet.KindSetWithdrawAddress:
		if apply {
			st.withdrawAddress = m.NewAddress
		}
	case wallet.KindSetGuardian:
		if apply {
			st.guardian = m.NewAddress
		}
	case wallet.KindCancelDeadman:
		if st.deadmanTriggeredAt == 0 {
			return &wallet.RevertError{Reason: wallet.RevertNotTriggered}
		}
		if apply {
			st.deadmanTriggeredAt = 0
		}
	default:
		return wallet.ErrBadCallShape
	}
	return nil
}

func (c *Contract) sweep(from, to, token common.Address) {
	if token == NativeToken {
		bal := c.balance(from)
		if bal.Sign() > 0 {
			amount := new(big.Int).Set(bal)
			c.debit(from, amount)
			c.credit(to, amount)
		}
		return
	}
	holders := c.tokens[token]
	if holders == nil || holders[from] == nil || holders[from].Sign() == 0 {
		return
	}
	amount := new(big.Int).Set(holders[from])
	holders[from] = new(big.Int)
	c.creditToken(token, to, amount)
}

func (c *Contract) state(addr common.Address) (*walletState, error) {
	st, ok := c.wallets[addr]
	if !ok {
		return nil, &wallet.RevertError{Reason: wallet.RevertExecutionFailed}
	}
	return st, nil
}

func (c *Contract) balance(addr common.Address) *big.Int {
	if c.native[addr] == nil {
		return new(big.Int)
	}
	return c.native[addr]
}

func (c *Contract) credit(addr common.Address, wei *big.Int) {
	if c.native[addr] == nil {
		c.native[addr] = new(big.Int)
	}
	c.native[addr].Add(c.native[addr], wei)
}

func (c *Contract) debit(addr common.Address, wei *big.Int) {
	c.native[addr].Sub(c.native[addr], wei)
}

func (c *Contract) creditToken(token, holder common.Address, amount *big.Int) {
	if c.tokens[token] == nil {
		c.tokens[token] = make(map[common.Address]*big.Int)
	}
	if c.tokens[token][holder] == nil {
		c.tokens[token][holder] = new(big.Int)
	}
	c.tokens[token][holder].Add(c.tokens[token][holder], amount)
}

func (c *Contract) mine() *wallet.Receipt {
	c.blocks++
	c.broadcasts++

	var seed [8]byte
	binary.BigEndian.PutUint64(seed[:], c.blocks)
	return &wallet.Receipt{
		TxHash:      common.BytesToHash(ethcrypto.Keccak256(seed[:])),
		BlockNumber: c.blocks,
		GasUsed:     60_000 + c.blocks%1000,
	}
}

func readState[T any](c *Contract, addr common.Address, read func(*walletState) T) (T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	st, err := c.state(addr)
	if err != nil {
		return zero, err
	}
	return read(st), nil
}
