// Package deadman drives the guardian-controlled, time-delayed
// recovery protocol. The authoritative state lives in the wallet
// contract; this service derives the state machine view
// (Idle → Triggered → Executable → Executed, with owner-side Cancel)
// from live reads and refuses doomed writes before they broadcast.
package deadman

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/strata-wallet/relay/pkg/wallet"
)

var (
	ErrWrongPassword     = errors.New("deadman: wrong recovery password")
	ErrAlreadyTriggered  = errors.New("deadman: recovery already triggered")
	ErrNoWithdrawAddress = errors.New("deadman: no withdraw address configured")
	ErrNotTriggered      = errors.New("deadman: recovery not triggered")
)

// DelayNotElapsedError reports exactly how long until the sweep becomes
// executable.
type DelayNotElapsedError struct {
	Remaining time.Duration
}

func (e *DelayNotElapsedError) Error() string {
	return fmt.Sprintf("deadman: delay not elapsed, %ds remaining", int64(e.Remaining.Seconds()))
}

// Option configures the service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock injects the time source, so tests can simulate elapsed
// delay without real waits.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service executes the guardian side of the recovery protocol. The
// relay's funding account is the guardian for the wallets it serves.
type Service struct {
	reader wallet.Reader
	writer wallet.Writer
	now    func() time.Time
	logger *slog.Logger
}

func New(reader wallet.Reader, writer wallet.Writer, opts ...Option) *Service {
	s := &Service{
		reader: reader,
		writer: writer,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Trigger starts the deadman countdown. Requires an Idle machine, a
// configured withdraw address, and the recovery password matching the
// contract's commitment. Every precondition is checked against live
// state before anything broadcasts.
func (s *Service) Trigger(ctx context.Context, walletAddr common.Address, password string) (*wallet.Receipt, error) {
	withdraw, err := s.reader.WithdrawAddress(ctx, walletAddr)
	if err != nil {
		return nil, fmt.Errorf("deadman: read withdraw address: %w", err)
	}
	if withdraw == (common.Address{}) {
		return nil, ErrNoWithdrawAddress
	}

	triggeredAt, err := s.reader.DeadmanTriggeredAt(ctx, walletAddr)
	if err != nil {
		return nil, fmt.Errorf("deadman: read trigger state: %w", err)
	}
	if triggeredAt != 0 {
		return nil, ErrAlreadyTriggered
	}

	passwordHash, err := s.reader.RecoveryPasswordHash(ctx, walletAddr)
	if err != nil {
		return nil, fmt.Errorf("deadman: read password hash: %w", err)
	}
	if wallet.RecoveryPasswordDigest(walletAddr, password) != passwordHash {
		return nil, ErrWrongPassword
	}

	receipt, err := s.writer.TriggerDeadman(ctx, walletAddr, password)
	if err != nil {
		return nil, err
	}
	s.logger.Info("deadman triggered", "wallet", walletAddr, "tx", receipt.TxHash)
	return receipt, nil
}

// Execute sweeps the wallet's full balance of token (the zero address
// meaning the native asset) to the withdraw address, once the delay has
// elapsed. Fails with DelayNotElapsedError carrying the exact remaining
// time, or ErrNotTriggered.
func (s *Service) Execute(ctx context.Context, walletAddr, token common.Address) (*wallet.Receipt, error) {
	triggeredAt, err := s.reader.DeadmanTriggeredAt(ctx, walletAddr)
	if err != nil {
		return nil, fmt.Errorf("deadman: read trigger state: %w", err)
	}
	if triggeredAt == 0 {
		return nil, ErrNotTriggered
	}

	delay, err := s.reader.DeadmanDelay(ctx, walletAddr)
	if err != nil {
		return nil, fmt.Errorf("deadman: read delay: %w", err)
	}
	executableAt := triggeredAt + delay
	if now := uint64(s.now().Unix()); now < executableAt {
		return nil, &DelayNotElapsedError{Remaining: time.Duration(executableAt-now) * time.Second}
	}

	receipt, err := s.writer.ExecuteDeadman(ctx, walletAddr, token)
	if err != nil {
		return nil, err
	}
	s.logger.Info("deadman executed", "wallet", walletAddr, "token", token, "tx", receipt.TxHash)
	return receipt, nil
}

// EmergencyRecover is the always-available guardian sweep: no password,
// no delay, and no interaction with deadman state. A distinct
// authorization route to the same economic outcome; the contract keeps
// the two paths independent and so does this service.
func (s *Service) EmergencyRecover(ctx context.Context, walletAddr, token common.Address) (*wallet.Receipt, error) {
	receipt, err := s.writer.GuardianRecover(ctx, walletAddr, token)
	if err != nil {
		return nil, err
	}
	s.logger.Warn("guardian emergency recover", "wallet", walletAddr, "token", token, "tx", receipt.TxHash)
	return receipt, nil
}
