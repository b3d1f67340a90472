// Package facilitator is the relay boundary: it validates signed
// intents, refuses doomed work before anything touches the chain,
// simulates against the wallet contract, broadcasts from its own funded
// account, and classifies failures for the caller. It never retries on
// the caller's behalf; a consumed nonce means the caller rebuilds with
// fresh parameters.
package facilitator

import (
	"context"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/strata-wallet/relay/pkg/deadman"
	"github.com/strata-wallet/relay/pkg/sigcodec"
	"github.com/strata-wallet/relay/pkg/wallet"
)

// Option configures the service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithClock injects the time source used for deadline checks.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithRateLimit enables per-origin rate limiting.
func WithRateLimit(max int, window time.Duration) Option {
	return func(s *Service) {
		s.limiter = newRateLimiter(max, window)
	}
}

// WithMinFunding sets the operating threshold for the relay account.
func WithMinFunding(wei *big.Int) Option {
	return func(s *Service) {
		s.minFunding = new(big.Int).Set(wei)
	}
}

// Service is the relay.
type Service struct {
	backend    wallet.Backend
	recovery   *deadman.Service
	chainID    uint64
	minFunding *big.Int
	limiter    *rateLimiter
	now        func() time.Time
	logger     *slog.Logger
}

// New builds the relay over a contract backend and a recovery service.
func New(backend wallet.Backend, recovery *deadman.Service, chainID uint64, opts ...Option) *Service {
	s := &Service{
		backend:    backend,
		recovery:   recovery,
		chainID:    chainID,
		minFunding: big.NewInt(0),
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute runs one relay request end to end. origin identifies the
// caller for rate limiting. Exactly one of two things happens: a
// fully-formed transaction is broadcast, or nothing is.
func (s *Service) Execute(ctx context.Context, origin string, req *Request) (*Result, *Error) {
	if verr := req.validate(); verr != nil {
		return nil, verr
	}
	if s.limiter != nil && !s.limiter.allow(origin, s.now()) {
		return nil, newError(CodeRateLimited, "too many requests from origin")
	}
	if req.ChainID != s.chainID {
		return nil, newError(CodeValidation, "chainId does not match this relay")
	}

	if !req.Action.meta() {
		return s.executeRecovery(ctx, req)
	}
	return s.executeMeta(ctx, req)
}

func (s *Service) executeMeta(ctx context.Context, req *Request) (*Result, *Error) {
	// A past deadline can never simulate or mine; reject with zero
	// chain traffic.
	if req.Deadline < uint64(s.now().Unix()) {
		return nil, newError(CodeExpiredSignature, "deadline has passed")
	}

	// A doomed broadcast would waste the fee-less budget, so the
	// funding gate comes before any chain write.
	balance, err := s.backend.FundingBalance(ctx)
	if err != nil {
		return nil, wrapError(CodeServiceUnavailable, err)
	}
	if balance.Cmp(s.minFunding) < 0 {
		return nil, newError(CodeServiceUnavailable, "relay funding below operating threshold")
	}

	m, merr := req.metaCall()
	if merr != nil {
		return nil, merr
	}
	signer := m.Key.Fingerprint()

	registered, err := s.backend.IsPasskey(ctx, m.Wallet, signer)
	if err != nil {
		return nil, wrapError(CodeServiceUnavailable, err)
	}
	if !registered {
		return nil, newError(CodeAuthentication, "public key is not enrolled with this wallet")
	}

	// The challenge embeds the wallet nonce; a consumed nonce cannot be
	// re-signed into validity, so surface it as the contract would.
	chainNonce, err := s.backend.Nonce(ctx, m.Wallet, signer)
	if err != nil {
		return nil, wrapError(CodeServiceUnavailable, err)
	}
	if m.Nonce != chainNonce {
		return nil, newError(CodeExecutionFailed, "wallet nonce already consumed")
	}

	// Re-derive the challenge hash server-side; a client-supplied hash
	// is never trusted.
	if aerr := s.verifyAuth(m); aerr != nil {
		return nil, aerr
	}

	if err := s.backend.Simulate(ctx, m); err != nil {
		return nil, classifyChainError(err)
	}

	receipt, err := s.backend.Submit(ctx, m)
	if err != nil {
		return nil, classifyChainError(err)
	}
	s.logger.Info("meta-tx relayed",
		"action", m.Kind.String(),
		"wallet", m.Wallet,
		"signer", signer,
		"tx", receipt.TxHash,
		"block", receipt.BlockNumber,
	)

	result := &Result{
		TxHash:      receipt.TxHash,
		BlockNumber: receipt.BlockNumber,
		GasUsed:     receipt.GasUsed,
	}
	// Post-state read: the consumed nonce tells the client what to
	// build the next challenge with.
	if next, err := s.backend.Nonce(ctx, m.Wallet, signer); err == nil {
		result.ActionResult = map[string]uint64{"nonce": next}
	}
	return result, nil
}

func (s *Service) verifyAuth(m *wallet.MetaCall) *Error {
	expected, err := m.ChallengeHash()
	if err != nil {
		return wrapError(CodeValidation, err)
	}

	auth := m.Auth
	if err := sigcodec.CheckClientData(
		auth.ClientDataJSON, expected[:],
		auth.ChallengeIndex.Uint64(), auth.TypeIndex.Uint64(),
	); err != nil {
		return wrapError(CodeInvalidSignature, err)
	}

	pub, err := m.Key.ECDSA()
	if err != nil {
		return wrapError(CodeValidation, err)
	}
	digest := sigcodec.MessageDigest(auth.AuthenticatorData, auth.ClientDataJSON)
	if !sigcodec.Verify(pub, digest, sigcodec.Signature{R: auth.R, S: auth.S}) {
		return newError(CodeInvalidSignature, "signature does not verify against supplied key")
	}
	return nil
}

func (s *Service) executeRecovery(ctx context.Context, req *Request) (*Result, *Error) {
	balance, err := s.backend.FundingBalance(ctx)
	if err != nil {
		return nil, wrapError(CodeServiceUnavailable, err)
	}
	if balance.Cmp(s.minFunding) < 0 {
		return nil, newError(CodeServiceUnavailable, "relay funding below operating threshold")
	}

	var receipt *wallet.Receipt
	switch req.Action {
	case ActionTriggerRecovery:
		receipt, err = s.recovery.Trigger(ctx, req.SmartWalletAddress, req.Params.Password)
	case ActionExecuteRecovery:
		receipt, err = s.recovery.Execute(ctx, req.SmartWalletAddress, req.token())
	case ActionGuardianRecover:
		receipt, err = s.recovery.EmergencyRecover(ctx, req.SmartWalletAddress, req.token())
	default:
		return nil, newError(CodeValidation, "unknown recovery action "+string(req.Action))
	}
	if err != nil {
		return nil, classifyRecoveryError(err)
	}
	return &Result{
		TxHash:      receipt.TxHash,
		BlockNumber: receipt.BlockNumber,
		GasUsed:     receipt.GasUsed,
	}, nil
}

// RecoveryStatus serves the polled recovery view.
func (s *Service) RecoveryStatus(ctx context.Context, walletAddr common.Address) (*deadman.Status, *Error) {
	st, err := s.recovery.Status(ctx, walletAddr)
	if err != nil {
		return nil, wrapError(CodeServiceUnavailable, err)
	}
	return st, nil
}
