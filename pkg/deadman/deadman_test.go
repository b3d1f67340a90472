package deadman_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strata-wallet/relay/pkg/deadman"
	"github.com/strata-wallet/relay/pkg/wallet/wallettest"
)

var (
	relayAddr    = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	walletAddr   = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	withdrawAddr = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")
	tokenAddr    = common.HexToAddress("0xdddddddddddddddddddddddddddddddddddddddd")
)

const (
	recoveryPassword = "correct horse battery staple"
	recoveryDelay    = uint64(72 * 3600)
)

func newFixture(t *testing.T) (*deadman.Service, *wallettest.Contract, *wallettest.Clock) {
	t.Helper()

	clock := wallettest.NewClock(time.Unix(1_700_000_000, 0))
	contract := wallettest.NewContract(8453, relayAddr, wallettest.WithClock(clock.Now))

	auth, err := wallettest.NewAuthenticator("wallet.example")
	require.NoError(t, err)
	contract.Deploy(walletAddr, wallettest.WalletConfig{
		Key:             auth.PublicKey(),
		Guardian:        relayAddr,
		WithdrawAddress: withdrawAddr,
		Password:        recoveryPassword,
		DeadmanDelay:    recoveryDelay,
		Balance:         big.NewInt(5_000_000),
	})

	svc := deadman.New(contract, contract, deadman.WithClock(clock.Now))
	return svc, contract, clock
}

func TestTrigger(t *testing.T) {
	svc, contract, _ := newFixture(t)
	ctx := context.Background()

	_, err := svc.Trigger(ctx, walletAddr, "wrong password")
	assert.ErrorIs(t, err, deadman.ErrWrongPassword)
	assert.Equal(t, 0, contract.Broadcasts())

	receipt, err := svc.Trigger(ctx, walletAddr, recoveryPassword)
	require.NoError(t, err)
	assert.NotZero(t, receipt.BlockNumber)

	_, err = svc.Trigger(ctx, walletAddr, recoveryPassword)
	assert.ErrorIs(t, err, deadman.ErrAlreadyTriggered)
}

func TestTrigger_NoWithdrawAddress(t *testing.T) {
	clock := wallettest.NewClock(time.Unix(1_700_000_000, 0))
	contract := wallettest.NewContract(8453, relayAddr, wallettest.WithClock(clock.Now))

	auth, err := wallettest.NewAuthenticator("wallet.example")
	require.NoError(t, err)
	contract.Deploy(walletAddr, wallettest.WalletConfig{
		Key:          auth.PublicKey(),
		Guardian:     relayAddr,
		Password:     recoveryPassword,
		DeadmanDelay: recoveryDelay,
	})

	svc := deadman.New(contract, contract, deadman.WithClock(clock.Now))
	_, err = svc.Trigger(context.Background(), walletAddr, recoveryPassword)
	assert.ErrorIs(t, err, deadman.ErrNoWithdrawAddress)
}

func TestStatusAndExecute_DelayLifecycle(t *testing.T) {
	svc, contract, clock := newFixture(t)
	ctx := context.Background()

	st, err := svc.Status(ctx, walletAddr)
	require.NoError(t, err)
	assert.False(t, st.Triggered)
	assert.False(t, st.CanExecute)
	assert.Equal(t, recoveryDelay, st.DelaySeconds)

	_, err = svc.Execute(ctx, walletAddr, wallettest.NativeToken)
	assert.ErrorIs(t, err, deadman.ErrNotTriggered)

	_, err = svc.Trigger(ctx, walletAddr, recoveryPassword)
	require.NoError(t, err)

	st, err = svc.Status(ctx, walletAddr)
	require.NoError(t, err)
	assert.True(t, st.Triggered)
	assert.False(t, st.CanExecute)
	assert.Equal(t, recoveryDelay, st.TimeRemaining)
	assert.Equal(t, st.TriggeredAt+recoveryDelay, st.ExecutionTime)

	// Too early: the error reports exactly how long remains.
	clock.Advance(time.Hour)
	_, err = svc.Execute(ctx, walletAddr, wallettest.NativeToken)
	var delayErr *deadman.DelayNotElapsedError
	require.ErrorAs(t, err, &delayErr)
	assert.Equal(t, time.Duration(recoveryDelay-3600)*time.Second, delayErr.Remaining)

	clock.Advance(time.Duration(recoveryDelay-3600) * time.Second)
	st, err = svc.Status(ctx, walletAddr)
	require.NoError(t, err)
	assert.True(t, st.CanExecute)
	assert.Zero(t, st.TimeRemaining)

	before := contract.NativeBalance(walletAddr)
	require.Equal(t, big.NewInt(5_000_000), before)

	_, err = svc.Execute(ctx, walletAddr, wallettest.NativeToken)
	require.NoError(t, err)
	assert.Zero(t, contract.NativeBalance(walletAddr).Sign())
	assert.Equal(t, big.NewInt(5_000_000), contract.NativeBalance(withdrawAddr))

	// Terminal: a second execute finds nothing triggered.
	_, err = svc.Execute(ctx, walletAddr, wallettest.NativeToken)
	assert.ErrorIs(t, err, deadman.ErrNotTriggered)
}

func TestExecute_TokenSweep(t *testing.T) {
	svc, contract, clock := newFixture(t)
	ctx := context.Background()

	contract.FundToken(tokenAddr, walletAddr, big.NewInt(777))

	_, err := svc.Trigger(ctx, walletAddr, recoveryPassword)
	require.NoError(t, err)
	clock.Advance(time.Duration(recoveryDelay) * time.Second)

	_, err = svc.Execute(ctx, walletAddr, tokenAddr)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(777), contract.TokenBalance(tokenAddr, withdrawAddr))
	assert.Zero(t, contract.TokenBalance(tokenAddr, walletAddr).Sign())
}

func TestEmergencyRecover_IndependentOfDeadmanState(t *testing.T) {
	svc, contract, _ := newFixture(t)
	ctx := context.Background()

	// Sweeps immediately with no password and no delay.
	_, err := svc.EmergencyRecover(ctx, walletAddr, wallettest.NativeToken)
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(5_000_000), contract.NativeBalance(withdrawAddr))

	// A later trigger still works: the emergency path never touched
	// deadman state.
	_, err = svc.Trigger(ctx, walletAddr, recoveryPassword)
	require.NoError(t, err)
}

func TestMaskAddress(t *testing.T) {
	hex := withdrawAddr.Hex()
	masked := deadman.MaskAddress(withdrawAddr)
	assert.NotEqual(t, hex, masked)
	assert.Equal(t, hex[:6]+"…"+hex[len(hex)-4:], masked)
	assert.Len(t, []rune(masked), 11)
}
