package challenge

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testWallet = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testTarget = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func TestSingleCallHash_FieldInjectivity(t *testing.T) {
	base := func() (uint64, common.Address, Call, uint64, uint64) {
		return 8453, testWallet, Call{
			Target: testTarget,
			Value:  big.NewInt(1_000_000),
			Data:   []byte{0xde, 0xad},
		}, 7, 1_700_000_000
	}

	chainID, wallet, call, nonce, deadline := base()
	reference := SingleCallHash(chainID, wallet, call, nonce, deadline)

	// Purity: same inputs, same hash.
	assert.Equal(t, reference, SingleCallHash(chainID, wallet, call, nonce, deadline))

	mutations := map[string]common.Hash{
		"chainId":  SingleCallHash(chainID+1, wallet, call, nonce, deadline),
		"wallet":   SingleCallHash(chainID, testTarget, call, nonce, deadline),
		"target":   SingleCallHash(chainID, wallet, Call{Target: testWallet, Value: call.Value, Data: call.Data}, nonce, deadline),
		"value":    SingleCallHash(chainID, wallet, Call{Target: call.Target, Value: big.NewInt(1_000_001), Data: call.Data}, nonce, deadline),
		"data":     SingleCallHash(chainID, wallet, Call{Target: call.Target, Value: call.Value, Data: []byte{0xde, 0xae}}, nonce, deadline),
		"nonce":    SingleCallHash(chainID, wallet, call, nonce+1, deadline),
		"deadline": SingleCallHash(chainID, wallet, call, nonce, deadline+1),
	}
	for field, mutated := range mutations {
		assert.NotEqual(t, reference, mutated, "changing %s must change the hash", field)
	}
}

func TestSingleCallHash_NilValueIsZero(t *testing.T) {
	withNil := SingleCallHash(1, testWallet, Call{Target: testTarget}, 0, 100)
	withZero := SingleCallHash(1, testWallet, Call{Target: testTarget, Value: new(big.Int)}, 0, 100)
	assert.Equal(t, withNil, withZero)
}

func TestBatchCallHash_BoundaryShiftsDoNotCollide(t *testing.T) {
	// One call carrying a 0x00 byte versus the byte migrated into the
	// neighboring call: per-call data hashing keeps the boundary.
	a := []Call{
		{Target: testTarget, Value: big.NewInt(1), Data: []byte{0x00}},
		{Target: testTarget, Value: big.NewInt(1), Data: nil},
	}
	b := []Call{
		{Target: testTarget, Value: big.NewInt(1), Data: nil},
		{Target: testTarget, Value: big.NewInt(1), Data: []byte{0x00}},
	}
	assert.NotEqual(t,
		BatchCallHash(1, testWallet, a, 0, 100),
		BatchCallHash(1, testWallet, b, 0, 100),
	)
}

func TestBatchCallHash_FieldInjectivity(t *testing.T) {
	calls := []Call{
		{Target: testTarget, Value: big.NewInt(5), Data: []byte{0x01}},
		{Target: testWallet, Value: big.NewInt(6), Data: []byte{0x02, 0x03}},
	}
	reference := BatchCallHash(8453, testWallet, calls, 3, 500)

	changedData := []Call{
		{Target: testTarget, Value: big.NewInt(5), Data: []byte{0x01}},
		{Target: testWallet, Value: big.NewInt(6), Data: []byte{0x02, 0x04}},
	}
	assert.NotEqual(t, reference, BatchCallHash(8453, testWallet, changedData, 3, 500))
	assert.NotEqual(t, reference, BatchCallHash(8453, testWallet, calls, 4, 500))
	assert.NotEqual(t, reference, BatchCallHash(8453, testWallet, calls, 3, 501))
	assert.NotEqual(t, reference, BatchCallHash(8453, testWallet, calls[:1], 3, 500))
}

type stubNonces struct {
	nonce uint64
	reads int
}

func (s *stubNonces) Nonce(context.Context, common.Address, common.Address) (uint64, error) {
	s.reads++
	return s.nonce, nil
}

func TestBuilder_ReadsNonceFreshPerChallenge(t *testing.T) {
	nonces := &stubNonces{nonce: 4}
	builder := NewBuilder(8453, nonces)
	key := common.HexToAddress("0x3333333333333333333333333333333333333333")
	call := Call{Target: testTarget, Value: big.NewInt(9)}

	first, err := builder.Single(context.Background(), testWallet, key, call, 1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), first.Nonce)
	assert.Equal(t, SingleCallHash(8453, testWallet, call, 4, 1000), first.Hash)

	// A concurrently mined action bumps the contract nonce; the next
	// build must observe it, not a cached value.
	nonces.nonce = 5
	second, err := builder.Single(context.Background(), testWallet, key, call, 1000)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), second.Nonce)
	assert.NotEqual(t, first.Hash, second.Hash)
	assert.Equal(t, 2, nonces.reads)
}

func TestBuilder_Batch(t *testing.T) {
	nonces := &stubNonces{nonce: 0}
	builder := NewBuilder(1, nonces)
	key := common.HexToAddress("0x3333333333333333333333333333333333333333")

	_, err := builder.Batch(context.Background(), testWallet, key, nil, 100)
	assert.ErrorIs(t, err, ErrNoCalls)

	calls := []Call{{Target: testTarget, Value: big.NewInt(1)}}
	ch, err := builder.Batch(context.Background(), testWallet, key, calls, 100)
	require.NoError(t, err)
	assert.Equal(t, BatchCallHash(1, testWallet, calls, 0, 100), ch.Hash)
}
