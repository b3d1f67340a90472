package wallet

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/samber/lo"

	"github.com/strata-wallet/relay/pkg/challenge"
	"github.com/strata-wallet/relay/pkg/passkey"
)

// Auth is the signature tuple the contract's verifier consumes. The
// index fields let it locate the embedded challenge and type substrings
// inside clientDataJSON without JSON parsing on-chain.
type Auth struct {
	AuthenticatorData []byte
	ClientDataJSON    string
	ChallengeIndex    *big.Int
	TypeIndex         *big.Int
	R                 [32]byte
	S                 [32]byte
}

// AuthFromAssertion converts a ceremony result into the wire tuple.
func AuthFromAssertion(a *passkey.Assertion) Auth {
	return Auth{
		AuthenticatorData: a.AuthenticatorData,
		ClientDataJSON:    a.ClientDataJSON,
		ChallengeIndex:    new(big.Int).SetUint64(a.ChallengeIndex),
		TypeIndex:         new(big.Int).SetUint64(a.TypeIndex),
		R:                 a.R,
		S:                 a.S,
	}
}

// Assertion converts the wire tuple back into ceremony form.
func (a Auth) Assertion() *passkey.Assertion {
	return &passkey.Assertion{
		AuthenticatorData: a.AuthenticatorData,
		ClientDataJSON:    a.ClientDataJSON,
		ChallengeIndex:    a.ChallengeIndex.Uint64(),
		TypeIndex:         a.TypeIndex.Uint64(),
		R:                 a.R,
		S:                 a.S,
	}
}

const authComponents = `[
	{"name":"authenticatorData","type":"bytes"},
	{"name":"clientDataJSON","type":"string"},
	{"name":"challengeIndex","type":"uint256"},
	{"name":"typeIndex","type":"uint256"},
	{"name":"r","type":"bytes32"},
	{"name":"s","type":"bytes32"}
]`

const callComponents = `[
	{"name":"target","type":"address"},
	{"name":"value","type":"uint256"},
	{"name":"data","type":"bytes"}
]`

var walletABIJSON = `[
	{"type":"function","name":"owner","stateMutability":"view","inputs":[],"outputs":[{"type":"address"}]},
	{"type":"function","name":"guardian","stateMutability":"view","inputs":[],"outputs":[{"type":"address"}]},
	{"type":"function","name":"withdrawAddress","stateMutability":"view","inputs":[],"outputs":[{"type":"address"}]},
	{"type":"function","name":"recoveryPasswordHash","stateMutability":"view","inputs":[],"outputs":[{"type":"bytes32"}]},
	{"type":"function","name":"deadmanTriggeredAt","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]},
	{"type":"function","name":"deadmanDelay","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]},
	{"type":"function","name":"lastActivityTimestamp","stateMutability":"view","inputs":[],"outputs":[{"type":"uint256"}]},
	{"type":"function","name":"nonces","stateMutability":"view","inputs":[{"type":"address"}],"outputs":[{"type":"uint256"}]},
	{"type":"function","name":"isPasskey","stateMutability":"view","inputs":[{"type":"address"}],"outputs":[{"type":"bool"}]},
	{"type":"function","name":"metaExecPasskey","inputs":[
		{"name":"target","type":"address"},
		{"name":"value","type":"uint256"},
		{"name":"data","type":"bytes"},
		{"name":"qx","type":"bytes32"},
		{"name":"qy","type":"bytes32"},
		{"name":"deadline","type":"uint256"},
		{"name":"auth","type":"tuple","components":` + authComponents + `}
	],"outputs":[]},
	{"type":"function","name":"metaBatchExecPasskey","inputs":[
		{"name":"calls","type":"tuple[]","components":` + callComponents + `},
		{"name":"qx","type":"bytes32"},
		{"name":"qy","type":"bytes32"},
		{"name":"deadline","type":"uint256"},
		{"name":"auth","type":"tuple","components":` + authComponents + `}
	],"outputs":[]},
	{"type":"function","name":"metaSetWithdrawAddress","inputs":[
		{"name":"newAddress","type":"address"},
		{"name":"qx","type":"bytes32"},
		{"name":"qy","type":"bytes32"},
		{"name":"deadline","type":"uint256"},
		{"name":"auth","type":"tuple","components":` + authComponents + `}
	],"outputs":[]},
	{"type":"function","name":"metaSetGuardian","inputs":[
		{"name":"newGuardian","type":"address"},
		{"name":"qx","type":"bytes32"},
		{"name":"qy","type":"bytes32"},
		{"name":"deadline","type":"uint256"},
		{"name":"auth","type":"tuple","components":` + authComponents + `}
	],"outputs":[]},
	{"type":"function","name":"cancelDeadman","inputs":[
		{"name":"qx","type":"bytes32"},
		{"name":"qy","type":"bytes32"},
		{"name":"deadline","type":"uint256"},
		{"name":"auth","type":"tuple","components":` + authComponents + `}
	],"outputs":[]},
	{"type":"function","name":"triggerDeadmanWithPassword","inputs":[{"name":"password","type":"string"}],"outputs":[]},
	{"type":"function","name":"executeDeadman","inputs":[{"name":"token","type":"address"}],"outputs":[]},
	{"type":"function","name":"guardianRecover","inputs":[{"name":"token","type":"address"}],"outputs":[]},
	{"type":"function","name":"setWithdrawAddress","inputs":[{"name":"newAddress","type":"address"}],"outputs":[]},
	{"type":"function","name":"setGuardian","inputs":[{"name":"newGuardian","type":"address"}],"outputs":[]}
]`

var walletABI = mustParseABI(walletABIJSON)

func mustParseABI(src string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(src))
	if err != nil {
		panic(err)
	}
	return parsed
}

// abiCall mirrors the calls tuple layout for ABI packing.
type abiCall struct {
	Target common.Address
	Value  *big.Int
	Data   []byte
}

func toABICalls(calls []challenge.Call) []abiCall {
	return lo.Map(calls, func(c challenge.Call, _ int) abiCall {
		value := c.Value
		if value == nil {
			value = new(big.Int)
		}
		return abiCall{Target: c.Target, Value: value, Data: c.Data}
	})
}

// packMeta encodes the contract calldata for a meta-call.
func packMeta(m *MetaCall) ([]byte, error) {
	deadline := new(big.Int).SetUint64(m.Deadline)

	switch m.Kind {
	case KindExec:
		if len(m.Calls) != 1 {
			return nil, ErrBadCallShape
		}
		c := m.Calls[0]
		value := c.Value
		if value == nil {
			value = new(big.Int)
		}
		return walletABI.Pack("metaExecPasskey",
			c.Target, value, c.Data, m.Key.QX, m.Key.QY, deadline, m.Auth)
	case KindBatchExec:
		return walletABI.Pack("metaBatchExecPasskey",
			toABICalls(m.Calls), m.Key.QX, m.Key.QY, deadline, m.Auth)
	case KindSetWithdrawAddress:
		return walletABI.Pack("metaSetWithdrawAddress",
			m.NewAddress, m.Key.QX, m.Key.QY, deadline, m.Auth)
	case KindSetGuardian:
		return walletABI.Pack("metaSetGuardian",
			m.NewAddress, m.Key.QX, m.Key.QY, deadline, m.Auth)
	case KindCancelDeadman:
		return walletABI.Pack("cancelDeadman",
			m.Key.QX, m.Key.QY, deadline, m.Auth)
	default:
		return nil, fmt.Errorf("%w: kind %d", ErrBadCallShape, m.Kind)
	}
}

// packInner encodes the setter calldata an administrative meta-call
// hashes over. This is the byte string the signed challenge commits to,
// so it must match the contract's own encoding of the self-call.
func packInner(kind Kind, newAddress common.Address) ([]byte, error) {
	switch kind {
	case KindSetWithdrawAddress:
		return walletABI.Pack("setWithdrawAddress", newAddress)
	case KindSetGuardian:
		return walletABI.Pack("setGuardian", newAddress)
	case KindCancelDeadman:
		// The challenge commits to the parameterless cancel intent, not
		// to the outer meta entry point carrying the signature itself.
		return ethcrypto.Keccak256([]byte("cancelDeadman()"))[:4], nil
	default:
		return nil, ErrBadCallShape
	}
}
