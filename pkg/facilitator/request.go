package facilitator

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/samber/lo"

	"github.com/strata-wallet/relay/pkg/challenge"
	"github.com/strata-wallet/relay/pkg/passkey"
	"github.com/strata-wallet/relay/pkg/wallet"
)

// Action selects the operation a relay request performs. Meta actions
// carry passkey signature material; recovery actions are authorized by
// the relay's own guardian role.
type Action string

const (
	ActionExecute            Action = "execute"
	ActionBatchExecute       Action = "batchExecute"
	ActionSetWithdrawAddress Action = "setWithdrawAddress"
	ActionSetGuardian        Action = "setGuardian"
	ActionCancelDeadman      Action = "cancelDeadman"
	ActionTriggerRecovery    Action = "triggerRecovery"
	ActionExecuteRecovery    Action = "executeRecovery"
	ActionGuardianRecover    Action = "guardianRecover"
)

func (a Action) meta() bool {
	switch a {
	case ActionExecute, ActionBatchExecute, ActionSetWithdrawAddress,
		ActionSetGuardian, ActionCancelDeadman:
		return true
	}
	return false
}

// CallParam is one call of an execute/batchExecute action.
type CallParam struct {
	Target common.Address `json:"target"`
	Value  *hexutil.Big   `json:"value,omitempty"`
	Data   hexutil.Bytes  `json:"data,omitempty"`
}

// KeyParam is the signer's public key as two 32-byte field elements.
type KeyParam struct {
	QX hexutil.Bytes `json:"qx"`
	QY hexutil.Bytes `json:"qy"`
}

// AuthParam is the WebAuthn signature tuple.
type AuthParam struct {
	AuthenticatorData hexutil.Bytes `json:"authenticatorData"`
	ClientDataJSON    string        `json:"clientDataJSON"`
	ChallengeIndex    uint64        `json:"challengeIndex"`
	TypeIndex         uint64        `json:"typeIndex"`
	R                 hexutil.Bytes `json:"r"`
	S                 hexutil.Bytes `json:"s"`
}

// Params carries the action-specific scalar parameters.
type Params struct {
	NewAddress *common.Address `json:"newAddress,omitempty"`
	Password   string          `json:"password,omitempty"`
	Token      *common.Address `json:"token,omitempty"`
}

// Request is the relay's POST body, decoded once at the boundary and
// validated before any business logic sees it.
type Request struct {
	SmartWalletAddress common.Address `json:"smartWalletAddress"`
	ChainID            uint64         `json:"chainId"`
	Action             Action         `json:"action"`
	Calls              []CallParam    `json:"calls,omitempty"`
	Params             *Params        `json:"params,omitempty"`
	Nonce              uint64         `json:"nonce"`
	Deadline           uint64         `json:"deadline"`
	PublicKey          *KeyParam      `json:"publicKey,omitempty"`
	Auth               *AuthParam     `json:"auth,omitempty"`
}

// Result is the success half of the relay response.
type Result struct {
	TxHash       common.Hash `json:"txHash"`
	BlockNumber  uint64      `json:"blockNumber"`
	GasUsed      uint64      `json:"gasUsed"`
	ActionResult any         `json:"actionResult,omitempty"`
}

func (r *Request) validate() *Error {
	if r.SmartWalletAddress == (common.Address{}) {
		return newError(CodeValidation, "smartWalletAddress is required")
	}
	if r.ChainID == 0 {
		return newError(CodeValidation, "chainId is required")
	}

	switch r.Action {
	case ActionExecute:
		if len(r.Calls) != 1 {
			return newError(CodeValidation, "execute requires exactly one call")
		}
	case ActionBatchExecute:
		if len(r.Calls) == 0 {
			return newError(CodeValidation, "batchExecute requires at least one call")
		}
	case ActionSetWithdrawAddress, ActionSetGuardian:
		if r.Params == nil || r.Params.NewAddress == nil {
			return newError(CodeValidation, "params.newAddress is required")
		}
	case ActionCancelDeadman:
	case ActionTriggerRecovery:
		if r.Params == nil || r.Params.Password == "" {
			return newError(CodeValidation, "params.password is required")
		}
		return nil
	case ActionExecuteRecovery, ActionGuardianRecover:
		return nil
	default:
		return newError(CodeValidation, "unknown action "+string(r.Action))
	}

	// Everything below is a meta action.
	if r.Deadline == 0 {
		return newError(CodeValidation, "deadline is required")
	}
	if r.PublicKey == nil || len(r.PublicKey.QX) != 32 || len(r.PublicKey.QY) != 32 {
		return newError(CodeValidation, "publicKey.qx and publicKey.qy must be 32 bytes")
	}
	if r.Auth == nil {
		return newError(CodeValidation, "auth is required")
	}
	if len(r.Auth.R) != 32 || len(r.Auth.S) != 32 {
		return newError(CodeValidation, "auth.r and auth.s must be 32 bytes")
	}
	if len(r.Auth.AuthenticatorData) < 37 {
		return newError(CodeValidation, "auth.authenticatorData is too short")
	}
	if r.Auth.ClientDataJSON == "" {
		return newError(CodeValidation, "auth.clientDataJSON is required")
	}
	return nil
}

// metaCall converts a validated meta-action request into the contract
// call shape.
func (r *Request) metaCall() (*wallet.MetaCall, *Error) {
	var key passkey.PublicKey
	copy(key.QX[:], r.PublicKey.QX)
	copy(key.QY[:], r.PublicKey.QY)
	if _, err := key.ECDSA(); err != nil {
		return nil, wrapError(CodeValidation, err)
	}

	auth := wallet.Auth{
		AuthenticatorData: r.Auth.AuthenticatorData,
		ClientDataJSON:    r.Auth.ClientDataJSON,
		ChallengeIndex:    newBig(r.Auth.ChallengeIndex),
		TypeIndex:         newBig(r.Auth.TypeIndex),
	}
	copy(auth.R[:], r.Auth.R)
	copy(auth.S[:], r.Auth.S)

	m := &wallet.MetaCall{
		ChainID:  r.ChainID,
		Wallet:   r.SmartWalletAddress,
		Key:      key,
		Nonce:    r.Nonce,
		Deadline: r.Deadline,
		Auth:     auth,
		Calls: lo.Map(r.Calls, func(c CallParam, _ int) challenge.Call {
			call := challenge.Call{Target: c.Target, Data: c.Data}
			if c.Value != nil {
				call.Value = (*big.Int)(c.Value)
			}
			return call
		}),
	}

	switch r.Action {
	case ActionExecute:
		m.Kind = wallet.KindExec
	case ActionBatchExecute:
		m.Kind = wallet.KindBatchExec
	case ActionSetWithdrawAddress:
		m.Kind = wallet.KindSetWithdrawAddress
		m.NewAddress = *r.Params.NewAddress
	case ActionSetGuardian:
		m.Kind = wallet.KindSetGuardian
		m.NewAddress = *r.Params.NewAddress
	case ActionCancelDeadman:
		m.Kind = wallet.KindCancelDeadman
	default:
		return nil, newError(CodeValidation, "not a meta action: "+string(r.Action))
	}
	return m, nil
}

func newBig(v uint64) *big.Int {
	return new(big.Int).SetUint64(v)
}

func (r *Request) token() common.Address {
	if r.Params != nil && r.Params.Token != nil {
		return *r.Params.Token
	}
	return common.Address{}
}
