package wallet

import "errors"

var (
	ErrBadCallShape = errors.New("wallet: call shape does not match meta-call kind")
)

// Revert reason strings the external contract emits. The facilitator
// maps these onto its failure categories by substring.
const (
	RevertInvalidSignature  = "invalid signature"
	RevertExpiredSignature  = "signature expired"
	RevertInvalidNonce      = "invalid nonce"
	RevertExecutionFailed   = "execution failed"
	RevertNotGuardian       = "caller is not guardian"
	RevertNotOwner          = "caller is not owner"
	RevertWrongPassword     = "wrong password"
	RevertAlreadyTriggered  = "already triggered"
	RevertNoWithdrawAddress = "no withdraw address"
	RevertDelayNotElapsed   = "delay not elapsed"
	RevertNotTriggered      = "not triggered"
	RevertUnknownPasskey    = "unknown passkey"
)

// RevertError carries the contract's revert reason across the
// simulate/broadcast boundary.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string {
	return "wallet: execution reverted: " + e.Reason
}

// AsRevert unwraps err into a RevertError if there is one.
func AsRevert(err error) (*RevertError, bool) {
	var re *RevertError
	if errors.As(err, &re) {
		return re, true
	}
	return nil, false
}
