package facilitator

import (
	"errors"
	"strings"

	"github.com/strata-wallet/relay/pkg/deadman"
	"github.com/strata-wallet/relay/pkg/wallet"
)

// Code identifies a failure class across the relay API boundary.
type Code string

const (
	// Rejected before any external call.
	CodeValidation  Code = "ValidationError"
	CodeRateLimited Code = "RateLimited"

	// Signature or key material did not hold up; the user retries the
	// ceremony.
	CodeAuthentication Code = "AuthenticationFailure"

	// Wrong role; rejected with no side effects.
	CodeAuthorization Code = "AuthorizationFailure"

	// Relay underfunded or misconfigured; fails fast before broadcast.
	CodeServiceUnavailable Code = "ServiceUnavailable"

	// Chain revert categories.
	CodeInvalidSignature Code = "InvalidSignature"
	CodeExpiredSignature Code = "ExpiredSignature"
	CodeExecutionFailed  Code = "ExecutionFailed"
	CodeOutOfGas         Code = "OutOfGas"

	// Recovery state machine outcomes.
	CodeWrongPassword     Code = "WrongPassword"
	CodeAlreadyTriggered  Code = "AlreadyTriggered"
	CodeNoWithdrawAddress Code = "NoWithdrawAddress"
	CodeDelayNotElapsed   Code = "DelayNotElapsed"
	CodeNotTriggered      Code = "NotTriggered"

	CodeInternal Code = "InternalError"
)

// Error is the structured failure every relay operation returns.
type Error struct {
	Code    Code
	Message string
	err     error
}

func (e *Error) Error() string {
	return "facilitator: " + string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.err
}

func newError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func wrapError(code Code, err error) *Error {
	return &Error{Code: code, Message: err.Error(), err: err}
}

// classifyChainError maps a simulate/broadcast failure onto the relay's
// revert categories by matching known reason substrings.
func classifyChainError(err error) *Error {
	if re, ok := wallet.AsRevert(err); ok {
		reason := strings.ToLower(re.Reason)
		switch {
		case strings.Contains(reason, wallet.RevertInvalidSignature),
			strings.Contains(reason, wallet.RevertUnknownPasskey):
			return &Error{Code: CodeInvalidSignature, Message: re.Reason, err: err}
		case strings.Contains(reason, "expired"):
			return &Error{Code: CodeExpiredSignature, Message: re.Reason, err: err}
		case strings.Contains(reason, "out of gas"):
			return &Error{Code: CodeOutOfGas, Message: re.Reason, err: err}
		default:
			return &Error{Code: CodeExecutionFailed, Message: re.Reason, err: err}
		}
	}
	if strings.Contains(strings.ToLower(err.Error()), "out of gas") {
		return wrapError(CodeOutOfGas, err)
	}
	return wrapError(CodeExecutionFailed, err)
}

// classifyRecoveryError maps deadman state machine failures onto API
// codes without losing the remaining-time detail.
func classifyRecoveryError(err error) *Error {
	var delayErr *deadman.DelayNotElapsedError
	switch {
	case errors.Is(err, deadman.ErrWrongPassword):
		return wrapError(CodeWrongPassword, err)
	case errors.Is(err, deadman.ErrAlreadyTriggered):
		return wrapError(CodeAlreadyTriggered, err)
	case errors.Is(err, deadman.ErrNoWithdrawAddress):
		return wrapError(CodeNoWithdrawAddress, err)
	case errors.Is(err, deadman.ErrNotTriggered):
		return wrapError(CodeNotTriggered, err)
	case errors.As(err, &delayErr):
		return wrapError(CodeDelayNotElapsed, err)
	}
	if re, ok := wallet.AsRevert(err); ok {
		if strings.Contains(strings.ToLower(re.Reason), "guardian") {
			return wrapError(CodeAuthorization, err)
		}
		return classifyChainError(err)
	}
	return wrapError(CodeInternal, err)
}
