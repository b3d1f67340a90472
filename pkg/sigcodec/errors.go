package sigcodec

import "errors"

var (
	ErrMalformedSignature   = errors.New("sigcodec: malformed DER signature")
	ErrChallengeMismatch    = errors.New("sigcodec: embedded challenge does not match")
	ErrCeremonyTypeMismatch = errors.New("sigcodec: embedded ceremony type does not match")
)
