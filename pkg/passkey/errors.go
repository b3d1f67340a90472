package passkey

import "errors"

var (
	ErrNotOnCurve            = errors.New("passkey: public key is not a valid P-256 point")
	ErrMalformedAttestation  = errors.New("passkey: malformed attestation object")
	ErrNoAttestedCredential  = errors.New("passkey: authenticator data carries no attested credential")
	ErrUnsupportedCredential = errors.New("passkey: credential public key is not EC2/P-256")
	ErrTruncatedAuthData     = errors.New("passkey: truncated authenticator data")
)
