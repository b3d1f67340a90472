package sigcodec

import (
	"encoding/base64"
	"strings"
)

// CeremonyTypeGet is the clientDataJSON type for an assertion ceremony.
const CeremonyTypeGet = "webauthn.get"

// CheckClientData performs the same offset-based substring checks the
// on-chain verifier applies to clientDataJSON: the base64url-encoded
// challenge must sit at challengeIndex and the ceremony type at
// typeIndex. This deliberately avoids JSON parsing so the off-chain
// check cannot accept anything the contract would reject.
func CheckClientData(clientDataJSON string, challenge []byte, challengeIndex, typeIndex uint64) error {
	wantChallenge := `"challenge":"` + base64.RawURLEncoding.EncodeToString(challenge) + `"`
	if !substrAt(clientDataJSON, wantChallenge, challengeIndex) {
		return ErrChallengeMismatch
	}
	wantType := `"type":"` + CeremonyTypeGet + `"`
	if !substrAt(clientDataJSON, wantType, typeIndex) {
		return ErrCeremonyTypeMismatch
	}
	return nil
}

func substrAt(s, want string, index uint64) bool {
	if index > uint64(len(s)) {
		return false
	}
	return strings.HasPrefix(s[index:], want)
}
