package wallet

import (
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// RecoveryPasswordDigest is the contract's password commitment:
// keccak256(walletAddress ‖ password). Binding the wallet address in
// keeps one password from unlocking recovery on another wallet.
func RecoveryPasswordDigest(wallet common.Address, password string) common.Hash {
	return common.BytesToHash(ethcrypto.Keccak256(wallet.Bytes(), []byte(password)))
}
