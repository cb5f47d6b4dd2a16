package verification

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/vitwit/paygate/utils"
)

// SignatureVerifier checks that a message was signed by an address.
// Malformed input yields false, never a panic.
type SignatureVerifier interface {
	Verify(message, signature, address string) bool
}

var _ SignatureVerifier = PersonalSignVerifier{}

// PersonalSignVerifier verifies EIP-191 personal_sign signatures, the format
// produced by wallet signMessage calls.
type PersonalSignVerifier struct{}

func (PersonalSignVerifier) Verify(message, signature, address string) bool {
	if !common.IsHexAddress(address) {
		return false
	}

	ok, err := utils.VerifyPersonalMessage(message, signature, common.HexToAddress(address))
	return err == nil && ok
}
