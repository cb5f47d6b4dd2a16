package utils

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the size of an [R || S || V] secp256k1 signature.
const SignatureLength = crypto.SignatureLength

// DecodeSignature decodes a 0x-prefixed 65-byte signature and normalizes the
// recovery id from the wallet convention (27/28) to 0/1.
func DecodeSignature(signature string) ([]byte, error) {
	signature = strings.TrimSpace(signature)
	if !strings.HasPrefix(signature, "0x") && !strings.HasPrefix(signature, "0X") {
		signature = "0x" + signature
	}

	sigBytes, err := hexutil.Decode(signature)
	if err != nil {
		return nil, fmt.Errorf("failed to decode signature: %w", err)
	}

	if len(sigBytes) != SignatureLength {
		return nil, fmt.Errorf("signature must be %d bytes, got %d", SignatureLength, len(sigBytes))
	}

	// Adjust recovery ID for Ethereum
	if sigBytes[64] >= 27 {
		sigBytes[64] -= 27
	}
	if sigBytes[64] > 1 {
		return nil, fmt.Errorf("invalid recovery id %d", sigBytes[64])
	}

	return sigBytes, nil
}

// RecoverAddressFromSignature recovers the Ethereum address from a signature
func RecoverAddressFromSignature(hash []byte, signature string) (common.Address, error) {
	sigBytes, err := DecodeSignature(signature)
	if err != nil {
		return common.Address{}, err
	}

	pubKey, err := crypto.SigToPub(hash, sigBytes)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}

	return crypto.PubkeyToAddress(*pubKey), nil
}

// PrivateKeyFromHex creates a private key from hex string
func PrivateKeyFromHex(hexKey string) (*ecdsa.PrivateKey, error) {
	return crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
}

// AddressFromPrivateKey derives the Ethereum address from a private key
func AddressFromPrivateKey(privateKey *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(privateKey.PublicKey)
}

// SignHash signs a hash with the given private key. The recovery id is
// returned in wallet form (27/28).
func SignHash(hash []byte, privateKey *ecdsa.PrivateKey) (string, error) {
	signature, err := crypto.Sign(hash, privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign hash: %w", err)
	}
	signature[64] += 27

	return hexutil.Encode(signature), nil
}

// ValidateAddress checks if a string is a valid Ethereum address
func ValidateAddress(address string) bool {
	return common.IsHexAddress(address)
}

// NormalizeAddress ensures an address is properly checksummed
func NormalizeAddress(address string) string {
	if !common.IsHexAddress(address) {
		return ""
	}
	return common.HexToAddress(address).Hex()
}

// SameAddress compares two hex addresses case-insensitively. Invalid
// addresses never match.
func SameAddress(a, b string) bool {
	if !common.IsHexAddress(a) || !common.IsHexAddress(b) {
		return false
	}
	return common.HexToAddress(a) == common.HexToAddress(b)
}

// SignPersonalMessage signs message the way personal_sign does (EIP-191).
func SignPersonalMessage(message string, privateKey *ecdsa.PrivateKey) (string, error) {
	hash := accounts.TextHash([]byte(message))
	return SignHash(hash, privateKey)
}

// RecoverPersonalMessageSigner returns the address that produced a
// personal_sign signature over message.
func RecoverPersonalMessageSigner(message, signature string) (common.Address, error) {
	return RecoverAddressFromSignature(accounts.TextHash([]byte(message)), signature)
}

// VerifyPersonalMessage verifies a personal_sign signature against expectedAddress.
func VerifyPersonalMessage(message, signature string, expectedAddress common.Address) (bool, error) {
	recoveredAddr, err := RecoverPersonalMessageSigner(message, signature)
	if err != nil {
		return false, err
	}

	return recoveredAddr == expectedAddress, nil
}
