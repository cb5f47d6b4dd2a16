package utils

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const etherDecimals = 18

var (
	txHashRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
	uintRegex   = regexp.MustCompile(`^[0-9]+$`)
	maxUint256  = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	weiPerEther = decimal.New(1, etherDecimals)
)

// ValidateAmount checks if an amount string is a valid decimal
func ValidateAmount(amount string) (*decimal.Decimal, error) {
	if amount == "" {
		return nil, fmt.Errorf("amount cannot be empty")
	}

	dec, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("invalid amount format: %w", err)
	}

	if dec.IsNegative() {
		return nil, fmt.Errorf("amount cannot be negative")
	}

	return &dec, nil
}

// ValidateBigInt parses a base-10 unsigned integer that fits in a uint256.
// Signs, decimals, exponents and whitespace are rejected.
func ValidateBigInt(value string) (*big.Int, error) {
	if value == "" {
		return nil, fmt.Errorf("value cannot be empty")
	}

	if !uintRegex.MatchString(value) {
		return nil, fmt.Errorf("invalid big integer format")
	}

	bigInt, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid big integer format")
	}

	if bigInt.Cmp(maxUint256) > 0 {
		return nil, fmt.Errorf("value exceeds uint256")
	}

	return bigInt, nil
}

// ValidateTransactionHash validates an EVM transaction hash (0x + 64 hex).
func ValidateTransactionHash(hash string) error {
	if hash == "" {
		return fmt.Errorf("transaction hash cannot be empty")
	}

	if !txHashRegex.MatchString(hash) {
		return fmt.Errorf("transaction hash must be 0x followed by 64 hex characters")
	}

	return nil
}

// NormalizeTransactionHash lower-cases a hash so ledger keys do not depend on
// the client's hex casing.
func NormalizeTransactionHash(hash string) string {
	return strings.ToLower(strings.TrimSpace(hash))
}

// ValidateTimestamp checks that a proof timestamp lies within
// [now-maxAge, now+skew].
func ValidateTimestamp(timestamp, now time.Time, maxAge, skew time.Duration) error {
	if now.Sub(timestamp) > maxAge {
		return fmt.Errorf("timestamp is older than %s", maxAge)
	}

	if timestamp.Sub(now) > skew {
		return fmt.Errorf("timestamp is too far in the future")
	}

	return nil
}

// FormatAmountFromBigInt formats a big.Int amount to decimal string with specified decimals
func FormatAmountFromBigInt(amount *big.Int, decimals int) string {
	dec := decimal.NewFromBigInt(amount, -int32(decimals))
	return dec.String()
}

// FormatWeiAsEther renders a wei amount as a human readable "<n> ETH" string.
func FormatWeiAsEther(wei string) string {
	amount, err := ValidateBigInt(wei)
	if err != nil {
		return wei + " wei"
	}
	return FormatAmountFromBigInt(amount, etherDecimals) + " ETH"
}

// ParseEtherAmount converts a decimal ether amount ("0.001") into wei.
func ParseEtherAmount(ether string) (*big.Int, error) {
	dec, err := ValidateAmount(ether)
	if err != nil {
		return nil, err
	}

	wei := dec.Mul(weiPerEther)
	if !wei.Equal(wei.Truncate(0)) {
		return nil, fmt.Errorf("amount %s has more than 18 decimals", ether)
	}

	return wei.BigInt(), nil
}

// MaxBigInt returns the larger of a and b.
func MaxBigInt(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}
