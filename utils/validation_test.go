package utils

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateBigInt(t *testing.T) {
	tests := []struct {
		value string
		valid bool
	}{
		{"0", true},
		{"1000000000000000", true},
		{"115792089237316195423570985008687907853269984665640564039457584007913129639935", true},
		{"115792089237316195423570985008687907853269984665640564039457584007913129639936", false},
		{"", false},
		{"-1", false},
		{"+1", false},
		{"1.5", false},
		{"1e18", false},
		{" 1", false},
		{"0x10", false},
	}

	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			_, err := ValidateBigInt(tt.value)
			assert.Equal(t, tt.valid, err == nil)
		})
	}
}

func TestValidateTransactionHash(t *testing.T) {
	assert.NoError(t, ValidateTransactionHash(testTxHash))
	assert.Error(t, ValidateTransactionHash(""))
	assert.Error(t, ValidateTransactionHash(testTxHash[2:]))
	assert.Error(t, ValidateTransactionHash(testTxHash+"0"))
	assert.Error(t, ValidateTransactionHash("0x"+string(make([]byte, 64))))
}

func TestNormalizeTransactionHash(t *testing.T) {
	assert.Equal(t, "0xabcdef", NormalizeTransactionHash(" 0xABCdef "))
}

func TestValidateTimestamp(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	maxAge := 10 * time.Minute
	skew := 30 * time.Second

	assert.NoError(t, ValidateTimestamp(now, now, maxAge, skew))
	assert.NoError(t, ValidateTimestamp(now.Add(-maxAge), now, maxAge, skew))
	assert.Error(t, ValidateTimestamp(now.Add(-maxAge-time.Millisecond), now, maxAge, skew))
	assert.NoError(t, ValidateTimestamp(now.Add(skew), now, maxAge, skew))
	assert.Error(t, ValidateTimestamp(now.Add(skew+time.Millisecond), now, maxAge, skew))
}

func TestFormatWeiAsEther(t *testing.T) {
	assert.Equal(t, "0.001 ETH", FormatWeiAsEther("1000000000000000"))
	assert.Equal(t, "2 ETH", FormatWeiAsEther("2000000000000000000"))
	assert.Equal(t, "abc wei", FormatWeiAsEther("abc"))
}

func TestParseEtherAmount(t *testing.T) {
	wei, err := ParseEtherAmount("0.001")
	require.NoError(t, err)
	assert.Equal(t, "1000000000000000", wei.String())

	_, err = ParseEtherAmount("0.0000000000000000001")
	assert.Error(t, err)

	_, err = ParseEtherAmount("-1")
	assert.Error(t, err)
}

func TestMaxBigInt(t *testing.T) {
	a, b := big.NewInt(5), big.NewInt(9)
	assert.Same(t, b, MaxBigInt(a, b))
	assert.Same(t, b, MaxBigInt(b, a))
}
