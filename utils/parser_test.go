package utils

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/paygate/types"
)

const (
	testTxHash  = "0x9f2c6d1b4a7e8f3c2d1b0a9e8f7c6d5b4a3e2f1c0d9b8a7e6f5c4d3b2a1e0f9c"
	testAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
)

func testProof() types.PaymentProof {
	return types.PaymentProof{
		TxHash:    testTxHash,
		Amount:    "1000000000000000",
		Timestamp: 1700000000000,
		Message:   "What is x402?",
		Address:   testAddress,
	}
}

func TestSerializeProof(t *testing.T) {
	proof := testProof()
	proof.Message = "a < b && c > d"

	got, err := SerializeProof(&proof)
	require.NoError(t, err)

	want := `{"txHash":"` + testTxHash + `","amount":"1000000000000000","timestamp":1700000000000,` +
		`"message":"a < b && c > d","address":"` + testAddress + `"}`
	assert.Equal(t, want, got)
}

func TestPaymentHeaderRoundTrip(t *testing.T) {
	header := &types.PaymentHeader{Proof: testProof(), Signature: "0xabcdef"}

	encoded, err := EncodePaymentHeader(header)
	require.NoError(t, err)

	decoded, err := DecodePaymentHeader(encoded)
	require.NoError(t, err)
	assert.Equal(t, header.Proof, decoded.Proof)
	assert.Equal(t, header.Signature, decoded.Signature)

	canonical, err := SerializeProof(&header.Proof)
	require.NoError(t, err)
	assert.Equal(t, canonical, string(decoded.RawProof))
}

func TestSerializeProof_LineSeparators(t *testing.T) {
	proof := testProof()
	proof.Message = "line\u2028para\u2029 literal \\u2028"

	got, err := SerializeProof(&proof)
	require.NoError(t, err)
	assert.Contains(t, got, `"message":"line`+"\u2028"+`para`+"\u2029"+` literal \\u2028"`)
}

func TestDecodePaymentHeader_KeepsRawProof(t *testing.T) {
	raw := `{"address":"` + testAddress + `","message":"a` + "\u2028" + `b \ud800","timestamp":1700000000000,` +
		`"amount":"1","txHash":"` + testTxHash + `"}`
	encoded := base64.StdEncoding.EncodeToString([]byte(`{"proof": ` + raw + `, "signature":"0x01"}`))

	header, err := DecodePaymentHeader(encoded)
	require.NoError(t, err)
	assert.Equal(t, raw, string(header.RawProof))
	assert.Equal(t, testTxHash, header.Proof.TxHash)

	messages, err := SignedMessages(header)
	require.NoError(t, err)
	require.Len(t, messages, 2)
	assert.Equal(t, raw, messages[0])
}

func TestSignedMessages_CanonicalOnly(t *testing.T) {
	header := &types.PaymentHeader{Proof: testProof()}

	messages, err := SignedMessages(header)
	require.NoError(t, err)
	require.Len(t, messages, 1)

	canonical, _ := SerializeProof(&header.Proof)
	assert.Equal(t, canonical, messages[0])
}

func TestDecodePaymentHeader_Errors(t *testing.T) {
	encode := func(raw string) string {
		return base64.StdEncoding.EncodeToString([]byte(raw))
	}

	tests := []struct {
		name   string
		header string
		errMsg string
	}{
		{"empty", "   ", "empty"},
		{"oversized", strings.Repeat("A", MaxPaymentHeaderLength+4), "exceeds"},
		{"not base64", "!!!not-base64!!!", "invalid base64"},
		{"not json", encode("hello"), "invalid payment header json"},
		{"missing signature", encode(`{"proof":{"txHash":"` + testTxHash + `","amount":"1","timestamp":1,"message":"m","address":"` + testAddress + `"}}`), "validation failed"},
		{"bad tx hash", encode(`{"proof":{"txHash":"0x12","amount":"1","timestamp":1,"message":"m","address":"` + testAddress + `"},"signature":"0x01"}`), "validation failed"},
		{"negative amount", encode(`{"proof":{"txHash":"` + testTxHash + `","amount":"-1","timestamp":1,"message":"m","address":"` + testAddress + `"},"signature":"0x01"}`), "validation failed"},
		{"bad address", encode(`{"proof":{"txHash":"` + testTxHash + `","amount":"1","timestamp":1,"message":"m","address":"0xnope"},"signature":"0x01"}`), "validation failed"},
		{"zero timestamp", encode(`{"proof":{"txHash":"` + testTxHash + `","amount":"1","timestamp":0,"message":"m","address":"` + testAddress + `"},"signature":"0x01"}`), "validation failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePaymentHeader(tt.header)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestParseGateConfig(t *testing.T) {
	config, err := ParseGateConfig([]byte(`{"paymentAddress":"` + testAddress + `","network":"base-sepolia"}`))
	require.NoError(t, err)

	assert.Equal(t, types.DefaultPricePerQuery, config.PricePerQuery)
	assert.Equal(t, types.DefaultRateLimitMax, config.RateLimitMax)
	assert.Equal(t, types.DefaultFreshnessWindow, config.FreshnessWindow)
	assert.Equal(t, types.NetworkBaseSepolia.DefaultExplorerURL(), config.ExplorerURL)
}

func TestParseGateConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"bad json", `{`},
		{"missing address", `{"network":"base"}`},
		{"bad price", `{"paymentAddress":"` + testAddress + `","pricePerQuery":"0.5"}`},
		{"unknown network", `{"paymentAddress":"` + testAddress + `","network":"solana"}`},
		{"bad log level", `{"paymentAddress":"` + testAddress + `","logLevel":"trace"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseGateConfig([]byte(tt.json))
			require.Error(t, err)

			var gateErr *types.GateError
			require.ErrorAs(t, err, &gateErr)
		})
	}
}

func TestCompactJSON(t *testing.T) {
	got, err := CompactJSON([]byte("{\n  \"a\": 1\n}"))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(got))
}
