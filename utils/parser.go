package utils

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/vitwit/paygate/types"
)

// MaxPaymentHeaderLength bounds the encoded X-PAYMENT header.
const MaxPaymentHeaderLength = 8 << 10

var validate *validator.Validate

func init() {
	validate = validator.New()

	// Register custom validators
	validate.RegisterValidation("txhash", validateTxHashTag)
	validate.RegisterValidation("uint256", validateUint256Tag)
}

// Validator returns the shared struct validator with the custom tags registered.
func Validator() *validator.Validate {
	return validate
}

// DecodePaymentHeader decodes and validates a base64 JSON payment header.
func DecodePaymentHeader(encoded string) (*types.PaymentHeader, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, fmt.Errorf("payment header is empty")
	}

	if len(encoded) > MaxPaymentHeaderLength {
		return nil, fmt.Errorf("payment header exceeds %d bytes", MaxPaymentHeaderLength)
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid base64: %w", err)
	}

	var envelope struct {
		Proof     json.RawMessage `json:"proof"`
		Signature string          `json:"signature"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("invalid payment header json: %w", err)
	}

	header := types.PaymentHeader{Signature: envelope.Signature}
	if err := json.Unmarshal(envelope.Proof, &header.Proof); err != nil {
		return nil, fmt.Errorf("invalid payment proof json: %w", err)
	}

	header.RawProof, err = CompactJSON(envelope.Proof)
	if err != nil {
		return nil, fmt.Errorf("invalid payment proof json: %w", err)
	}

	if err := validate.Struct(&header); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	return &header, nil
}

// EncodePaymentHeader produces the X-PAYMENT value for a signed proof.
func EncodePaymentHeader(header *types.PaymentHeader) (string, error) {
	data, err := marshalNoEscape(header)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// SerializeProof returns the exact bytes that the payer signs: compact JSON in
// declaration order without HTML escaping, the same as JSON.stringify.
func SerializeProof(proof *types.PaymentProof) (string, error) {
	data, err := marshalNoEscape(proof)
	if err != nil {
		return "", fmt.Errorf("failed to serialize proof: %w", err)
	}
	return string(data), nil
}

// SignedMessages returns the candidate payloads a header's signature may
// cover: the proof bytes as sent, then the canonical serialization when it
// differs.
func SignedMessages(header *types.PaymentHeader) ([]string, error) {
	canonical, err := SerializeProof(&header.Proof)
	if err != nil {
		return nil, err
	}

	if len(header.RawProof) == 0 || string(header.RawProof) == canonical {
		return []string{canonical}, nil
	}
	return []string{string(header.RawProof), canonical}, nil
}

// ParseGateConfig parses and validates GateConfig from JSON. Defaults are
// applied before validation.
func ParseGateConfig(data []byte) (*types.GateConfig, error) {
	var config types.GateConfig

	if err := json.Unmarshal(data, &config); err != nil {
		return nil, &types.GateError{
			Code:    types.ErrConfigError,
			Message: fmt.Sprintf("failed to parse gate config: %v", err),
		}
	}

	if err := ValidateGateConfig(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

// ValidateGateConfig applies defaults and validates the configuration.
func ValidateGateConfig(config *types.GateConfig) error {
	config.ApplyDefaults()

	if err := validate.Struct(config); err != nil {
		return &types.GateError{
			Code:    types.ErrConfigError,
			Message: fmt.Sprintf("validation failed: %v", err),
		}
	}

	return config.Validate()
}

// CompactJSON removes whitespace from JSON
func CompactJSON(data []byte) ([]byte, error) {
	var buffer bytes.Buffer
	if err := json.Compact(&buffer, data); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return unescapeLineSeparators(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

// unescapeLineSeparators turns the \u2028 and \u2029 escapes encoding/json
// always emits back into raw runes, as JSON.stringify leaves them. Escaped
// backslashes are skipped so a literal "\\u2028" in a string is kept.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}

	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] != '\\' || i+1 >= len(data) {
			out = append(out, data[i])
			continue
		}
		if i+5 < len(data) && data[i+1] == 'u' {
			switch string(data[i+2 : i+6]) {
			case "2028":
				out = append(out, "\u2028"...)
				i += 5
				continue
			case "2029":
				out = append(out, "\u2029"...)
				i += 5
				continue
			}
		}
		out = append(out, data[i], data[i+1])
		i++
	}
	return out
}

func validateTxHashTag(fl validator.FieldLevel) bool {
	return ValidateTransactionHash(fl.Field().String()) == nil
}

func validateUint256Tag(fl validator.FieldLevel) bool {
	_, err := ValidateBigInt(fl.Field().String())
	return err == nil
}
