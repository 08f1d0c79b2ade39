// Package encoding provides the base64+JSON codec for signed payment bundles.
// The signing capability hands back this encoded container rather than a raw
// signature, and the authorization builder decodes it.
package encoding

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/x4pay/x402-ble-go"
)

// EncodePayment converts a PaymentPayload to a base64-encoded JSON string.
//
// Returns an error if JSON marshaling fails.
func EncodePayment(payment x402.PaymentPayload) (string, error) {
	paymentJSON, err := json.Marshal(payment)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment: %w", err)
	}
	return base64.StdEncoding.EncodeToString(paymentJSON), nil
}

// DecodePayment converts a base64-encoded JSON string to PaymentPayload.
// Surrounding whitespace is ignored; unpadded input is accepted because some
// signers strip the padding.
//
// Returns an error if base64 decoding or JSON unmarshaling fails.
func DecodePayment(encoded string) (x402.PaymentPayload, error) {
	var payment x402.PaymentPayload

	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return payment, fmt.Errorf("failed to decode base64: empty bundle")
	}

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		var rawErr error
		decoded, rawErr = base64.RawStdEncoding.DecodeString(encoded)
		if rawErr != nil {
			return payment, fmt.Errorf("failed to decode base64: %w", err)
		}
	}

	if err := json.Unmarshal(decoded, &payment); err != nil {
		return payment, fmt.Errorf("failed to unmarshal payment: %w", err)
	}

	return payment, nil
}

// MarshalPayment renders the payload as the compact JSON text carried inside
// an X-PAYMENT message.
func MarshalPayment(payment x402.PaymentPayload) (string, error) {
	paymentJSON, err := json.Marshal(payment)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payment: %w", err)
	}
	return string(paymentJSON), nil
}

// UnmarshalPayment parses the JSON text produced by MarshalPayment.
func UnmarshalPayment(text string) (x402.PaymentPayload, error) {
	var payment x402.PaymentPayload
	if err := json.Unmarshal([]byte(text), &payment); err != nil {
		return payment, fmt.Errorf("failed to unmarshal payment: %w", err)
	}
	return payment, nil
}
