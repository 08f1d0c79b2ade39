package encoding

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/x4pay/x402-ble-go"
)

func testPayment() x402.PaymentPayload {
	return x402.PaymentPayload{
		X402Version: 1,
		Scheme:      "exact",
		Network:     "base-sepolia",
		Payload: x402.EVMPayload{
			Signature: "0xdeadbeef",
			Authorization: x402.EVMAuthorization{
				From:        "0x1111111111111111111111111111111111111111",
				To:          "0x2222222222222222222222222222222222222222",
				Value:       "1000000",
				ValidAfter:  "1700000000",
				ValidBefore: "1700000900",
				Nonce:       "0x" + strings.Repeat("ab", 32),
			},
		},
	}
}

func TestEncodePayment(t *testing.T) {
	encoded, err := EncodePayment(testPayment())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("encoded value is not valid base64: %v", err)
	}

	var payment x402.PaymentPayload
	if err := json.Unmarshal(decoded, &payment); err != nil {
		t.Fatalf("decoded value is not valid JSON: %v", err)
	}
	if payment.Payload.Signature != "0xdeadbeef" {
		t.Errorf("signature mismatch: got %s", payment.Payload.Signature)
	}
}

func TestDecodePayment(t *testing.T) {
	valid, _ := EncodePayment(testPayment())
	raw := strings.TrimRight(valid, "=")

	tests := []struct {
		name    string
		encoded string
		wantErr bool
	}{
		{"valid", valid, false},
		{"unpadded", raw, false},
		{"surrounding whitespace", "  " + valid + "\n", false},
		{"empty", "", true},
		{"not base64", "!!!not-base64!!!", true},
		{"base64 but not json", base64.StdEncoding.EncodeToString([]byte("hello")), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payment, err := DecodePayment(tt.encoded)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error but got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if payment.Payload.Authorization.Value != "1000000" {
				t.Errorf("value = %s, want 1000000", payment.Payload.Authorization.Value)
			}
		})
	}
}

func TestMarshalPayment(t *testing.T) {
	text, err := MarshalPayment(testPayment())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(text, "\n") {
		t.Error("payment JSON should be compact")
	}

	back, err := UnmarshalPayment(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if back != testPayment() {
		t.Errorf("UnmarshalPayment mismatch: got %+v", back)
	}
}
