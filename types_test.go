package x402

import (
	"encoding/json"
	"testing"
)

func TestFormatUSD(t *testing.T) {
	tests := []struct {
		micros string
		want   string
	}{
		{"1000000", "$1"},
		{"1500000", "$1.50"},
		{"10000", "$0.01"},
		{"4999", "$0"},
		{"5000", "$0.01"},
		{"1995000", "$2"},
		{"0", "$0"},
		{"abc", "$abc"},
		{"1.5", "$1.5"},
	}

	for _, tt := range tests {
		t.Run(tt.micros, func(t *testing.T) {
			if got := FormatUSD(tt.micros); got != tt.want {
				t.Errorf("FormatUSD(%q) = %q, want %q", tt.micros, got, tt.want)
			}
		})
	}
}

func TestMicrosToDecimal(t *testing.T) {
	d, err := MicrosToDecimal("2500000")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.String() != "2.5" {
		t.Errorf("MicrosToDecimal = %s, want 2.5", d.String())
	}
	if _, err := MicrosToDecimal("x"); err == nil {
		t.Error("expected error for invalid amount")
	}
}

func TestPaymentPayload_JSONShape(t *testing.T) {
	payload := PaymentPayload{
		X402Version: 1,
		Scheme:      "exact",
		Network:     "base",
		Payload: EVMPayload{
			Authorization: EVMAuthorization{
				From:        "0x1111111111111111111111111111111111111111",
				To:          "0x2222222222222222222222222222222222222222",
				Value:       "1000000",
				ValidAfter:  "100",
				ValidBefore: "400",
				Nonce:       "0x01",
			},
		},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	inner := raw["payload"].(map[string]interface{})
	if _, ok := inner["signature"]; ok {
		t.Error("unsigned payload should omit signature")
	}
	auth := inner["authorization"].(map[string]interface{})
	for _, key := range []string{"from", "to", "value", "validAfter", "validBefore", "nonce"} {
		if _, ok := auth[key]; !ok {
			t.Errorf("authorization missing %q", key)
		}
	}
}

func TestDeviceMetadata_Recurring(t *testing.T) {
	if (DeviceMetadata{}).Recurring() {
		t.Error("zero frequency should be one-shot")
	}
	if !(DeviceMetadata{Frequency: 30}).Recurring() {
		t.Error("frequency 30 should be recurring")
	}
}
