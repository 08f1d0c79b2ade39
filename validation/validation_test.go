package validation

import (
	"strings"
	"testing"

	"github.com/x4pay/x402-ble-go"
)

func TestValidateAmount(t *testing.T) {
	tests := []struct {
		name    string
		amount  string
		wantErr bool
	}{
		{"valid", "1000000", false},
		{"large", "999999999999999999999999", false},
		{"empty", "", true},
		{"zero", "0", true},
		{"negative", "-1", true},
		{"decimal", "1.5", true},
		{"hex", "0x10", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateAmount(tt.amount); (err != nil) != tt.wantErr {
				t.Errorf("ValidateAmount(%q) error = %v, wantErr %v", tt.amount, err, tt.wantErr)
			}
		})
	}
}

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		name    string
		address string
		wantErr bool
	}{
		{"checksummed", "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", false},
		{"lowercase", "0x2222222222222222222222222222222222222222", false},
		{"empty", "", true},
		{"no prefix", "f39Fd6e51aad88F6F4ce6aB8827279cffFb92266", true},
		{"short", "0x1234", true},
		{"solana", "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateAddress(tt.address); (err != nil) != tt.wantErr {
				t.Errorf("ValidateAddress(%q) error = %v, wantErr %v", tt.address, err, tt.wantErr)
			}
		})
	}
}

func validRequirement(t *testing.T) x402.PaymentRequirement {
	t.Helper()
	req, err := x402.NewPaymentRequirement("base-sepolia", "0x2222222222222222222222222222222222222222", "10000")
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func TestValidatePaymentRequirement(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*x402.PaymentRequirement)
		wantErr string
	}{
		{"valid", func(*x402.PaymentRequirement) {}, ""},
		{"scheme", func(r *x402.PaymentRequirement) { r.Scheme = "upto" }, "unsupported scheme"},
		{"network", func(r *x402.PaymentRequirement) { r.Network = "solana" }, "unsupported network"},
		{"amount", func(r *x402.PaymentRequirement) { r.MaxAmountRequired = "0" }, "greater than 0"},
		{"payTo", func(r *x402.PaymentRequirement) { r.PayTo = "merchant" }, "payTo"},
		{"asset", func(r *x402.PaymentRequirement) { r.Asset = x402.BaseMainnet.USDCAddress }, "not USDC"},
		{"timeout", func(r *x402.PaymentRequirement) { r.MaxTimeoutSeconds = -1 }, "negative"},
		{"extra", func(r *x402.PaymentRequirement) { r.Extra = nil }, "EIP-3009"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequirement(t)
			tt.mutate(&req)
			err := ValidatePaymentRequirement(req)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func validPayload() x402.PaymentPayload {
	return x402.PaymentPayload{
		X402Version: 1,
		Scheme:      "exact",
		Network:     "base-sepolia",
		Payload: x402.EVMPayload{
			Signature: "0x" + strings.Repeat("ab", 65),
			Authorization: x402.EVMAuthorization{
				From:        "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266",
				To:          "0x2222222222222222222222222222222222222222",
				Value:       "10000",
				ValidAfter:  "1699999400",
				ValidBefore: "1700000300",
				Nonce:       "0x" + strings.Repeat("01", 32),
			},
		},
	}
}

func TestValidatePaymentPayload(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*x402.PaymentPayload)
		wantErr string
	}{
		{"valid", func(*x402.PaymentPayload) {}, ""},
		{"version", func(p *x402.PaymentPayload) { p.X402Version = 2 }, "version"},
		{"scheme", func(p *x402.PaymentPayload) { p.Scheme = "" }, "scheme"},
		{"network", func(p *x402.PaymentPayload) { p.Network = "unknown-chain" }, "network"},
		{"unsigned", func(p *x402.PaymentPayload) { p.Payload.Signature = "" }, "signature"},
		{"from", func(p *x402.PaymentPayload) { p.Payload.Authorization.From = "0x12" }, "from"},
		{"to", func(p *x402.PaymentPayload) { p.Payload.Authorization.To = "" }, "to"},
		{"value", func(p *x402.PaymentPayload) { p.Payload.Authorization.Value = "abc" }, "value"},
		{"nonce", func(p *x402.PaymentPayload) { p.Payload.Authorization.Nonce = "0x01" }, "nonce"},
		{"validAfter", func(p *x402.PaymentPayload) { p.Payload.Authorization.ValidAfter = "soon" }, "validAfter"},
		{"window", func(p *x402.PaymentPayload) { p.Payload.Authorization.ValidBefore = "1699999400" }, "must be after"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validPayload()
			tt.mutate(&p)
			err := ValidatePaymentPayload(p)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
