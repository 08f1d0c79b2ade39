// Package validation checks requirements and signed payloads against the
// shapes the peripherals accept.
package validation

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/x4pay/x402-ble-go"
)

var (
	evmAddressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	nonceRegex      = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)
	signatureRegex  = regexp.MustCompile(`^0x[a-fA-F0-9]{130}$`)
)

// ValidateAmount requires a positive base-10 integer.
func ValidateAmount(amount string) error {
	if amount == "" {
		return fmt.Errorf("amount cannot be empty")
	}
	amt, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return fmt.Errorf("invalid amount format: %s", amount)
	}
	if amt.Sign() <= 0 {
		return fmt.Errorf("amount must be greater than 0, got: %s", amount)
	}
	return nil
}

// ValidateAddress requires a 0x-prefixed 20-byte hex address.
func ValidateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if !evmAddressRegex.MatchString(address) {
		return fmt.Errorf("invalid EVM address format: %s (expected 0x followed by 40 hex characters)", address)
	}
	return nil
}

// ValidatePaymentRequirement checks a requirement built from a 402://
// notification before it is signed against.
func ValidatePaymentRequirement(req x402.PaymentRequirement) error {
	if req.Scheme != x402.SchemeExact {
		return fmt.Errorf("invalid requirement: unsupported scheme %q", req.Scheme)
	}
	chain, err := x402.LookupChain(req.Network)
	if err != nil {
		return fmt.Errorf("invalid requirement: %w", err)
	}
	if err := ValidateAmount(req.MaxAmountRequired); err != nil {
		return fmt.Errorf("invalid requirement: %w", err)
	}
	if err := ValidateAddress(req.PayTo); err != nil {
		return fmt.Errorf("invalid requirement: payTo %w", err)
	}
	if !strings.EqualFold(req.Asset, chain.USDCAddress) {
		return fmt.Errorf("invalid requirement: asset %s is not USDC on %s", req.Asset, req.Network)
	}
	if req.MaxTimeoutSeconds < 0 {
		return fmt.Errorf("invalid requirement: timeout cannot be negative: %d", req.MaxTimeoutSeconds)
	}
	if req.ExtraString("name") == "" || req.ExtraString("version") == "" {
		return fmt.Errorf("invalid requirement: EIP-3009 name and version are required")
	}
	return nil
}

// ValidatePaymentPayload checks the structure of a signed payload. It does
// not verify the signature.
func ValidatePaymentPayload(payment x402.PaymentPayload) error {
	if payment.X402Version != 1 {
		return fmt.Errorf("unsupported x402 version: %d", payment.X402Version)
	}
	if payment.Scheme != x402.SchemeExact {
		return fmt.Errorf("unsupported scheme: %q", payment.Scheme)
	}
	if _, err := x402.LookupChain(payment.Network); err != nil {
		return fmt.Errorf("invalid network: %w", err)
	}

	if !signatureRegex.MatchString(payment.Payload.Signature) {
		return fmt.Errorf("signature must be 65 hex-encoded bytes")
	}

	auth := payment.Payload.Authorization
	if err := ValidateAddress(auth.From); err != nil {
		return fmt.Errorf("from: %w", err)
	}
	if err := ValidateAddress(auth.To); err != nil {
		return fmt.Errorf("to: %w", err)
	}
	if err := ValidateAmount(auth.Value); err != nil {
		return fmt.Errorf("value: %w", err)
	}
	if !nonceRegex.MatchString(auth.Nonce) {
		return fmt.Errorf("nonce must be 32 hex-encoded bytes")
	}

	after, ok := new(big.Int).SetString(auth.ValidAfter, 10)
	if !ok {
		return fmt.Errorf("invalid validAfter: %q", auth.ValidAfter)
	}
	before, ok := new(big.Int).SetString(auth.ValidBefore, 10)
	if !ok {
		return fmt.Errorf("invalid validBefore: %q", auth.ValidBefore)
	}
	if before.Cmp(after) <= 0 {
		return fmt.Errorf("validBefore %s must be after validAfter %s", before, after)
	}
	return nil
}
