// Package evm implements the signing capability with a local secp256k1 key:
// EIP-3009 transferWithAuthorization signed as EIP-712 typed data.
package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/x4pay/x402-ble-go"
	"github.com/x4pay/x402-ble-go/encoding"
)

// Signer implements x402.Signer with an in-memory private key.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// SignerOption configures a Signer.
type SignerOption func(*Signer) error

// NewSigner creates a new EVM signer with the given options.
func NewSigner(opts ...SignerOption) (*Signer, error) {
	s := &Signer{}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if s.privateKey == nil {
		return nil, x402.ErrInvalidKey
	}

	s.address = crypto.PubkeyToAddress(s.privateKey.PublicKey)
	return s, nil
}

// WithPrivateKey sets the private key from a hex string.
func WithPrivateKey(hexKey string) SignerOption {
	return func(s *Signer) error {
		hexKey = strings.TrimPrefix(hexKey, "0x")

		privateKey, err := crypto.HexToECDSA(hexKey)
		if err != nil {
			return x402.ErrInvalidKey
		}

		s.privateKey = privateKey
		return nil
	}
}

// WithKey uses an already decrypted key, typically handed out by key custody.
func WithKey(key *ecdsa.PrivateKey) SignerOption {
	return func(s *Signer) error {
		if key == nil || key.D == nil {
			return x402.ErrInvalidKey
		}
		s.privateKey = key
		return nil
	}
}

// Address implements x402.Signer.
func (s *Signer) Address() string {
	return s.address.Hex()
}

// SignPayment implements x402.Signer. It signs the unsigned payload's
// authorization and returns the signed payload as a base64 JSON bundle.
func (s *Signer) SignPayment(ctx context.Context, requirements *x402.PaymentRequirement, unsigned *x402.PaymentPayload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if requirements == nil || unsigned == nil {
		return "", fmt.Errorf("%w: nothing to sign", x402.ErrSigningFailed)
	}
	if unsigned.Network != requirements.Network {
		return "", fmt.Errorf("%w: payload network %q does not match requirements %q",
			x402.ErrSigningFailed, unsigned.Network, requirements.Network)
	}

	auth, err := ParseAuthorization(unsigned.Payload.Authorization)
	if err != nil {
		return "", fmt.Errorf("%w: %v", x402.ErrSigningFailed, err)
	}
	if auth.From != s.address {
		return "", fmt.Errorf("%w: authorization from %s is not the signer %s",
			x402.ErrSigningFailed, auth.From.Hex(), s.address.Hex())
	}

	domain, err := DomainFor(requirements)
	if err != nil {
		return "", err
	}

	signature, err := SignTransferAuthorization(s.privateKey, domain, auth)
	if err != nil {
		return "", err
	}

	signed := *unsigned
	signed.Payload.Signature = signature

	return encoding.EncodePayment(signed)
}
