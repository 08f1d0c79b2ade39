package x402

import "context"

// Signer is the signing capability the authorization builder consumes.
// Implementations hold (or reach) a key bound to a single address.
type Signer interface {
	// Address returns the 0x-prefixed address the signer is bound to.
	Address() string

	// SignPayment signs the authorization carried by the unsigned payload against
	// the requirements' EIP-712 domain and returns the signed payload as an
	// encoded bundle (base64 JSON), not a raw signature.
	SignPayment(ctx context.Context, requirements *PaymentRequirement, unsigned *PaymentPayload) (string, error)
}
