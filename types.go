package x402

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// PaymentRequirement is the peripheral-declared price contract for one payment.
// It is built once per provisioning cycle from a single 402:// notification and is
// not modified afterwards; a fresh notification replaces it wholesale.
type PaymentRequirement struct {
	// Scheme is the payment scheme identifier (always "exact").
	Scheme string `json:"scheme"`

	// Network is the blockchain network identifier (e.g., "base", "base-sepolia").
	Network string `json:"network"`

	// MaxAmountRequired is the payment amount in the asset's atomic units (USDC micros).
	MaxAmountRequired string `json:"maxAmountRequired"`

	// Asset is the token contract address resolved from the network table.
	Asset string `json:"asset"`

	// PayTo is the recipient address for the payment.
	PayTo string `json:"payTo"`

	// Resource identifies what is being paid for.
	Resource string `json:"resource"`

	// Description is an optional human-readable payment description.
	Description string `json:"description"`

	// MimeType is the content type of the resource.
	MimeType string `json:"mimeType"`

	// MaxTimeoutSeconds is the validity period for the payment authorization.
	MaxTimeoutSeconds int `json:"maxTimeoutSeconds"`

	// Extra carries the asset display name ("name") and EIP-712 domain version ("version").
	Extra map[string]interface{} `json:"extra"`
}

// ExtraString returns a string value from Extra, or "" when absent.
func (r *PaymentRequirement) ExtraString(key string) string {
	if r == nil || r.Extra == nil {
		return ""
	}
	s, _ := r.Extra[key].(string)
	return s
}

// PaymentPayload represents a signed payment that will be sent to the peripheral.
type PaymentPayload struct {
	// X402Version is the protocol version (currently 1).
	X402Version int `json:"x402Version"`

	// Scheme is the payment scheme identifier (e.g., "exact").
	Scheme string `json:"scheme"`

	// Network is the blockchain network identifier.
	Network string `json:"network"`

	// Payload contains the signature and the EIP-3009 authorization.
	Payload EVMPayload `json:"payload"`
}

// EVMPayload represents an EVM payment with EIP-3009 authorization.
type EVMPayload struct {
	// Signature is the hex-encoded ECDSA signature. Empty until signed.
	Signature string `json:"signature,omitempty"`

	// Authorization contains the EIP-3009 transferWithAuthorization parameters.
	Authorization EVMAuthorization `json:"authorization"`
}

// EVMAuthorization represents EIP-3009 transferWithAuthorization parameters.
type EVMAuthorization struct {
	// From is the payer's address.
	From string `json:"from"`

	// To is the recipient's address.
	To string `json:"to"`

	// Value is the payment amount in atomic units.
	Value string `json:"value"`

	// ValidAfter is the unix timestamp after which the authorization is valid.
	ValidAfter string `json:"validAfter"`

	// ValidBefore is the unix timestamp before which the authorization is valid.
	ValidBefore string `json:"validBefore"`

	// Nonce is a unique 32-byte hex string to prevent replay attacks.
	Nonce string `json:"nonce"`
}

// DeviceMetadata is what the peripheral advertised during provisioning.
// Fields fill in as notifications arrive and are never removed for the
// lifetime of one device session.
type DeviceMetadata struct {
	// Logo is an opaque URI or blob reference.
	Logo string `json:"logo,omitempty"`

	// Banner is an opaque URI or blob reference.
	Banner string `json:"banner,omitempty"`

	// Description is free text shown to the user.
	Description string `json:"description,omitempty"`

	// Frequency is the payment cadence in seconds; 0 means one-shot.
	Frequency int `json:"frequency"`

	// Options are the selectable line items in the order the peripheral sent them.
	Options []string `json:"options"`

	// AllowCustomContent permits a free-text context alongside the options.
	AllowCustomContent bool `json:"allowCustomContent"`
}

// Recurring reports whether the device asks for a cadence > 0.
func (m DeviceMetadata) Recurring() bool {
	return m.Frequency > 0
}

// SettlementResult is the peripheral's post-payment verification report.
type SettlementResult struct {
	// Verified indicates whether the peripheral accepted the payment.
	Verified bool `json:"verified"`

	// Transaction is the transaction hash, present only when Verified.
	Transaction string `json:"transaction,omitempty"`

	// Status is the raw trailer the peripheral sent.
	Status string `json:"status"`
}

var microsPerUSD = decimal.New(1, 6)

// FormatUSD renders a USDC micro-unit amount as dollars rounded to cents.
// "1500000" becomes "$1.50" and "2000000" becomes "$2". Unparseable input is
// returned verbatim behind a dollar sign.
func FormatUSD(micros string) string {
	usd, err := MicrosToDecimal(micros)
	if err != nil || !usd.Shift(6).IsInteger() {
		return "$" + micros
	}
	usd = usd.Round(2)
	if usd.IsInteger() {
		return "$" + usd.StringFixed(0)
	}
	return "$" + usd.StringFixed(2)
}

// MicrosToDecimal converts a micro-unit amount string into a USD decimal.
func MicrosToDecimal(micros string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(micros)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrInvalidAmount, micros)
	}
	return amount.Div(microsPerUSD), nil
}
