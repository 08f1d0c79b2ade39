package x402

import (
	"errors"
	"fmt"
)

// Standard error definitions

var (
	// ErrUnsupportedNetwork indicates a network missing from the static network table.
	ErrUnsupportedNetwork = errors.New("x402: unsupported network")

	// ErrSigningFailed indicates the signing capability rejected the request or
	// returned a malformed bundle.
	ErrSigningFailed = errors.New("x402: payment signing failed")

	// ErrPaymentBuildFailed indicates the authorization could not be built.
	ErrPaymentBuildFailed = errors.New("x402: payment build failed")

	// ErrAuthFailed indicates a wrong PIN or a key that could not be decrypted.
	ErrAuthFailed = errors.New("x402: wallet authentication failed")

	// ErrChannelWriteFailed indicates a transport-level send error.
	ErrChannelWriteFailed = errors.New("x402: channel write failed")

	// ErrChannelClosed indicates the byte channel was disconnected.
	ErrChannelClosed = errors.New("x402: channel closed")

	// ErrMalformedNotification indicates unparseable content behind a recognized prefix.
	ErrMalformedNotification = errors.New("x402: malformed notification")

	// ErrInvalidChunkSize indicates a non-positive fragment size.
	ErrInvalidChunkSize = errors.New("x402: chunk size must be positive")

	// ErrNoRequirements indicates no payment requirements are known yet.
	ErrNoRequirements = errors.New("x402: payment requirements unknown")

	// ErrAttemptInFlight indicates a payment attempt is already transmitting or
	// awaiting settlement.
	ErrAttemptInFlight = errors.New("x402: payment attempt already in flight")

	// ErrEscrowNotFound indicates the escrow session id is unknown or erased.
	ErrEscrowNotFound = errors.New("x402: escrowed key not found")

	// ErrInvalidAmount indicates an invalid payment amount.
	ErrInvalidAmount = errors.New("x402: invalid amount")

	// ErrInvalidKey indicates an invalid private key.
	ErrInvalidKey = errors.New("x402: invalid private key")

	// ErrInvalidKeystore indicates an unreadable or undecryptable keystore file.
	ErrInvalidKeystore = errors.New("x402: invalid keystore file")

	// ErrInvalidMnemonic indicates an invalid mnemonic phrase.
	ErrInvalidMnemonic = errors.New("x402: invalid mnemonic phrase")

	// ErrSessionClosed indicates the session was closed.
	ErrSessionClosed = errors.New("x402: session closed")

	// ErrSettlementRejected indicates the peripheral reported VERIFIED:false.
	ErrSettlementRejected = errors.New("x402: payment not verified by peripheral")

	// ErrSettlementTimeout indicates no settlement arrived in time.
	ErrSettlementTimeout = errors.New("x402: settlement timed out")

	// ErrRecurringActive indicates recurring payments are armed and must be
	// cancelled before a manual payment.
	ErrRecurringActive = errors.New("x402: recurring payments active")
)

// ErrorCode identifies the category of a PaymentError.
type ErrorCode string

const (
	ErrCodeUnsupportedNetwork    ErrorCode = "UNSUPPORTED_NETWORK"
	ErrCodeSigningFailed         ErrorCode = "SIGNING_FAILED"
	ErrCodePaymentBuildFailed    ErrorCode = "PAYMENT_BUILD_FAILED"
	ErrCodeAuthFailed            ErrorCode = "AUTH_FAILED"
	ErrCodeChannelWriteFailed    ErrorCode = "CHANNEL_WRITE_FAILED"
	ErrCodeMalformedNotification ErrorCode = "MALFORMED_NOTIFICATION"
)

// PaymentError carries an error code, a message, the underlying cause and
// optional structured details.
type PaymentError struct {
	Code    ErrorCode
	Message string
	Err     error
	Details map[string]interface{}
}

// NewPaymentError creates a PaymentError.
func NewPaymentError(code ErrorCode, message string, err error) *PaymentError {
	return &PaymentError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

func (e *PaymentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PaymentError) Unwrap() error {
	return e.Err
}

var codeSentinels = map[ErrorCode]error{
	ErrCodeUnsupportedNetwork:    ErrUnsupportedNetwork,
	ErrCodeSigningFailed:         ErrSigningFailed,
	ErrCodePaymentBuildFailed:    ErrPaymentBuildFailed,
	ErrCodeAuthFailed:            ErrAuthFailed,
	ErrCodeChannelWriteFailed:    ErrChannelWriteFailed,
	ErrCodeMalformedNotification: ErrMalformedNotification,
}

// Is matches the sentinel that corresponds to the error's code, so
// errors.Is(err, ErrPaymentBuildFailed) holds for a build failure whatever its cause.
func (e *PaymentError) Is(target error) bool {
	sentinel, ok := codeSentinels[e.Code]
	return ok && sentinel == target
}

// WithDetails attaches a detail and returns the same error for chaining.
func (e *PaymentError) WithDetails(key string, value interface{}) *PaymentError {
	e.Details[key] = value
	return e
}

// CodeOf returns the code of the outermost PaymentError in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}
