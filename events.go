package x402

import "time"

// PaymentEventType represents the type of payment event.
type PaymentEventType string

const (
	// PaymentEventAttempt indicates an authorization was transmitted.
	PaymentEventAttempt PaymentEventType = "attempt"

	// PaymentEventSuccess indicates the peripheral reported a verified settlement.
	PaymentEventSuccess PaymentEventType = "success"

	// PaymentEventFailure indicates the attempt failed to build, transmit or settle.
	PaymentEventFailure PaymentEventType = "failure"

	// PaymentEventWarning indicates a recurring attempt failed while the cadence
	// keeps running.
	PaymentEventWarning PaymentEventType = "warning"
)

// PaymentEvent describes one step of a payment attempt.
type PaymentEvent struct {
	Type        PaymentEventType
	Timestamp   time.Time
	AttemptID   string
	Recurring   bool
	Network     string
	Amount      string
	Asset       string
	Recipient   string
	Payer       string
	Transaction string
	Error       error
	Duration    time.Duration
}

// PaymentCallback receives payment events.
type PaymentCallback func(PaymentEvent)
