// Package channel defines the byte-channel abstraction the payment engine
// talks through and the single outbound queue that keeps messages whole.
package channel

import (
	"context"
	"errors"
)

// Channel is a bidirectional, MTU-limited byte channel to one peripheral.
// Implementations wrap a BLE UART characteristic pair or, in tests, memory.
type Channel interface {
	// Write sends one fragment. It must not be called concurrently; Outbox
	// serializes all writes.
	Write(ctx context.Context, data []byte) error

	// OnNotify registers the callback for inbound notifications. The callback
	// runs on the channel's goroutine and must not block.
	OnNotify(callback func([]byte))

	// Disconnect tears the channel down. Safe to call more than once.
	Disconnect() error
}

// ErrBusy reports a write the link could not accept right now. The outbox
// retries it before giving up.
var ErrBusy = errors.New("channel: link busy")

// Nordic UART Service identifiers the peripherals expose.
const (
	ServiceUUID = "6e400001-b5a3-f393-e0a9-e50e24dcca9e"
	RxCharUUID  = "6e400002-b5a3-f393-e0a9-e50e24dcca9e"
	TxCharUUID  = "6e400003-b5a3-f393-e0a9-e50e24dcca9e"
)
