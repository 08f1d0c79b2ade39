package channel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/x4pay/x402-ble-go"
	"github.com/x4pay/x402-ble-go/frame"
	"github.com/x4pay/x402-ble-go/retry"
)

const (
	// DefaultFragmentDelay separates consecutive fragment writes.
	DefaultFragmentDelay = time.Second

	// DefaultCommandDelay separates consecutive metadata commands.
	DefaultCommandDelay = 100 * time.Millisecond
)

// Outbox is the single outbound queue of a channel. Each Send or
// SendCommand holds the queue for the whole message, so fragments of two
// messages never interleave.
type Outbox struct {
	ch            Channel
	chunkSize     int
	fragmentDelay time.Duration
	retry         retry.Policy
	logger        zerolog.Logger

	// Capacity-one semaphore; acquisition honours context cancellation.
	turn chan struct{}
}

// OutboxOption configures an Outbox.
type OutboxOption func(*Outbox)

// WithChunkSize sets the maximum fragment body size in bytes.
func WithChunkSize(size int) OutboxOption {
	return func(o *Outbox) {
		o.chunkSize = size
	}
}

// WithFragmentDelay sets the pause between fragment writes.
func WithFragmentDelay(d time.Duration) OutboxOption {
	return func(o *Outbox) {
		o.fragmentDelay = d
	}
}

// WithRetry sets how often a write failing with ErrBusy is retried. The
// default is a single attempt.
func WithRetry(p retry.Policy) OutboxOption {
	return func(o *Outbox) {
		o.retry = p
	}
}

// WithLogger sets the outbox logger.
func WithLogger(logger zerolog.Logger) OutboxOption {
	return func(o *Outbox) {
		o.logger = logger
	}
}

// NewOutbox wraps ch with a serialized writer.
func NewOutbox(ch Channel, opts ...OutboxOption) *Outbox {
	o := &Outbox{
		ch:            ch,
		chunkSize:     frame.DefaultChunkSize,
		fragmentDelay: DefaultFragmentDelay,
		retry:         retry.NoRetry,
		logger:        zerolog.Nop(),
		turn:          make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Channel returns the underlying channel.
func (o *Outbox) Channel() Channel {
	return o.ch
}

// Send frames payload under tag and writes the fragments in order with the
// fragment delay between them. Cancelling ctx stops before the next fragment;
// the peer discards the unterminated message.
func (o *Outbox) Send(ctx context.Context, tag frame.Tag, payload string) error {
	fragments, err := frame.EncodeBytes(tag, payload, o.chunkSize)
	if err != nil {
		return err
	}

	if err := o.acquire(ctx); err != nil {
		return writeFailed(tag.Name, 0, err)
	}
	defer o.release()

	start := time.Now()
	for i, data := range fragments {
		if i > 0 {
			if err := sleep(ctx, o.fragmentDelay); err != nil {
				o.logger.Warn().Str("tag", tag.Name).Int("sent", i).Int("total", len(fragments)).Msg("transmission cancelled")
				return writeFailed(tag.Name, i, err)
			}
		}
		if err := o.write(ctx, data); err != nil {
			o.logger.Error().Err(err).Str("tag", tag.Name).Int("fragment", i).Int("total", len(fragments)).Msg("fragment write failed")
			return writeFailed(tag.Name, i, err)
		}
	}

	o.logger.Debug().
		Str("tag", tag.Name).
		Int("fragments", len(fragments)).
		Int("bytes", len(payload)).
		Dur("took", time.Since(start)).
		Msg("message sent")
	return nil
}

// SendCommand writes a short unframed command such as "[LOGO]".
func (o *Outbox) SendCommand(ctx context.Context, command string) error {
	if err := o.acquire(ctx); err != nil {
		return writeFailed(command, 0, err)
	}
	defer o.release()

	if err := o.write(ctx, []byte(command)); err != nil {
		o.logger.Error().Err(err).Str("command", command).Msg("command write failed")
		return writeFailed(command, 0, err)
	}
	o.logger.Debug().Str("command", command).Msg("command sent")
	return nil
}

// SendCommands writes each command in order with delay between them.
func (o *Outbox) SendCommands(ctx context.Context, delay time.Duration, commands ...string) error {
	for i, command := range commands {
		if i > 0 {
			if err := sleep(ctx, delay); err != nil {
				return writeFailed(command, 0, err)
			}
		}
		if err := o.SendCommand(ctx, command); err != nil {
			return err
		}
	}
	return nil
}

func (o *Outbox) write(ctx context.Context, data []byte) error {
	return retry.Do(ctx, o.retry, isBusy, func() error {
		err := o.ch.Write(ctx, data)
		if isBusy(err) {
			o.logger.Debug().Int("bytes", len(data)).Msg("link busy, retrying write")
		}
		return err
	})
}

func isBusy(err error) bool {
	return errors.Is(err, ErrBusy)
}

func (o *Outbox) acquire(ctx context.Context) error {
	select {
	case o.turn <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Outbox) release() {
	<-o.turn
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func writeFailed(what string, fragment int, err error) *x402.PaymentError {
	return x402.NewPaymentError(x402.ErrCodeChannelWriteFailed, fmt.Sprintf("sending %s", what), err).
		WithDetails("fragment", fragment)
}
