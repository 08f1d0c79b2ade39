package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/x4pay/x402-ble-go"
)

// Attempt is one payment attempt. Wait resolves once the peripheral reports
// settlement, the attempt fails, or the session closes.
type Attempt struct {
	ID        string
	Recurring bool
	Started   time.Time

	mu      sync.Mutex
	payload *x402.PaymentPayload
	req     *x402.PaymentRequirement
	timer   *time.Timer

	once   sync.Once
	done   chan struct{}
	result *x402.SettlementResult
	err    error
}

func newAttempt(recurring bool) *Attempt {
	return &Attempt{
		ID:        uuid.NewString(),
		Recurring: recurring,
		Started:   time.Now(),
		done:      make(chan struct{}),
	}
}

// Wait blocks until the attempt resolves or ctx ends. A settlement with
// VERIFIED:false returns the result together with x402.ErrSettlementRejected.
func (a *Attempt) Wait(ctx context.Context) (*x402.SettlementResult, error) {
	select {
	case <-a.done:
		return a.result, a.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done is closed when the attempt resolves.
func (a *Attempt) Done() <-chan struct{} {
	return a.done
}

// Payload returns the signed payload once built, or nil.
func (a *Attempt) Payload() *x402.PaymentPayload {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.payload
}

func (a *Attempt) setBuilt(req *x402.PaymentRequirement, payload x402.PaymentPayload) {
	a.mu.Lock()
	a.req = req
	a.payload = &payload
	a.mu.Unlock()
}

func (a *Attempt) requirement() *x402.PaymentRequirement {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.req
}

func (a *Attempt) armTimeout(d time.Duration, fn func()) {
	if d <= 0 {
		return
	}
	a.mu.Lock()
	a.timer = time.AfterFunc(d, fn)
	a.mu.Unlock()
}

func (a *Attempt) resolve(result *x402.SettlementResult, err error) {
	a.once.Do(func() {
		a.mu.Lock()
		if a.timer != nil {
			a.timer.Stop()
		}
		a.mu.Unlock()

		a.result = result
		a.err = err
		close(a.done)
	})
}
