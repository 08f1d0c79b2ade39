// Package recurring drives unattended payments on a device-reported cadence
// using a key held in escrow.
package recurring

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/x4pay/x402-ble-go/custody"
)

// DefaultInterval is the countdown step.
const DefaultInterval = time.Second

// ErrInvalidCadence is returned for a cadence below one second.
var ErrInvalidCadence = errors.New("recurring: cadence must be positive")

// ErrInvalidInterval is returned for a non-positive countdown step.
var ErrInvalidInterval = errors.New("recurring: interval must be positive")

// Trigger runs one payment attempt to completion (transmitted and settled)
// with the escrowed key. A non-nil error means the attempt failed.
type Trigger func(ctx context.Context, escrowID string) error

// Scheduler counts down from the cadence once per interval. On the tick that
// would wrap the counter from 1 back to the cadence it fires one attempt and
// resets; it never waits for that attempt. At most one attempt is in flight:
// a trigger that finds one running is dropped, not queued.
type Scheduler struct {
	cadence  int
	escrow   *custody.Escrow
	escrowID string
	trigger  Trigger
	interval time.Duration
	logger   zerolog.Logger

	onWarning func(error)
	onTick    func(countdown int)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	countdown  int
	inFlight   bool
	started    bool
	cancelled  bool
	attempts   int
	suppressed int
	failures   int
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval sets the countdown step used by Start.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		s.interval = d
	}
}

// WithLogger sets the scheduler logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithWarningHandler receives the error of each failed attempt. The
// scheduler keeps running after a failure.
func WithWarningHandler(fn func(error)) Option {
	return func(s *Scheduler) {
		s.onWarning = fn
	}
}

// WithTickHandler receives the visible countdown after every tick.
func WithTickHandler(fn func(countdown int)) Option {
	return func(s *Scheduler) {
		s.onTick = fn
	}
}

// New arms a scheduler over the escrowed key escrowID. The scheduler owns
// the escrow entry from here on and erases it on Cancel.
func New(cadence int, escrow *custody.Escrow, escrowID string, trigger Trigger, opts ...Option) (*Scheduler, error) {
	if cadence <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCadence, cadence)
	}
	if escrow == nil || trigger == nil {
		return nil, errors.New("recurring: escrow and trigger are required")
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cadence:   cadence,
		escrow:    escrow,
		escrowID:  escrowID,
		trigger:   trigger,
		interval:  DefaultInterval,
		logger:    zerolog.Nop(),
		ctx:       ctx,
		cancel:    cancel,
		countdown: cadence,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.interval <= 0 {
		cancel()
		return nil, fmt.Errorf("%w: %s", ErrInvalidInterval, s.interval)
	}
	return s, nil
}

// Start runs the countdown on a ticker until Cancel. Calling it twice is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.started || s.cancelled {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.logger.Info().Int("cadence", s.cadence).Msg("recurring payments armed")

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.Tick()
			}
		}
	}()
}

// Tick advances the countdown by one step and reports whether it fired an
// attempt.
func (s *Scheduler) Tick() bool {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return false
	}

	fire := s.countdown <= 1
	if fire {
		s.countdown = s.cadence
	} else {
		s.countdown--
	}
	countdown := s.countdown

	fired := false
	if fire {
		if s.inFlight {
			s.suppressed++
			s.logger.Debug().Msg("previous recurring attempt still in flight, skipping")
		} else {
			s.inFlight = true
			s.attempts++
			fired = true
			s.wg.Add(1)
			go s.run()
		}
	}
	onTick := s.onTick
	s.mu.Unlock()

	if onTick != nil {
		onTick(countdown)
	}
	return fired
}

func (s *Scheduler) run() {
	defer s.wg.Done()

	start := time.Now()
	err := s.trigger(s.ctx, s.escrowID)

	s.mu.Lock()
	s.inFlight = false
	cancelled := s.cancelled
	if err != nil && !cancelled {
		s.failures++
	}
	onWarning := s.onWarning
	s.mu.Unlock()

	if err == nil {
		s.logger.Info().Dur("took", time.Since(start)).Msg("recurring payment settled")
		return
	}
	if cancelled {
		return
	}

	s.logger.Warn().Err(err).Msg("recurring payment failed, cadence continues")
	if onWarning != nil {
		onWarning(err)
	}
}

// Cancel stops the countdown, aborts an in-flight attempt and erases the
// escrowed key before returning. Safe to call more than once.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	s.mu.Unlock()

	s.cancel()
	s.escrow.Erase(s.escrowID)
	s.logger.Info().Msg("recurring payments cancelled")
}

// Wait blocks until the ticker goroutine and any in-flight attempt return.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Countdown returns the visible seconds until the next attempt.
func (s *Scheduler) Countdown() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.countdown
}

// Cadence returns the configured cadence in seconds.
func (s *Scheduler) Cadence() int {
	return s.cadence
}

// Stats reports fired attempts, suppressed triggers and failed attempts.
func (s *Scheduler) Stats() (attempts, suppressed, failures int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts, s.suppressed, s.failures
}

// InFlight reports whether an attempt is running.
func (s *Scheduler) InFlight() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight
}

// Cancelled reports whether Cancel was called.
func (s *Scheduler) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}
