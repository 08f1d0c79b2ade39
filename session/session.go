// Package session runs the payment session for one connected peripheral:
// provisioning, price discovery, PIN-gated signing, chunked transmission,
// settlement correlation and hand-off to the recurring scheduler.
package session

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/x4pay/x402-ble-go"
	"github.com/x4pay/x402-ble-go/authorization"
	"github.com/x4pay/x402-ble-go/channel"
	"github.com/x4pay/x402-ble-go/custody"
	"github.com/x4pay/x402-ble-go/encoding"
	"github.com/x4pay/x402-ble-go/evm"
	"github.com/x4pay/x402-ble-go/frame"
	"github.com/x4pay/x402-ble-go/notify"
	"github.com/x4pay/x402-ble-go/recurring"
	"github.com/x4pay/x402-ble-go/retry"
)

// Metadata commands, sent in this order by RequestMetadata.
var MetadataCommands = []string{"[LOGO]", "[BANNER]", "[DESC]", "[CONFIG]", "[OPTIONS]"}

// DefaultSettlementTimeout bounds the wait for PAYMENT:COMPLETE after the
// last fragment is written.
const DefaultSettlementTimeout = 2 * time.Minute

var (
	// ErrCustomContentNotAllowed is returned when a context is supplied but the
	// device did not allow custom content.
	ErrCustomContentNotAllowed = errors.New("session: device does not accept custom content")

	// ErrUnknownOption is returned for an option the device did not advertise.
	ErrUnknownOption = errors.New("session: option not offered by device")
)

// SignerFactory turns a decrypted key into the signing capability.
type SignerFactory func(key *ecdsa.PrivateKey) (x402.Signer, error)

// PayRequest is a user-initiated payment.
type PayRequest struct {
	PIN      string
	WalletID string
	Options  []string
	Context  string

	// AutoPay asks for recurring payments when the device reports a cadence.
	// The decrypted key is then escrowed until the schedule is cancelled.
	AutoPay bool
}

// Status is a point-in-time view of the session.
type Status struct {
	Phase       Phase                    `json:"phase"`
	AttemptID   string                   `json:"attemptId,omitempty"`
	Requirement *x402.PaymentRequirement `json:"requirement,omitempty"`
	Settlement  *x402.SettlementResult   `json:"settlement,omitempty"`
	Selection   Selection                `json:"selection"`
	Recurring   bool                     `json:"recurring"`
	Cadence     int                      `json:"cadence,omitempty"`
	Countdown   int                      `json:"countdown,omitempty"`
}

// Session is the state machine for one peripheral connection.
type Session struct {
	ch         channel.Channel
	outbox     *channel.Outbox
	models     *notify.State
	dispatcher *notify.Dispatcher
	builder    *authorization.Builder
	keys       custody.KeyCustody
	escrow     *custody.Escrow
	newSigner  SignerFactory
	callbacks  []x402.PaymentCallback
	logger     zerolog.Logger

	outboxOpts        []channel.OutboxOption
	commandDelay      time.Duration
	settlementTimeout time.Duration
	tickInterval      time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	phase         Phase
	attempt       *Attempt
	selection     Selection
	pendingEscrow string
	scheduler     *recurring.Scheduler
	reqReady      chan struct{}
	reqErr        error
	closed        bool
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger used by the session and its components.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// WithChunkSize sets the fragment body size.
func WithChunkSize(size int) Option {
	return func(s *Session) {
		s.outboxOpts = append(s.outboxOpts, channel.WithChunkSize(size))
	}
}

// WithFragmentDelay sets the pause between fragment writes.
func WithFragmentDelay(d time.Duration) Option {
	return func(s *Session) {
		s.outboxOpts = append(s.outboxOpts, channel.WithFragmentDelay(d))
	}
}

// WithWriteRetry retries writes the channel rejects with channel.ErrBusy.
// Other write errors still abort the attempt.
func WithWriteRetry(p retry.Policy) Option {
	return func(s *Session) {
		s.outboxOpts = append(s.outboxOpts, channel.WithRetry(p))
	}
}

// WithCommandDelay sets the pause between metadata commands.
func WithCommandDelay(d time.Duration) Option {
	return func(s *Session) {
		s.commandDelay = d
	}
}

// WithSettlementTimeout bounds the wait for a settlement report. Zero waits
// forever.
func WithSettlementTimeout(d time.Duration) Option {
	return func(s *Session) {
		s.settlementTimeout = d
	}
}

// WithTickInterval sets the recurring countdown step.
func WithTickInterval(d time.Duration) Option {
	return func(s *Session) {
		s.tickInterval = d
	}
}

// WithBuilder replaces the authorization builder.
func WithBuilder(b *authorization.Builder) Option {
	return func(s *Session) {
		s.builder = b
	}
}

// WithSignerFactory replaces the local-key signer.
func WithSignerFactory(f SignerFactory) Option {
	return func(s *Session) {
		s.newSigner = f
	}
}

// WithEscrow shares an escrow between sessions.
func WithEscrow(e *custody.Escrow) Option {
	return func(s *Session) {
		s.escrow = e
	}
}

// WithPaymentCallback registers a payment lifecycle callback.
func WithPaymentCallback(cb x402.PaymentCallback) Option {
	return func(s *Session) {
		s.callbacks = append(s.callbacks, cb)
	}
}

// New attaches a session to ch. Notifications start flowing immediately.
func New(ch channel.Channel, keys custody.KeyCustody, opts ...Option) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		ch:                ch,
		keys:              keys,
		escrow:            custody.NewEscrow(),
		logger:            zerolog.Nop(),
		commandDelay:      channel.DefaultCommandDelay,
		settlementTimeout: DefaultSettlementTimeout,
		tickInterval:      recurring.DefaultInterval,
		newSigner: func(key *ecdsa.PrivateKey) (x402.Signer, error) {
			return evm.NewSigner(evm.WithKey(key))
		},
		ctx:      ctx,
		cancel:   cancel,
		phase:    Idle,
		reqReady: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.builder == nil {
		s.builder = authorization.NewBuilder(authorization.WithLogger(s.logger))
	}
	s.outbox = channel.NewOutbox(ch, append([]channel.OutboxOption{channel.WithLogger(s.logger)}, s.outboxOpts...)...)
	s.models = notify.NewState()
	s.dispatcher = notify.NewDispatcher(s.models, notify.WithLogger(s.logger))
	s.dispatcher.Subscribe(s.onEvent)
	s.dispatcher.OnReject(s.onReject)
	ch.OnNotify(s.dispatcher.Handle)

	return s
}

// Models exposes the device metadata, requirement and settlement models.
func (s *Session) Models() *notify.State {
	return s.models
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	st := Status{
		Phase:     s.phase,
		Selection: s.selection.clone(),
	}
	if s.attempt != nil {
		st.AttemptID = s.attempt.ID
	}
	sch := s.scheduler
	s.mu.Unlock()

	st.Requirement = s.models.Requirement()
	st.Settlement = s.models.Settlement()
	if sch != nil {
		st.Recurring = true
		st.Cadence = sch.Cadence()
		st.Countdown = sch.Countdown()
	}
	return st
}

// RequestMetadata asks the peripheral for its logo, banner, description,
// config and options, one command at a time.
func (s *Session) RequestMetadata(ctx context.Context) error {
	ctx, done := s.bind(ctx)
	defer done()
	return s.outbox.SendCommands(ctx, s.commandDelay, MetadataCommands...)
}

// RequestPrice sends the selection under the [PRICE] tag. The peripheral
// answers with a 402:// notification.
func (s *Session) RequestPrice(ctx context.Context, sel Selection) error {
	if err := s.validate(sel); err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return x402.ErrSessionClosed
	}
	s.selection = sel.clone()
	s.reqErr = nil
	if (s.phase == Idle || s.phase == Failed) && s.models.Requirement() == nil {
		s.phase = PriceUnknown
	}
	s.mu.Unlock()

	ctx, done := s.bind(ctx)
	defer done()
	if err := s.outbox.Send(ctx, frame.Price, sel.String()); err != nil {
		s.mu.Lock()
		if s.phase == PriceUnknown {
			s.phase = Idle
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

// Pay runs a user-initiated attempt up to the last written fragment and
// returns a handle that resolves on settlement. Without known requirements it
// first requests a price and waits for the peripheral's answer.
func (s *Session) Pay(ctx context.Context, req PayRequest) (*Attempt, error) {
	sel := Selection{Options: req.Options, Context: req.Context}
	if err := s.validate(sel); err != nil {
		return nil, err
	}
	if err := s.claimable(); err != nil {
		return nil, err
	}

	ctx, done := s.bind(ctx)
	defer done()

	if s.models.Requirement() == nil {
		if err := s.RequestPrice(ctx, sel); err != nil {
			return nil, err
		}
		if err := s.awaitRequirements(ctx); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	if err := s.claimableLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	a := newAttempt(false)
	s.attempt = a
	s.selection = sel.clone()
	s.phase = Authenticating
	s.mu.Unlock()

	log := s.logger.With().Str("attempt_id", a.ID).Logger()

	key, err := s.keys.PrivateKey(ctx, req.PIN, req.WalletID)
	if err != nil {
		log.Warn().Err(err).Msg("wallet authentication failed")
		if !errors.Is(err, x402.ErrAuthFailed) {
			err = fmt.Errorf("%w: %w", x402.ErrAuthFailed, err)
		}
		err = x402.NewPaymentError(x402.ErrCodeAuthFailed, "wallet locked", err)
		s.release(a, RequirementsKnown, err)
		return nil, err
	}
	defer custody.Wipe(key)

	if req.AutoPay && s.models.Snapshot().Recurring() {
		id, err := s.escrow.Put(key)
		if err != nil {
			s.release(a, RequirementsKnown, err)
			return nil, err
		}
		s.mu.Lock()
		s.pendingEscrow = id
		s.mu.Unlock()
		log.Info().Str("escrow_id", id).Msg("key escrowed for recurring payments")
	}

	if err := s.execute(ctx, a, key, sel); err != nil {
		return nil, err
	}
	return a, nil
}

// CancelRecurring stops the recurring schedule and erases the escrowed key.
// It reports whether a schedule was armed.
func (s *Session) CancelRecurring() bool {
	s.mu.Lock()
	sch := s.scheduler
	s.scheduler = nil
	if s.phase == RecurringArmed {
		s.phase = s.restingPhaseLocked()
	}
	s.mu.Unlock()

	if sch == nil {
		return false
	}
	sch.Cancel()
	return true
}

// Close aborts any transmission, cancels recurring payments, erases escrowed
// keys and disconnects the channel. Safe in any phase and idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	a := s.attempt
	s.attempt = nil
	sch := s.scheduler
	s.scheduler = nil
	pending := s.pendingEscrow
	s.pendingEscrow = ""
	s.phase = Idle
	s.mu.Unlock()

	s.cancel()
	if sch != nil {
		sch.Cancel()
	}
	if pending != "" {
		s.escrow.Erase(pending)
	}
	if a != nil {
		a.resolve(nil, x402.ErrSessionClosed)
	}
	s.models.Reset()

	s.logger.Info().Msg("session closed")
	return s.ch.Disconnect()
}

// execute builds, signs and transmits an attempt that already holds the
// session. On return without error the attempt awaits settlement.
func (s *Session) execute(ctx context.Context, a *Attempt, key *ecdsa.PrivateKey, sel Selection) error {
	log := s.logger.With().Str("attempt_id", a.ID).Bool("recurring", a.Recurring).Logger()

	req := s.models.Requirement()
	if req == nil {
		s.release(a, s.fallbackPhase(a, Idle), x402.ErrNoRequirements)
		return x402.ErrNoRequirements
	}

	s.setPhase(a, Building)
	signer, err := s.newSigner(key)
	if err != nil {
		err = x402.NewPaymentError(x402.ErrCodePaymentBuildFailed, "signer unavailable", fmt.Errorf("%w: %w", x402.ErrSigningFailed, err))
		s.fail(a, req, err, Failed)
		return err
	}

	auth, err := s.builder.Build(ctx, req, signer)
	if err != nil {
		log.Error().Err(err).Str("network", req.Network).Msg("authorization build failed")
		s.fail(a, req, err, Failed)
		return err
	}
	a.setBuilt(req, auth.Payload)

	payloadJSON, err := encoding.MarshalPayment(auth.Payload)
	if err != nil {
		err = x402.NewPaymentError(x402.ErrCodePaymentBuildFailed, "failed to serialize payload", err)
		s.fail(a, req, err, Failed)
		return err
	}

	s.setPhase(a, Transmitting)
	s.emit(x402.PaymentEvent{
		Type:      x402.PaymentEventAttempt,
		AttemptID: a.ID,
		Recurring: a.Recurring,
		Network:   req.Network,
		Amount:    req.MaxAmountRequired,
		Asset:     req.Asset,
		Recipient: req.PayTo,
		Payer:     signer.Address(),
	})
	log.Info().
		Str("network", req.Network).
		Str("amount", x402.FormatUSD(req.MaxAmountRequired)).
		Str("pay_to", req.PayTo).
		Msg("transmitting payment")

	if err := s.outbox.Send(ctx, frame.Payment, paymentMessage(payloadJSON, sel)); err != nil {
		log.Error().Err(err).Msg("payment transmission aborted")
		s.fail(a, req, err, RequirementsKnown)
		return err
	}

	s.mu.Lock()
	if s.attempt == a && s.phase == Transmitting {
		s.phase = AwaitingSettlement
		a.armTimeout(s.settlementTimeout, func() { s.expire(a) })
	}
	s.mu.Unlock()
	return nil
}

// payEscrowed is the recurring trigger: one attempt with the escrowed key,
// waited on until settlement.
func (s *Session) payEscrowed(ctx context.Context, escrowID string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return x402.ErrSessionClosed
	}
	if s.attempt != nil {
		s.mu.Unlock()
		return x402.ErrAttemptInFlight
	}
	a := newAttempt(true)
	s.attempt = a
	sel := s.selection.clone()
	s.mu.Unlock()

	key, err := s.escrow.Get(escrowID)
	if err != nil {
		s.release(a, s.fallbackPhase(a, RequirementsKnown), err)
		return err
	}
	defer custody.Wipe(key)

	ctx, done := s.bind(ctx)
	defer done()

	if err := s.execute(ctx, a, key, sel); err != nil {
		return err
	}
	if _, err := a.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			s.fail(a, a.requirement(), ctx.Err(), RequirementsKnown)
		}
		return err
	}
	return nil
}

func (s *Session) onEvent(ev notify.Event) {
	switch ev.Kind {
	case notify.KindRequirements:
		s.mu.Lock()
		switch s.phase {
		case Idle, PriceUnknown, Settled, Failed:
			s.phase = RequirementsKnown
		}
		close(s.reqReady)
		s.reqReady = make(chan struct{})
		s.mu.Unlock()
	case notify.KindSettlement:
		s.settle(ev.Settlement)
	}
}

// onReject fails a pending price discovery when the peripheral announces
// requirements that cannot be paid. Other dropped notifications are ignored.
func (s *Session) onReject(kind notify.Kind, err error) {
	if kind != notify.KindRequirements || !errors.Is(err, x402.ErrUnsupportedNetwork) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PriceUnknown {
		return
	}
	s.phase = Failed
	s.reqErr = x402.NewPaymentError(x402.ErrCodePaymentBuildFailed, "peripheral announced an unsupported network", err)
	close(s.reqReady)
	s.reqReady = make(chan struct{})
}

func (s *Session) settle(result *x402.SettlementResult) {
	s.mu.Lock()
	a := s.attempt
	if a == nil || (s.phase != Transmitting && s.phase != AwaitingSettlement) {
		s.mu.Unlock()
		s.logger.Debug().Msg("ignoring settlement with no attempt in flight")
		return
	}
	s.attempt = nil

	var err error
	switch {
	case result.Verified && a.Recurring:
		s.phase = s.fallbackPhaseLocked(a, Settled)
	case result.Verified:
		s.phase = Settled
		if s.pendingEscrow != "" {
			if cadence := s.models.Snapshot().Frequency; cadence > 0 {
				s.armLocked(cadence, s.pendingEscrow)
			} else {
				s.escrow.Erase(s.pendingEscrow)
			}
			s.pendingEscrow = ""
		}
	default:
		err = x402.ErrSettlementRejected
		s.phase = s.fallbackPhaseLocked(a, Failed)
		if !a.Recurring && s.pendingEscrow != "" {
			s.escrow.Erase(s.pendingEscrow)
			s.pendingEscrow = ""
		}
	}
	phase := s.phase
	s.mu.Unlock()

	a.resolve(result, err)

	req := a.requirement()
	ev := x402.PaymentEvent{
		AttemptID:   a.ID,
		Recurring:   a.Recurring,
		Transaction: result.Transaction,
		Duration:    time.Since(a.Started),
		Error:       err,
	}
	if req != nil {
		ev.Network, ev.Amount, ev.Asset, ev.Recipient = req.Network, req.MaxAmountRequired, req.Asset, req.PayTo
	}
	if p := a.Payload(); p != nil {
		ev.Payer = p.Payload.Authorization.From
	}
	if result.Verified {
		ev.Type = x402.PaymentEventSuccess
		s.logger.Info().Str("attempt_id", a.ID).Str("tx", result.Transaction).Stringer("phase", phase).Msg("payment settled")
	} else {
		ev.Type = x402.PaymentEventFailure
		s.logger.Warn().Str("attempt_id", a.ID).Str("status", result.Status).Msg("payment rejected by peripheral")
	}
	s.emit(ev)
}

// armLocked starts the recurring scheduler and moves to RecurringArmed. On
// failure the escrow is erased and the phase is left alone. Caller holds s.mu.
func (s *Session) armLocked(cadence int, escrowID string) {
	sch, err := recurring.New(cadence, s.escrow, escrowID, s.payEscrowed,
		recurring.WithInterval(s.tickInterval),
		recurring.WithLogger(s.logger.With().Str("component", "recurring").Logger()),
		recurring.WithWarningHandler(func(err error) {
			s.emit(x402.PaymentEvent{Type: x402.PaymentEventWarning, Recurring: true, Error: err})
		}),
	)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to arm recurring payments")
		s.escrow.Erase(escrowID)
		return
	}
	s.scheduler = sch
	s.phase = RecurringArmed
	sch.Start()
}

func (s *Session) expire(a *Attempt) {
	s.mu.Lock()
	if s.attempt != a {
		s.mu.Unlock()
		return
	}
	s.attempt = nil
	s.phase = s.fallbackPhaseLocked(a, Failed)
	if !a.Recurring && s.pendingEscrow != "" {
		s.escrow.Erase(s.pendingEscrow)
		s.pendingEscrow = ""
	}
	s.mu.Unlock()

	s.logger.Warn().Str("attempt_id", a.ID).Dur("timeout", s.settlementTimeout).Msg("no settlement received")
	a.resolve(nil, x402.ErrSettlementTimeout)
	s.emitFailure(a, a.requirement(), x402.ErrSettlementTimeout)
}

// fail resolves an attempt that ended before settlement.
func (s *Session) fail(a *Attempt, req *x402.PaymentRequirement, err error, phase Phase) {
	s.mu.Lock()
	if s.attempt == a {
		s.attempt = nil
		if !s.closed {
			s.phase = s.fallbackPhaseLocked(a, phase)
		}
	}
	if !a.Recurring && s.pendingEscrow != "" {
		s.escrow.Erase(s.pendingEscrow)
		s.pendingEscrow = ""
	}
	s.mu.Unlock()

	a.resolve(nil, err)
	s.emitFailure(a, req, err)
}

// release frees the session from an attempt that never got to building.
func (s *Session) release(a *Attempt, phase Phase, err error) {
	s.mu.Lock()
	if s.attempt == a {
		s.attempt = nil
		if !s.closed {
			s.phase = phase
		}
	}
	if !a.Recurring && s.pendingEscrow != "" {
		s.escrow.Erase(s.pendingEscrow)
		s.pendingEscrow = ""
	}
	s.mu.Unlock()
	a.resolve(nil, err)
}

func (s *Session) setPhase(a *Attempt, phase Phase) {
	s.mu.Lock()
	if s.attempt == a {
		s.phase = phase
	}
	s.mu.Unlock()
}

func (s *Session) fallbackPhase(a *Attempt, phase Phase) Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fallbackPhaseLocked(a, phase)
}

// fallbackPhaseLocked returns to RecurringArmed after a recurring attempt
// while the schedule is alive.
func (s *Session) fallbackPhaseLocked(a *Attempt, phase Phase) Phase {
	if a.Recurring {
		if s.scheduler != nil {
			return RecurringArmed
		}
		return s.restingPhaseLocked()
	}
	return phase
}

func (s *Session) restingPhaseLocked() Phase {
	if s.models.Requirement() != nil {
		return RequirementsKnown
	}
	return Idle
}

func (s *Session) claimable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.claimableLocked()
}

func (s *Session) claimableLocked() error {
	switch {
	case s.closed:
		return x402.ErrSessionClosed
	case s.scheduler != nil:
		return x402.ErrRecurringActive
	case s.attempt != nil || s.phase.InFlight():
		return x402.ErrAttemptInFlight
	}
	return nil
}

func (s *Session) awaitRequirements(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.models.Requirement() != nil {
			s.mu.Unlock()
			return nil
		}
		if err := s.reqErr; err != nil {
			s.reqErr = nil
			s.mu.Unlock()
			return err
		}
		ready := s.reqReady
		s.mu.Unlock()

		select {
		case <-ready:
		case <-ctx.Done():
			s.mu.Lock()
			if s.phase == PriceUnknown {
				s.phase = Idle
			}
			s.mu.Unlock()
			return fmt.Errorf("waiting for price: %w", ctx.Err())
		}
	}
}

func (s *Session) validate(sel Selection) error {
	meta := s.models.Snapshot()
	if sel.Context != "" && !meta.AllowCustomContent {
		return ErrCustomContentNotAllowed
	}
	if len(meta.Options) == 0 {
		return nil
	}
	for _, o := range sel.Options {
		if !slices.Contains(meta.Options, o) {
			return fmt.Errorf("%w: %q", ErrUnknownOption, o)
		}
	}
	return nil
}

// bind derives a context that also ends when the session closes.
func (s *Session) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(s.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (s *Session) emitFailure(a *Attempt, req *x402.PaymentRequirement, err error) {
	ev := x402.PaymentEvent{
		Type:      x402.PaymentEventFailure,
		AttemptID: a.ID,
		Recurring: a.Recurring,
		Error:     err,
		Duration:  time.Since(a.Started),
	}
	if req != nil {
		ev.Network, ev.Amount, ev.Asset, ev.Recipient = req.Network, req.MaxAmountRequired, req.Asset, req.PayTo
	}
	s.emit(ev)
}

func (s *Session) emit(ev x402.PaymentEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	for _, cb := range s.callbacks {
		cb(ev)
	}
}
