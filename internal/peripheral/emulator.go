// Package peripheral is a software stand-in for the payment firmware. It
// speaks the same wire vocabulary over an in-memory channel: it answers
// metadata commands, prices selections, reassembles X-PAYMENT frames,
// verifies the signed authorization and reports settlement.
package peripheral

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
	"github.com/x4pay/x402-ble-go"
	"github.com/x4pay/x402-ble-go/channel"
	"github.com/x4pay/x402-ble-go/encoding"
	"github.com/x4pay/x402-ble-go/evm"
	"github.com/x4pay/x402-ble-go/frame"
	"github.com/x4pay/x402-ble-go/validation"
)

// Config is what the emulated device advertises and how it settles.
type Config struct {
	Network            string   `mapstructure:"network"`
	PayTo              string   `mapstructure:"pay_to"`
	Price              string   `mapstructure:"price"`
	Logo               string   `mapstructure:"logo"`
	Banner             string   `mapstructure:"banner"`
	Description        string   `mapstructure:"description"`
	Frequency          int      `mapstructure:"frequency"`
	Options            []string `mapstructure:"options"`
	AllowCustomContent bool     `mapstructure:"allow_custom_content"`

	// Reject makes every settlement report VERIFIED:false.
	Reject bool `mapstructure:"reject"`

	// OmitTransaction reports VERIFIED:true without a TX field, as some
	// firmware builds do.
	OmitTransaction bool `mapstructure:"omit_transaction"`

	// Silent swallows payments without ever reporting settlement.
	Silent bool `mapstructure:"silent"`
}

// Payment is one reassembled X-PAYMENT message and its verdict.
type Payment struct {
	Payload     x402.PaymentPayload
	Context     string
	Options     []string
	Verified    bool
	Transaction string
	Reason      string
}

// Emulator is an emulated peripheral bound to the far end of a channel.
type Emulator struct {
	ch     *channel.Memory
	logger zerolog.Logger
	now    func() time.Time
	delay  time.Duration

	inbox chan []byte
	quit  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once

	// reassembler is only touched by the processing goroutine.
	reassembler *frame.Reassembler

	mu       sync.Mutex
	cfg      Config
	payments []Payment
	nonces   map[string]bool
	prices   []string
}

// Option configures an Emulator.
type Option func(*Emulator)

// WithLogger sets the emulator logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Emulator) {
		e.logger = logger
	}
}

// WithClock overrides the verification clock.
func WithClock(now func() time.Time) Option {
	return func(e *Emulator) {
		e.now = now
	}
}

// WithVerifyDelay pauses between PAYMENT:VERIFYING and PAYMENT:COMPLETE.
func WithVerifyDelay(d time.Duration) Option {
	return func(e *Emulator) {
		e.delay = d
	}
}

// New attaches an emulator to ch and starts processing writes.
func New(ch *channel.Memory, cfg Config, opts ...Option) *Emulator {
	e := &Emulator{
		ch:          ch,
		logger:      zerolog.Nop(),
		now:         time.Now,
		inbox:       make(chan []byte, 256),
		quit:        make(chan struct{}),
		reassembler: frame.NewReassembler(frame.Payment, frame.Price),
		cfg:         cfg,
		nonces:      make(map[string]bool),
	}
	for _, opt := range opts {
		opt(e)
	}

	ch.Attach(e.receive)
	e.wg.Add(1)
	go e.loop()
	return e
}

// Stop halts processing. Pending writes are dropped.
func (e *Emulator) Stop() {
	e.once.Do(func() {
		close(e.quit)
	})
	e.wg.Wait()
}

// Configure replaces the advertised configuration.
func (e *Emulator) Configure(cfg Config) {
	e.mu.Lock()
	e.cfg = cfg
	e.mu.Unlock()
}

// Payments returns every payment received so far.
func (e *Emulator) Payments() []Payment {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Payment(nil), e.payments...)
}

// PriceRequests returns the bodies of the [PRICE] messages received.
func (e *Emulator) PriceRequests() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.prices...)
}

// Announce pushes a fresh 402:// notification without being asked.
func (e *Emulator) Announce() {
	e.ch.Notify([]byte(e.requirementsNotification()))
}

func (e *Emulator) receive(data []byte) {
	select {
	case e.inbox <- data:
	case <-e.quit:
	}
}

func (e *Emulator) loop() {
	defer e.wg.Done()
	for {
		select {
		case <-e.quit:
			return
		case data := <-e.inbox:
			e.handle(data)
		}
	}
}

func (e *Emulator) handle(data []byte) {
	text := string(data)
	upper := strings.ToUpper(text)

	switch {
	case strings.HasPrefix(text, frame.Payment.Name) || strings.HasPrefix(text, frame.Price.Name):
		e.handleFrame(data)
	case strings.HasPrefix(upper, "[LOGO]"):
		e.reply("LOGO://" + e.config().Logo)
	case strings.HasPrefix(upper, "[BANNER]"):
		e.reply("BANNER://" + e.config().Banner)
	case strings.HasPrefix(upper, "[DESC]"):
		e.reply("DESC://" + e.config().Description)
	case strings.HasPrefix(upper, "[CONFIG]"):
		cfg := e.config()
		e.reply(fmt.Sprintf(`CONFIG://{"frequency": %d, "allowCustomContent": %t}`, cfg.Frequency, cfg.AllowCustomContent))
	case strings.HasPrefix(upper, "[OPTIONS]"):
		e.reply("OPTIONS://" + strings.Join(e.config().Options, ","))
	default:
		// Anything unrecognized is answered with the price, like the firmware.
		e.reply(e.requirementsNotification())
	}
}

func (e *Emulator) handleFrame(data []byte) {
	msg, _, err := e.reassembler.Feed(data)
	if err != nil {
		e.logger.Debug().Err(err).Msg("dropping fragment")
		return
	}
	if msg == nil {
		if strings.HasPrefix(string(data), frame.Payment.Name) {
			e.reply("PAYMENT:ACK")
		}
		return
	}

	switch msg.Tag.Name {
	case frame.Price.Name:
		e.mu.Lock()
		e.prices = append(e.prices, msg.Body)
		e.mu.Unlock()
		e.reply(e.requirementsNotification())
	case frame.Payment.Name:
		e.reply("PAYMENT:VERIFYING")
		e.settle(msg.Body)
	}
}

func (e *Emulator) settle(body string) {
	cfg := e.config()
	p := e.verify(cfg, body)

	e.mu.Lock()
	e.payments = append(e.payments, p)
	e.mu.Unlock()

	log := e.logger.Info()
	if !p.Verified {
		log = e.logger.Warn().Str("reason", p.Reason)
	}
	log.Bool("verified", p.Verified).Str("tx", p.Transaction).Msg("payment received")

	if cfg.Silent {
		return
	}
	if e.delay > 0 {
		select {
		case <-time.After(e.delay):
		case <-e.quit:
			return
		}
	}

	resp := "PAYMENT:COMPLETE VERIFIED:" + strconv.FormatBool(p.Verified)
	if p.Verified && p.Transaction != "" && !cfg.OmitTransaction {
		resp += " TX:" + p.Transaction
	}
	e.reply(resp)
}

// verify checks the payment against the advertised requirement: payload
// shape, recipient, amount, validity window, nonce reuse and signer recovery.
func (e *Emulator) verify(cfg Config, body string) Payment {
	payloadJSON, note, options, err := splitPaymentMessage(body)
	if err != nil {
		return Payment{Reason: err.Error()}
	}
	p := Payment{Context: note, Options: options}

	payload, err := encoding.UnmarshalPayment(payloadJSON)
	if err != nil {
		p.Reason = err.Error()
		return p
	}
	p.Payload = payload

	if cfg.Reject {
		p.Reason = "rejected by configuration"
		return p
	}

	req, err := x402.NewPaymentRequirement(cfg.Network, cfg.PayTo, cfg.Price)
	if err != nil {
		p.Reason = err.Error()
		return p
	}
	if err := validation.ValidatePaymentRequirement(req); err != nil {
		p.Reason = "device misconfigured: " + err.Error()
		return p
	}
	if err := validation.ValidatePaymentPayload(payload); err != nil {
		p.Reason = err.Error()
		return p
	}
	if payload.Scheme != req.Scheme || payload.Network != req.Network {
		p.Reason = fmt.Sprintf("unexpected %s/%s", payload.Scheme, payload.Network)
		return p
	}

	auth, err := evm.ParseAuthorization(payload.Payload.Authorization)
	if err != nil {
		p.Reason = err.Error()
		return p
	}
	if auth.To != common.HexToAddress(req.PayTo) {
		p.Reason = "wrong recipient"
		return p
	}
	price, _ := new(big.Int).SetString(req.MaxAmountRequired, 10)
	if auth.Value.Cmp(price) != 0 {
		p.Reason = fmt.Sprintf("value %s does not match price %s", auth.Value, price)
		return p
	}
	now := big.NewInt(e.now().Unix())
	if now.Cmp(auth.ValidAfter) < 0 || now.Cmp(auth.ValidBefore) >= 0 {
		p.Reason = "outside validity window"
		return p
	}

	domain, err := evm.DomainFor(&req)
	if err != nil {
		p.Reason = err.Error()
		return p
	}
	signer, err := evm.RecoverSigner(domain, auth, payload.Payload.Signature)
	if err != nil {
		p.Reason = err.Error()
		return p
	}
	if signer != auth.From {
		p.Reason = "signature does not match payer"
		return p
	}

	e.mu.Lock()
	replayed := e.nonces[auth.Nonce.Hex()]
	e.nonces[auth.Nonce.Hex()] = true
	e.mu.Unlock()
	if replayed {
		p.Reason = "nonce already used"
		return p
	}

	sig, _ := common.ParseHexOrString(payload.Payload.Signature)
	p.Verified = true
	p.Transaction = crypto.Keccak256Hash(sig).Hex()
	return p
}

// splitPaymentMessage parses "<json>--<context>--[a,b]".
func splitPaymentMessage(body string) (payloadJSON, note string, options []string, err error) {
	i := strings.LastIndex(body, "--")
	if i < 0 {
		return "", "", nil, fmt.Errorf("missing options separator")
	}
	list := body[i+2:]
	rest := body[:i]

	j := strings.LastIndex(rest, "--")
	if j < 0 {
		return "", "", nil, fmt.Errorf("missing context separator")
	}
	payloadJSON, note = rest[:j], rest[j+2:]
	if note == `""` {
		note = ""
	}

	if !strings.HasPrefix(list, "[") || !strings.HasSuffix(list, "]") {
		return "", "", nil, fmt.Errorf("malformed options %q", list)
	}
	if inner := list[1 : len(list)-1]; inner != "" {
		options = strings.Split(inner, ",")
	}
	return payloadJSON, note, options, nil
}

func (e *Emulator) requirementsNotification() string {
	cfg := e.config()
	return fmt.Sprintf(`402://{"price": "%s", "payTo": "%s", "network": "%s"}`, cfg.Price, cfg.PayTo, cfg.Network)
}

func (e *Emulator) config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	cfg := e.cfg
	cfg.Options = append([]string(nil), e.cfg.Options...)
	return cfg
}

func (e *Emulator) reply(text string) {
	e.ch.Notify([]byte(text))
}

// Serve runs until ctx ends, then stops the emulator.
func (e *Emulator) Serve(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-e.quit:
	}
	e.Stop()
}
