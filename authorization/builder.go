// Package authorization builds signed EIP-3009 transfer authorizations from a
// peripheral's payment requirements.
package authorization

import (
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	mrand "math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/x4pay/x402-ble-go"
	"github.com/x4pay/x402-ble-go/encoding"
)

// ClockSkewGrace is subtracted from the issuance time to form validAfter. It
// covers clock skew between client and peripheral and the time spent
// trickling the authorization over the channel.
const ClockSkewGrace = 600 * time.Second

// Authorization is the outcome of one build.
type Authorization struct {
	// Payload is the signed payment, ready to be serialized for transmission.
	Payload x402.PaymentPayload

	// DegradedNonce is true when the nonce came from a non-cryptographic source.
	DegradedNonce bool
}

// Builder produces signed authorizations. A Builder is stateless between
// builds and safe for concurrent use.
type Builder struct {
	now    func() time.Time
	random io.Reader
	logger zerolog.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithClock overrides the issuance clock.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		b.now = now
	}
}

// WithRandom overrides the secure nonce source.
func WithRandom(r io.Reader) Option {
	return func(b *Builder) {
		b.random = r
	}
}

// WithLogger sets the builder's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

// NewBuilder creates a Builder.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		now:    time.Now,
		random: crand.Reader,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build resolves the asset, computes the validity window, draws a nonce,
// asks the signer to sign and decodes the returned bundle. Every failure is a
// *x402.PaymentError with code PAYMENT_BUILD_FAILED wrapping the cause;
// nothing is retried.
func (b *Builder) Build(ctx context.Context, req *x402.PaymentRequirement, signer x402.Signer) (*Authorization, error) {
	if req == nil {
		return nil, buildFailed("missing payment requirements", x402.ErrNoRequirements)
	}
	if signer == nil || signer.Address() == "" {
		return nil, buildFailed("signer unavailable", x402.ErrSigningFailed)
	}

	chain, err := x402.LookupChain(req.Network)
	if err != nil {
		return nil, buildFailed("network not in table", err).WithDetails("network", req.Network)
	}
	if !strings.EqualFold(req.Asset, chain.USDCAddress) {
		return nil, buildFailed("asset does not match network table",
			fmt.Errorf("%w: asset %s", x402.ErrUnsupportedNetwork, req.Asset)).
			WithDetails("network", req.Network)
	}
	if _, ok := new(big.Int).SetString(req.MaxAmountRequired, 10); !ok {
		return nil, buildFailed("invalid amount", fmt.Errorf("%w: %q", x402.ErrInvalidAmount, req.MaxAmountRequired))
	}

	timeout := req.MaxTimeoutSeconds
	if timeout <= 0 {
		timeout = x402.DefaultTimeoutSeconds
	}
	issuedAt := b.now().Unix()
	validAfter := issuedAt - int64(ClockSkewGrace/time.Second)
	validBefore := issuedAt + int64(timeout)

	nonce, degraded := b.nonce()
	if degraded {
		b.logger.Warn().
			Bool("degraded_nonce", true).
			Str("network", req.Network).
			Msg("secure random source unavailable, nonce drawn from fallback generator")
	}

	unsigned := x402.PaymentPayload{
		X402Version: 1,
		Scheme:      x402.SchemeExact,
		Network:     req.Network,
		Payload: x402.EVMPayload{
			Authorization: x402.EVMAuthorization{
				From:        signer.Address(),
				To:          req.PayTo,
				Value:       req.MaxAmountRequired,
				ValidAfter:  strconv.FormatInt(validAfter, 10),
				ValidBefore: strconv.FormatInt(validBefore, 10),
				Nonce:       nonce,
			},
		},
	}

	bundle, err := signer.SignPayment(ctx, req, &unsigned)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, buildFailed("signing interrupted", err)
		}
		return nil, buildFailed("signer rejected authorization", fmt.Errorf("%w: %w", x402.ErrSigningFailed, err))
	}

	signed, err := encoding.DecodePayment(bundle)
	if err != nil {
		return nil, buildFailed("malformed signer bundle", fmt.Errorf("%w: %w", x402.ErrSigningFailed, err))
	}
	if err := verifyEcho(unsigned, signed); err != nil {
		return nil, buildFailed("malformed signer bundle", fmt.Errorf("%w: %w", x402.ErrSigningFailed, err))
	}

	b.logger.Debug().
		Str("network", req.Network).
		Str("amount", req.MaxAmountRequired).
		Str("pay_to", req.PayTo).
		Str("from", signer.Address()).
		Msg("authorization signed")

	return &Authorization{Payload: signed, DegradedNonce: degraded}, nil
}

// nonce returns 32 random bytes as 0x-prefixed lower hex. When the secure
// source fails it falls back to math/rand and reports degraded.
func (b *Builder) nonce() (string, bool) {
	var buf [32]byte
	if _, err := io.ReadFull(b.random, buf[:]); err == nil {
		return "0x" + hex.EncodeToString(buf[:]), false
	}

	for i := range buf {
		buf[i] = byte(mrand.Intn(256))
	}
	return "0x" + hex.EncodeToString(buf[:]), true
}

// verifyEcho checks that the bundle is the signed form of what was submitted.
func verifyEcho(unsigned, signed x402.PaymentPayload) error {
	if signed.Payload.Signature == "" {
		return errors.New("bundle carries no signature")
	}
	if signed.Network != unsigned.Network || signed.Scheme != unsigned.Scheme {
		return fmt.Errorf("bundle is for %s/%s, want %s/%s",
			signed.Scheme, signed.Network, unsigned.Scheme, unsigned.Network)
	}

	got, want := signed.Payload.Authorization, unsigned.Payload.Authorization
	if !strings.EqualFold(got.From, want.From) ||
		!strings.EqualFold(got.To, want.To) ||
		got.Value != want.Value ||
		got.ValidAfter != want.ValidAfter ||
		got.ValidBefore != want.ValidBefore ||
		!strings.EqualFold(got.Nonce, want.Nonce) {
		return errors.New("bundle authorization differs from the one submitted")
	}
	return nil
}

func buildFailed(message string, err error) *x402.PaymentError {
	return x402.NewPaymentError(x402.ErrCodePaymentBuildFailed, message, err)
}
