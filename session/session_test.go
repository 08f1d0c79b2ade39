package session

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x4pay/x402-ble-go"
	"github.com/x4pay/x402-ble-go/channel"
	"github.com/x4pay/x402-ble-go/custody"
	"github.com/x4pay/x402-ble-go/internal/peripheral"
	"github.com/x4pay/x402-ble-go/notify"
	"github.com/x4pay/x402-ble-go/retry"
)

const (
	testPrivateKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddress       = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	testPayTo         = "0x2222222222222222222222222222222222222222"
	testPIN           = "1234"
	testWallet        = "wallet-1"
)

var waitFor = 2 * time.Second

type eventLog struct {
	mu     sync.Mutex
	events []x402.PaymentEvent
}

func (l *eventLog) record(ev x402.PaymentEvent) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *eventLog) types() []x402.PaymentEventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []x402.PaymentEventType
	for _, ev := range l.events {
		out = append(out, ev.Type)
	}
	return out
}

type rig struct {
	session *Session
	emu     *peripheral.Emulator
	mem     *channel.Memory
	escrow  *custody.Escrow
	events  *eventLog
}

func testKeys() custody.KeyCustody {
	return custody.CustodyFunc(func(_ context.Context, pin, walletID string) (*ecdsa.PrivateKey, error) {
		if pin != testPIN || walletID != testWallet {
			return nil, x402.ErrAuthFailed
		}
		return crypto.HexToECDSA(testPrivateKeyHex)
	})
}

func newRig(t *testing.T, cfg peripheral.Config, opts ...Option) *rig {
	t.Helper()

	if cfg.Network == "" {
		cfg.Network = "base-sepolia"
	}
	if cfg.PayTo == "" {
		cfg.PayTo = testPayTo
	}
	if cfg.Price == "" {
		cfg.Price = "1000000"
	}

	r := &rig{
		mem:    channel.NewMemory(),
		escrow: custody.NewEscrow(),
		events: &eventLog{},
	}
	r.emu = peripheral.New(r.mem, cfg)

	base := []Option{
		WithFragmentDelay(0),
		WithCommandDelay(0),
		WithTickInterval(5 * time.Millisecond),
		WithEscrow(r.escrow),
		WithPaymentCallback(r.events.record),
	}
	r.session = New(r.mem, testKeys(), append(base, opts...)...)

	t.Cleanup(func() {
		_ = r.session.Close()
		r.emu.Stop()
	})
	return r
}

func (r *rig) announce(t *testing.T) {
	t.Helper()
	r.emu.Announce()
	require.Eventually(t, func() bool {
		return r.session.Models().Requirement() != nil
	}, waitFor, time.Millisecond)
}

func (r *rig) provision(t *testing.T) {
	t.Helper()
	require.NoError(t, r.session.RequestMetadata(context.Background()))
	require.Eventually(t, func() bool {
		return r.session.Models().Snapshot().Options != nil
	}, waitFor, time.Millisecond)
}

func (r *rig) paymentWrites() int {
	n := 0
	for _, w := range r.mem.Writes() {
		if strings.HasPrefix(string(w), "X-PAYMENT") {
			n++
		}
	}
	return n
}

func pay() PayRequest {
	return PayRequest{PIN: testPIN, WalletID: testWallet}
}

func TestRequestMetadata(t *testing.T) {
	r := newRig(t, peripheral.Config{
		Logo:               "https://example.com/logo.png",
		Banner:             "https://example.com/banner.png",
		Description:        "Espresso bar",
		Frequency:          30,
		Options:            []string{"Latte", "Mocha"},
		AllowCustomContent: true,
	})

	r.provision(t)

	require.Eventually(t, func() bool {
		return r.session.Models().Snapshot().Logo != ""
	}, waitFor, time.Millisecond)

	meta := r.session.Models().Snapshot()
	assert.Equal(t, x402.DeviceMetadata{
		Logo:               "https://example.com/logo.png",
		Banner:             "https://example.com/banner.png",
		Description:        "Espresso bar",
		Frequency:          30,
		Options:            []string{"Latte", "Mocha"},
		AllowCustomContent: true,
	}, meta)

	var sent []string
	for _, w := range r.mem.Writes() {
		sent = append(sent, string(w))
	}
	assert.Equal(t, MetadataCommands, sent)
	assert.Equal(t, Idle, r.session.Phase())
}

func TestPayDiscoversPriceThenSettles(t *testing.T) {
	r := newRig(t, peripheral.Config{Options: []string{"Latte", "Mocha"}, AllowCustomContent: true})
	r.provision(t)
	assert.Nil(t, r.session.Models().Requirement())

	req := pay()
	req.Options = []string{"Latte"}
	req.Context = "extra hot"

	a, err := r.session.Pay(context.Background(), req)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	result, err := a.Wait(ctx)
	require.NoError(t, err)

	assert.True(t, result.Verified)
	assert.True(t, strings.HasPrefix(result.Transaction, "0x"))
	assert.Equal(t, Settled, r.session.Phase())

	assert.Equal(t, []string{"extra hot--[Latte]"}, r.emu.PriceRequests())

	payments := r.emu.Payments()
	require.Len(t, payments, 1)
	assert.True(t, payments[0].Verified, payments[0].Reason)
	assert.Equal(t, "extra hot", payments[0].Context)
	assert.Equal(t, []string{"Latte"}, payments[0].Options)
	assert.Equal(t, testAddress, payments[0].Payload.Payload.Authorization.From)
	assert.Equal(t, result.Transaction, payments[0].Transaction)

	assert.Equal(t, []x402.PaymentEventType{x402.PaymentEventAttempt, x402.PaymentEventSuccess}, r.events.types())
}

func TestPayEmptySelectionSerialization(t *testing.T) {
	r := newRig(t, peripheral.Config{})

	a, err := r.session.Pay(context.Background(), pay())
	require.NoError(t, err)
	_, err = a.Wait(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{`""--[]`}, r.emu.PriceRequests())

	var first string
	for _, w := range r.mem.Writes() {
		if strings.HasPrefix(string(w), "X-PAYMENT:START") {
			first = string(w)
		}
	}
	assert.True(t, strings.HasPrefix(first, `X-PAYMENT:START{"x402Version":1`), first)
}

func TestPayWrongPIN(t *testing.T) {
	r := newRig(t, peripheral.Config{})
	r.announce(t)
	require.Equal(t, RequirementsKnown, r.session.Phase())

	req := pay()
	req.PIN = "0000"
	a, err := r.session.Pay(context.Background(), req)

	assert.Nil(t, a)
	assert.ErrorIs(t, err, x402.ErrAuthFailed)
	assert.Equal(t, x402.ErrCodeAuthFailed, x402.CodeOf(err))
	assert.Equal(t, RequirementsKnown, r.session.Phase())
	assert.Zero(t, r.paymentWrites())
	assert.Empty(t, r.events.types())

	// The user can try again.
	a, err = r.session.Pay(context.Background(), pay())
	require.NoError(t, err)
	_, err = a.Wait(context.Background())
	assert.NoError(t, err)
}

func TestPayUnsupportedNetworkWritesNothing(t *testing.T) {
	r := newRig(t, peripheral.Config{})

	r.session.Models().Apply(notify.Event{
		Kind: notify.KindRequirements,
		Requirement: &x402.PaymentRequirement{
			Scheme:            x402.SchemeExact,
			Network:           "unknown-chain",
			MaxAmountRequired: "1000000",
			PayTo:             testPayTo,
		},
	})
	before := len(r.mem.Writes())

	_, err := r.session.Pay(context.Background(), pay())
	assert.ErrorIs(t, err, x402.ErrUnsupportedNetwork)
	assert.ErrorIs(t, err, x402.ErrPaymentBuildFailed)
	assert.Equal(t, Failed, r.session.Phase())
	assert.Len(t, r.mem.Writes(), before)
	assert.Equal(t, []x402.PaymentEventType{x402.PaymentEventFailure}, r.events.types())
}

func TestPaySignerFailureIsTerminal(t *testing.T) {
	r := newRig(t, peripheral.Config{}, WithSignerFactory(func(*ecdsa.PrivateKey) (x402.Signer, error) {
		return nil, errors.New("secure element unavailable")
	}))
	r.announce(t)

	_, err := r.session.Pay(context.Background(), pay())
	assert.ErrorIs(t, err, x402.ErrPaymentBuildFailed)
	assert.ErrorIs(t, err, x402.ErrSigningFailed)
	assert.Equal(t, Failed, r.session.Phase())
	assert.Zero(t, r.paymentWrites())
}

func TestPayRejectedSettlement(t *testing.T) {
	r := newRig(t, peripheral.Config{Reject: true})
	r.announce(t)

	a, err := r.session.Pay(context.Background(), pay())
	require.NoError(t, err)

	result, err := a.Wait(context.Background())
	assert.ErrorIs(t, err, x402.ErrSettlementRejected)
	require.NotNil(t, result)
	assert.False(t, result.Verified)
	assert.Empty(t, result.Transaction)
	assert.Equal(t, Failed, r.session.Phase())
	assert.Equal(t, []x402.PaymentEventType{x402.PaymentEventAttempt, x402.PaymentEventFailure}, r.events.types())
}

func TestPayVerifiedWithoutTransaction(t *testing.T) {
	r := newRig(t, peripheral.Config{OmitTransaction: true})
	r.announce(t)

	a, err := r.session.Pay(context.Background(), pay())
	require.NoError(t, err)
	result, err := a.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Verified)
	assert.Empty(t, result.Transaction)
	assert.Equal(t, Settled, r.session.Phase())
}

func TestPayWriteFailureReturnsToRequirementsKnown(t *testing.T) {
	r := newRig(t, peripheral.Config{})
	r.announce(t)

	r.mem.FailWrites(errors.New("gatt busy"))
	_, err := r.session.Pay(context.Background(), pay())
	assert.ErrorIs(t, err, x402.ErrChannelWriteFailed)
	assert.Equal(t, RequirementsKnown, r.session.Phase())

	r.mem.FailWrites(nil)
	a, err := r.session.Pay(context.Background(), pay())
	require.NoError(t, err)
	_, err = a.Wait(context.Background())
	assert.NoError(t, err)
}

func TestPayRetriesBusyLink(t *testing.T) {
	r := newRig(t, peripheral.Config{}, WithWriteRetry(retry.Policy{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		Multiplier:   1,
	}))
	r.announce(t)

	r.mem.FailNext(2, channel.ErrBusy)
	a, err := r.session.Pay(context.Background(), pay())
	require.NoError(t, err)
	result, err := a.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Verified)
}

func TestPayBusyLinkWithoutRetry(t *testing.T) {
	r := newRig(t, peripheral.Config{})
	r.announce(t)

	r.mem.FailNext(1, channel.ErrBusy)
	_, err := r.session.Pay(context.Background(), pay())
	assert.ErrorIs(t, err, x402.ErrChannelWriteFailed)
	assert.ErrorIs(t, err, channel.ErrBusy)
	assert.Equal(t, RequirementsKnown, r.session.Phase())
}

func TestUnsolicitedSettlementIgnored(t *testing.T) {
	r := newRig(t, peripheral.Config{})
	r.announce(t)

	r.mem.Notify([]byte("PAYMENT:COMPLETE VERIFIED:true TX:0xfeed"))
	assert.Equal(t, RequirementsKnown, r.session.Phase())
	assert.Empty(t, r.events.types())
}

func TestPayWhileInFlight(t *testing.T) {
	r := newRig(t, peripheral.Config{Silent: true}, WithSettlementTimeout(100*time.Millisecond))
	r.announce(t)

	a, err := r.session.Pay(context.Background(), pay())
	require.NoError(t, err)
	assert.Equal(t, AwaitingSettlement, r.session.Phase())
	assert.NotEmpty(t, r.session.Status().AttemptID)

	_, err = r.session.Pay(context.Background(), pay())
	assert.ErrorIs(t, err, x402.ErrAttemptInFlight)

	_, err = a.Wait(context.Background())
	assert.ErrorIs(t, err, x402.ErrSettlementTimeout)
	assert.Equal(t, Failed, r.session.Phase())
}

func TestPayWaitsForPriceUntilContextEnds(t *testing.T) {
	mem := channel.NewMemory()
	s := New(mem, testKeys(), WithFragmentDelay(0))
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := s.Pay(ctx, pay())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, Idle, s.Phase())
}

func TestPayUnsupportedAnnouncedNetworkFails(t *testing.T) {
	r := newRig(t, peripheral.Config{Network: "unknown-chain"})

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()

	start := time.Now()
	_, err := r.session.Pay(ctx, pay())
	require.Error(t, err)
	assert.ErrorIs(t, err, x402.ErrUnsupportedNetwork)
	assert.Equal(t, x402.ErrCodePaymentBuildFailed, x402.CodeOf(err))
	assert.Contains(t, err.Error(), "unknown-chain")
	assert.Less(t, time.Since(start), waitFor, "failure is reported without waiting for the deadline")

	assert.Equal(t, Failed, r.session.Phase())
	assert.Nil(t, r.session.Models().Requirement())
	assert.Len(t, r.emu.PriceRequests(), 1)
	assert.Zero(t, r.paymentWrites())

	// A later price request starts discovery afresh.
	_, err = r.session.Pay(ctx, pay())
	assert.ErrorIs(t, err, x402.ErrUnsupportedNetwork)
	assert.Len(t, r.emu.PriceRequests(), 2)
}

func TestSelectionValidation(t *testing.T) {
	r := newRig(t, peripheral.Config{Options: []string{"Latte", "Mocha"}})
	r.provision(t)

	req := pay()
	req.Options = []string{"Tea"}
	_, err := r.session.Pay(context.Background(), req)
	assert.ErrorIs(t, err, ErrUnknownOption)

	req = pay()
	req.Context = "no sugar"
	_, err = r.session.Pay(context.Background(), req)
	assert.ErrorIs(t, err, ErrCustomContentNotAllowed)

	assert.Empty(t, r.emu.PriceRequests())
}

func TestAutoPayArmsRecurring(t *testing.T) {
	r := newRig(t, peripheral.Config{Frequency: 2, Options: []string{"Water"}})
	r.provision(t)
	require.Eventually(t, func() bool {
		return r.session.Models().Snapshot().Frequency == 2
	}, waitFor, time.Millisecond)

	req := pay()
	req.AutoPay = true
	req.Options = []string{"Water"}
	a, err := r.session.Pay(context.Background(), req)
	require.NoError(t, err)
	_, err = a.Wait(context.Background())
	require.NoError(t, err)

	assert.Equal(t, RecurringArmed, r.session.Phase())
	assert.Equal(t, 1, r.escrow.Len())
	st := r.session.Status()
	assert.True(t, st.Recurring)
	assert.Equal(t, 2, st.Cadence)

	_, err = r.session.Pay(context.Background(), pay())
	assert.ErrorIs(t, err, x402.ErrRecurringActive)

	require.Eventually(t, func() bool {
		return len(r.emu.Payments()) >= 3
	}, waitFor, time.Millisecond)

	assert.True(t, r.session.CancelRecurring())
	assert.Zero(t, r.escrow.Len(), "cancel erases the escrowed key")
	assert.False(t, r.session.CancelRecurring())

	for _, p := range r.emu.Payments() {
		assert.True(t, p.Verified, p.Reason)
		assert.Equal(t, []string{"Water"}, p.Options)
	}
}

func TestCancelRecurringDuringAttempt(t *testing.T) {
	cfg := peripheral.Config{
		Network:   "base-sepolia",
		PayTo:     testPayTo,
		Price:     "1000000",
		Frequency: 1,
		Options:   []string{"Water"},
	}
	r := newRig(t, cfg)
	r.provision(t)
	require.Eventually(t, func() bool {
		return r.session.Models().Snapshot().Frequency == 1
	}, waitFor, time.Millisecond)

	req := pay()
	req.AutoPay = true
	a, err := r.session.Pay(context.Background(), req)
	require.NoError(t, err)
	_, err = a.Wait(context.Background())
	require.NoError(t, err)

	// Recurring payments from here on never settle.
	cfg.Silent = true
	r.emu.Configure(cfg)
	require.Eventually(t, func() bool {
		st := r.session.Status()
		return st.Phase == AwaitingSettlement && st.AttemptID != ""
	}, waitFor, time.Millisecond)

	assert.True(t, r.session.CancelRecurring())
	assert.Zero(t, r.escrow.Len())
	require.Eventually(t, func() bool {
		st := r.session.Status()
		return st.Phase == RequirementsKnown && st.AttemptID == ""
	}, waitFor, time.Millisecond)
	assert.False(t, r.session.Status().Recurring)
}

func TestAutoPayArmFailureLeavesSettled(t *testing.T) {
	r := newRig(t, peripheral.Config{Frequency: 3, Options: []string{"Water"}}, WithTickInterval(0))
	r.provision(t)
	require.Eventually(t, func() bool {
		return r.session.Models().Snapshot().Frequency == 3
	}, waitFor, time.Millisecond)

	req := pay()
	req.AutoPay = true
	a, err := r.session.Pay(context.Background(), req)
	require.NoError(t, err)
	_, err = a.Wait(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Settled, r.session.Phase())
	assert.False(t, r.session.Status().Recurring)
	assert.Zero(t, r.escrow.Len())
	assert.False(t, r.session.CancelRecurring())
}

func TestAutoPayWithoutCadenceDoesNotEscrow(t *testing.T) {
	r := newRig(t, peripheral.Config{Options: []string{"Water"}})
	r.provision(t)

	req := pay()
	req.AutoPay = true
	a, err := r.session.Pay(context.Background(), req)
	require.NoError(t, err)
	_, err = a.Wait(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Settled, r.session.Phase())
	assert.Zero(t, r.escrow.Len())
	assert.False(t, r.session.Status().Recurring)
}

func TestAutoPayRejectedErasesEscrow(t *testing.T) {
	r := newRig(t, peripheral.Config{Frequency: 5, Reject: true, Options: []string{"Water"}})
	r.provision(t)
	require.Eventually(t, func() bool {
		return r.session.Models().Snapshot().Frequency == 5
	}, waitFor, time.Millisecond)

	req := pay()
	req.AutoPay = true
	a, err := r.session.Pay(context.Background(), req)
	require.NoError(t, err)
	_, err = a.Wait(context.Background())
	assert.ErrorIs(t, err, x402.ErrSettlementRejected)

	assert.Zero(t, r.escrow.Len())
	assert.Equal(t, Failed, r.session.Phase())
}

func TestCloseTearsDown(t *testing.T) {
	r := newRig(t, peripheral.Config{Frequency: 60, Options: []string{"Water"}})
	r.provision(t)
	require.Eventually(t, func() bool {
		return r.session.Models().Snapshot().Frequency == 60
	}, waitFor, time.Millisecond)

	req := pay()
	req.AutoPay = true
	a, err := r.session.Pay(context.Background(), req)
	require.NoError(t, err)
	_, err = a.Wait(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, r.escrow.Len())

	require.NoError(t, r.session.Close())
	assert.Zero(t, r.escrow.Len())
	assert.True(t, r.mem.Closed())
	assert.Equal(t, Idle, r.session.Phase())
	assert.Nil(t, r.session.Models().Requirement())

	require.NoError(t, r.session.Close())
	_, err = r.session.Pay(context.Background(), pay())
	assert.ErrorIs(t, err, x402.ErrSessionClosed)
}

func TestCloseResolvesInFlightAttempt(t *testing.T) {
	r := newRig(t, peripheral.Config{Silent: true})
	r.announce(t)

	a, err := r.session.Pay(context.Background(), pay())
	require.NoError(t, err)

	require.NoError(t, r.session.Close())
	_, err = a.Wait(context.Background())
	assert.ErrorIs(t, err, x402.ErrSessionClosed)
}

func TestSelectionString(t *testing.T) {
	tests := []struct {
		sel  Selection
		want string
	}{
		{Selection{}, `""--[]`},
		{Selection{Options: []string{"A"}}, `""--[A]`},
		{Selection{Options: []string{"A", "B"}, Context: "note"}, `note--[A,B]`},
		{Selection{Context: "hi"}, `hi--[]`},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.sel.String())
		})
	}
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "awaiting_settlement", AwaitingSettlement.String())
	assert.Equal(t, "recurring_armed", RecurringArmed.String())
	assert.True(t, Transmitting.InFlight())
	assert.False(t, Settled.InFlight())
}
