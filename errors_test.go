package x402

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorDefinitions(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"UnsupportedNetwork", ErrUnsupportedNetwork, "x402: unsupported network"},
		{"SigningFailed", ErrSigningFailed, "x402: payment signing failed"},
		{"PaymentBuildFailed", ErrPaymentBuildFailed, "x402: payment build failed"},
		{"AuthFailed", ErrAuthFailed, "x402: wallet authentication failed"},
		{"ChannelWriteFailed", ErrChannelWriteFailed, "x402: channel write failed"},
		{"MalformedNotification", ErrMalformedNotification, "x402: malformed notification"},
		{"InvalidChunkSize", ErrInvalidChunkSize, "x402: chunk size must be positive"},
		{"AttemptInFlight", ErrAttemptInFlight, "x402: payment attempt already in flight"},
		{"EscrowNotFound", ErrEscrowNotFound, "x402: escrowed key not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Error() != tt.want {
				t.Errorf("Error message mismatch: got %q, want %q", tt.err.Error(), tt.want)
			}
		})
	}
}

func TestPaymentError_Creation(t *testing.T) {
	cause := errors.New("boom")
	pe := NewPaymentError(ErrCodeSigningFailed, "failed to sign", cause)

	if pe.Code != ErrCodeSigningFailed {
		t.Errorf("Code = %v, want %v", pe.Code, ErrCodeSigningFailed)
	}
	if pe.Err != cause {
		t.Errorf("Err = %v, want %v", pe.Err, cause)
	}
	if pe.Details == nil {
		t.Error("Details map should be initialized")
	}
	if !strings.Contains(pe.Error(), "failed to sign") || !strings.Contains(pe.Error(), "boom") {
		t.Errorf("Error() = %q, want message and cause", pe.Error())
	}
}

func TestPaymentError_WithDetails(t *testing.T) {
	pe := NewPaymentError(ErrCodeChannelWriteFailed, "write failed", nil).
		WithDetails("fragment", 2).
		WithDetails("total", 5)

	if len(pe.Details) != 2 {
		t.Fatalf("Details length = %d, want 2", len(pe.Details))
	}
	if pe.Details["fragment"] != 2 {
		t.Errorf("Details[fragment] = %v, want 2", pe.Details["fragment"])
	}
}

func TestPaymentError_ErrorWrapping(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		target      error
		shouldMatch bool
	}{
		{
			name:        "code sentinel",
			err:         NewPaymentError(ErrCodePaymentBuildFailed, "build", nil),
			target:      ErrPaymentBuildFailed,
			shouldMatch: true,
		},
		{
			name:        "wrapped cause sentinel",
			err:         NewPaymentError(ErrCodePaymentBuildFailed, "build", fmt.Errorf("%w: base-x", ErrUnsupportedNetwork)),
			target:      ErrUnsupportedNetwork,
			shouldMatch: true,
		},
		{
			name:        "different sentinel",
			err:         NewPaymentError(ErrCodePaymentBuildFailed, "build", ErrSigningFailed),
			target:      ErrUnsupportedNetwork,
			shouldMatch: false,
		},
		{
			name:        "wrapped in fmt error",
			err:         fmt.Errorf("attempt: %w", NewPaymentError(ErrCodeAuthFailed, "pin", nil)),
			target:      ErrAuthFailed,
			shouldMatch: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errors.Is(tt.err, tt.target); got != tt.shouldMatch {
				t.Errorf("errors.Is() = %v, want %v", got, tt.shouldMatch)
			}
		})
	}
}

func TestCodeOf(t *testing.T) {
	err := fmt.Errorf("outer: %w", NewPaymentError(ErrCodeSigningFailed, "x", nil))
	if got := CodeOf(err); got != ErrCodeSigningFailed {
		t.Errorf("CodeOf = %q, want %q", got, ErrCodeSigningFailed)
	}
	if got := CodeOf(errors.New("plain")); got != "" {
		t.Errorf("CodeOf(plain) = %q, want empty", got)
	}
}
