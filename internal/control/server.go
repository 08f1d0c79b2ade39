// Package control exposes a payment session over a local HTTP API.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/x4pay/x402-ble-go"
	"github.com/x4pay/x402-ble-go/session"
)

// DefaultWaitTimeout bounds how long POST /pay?wait=true blocks.
const DefaultWaitTimeout = 3 * time.Minute

// PayRequest is the POST /pay body.
type PayRequest struct {
	PIN      string   `json:"pin"`
	WalletID string   `json:"walletId"`
	Options  []string `json:"options"`
	Context  string   `json:"context"`
	AutoPay  bool     `json:"autoPay"`
}

// PayResponse reports the attempt and, when waited on, its settlement.
type PayResponse struct {
	AttemptID  string                 `json:"attemptId"`
	Phase      session.Phase          `json:"phase"`
	Settlement *x402.SettlementResult `json:"settlement,omitempty"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string         `json:"error"`
	Code  x402.ErrorCode `json:"code,omitempty"`
}

// Server routes control requests to one session.
type Server struct {
	session       *session.Session
	defaultWallet string
	waitTimeout   time.Duration
	logger        zerolog.Logger
	router        chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithDefaultWallet is used when a pay request names no wallet.
func WithDefaultWallet(id string) Option {
	return func(s *Server) {
		s.defaultWallet = id
	}
}

// WithWaitTimeout bounds waiting for settlement.
func WithWaitTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.waitTimeout = d
	}
}

// NewServer builds the router for sess.
func NewServer(sess *session.Session, opts ...Option) *Server {
	s := &Server{
		session:     sess,
		waitTimeout: DefaultWaitTimeout,
		logger:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/device", s.handleDevice)
	r.Get("/session", s.handleSession)
	r.Post("/metadata", s.handleMetadata)
	r.Post("/price", s.handlePrice)
	r.Post("/pay", s.handlePay)
	r.Delete("/recurring", s.handleCancelRecurring)

	s.router = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Models().Snapshot())
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Status())
}

func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	if err := s.session.RequestMetadata(r.Context()); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	var sel session.Selection
	if !decode(w, r, &sel) {
		return
	}
	if err := s.session.RequestPrice(r.Context(), sel); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handlePay(w http.ResponseWriter, r *http.Request) {
	var body PayRequest
	if !decode(w, r, &body) {
		return
	}
	if body.WalletID == "" {
		body.WalletID = s.defaultWallet
	}

	attempt, err := s.session.Pay(r.Context(), session.PayRequest{
		PIN:      body.PIN,
		WalletID: body.WalletID,
		Options:  body.Options,
		Context:  body.Context,
		AutoPay:  body.AutoPay,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := PayResponse{AttemptID: attempt.ID}
	if r.URL.Query().Get("wait") != "true" {
		resp.Phase = s.session.Phase()
		writeJSON(w, http.StatusAccepted, resp)
		return
	}

	ctx := r.Context()
	if s.waitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.waitTimeout)
		defer cancel()
	}
	result, err := attempt.Wait(ctx)
	resp.Phase = s.session.Phase()
	resp.Settlement = result
	if err != nil {
		if result != nil {
			writeJSON(w, statusFor(err), resp)
			return
		}
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCancelRecurring(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"cancelled": s.session.CancelRecurring()})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("latency", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request processed")
	})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Int("status", status).Msg("control request failed")
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: x402.CodeOf(err)})
}

// statusFor maps session errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, x402.ErrAuthFailed):
		return http.StatusUnauthorized
	case errors.Is(err, session.ErrUnknownOption),
		errors.Is(err, session.ErrCustomContentNotAllowed):
		return http.StatusBadRequest
	case errors.Is(err, x402.ErrAttemptInFlight),
		errors.Is(err, x402.ErrRecurringActive):
		return http.StatusConflict
	case errors.Is(err, x402.ErrSettlementRejected):
		return http.StatusPaymentRequired
	case errors.Is(err, x402.ErrPaymentBuildFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, x402.ErrChannelWriteFailed),
		errors.Is(err, x402.ErrChannelClosed):
		return http.StatusBadGateway
	case errors.Is(err, x402.ErrSessionClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, x402.ErrSettlementTimeout),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
