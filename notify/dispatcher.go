package notify

import (
	"sync"

	"github.com/rs/zerolog"
)

// Handler receives every classified, applied event.
type Handler func(Event)

// RejectHandler receives notifications that carried a recognized prefix but
// could not be applied, with the classification error.
type RejectHandler func(kind Kind, err error)

// Dispatcher is the channel's notification callback: it classifies each
// inbound notification, applies it to State and fans it out to subscribers.
// Malformed notifications are logged and dropped.
type Dispatcher struct {
	state  *State
	logger zerolog.Logger

	mu       sync.RWMutex
	handlers []Handler
	rejects  []RejectHandler
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a dispatcher that updates state.
func NewDispatcher(state *State, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		state:  state,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// State returns the models the dispatcher updates.
func (d *Dispatcher) State() *State {
	return d.state
}

// Subscribe registers a handler. Handlers run synchronously on the
// notification callback and must not block.
func (d *Dispatcher) Subscribe(h Handler) {
	d.mu.Lock()
	d.handlers = append(d.handlers, h)
	d.mu.Unlock()
}

// OnReject registers a handler for notifications dropped by Classify.
func (d *Dispatcher) OnReject(h RejectHandler) {
	d.mu.Lock()
	d.rejects = append(d.rejects, h)
	d.mu.Unlock()
}

// Handle processes one notification payload (UTF-8 text).
func (d *Dispatcher) Handle(data []byte) {
	text := string(data)

	ev, err := Classify(text)
	if err != nil {
		kind := KindOf(text)
		d.logger.Warn().Err(err).Stringer("kind", kind).Int("bytes", len(data)).Msg("dropping notification")

		d.mu.RLock()
		rejects := append([]RejectHandler(nil), d.rejects...)
		d.mu.RUnlock()
		for _, h := range rejects {
			h(kind, err)
		}
		return
	}
	if ev.Kind == KindIgnored {
		d.logger.Debug().Int("bytes", len(data)).Msg("ignoring unrecognized notification")
		return
	}

	d.state.Apply(ev)
	d.logger.Debug().Stringer("kind", ev.Kind).Msg("notification applied")

	d.mu.RLock()
	handlers := append([]Handler(nil), d.handlers...)
	d.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}
