package notify

import (
	"sync"

	"github.com/x4pay/x402-ble-go"
)

// State holds the models one device session builds from notifications:
// device metadata, the current payment requirement and the last settlement.
// It is safe for concurrent use.
type State struct {
	mu          sync.RWMutex
	meta        x402.DeviceMetadata
	requirement *x402.PaymentRequirement
	settlement  *x402.SettlementResult
}

// NewState returns an empty State.
func NewState() *State {
	return &State{}
}

// Apply mutates exactly the model the event targets. Re-applying the same
// event leaves the state unchanged.
func (s *State) Apply(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Kind {
	case KindRequirements:
		if ev.Requirement != nil {
			req := cloneRequirement(*ev.Requirement)
			s.requirement = &req
		}
	case KindLogo:
		s.meta.Logo = ev.Text
	case KindBanner:
		s.meta.Banner = ev.Text
	case KindDescription:
		s.meta.Description = ev.Text
	case KindConfig:
		if ev.Config == nil {
			return
		}
		if ev.Config.Frequency != nil {
			s.meta.Frequency = *ev.Config.Frequency
		}
		if ev.Config.AllowCustomContent != nil {
			s.meta.AllowCustomContent = *ev.Config.AllowCustomContent
		}
	case KindOptions:
		s.meta.Options = dedupe(ev.Options)
	case KindSettlement:
		if ev.Settlement != nil {
			result := *ev.Settlement
			s.settlement = &result
		}
	}
}

// Snapshot returns a copy of the device metadata.
func (s *State) Snapshot() x402.DeviceMetadata {
	s.mu.RLock()
	defer s.mu.RUnlock()

	meta := s.meta
	meta.Options = append([]string(nil), s.meta.Options...)
	return meta
}

// Requirement returns a copy of the current payment requirement, or nil.
func (s *State) Requirement() *x402.PaymentRequirement {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.requirement == nil {
		return nil
	}
	req := cloneRequirement(*s.requirement)
	return &req
}

// Settlement returns the last settlement result, or nil.
func (s *State) Settlement() *x402.SettlementResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.settlement == nil {
		return nil
	}
	result := *s.settlement
	return &result
}

// ClearRequirement forgets the current requirement so the next payment
// re-requests a price.
func (s *State) ClearRequirement() {
	s.mu.Lock()
	s.requirement = nil
	s.mu.Unlock()
}

// Reset drops everything; used on disconnect.
func (s *State) Reset() {
	s.mu.Lock()
	s.meta = x402.DeviceMetadata{}
	s.requirement = nil
	s.settlement = nil
	s.mu.Unlock()
}

func cloneRequirement(req x402.PaymentRequirement) x402.PaymentRequirement {
	if req.Extra != nil {
		extra := make(map[string]interface{}, len(req.Extra))
		for k, v := range req.Extra {
			extra[k] = v
		}
		req.Extra = extra
	}
	return req
}

// dedupe keeps the first occurrence of each label, in order.
func dedupe(options []string) []string {
	seen := make(map[string]struct{}, len(options))
	out := make([]string, 0, len(options))
	for _, o := range options {
		if _, ok := seen[o]; ok {
			continue
		}
		seen[o] = struct{}{}
		out = append(out, o)
	}
	return out
}
