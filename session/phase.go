package session

// Phase is the payment session's position in the state machine.
type Phase int

const (
	Idle Phase = iota
	PriceUnknown
	RequirementsKnown
	Authenticating
	Building
	Transmitting
	AwaitingSettlement
	Settled
	Failed
	RecurringArmed
)

func (p Phase) String() string {
	switch p {
	case Idle:
		return "idle"
	case PriceUnknown:
		return "price_unknown"
	case RequirementsKnown:
		return "requirements_known"
	case Authenticating:
		return "authenticating"
	case Building:
		return "building"
	case Transmitting:
		return "transmitting"
	case AwaitingSettlement:
		return "awaiting_settlement"
	case Settled:
		return "settled"
	case Failed:
		return "failed"
	case RecurringArmed:
		return "recurring_armed"
	default:
		return "unknown"
	}
}

// InFlight reports whether an attempt occupies the session.
func (p Phase) InFlight() bool {
	switch p {
	case Authenticating, Building, Transmitting, AwaitingSettlement:
		return true
	}
	return false
}

// MarshalText renders the phase name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}
