// Package notify classifies inbound peripheral notifications and applies them
// to the device session's models.
package notify

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/x4pay/x402-ble-go"
)

// Kind identifies which model a notification updates.
type Kind int

const (
	KindIgnored Kind = iota
	KindRequirements
	KindLogo
	KindBanner
	KindDescription
	KindConfig
	KindOptions
	KindSettlement
)

func (k Kind) String() string {
	switch k {
	case KindRequirements:
		return "requirements"
	case KindLogo:
		return "logo"
	case KindBanner:
		return "banner"
	case KindDescription:
		return "description"
	case KindConfig:
		return "config"
	case KindOptions:
		return "options"
	case KindSettlement:
		return "settlement"
	default:
		return "ignored"
	}
}

// Notification prefixes.
const (
	PrefixRequirements = "402://"
	PrefixLogo         = "LOGO://"
	PrefixBanner       = "BANNER://"
	PrefixDescription  = "DESC://"
	PrefixConfig       = "CONFIG://"
	PrefixOptions      = "OPTIONS://"
	PrefixSettlement   = "PAYMENT:COMPLETE "
)

type route struct {
	prefix string
	kind   Kind
}

// routes is ordered longest prefix first so the most specific tag wins.
var routes = func() []route {
	r := []route{
		{PrefixRequirements, KindRequirements},
		{PrefixLogo, KindLogo},
		{PrefixBanner, KindBanner},
		{PrefixDescription, KindDescription},
		{PrefixConfig, KindConfig},
		{PrefixOptions, KindOptions},
		{PrefixSettlement, KindSettlement},
	}
	sort.SliceStable(r, func(i, j int) bool { return len(r[i].prefix) > len(r[j].prefix) })
	return r
}()

// KindOf returns the kind selected by text's prefix without parsing the body.
func KindOf(text string) Kind {
	for _, r := range routes {
		if strings.HasPrefix(text, r.prefix) {
			return r.kind
		}
	}
	return KindIgnored
}

// Config is the body of a CONFIG:// notification. Absent fields are nil.
type Config struct {
	Frequency          *int
	AllowCustomContent *bool
}

// Event is one classified notification.
type Event struct {
	Kind Kind

	// Requirement is set for KindRequirements.
	Requirement *x402.PaymentRequirement

	// Text is the raw payload for KindLogo, KindBanner and KindDescription.
	Text string

	// Config is set for KindConfig.
	Config *Config

	// Options is set for KindOptions, split verbatim on commas.
	Options []string

	// Settlement is set for KindSettlement.
	Settlement *x402.SettlementResult

	// Raw is the full decoded notification text.
	Raw string
}

// Classify maps decoded notification text to an event. Unknown prefixes yield
// KindIgnored and no error. A recognized prefix with an unparseable body
// returns an error wrapping x402.ErrMalformedNotification; an unknown network
// in a 402:// body returns an error wrapping x402.ErrUnsupportedNetwork.
func Classify(text string) (Event, error) {
	for _, r := range routes {
		if !strings.HasPrefix(text, r.prefix) {
			continue
		}
		body := text[len(r.prefix):]
		ev := Event{Kind: r.kind, Raw: text}

		switch r.kind {
		case KindRequirements:
			req, err := parseRequirements(body)
			if err != nil {
				return Event{Kind: KindIgnored, Raw: text}, err
			}
			ev.Requirement = req
		case KindLogo, KindBanner, KindDescription:
			ev.Text = body
		case KindConfig:
			cfg, err := parseConfig(body)
			if err != nil {
				return Event{Kind: KindIgnored, Raw: text}, err
			}
			ev.Config = cfg
		case KindOptions:
			// No escaping: a label containing a comma is split in two.
			ev.Options = strings.Split(body, ",")
		case KindSettlement:
			ev.Settlement = parseSettlement(body)
		}
		return ev, nil
	}
	return Event{Kind: KindIgnored, Raw: text}, nil
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

func parseRequirements(body string) (*x402.PaymentRequirement, error) {
	var announced struct {
		Network string     `json:"network"`
		PayTo   string     `json:"payTo"`
		Price   flexString `json:"price"`
	}
	if err := json.Unmarshal([]byte(body), &announced); err != nil {
		return nil, fmt.Errorf("%w: 402 body: %v", x402.ErrMalformedNotification, err)
	}

	req, err := x402.NewPaymentRequirement(announced.Network, announced.PayTo, string(announced.Price))
	if err != nil {
		if errors.Is(err, x402.ErrUnsupportedNetwork) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: 402 body: %v", x402.ErrMalformedNotification, err)
	}
	return &req, nil
}

func parseConfig(body string) (*Config, error) {
	// Firmware sends "allowCustomContent"; some app builds read "allowCustomtext".
	// Both spellings are accepted, the canonical one wins when both appear.
	var raw struct {
		Frequency          *flexString `json:"frequency"`
		AllowCustomContent *bool       `json:"allowCustomContent"`
		AllowCustomtext    *bool       `json:"allowCustomtext"`
	}
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return nil, fmt.Errorf("%w: config body: %v", x402.ErrMalformedNotification, err)
	}

	cfg := &Config{AllowCustomContent: raw.AllowCustomContent}
	if cfg.AllowCustomContent == nil {
		cfg.AllowCustomContent = raw.AllowCustomtext
	}
	if raw.Frequency != nil {
		n, err := strconv.Atoi(string(*raw.Frequency))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: frequency %q", x402.ErrMalformedNotification, string(*raw.Frequency))
		}
		cfg.Frequency = &n
	}
	return cfg, nil
}

// parseSettlement reads "VERIFIED:<bool>[ TX:<hash>]". Anything other than
// VERIFIED:true is a failure, and a failure never carries a hash.
func parseSettlement(body string) *x402.SettlementResult {
	result := &x402.SettlementResult{Status: body}
	for _, field := range strings.Fields(body) {
		switch {
		case field == "VERIFIED:true":
			result.Verified = true
		case strings.HasPrefix(field, "TX:"):
			result.Transaction = strings.TrimPrefix(field, "TX:")
		}
	}
	if !result.Verified {
		result.Transaction = ""
	}
	return result
}
