package session

import "strings"

// Selection is what the user picked: option labels and free-text context.
type Selection struct {
	Options []string `json:"options"`
	Context string   `json:"context"`
}

// String serializes the selection as "<context>--[opt1,opt2]". An empty
// context is sent as a literal pair of double quotes.
func (s Selection) String() string {
	context := s.Context
	if context == "" {
		context = `""`
	}
	return context + "--[" + strings.Join(s.Options, ",") + "]"
}

// paymentMessage is the X-PAYMENT body: "<payload-json>--<context>--[opts]".
func paymentMessage(payloadJSON string, sel Selection) string {
	return payloadJSON + "--" + sel.String()
}

func (s Selection) clone() Selection {
	return Selection{
		Options: append([]string(nil), s.Options...),
		Context: s.Context,
	}
}
