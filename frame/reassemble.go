package frame

import (
	"errors"
	"strings"
)

// ErrOrphanFragment is returned for a MIDDLE or END fragment that arrives
// without a preceding START.
var ErrOrphanFragment = errors.New("frame: fragment without START")

// Reassembler is the receiving half of the framing: it concatenates fragment
// bodies between START and END. It mirrors what the peripheral firmware does
// and exists for emulation and tests; the client never decodes frames.
//
// A new START discards any incomplete message, so a transmission cut short
// by a cancelled sender never leaks into the next message.
type Reassembler struct {
	tags   []Tag
	active *Tag
	buf    strings.Builder
}

// NewReassembler accepts fragments for the given tags (Price and Payment when
// none are given).
func NewReassembler(tags ...Tag) *Reassembler {
	if len(tags) == 0 {
		tags = []Tag{Payment, Price}
	}
	return &Reassembler{tags: tags}
}

// Message is a reassembled logical message.
type Message struct {
	Tag  Tag
	Body string
}

// Feed consumes one written fragment. framed reports whether data carried a
// known tag at all; msg is non-nil once an END closes a message.
func (r *Reassembler) Feed(data []byte) (msg *Message, framed bool, err error) {
	text := string(data)
	tag, kind, body, ok := r.match(text)
	if !ok {
		return nil, false, nil
	}

	switch kind {
	case Start:
		r.active = &tag
		r.buf.Reset()
		r.buf.WriteString(body)
		return nil, true, nil
	case Middle:
		if r.active == nil || r.active.Name != tag.Name {
			return nil, true, ErrOrphanFragment
		}
		r.buf.WriteString(body)
		return nil, true, nil
	default:
		if r.active == nil || r.active.Name != tag.Name {
			return nil, true, ErrOrphanFragment
		}
		r.buf.WriteString(body)
		out := &Message{Tag: tag, Body: r.buf.String()}
		r.Reset()
		return out, true, nil
	}
}

// Pending reports whether a message has started but not ended.
func (r *Reassembler) Pending() bool {
	return r.active != nil
}

// Reset drops any partial message.
func (r *Reassembler) Reset() {
	r.active = nil
	r.buf.Reset()
}

// match picks the most specific prefix: START and END before the bare middle tag.
func (r *Reassembler) match(text string) (Tag, Kind, string, bool) {
	for _, tag := range r.tags {
		for _, kind := range []Kind{Start, End, Middle} {
			prefix := tag.Prefix(kind)
			if strings.HasPrefix(text, prefix) {
				return tag, kind, text[len(prefix):], true
			}
		}
	}
	return Tag{}, 0, "", false
}

// Decode reassembles a complete fragment sequence in one call.
func Decode(tag Tag, fragments [][]byte) (string, error) {
	r := NewReassembler(tag)
	for _, f := range fragments {
		msg, framed, err := r.Feed(f)
		if err != nil {
			return "", err
		}
		if !framed {
			return "", errors.New("frame: untagged fragment")
		}
		if msg != nil {
			return msg.Body, nil
		}
	}
	return "", errors.New("frame: missing END")
}
