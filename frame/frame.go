// Package frame implements the send-side chunked framing used over the
// peripheral's byte channel.
//
// A logical message is split into fragments tagged START, MIDDLE and END. Each
// fragment is written as an ASCII tag prefix followed by raw UTF-8 payload
// bytes. There is no length prefix, sequence number or checksum: the receiver
// infers boundaries solely from the START and END tags, so every message has at
// least two fragments.
package frame

import (
	"fmt"
	"unicode/utf8"

	"github.com/x4pay/x402-ble-go"
)

// DefaultChunkSize is the payload size per fragment, in bytes.
const DefaultChunkSize = 150

// Kind is the position of a fragment within its message.
type Kind int

const (
	Start Kind = iota
	Middle
	End
)

func (k Kind) String() string {
	switch k {
	case Start:
		return "START"
	case Middle:
		return "MIDDLE"
	case End:
		return "END"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Tag is the wire prefix set for one message family.
type Tag struct {
	Name   string
	start  string
	middle string
	end    string
}

var (
	// Price tags a price request: "[PRICE]:START", "[PRICE]:", "[PRICE]:END".
	Price = Tag{Name: "[PRICE]", start: "[PRICE]:START", middle: "[PRICE]:", end: "[PRICE]:END"}

	// Payment tags a signed payment: "X-PAYMENT:START", "X-PAYMENT", "X-PAYMENT:END".
	Payment = Tag{Name: "X-PAYMENT", start: "X-PAYMENT:START", middle: "X-PAYMENT", end: "X-PAYMENT:END"}
)

// Prefix returns the wire prefix for a fragment kind.
func (t Tag) Prefix(k Kind) string {
	switch k {
	case Start:
		return t.start
	case End:
		return t.end
	default:
		return t.middle
	}
}

// Fragment is one bounded piece of a logical message.
type Fragment struct {
	Kind Kind
	Body string
}

// Bytes renders the fragment for the wire under the given tag.
func (f Fragment) Bytes(tag Tag) []byte {
	prefix := tag.Prefix(f.Kind)
	out := make([]byte, 0, len(prefix)+len(f.Body))
	out = append(out, prefix...)
	return append(out, f.Body...)
}

// Encode splits payload into fragments of at most maxChunk bytes.
//
// A payload that fits in one chunk is still bisected at ceil(len/2) into a
// START and an END fragment; the firmware only closes a message on END. Chunk
// boundaries never split a UTF-8 sequence unless a single rune is larger than
// maxChunk.
func Encode(payload string, maxChunk int) ([]Fragment, error) {
	if maxChunk <= 0 {
		return nil, fmt.Errorf("%w: %d", x402.ErrInvalidChunkSize, maxChunk)
	}

	var chunks []string
	if len(payload) > maxChunk {
		chunks = split(payload, maxChunk)
	}
	if len(chunks) < 2 {
		return bisect(payload), nil
	}

	fragments := make([]Fragment, len(chunks))
	for i, chunk := range chunks {
		kind := Middle
		switch i {
		case 0:
			kind = Start
		case len(chunks) - 1:
			kind = End
		}
		fragments[i] = Fragment{Kind: kind, Body: chunk}
	}
	return fragments, nil
}

// EncodeBytes encodes payload and renders every fragment under tag.
func EncodeBytes(tag Tag, payload string, maxChunk int) ([][]byte, error) {
	fragments, err := Encode(payload, maxChunk)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(fragments))
	for i, f := range fragments {
		out[i] = f.Bytes(tag)
	}
	return out, nil
}

func bisect(payload string) []Fragment {
	mid := (len(payload) + 1) / 2
	for mid > 0 && mid < len(payload) && !utf8.RuneStart(payload[mid]) {
		mid--
	}
	return []Fragment{
		{Kind: Start, Body: payload[:mid]},
		{Kind: End, Body: payload[mid:]},
	}
}

func split(s string, size int) []string {
	chunks := make([]string, 0, (len(s)+size-1)/size)
	for len(s) > 0 {
		n := size
		if n >= len(s) {
			chunks = append(chunks, s)
			break
		}
		for n > 0 && !utf8.RuneStart(s[n]) {
			n--
		}
		if n == 0 {
			// a single rune wider than size
			_, width := utf8.DecodeRuneInString(s)
			n = width
		}
		chunks = append(chunks, s[:n])
		s = s[n:]
	}
	return chunks
}
