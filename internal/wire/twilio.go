package wire

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Twilio Media Streams event names.
const (
	EventStart = "start"
	EventMedia = "media"
	EventMark  = "mark"
	EventClear = "clear"
	EventStop  = "stop"
)

// MarkResponsePart is the only marker name the relay emits.
const MarkResponsePart = "responsePart"

// TwilioMessage is one Media Streams websocket frame in either direction.
type TwilioMessage struct {
	Event     string       `json:"event"`
	StreamSID string       `json:"streamSid,omitempty"`
	Start     *TwilioStart `json:"start,omitempty"`
	Media     *TwilioMedia `json:"media,omitempty"`
	Mark      *TwilioMark  `json:"mark,omitempty"`
}

type TwilioStart struct {
	StreamSID        string            `json:"streamSid"`
	CallSID          string            `json:"callSid,omitempty"`
	AccountSID       string            `json:"accountSid,omitempty"`
	CustomParameters map[string]string `json:"customParameters,omitempty"`
}

type TwilioMedia struct {
	Track     string `json:"track,omitempty"`
	Chunk     string `json:"chunk,omitempty"`
	Timestamp Millis `json:"timestamp,omitempty"`
	Payload   string `json:"payload"` // base64 audio, passed through untouched
}

type TwilioMark struct {
	Name string `json:"name"`
}

// Millis is a millisecond timestamp. Twilio sends it as a decimal string,
// other emitters as a number; both decode. Fractions are truncated.
type Millis int64

func (m *Millis) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == `""` {
		*m = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		*m = Millis(v)
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f >= math.MaxInt64 || f < math.MinInt64 {
		return fmt.Errorf("invalid timestamp %q: out of range", s)
	}
	*m = Millis(int64(f))
	return nil
}

// DecodeTwilio parses a raw telephony frame.
func DecodeTwilio(raw []byte) (TwilioMessage, error) {
	var msg TwilioMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return TwilioMessage{}, fmt.Errorf("decode twilio message: %w", err)
	}
	if msg.Event == "" {
		return TwilioMessage{}, fmt.Errorf("decode twilio message: missing event field")
	}
	switch msg.Event {
	case EventStart:
		if msg.Start == nil {
			return TwilioMessage{}, fmt.Errorf("decode twilio message: start event without start body")
		}
	case EventMedia:
		if msg.Media == nil {
			return TwilioMessage{}, fmt.Errorf("decode twilio message: media event without media body")
		}
	}
	return msg, nil
}

// Chunk converts an inbound media frame into the relay's audio representation.
func (m TwilioMessage) Chunk() AudioChunk {
	if m.Media == nil {
		return AudioChunk{Direction: CallerToAI}
	}
	return AudioChunk{Direction: CallerToAI, Payload: m.Media.Payload}
}

// MediaOut wraps an AI audio chunk for playback on the given stream.
func MediaOut(streamSID string, chunk AudioChunk) TwilioMessage {
	return TwilioMessage{Event: EventMedia, StreamSID: streamSID, Media: &TwilioMedia{Payload: chunk.Payload}}
}

// MarkOut asks Twilio to echo a mark once preceding audio has played.
func MarkOut(streamSID, name string) TwilioMessage {
	return TwilioMessage{Event: EventMark, StreamSID: streamSID, Mark: &TwilioMark{Name: name}}
}

// ClearOut drops any buffered, not yet played audio on the stream.
func ClearOut(streamSID string) TwilioMessage {
	return TwilioMessage{Event: EventClear, StreamSID: streamSID}
}
