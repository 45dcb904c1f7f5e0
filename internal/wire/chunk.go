// Package wire encodes and decodes the two websocket envelopes the relay
// speaks: Twilio Media Streams events and OpenAI Realtime events.
package wire

// Direction says which way an audio chunk travels.
type Direction int

const (
	CallerToAI Direction = iota
	AIToCaller
)

func (d Direction) String() string {
	switch d {
	case CallerToAI:
		return "caller->ai"
	case AIToCaller:
		return "ai->caller"
	default:
		return "unknown"
	}
}

// AudioChunk is an opaque audio payload in the wire codec. Payload stays
// base64 exactly as received so the bytes reach the other peer unchanged.
type AudioChunk struct {
	Direction Direction
	Payload   string
	ItemID    string
}
