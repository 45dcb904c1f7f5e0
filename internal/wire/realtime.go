package wire

import (
	"encoding/json"
	"fmt"
)

// OpenAI Realtime event types the relay sends or reacts to.
const (
	TypeSessionUpdate       = "session.update"
	TypeInputAudioAppend    = "input_audio_buffer.append"
	TypeItemTruncate        = "conversation.item.truncate"
	TypeAudioDelta          = "response.audio.delta"
	TypeSpeechStarted       = "input_audio_buffer.speech_started"
	TypeResponseContent     = "response.content"
	TypeResponseContentDone = "response.content.done"
	TypeResponseDone        = "response.done"
)

// LoggedTypes are the inbound event types worth an info line per occurrence.
var LoggedTypes = map[string]struct{}{
	"error":                             {},
	TypeResponseContentDone:             {},
	"rate_limits.updated":               {},
	TypeResponseDone:                    {},
	"input_audio_buffer.committed":      {},
	"input_audio_buffer.speech_stopped": {},
	TypeSpeechStarted:                   {},
	"session.created":                   {},
}

// RealtimeEvent is the subset of an inbound Realtime event the relay reads.
// Content is kept raw because its shape varies by event type.
type RealtimeEvent struct {
	Type    string          `json:"type"`
	EventID string          `json:"event_id,omitempty"`
	Delta   string          `json:"delta,omitempty"`
	ItemID  string          `json:"item_id,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
}

// DecodeRealtime parses a raw AI-side frame.
func DecodeRealtime(raw []byte) (RealtimeEvent, error) {
	var ev RealtimeEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return RealtimeEvent{}, fmt.Errorf("decode realtime event: %w", err)
	}
	if ev.Type == "" {
		return RealtimeEvent{}, fmt.Errorf("decode realtime event: missing type field")
	}
	return ev, nil
}

// ContentText returns the content field when it is a JSON string.
func (e RealtimeEvent) ContentText() (string, bool) {
	if len(e.Content) == 0 || e.Content[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(e.Content, &s); err != nil {
		return "", false
	}
	return s, true
}

// Chunk converts an audio delta into the relay's audio representation.
func (e RealtimeEvent) Chunk() AudioChunk {
	return AudioChunk{Direction: AIToCaller, Payload: e.Delta, ItemID: e.ItemID}
}

// SessionConfig is the body of a session.update.
type SessionConfig struct {
	TurnDetection     TurnDetection `json:"turn_detection"`
	InputAudioFormat  string        `json:"input_audio_format"`
	OutputAudioFormat string        `json:"output_audio_format"`
	Voice             string        `json:"voice"`
	Instructions      string        `json:"instructions"`
	Modalities        []string      `json:"modalities"`
	Temperature       float64       `json:"temperature"`
}

type TurnDetection struct {
	Type string `json:"type"`
}

type SessionUpdate struct {
	Type    string        `json:"type"`
	Session SessionConfig `json:"session"`
}

// NewSessionUpdate builds the one-shot session configuration for a G.711 µ-law
// phone leg with server-side voice activity detection.
func NewSessionUpdate(voice, instructions string, temperature float64) SessionUpdate {
	return SessionUpdate{
		Type: TypeSessionUpdate,
		Session: SessionConfig{
			TurnDetection:     TurnDetection{Type: "server_vad"},
			InputAudioFormat:  "g711_ulaw",
			OutputAudioFormat: "g711_ulaw",
			Voice:             voice,
			Instructions:      instructions,
			Modalities:        []string{"text", "audio"},
			Temperature:       temperature,
		},
	}
}

type AudioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

// AppendOut forwards caller audio to the AI input buffer.
func AppendOut(chunk AudioChunk) AudioAppend {
	return AudioAppend{Type: TypeInputAudioAppend, Audio: chunk.Payload}
}

type ItemTruncate struct {
	Type         string `json:"type"`
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	AudioEndMs   int64  `json:"audio_end_ms"`
}

// TruncateOut tells the AI the caller only heard audioEndMs of an item.
func TruncateOut(itemID string, audioEndMs int64) ItemTruncate {
	return ItemTruncate{Type: TypeItemTruncate, ItemID: itemID, ContentIndex: 0, AudioEndMs: audioEndMs}
}
