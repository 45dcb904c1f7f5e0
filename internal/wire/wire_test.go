package wire

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDecodeTwilio_Events(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"start", `{"event":"start","start":{"streamSid":"MZ1","callSid":"CA1"}}`, EventStart},
		{"media numeric ts", `{"event":"media","media":{"payload":"AAE=","timestamp":120}}`, EventMedia},
		{"media string ts", `{"event":"media","media":{"payload":"AAE=","timestamp":"120"}}`, EventMedia},
		{"media fractional string ts", `{"event":"media","media":{"payload":"AAE=","timestamp":"120.0"}}`, EventMedia},
		{"media fractional numeric ts", `{"event":"media","media":{"payload":"AAE=","timestamp":120.9}}`, EventMedia},
		{"mark", `{"event":"mark","mark":{"name":"responsePart"}}`, EventMark},
		{"unknown", `{"event":"connected","protocol":"Call"}`, "connected"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := DecodeTwilio([]byte(tc.raw))
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if msg.Event != tc.want {
				t.Fatalf("event: got %q want %q", msg.Event, tc.want)
			}
			if msg.Event == EventMedia && msg.Media.Timestamp != 120 {
				t.Fatalf("timestamp: got %d want 120", msg.Media.Timestamp)
			}
		})
	}
}

func TestDecodeTwilio_Malformed(t *testing.T) {
	for _, raw := range []string{
		"not-json",
		`{}`,
		`{"event":"start"}`,
		`{"event":"media"}`,
		`{"event":"media","media":{"payload":"x","timestamp":"abc"}}`,
		`{"event":"media","media":{"payload":"x","timestamp":"NaN"}}`,
		`{"event":"media","media":{"payload":"x","timestamp":1e300}}`,
	} {
		if _, err := DecodeTwilio([]byte(raw)); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestOutboundTwilioShapes(t *testing.T) {
	b, _ := json.Marshal(MarkOut("MZ1", MarkResponsePart))
	if string(b) != `{"event":"mark","streamSid":"MZ1","mark":{"name":"responsePart"}}` {
		t.Fatalf("mark: %s", b)
	}
	b, _ = json.Marshal(ClearOut("MZ1"))
	if string(b) != `{"event":"clear","streamSid":"MZ1"}` {
		t.Fatalf("clear: %s", b)
	}
	b, _ = json.Marshal(MediaOut("MZ1", AudioChunk{Payload: "//8="}))
	if string(b) != `{"event":"media","streamSid":"MZ1","media":{"payload":"//8="}}` {
		t.Fatalf("media: %s", b)
	}
}

func TestAudioDeltaPassThrough(t *testing.T) {
	// payload is deliberately not canonical base64; it must survive verbatim
	payload := "f39/f3+A+/8=="
	raw := `{"type":"response.audio.delta","delta":"` + payload + `","item_id":"item_1"}`
	ev, err := DecodeRealtime([]byte(raw))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	chunk := ev.Chunk()
	if chunk.Direction != AIToCaller || chunk.ItemID != "item_1" {
		t.Fatalf("unexpected chunk %+v", chunk)
	}
	b, _ := json.Marshal(MediaOut("MZ9", chunk))
	if !strings.Contains(string(b), `"payload":"`+payload+`"`) {
		t.Fatalf("payload altered: %s", b)
	}
}

func TestContentText(t *testing.T) {
	ev, _ := DecodeRealtime([]byte(`{"type":"response.content.done","content":"Hello"}`))
	if s, ok := ev.ContentText(); !ok || s != "Hello" {
		t.Fatalf("got %q %v", s, ok)
	}
	ev, _ = DecodeRealtime([]byte(`{"type":"response.done","content":[{"type":"text"}]}`))
	if _, ok := ev.ContentText(); ok {
		t.Fatalf("array content must not be textual")
	}
	ev, _ = DecodeRealtime([]byte(`{"type":"response.done"}`))
	if _, ok := ev.ContentText(); ok {
		t.Fatalf("missing content must not be textual")
	}
}

func TestDecodeRealtime_Malformed(t *testing.T) {
	if _, err := DecodeRealtime([]byte("{")); err == nil {
		t.Fatalf("expected error on truncated json")
	}
	if _, err := DecodeRealtime([]byte(`{"delta":"x"}`)); err == nil {
		t.Fatalf("expected error on missing type")
	}
}

func TestOutboundRealtimeShapes(t *testing.T) {
	b, _ := json.Marshal(TruncateOut("item_1", 3000))
	if string(b) != `{"type":"conversation.item.truncate","item_id":"item_1","content_index":0,"audio_end_ms":3000}` {
		t.Fatalf("truncate: %s", b)
	}
	b, _ = json.Marshal(AppendOut(AudioChunk{Payload: "AAE="}))
	if string(b) != `{"type":"input_audio_buffer.append","audio":"AAE="}` {
		t.Fatalf("append: %s", b)
	}
	up := NewSessionUpdate("alloy", "be nice", 0.8)
	b, _ = json.Marshal(up)
	var back map[string]any
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	sess := back["session"].(map[string]any)
	if sess["input_audio_format"] != "g711_ulaw" || sess["output_audio_format"] != "g711_ulaw" {
		t.Fatalf("formats: %v", sess)
	}
	if sess["turn_detection"].(map[string]any)["type"] != "server_vad" {
		t.Fatalf("turn detection: %v", sess["turn_detection"])
	}
	if sess["voice"] != "alloy" || sess["instructions"] != "be nice" || sess["temperature"] != 0.8 {
		t.Fatalf("session fields: %v", sess)
	}
}
