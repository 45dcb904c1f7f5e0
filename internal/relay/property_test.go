package relay

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/chadiek/call-relay/internal/wire"
)

// relayModel mirrors the session bookkeeping the coordinator must maintain.
type relayModel struct {
	latest   int64
	marks    int
	start    int64
	startSet bool
	item     string
}

func mustJSON(rt *rapid.T, v any) []byte {
	b, err := json.Marshal(v)
	require.NoError(rt, err)
	return b
}

func TestProperty_SessionBookkeeping(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		c, tel, ai := newTestCoordinator()
		c.handleTelephony([]byte(`{"event":"start","start":{"streamSid":"MZ1"}}`))
		var m relayModel

		steps := rapid.IntRange(1, 60).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			switch op := rapid.IntRange(0, 4).Draw(rt, fmt.Sprintf("op_%d", i)); op {
			case 0:
				ts := rapid.Int64Range(0, 1_000_000).Draw(rt, fmt.Sprintf("ts_%d", i))
				asString := rapid.Bool().Draw(rt, fmt.Sprintf("str_%d", i))
				var stamp any = ts
				if asString {
					stamp = fmt.Sprint(ts)
				}
				c.handleTelephony(mustJSON(rt, map[string]any{
					"event": "media",
					"media": map[string]any{"payload": "AA==", "timestamp": stamp},
				}))
				m.latest = ts
			case 1:
				ev := map[string]any{"type": wire.TypeAudioDelta, "delta": "Zm9v"}
				if rapid.Bool().Draw(rt, fmt.Sprintf("item_%d", i)) {
					ev["item_id"] = fmt.Sprintf("item_%d", i)
					m.item = fmt.Sprintf("item_%d", i)
				}
				c.handleAI(mustJSON(rt, ev))
				m.marks++
				if !m.startSet {
					m.start, m.startSet = m.latest, true
				}
			case 2:
				c.handleTelephony([]byte(`{"event":"mark","mark":{"name":"responsePart"}}`))
				if m.marks > 0 {
					m.marks--
				}
			case 3:
				aiBefore, telBefore := len(ai.messages()), len(tel.messages())
				c.handleAI([]byte(`{"type":"input_audio_buffer.speech_started"}`))
				aiSent, telSent := ai.messages()[aiBefore:], tel.messages()[telBefore:]
				if m.marks == 0 || !m.startSet {
					require.Empty(rt, aiSent)
					require.Empty(rt, telSent)
					break
				}
				if m.item != "" {
					require.Len(rt, aiSent, 1)
					tr := aiSent[0].(wire.ItemTruncate)
					require.Equal(rt, m.item, tr.ItemID)
					require.Equal(rt, m.latest-m.start, tr.AudioEndMs)
				} else {
					require.Empty(rt, aiSent)
				}
				require.Len(rt, telSent, 1)
				require.Equal(rt, wire.EventClear, telSent[0].(wire.TwilioMessage).Event)
				m.marks, m.item, m.startSet, m.start = 0, "", false, 0
			case 4:
				c.handleTelephony([]byte(`{"event":"start","start":{"streamSid":"MZ1"}}`))
				m.latest, m.startSet, m.start = 0, false, 0
			}

			require.Equal(rt, m.latest, c.state.LatestMediaTimestamp)
			require.Equal(rt, m.marks, c.state.Marks.Len())
			require.Equal(rt, m.item, c.state.LastAssistantItem)
			start, ok := c.state.ResponseStart()
			require.Equal(rt, m.startSet, ok)
			if ok {
				require.Equal(rt, m.start, start)
			}
		}
	})
}

func TestProperty_PayloadPassThrough(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		c, tel, ai := newTestCoordinator()
		c.handleTelephony([]byte(`{"event":"start","start":{"streamSid":"MZ1"}}`))
		audio := base64.StdEncoding.EncodeToString(rapid.SliceOfN(rapid.Byte(), 1, 256).Draw(rt, "audio"))

		c.handleTelephony(mustJSON(rt, map[string]any{"event": "media", "media": map[string]any{"payload": audio, "timestamp": 1}}))
		require.Equal(rt, audio, ai.messages()[0].(wire.AudioAppend).Audio)

		c.handleAI(mustJSON(rt, map[string]any{"type": wire.TypeAudioDelta, "delta": audio}))
		require.Equal(rt, audio, tel.messages()[0].(wire.TwilioMessage).Media.Payload)
	})
}
