package relay

import (
	"strings"

	"github.com/chadiek/call-relay/internal/wire"
)

// DefaultDisconnectPhrases end the call when they appear in AI response text.
var DefaultDisconnectPhrases = []string{"transfer", "account manager", "manager"}

var contentEventTypes = map[string]struct{}{
	wire.TypeResponseContentDone: {},
	wire.TypeResponseDone:        {},
	wire.TypeResponseContent:     {},
}

// DisconnectPolicy hangs up when AI response text mentions a trigger phrase.
// Matching is per message: a phrase split across streamed chunks is missed.
// A policy holds no per-call state and may be shared across sessions.
type DisconnectPolicy struct {
	phrases []string
}

func NewDisconnectPolicy(phrases []string) *DisconnectPolicy {
	var cleaned []string
	for _, p := range phrases {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) == 0 {
		cleaned = DefaultDisconnectPhrases
	}
	return &DisconnectPolicy{phrases: cleaned}
}

// Match returns the first trigger phrase found in a response-content event.
func (p *DisconnectPolicy) Match(ev wire.RealtimeEvent) (string, bool) {
	if _, ok := contentEventTypes[ev.Type]; !ok {
		return "", false
	}
	text, ok := ev.ContentText()
	if !ok {
		return "", false
	}
	lower := strings.ToLower(text)
	for _, phrase := range p.phrases {
		if strings.Contains(lower, phrase) {
			return phrase, true
		}
	}
	return "", false
}

// Enforce closes both peers when ev matches and returns the matched phrase.
// The caller must stop processing ev when ok is true.
func (p *DisconnectPolicy) Enforce(ev wire.RealtimeEvent, telephony, ai Peer) (phrase string, ok bool) {
	phrase, ok = p.Match(ev)
	if !ok {
		return "", false
	}
	if telephony != nil {
		_ = telephony.Close()
	}
	if isOpen(ai) {
		_ = ai.Close()
	}
	return phrase, true
}
