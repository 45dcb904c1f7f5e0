package peer

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// DefaultRealtimeURL is the OpenAI Realtime endpoint the relay talks to.
const DefaultRealtimeURL = "wss://api.openai.com/v1/realtime?model=gpt-4o-mini-realtime-preview-2024-12-17"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  65536,
	WriteBufferSize: 65536,
	CheckOrigin: func(r *http.Request) bool {
		// Twilio does not send an Origin header
		return true
	},
}

// Accept upgrades an inbound telephony request.
func Accept(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (*Conn, error) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket upgrade: %w", err)
	}
	return New("telephony", ws, logger), nil
}

// RealtimeDialer opens AI-side connections.
type RealtimeDialer struct {
	URL              string
	APIKey           string
	HandshakeTimeout time.Duration
	Logger           *zap.Logger
}

// Dial connects to the Realtime API. Failures are not retried.
func (d RealtimeDialer) Dial(ctx context.Context) (*Conn, error) {
	if d.APIKey == "" {
		return nil, fmt.Errorf("dial realtime: API key is empty")
	}
	url := d.URL
	if url == "" {
		url = DefaultRealtimeURL
	}
	timeout := d.HandshakeTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+d.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	ws, resp, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial realtime: status %d: %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial realtime: %w", err)
	}
	return New("ai", ws, d.Logger), nil
}
