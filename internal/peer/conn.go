// Package peer adapts gorilla websocket connections to the relay's Peer
// contract: one reader goroutine feeding callbacks, and a writer goroutine so
// Send never blocks the caller.
package peer

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrClosed is returned by Send once the connection is closed.
var ErrClosed = errors.New("peer: connection closed")

// closeGrace bounds how long Close waits for queued frames before the socket
// is shut regardless of the writer.
const closeGrace = 2 * time.Second

// writeTimeout bounds a single frame write.
const writeTimeout = 5 * time.Second

// Conn is a JSON-framed websocket peer. The outbound queue is unbounded:
// a slow remote grows memory rather than stalling the relay.
type Conn struct {
	name   string
	ws     *websocket.Conn
	logger *zap.Logger

	mu    sync.Mutex
	queue [][]byte
	wake  chan struct{}

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// New wraps ws and starts its writer.
func New(name string, ws *websocket.Conn, logger *zap.Logger) *Conn {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Conn{
		name:   name,
		ws:     ws,
		logger: logger.With(zap.String("peer", name)),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

func (c *Conn) Name() string { return c.name }

// Send encodes v and queues it for delivery.
func (c *Conn) Send(v any) error {
	if c.closed.Load() {
		return ErrClosed
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("peer %s: encode: %w", c.name, err)
	}
	c.mu.Lock()
	c.queue = append(c.queue, b)
	c.mu.Unlock()
	select {
	case c.wake <- struct{}{}:
	default:
	}
	return nil
}

func (c *Conn) IsOpen() bool { return !c.closed.Load() }

// Close stops accepting sends, flushes what is queued and closes the socket
// within closeGrace. Extra calls do nothing.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
		// a writer stuck on a remote that stopped reading never sees done
		time.AfterFunc(closeGrace, func() { _ = c.ws.Close() })
	})
	return nil
}

// Start runs the reader. onMessage gets every inbound frame in order;
// onClose runs once when the read side ends, with nil for a normal close.
func (c *Conn) Start(onMessage func([]byte), onClose func(error)) {
	go func() {
		var cause error
		for {
			_, data, err := c.ws.ReadMessage()
			if err != nil {
				cause = err
				break
			}
			onMessage(data)
		}
		localClose := c.closed.Load()
		_ = c.Close()
		if localClose || websocket.IsCloseError(cause, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			cause = nil
		} else if websocket.IsUnexpectedCloseError(cause, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
			c.logger.Warn("read error", zap.Error(cause))
		}
		onClose(cause)
	}()
}

func (c *Conn) writeLoop() {
	for {
		select {
		case <-c.wake:
			if err := c.flush(time.Time{}); err != nil {
				c.logger.Warn("write error", zap.Error(err))
				_ = c.Close()
			}
		case <-c.done:
			_ = c.flush(time.Now().Add(closeGrace))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = c.ws.Close()
			return
		}
	}
}

// flush writes everything queued. A zero deadline gives each frame
// writeTimeout; otherwise the whole flush shares deadline.
func (c *Conn) flush(deadline time.Time) error {
	if !deadline.IsZero() {
		_ = c.ws.SetWriteDeadline(deadline)
	}
	for {
		c.mu.Lock()
		batch := c.queue
		c.queue = nil
		c.mu.Unlock()
		if len(batch) == 0 {
			return nil
		}
		for _, b := range batch {
			if deadline.IsZero() {
				_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
				return err
			}
		}
	}
}
