package peer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// echoServer accepts one peer per request and echoes every frame back.
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := Accept(w, r, nil)
		if err != nil {
			return
		}
		c.Start(func(b []byte) {
			_ = c.Send(jsonRaw(b))
		}, func(error) {})
	}))
}

type jsonRaw []byte

func (j jsonRaw) MarshalJSON() ([]byte, error) { return j, nil }

func wsURL(s *httptest.Server) string { return "ws" + strings.TrimPrefix(s.URL, "http") }

func TestConn_SendAndReceive(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	c := New("test", ws, nil)
	got := make(chan string, 4)
	c.Start(func(b []byte) { got <- string(b) }, func(error) {})

	for _, msg := range []string{"one", "two"} {
		if err := c.Send(map[string]string{"v": msg}); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	for _, want := range []string{`{"v":"one"}`, `{"v":"two"}`} {
		select {
		case m := <-got:
			if m != want {
				t.Fatalf("got %s want %s", m, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for %s", want)
		}
	}
	_ = c.Close()
}

func TestConn_CloseIsIdempotent(t *testing.T) {
	srv := echoServer(t)
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	c := New("test", ws, nil)
	closed := make(chan error, 2)
	c.Start(func([]byte) {}, func(err error) { closed <- err })

	if !c.IsOpen() {
		t.Fatalf("expected open")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if c.IsOpen() {
		t.Fatalf("expected closed")
	}
	if err := c.Send("x"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	select {
	case err := <-closed:
		if err != nil {
			t.Fatalf("local close should report nil cause, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("onClose not called")
	}
	select {
	case <-closed:
		t.Fatalf("onClose called twice")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConn_RemoteCloseNotifies(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := Accept(w, r, nil)
		if err != nil {
			return
		}
		_ = c.Close()
	}))
	defer srv.Close()

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	c := New("test", ws, nil)
	closed := make(chan struct{})
	c.Start(func([]byte) {}, func(error) { close(closed) })
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatalf("remote close not observed")
	}
	if c.IsOpen() {
		t.Fatalf("expected closed after remote close")
	}
}

func TestRealtimeDialer_SendsAuthHeaders(t *testing.T) {
	headers := make(chan http.Header, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
		c, err := Accept(w, r, nil)
		if err != nil {
			return
		}
		c.Start(func([]byte) {}, func(error) {})
	}))
	defer srv.Close()

	d := RealtimeDialer{URL: wsURL(srv), APIKey: "sk-test"}
	c, err := d.Dial(context.Background())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer c.Close()
	h := <-headers
	if h.Get("Authorization") != "Bearer sk-test" {
		t.Fatalf("authorization header: %q", h.Get("Authorization"))
	}
	if h.Get("OpenAI-Beta") != "realtime=v1" {
		t.Fatalf("beta header: %q", h.Get("OpenAI-Beta"))
	}
}

func TestRealtimeDialer_NoKey(t *testing.T) {
	if _, err := (RealtimeDialer{}).Dial(context.Background()); err == nil {
		t.Fatalf("expected error with missing key")
	}
}

func TestConn_CloseWithStalledRemote(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		// never read, so the client's writes back up
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ws, _, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	c := New("test", ws, nil)
	closed := make(chan struct{})
	c.Start(func([]byte) {}, func(error) { close(closed) })

	frame := strings.Repeat("a", 1<<20)
	for i := 0; i < 64; i++ {
		if err := c.Send(frame); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	time.Sleep(300 * time.Millisecond)

	start := time.Now()
	_ = c.Close()
	select {
	case <-closed:
	case <-time.After(closeGrace + 2*time.Second):
		t.Fatalf("socket not torn down after Close with a stalled remote")
	}
	if waited := time.Since(start); waited > closeGrace+time.Second {
		t.Fatalf("teardown took %v", waited)
	}
}
