package stream

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

var upgrader = websocket.Upgrader{}

// wsURL converts an httptest server URL to ws scheme.
func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func newTestClient(url string, handler Handler, onState StateHook) *Client {
	c := NewClient(url, handler, onState, zerolog.Nop())
	c.delay = 10 * time.Millisecond
	c.maxAttempts = 3
	return c
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestDeliversFramesInOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, msg := range []string{"one", "two", "three"} {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return
			}
		}
		// Keep the socket open until the client goes away.
		conn.ReadMessage()
	}))
	defer srv.Close()

	var mu sync.Mutex
	var got []string
	c := newTestClient(wsURL(srv), func(raw []byte) {
		mu.Lock()
		got = append(got, string(raw))
		mu.Unlock()
	}, nil)
	defer c.Close()
	c.Start()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 3
	}, "three frames")

	mu.Lock()
	defer mu.Unlock()
	if got[0] != "one" || got[1] != "two" || got[2] != "three" {
		t.Fatalf("frames = %v, want arrival order preserved", got)
	}
}

func TestReconnectsAfterDrop(t *testing.T) {
	var conns int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		n := atomic.AddInt32(&conns, 1)
		if n == 1 {
			// Drop the first connection immediately to force a retry.
			conn.Close()
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte("after-reconnect"))
		conn.ReadMessage()
	}))
	defer srv.Close()

	var gotFrame atomic.Bool
	c := newTestClient(wsURL(srv), func(raw []byte) {
		if string(raw) == "after-reconnect" {
			gotFrame.Store(true)
		}
	}, nil)
	defer c.Close()
	c.Start()

	waitFor(t, func() bool { return gotFrame.Load() }, "frame after reconnect")
	if c.Exhausted() {
		t.Fatalf("Exhausted() = true after successful reconnect")
	}
}

func TestReconnectCeiling(t *testing.T) {
	// A server that refuses the upgrade fails every dial.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no", http.StatusForbidden)
	}))
	defer srv.Close()

	var connecting int32
	c := newTestClient(wsURL(srv), nil, func(s ConnState) {
		if s == StateConnecting {
			atomic.AddInt32(&connecting, 1)
		}
	})
	defer c.Close()
	c.Start()

	waitFor(t, c.Exhausted, "retry exhaustion")
	time.Sleep(50 * time.Millisecond)

	// Initial connect plus maxAttempts retries, never more.
	if n := atomic.LoadInt32(&connecting); n != int32(c.maxAttempts)+1 {
		t.Fatalf("connect attempts = %d, want %d", n, c.maxAttempts+1)
	}
	if c.State() != StateDisconnected {
		t.Fatalf("State() = %q, want disconnected after exhaustion", c.State())
	}
}

func TestSendWhileDisconnectedIsNoOp(t *testing.T) {
	c := newTestClient("ws://127.0.0.1:1/ws/events", nil, nil)
	// Never started; Send must neither panic nor block.
	c.Send(map[string]string{"type": "ping"})
}

func TestCloseCancelsPendingReconnect(t *testing.T) {
	var dials int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&dials, 1)
		http.Error(w, "no", http.StatusForbidden)
	}))
	defer srv.Close()

	c := newTestClient(wsURL(srv), nil, nil)
	c.delay = 200 * time.Millisecond
	c.Start()

	waitFor(t, func() bool { return atomic.LoadInt32(&dials) >= 1 }, "first dial")
	c.Close()

	before := atomic.LoadInt32(&dials)
	time.Sleep(400 * time.Millisecond)
	if after := atomic.LoadInt32(&dials); after != before {
		t.Fatalf("dials after Close = %d, want no further attempts past %d", after, before)
	}
}

func TestStateTransitions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.ReadMessage()
	}))
	defer srv.Close()

	var mu sync.Mutex
	var states []ConnState
	c := newTestClient(wsURL(srv), nil, func(s ConnState) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})
	c.Start()

	waitFor(t, func() bool { return c.State() == StateConnected }, "connected state")
	c.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(states) < 3 || states[0] != StateConnecting || states[1] != StateConnected || states[len(states)-1] != StateDisconnected {
		t.Fatalf("states = %v, want connecting, connected, disconnected", states)
	}
}
