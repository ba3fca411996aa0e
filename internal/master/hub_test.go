package master

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"uptimefleet/internal/domain"
)

func dialHub(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_BroadcastReachesSubscribers(t *testing.T) {
	h := NewHub(zap.NewNop())
	ts := httptest.NewServer(h)
	defer ts.Close()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")

	c1 := dialHub(t, wsURL)
	c2 := dialHub(t, wsURL)

	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if h.ClientCount() != 2 {
		t.Fatalf("clients = %d, want 2", h.ClientCount())
	}

	h.Broadcast(domain.ServiceStatus{ID: "svc-1", LastStatus: false})

	for _, conn := range []*websocket.Conn{c1, c2} {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		var st domain.ServiceStatus
		if err := json.Unmarshal(msg, &st); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if st.ID != "svc-1" || st.LastStatus {
			t.Fatalf("broadcast payload = %+v", st)
		}
	}
}

func TestHub_DeadPeerIsDropped(t *testing.T) {
	h := NewHub(zap.NewNop())
	ts := httptest.NewServer(h)
	defer ts.Close()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")

	conn := dialHub(t, wsURL)

	deadline := time.Now().Add(2 * time.Second)
	for h.ClientCount() < 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	conn.Close()

	// The reader loop notices the close and drops the subscriber.
	deadline = time.Now().Add(2 * time.Second)
	for h.ClientCount() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if h.ClientCount() != 0 {
		t.Fatalf("closed peer still subscribed: %d", h.ClientCount())
	}

	// Broadcasting into an empty hub is a no-op, not a panic.
	h.Broadcast(domain.ServiceStatus{ID: "svc-1"})
}

func TestHub_SlowSubscriberIsDroppedNotWaitedOn(t *testing.T) {
	h := NewHub(zap.NewNop())

	// A raw peer connection standing in for a subscriber whose writer has
	// wedged: its send buffer never drains.
	peer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close()
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer peer.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(peer.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	stalled := &hubClient{conn: conn, send: make(chan []byte)}
	h.mu.Lock()
	h.clients[stalled] = struct{}{}
	h.mu.Unlock()

	// Must return immediately and shed the stalled subscriber.
	done := make(chan struct{})
	go func() {
		h.Broadcast(domain.ServiceStatus{ID: "svc-1"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast blocked on a stalled subscriber")
	}

	if h.ClientCount() != 0 {
		t.Fatalf("stalled subscriber still registered: %d", h.ClientCount())
	}
	if _, ok := <-stalled.send; ok {
		t.Fatal("dropped subscriber's send channel should be closed")
	}
}
