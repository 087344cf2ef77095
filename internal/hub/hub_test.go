package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestBroadcastReachesClient(t *testing.T) {
	h := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(h.HandleConnect))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for h.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	h.Broadcast(Event{Type: "monitor.down", MonitorID: "abc", Payload: map[string]string{"url": "https://example.com"}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got Event
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != "monitor.down" || got.MonitorID != "abc" {
		t.Errorf("event = %+v", got)
	}
}

func TestBroadcastNeverBlocks(t *testing.T) {
	h := New(nil)
	// Run is not started, so nothing drains the queue.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			h.Broadcast(Event{Type: "monitor.up", MonitorID: "x"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Broadcast blocked with a full queue")
	}
}

func TestCheckOrigin(t *testing.T) {
	h := New([]string{"https://status.example.com"})
	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"https://status.example.com", true},
		{"http://localhost:3000", true},
		{"https://evil.example.net", false},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "http://downwatch.internal/ws", nil)
		if tt.origin != "" {
			r.Header.Set("Origin", tt.origin)
		}
		if got := h.upgrader.CheckOrigin(r); got != tt.want {
			t.Errorf("CheckOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}
