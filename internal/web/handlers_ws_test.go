package web

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"zigbee-ledfx/internal/coordinator"
)

func startHub(t *testing.T) *WSHub {
	t.Helper()
	hub := NewWSHub(testLogger())
	go hub.Run()
	t.Cleanup(hub.Stop)
	return hub
}

func clientCount(h *WSHub) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func TestWSHubRegistration(t *testing.T) {
	hub := startHub(t)

	known := &wsClient{send: make(chan []byte, 16)}
	hub.register <- known
	time.Sleep(10 * time.Millisecond)
	if n := clientCount(hub); n != 1 {
		t.Fatalf("after register: %d clients", n)
	}

	// An unknown client leaves the hub and its channel untouched.
	stranger := &wsClient{send: make(chan []byte, 1)}
	hub.unregister <- stranger
	time.Sleep(10 * time.Millisecond)
	select {
	case stranger.send <- []byte("x"):
	default:
		t.Error("stranger's channel was closed")
	}

	hub.unregister <- known
	time.Sleep(10 * time.Millisecond)
	if n := clientCount(hub); n != 0 {
		t.Errorf("after unregister: %d clients", n)
	}
	if _, ok := <-known.send; ok {
		t.Error("send channel not closed on unregister")
	}
}

func TestWSHubBroadcastEvictsSlowClients(t *testing.T) {
	hub := startHub(t)

	slow := &wsClient{send: make(chan []byte, 1)}
	fast := &wsClient{send: make(chan []byte, 16)}
	hub.register <- slow
	hub.register <- fast
	time.Sleep(10 * time.Millisecond)

	hub.Broadcast(coordinator.Event{Type: coordinator.EventStateChanged})
	hub.Broadcast(coordinator.Event{Type: coordinator.EventConfigured})
	time.Sleep(20 * time.Millisecond)

	if got := string(<-fast.send); !strings.Contains(got, `"state_changed"`) {
		t.Errorf("fast client got %s", got)
	}
	hub.mu.RLock()
	_, slowPresent := hub.clients[slow]
	_, fastPresent := hub.clients[fast]
	hub.mu.RUnlock()
	if slowPresent || !fastPresent {
		t.Errorf("slow present = %v, fast present = %v", slowPresent, fastPresent)
	}
}

func TestWSHubBroadcastNeverBlocks(t *testing.T) {
	hub := NewWSHub(testLogger()) // not running: nothing drains the channel

	done := make(chan struct{})
	go func() {
		for i := 0; i < 300; i++ {
			hub.Broadcast(i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("Broadcast blocked when channel is full")
	}
}

func TestWSHubStop(t *testing.T) {
	hub := NewWSHub(testLogger())
	go hub.Run()

	client := &wsClient{send: make(chan []byte, 16)}
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	hub.Stop()
	hub.Stop()
	time.Sleep(10 * time.Millisecond)

	if _, ok := <-client.send; ok {
		t.Error("client.send should be closed after hub stop")
	}
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) map[string]any {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg map[string]any
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal %s: %v", data, err)
	}
	return msg
}

func TestWSSnapshotAndCommands(t *testing.T) {
	env := setupTestServer(t)
	ts := httptest.NewServer(env.srv)
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	snap := readMessage(t, ctx, conn)
	lights, _ := snap["data"].([]any)
	if snap["type"] != "snapshot" || len(lights) != 1 {
		t.Fatalf("first message = %v", snap)
	}

	cmd := `{"light":"desk","set":{"effect":"rainbow"}}`
	if err := conn.Write(ctx, websocket.MessageText, []byte(cmd)); err != nil {
		t.Fatal(err)
	}

	for {
		msg := readMessage(t, ctx, conn)
		if msg["type"] != coordinator.EventStateChanged {
			continue
		}
		data, _ := msg["data"].(map[string]any)
		patch, _ := data["patch"].(map[string]any)
		if patch["effect"] == "rainbow" {
			break
		}
	}
	if got := env.dev.Snapshot().Effect; got != "rainbow" {
		t.Errorf("device effect = %q, want rainbow", got)
	}
}
