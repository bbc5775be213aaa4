package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startHub(t *testing.T, cfg Config) (*Hub, string) {
	t.Helper()
	hub := NewHub(cfg, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Run(ctx)
	}()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url+"/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var event map[string]any
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	return event
}

func TestWelcomeEventCarriesSubscriberID(t *testing.T) {
	_, url := startHub(t, Config{MaxSubscribers: 10, HeartbeatInterval: time.Minute})

	conn := dial(t, url)
	event := readEvent(t, conn)

	if event["type"] != "connected" {
		t.Fatalf("first event type = %v, want connected", event["type"])
	}
	id, _ := event["subscriber_id"].(string)
	if id == "" {
		t.Error("welcome event has no subscriber_id")
	}
}

func TestSubscribeFiltersBroadcast(t *testing.T) {
	hub, url := startHub(t, Config{MaxSubscribers: 10, HeartbeatInterval: time.Minute})

	subscriber := dial(t, url)
	readEvent(t, subscriber) // welcome
	bystander := dial(t, url)
	readEvent(t, bystander) // welcome

	if err := subscriber.WriteJSON(map[string]string{"type": "subscribe", "channel": "arbitrage"}); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if ack := readEvent(t, subscriber); ack["type"] != "subscribed" || ack["channel"] != "arbitrage" {
		t.Fatalf("ack = %v", ack)
	}

	hub.Broadcast(map[string]any{"type": "opportunities", "payload": 42}, "arbitrage")

	event := readEvent(t, subscriber)
	if event["type"] != "opportunities" {
		t.Fatalf("subscriber got %v, want opportunities", event["type"])
	}

	// The bystander never subscribed and must see nothing.
	bystander.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if _, _, err := bystander.ReadMessage(); err == nil {
		t.Error("unsubscribed client received a channel broadcast")
	}
}

func TestEmptyChannelReachesEveryone(t *testing.T) {
	hub, url := startHub(t, Config{MaxSubscribers: 10, HeartbeatInterval: time.Minute})

	a := dial(t, url)
	readEvent(t, a)
	b := dial(t, url)
	readEvent(t, b)

	hub.Broadcast(map[string]any{"type": "announcement"}, "")

	if event := readEvent(t, a); event["type"] != "announcement" {
		t.Errorf("client a got %v", event["type"])
	}
	if event := readEvent(t, b); event["type"] != "announcement" {
		t.Errorf("client b got %v", event["type"])
	}
}

func TestUnknownMessageTypeAnsweredWithError(t *testing.T) {
	_, url := startHub(t, Config{MaxSubscribers: 10, HeartbeatInterval: time.Minute})

	conn := dial(t, url)
	readEvent(t, conn) // welcome

	if err := conn.WriteJSON(map[string]string{"type": "teleport"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	event := readEvent(t, conn)
	if event["type"] != "error" {
		t.Fatalf("response type = %v, want error", event["type"])
	}

	// The connection stays open: a valid message still works.
	if err := conn.WriteJSON(map[string]string{"type": "subscribe", "channel": "trades"}); err != nil {
		t.Fatalf("write after error: %v", err)
	}
	if ack := readEvent(t, conn); ack["type"] != "subscribed" {
		t.Fatalf("ack after error = %v", ack)
	}
}

func TestUnsubscribeWithoutChannelClearsAll(t *testing.T) {
	hub, url := startHub(t, Config{MaxSubscribers: 10, HeartbeatInterval: time.Minute})

	conn := dial(t, url)
	readEvent(t, conn) // welcome

	for _, ch := range []string{"arbitrage", "trades"} {
		if err := conn.WriteJSON(map[string]string{"type": "subscribe", "channel": ch}); err != nil {
			t.Fatalf("subscribe %s: %v", ch, err)
		}
		if ack := readEvent(t, conn); ack["type"] != "subscribed" || ack["channel"] != ch {
			t.Fatalf("ack = %v", ack)
		}
	}

	// An unsubscribe without a channel drops every subscription.
	if err := conn.WriteJSON(map[string]string{"type": "unsubscribe"}); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if ack := readEvent(t, conn); ack["type"] != "unsubscribed" {
		t.Fatalf("ack = %v", ack)
	}

	hub.Broadcast(map[string]any{"type": "opportunities"}, "arbitrage")
	hub.Broadcast(map[string]any{"type": "trade"}, "trades")

	conn.SetReadDeadline(time.Now().Add(150 * time.Millisecond))
	if _, data, err := conn.ReadMessage(); err == nil {
		t.Errorf("received %s after unsubscribing from everything", data)
	}
}

func TestCapacityExceededClosesConnection(t *testing.T) {
	_, url := startHub(t, Config{MaxSubscribers: 1, HeartbeatInterval: time.Minute})

	first := dial(t, url)
	readEvent(t, first) // welcome; first subscriber is now registered

	second := dial(t, url)
	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := second.ReadMessage()
	if err == nil {
		t.Fatal("second connection was not closed")
	}
	if !websocket.IsCloseError(err, websocket.CloseTryAgainLater) {
		t.Errorf("close error = %v, want code %d", err, websocket.CloseTryAgainLater)
	}

	// The existing subscriber is unaffected by the refused connection.
	if err := first.WriteJSON(map[string]string{"type": "subscribe", "channel": "arbitrage"}); err != nil {
		t.Fatalf("write on first connection: %v", err)
	}
	if ack := readEvent(t, first); ack["type"] != "subscribed" {
		t.Fatalf("first connection broken after refusal: %v", ack)
	}
}

func TestSilentSubscriberEvicted(t *testing.T) {
	const interval = 100 * time.Millisecond
	hub, url := startHub(t, Config{MaxSubscribers: 10, HeartbeatInterval: interval})

	conn := dial(t, url)
	readEvent(t, conn) // welcome
	start := time.Now()

	// Never answer pings; the hub must close the connection once a ping goes
	// unanswered through the next one, i.e. within two heartbeat intervals.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var event map[string]any
		if json.Unmarshal(data, &event) == nil && event["type"] != "ping" {
			t.Fatalf("unexpected event before eviction: %v", event)
		}
	}
	if elapsed := time.Since(start); elapsed > 2*interval+150*time.Millisecond {
		t.Errorf("silent subscriber lived %v, want eviction within two intervals (%v)",
			elapsed, 2*interval)
	}

	// Give the unregister a moment to land.
	deadline := time.Now().Add(time.Second)
	for hub.SubscriberCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := hub.SubscriberCount(); got != 0 {
		t.Fatalf("SubscriberCount = %d after eviction, want 0", got)
	}
}

func TestPongKeepsSubscriberAlive(t *testing.T) {
	hub, url := startHub(t, Config{MaxSubscribers: 10, HeartbeatInterval: 40 * time.Millisecond})

	conn := dial(t, url)
	readEvent(t, conn) // welcome

	// Answer every ping for several intervals; the subscriber must survive.
	stop := time.Now().Add(250 * time.Millisecond)
	for time.Now().Before(stop) {
		conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("connection closed despite pongs: %v", err)
		}
		var event map[string]any
		if json.Unmarshal(data, &event) == nil && event["type"] == "ping" {
			if err := conn.WriteJSON(map[string]string{"type": "pong"}); err != nil {
				t.Fatalf("pong: %v", err)
			}
		}
	}

	if got := hub.SubscriberCount(); got != 1 {
		t.Fatalf("SubscriberCount = %d, want 1", got)
	}
}
