package api

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

	"github.com/nerrad567/gray-logic-identity/internal/infrastructure/config"
)

func newBareClient(hub *Hub, channels ...string) *WSClient {
	c := &WSClient{
		hub:           hub,
		send:          make(chan []byte, 4),
		subscriptions: make(map[string]struct{}),
	}
	for _, ch := range channels {
		c.subscriptions[ch] = struct{}{}
	}
	hub.Register(c)
	return c
}

func TestHub_BroadcastBySubscription(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	typed := newBareClient(hub, "TOKEN_ISSUED")
	all := newBareClient(hub, WSChannelAll)
	other := newBareClient(hub, "user.created")

	hub.Broadcast("TOKEN_ISSUED", map[string]string{"aggregate_id": "a-1"})

	for name, c := range map[string]*WSClient{"typed": typed, "wildcard": all} {
		select {
		case raw := <-c.send:
			var msg WSMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				t.Fatalf("%s: unmarshal: %v", name, err)
			}
			if msg.Type != WSTypeEvent || msg.EventType != "TOKEN_ISSUED" {
				t.Errorf("%s: message = %+v", name, msg)
			}
		default:
			t.Errorf("%s client received nothing", name)
		}
	}
	select {
	case raw := <-other.send:
		t.Errorf("unsubscribed client received %s", raw)
	default:
	}
}

func TestHub_UnregisterAndFullBuffer(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, nil)
	c := newBareClient(hub, WSChannelAll)

	for i := 0; i < cap(c.send)+2; i++ {
		hub.Broadcast("user.created", i)
	}
	if len(c.send) != cap(c.send) {
		t.Errorf("buffered = %d, want %d", len(c.send), cap(c.send))
	}

	hub.Unregister(c)
	hub.Unregister(c)
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", hub.ClientCount())
	}
	hub.Broadcast("user.created", "after close")
}

func TestHub_RunClosesClients(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, nil)
	c := newBareClient(hub)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	if _, ok := <-c.send; ok {
		t.Error("send channel still open after Run returned")
	}
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", hub.ClientCount())
	}
}

func TestWebSocket_Auth(t *testing.T) {
	env := newTestEnv(t, nil)
	ts := httptest.NewServer(env.handler)
	defer ts.Close()
	base := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	for _, url := range []string{base, base + "?token=bogus"} {
		_, resp, err := websocket.DefaultDialer.Dial(url, nil)
		if err == nil {
			t.Fatalf("Dial(%s) succeeded, want rejection", url)
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("Dial(%s) response = %v, want 401", url, resp)
		}
	}
}

func TestWebSocket_SubscribeAndReceive(t *testing.T) {
	env := newTestEnv(t, nil)
	env.register(t, testEmail, testPassword)
	token := env.login(t, testEmail, testPassword).AccessToken

	ts := httptest.NewServer(env.handler)
	defer ts.Close()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?token=" + token

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	if err := conn.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "1",
		Payload: WSSubscribePayload{Channels: []string{"user.login.failed"}},
	}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	var ack WSMessage
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("reading subscribe ack: %v", err)
	}
	if ack.Type != WSTypeResponse || ack.ID != "1" {
		t.Fatalf("ack = %+v", ack)
	}

	env.srv.Hub().Broadcast("user.created", "ignored")
	env.srv.Hub().Broadcast("user.login.failed", map[string]string{"reason": "bad_password"})

	var evt WSMessage
	if err := conn.ReadJSON(&evt); err != nil {
		t.Fatalf("reading event: %v", err)
	}
	if evt.Type != WSTypeEvent || evt.EventType != "user.login.failed" {
		t.Errorf("event = %+v, want user.login.failed", evt)
	}

	if err := conn.WriteJSON(WSMessage{Type: "bogus", ID: "2"}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	var errMsg WSMessage
	if err := conn.ReadJSON(&errMsg); err != nil {
		t.Fatalf("reading error frame: %v", err)
	}
	if errMsg.Type != WSTypeError || errMsg.ID != "2" {
		t.Errorf("error frame = %+v", errMsg)
	}
}
