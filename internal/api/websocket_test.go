package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/bumper/internal/infrastructure/config"
	"github.com/nerrad567/bumper/internal/relay"
)

// dialEvents connects a websocket client to the event stream.
func dialEvents(t *testing.T, env *testEnv, query string) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(env.router)
	t.Cleanup(ts.Close)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events" + query
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("handshake status = %d", resp.StatusCode)
	}
	t.Cleanup(func() { conn.Close() })

	waitFor(t, func() bool { return env.srv.Hub().ClientCount() == 1 })
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 2s")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck // read below reports failures
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v; data: %s", err, data)
	}
	return msg
}

func TestWebSocket_RelayEvents(t *testing.T) {
	env := newTestEnv(t, config.AuthModePermissive)
	conn := dialEvents(t, env, "?channels="+EventRelayCompleted)

	env.addBot(t, "bot1", false)
	env.do(t, http.MethodPost, "/api/iot/devmanager.do", "application/json", `{"toId":"bot1","cmdName":"clean"}`)

	msg := readMessage(t, conn)
	if msg.Type != WSTypeEvent || msg.EventType != EventRelayCompleted {
		t.Fatalf("message = %+v", msg)
	}
	payload, ok := msg.Payload.(map[string]any)
	if !ok {
		t.Fatalf("payload type = %T", msg.Payload)
	}
	if payload["did"] != "bot1" || payload["outcome"] != relay.OutcomeUnreachable {
		t.Errorf("payload = %v", payload)
	}
}

func TestWebSocket_SubscribeAndPing(t *testing.T) {
	env := newTestEnv(t, config.AuthModePermissive)
	conn := dialEvents(t, env, "")

	if err := conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "p1"}); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	if msg := readMessage(t, conn); msg.Type != WSTypePong || msg.ID != "p1" {
		t.Errorf("ping reply = %+v", msg)
	}

	sub := WSMessage{Type: WSTypeSubscribe, ID: "s1", Payload: WSSubscribePayload{Channels: []string{"bots.*"}}}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	if msg := readMessage(t, conn); msg.Type != WSTypeResponse || msg.ID != "s1" {
		t.Errorf("subscribe reply = %+v", msg)
	}

	env.srv.Hub().Broadcast("bots.*", map[string]string{"did": "bot1"})
	if msg := readMessage(t, conn); msg.EventType != "bots.*" {
		t.Errorf("event = %+v", msg)
	}

	if err := conn.WriteJSON(WSMessage{Type: "bogus", ID: "b1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if msg := readMessage(t, conn); msg.Type != WSTypeError {
		t.Errorf("unknown type reply = %+v", msg)
	}
}

func TestWebSocket_UnsubscribedClientsSkipped(t *testing.T) {
	env := newTestEnv(t, config.AuthModePermissive)
	conn := dialEvents(t, env, "?channels=other")

	env.srv.Hub().RelayCompleted(relay.Completion{DID: "bot1", Outcome: relay.OutcomeOK})
	env.srv.Hub().Broadcast("other", "hello")

	// The first message seen must be the one on the subscribed channel.
	if msg := readMessage(t, conn); msg.EventType != "other" {
		t.Errorf("event = %+v, want the other channel", msg)
	}
}
