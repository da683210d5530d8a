package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/config"
)

const testOrigin = "http://localhost:8080"

// startTestServer runs a Server behind httptest and returns it with the
// WebSocket URL. Everything is torn down with the test.
func startTestServer(t *testing.T, mutate func(*config.Config)) (*Server, *httptest.Server, string) {
	t.Helper()

	cfg := config.Default()
	cfg.AllowedOrigins = []string{testOrigin}
	cfg.RateLimit.Burst = 100
	if mutate != nil {
		mutate(cfg)
	}

	srv, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	srv.Start()

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := testContext()
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	return srv, ts, "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func testContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 2*time.Second)
}

// dial opens a WebSocket connection with an allowed Origin header.
func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, err := dialWithOrigin(url, testOrigin)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func dialWithOrigin(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}
	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// sendEvent writes one envelope. data may be nil.
func sendEvent(t *testing.T, conn *websocket.Conn, typ string, data any) {
	t.Helper()
	env := map[string]any{"type": typ}
	if data != nil {
		env["data"] = data
	}
	if err := conn.WriteJSON(env); err != nil {
		t.Fatalf("send %s: %v", typ, err)
	}
}

// readUntil reads frames until one of type typ arrives, decoding its data
// into out. Frames of other types are skipped.
func readUntil(t *testing.T, conn *websocket.Conn, typ string, out any) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if err := conn.SetReadDeadline(deadline); err != nil {
			t.Fatalf("set read deadline: %v", err)
		}
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		if env.Type != typ {
			continue
		}
		if out != nil {
			if err := json.Unmarshal(env.Data, out); err != nil {
				t.Fatalf("decode %s: %v", typ, err)
			}
		}
		return
	}
}

// expectNoEvent asserts that no frame of type typ arrives within wait.
func expectNoEvent(t *testing.T, conn *websocket.Conn, typ string, wait time.Duration) {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		if env.Type == typ {
			t.Fatalf("unexpected %s event: %s", typ, env.Data)
		}
	}
}

// joinChat announces a user and waits for the profile reply.
func joinChat(t *testing.T, conn *websocket.Conn, name string) chat.User {
	t.Helper()
	sendEvent(t, conn, EventJoinChat, map[string]string{"name": name})
	var user chat.User
	readUntil(t, conn, chat.EventUserProfile, &user)
	readUntil(t, conn, chat.EventRoomsList, nil)
	return user
}

// joinRoom enters roomID and waits for the backfill.
func joinRoom(t *testing.T, conn *websocket.Conn, roomID string) chat.JoinedRoom {
	t.Helper()
	sendEvent(t, conn, EventJoinRoom, map[string]string{"roomId": roomID})
	var joined chat.JoinedRoom
	readUntil(t, conn, chat.EventJoinedRoom, &joined)
	return joined
}

// newDetachedClient builds a client without a network connection whose
// queue can be drained directly.
func newDetachedClient(s *Server, id string) *Client {
	return newClient(id, nil, s.hub, "test", s.cfg, s.dispatch, s.log)
}

func drain(c *Client) []chat.Event {
	var out []chat.Event
	for {
		select {
		case raw := <-c.send:
			var env Envelope
			if err := json.Unmarshal(raw, &env); err != nil {
				return out
			}
			out = append(out, chat.Event{Type: env.Type, Data: env.Data})
		default:
			return out
		}
	}
}

func eventTypes(events []chat.Event) []string {
	types := make([]string, len(events))
	for i, ev := range events {
		types[i] = ev.Type
	}
	return types
}

func chatEventForTest() chat.Event {
	return chat.Event{Type: chat.EventRoomsList, Data: []chat.RoomInfo{}}
}
