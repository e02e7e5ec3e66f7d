package http

import (
	"context"
	"encoding/json"
	stdhttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

type outboundEnvelope struct {
	Type  string          `json:"type"`
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func dialWS(t *testing.T, ctx context.Context, ts *httptest.Server, token string) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func sendWS(t *testing.T, ctx context.Context, conn *websocket.Conn, eventType string, data any) {
	t.Helper()

	if err := wsjson.Write(ctx, conn, map[string]any{"type": eventType, "data": data}); err != nil {
		t.Fatalf("send %s: %v", eventType, err)
	}
}

// readUntil reads events until one with the given name arrives.
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, event string) json.RawMessage {
	t.Helper()

	for {
		var env outboundEnvelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if env.Event == event {
			return env.Data
		}
	}
}

func TestWSHandshakeRequiresValidToken(t *testing.T) {
	ts := newTestServer(t)

	for name, url := range map[string]string{
		"missing token": ts.URL + "/ws",
		"invalid token": ts.URL + "/ws?token=not-a-token",
	} {
		resp, err := ts.Client().Get(url)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		resp.Body.Close()
		if resp.StatusCode != stdhttp.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", name, resp.StatusCode)
		}
	}
}

func TestWSEndToEndMessaging(t *testing.T) {
	ts := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	aliceToken := registerUser(t, ts, "alice")
	bobToken := registerUser(t, ts, "bobby")
	alice := whoAmI(t, ts, aliceToken)
	bob := whoAmI(t, ts, bobToken)

	group := createGroup(t, ts, aliceToken, "general", bob.ID)

	aliceConn := dialWS(t, ctx, ts, aliceToken)
	sendWS(t, ctx, aliceConn, "join_group", map[string]any{"groupIds": []string{group.GroupID}})

	bobConn := dialWS(t, ctx, ts, bobToken)
	sendWS(t, ctx, bobConn, "join_group", map[string]any{"groupIds": []string{group.GroupID}})

	// Bob's join is announced to alice, which confirms both subscriptions.
	var online struct {
		UserID int64 `json:"userId"`
	}
	if err := json.Unmarshal(readUntil(t, ctx, aliceConn, "user_online"), &online); err != nil {
		t.Fatalf("decode user_online: %v", err)
	}
	if online.UserID != bob.ID {
		t.Fatalf("expected bob online, got %+v", online)
	}

	sendWS(t, ctx, aliceConn, "send_message", map[string]any{
		"chatgroupId": group.GroupID,
		"content":     "hi",
	})

	var delivered struct {
		ID          int64  `json:"id"`
		ChatgroupID string `json:"chatgroupId"`
		Sender      int64  `json:"sender"`
		Content     string `json:"content"`
	}
	for _, conn := range []*websocket.Conn{aliceConn, bobConn} {
		if err := json.Unmarshal(readUntil(t, ctx, conn, "new_message"), &delivered); err != nil {
			t.Fatalf("decode new_message: %v", err)
		}
		if delivered.Content != "hi" || delivered.ChatgroupID != group.GroupID || delivered.Sender != alice.ID {
			t.Fatalf("unexpected message: %+v", delivered)
		}
		if delivered.ID == 0 {
			t.Fatal("message delivered without persisted id")
		}
	}

	// The delivered message is the newest history entry.
	status, body := apiCall(t, ts, stdhttp.MethodGet, "/api/v1/messages/"+group.GroupID+"?page=1&limit=20", aliceToken, nil)
	if status != stdhttp.StatusOK {
		t.Fatalf("history: status %d, body %s", status, body)
	}
	var page MessagePage
	if err := json.Unmarshal(body, &page); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(page.Messages) != 1 || page.Messages[0].Content != "hi" || page.Messages[0].Sender != alice.ID {
		t.Fatalf("unexpected history: %+v", page)
	}

	// Bob marks the message seen; alice hears about it.
	sendWS(t, ctx, bobConn, "seen_message", map[string]any{
		"chatgroupId": group.GroupID,
		"messageId":   delivered.ID,
	})
	var seen struct {
		UserID    int64 `json:"userId"`
		MessageID int64 `json:"messageId"`
	}
	if err := json.Unmarshal(readUntil(t, ctx, aliceConn, "message_seen"), &seen); err != nil {
		t.Fatalf("decode message_seen: %v", err)
	}
	if seen.UserID != bob.ID || seen.MessageID != delivered.ID {
		t.Fatalf("unexpected seen event: %+v", seen)
	}

	// Typing reaches the other side.
	sendWS(t, ctx, bobConn, "typing", map[string]any{"chatgroupId": group.GroupID})
	var typing struct {
		UserID int64 `json:"userId"`
	}
	if err := json.Unmarshal(readUntil(t, ctx, aliceConn, "user_typing"), &typing); err != nil {
		t.Fatalf("decode user_typing: %v", err)
	}
	if typing.UserID != bob.ID {
		t.Fatalf("unexpected typing event: %+v", typing)
	}
}

func TestWSReportsInvalidPayloads(t *testing.T) {
	ts := newTestServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	token := registerUser(t, ts, "alice")
	conn := dialWS(t, ctx, ts, token)

	sendWS(t, ctx, conn, "bogus", map[string]any{})
	var msg string
	if err := json.Unmarshal(readUntil(t, ctx, conn, "error"), &msg); err != nil {
		t.Fatalf("decode error event: %v", err)
	}
	if msg != "unknown event type" {
		t.Fatalf("unexpected error message: %q", msg)
	}

	// Missing required field keeps the connection alive and reports back.
	sendWS(t, ctx, conn, "send_message", map[string]any{"content": "hi"})
	if err := json.Unmarshal(readUntil(t, ctx, conn, "error"), &msg); err != nil {
		t.Fatalf("decode error event: %v", err)
	}
	if msg != "chatgroupId is required" {
		t.Fatalf("unexpected error message: %q", msg)
	}
}
