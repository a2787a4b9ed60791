package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"evrange/chat"

	"github.com/gorilla/websocket"
)

func TestChatPredict(t *testing.T) {
	models := &fakeModels{value: 412.346, version: "v1"}
	store := &fakeStore{}
	server := newTestServer(t, models, store)

	w := do(t, server.Handler(), http.MethodPost, "/api/chat", `{"message":"predict 60,4500,180,7"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var payload chatResponse
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if payload.SessionID == "" {
		t.Fatal("expected a session id")
	}
	if payload.Reply == nil || payload.Reply.Text != "Estimated range: 412.35 km" {
		t.Fatalf("unexpected reply: %+v", payload.Reply)
	}
	if len(payload.History) != 3 || payload.History[0].Text != chat.Greeting {
		t.Fatalf("unexpected history: %+v", payload.History)
	}
	if got := store.recorded(); len(got) != 1 || got[0].Source != "chat" {
		t.Fatalf("chat prediction not recorded: %+v", got)
	}

	w = do(t, server.Handler(), http.MethodPost, "/api/chat", `{"session_id":"`+payload.SessionID+`","message":"predict 60"}`, nil)
	var second chatResponse
	if err := json.Unmarshal(w.Body.Bytes(), &second); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if second.SessionID != payload.SessionID || second.Reply.Text != chat.NeedValuesReply {
		t.Fatalf("unexpected second reply: %+v", second)
	}
	if len(second.History) != 5 {
		t.Fatalf("expected transcript to grow, got %d messages", len(second.History))
	}

	w = do(t, server.Handler(), http.MethodGet, "/api/chat/"+payload.SessionID, "", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), chat.NeedValuesReply) {
		t.Fatalf("unexpected transcript: %d %s", w.Code, w.Body.String())
	}
}

func TestChatRejectsBlankMessage(t *testing.T) {
	server := newTestServer(t, &fakeModels{}, nil)

	w := do(t, server.Handler(), http.MethodPost, "/api/chat", `{"message":"   "}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestChatHistoryUnknownSession(t *testing.T) {
	server := newTestServer(t, &fakeModels{}, nil)

	w := do(t, server.Handler(), http.MethodGet, "/api/chat/nope", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestChatSocket(t *testing.T) {
	server := newTestServer(t, &fakeModels{value: 300, version: "v1"}, nil)
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/chat/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var hello chatResponse
	if err := conn.ReadJSON(&hello); err != nil {
		t.Fatalf("read greeting: %v", err)
	}
	if hello.SessionID == "" || len(hello.History) != 1 || hello.History[0].Text != chat.Greeting {
		t.Fatalf("unexpected greeting frame: %+v", hello)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("predict 60, 4500, 180, 7")); err != nil {
		t.Fatalf("write: %v", err)
	}
	var answer chatResponse
	if err := conn.ReadJSON(&answer); err != nil {
		t.Fatalf("read reply: %v", err)
	}
	if answer.Reply == nil || answer.Reply.Text != "Estimated range: 300.00 km" {
		t.Fatalf("unexpected reply: %+v", answer.Reply)
	}

	if err := conn.WriteJSON(chatRequest{Message: "hello there"}); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := conn.ReadJSON(&answer); err != nil {
		t.Fatalf("read canned reply: %v", err)
	}
	canned := false
	for _, text := range chat.CannedReplies {
		if answer.Reply.Text == text {
			canned = true
		}
	}
	if !canned {
		t.Fatalf("expected a canned reply, got %q", answer.Reply.Text)
	}

	if _, ok := server.sessions.Get(hello.SessionID); !ok {
		t.Fatal("socket session should be kept in the store")
	}
}

func TestSessionStoreEvicts(t *testing.T) {
	store, err := NewSessionStore(2)
	if err != nil {
		t.Fatal(err)
	}
	first := store.Create()
	store.Create()
	store.Create()
	if _, ok := store.Get(first.ID); ok {
		t.Fatal("oldest session should be evicted")
	}
	if store.Len() != 2 {
		t.Fatalf("expected 2 sessions, got %d", store.Len())
	}
	if resumed := store.Resume(first.ID); resumed.ID == first.ID {
		t.Fatal("evicted session should be replaced by a new one")
	}
}
