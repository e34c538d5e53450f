package client

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

// realtimeServer accepts one websocket, hands the join message to joined,
// replies with events, then closes the connection.
func realtimeServer(t *testing.T, joined chan<- map[string]any, events ...map[string]any) *Client {
	t.Helper()
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/realtime/v1/websocket" || r.URL.Query().Get("access_token") != "user-token" {
			http.Error(w, "bad realtime url", http.StatusBadRequest)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var join map[string]any
		if err := conn.ReadJSON(&join); err != nil {
			return
		}
		joined <- join
		for _, ev := range events {
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)

	c, err := New(Config{URL: server.URL, AnonKey: "anon-key"})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return c
}

func toJSON(t *testing.T, v any) string {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(raw)
}

func TestRealtimeDeliversPostgresChanges(t *testing.T) {
	joined := make(chan map[string]any, 1)
	topic := "realtime:public:cafe_submissions"
	c := realtimeServer(t, joined,
		map[string]any{"event": "phx_reply", "topic": topic, "payload": map[string]any{"status": "ok"}},
		map[string]any{"event": "postgres_changes", "topic": "realtime:public:other", "payload": map[string]any{
			"data": map[string]any{"type": "INSERT", "record": map[string]any{"id": "ignored"}},
		}},
		map[string]any{"event": "postgres_changes", "topic": topic, "payload": map[string]any{
			"data": map[string]any{"type": "INSERT", "record": map[string]any{"id": "s1", "name": "Bean There"}},
		}},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rt := c.Realtime("user-token")
	if err := rt.Connect(ctx); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	defer rt.Disconnect()

	got := make(chan *RealtimeEvent, 4)
	_, err := rt.SubscribeToPostgresChanges(ctx, PostgresChangesConfig{
		Table:  "cafe_submissions",
		Filter: "status=eq.pending",
	}, func(ev *RealtimeEvent) { got <- ev })
	if err != nil {
		t.Fatalf("SubscribeToPostgresChanges() error: %v", err)
	}

	select {
	case join := <-joined:
		if join["event"] != "phx_join" || join["topic"] != topic {
			t.Fatalf("join = %v", join)
		}
		if !strings.Contains(toJSON(t, join), `"filter":"status=eq.pending"`) {
			t.Fatalf("join payload missing filter: %v", join)
		}
	case <-ctx.Done():
		t.Fatal("join not received")
	}

	select {
	case ev := <-got:
		kind, _, ok := ev.Change()
		if !ok || kind != "INSERT" {
			t.Fatalf("Change() = %q, %v", kind, ok)
		}
		var row struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		}
		if err := ev.DecodeRecord(&row); err != nil {
			t.Fatalf("DecodeRecord() error: %v", err)
		}
		if row.ID != "s1" || row.Name != "Bean There" {
			t.Fatalf("row = %+v", row)
		}
	case <-ctx.Done():
		t.Fatal("change not delivered")
	}

	select {
	case <-rt.Done():
	case <-ctx.Done():
		t.Fatal("Done() not closed after the server hung up")
	}
	if len(got) != 0 {
		t.Fatalf("unexpected extra events: %d", len(got))
	}
}

func TestRealtimeSubscribeRequiresConnection(t *testing.T) {
	c, err := New(Config{URL: "https://x.supabase.co", AnonKey: "k"})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	rt := c.Realtime("")
	if _, err := rt.SubscribeToPostgresChanges(context.Background(), PostgresChangesConfig{}, nil); err == nil {
		t.Fatal("subscribe without table should fail")
	}
	if _, err := rt.SubscribeToPostgresChanges(context.Background(), PostgresChangesConfig{Table: "cafes"}, nil); err == nil {
		t.Fatal("subscribe before Connect should fail")
	}
}

func TestDecodeRecordWithoutChange(t *testing.T) {
	ev := &RealtimeEvent{Event: "phx_reply", Payload: map[string]any{"status": "ok"}}
	var dst map[string]any
	if err := ev.DecodeRecord(&dst); err == nil {
		t.Fatal("DecodeRecord() on a non-change event should fail")
	}
}
