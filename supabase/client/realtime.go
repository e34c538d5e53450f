package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const realtimeHeartbeat = 30 * time.Second

// RealtimeClient handles Supabase Realtime subscriptions.
type RealtimeClient struct {
	mu       sync.RWMutex
	writeMu  sync.Mutex
	url      string
	conn     *websocket.Conn
	channels map[string]*Channel
	done     chan struct{}
	ref      int
}

// EventHandler handles realtime events.
type EventHandler func(event *RealtimeEvent)

// RealtimeEvent is one message received on a channel.
type RealtimeEvent struct {
	Event   string         `json:"event"`
	Topic   string         `json:"topic"`
	Payload map[string]any `json:"payload"`
	Ref     string         `json:"ref"`
}

// Change returns the postgres change carried by a postgres_changes event:
// the change type (INSERT, UPDATE, DELETE) and the new row.
func (e *RealtimeEvent) Change() (string, map[string]any, bool) {
	data, ok := e.Payload["data"].(map[string]any)
	if !ok {
		return "", nil, false
	}
	changeType, _ := data["type"].(string)
	record, _ := data["record"].(map[string]any)
	return changeType, record, changeType != ""
}

// DecodeRecord decodes the new row of a postgres change into dst.
func (e *RealtimeEvent) DecodeRecord(dst any) error {
	_, record, ok := e.Change()
	if !ok || record == nil {
		return fmt.Errorf("event %q carries no record", e.Event)
	}
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	return json.Unmarshal(raw, dst)
}

// PostgresChangesConfig configures postgres changes subscription.
type PostgresChangesConfig struct {
	Event  string // INSERT, UPDATE, DELETE, *
	Schema string
	Table  string
	Filter string // Optional filter like "status=eq.pending"
}

// Channel represents a realtime channel.
type Channel struct {
	client   *RealtimeClient
	topic    string
	joined   bool
	joinRef  string
	changes  []PostgresChangesConfig
	handlers map[string][]EventHandler
}

// Realtime returns a realtime client for the project. accessToken, when
// set, makes subscriptions subject to the user's row-level security.
func (c *Client) Realtime(accessToken string) *RealtimeClient {
	wsURL := c.baseURL
	switch {
	case strings.HasPrefix(wsURL, "https://"):
		wsURL = "wss://" + strings.TrimPrefix(wsURL, "https://")
	case strings.HasPrefix(wsURL, "http://"):
		wsURL = "ws://" + strings.TrimPrefix(wsURL, "http://")
	}
	key := c.anonKey
	if accessToken == "" && c.serviceKey != "" {
		key = c.serviceKey
	}
	params := url.Values{}
	params.Set("apikey", key)
	params.Set("vsn", "1.0.0")
	if accessToken != "" {
		params.Set("access_token", accessToken)
	}

	return &RealtimeClient{
		url:      wsURL + "/realtime/v1/websocket?" + params.Encode(),
		channels: make(map[string]*Channel),
		done:     make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection.
func (r *RealtimeClient) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn != nil {
		return nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, r.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	r.conn = conn
	r.done = make(chan struct{})

	go r.handleMessages(conn, r.done)
	go r.heartbeat(r.done)

	return nil
}

// Done is closed when the connection is lost or closed.
func (r *RealtimeClient) Done() <-chan struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.done
}

// Disconnect closes the WebSocket connection.
func (r *RealtimeClient) Disconnect() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.conn == nil {
		return nil
	}

	r.closeDoneLocked()

	r.writeMu.Lock()
	err := r.conn.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	r.writeMu.Unlock()
	r.conn.Close()
	r.conn = nil
	if err != nil {
		return fmt.Errorf("close message: %w", err)
	}
	return nil
}

func (r *RealtimeClient) closeDoneLocked() {
	select {
	case <-r.done:
	default:
		close(r.done)
	}
}

// Channel returns or creates a channel.
func (r *RealtimeClient) Channel(topic string) *Channel {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ch, ok := r.channels[topic]; ok {
		return ch
	}

	ch := &Channel{
		client:   r,
		topic:    topic,
		handlers: make(map[string][]EventHandler),
	}
	r.channels[topic] = ch
	return ch
}

// SubscribeToPostgresChanges joins a channel listening to row changes on
// a table and routes matching changes to handler.
func (r *RealtimeClient) SubscribeToPostgresChanges(ctx context.Context, cfg PostgresChangesConfig, handler EventHandler) (*Channel, error) {
	if cfg.Table == "" {
		return nil, fmt.Errorf("table is required")
	}
	if cfg.Schema == "" {
		cfg.Schema = "public"
	}
	if cfg.Event == "" {
		cfg.Event = "*"
	}

	ch := r.Channel("realtime:" + cfg.Schema + ":" + cfg.Table)

	r.mu.Lock()
	ch.changes = append(ch.changes, cfg)
	ch.handlers[cfg.Event] = append(ch.handlers[cfg.Event], handler)
	r.mu.Unlock()

	if err := ch.Subscribe(ctx); err != nil {
		return nil, err
	}
	return ch, nil
}

// Subscribe sends the channel join.
func (c *Channel) Subscribe(ctx context.Context) error {
	r := c.client
	r.mu.Lock()
	if c.joined {
		r.mu.Unlock()
		return nil
	}
	if r.conn == nil {
		r.mu.Unlock()
		return fmt.Errorf("realtime client is not connected")
	}
	r.ref++
	ref := strconv.Itoa(r.ref)
	c.joinRef = ref

	changes := make([]map[string]any, 0, len(c.changes))
	for _, cfg := range c.changes {
		entry := map[string]any{"event": cfg.Event, "schema": cfg.Schema, "table": cfg.Table}
		if cfg.Filter != "" {
			entry["filter"] = cfg.Filter
		}
		changes = append(changes, entry)
	}
	msg := map[string]any{
		"topic": c.topic,
		"event": "phx_join",
		"payload": map[string]any{
			"config": map[string]any{"postgres_changes": changes},
		},
		"ref":      ref,
		"join_ref": ref,
	}
	conn := r.conn
	c.joined = true
	r.mu.Unlock()

	if err := r.writeJSON(conn, msg); err != nil {
		return fmt.Errorf("send join: %w", err)
	}
	return nil
}

// Unsubscribe leaves the channel.
func (c *Channel) Unsubscribe(ctx context.Context) error {
	r := c.client
	r.mu.Lock()
	if !c.joined || r.conn == nil {
		r.mu.Unlock()
		return nil
	}
	r.ref++
	msg := map[string]any{
		"topic":    c.topic,
		"event":    "phx_leave",
		"payload":  map[string]any{},
		"ref":      strconv.Itoa(r.ref),
		"join_ref": c.joinRef,
	}
	conn := r.conn
	c.joined = false
	delete(r.channels, c.topic)
	r.mu.Unlock()

	if err := r.writeJSON(conn, msg); err != nil {
		return fmt.Errorf("send leave: %w", err)
	}
	return nil
}

func (r *RealtimeClient) writeJSON(conn *websocket.Conn, msg any) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return conn.WriteJSON(msg)
}

func (r *RealtimeClient) handleMessages(conn *websocket.Conn, done chan struct{}) {
	defer func() {
		r.mu.Lock()
		if r.done == done {
			r.closeDoneLocked()
		}
		r.mu.Unlock()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var event RealtimeEvent
		if err := json.Unmarshal(message, &event); err != nil {
			continue
		}
		r.dispatchEvent(&event)
	}
}

func (r *RealtimeClient) dispatchEvent(event *RealtimeEvent) {
	changeType, _, ok := event.Change()
	if event.Event != "postgres_changes" || !ok {
		return
	}

	r.mu.RLock()
	ch := r.channels[event.Topic]
	var handlers []EventHandler
	if ch != nil {
		handlers = append(handlers, ch.handlers[changeType]...)
		handlers = append(handlers, ch.handlers["*"]...)
	}
	r.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}

func (r *RealtimeClient) heartbeat(done chan struct{}) {
	ticker := time.NewTicker(realtimeHeartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			r.mu.Lock()
			conn := r.conn
			r.ref++
			ref := strconv.Itoa(r.ref)
			r.mu.Unlock()
			if conn == nil {
				return
			}
			_ = r.writeJSON(conn, map[string]any{
				"topic":   "phoenix",
				"event":   "heartbeat",
				"payload": map[string]any{},
				"ref":     ref,
			})
		}
	}
}
