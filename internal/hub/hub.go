package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"

	"tracker/api/internal/store"
	"tracker/api/internal/util"

	"github.com/gorilla/websocket"
)

// SnapshotSource is the mirror handed to new subscribers.
type SnapshotSource interface {
	All() []store.Issue
}

// MessageHandler receives every inbound frame of a subscriber.
type MessageHandler interface {
	HandleMessage(ctx context.Context, sub Subscriber, payload []byte)
}

type MessageHandlerFunc func(ctx context.Context, sub Subscriber, payload []byte)

func (f MessageHandlerFunc) HandleMessage(ctx context.Context, sub Subscriber, payload []byte) {
	f(ctx, sub, payload)
}

// Hub fans events out to every connected subscriber. Connect and Broadcast
// are serialized, so a new subscriber sees either the pre-state in its
// initial data plus the event, or the post-state.
type Hub struct {
	mu               sync.Mutex
	registry         *Registry
	source           SnapshotSource
	githubConfigured bool
	handler          MessageHandler
	upgrader         websocket.Upgrader
}

func New(source SnapshotSource, githubConfigured bool) *Hub {
	return &Hub{
		registry:         NewRegistry(),
		source:           source,
		githubConfigured: githubConfigured,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// SetHandler installs the inbound handler. It must be called before Serve.
func (h *Hub) SetHandler(handler MessageHandler) {
	h.handler = handler
}

// SetCheckOrigin restricts websocket upgrades. It must be called before Serve.
func (h *Hub) SetCheckOrigin(check func(r *http.Request) bool) {
	h.upgrader.CheckOrigin = check
}

// OriginChecker admits upgrades whose Origin matches allowed, the same value
// served as Access-Control-Allow-Origin. "*" admits every origin. Requests
// without an Origin header come from non-browser clients and are admitted.
func OriginChecker(allowed string) func(r *http.Request) bool {
	allowed = strings.TrimRight(strings.TrimSpace(allowed), "/")
	return func(r *http.Request) bool {
		if allowed == "" || allowed == "*" {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return strings.EqualFold(strings.TrimRight(origin, "/"), allowed)
	}
}

func (h *Hub) Registry() *Registry {
	return h.registry
}

// Connect sends the current mirror to sub and registers it.
func (h *Hub) Connect(sub Subscriber) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	payload, err := json.Marshal(InitialData(h.source.All(), h.githubConfigured))
	if err != nil {
		return fmt.Errorf("marshal initial data: %w", err)
	}
	if err := sub.Send(payload); err != nil {
		return fmt.Errorf("send initial data: %w", err)
	}
	h.registry.Add(sub)
	log.Printf("hub: subscriber %s connected (total: %d)", sub.ID(), h.registry.Len())
	return nil
}

func (h *Hub) Disconnect(sub Subscriber) {
	if h.registry.Remove(sub) {
		log.Printf("hub: subscriber %s disconnected (total: %d)", sub.ID(), h.registry.Len())
	}
}

// Broadcast delivers event to every open subscriber. Closed or failing
// subscribers are dropped; delivery to the rest continues.
func (h *Hub) Broadcast(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("hub: marshal %s: %v", event.Type, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for _, sub := range h.registry.List() {
		if !sub.Open() {
			h.Disconnect(sub)
			continue
		}
		if err := sub.Send(payload); err != nil {
			log.Printf("hub: send %s to %s: %v", event.Type, sub.ID(), err)
			h.Disconnect(sub)
		}
	}
}

// SendTo delivers event to sub only.
func (h *Hub) SendTo(sub Subscriber, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("hub: marshal %s: %v", event.Type, err)
		return
	}
	if !sub.Open() {
		h.Disconnect(sub)
		return
	}
	if err := sub.Send(payload); err != nil {
		log.Printf("hub: send %s to %s: %v", event.Type, sub.ID(), err)
		h.Disconnect(sub)
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.registry.List() {
		if closer, ok := sub.(interface{ Close() }); ok {
			closer.Close()
		}
		h.registry.Remove(sub)
	}
}

// Serve upgrades the request to a websocket and runs the subscriber until
// either side closes.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("hub: upgrade: %v", err)
		return
	}

	conn := newConn(util.NewID("sub"), ws)
	if err := h.Connect(conn); err != nil {
		log.Printf("hub: connect %s: %v", conn.ID(), err)
		_ = ws.Close()
		return
	}

	go conn.writePump()
	conn.readPump(r.Context(), h.handler)

	h.Disconnect(conn)
	conn.Close()
}
