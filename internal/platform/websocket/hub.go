// Package websocket pushes live events to browser clients. A browser follows
// one or more wizard session ids and receives every event published to them.
package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Event is a message sent to websocket clients.
type Event struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Command is an inbound request from a browser to change what it follows.
type Command struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

const (
	ActionFollow   = "follow"
	ActionUnfollow = "unfollow"
)

// EventPublisher publishes events to whoever follows their topic.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

// Listener is one connected browser tab.
type Listener struct {
	ID     string
	outbox chan []byte
	topics map[string]struct{}
}

// NewListener creates a listener whose outbox holds up to buffer events.
func NewListener(id string, buffer int) *Listener {
	return &Listener{
		ID:     id,
		outbox: make(chan []byte, buffer),
		topics: make(map[string]struct{}),
	}
}

// Outbox yields encoded events until the listener is detached.
func (l *Listener) Outbox() <-chan []byte { return l.outbox }

// Hub routes events from publishers to listeners by topic.
type Hub struct {
	mu        sync.RWMutex
	followers map[string]map[*Listener]struct{}
	listeners map[*Listener]struct{}
	logger    zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		followers: make(map[string]map[*Listener]struct{}),
		listeners: make(map[*Listener]struct{}),
		logger:    logger.With().Str("component", "websocket").Logger(),
	}
}

// Attach adds l to the hub following topics.
func (h *Hub) Attach(l *Listener, topics ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners[l] = struct{}{}
	h.followLocked(l, topics)
}

// Detach removes l and closes its outbox. Detaching twice is a no-op.
func (h *Hub) Detach(l *Listener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.listeners[l]; !ok {
		return
	}
	for topic := range l.topics {
		h.dropLocked(l, topic)
	}
	delete(h.listeners, l)
	close(l.outbox)
}

// Follow makes an attached listener receive events for topics.
func (h *Hub) Follow(l *Listener, topics ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.listeners[l]; ok {
		h.followLocked(l, topics)
	}
}

// Unfollow stops delivery of topics to l.
func (h *Hub) Unfollow(l *Listener, topics ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, topic := range topics {
		h.dropLocked(l, topic)
	}
}

func (h *Hub) followLocked(l *Listener, topics []string) {
	for _, topic := range topics {
		set := h.followers[topic]
		if set == nil {
			set = make(map[*Listener]struct{})
			h.followers[topic] = set
		}
		set[l] = struct{}{}
		l.topics[topic] = struct{}{}
	}
}

func (h *Hub) dropLocked(l *Listener, topic string) {
	delete(l.topics, topic)
	set := h.followers[topic]
	delete(set, l)
	if len(set) == 0 {
		delete(h.followers, topic)
	}
}

// Apply runs a browser command. Unknown actions are ignored.
func (h *Hub) Apply(l *Listener, cmd Command) {
	switch cmd.Action {
	case ActionFollow:
		h.Follow(l, cmd.Topics...)
	case ActionUnfollow:
		h.Unfollow(l, cmd.Topics...)
	default:
		h.logger.Debug().Str("listener", l.ID).Str("action", cmd.Action).Msg("ignoring unknown command")
	}
}

// Publish delivers event to every follower of event.Topic. A listener whose
// outbox is full misses the event.
func (h *Hub) Publish(_ context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for l := range h.followers[event.Topic] {
		select {
		case l.outbox <- data:
		default:
			h.logger.Warn().Str("listener", l.ID).Str("topic", event.Topic).Msg("outbox full, dropping event")
		}
	}
	return nil
}

// Listeners returns the number of attached listeners.
func (h *Hub) Listeners() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

// Followers returns how many listeners follow topic.
func (h *Hub) Followers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.followers[topic])
}
