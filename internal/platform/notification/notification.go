// Package notification delivers user-facing notices (toasts) to wizard
// sessions and transactional email such as password resets.
package notification

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/healthfirst/portal/internal/platform/websocket"
)

// Severity controls how a client renders a notice.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notice is one user-facing notification. Topic is the wizard session id
// it belongs to.
type Notice struct {
	ID        string    `json:"id"`
	Topic     string    `json:"topic"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	CreatedAt time.Time `json:"created_at"`
}

// Notifier is fire-and-forget: callers never wait on or inspect delivery.
type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

type discard struct{}

func (discard) Notify(context.Context, Notice) {}

// Discard drops every notice.
var Discard Notifier = discard{}

// DefaultTopicLimit bounds how many notices a topic keeps.
const DefaultTopicLimit = 50

// Center stores recent notices per topic, logs them and pushes them to live
// websocket subscribers.
type Center struct {
	mu        sync.RWMutex
	topics    map[string][]Notice
	limit     int
	publisher websocket.EventPublisher
	logger    zerolog.Logger
	now       func() time.Time
}

// NewCenter creates a Center. publisher may be nil when no live channel is
// wired.
func NewCenter(publisher websocket.EventPublisher, logger zerolog.Logger) *Center {
	return &Center{
		topics:    make(map[string][]Notice),
		limit:     DefaultTopicLimit,
		publisher: publisher,
		logger:    logger.With().Str("component", "notification").Logger(),
		now:       time.Now,
	}
}

// Notify records n and publishes it. Delivery errors are logged only.
func (c *Center) Notify(ctx context.Context, n Notice) {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.Severity == "" {
		n.Severity = SeverityInfo
	}
	n.CreatedAt = c.now().UTC()

	c.mu.Lock()
	list := append(c.topics[n.Topic], n)
	if len(list) > c.limit {
		list = list[len(list)-c.limit:]
	}
	c.topics[n.Topic] = list
	c.mu.Unlock()

	c.logger.Info().
		Str("topic", n.Topic).
		Str("severity", string(n.Severity)).
		Str("title", n.Title).
		Msg(n.Message)

	if c.publisher == nil {
		return
	}
	data, err := json.Marshal(n)
	if err != nil {
		c.logger.Error().Err(err).Msg("marshal notice")
		return
	}
	err = c.publisher.Publish(ctx, websocket.Event{
		Type:      "notification",
		Topic:     n.Topic,
		Timestamp: n.CreatedAt,
		Data:      data,
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("topic", n.Topic).Msg("publish notice")
	}
}

// List returns up to limit of the newest notices of topic, oldest first.
func (c *Center) List(topic string, limit int) []Notice {
	c.mu.RLock()
	defer c.mu.RUnlock()
	list := c.topics[topic]
	if limit > 0 && len(list) > limit {
		list = list[len(list)-limit:]
	}
	out := make([]Notice, len(list))
	copy(out, list)
	return out
}

// Forget drops every notice of topic.
func (c *Center) Forget(topic string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.topics, topic)
}
