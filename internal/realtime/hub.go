// Package realtime fans out row-level change events to subscribed
// viewers. Channels are scoped per order and per conversation; nothing
// is ordered across channels.
package realtime

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

type EventType string

const (
	EventOrderUpdated EventType = "order_updated"
	EventMessageNew   EventType = "message_new"
)

type Event struct {
	Type      EventType `json:"type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

func OrderChannel(orderID string) string {
	return "order:" + orderID
}

func ConversationChannel(conversationID string) string {
	return "conversation:" + conversationID
}

// Hub is an in-process publish/subscribe fanout keyed by channel name.
// Delivery is at-least-once from the viewer's perspective; consumers
// must reconcile idempotently.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[chan Event]struct{}
	logger *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		subs:   make(map[string]map[chan Event]struct{}),
		logger: logger,
	}
}

// Subscribe registers a viewer on a channel. The returned stream is
// closed when ctx is cancelled; other subscribers are unaffected.
func (h *Hub) Subscribe(ctx context.Context, channel string) <-chan Event {
	ch := make(chan Event, 16)

	h.mu.Lock()
	if h.subs[channel] == nil {
		h.subs[channel] = make(map[chan Event]struct{})
	}
	h.subs[channel][ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.unsubscribe(channel, ch)
	}()

	return ch
}

func (h *Hub) unsubscribe(channel string, ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if set, ok := h.subs[channel]; ok {
		if _, ok := set[ch]; ok {
			delete(set, ch)
			close(ch)
		}
		if len(set) == 0 {
			delete(h.subs, channel)
		}
	}
}

// Publish delivers an event to every current subscriber of the channel.
// A subscriber that cannot keep up has the event dropped rather than
// stalling the publisher; redelivery-tolerant reconciliation on the
// viewer side covers the gap.
func (h *Hub) Publish(channel string, evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs[channel] {
		select {
		case ch <- evt:
		default:
			h.logger.Warn("subscriber too slow, dropping event",
				zap.String("channel", channel),
				zap.String("type", string(evt.Type)),
			)
		}
	}
}

// SubscriberCount reports how many viewers a channel currently has.
func (h *Hub) SubscriberCount(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[channel])
}
