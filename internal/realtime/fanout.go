package realtime

import (
	"time"

	"github.com/atelierhq/atelier/internal/conversation"
	"github.com/atelierhq/atelier/internal/order"
)

// Fanout adapts the hub to the notifier seams the domain packages
// expect. Publishes happen after the mutation has committed.
type Fanout struct {
	hub *Hub
}

func NewFanout(hub *Hub) *Fanout {
	return &Fanout{hub: hub}
}

func (f *Fanout) OrderUpdated(o *order.Order) {
	f.hub.Publish(OrderChannel(o.ID), Event{
		Type:      EventOrderUpdated,
		Data:      o,
		Timestamp: time.Now().UTC(),
	})
}

func (f *Fanout) MessageNew(m *conversation.Message) {
	f.hub.Publish(ConversationChannel(m.ConversationID), Event{
		Type:      EventMessageNew,
		Data:      m,
		Timestamp: time.Now().UTC(),
	})
}
