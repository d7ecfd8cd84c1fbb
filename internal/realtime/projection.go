package realtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/atelierhq/atelier/internal/conversation"
	"github.com/atelierhq/atelier/internal/order"
)

// Projection is one viewer's eventually-consistent local replica of an
// order and its conversation log.
//
// The two streams are reconciled asymmetrically on purpose: an order
// event triggers a full authoritative re-read, because the order payload
// may carry stale joined data by the time it is observed; a message
// event is applied from its payload directly, because messages are
// immutable once created, and re-reading the log on every event could
// reorder or duplicate entries. Delivery is at-least-once, so message
// application deduplicates by id.
type Projection struct {
	mu       sync.Mutex
	orders   OrderSource
	orderID  string
	current  *order.Order
	messages []conversation.Message
	seen     map[string]struct{}
}

func NewProjection(orders OrderSource, orderID string) *Projection {
	return &Projection{
		orders:  orders,
		orderID: orderID,
		seen:    make(map[string]struct{}),
	}
}

// Refresh replaces the local order with an authoritative read.
func (p *Projection) Refresh(ctx context.Context) error {
	o, err := p.orders.Get(ctx, p.orderID)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.current = o
	p.mu.Unlock()
	return nil
}

// ApplyMessage appends a message to the local log. Redelivered messages
// are dropped; the return value reports whether the message was new.
func (p *Projection) ApplyMessage(m conversation.Message) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, dup := p.seen[m.ID]; dup {
		return false
	}
	p.seen[m.ID] = struct{}{}
	p.messages = append(p.messages, m)
	return true
}

// Apply routes one event to the matching reconciliation rule.
func (p *Projection) Apply(ctx context.Context, evt Event) error {
	switch evt.Type {
	case EventOrderUpdated:
		// The payload is deliberately ignored; see the type comment.
		return p.Refresh(ctx)
	case EventMessageNew:
		msg, ok := evt.Data.(*conversation.Message)
		if !ok {
			return fmt.Errorf("message event carried unexpected payload %T", evt.Data)
		}
		p.ApplyMessage(*msg)
		return nil
	default:
		return fmt.Errorf("unknown event type %q", evt.Type)
	}
}

// Run consumes both streams until ctx is cancelled or they close.
func (p *Projection) Run(ctx context.Context, orderEvents, messageEvents <-chan Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-orderEvents:
			if !ok {
				orderEvents = nil
				continue
			}
			if err := p.Apply(ctx, evt); err != nil {
				return err
			}
		case evt, ok := <-messageEvents:
			if !ok {
				messageEvents = nil
				continue
			}
			if err := p.Apply(ctx, evt); err != nil {
				return err
			}
		}
		if orderEvents == nil && messageEvents == nil {
			return nil
		}
	}
}

// Order returns a copy of the current order view, if any.
func (p *Projection) Order() *order.Order {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	o := *p.current
	return &o
}

// Messages returns a copy of the local ordered message log.
func (p *Projection) Messages() []conversation.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]conversation.Message, len(p.messages))
	copy(out, p.messages)
	return out
}
