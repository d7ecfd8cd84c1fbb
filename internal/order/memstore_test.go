package order

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atelierhq/atelier/internal/apperr"
	"github.com/atelierhq/atelier/internal/conversation"
)

// memStore implements Store and conversation.Store with the same guard
// semantics as the Postgres store: every guarded mutation checks the
// expected state and applies the transition under one lock, so race
// tests exercise the real linearizability contract.
type memStore struct {
	mu            sync.Mutex
	conversations map[string]*conversation.Conversation
	messages      map[string]*conversation.Message
	orders        map[string]*Order
	files         map[string][]DeliveredFile
	revisions     map[string][]RevisionRequest
}

func newMemStore() *memStore {
	return &memStore{
		conversations: make(map[string]*conversation.Conversation),
		messages:      make(map[string]*conversation.Message),
		orders:        make(map[string]*Order),
		files:         make(map[string][]DeliveredFile),
		revisions:     make(map[string][]RevisionRequest),
	}
}

// Store implementation

func (m *memStore) Get(_ context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return nil, apperr.NotFound(fmt.Sprintf("order %s not found", id))
	}
	cp := *o
	return &cp, nil
}

func (m *memStore) ListByParticipant(_ context.Context, userID string) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Order
	for _, o := range m.orders {
		if o.BuyerID == userID || o.SellerID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *memStore) CreateFromOffer(_ context.Context, msg *conversation.Message, buyerID string, now time.Time) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.messages[msg.ID]
	if !ok || stored.Offer == nil {
		return nil, apperr.NotFound(fmt.Sprintf("message %s not found", msg.ID))
	}
	if stored.Offer.Status != conversation.OfferPending {
		return nil, apperr.OfferAlreadyConsumed(msg.ID)
	}
	stored.Offer.Status = conversation.OfferConsumed

	id := msg.ID
	o := &Order{
		ID:              uuid.New().String(),
		BuyerID:         buyerID,
		SellerID:        stored.SenderID,
		Amount:          stored.Offer.Price,
		Status:          StatusPendingRequirements,
		SourceMessageID: &id,
		CreatedAt:       now,
	}
	m.orders[o.ID] = o

	cp := *o
	return &cp, nil
}

func (m *memStore) StartProgress(_ context.Context, id, requirements string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok || o.Status != StatusPendingRequirements {
		return false, nil
	}
	o.Status = StatusInProgress
	o.Requirements = requirements
	o.StartedAt = &now
	return true, nil
}

func (m *memStore) Deliver(_ context.Context, id string, from Status, files []DeliveredFile, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok || o.Status != from {
		return false, nil
	}
	o.Status = StatusDelivered
	if o.DeliveredAt == nil {
		o.DeliveredAt = &now
	}
	m.files[id] = append(m.files[id], files...)
	return true, nil
}

func (m *memStore) Complete(_ context.Context, id string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok || o.Status != StatusDelivered {
		return false, nil
	}
	o.Status = StatusCompleted
	o.CompletedAt = &now
	return true, nil
}

func (m *memStore) OpenRevision(_ context.Context, id string, req RevisionRequest) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[id]
	if !ok || o.Status != StatusDelivered {
		return false, nil
	}
	o.Status = StatusRevision
	m.revisions[id] = append(m.revisions[id], req)
	return true, nil
}

func (m *memStore) ListFiles(_ context.Context, orderID string) ([]DeliveredFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]DeliveredFile, len(m.files[orderID]))
	copy(out, m.files[orderID])
	return out, nil
}

func (m *memStore) ListRevisions(_ context.Context, orderID string) ([]RevisionRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RevisionRequest, len(m.revisions[orderID]))
	copy(out, m.revisions[orderID])
	return out, nil
}

// conversation.Store implementation

func (m *memStore) CreateConversation(_ context.Context, a, b string) (*conversation.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv := &conversation.Conversation{
		ID:           uuid.New().String(),
		ParticipantA: a,
		ParticipantB: b,
		CreatedAt:    time.Now(),
	}
	m.conversations[conv.ID] = conv
	cp := *conv
	return &cp, nil
}

func (m *memStore) GetConversation(_ context.Context, id string) (*conversation.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[id]
	if !ok {
		return nil, apperr.NotFound(fmt.Sprintf("conversation %s not found", id))
	}
	cp := *conv
	return &cp, nil
}

func (m *memStore) AppendText(_ context.Context, conversationID, senderID, content string) (*conversation.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg := &conversation.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Kind:           conversation.KindText,
		Content:        content,
		CreatedAt:      time.Now(),
	}
	m.messages[msg.ID] = msg
	cp := *msg
	return &cp, nil
}

func (m *memStore) AppendOffer(_ context.Context, conversationID, senderID string, offer conversation.OfferPayload) (*conversation.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	offer.Status = conversation.OfferPending
	msg := &conversation.Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Kind:           conversation.KindOffer,
		Offer:          &offer,
		CreatedAt:      time.Now(),
	}
	m.messages[msg.ID] = msg

	cp := *msg
	off := offer
	cp.Offer = &off
	return &cp, nil
}

func (m *memStore) GetMessage(_ context.Context, id string) (*conversation.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg, ok := m.messages[id]
	if !ok {
		return nil, apperr.NotFound(fmt.Sprintf("message %s not found", id))
	}
	cp := *msg
	if msg.Offer != nil {
		off := *msg.Offer
		cp.Offer = &off
	}
	return &cp, nil
}

func (m *memStore) ListMessages(_ context.Context, conversationID string) ([]conversation.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []conversation.Message
	for _, msg := range m.messages {
		if msg.ConversationID == conversationID {
			out = append(out, *msg)
		}
	}
	return out, nil
}

func (m *memStore) orderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.orders)
}

// stub collaborators

type stubNotifier struct {
	mu      sync.Mutex
	updates []Order
}

func (n *stubNotifier) OrderUpdated(o *Order) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.updates = append(n.updates, *o)
}

func (n *stubNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.updates)
}

type stubHooks struct {
	mu        sync.Mutex
	delivered []string
	completed []string
	sellers   []string
}

func (h *stubHooks) OrderDelivered(orderID, _, _ string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.delivered = append(h.delivered, orderID)
}

func (h *stubHooks) OrderCompleted(orderID, _, sellerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.completed = append(h.completed, orderID)
	h.sellers = append(h.sellers, sellerID)
}

type stubDisputes struct {
	mu     sync.Mutex
	filed  []string
	reason []string
}

func (d *stubDisputes) File(_ context.Context, orderID, _, reason string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.filed = append(d.filed, orderID)
	d.reason = append(d.reason, reason)
	return nil
}
