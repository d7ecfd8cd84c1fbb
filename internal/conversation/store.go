package conversation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atelierhq/atelier/internal/apperr"
)

type Store interface {
	CreateConversation(ctx context.Context, a, b string) (*Conversation, error)
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	AppendText(ctx context.Context, conversationID, senderID, content string) (*Message, error)
	AppendOffer(ctx context.Context, conversationID, senderID string, offer OfferPayload) (*Message, error)
	GetMessage(ctx context.Context, id string) (*Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
}

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateConversation(ctx context.Context, a, b string) (*Conversation, error) {
	conv := &Conversation{
		ID:           uuid.New().String(),
		ParticipantA: a,
		ParticipantB: b,
	}

	err := s.pool.QueryRow(ctx,
		`INSERT INTO conversations (id, participant_a, participant_b)
		 VALUES ($1, $2, $3) RETURNING created_at`,
		conv.ID, a, b,
	).Scan(&conv.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting conversation: %w", err)
	}

	return conv, nil
}

func (s *PostgresStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var conv Conversation
	err := s.pool.QueryRow(ctx,
		`SELECT id, participant_a, participant_b, created_at FROM conversations WHERE id = $1`,
		id,
	).Scan(&conv.ID, &conv.ParticipantA, &conv.ParticipantB, &conv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound(fmt.Sprintf("conversation %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}
	return &conv, nil
}

func (s *PostgresStore) AppendText(ctx context.Context, conversationID, senderID, content string) (*Message, error) {
	msg := &Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Kind:           KindText,
		Content:        content,
	}

	err := s.pool.QueryRow(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, kind, content)
		 VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		msg.ID, conversationID, senderID, KindText, content,
	).Scan(&msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting text message: %w", err)
	}

	return msg, nil
}

func (s *PostgresStore) AppendOffer(ctx context.Context, conversationID, senderID string, offer OfferPayload) (*Message, error) {
	offer.Status = OfferPending
	msg := &Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Kind:           KindOffer,
		Offer:          &offer,
	}

	err := s.pool.QueryRow(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, kind, offer_title, offer_price, offer_delivery_days, offer_status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING created_at`,
		msg.ID, conversationID, senderID, KindOffer,
		offer.Title, offer.Price, offer.DeliveryDays, OfferPending,
	).Scan(&msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting offer message: %w", err)
	}

	return msg, nil
}

func (s *PostgresStore) GetMessage(ctx context.Context, id string) (*Message, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, conversation_id, sender_id, kind, content,
		        offer_title, offer_price, offer_delivery_days, offer_status, created_at
		 FROM messages WHERE id = $1`,
		id,
	)
	msg, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound(fmt.Sprintf("message %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("querying message: %w", err)
	}
	return msg, nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, sender_id, kind, content,
		        offer_title, offer_price, offer_delivery_days, offer_status, created_at
		 FROM messages WHERE conversation_id = $1 ORDER BY created_at ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		msgs = append(msgs, *msg)
	}
	return msgs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (*Message, error) {
	var (
		msg          Message
		content      *string
		title        *string
		price        *int64
		deliveryDays *int
		status       *string
		createdAt    time.Time
	)

	err := row.Scan(
		&msg.ID, &msg.ConversationID, &msg.SenderID, &msg.Kind, &content,
		&title, &price, &deliveryDays, &status, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	msg.CreatedAt = createdAt
	if content != nil {
		msg.Content = *content
	}
	if msg.Kind == KindOffer && title != nil && price != nil && deliveryDays != nil && status != nil {
		msg.Offer = &OfferPayload{
			Title:        *title,
			Price:        *price,
			DeliveryDays: *deliveryDays,
			Status:       OfferStatus(*status),
		}
	}
	return &msg, nil
}
