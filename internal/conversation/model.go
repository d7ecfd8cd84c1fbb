package conversation

import (
	"strings"
	"time"

	"github.com/atelierhq/atelier/internal/apperr"
)

// Kind discriminates the message union. Payload fields are only valid for
// the kind that owns them.
type Kind string

const (
	KindText  Kind = "text"
	KindOffer Kind = "offer"
)

type OfferStatus string

const (
	OfferPending  OfferStatus = "pending"
	OfferConsumed OfferStatus = "consumed"
)

// Conversation is a fixed pair of participants with an append-only
// message log.
type Conversation struct {
	ID           string    `json:"id"`
	ParticipantA string    `json:"participant_a"`
	ParticipantB string    `json:"participant_b"`
	CreatedAt    time.Time `json:"created_at"`
}

func (c *Conversation) Includes(userID string) bool {
	return userID == c.ParticipantA || userID == c.ParticipantB
}

// PeerOf returns the other participant.
func (c *Conversation) PeerOf(userID string) (string, bool) {
	switch userID {
	case c.ParticipantA:
		return c.ParticipantB, true
	case c.ParticipantB:
		return c.ParticipantA, true
	default:
		return "", false
	}
}

// OfferPayload is the structured proposal embedded in an offer message.
// Its status flips pending -> consumed at most once, as a side effect of
// order creation.
type OfferPayload struct {
	Title        string      `json:"title"`
	Price        int64       `json:"price"`
	DeliveryDays int         `json:"delivery_days"`
	Status       OfferStatus `json:"status"`
}

func (o OfferPayload) Validate() error {
	if strings.TrimSpace(o.Title) == "" {
		return apperr.Validation("offer title is required")
	}
	if o.Price <= 0 {
		return apperr.Validation("offer price must be greater than zero")
	}
	if o.DeliveryDays <= 0 {
		return apperr.Validation("offer delivery days must be greater than zero")
	}
	return nil
}

type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	SenderID       string        `json:"sender_id"`
	Kind           Kind          `json:"kind"`
	Content        string        `json:"content,omitempty"`
	Offer          *OfferPayload `json:"offer,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}
