package order

import (
	"context"

	"go.uber.org/zap"

	"github.com/atelierhq/atelier/internal/apperr"
	"github.com/atelierhq/atelier/internal/conversation"
)

// AcceptOffer converts a pending offer message into exactly one order.
// The accepting user becomes the buyer, the offer's sender the seller,
// and the offer amount is fixed on the order for good. The store performs
// the status flip and the order insert as one atomic unit, so a duplicate
// or racing acceptance gets apperr.OfferAlreadyConsumed instead of a
// second order.
func (e *Engine) AcceptOffer(ctx context.Context, messageID, actorID string) (*Order, error) {
	msg, err := e.convos.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.Kind != conversation.KindOffer || msg.Offer == nil {
		return nil, apperr.NotAnOffer(messageID)
	}

	conv, err := e.convos.GetConversation(ctx, msg.ConversationID)
	if err != nil {
		return nil, err
	}
	if !conv.Includes(actorID) {
		return nil, apperr.NotAParticipant()
	}
	if actorID == msg.SenderID {
		return nil, apperr.SelfAcceptance()
	}

	o, err := e.orders.CreateFromOffer(ctx, msg, actorID, e.now())
	if err != nil {
		return nil, err
	}

	e.logger.Info("offer accepted",
		zap.String("message_id", messageID),
		zap.String("order_id", o.ID),
		zap.Int64("amount", o.Amount),
	)
	e.notify.OrderUpdated(o)
	return o, nil
}
