package order

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/atelierhq/atelier/internal/apperr"
	"github.com/atelierhq/atelier/internal/conversation"
)

// Event names used in invalid-transition errors.
const (
	eventSubmitRequirements = "submit requirements"
	eventDeliverWork        = "deliver work"
	eventAcceptDelivery     = "accept delivery"
	eventRequestRevision    = "request revision"
	eventReportProblem      = "report problem"
)

// Notifier pushes a committed order mutation to subscribed viewers.
type Notifier interface {
	OrderUpdated(o *Order)
}

// CompletionHooks are fire-and-forget collaborators. Implementations must
// not block; their success or failure never affects the transition.
type CompletionHooks interface {
	OrderDelivered(orderID, buyerID, sellerID string)
	OrderCompleted(orderID, buyerID, sellerID string)
}

// DisputeFiler is the seam to the external dispute workflow.
type DisputeFiler interface {
	File(ctx context.Context, orderID, filerID, reason string) error
}

// Engine validates and applies order transitions. It enforces roles
// against the order row itself and relies on the store's guarded updates
// for linearizability: concurrent conflicting transitions resolve to one
// winner, and the loser gets an error naming the state the winner left.
type Engine struct {
	orders   Store
	convos   conversation.Store
	notify   Notifier
	hooks    CompletionHooks
	disputes DisputeFiler
	logger   *zap.Logger
	now      func() time.Time
}

func NewEngine(
	orders Store,
	convos conversation.Store,
	notify Notifier,
	hooks CompletionHooks,
	disputes DisputeFiler,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		orders:   orders,
		convos:   convos,
		notify:   notify,
		hooks:    hooks,
		disputes: disputes,
		logger:   logger,
		now:      time.Now,
	}
}

// SubmitRequirements moves a pending order into progress. Buyer only.
func (e *Engine) SubmitRequirements(ctx context.Context, orderID, actorID, text string) (*Order, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperr.Validation("requirements text is required")
	}

	o, err := e.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if actorID != o.BuyerID {
		return nil, apperr.Forbidden("only the buyer can submit requirements")
	}

	ok, err := e.orders.StartProgress(ctx, orderID, text, e.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, e.lostRace(ctx, orderID, eventSubmitRequirements)
	}

	return e.finish(ctx, orderID, eventSubmitRequirements)
}

// DeliverWork attaches at least one file and marks the order delivered.
// Seller only. Accepted from in_progress and, for re-deliveries after a
// revision request, from revision.
func (e *Engine) DeliverWork(ctx context.Context, orderID, actorID string, files []DeliveredFile) (*Order, error) {
	if len(files) == 0 {
		return nil, apperr.Validation("a delivery must include at least one file")
	}

	o, err := e.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if actorID != o.SellerID {
		return nil, apperr.Forbidden("only the seller can deliver work")
	}
	if o.Status != StatusInProgress && o.Status != StatusRevision {
		return nil, apperr.InvalidTransition(string(o.Status), eventDeliverWork)
	}

	now := e.now()
	for i := range files {
		files[i].ID = uuid.New().String()
		files[i].OrderID = orderID
		files[i].UploaderID = actorID
		files[i].CreatedAt = now
	}

	ok, err := e.orders.Deliver(ctx, orderID, o.Status, files, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, e.lostRace(ctx, orderID, eventDeliverWork)
	}

	e.hooks.OrderDelivered(orderID, o.BuyerID, o.SellerID)
	return e.finish(ctx, orderID, eventDeliverWork)
}

// AcceptDelivery completes the order. Buyer only. Review-prompt and
// reputation-promotion hooks fire after commit and never block.
func (e *Engine) AcceptDelivery(ctx context.Context, orderID, actorID string) (*Order, error) {
	o, err := e.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if actorID != o.BuyerID {
		return nil, apperr.Forbidden("only the buyer can accept a delivery")
	}

	ok, err := e.orders.Complete(ctx, orderID, e.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, e.lostRace(ctx, orderID, eventAcceptDelivery)
	}

	e.hooks.OrderCompleted(orderID, o.BuyerID, o.SellerID)
	return e.finish(ctx, orderID, eventAcceptDelivery)
}

// RequestRevision sends a delivered order back for rework. Buyer only.
func (e *Engine) RequestRevision(ctx context.Context, orderID, actorID, comment string) (*Order, error) {
	if strings.TrimSpace(comment) == "" {
		return nil, apperr.Validation("revision comment is required")
	}

	o, err := e.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if actorID != o.BuyerID {
		return nil, apperr.Forbidden("only the buyer can request a revision")
	}

	req := RevisionRequest{
		ID:          uuid.New().String(),
		OrderID:     orderID,
		RequesterID: actorID,
		Comment:     comment,
		CreatedAt:   e.now(),
	}

	ok, err := e.orders.OpenRevision(ctx, orderID, req)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, e.lostRace(ctx, orderID, eventRequestRevision)
	}

	return e.finish(ctx, orderID, eventRequestRevision)
}

// ReportProblem hands a non-terminal order to the dispute workflow.
// Either participant may file; the order status is left untouched.
func (e *Engine) ReportProblem(ctx context.Context, orderID, actorID, reason string) (*Order, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, apperr.Validation("a problem report needs a reason")
	}

	o, err := e.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if actorID != o.BuyerID && actorID != o.SellerID {
		return nil, apperr.Forbidden("only the buyer or seller can report a problem")
	}
	if o.Status.Terminal() {
		return nil, apperr.InvalidTransition(string(o.Status), eventReportProblem)
	}

	if err := e.disputes.File(ctx, orderID, actorID, reason); err != nil {
		return nil, err
	}
	return o, nil
}

// lostRace re-reads the order after a guard miss so the caller sees an
// invalid-transition error reflecting the state the winner produced.
func (e *Engine) lostRace(ctx context.Context, orderID, event string) error {
	o, err := e.orders.Get(ctx, orderID)
	if err != nil {
		return apperr.Conflict("lost a concurrent update on order " + orderID)
	}
	return apperr.InvalidTransition(string(o.Status), event)
}

func (e *Engine) finish(ctx context.Context, orderID, event string) (*Order, error) {
	o, err := e.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	e.logger.Info("order transition applied",
		zap.String("order_id", orderID),
		zap.String("event", event),
		zap.String("status", string(o.Status)),
	)
	e.notify.OrderUpdated(o)
	return o, nil
}
