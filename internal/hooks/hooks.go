// Package hooks runs the fire-and-forget collaborators the lifecycle
// engine triggers: the buyer review prompt, the seller reputation
// promotion, and delivery notices. Enqueueing is best-effort; a failed
// enqueue is logged and never fails the transition that caused it.
package hooks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const (
	TaskReviewPrompt   = "order:review_prompt"
	TaskPromoteSeller  = "seller:promote"
	TaskDeliveryNotice = "order:delivered"
)

type ReviewPromptPayload struct {
	OrderID string    `json:"order_id"`
	BuyerID string    `json:"buyer_id"`
	SentAt  time.Time `json:"sent_at"`
}

type PromoteSellerPayload struct {
	SellerID string    `json:"seller_id"`
	OrderID  string    `json:"order_id"`
	SentAt   time.Time `json:"sent_at"`
}

type DeliveryNoticePayload struct {
	OrderID  string    `json:"order_id"`
	BuyerID  string    `json:"buyer_id"`
	SellerID string    `json:"seller_id"`
	SentAt   time.Time `json:"sent_at"`
}

// Queue owns the asynq client and worker server.
type Queue struct {
	client *asynq.Client
	server *asynq.Server
	logger *zap.Logger
}

func New(redisAddr string, logger *zap.Logger) *Queue {
	opts := asynq.RedisClientOpt{Addr: redisAddr}

	q := &Queue{
		client: asynq.NewClient(opts),
		logger: logger,
	}

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskReviewPrompt, q.handleReviewPrompt)
	mux.HandleFunc(TaskPromoteSeller, q.handlePromoteSeller)
	mux.HandleFunc(TaskDeliveryNotice, q.handleDeliveryNotice)

	q.server = asynq.NewServer(opts, asynq.Config{
		Concurrency: 5,
		Queues: map[string]int{
			"hooks": 10,
		},
	})
	go func() {
		if err := q.server.Run(mux); err != nil {
			logger.Warn("hook worker stopped", zap.Error(err))
		}
	}()

	logger.Info("hook queue initialized", zap.String("redis_addr", redisAddr))
	return q
}

func (q *Queue) Close() {
	if q.client != nil {
		_ = q.client.Close()
	}
	if q.server != nil {
		q.server.Shutdown()
	}
}

// OrderDelivered notifies the buyer that work landed.
func (q *Queue) OrderDelivered(orderID, buyerID, sellerID string) {
	q.enqueue(TaskDeliveryNotice, DeliveryNoticePayload{
		OrderID: orderID, BuyerID: buyerID, SellerID: sellerID, SentAt: time.Now(),
	})
}

// OrderCompleted fires the review prompt and the reputation promotion.
func (q *Queue) OrderCompleted(orderID, buyerID, sellerID string) {
	q.enqueue(TaskReviewPrompt, ReviewPromptPayload{
		OrderID: orderID, BuyerID: buyerID, SentAt: time.Now(),
	})
	q.enqueue(TaskPromoteSeller, PromoteSellerPayload{
		SellerID: sellerID, OrderID: orderID, SentAt: time.Now(),
	})
}

func (q *Queue) enqueue(taskType string, payload any) {
	b, err := json.Marshal(payload)
	if err != nil {
		q.logger.Error("marshal hook payload failed", zap.String("task", taskType), zap.Error(err))
		return
	}
	if _, err := q.client.Enqueue(asynq.NewTask(taskType, b), asynq.Queue("hooks")); err != nil {
		q.logger.Warn("enqueue hook failed", zap.String("task", taskType), zap.Error(err))
	}
}

// Handlers below hand off to the out-of-scope subsystems; here they log
// the hand-off.

func (q *Queue) handleReviewPrompt(_ context.Context, t *asynq.Task) error {
	var p ReviewPromptPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return err
	}
	q.logger.Info("review prompt dispatched",
		zap.String("order_id", p.OrderID), zap.String("buyer_id", p.BuyerID))
	return nil
}

func (q *Queue) handlePromoteSeller(_ context.Context, t *asynq.Task) error {
	var p PromoteSellerPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return err
	}
	q.logger.Info("seller promotion requested",
		zap.String("seller_id", p.SellerID), zap.String("order_id", p.OrderID))
	return nil
}

func (q *Queue) handleDeliveryNotice(_ context.Context, t *asynq.Task) error {
	var p DeliveryNoticePayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return err
	}
	q.logger.Info("delivery notice dispatched",
		zap.String("order_id", p.OrderID), zap.String("buyer_id", p.BuyerID))
	return nil
}
