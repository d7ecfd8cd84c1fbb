// Package dispute is the delegate behind the report-problem action. The
// resolution workflow itself lives outside the order core; filing a
// dispute never touches the order's status.
package dispute

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

type Dispute struct {
	ID        string    `json:"id"`
	OrderID   string    `json:"order_id"`
	FilerID   string    `json:"filer_id"`
	Reason    string    `json:"reason"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	return &PostgresStore{pool: pool, logger: logger}
}

// File opens a dispute against an order.
func (s *PostgresStore) File(ctx context.Context, orderID, filerID, reason string) error {
	id := uuid.New().String()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO disputes (id, order_id, filer_id, reason) VALUES ($1, $2, $3, $4)`,
		id, orderID, filerID, reason,
	)
	if err != nil {
		return fmt.Errorf("filing dispute: %w", err)
	}

	s.logger.Info("dispute filed",
		zap.String("dispute_id", id),
		zap.String("order_id", orderID),
		zap.String("filer_id", filerID),
	)
	return nil
}
