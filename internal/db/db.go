package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Connect opens the shared Postgres pool and verifies the connection.
func Connect(ctx context.Context, dsn string, logger *zap.Logger) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	logger.Info("connected to postgres")
	return pool, nil
}

// EnsureSchema creates the tables the order core relies on. Statuses are
// constrained in the schema so a bad write fails loudly instead of leaving
// an order in an undefined state.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id UUID PRIMARY KEY,
			participant_a UUID NOT NULL,
			participant_b UUID NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CHECK (participant_a <> participant_b)
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id UUID PRIMARY KEY,
			conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			sender_id UUID NOT NULL,
			kind TEXT NOT NULL CHECK (kind IN ('text', 'offer')),
			content TEXT NULL,
			offer_title TEXT NULL,
			offer_price BIGINT NULL CHECK (offer_price IS NULL OR offer_price > 0),
			offer_delivery_days INTEGER NULL CHECK (offer_delivery_days IS NULL OR offer_delivery_days > 0),
			offer_status TEXT NULL CHECK (offer_status IN ('pending', 'consumed')),
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation_created
			ON messages(conversation_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS orders (
			id UUID PRIMARY KEY,
			buyer_id UUID NOT NULL,
			seller_id UUID NOT NULL,
			amount BIGINT NOT NULL CHECK (amount >= 0),
			status TEXT NOT NULL CHECK (status IN (
				'pending_requirements', 'in_progress', 'delivered', 'revision', 'completed'
			)),
			requirements TEXT NULL,
			service_reference UUID NULL,
			source_message_id UUID NULL REFERENCES messages(id),
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
			started_at TIMESTAMP WITH TIME ZONE NULL,
			delivered_at TIMESTAMP WITH TIME ZONE NULL,
			completed_at TIMESTAMP WITH TIME ZONE NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_buyer ON orders(buyer_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_seller ON orders(seller_id, created_at)`,
		`CREATE TABLE IF NOT EXISTS delivered_files (
			id UUID PRIMARY KEY,
			order_id UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
			uploader_id UUID NOT NULL,
			file_name TEXT NOT NULL,
			size BIGINT NOT NULL,
			content_type TEXT NOT NULL,
			storage_path TEXT NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_delivered_files_order ON delivered_files(order_id)`,
		`CREATE TABLE IF NOT EXISTS revision_requests (
			id UUID PRIMARY KEY,
			order_id UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
			requester_id UUID NOT NULL,
			comment TEXT NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_revision_requests_order ON revision_requests(order_id)`,
		`CREATE TABLE IF NOT EXISTS disputes (
			id UUID PRIMARY KEY,
			order_id UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
			filer_id UUID NOT NULL,
			reason TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'open' CHECK (status IN ('open', 'resolved')),
			created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_disputes_order ON disputes(order_id)`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensuring schema: %w", err)
		}
	}
	return nil
}
