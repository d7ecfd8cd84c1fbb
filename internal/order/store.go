package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atelierhq/atelier/internal/apperr"
	"github.com/atelierhq/atelier/internal/conversation"
)

// Store persists orders and their append-only ledgers. The guarded
// mutation methods apply a transition only when the order is still in the
// expected state and report whether the guard matched, so concurrent
// conflicting transitions resolve to exactly one winner.
type Store interface {
	Get(ctx context.Context, id string) (*Order, error)
	ListByParticipant(ctx context.Context, userID string) ([]Order, error)

	// CreateFromOffer flips the offer message pending -> consumed and
	// inserts the order as one atomic unit. A lost race surfaces as
	// apperr.OfferAlreadyConsumed, never as a duplicate order.
	CreateFromOffer(ctx context.Context, msg *conversation.Message, buyerID string, now time.Time) (*Order, error)

	StartProgress(ctx context.Context, id, requirements string, now time.Time) (bool, error)
	Deliver(ctx context.Context, id string, from Status, files []DeliveredFile, now time.Time) (bool, error)
	Complete(ctx context.Context, id string, now time.Time) (bool, error)
	OpenRevision(ctx context.Context, id string, req RevisionRequest) (bool, error)

	ListFiles(ctx context.Context, orderID string) ([]DeliveredFile, error)
	ListRevisions(ctx context.Context, orderID string) ([]RevisionRequest, error)
}

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const orderColumns = `id, buyer_id, seller_id, amount, status, requirements,
	service_reference, source_message_id, created_at, started_at, delivered_at, completed_at`

func (s *PostgresStore) Get(ctx context.Context, id string) (*Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound(fmt.Sprintf("order %s not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("querying order: %w", err)
	}
	return o, nil
}

func (s *PostgresStore) ListByParticipant(ctx context.Context, userID string) ([]Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE buyer_id = $1 OR seller_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	defer rows.Close()

	var orders []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning order: %w", err)
		}
		orders = append(orders, *o)
	}
	return orders, rows.Err()
}

func (s *PostgresStore) CreateFromOffer(ctx context.Context, msg *conversation.Message, buyerID string, now time.Time) (*Order, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// The conditional update is the whole concurrency story: of two
	// racing acceptances only one sees offer_status = 'pending'.
	tag, err := tx.Exec(ctx,
		`UPDATE messages SET offer_status = $1 WHERE id = $2 AND offer_status = $3`,
		conversation.OfferConsumed, msg.ID, conversation.OfferPending,
	)
	if err != nil {
		return nil, fmt.Errorf("consuming offer: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, apperr.OfferAlreadyConsumed(msg.ID)
	}

	o := &Order{
		ID:              uuid.New().String(),
		BuyerID:         buyerID,
		SellerID:        msg.SenderID,
		Amount:          msg.Offer.Price,
		Status:          StatusPendingRequirements,
		SourceMessageID: &msg.ID,
		CreatedAt:       now,
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO orders (id, buyer_id, seller_id, amount, status, source_message_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		o.ID, o.BuyerID, o.SellerID, o.Amount, o.Status, msg.ID, now,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting order: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing offer acceptance: %w", err)
	}
	return o, nil
}

func (s *PostgresStore) StartProgress(ctx context.Context, id, requirements string, now time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE orders SET status = $1, requirements = $2, started_at = $3
		 WHERE id = $4 AND status = $5`,
		StatusInProgress, requirements, now, id, StatusPendingRequirements,
	)
	if err != nil {
		return false, fmt.Errorf("starting order: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) Deliver(ctx context.Context, id string, from Status, files []DeliveredFile, now time.Time) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// delivered_at keeps its first value across re-deliveries.
	tag, err := tx.Exec(ctx,
		`UPDATE orders SET status = $1, delivered_at = COALESCE(delivered_at, $2)
		 WHERE id = $3 AND status = $4`,
		StatusDelivered, now, id, from,
	)
	if err != nil {
		return false, fmt.Errorf("marking order delivered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	for _, f := range files {
		_, err = tx.Exec(ctx,
			`INSERT INTO delivered_files (id, order_id, uploader_id, file_name, size, content_type, storage_path, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			f.ID, id, f.UploaderID, f.FileName, f.Size, f.ContentType, f.StoragePath, now,
		)
		if err != nil {
			return false, fmt.Errorf("inserting delivered file: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("committing delivery: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) Complete(ctx context.Context, id string, now time.Time) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE orders SET status = $1, completed_at = $2 WHERE id = $3 AND status = $4`,
		StatusCompleted, now, id, StatusDelivered,
	)
	if err != nil {
		return false, fmt.Errorf("completing order: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) OpenRevision(ctx context.Context, id string, req RevisionRequest) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE orders SET status = $1 WHERE id = $2 AND status = $3`,
		StatusRevision, id, StatusDelivered,
	)
	if err != nil {
		return false, fmt.Errorf("marking order in revision: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO revision_requests (id, order_id, requester_id, comment, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		req.ID, id, req.RequesterID, req.Comment, req.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("inserting revision request: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("committing revision request: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) ListFiles(ctx context.Context, orderID string) ([]DeliveredFile, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, order_id, uploader_id, file_name, size, content_type, storage_path, created_at
		 FROM delivered_files WHERE order_id = $1 ORDER BY created_at ASC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing delivered files: %w", err)
	}
	defer rows.Close()

	var files []DeliveredFile
	for rows.Next() {
		var f DeliveredFile
		if err := rows.Scan(&f.ID, &f.OrderID, &f.UploaderID, &f.FileName, &f.Size, &f.ContentType, &f.StoragePath, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning delivered file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func (s *PostgresStore) ListRevisions(ctx context.Context, orderID string) ([]RevisionRequest, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, order_id, requester_id, comment, created_at
		 FROM revision_requests WHERE order_id = $1 ORDER BY created_at ASC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing revision requests: %w", err)
	}
	defer rows.Close()

	var reqs []RevisionRequest
	for rows.Next() {
		var r RevisionRequest
		if err := rows.Scan(&r.ID, &r.OrderID, &r.RequesterID, &r.Comment, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning revision request: %w", err)
		}
		reqs = append(reqs, r)
	}
	return reqs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*Order, error) {
	var (
		o            Order
		requirements *string
	)
	err := row.Scan(
		&o.ID, &o.BuyerID, &o.SellerID, &o.Amount, &o.Status, &requirements,
		&o.ServiceReference, &o.SourceMessageID, &o.CreatedAt,
		&o.StartedAt, &o.DeliveredAt, &o.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if requirements != nil {
		o.Requirements = *requirements
	}
	return &o, nil
}
