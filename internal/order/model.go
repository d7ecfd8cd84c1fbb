package order

import "time"

type Status string

const (
	StatusPendingRequirements Status = "pending_requirements"
	StatusInProgress          Status = "in_progress"
	StatusDelivered           Status = "delivered"
	StatusRevision            Status = "revision"
	StatusCompleted           Status = "completed"
)

// Terminal reports whether no further transitions are defined.
func (s Status) Terminal() bool {
	return s == StatusCompleted
}

// Order is the durable record of one commissioned engagement. Buyer,
// seller and amount are fixed at creation; status only moves forward
// along the documented edges.
type Order struct {
	ID               string     `json:"id"`
	BuyerID          string     `json:"buyer_id"`
	SellerID         string     `json:"seller_id"`
	Amount           int64      `json:"amount"`
	Status           Status     `json:"status"`
	Requirements     string     `json:"requirements,omitempty"`
	ServiceReference *string    `json:"service_reference,omitempty"`
	SourceMessageID  *string    `json:"source_message_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	DeliveredAt      *time.Time `json:"delivered_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// DeliveredFile is an append-only record of one file attached to a
// delivery. Only metadata lives here; bytes live in object storage.
type DeliveredFile struct {
	ID          string    `json:"id"`
	OrderID     string    `json:"order_id"`
	UploaderID  string    `json:"uploader_id"`
	FileName    string    `json:"file_name"`
	Size        int64     `json:"size"`
	ContentType string    `json:"content_type"`
	StoragePath string    `json:"storage_path"`
	CreatedAt   time.Time `json:"created_at"`
}

// RevisionRequest is an append-only buyer note demanding rework.
type RevisionRequest struct {
	ID          string    `json:"id"`
	OrderID     string    `json:"order_id"`
	RequesterID string    `json:"requester_id"`
	Comment     string    `json:"comment"`
	CreatedAt   time.Time `json:"created_at"`
}
