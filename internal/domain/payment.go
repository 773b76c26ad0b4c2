package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
)

// Payment belongs to exactly one reservation. Status mutations are the
// trigger for seat occupation downstream.
type Payment struct {
	ID            int
	ReservationID int
	Amount        decimal.Decimal
	Status        PaymentStatus
	Method        string
	TransactionID *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (p *Payment) Completed() bool {
	return p.Status == PaymentStatusCompleted
}

type PaymentRepository interface {
	Create(ctx context.Context, payment *Payment) error
	GetById(ctx context.Context, id int) (*Payment, error)
	GetByReservationId(ctx context.Context, reservationID int) (*Payment, error)
	UpdateStatus(ctx context.Context, id int, status PaymentStatus, transactionID string) (*Payment, error)
}
