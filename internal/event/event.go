// Package event defines the topics and payload shapes exchanged over the
// message broker. Payloads carry just enough context for a consumer to
// re-fetch authoritative rows by id; they are triggers, not state.
package event

import (
	"time"

	"github.com/cinetick/cinema-ticket-reservation/internal/domain"
	"github.com/shopspring/decimal"
)

type Topic string

const (
	TopicBookingCreated   Topic = "booking-created"
	TopicSeatReserved     Topic = "seat-reserved"
	TopicPaymentProcessed Topic = "payment-processed"
	TopicBookingConfirmed Topic = "booking-confirmed"
	TopicBookingCancelled Topic = "booking-cancelled"
)

// Topics lists every stream a consumer can subscribe to, in the order the
// supervisor starts them.
func Topics() []Topic {
	return []Topic{
		TopicBookingCreated,
		TopicSeatReserved,
		TopicPaymentProcessed,
		TopicBookingConfirmed,
		TopicBookingCancelled,
	}
}

// TopicForReservationStatus maps a new reservation status to the topic that
// announces it. Statuses without a mapped topic emit nothing.
func TopicForReservationStatus(status domain.ReservationStatus) (Topic, bool) {
	switch status {
	case domain.ReservationStatusConfirmed:
		return TopicBookingConfirmed, true
	case domain.ReservationStatusCancelled:
		return TopicBookingCancelled, true
	default:
		return "", false
	}
}

type BookingCreated struct {
	ReservationID int             `json:"reservation_id" validate:"required"`
	UserID        *int            `json:"user_id"`
	ScreeningID   int             `json:"screening_id"`
	Status        string          `json:"status"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	CreatedAt     time.Time       `json:"created_at"`
}

type SeatReserved struct {
	ReservationSeatID int             `json:"reservation_seat_id" validate:"required"`
	ReservationID     int             `json:"reservation_id" validate:"required"`
	SeatID            int             `json:"seat_id" validate:"required"`
	Status            string          `json:"status"`
	Price             decimal.Decimal `json:"price"`
	CreatedAt         time.Time       `json:"created_at"`
}

type PaymentProcessed struct {
	PaymentID     int             `json:"payment_id" validate:"required"`
	ReservationID int             `json:"reservation_id" validate:"required"`
	Status        string          `json:"status" validate:"required"`
	Amount        decimal.Decimal `json:"amount"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ReservationStatusChanged is the shared shape of booking-confirmed and
// booking-cancelled payloads.
type ReservationStatusChanged struct {
	ReservationID int       `json:"reservation_id" validate:"required"`
	Status        string    `json:"status" validate:"required"`
	UpdatedAt     time.Time `json:"updated_at"`
}
