package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type ReservationStatus string

const (
	ReservationStatusPending   ReservationStatus = "pending"
	ReservationStatusConfirmed ReservationStatus = "confirmed"
	ReservationStatusCancelled ReservationStatus = "cancelled"
)

// Terminal reports whether the status is one of the two terminal states.
// There is no transition out of confirmed or cancelled.
func (s ReservationStatus) Terminal() bool {
	return s == ReservationStatusConfirmed || s == ReservationStatusCancelled
}

type Reservation struct {
	ID               int
	ScreeningID      int
	UserID           *int
	GuestName        *string
	GuestEmail       *string
	GuestPhone       *string
	Status           ReservationStatus
	ReservationCode  string
	ConfirmationCode string
	ReservationSeats []ReservationSeat
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TotalPrice is derived from the child seats and never stored.
func (r *Reservation) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, rs := range r.ReservationSeats {
		total = total.Add(rs.Price)
	}
	return total
}

// ReservationSeat links a reservation to a seat. Price is fixed at
// reservation time and is never recomputed from current seat pricing.
// Rows are deleted when the reservation is cancelled or reaped, which
// frees the seat for the next reservation.
type ReservationSeat struct {
	ID            int
	ReservationID int
	SeatID        int
	Price         decimal.Decimal
	Status        SeatStatus
	CreatedAt     time.Time
}

// ReleaseOutcome reports what a Release call did, so callers can tell a
// won transition apart from a benign no-op on an already-terminal row.
type ReleaseOutcome struct {
	Released      bool
	SeatsReleased int
}

type ReservationRepository interface {
	Create(ctx context.Context, reservation *Reservation) error
	GetById(ctx context.Context, id int) (*Reservation, error)
	GetWithSeats(ctx context.Context, id int) (*Reservation, error)
	GetReservationSeat(ctx context.Context, id int) (*ReservationSeat, error)
	TotalPrice(ctx context.Context, id int) (decimal.Decimal, error)

	// Confirm moves a pending reservation to confirmed and its seats to
	// occupied inside one row-locked transaction. It returns false without
	// error when the reservation is already in a terminal state.
	Confirm(ctx context.Context, id int) (bool, error)

	// Release moves a pending reservation to cancelled, deletes its
	// ReservationSeat rows and frees the seats, all inside one row-locked
	// transaction. Confirmed reservations are left untouched (there is no
	// confirmed-to-cancelled transition); already-cancelled reservations
	// only sweep up whatever seat rows are still left, so running Release
	// twice is safe.
	Release(ctx context.Context, id int) (ReleaseOutcome, error)

	// FindAbandoned returns pending reservations created before the cutoff,
	// with their seats loaded.
	FindAbandoned(ctx context.Context, cutoff time.Time) ([]Reservation, error)
}
