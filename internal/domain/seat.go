package domain

import (
	"context"
	"time"
)

type SeatStatus string

const (
	SeatStatusAvailable SeatStatus = "available"
	SeatStatusReserved  SeatStatus = "reserved"
	SeatStatusOccupied  SeatStatus = "occupied"
)

// Seat is owned by the venue, not by any single reservation. Its status
// tracks whichever active reservation currently holds it; at most one
// non-cancelled ReservationSeat may reference a seat at a time.
type Seat struct {
	ID        int
	Row       int
	Col       int
	Status    SeatStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

type SeatRepository interface {
	GetById(ctx context.Context, id int) (*Seat, error)

	// MarkReserved moves the seat held by the given ReservationSeat to
	// reserved. The transition locks the owning reservation row, so it
	// serializes with Confirm and Release: a hold that was cancelled
	// reports ErrRecordNotFound, a hold that was already occupied reports
	// false, and an occupied seat is never downgraded.
	MarkReserved(ctx context.Context, reservationSeatID int) (bool, error)
}
