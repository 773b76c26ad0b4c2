// Package service holds the application services that own entity mutations.
// Each mutation that other parts of the system care about is followed by an
// explicit, visible publish to the event bus. Publishing is best-effort:
// the database write is committed first and stands whether or not the
// broker accepted the event.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/cinetick/cinema-ticket-reservation/internal/broker"
	"github.com/cinetick/cinema-ticket-reservation/internal/domain"
	"github.com/cinetick/cinema-ticket-reservation/internal/event"
	"github.com/shopspring/decimal"
)

type BookingService struct {
	reservations domain.ReservationRepository
	bus          broker.Bus
	logger       *slog.Logger
}

func NewBookingService(
	reservations domain.ReservationRepository,
	bus broker.Bus,
	logger *slog.Logger) *BookingService {

	return &BookingService{
		reservations: reservations,
		bus:          bus,
		logger:       logger,
	}
}

// SeatSelection is one seat in a new reservation. The price is captured
// here, at reservation time, and never recomputed afterwards.
type SeatSelection struct {
	SeatID int
	Price  decimal.Decimal
}

type CreateReservationInput struct {
	ScreeningID int
	UserID      *int
	GuestName   *string
	GuestEmail  *string
	GuestPhone  *string
	Seats       []SeatSelection
}

// CreateReservation inserts a pending reservation with its seats, then
// announces it: one booking-created event plus one seat-reserved event per
// seat. The seat-reserved consumer is what flips the venue seats to
// reserved.
func (s *BookingService) CreateReservation(
	ctx context.Context,
	input CreateReservationInput) (*domain.Reservation, error) {

	reservation := &domain.Reservation{
		ScreeningID:      input.ScreeningID,
		UserID:           input.UserID,
		GuestName:        input.GuestName,
		GuestEmail:       input.GuestEmail,
		GuestPhone:       input.GuestPhone,
		Status:           domain.ReservationStatusPending,
		ReservationCode:  generateReservationCode(),
		ConfirmationCode: generateConfirmationCode(),
	}

	for _, seat := range input.Seats {
		reservation.ReservationSeats = append(reservation.ReservationSeats, domain.ReservationSeat{
			SeatID: seat.SeatID,
			Price:  seat.Price,
			Status: domain.SeatStatusReserved,
		})
	}

	err := s.reservations.Create(ctx, reservation)
	if err != nil {
		return nil, err
	}

	s.bus.Publish(ctx, string(event.TopicBookingCreated), event.BookingCreated{
		ReservationID: reservation.ID,
		UserID:        reservation.UserID,
		ScreeningID:   reservation.ScreeningID,
		Status:        string(reservation.Status),
		TotalPrice:    reservation.TotalPrice(),
		CreatedAt:     reservation.CreatedAt,
	})

	for _, seat := range reservation.ReservationSeats {
		s.bus.Publish(ctx, string(event.TopicSeatReserved), event.SeatReserved{
			ReservationSeatID: seat.ID,
			ReservationID:     seat.ReservationID,
			SeatID:            seat.SeatID,
			Status:            string(seat.Status),
			Price:             seat.Price,
			CreatedAt:         seat.CreatedAt,
		})
	}

	s.logger.Info("created reservation",
		"reservation_id", reservation.ID,
		"screening_id", reservation.ScreeningID,
		"seats", len(reservation.ReservationSeats))

	return reservation, nil
}

// CancelReservation cancels a pending reservation, releasing its seats in
// the same transaction, and announces the cancellation when this call is
// the one that won the transition.
func (s *BookingService) CancelReservation(ctx context.Context, id int) (domain.ReleaseOutcome, error) {
	outcome, err := s.reservations.Release(ctx, id)
	if err != nil {
		return outcome, err
	}

	if outcome.Released {
		s.publishStatusChange(ctx, id, domain.ReservationStatusCancelled)
	}

	return outcome, nil
}

func (s *BookingService) publishStatusChange(ctx context.Context, id int, status domain.ReservationStatus) {
	topic, ok := event.TopicForReservationStatus(status)
	if !ok {
		return
	}

	// Built from the transition the caller just won; re-reading the row
	// could fail and lose the event for good.
	s.bus.Publish(ctx, string(topic), event.ReservationStatusChanged{
		ReservationID: id,
		Status:        string(status),
		UpdatedAt:     time.Now().UTC(),
	})
}
