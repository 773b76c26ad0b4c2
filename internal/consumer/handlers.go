// Package consumer contains the event handlers that drive the reservation
// and seat state machine, the per-topic dispatch loop, and the supervisor
// that keeps the dispatchers alive.
//
// Delivery is at-least-once and unordered, so every handler re-fetches
// authoritative rows by id before mutating anything and treats "row not
// found in payload-said state" and "already in target state" as normal:
// running any handler twice on the same payload is a no-op the second time.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cinetick/cinema-ticket-reservation/internal/broker"
	"github.com/cinetick/cinema-ticket-reservation/internal/domain"
	"github.com/cinetick/cinema-ticket-reservation/internal/event"
	"github.com/cinetick/cinema-ticket-reservation/internal/mailer"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
)

const (
	notifyDedupeTTL = 24 * time.Hour

	bookingCreatedTemplate   = "booking_created.tmpl"
	bookingConfirmedTemplate = "booking_confirmed.tmpl"
)

// HandlerFunc processes one consumed message. A returned error means the
// message is dropped after logging; the dispatcher never retries it.
type HandlerFunc func(ctx context.Context, msg broker.Message) error

type Handlers struct {
	reservations domain.ReservationRepository
	seats        domain.SeatRepository
	payments     domain.PaymentRepository
	users        domain.UserRepository
	mailer       mailer.Mailer
	redis        redis.UniversalClient
	bus          broker.Bus
	validate     *validator.Validate
	logger       *slog.Logger
	holdMinutes  int
}

func NewHandlers(
	reservations domain.ReservationRepository,
	seats domain.SeatRepository,
	payments domain.PaymentRepository,
	users domain.UserRepository,
	m mailer.Mailer,
	redisClient redis.UniversalClient,
	bus broker.Bus,
	logger *slog.Logger,
	holdMinutes int) *Handlers {

	return &Handlers{
		reservations: reservations,
		seats:        seats,
		payments:     payments,
		users:        users,
		mailer:       m,
		redis:        redisClient,
		bus:          bus,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		logger:       logger,
		holdMinutes:  holdMinutes,
	}
}

// HandlerFor routes a topic to its handler. Exactly one handler exists per
// topic; unknown topics have none.
func (h *Handlers) HandlerFor(topic event.Topic) (HandlerFunc, bool) {
	switch topic {
	case event.TopicBookingCreated:
		return h.handleBookingCreated, true
	case event.TopicSeatReserved:
		return h.handleSeatReserved, true
	case event.TopicPaymentProcessed:
		return h.handlePaymentProcessed, true
	case event.TopicBookingConfirmed:
		return h.handleBookingConfirmed, true
	case event.TopicBookingCancelled:
		return h.handleBookingCancelled, true
	default:
		return nil, false
	}
}

// handleBookingCreated notifies the reservation holder that their seats are
// on hold. Side effect only; no state change.
func (h *Handlers) handleBookingCreated(ctx context.Context, msg broker.Message) error {
	var payload event.BookingCreated
	if err := h.decode(msg, &payload); err != nil {
		return err
	}

	reservation, err := h.reservations.GetWithSeats(ctx, payload.ReservationID)
	if err != nil {
		return fmt.Errorf("booking-created: reservation %d: %w", payload.ReservationID, err)
	}

	recipient, ok := h.recipient(ctx, reservation)
	if !ok {
		return nil
	}

	h.notifyOnce(ctx, dedupeKey(event.TopicBookingCreated, reservation.ID), recipient, bookingCreatedTemplate, map[string]any{
		"ReservationCode": reservation.ReservationCode,
		"HoldMinutes":     h.holdMinutes,
		"SeatCount":       len(reservation.ReservationSeats),
		"TotalPrice":      reservation.TotalPrice(),
	})

	h.logger.Info("processed booking creation",
		"reservation_id", reservation.ID,
		"recipient", recipient)

	return nil
}

// handleSeatReserved moves the referenced venue seat to reserved. The
// ReservationSeat row is the authority; the payload only locates it.
func (h *Handlers) handleSeatReserved(ctx context.Context, msg broker.Message) error {
	var payload event.SeatReserved
	if err := h.decode(msg, &payload); err != nil {
		return err
	}

	reservationSeat, err := h.reservations.GetReservationSeat(ctx, payload.ReservationSeatID)
	if err != nil {
		return fmt.Errorf("seat-reserved: reservation seat %d: %w", payload.ReservationSeatID, err)
	}

	if reservationSeat.Status == domain.SeatStatusOccupied {
		// The payment landed before this event did. Occupied outranks
		// reserved; leave the seat alone.
		h.logger.Info("seat already occupied, skipping",
			"reservation_id", reservationSeat.ReservationID,
			"seat_id", reservationSeat.SeatID)
		return nil
	}

	reserved, err := h.seats.MarkReserved(ctx, payload.ReservationSeatID)
	if err != nil {
		if errors.Is(err, domain.ErrRecordNotFound) {
			// Cancelled between the read above and the row lock.
			h.logger.Info("seat hold released, skipping",
				"reservation_id", reservationSeat.ReservationID,
				"seat_id", reservationSeat.SeatID)
			return nil
		}
		return fmt.Errorf("seat-reserved: seat %d: %w", reservationSeat.SeatID, err)
	}

	if !reserved {
		h.logger.Info("seat already occupied, skipping",
			"reservation_id", reservationSeat.ReservationID,
			"seat_id", reservationSeat.SeatID)
		return nil
	}

	h.logger.Info("processed seat reservation",
		"reservation_id", reservationSeat.ReservationID,
		"seat_id", reservationSeat.SeatID)

	return nil
}

// handlePaymentProcessed confirms the reservation and occupies its seats
// when the payment completed. A failed payment changes nothing: the
// reservation stays pending until the customer retries or the reaper
// reclaims it.
func (h *Handlers) handlePaymentProcessed(ctx context.Context, msg broker.Message) error {
	var payload event.PaymentProcessed
	if err := h.decode(msg, &payload); err != nil {
		return err
	}

	p, err := h.payments.GetById(ctx, payload.PaymentID)
	if err != nil {
		return fmt.Errorf("payment-processed: payment %d: %w", payload.PaymentID, err)
	}

	if !p.Completed() {
		h.logger.Info("processed payment without completion",
			"payment_id", p.ID,
			"status", p.Status)
		return nil
	}

	confirmed, err := h.reservations.Confirm(ctx, p.ReservationID)
	if err != nil {
		return fmt.Errorf("payment-processed: reservation %d: %w", p.ReservationID, err)
	}

	if !confirmed {
		// Someone else already finished this reservation; re-delivery or
		// a lost race with the reaper. Nothing left to do.
		h.logger.Info("reservation already in terminal state", "reservation_id", p.ReservationID)
		return nil
	}

	// The payload is built from what the won transition already proved.
	// Re-reading the row here could fail and swallow the chained event
	// for good, since redelivery finds the reservation terminal.
	h.bus.Publish(ctx, string(event.TopicBookingConfirmed), event.ReservationStatusChanged{
		ReservationID: p.ReservationID,
		Status:        string(domain.ReservationStatusConfirmed),
		UpdatedAt:     time.Now().UTC(),
	})

	h.logger.Info("processed payment",
		"payment_id", p.ID,
		"reservation_id", p.ReservationID,
		"status", p.Status)

	return nil
}

// handleBookingConfirmed notifies the holder with their confirmation code.
// Side effect only.
func (h *Handlers) handleBookingConfirmed(ctx context.Context, msg broker.Message) error {
	var payload event.ReservationStatusChanged
	if err := h.decode(msg, &payload); err != nil {
		return err
	}

	reservation, err := h.reservations.GetWithSeats(ctx, payload.ReservationID)
	if err != nil {
		return fmt.Errorf("booking-confirmed: reservation %d: %w", payload.ReservationID, err)
	}

	recipient, ok := h.recipient(ctx, reservation)
	if !ok {
		return nil
	}

	h.notifyOnce(ctx, dedupeKey(event.TopicBookingConfirmed, reservation.ID), recipient, bookingConfirmedTemplate, map[string]any{
		"ReservationCode":  reservation.ReservationCode,
		"ConfirmationCode": reservation.ConfirmationCode,
		"SeatCount":        len(reservation.ReservationSeats),
	})

	h.logger.Info("processed booking confirmation",
		"reservation_id", reservation.ID,
		"recipient", recipient)

	return nil
}

// handleBookingCancelled releases every seat the reservation still holds
// and makes sure the reservation itself reads cancelled. The row-locked
// Release makes a second delivery, or a race with the reaper, a no-op.
func (h *Handlers) handleBookingCancelled(ctx context.Context, msg broker.Message) error {
	var payload event.ReservationStatusChanged
	if err := h.decode(msg, &payload); err != nil {
		return err
	}

	outcome, err := h.reservations.Release(ctx, payload.ReservationID)
	if err != nil {
		return fmt.Errorf("booking-cancelled: reservation %d: %w", payload.ReservationID, err)
	}

	h.logger.Info("processed booking cancellation",
		"reservation_id", payload.ReservationID,
		"seats_released", outcome.SeatsReleased)

	return nil
}

func (h *Handlers) decode(msg broker.Message, payload any) error {
	if err := msg.Decode(payload); err != nil {
		return err
	}

	if err := h.validate.Struct(payload); err != nil {
		return fmt.Errorf("unexpected payload shape: %w", err)
	}

	return nil
}

// recipient resolves who to notify. Reservations without any contact
// (neither user nor guest email) are silently skipped.
func (h *Handlers) recipient(ctx context.Context, reservation *domain.Reservation) (string, bool) {
	if reservation.UserID != nil {
		user, err := h.users.GetById(ctx, *reservation.UserID)
		if err != nil {
			h.logger.Error("failed to load reservation owner",
				"reservation_id", reservation.ID,
				"user_id", *reservation.UserID,
				"error", err)
			return "", false
		}
		return user.Email, true
	}

	if reservation.GuestEmail != nil {
		return *reservation.GuestEmail, true
	}

	return "", false
}

// notifyOnce guards the send with a SETNX key so that a re-delivered event
// does not email the customer twice. If redis is down we send anyway: a
// duplicate email beats a missing confirmation.
func (h *Handlers) notifyOnce(ctx context.Context, key, recipient, templateFile string, data any) {
	set, err := h.redis.SetNX(ctx, key, 1, notifyDedupeTTL).Result()
	if err != nil {
		h.logger.Error("notification dedupe check failed", "key", key, "error", err)
	} else if !set {
		h.logger.Debug("skipping duplicate notification", "key", key)
		return
	}

	if err := h.mailer.Send(recipient, templateFile, data); err != nil {
		h.logger.Error("failed to send notification",
			"recipient", recipient,
			"template", templateFile,
			"error", err)
	}
}

func dedupeKey(topic event.Topic, reservationID int) string {
	return fmt.Sprintf("notified:%s:%d", topic, reservationID)
}
