package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cinetick/cinema-ticket-reservation/internal/broker"
	"github.com/cinetick/cinema-ticket-reservation/internal/domain"
	"github.com/cinetick/cinema-ticket-reservation/internal/event"
	"github.com/cinetick/cinema-ticket-reservation/internal/payment"
)

type PaymentService struct {
	payments     domain.PaymentRepository
	reservations domain.ReservationRepository
	users        domain.UserRepository
	provider     payment.Provider
	bus          broker.Bus
	logger       *slog.Logger
}

func NewPaymentService(
	payments domain.PaymentRepository,
	reservations domain.ReservationRepository,
	users domain.UserRepository,
	provider payment.Provider,
	bus broker.Bus,
	logger *slog.Logger) *PaymentService {

	return &PaymentService{
		payments:     payments,
		reservations: reservations,
		users:        users,
		provider:     provider,
		bus:          bus,
		logger:       logger,
	}
}

// Checkout records a pending payment for the reservation and opens a
// checkout session with the payment provider. The amount is the derived
// reservation total, captured on the payment row.
func (s *PaymentService) Checkout(ctx context.Context, reservationID int) (*payment.CheckoutSession, error) {
	reservation, err := s.reservations.GetWithSeats(ctx, reservationID)
	if err != nil {
		return nil, err
	}

	if reservation.Status != domain.ReservationStatusPending {
		return nil, fmt.Errorf("reservation %d is %s: %w",
			reservationID, reservation.Status, domain.ErrEditConflict)
	}

	email, err := s.recipientEmail(ctx, reservation)
	if err != nil {
		return nil, err
	}

	session, err := s.provider.CreateCheckoutSession(email, reservation)
	if err != nil {
		return nil, err
	}

	p := &domain.Payment{
		ReservationID: reservation.ID,
		Amount:        reservation.TotalPrice(),
		Status:        domain.PaymentStatusPending,
		Method:        "card",
	}

	err = s.payments.Create(ctx, p)
	if err != nil {
		return nil, err
	}

	return session, nil
}

// Complete marks the payment completed and publishes payment-processed.
// The downstream consumer is what confirms the reservation and occupies
// the seats; nothing here mutates reservation state directly.
func (s *PaymentService) Complete(ctx context.Context, paymentID int, transactionID string) error {
	return s.updateStatus(ctx, paymentID, domain.PaymentStatusCompleted, transactionID)
}

// Fail marks the payment failed. The reservation stays pending and, if the
// customer never retries, the reaper eventually reclaims the seats.
func (s *PaymentService) Fail(ctx context.Context, paymentID int, transactionID string) error {
	return s.updateStatus(ctx, paymentID, domain.PaymentStatusFailed, transactionID)
}

func (s *PaymentService) updateStatus(
	ctx context.Context,
	paymentID int,
	status domain.PaymentStatus,
	transactionID string) error {

	p, err := s.payments.UpdateStatus(ctx, paymentID, status, transactionID)
	if err != nil {
		return err
	}

	s.bus.Publish(ctx, string(event.TopicPaymentProcessed), event.PaymentProcessed{
		PaymentID:     p.ID,
		ReservationID: p.ReservationID,
		Status:        string(p.Status),
		Amount:        p.Amount,
		UpdatedAt:     p.UpdatedAt,
	})

	s.logger.Info("updated payment status",
		"payment_id", p.ID,
		"reservation_id", p.ReservationID,
		"status", p.Status)

	return nil
}

func (s *PaymentService) recipientEmail(ctx context.Context, reservation *domain.Reservation) (string, error) {
	if reservation.UserID != nil {
		user, err := s.users.GetById(ctx, *reservation.UserID)
		if err != nil {
			return "", err
		}
		return user.Email, nil
	}

	if reservation.GuestEmail != nil {
		return *reservation.GuestEmail, nil
	}

	return "", fmt.Errorf("reservation %d has no contact email", reservation.ID)
}
