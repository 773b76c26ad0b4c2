package integration_test

import (
	"context"
	"strings"
	"testing"

	"github.com/cinetick/cinema-ticket-reservation/internal/domain"
	"github.com/cinetick/cinema-ticket-reservation/internal/service"
	"github.com/stretchr/testify/suite"
)

type ReservationSuite struct {
	BaseSuite
}

func TestReservationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration tests in short mode")
	}
	suite.Run(t, new(ReservationSuite))
}

func (s *ReservationSuite) SetupTest() {
	if s.app == nil {
		s.T().Skip("test containers unavailable")
	}

	s.app.Mailer.Reset()
	s.Require().NoError(s.app.Redis.FlushDB(context.Background()).Err())
}

func (s *ReservationSuite) TestPaymentCompletionConfirmsReservation() {
	t := s.T()
	ctx := context.Background()

	screeningID := seedScreening(t, s.app)
	seat1 := seedSeat(t, s.app, 1, 1)
	seat2 := seedSeat(t, s.app, 1, 2)

	reservation, err := s.app.Bookings.CreateReservation(ctx, s.guestInput(screeningID, seat1, seat2))
	s.Require().NoError(err)
	s.Require().NoError(s.app.drain(ctx))

	s.Equal("reserved", seatStatus(t, s.app, seat1))
	s.Equal("reserved", seatStatus(t, s.app, seat2))

	total, err := s.app.Reservations.TotalPrice(ctx, reservation.ID)
	s.Require().NoError(err)
	s.True(total.Equal(seatPrice(20.00)), "total price should be 20.00, got %s", total)

	session, err := s.app.PaymentS.Checkout(ctx, reservation.ID)
	s.Require().NoError(err)
	s.NotEmpty(session.URL)

	p, err := s.app.Payments.GetByReservationId(ctx, reservation.ID)
	s.Require().NoError(err)
	s.True(p.Amount.Equal(seatPrice(20.00)))

	s.Require().NoError(s.app.PaymentS.Complete(ctx, p.ID, "txn_test_1"))
	s.Require().NoError(s.app.drain(ctx))

	s.Equal("confirmed", reservationStatus(t, s.app, reservation.ID))
	s.Equal("occupied", seatStatus(t, s.app, seat1))
	s.Equal("occupied", seatStatus(t, s.app, seat2))
	s.Equal(2, reservationSeatCount(t, s.app, reservation.ID))

	emails := s.app.Mailer.SentEmails()
	s.Require().Len(emails, 2)
	s.Equal("booking_created.tmpl", emails[0].TemplateFile)
	s.Equal("booking_confirmed.tmpl", emails[1].TemplateFile)

	data := emails[1].Data.(map[string]any)
	s.True(strings.HasPrefix(data["ConfirmationCode"].(string), "CONF-"))
}

func (s *ReservationSuite) TestSeatCannotBeDoubleReserved() {
	t := s.T()
	ctx := context.Background()

	screeningID := seedScreening(t, s.app)
	seatID := seedSeat(t, s.app, 2, 1)

	_, err := s.app.Bookings.CreateReservation(ctx, s.guestInput(screeningID, seatID))
	s.Require().NoError(err)

	_, err = s.app.Bookings.CreateReservation(ctx, s.guestInput(screeningID, seatID))
	s.Require().ErrorIs(err, domain.ErrSeatAlreadyReserved)
}

func (s *ReservationSuite) TestCancellationReleasesSeats() {
	t := s.T()
	ctx := context.Background()

	screeningID := seedScreening(t, s.app)
	seatID := seedSeat(t, s.app, 3, 1)

	reservation, err := s.app.Bookings.CreateReservation(ctx, s.guestInput(screeningID, seatID))
	s.Require().NoError(err)
	s.Require().NoError(s.app.drain(ctx))

	outcome, err := s.app.Bookings.CancelReservation(ctx, reservation.ID)
	s.Require().NoError(err)
	s.True(outcome.Released)
	s.Equal(1, outcome.SeatsReleased)

	s.Require().NoError(s.app.drain(ctx))

	s.Equal("cancelled", reservationStatus(t, s.app, reservation.ID))
	s.Equal("available", seatStatus(t, s.app, seatID))
	s.Zero(reservationSeatCount(t, s.app, reservation.ID))

	// The freed seat can be reserved again right away.
	_, err = s.app.Bookings.CreateReservation(ctx, s.guestInput(screeningID, seatID))
	s.Require().NoError(err)
}

func (s *ReservationSuite) TestCancellationLosesAgainstConfirmedReservation() {
	t := s.T()
	ctx := context.Background()

	screeningID := seedScreening(t, s.app)
	seatID := seedSeat(t, s.app, 4, 1)

	reservation, err := s.app.Bookings.CreateReservation(ctx, s.guestInput(screeningID, seatID))
	s.Require().NoError(err)
	s.Require().NoError(s.app.drain(ctx))

	session, err := s.app.PaymentS.Checkout(ctx, reservation.ID)
	s.Require().NoError(err)
	s.NotNil(session)

	p, err := s.app.Payments.GetByReservationId(ctx, reservation.ID)
	s.Require().NoError(err)
	s.Require().NoError(s.app.PaymentS.Complete(ctx, p.ID, "txn_test_2"))
	s.Require().NoError(s.app.drain(ctx))

	outcome, err := s.app.Bookings.CancelReservation(ctx, reservation.ID)
	s.Require().NoError(err)
	s.False(outcome.Released, "a confirmed reservation must not be cancellable")

	s.Equal("confirmed", reservationStatus(t, s.app, reservation.ID))
	s.Equal("occupied", seatStatus(t, s.app, seatID))
}

func (s *ReservationSuite) TestUserReservationNotifiesUserEmail() {
	t := s.T()
	ctx := context.Background()

	screeningID := seedScreening(t, s.app)
	seatID := seedSeat(t, s.app, 5, 1)
	userID := seedUser(t, s.app, "Jordan Park", "jordan@example.com")

	input := service.CreateReservationInput{
		ScreeningID: screeningID,
		UserID:      &userID,
		Seats:       []service.SeatSelection{{SeatID: seatID, Price: seatPrice(12.50)}},
	}

	_, err := s.app.Bookings.CreateReservation(ctx, input)
	s.Require().NoError(err)
	s.Require().NoError(s.app.drain(ctx))

	emails := s.app.Mailer.SentEmails()
	s.Require().Len(emails, 1)
	s.Equal("jordan@example.com", emails[0].Recipient)
}

func (s *ReservationSuite) TestRedeliveredEventsDoNotDuplicateEffects() {
	t := s.T()
	ctx := context.Background()

	screeningID := seedScreening(t, s.app)
	seatID := seedSeat(t, s.app, 6, 1)

	reservation, err := s.app.Bookings.CreateReservation(ctx, s.guestInput(screeningID, seatID))
	s.Require().NoError(err)

	// Deliver the creation events twice, as an at-least-once broker may.
	messages, err := s.app.Bus.Consume(ctx, "booking-created", consumerGroup)
	s.Require().NoError(err)
	s.Require().Len(messages, 1)

	handler, ok := s.app.Handlers.HandlerFor("booking-created")
	s.Require().True(ok)
	s.Require().NoError(handler(ctx, messages[0]))
	s.Require().NoError(handler(ctx, messages[0]))
	s.Require().NoError(s.app.drain(ctx))

	emails := s.app.Mailer.SentEmails()
	s.Len(emails, 1, "redelivery must not email the customer twice")
	s.Equal("reserved", seatStatus(t, s.app, seatID))
	s.Equal("pending", reservationStatus(t, s.app, reservation.ID))
}
