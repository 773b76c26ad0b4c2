package reaper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/cinetick/cinema-ticket-reservation/internal/domain"
	"github.com/cinetick/cinema-ticket-reservation/internal/event"
	"github.com/cinetick/cinema-ticket-reservation/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestReaper(reservations *mocks.MockReservationRepo, bus *mocks.MockBus) *Reaper {
	return New(reservations, bus, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func abandonedReservation(id int, age time.Duration) domain.Reservation {
	return domain.Reservation{
		ID:        id,
		Status:    domain.ReservationStatusPending,
		CreatedAt: time.Now().Add(-age),
	}
}

func TestSweep_CancelsAbandonedReservations(t *testing.T) {
	reservations := new(mocks.MockReservationRepo)
	bus := new(mocks.MockBus)
	r := newTestReaper(reservations, bus)

	reservations.On("FindAbandoned", mock.Anything, mock.Anything).
		Return([]domain.Reservation{
			abandonedReservation(1, 20*time.Minute),
			abandonedReservation(2, 30*time.Minute),
		}, nil)
	reservations.On("Release", mock.Anything, 1).
		Return(domain.ReleaseOutcome{Released: true, SeatsReleased: 2}, nil)
	reservations.On("Release", mock.Anything, 2).
		Return(domain.ReleaseOutcome{Released: true, SeatsReleased: 1}, nil)
	bus.On("Publish", mock.Anything, string(event.TopicBookingCancelled), mock.Anything).
		Return(true).Twice()

	report, err := r.Sweep(context.Background(), 15*time.Minute)

	require.NoError(t, err)
	assert.Equal(t, SweepReport{Examined: 2, Cancelled: 2, SeatsReleased: 3}, report)
	reservations.AssertExpectations(t)
	bus.AssertExpectations(t)
}

func TestSweep_UsesCutoffFromTimeout(t *testing.T) {
	reservations := new(mocks.MockReservationRepo)
	bus := new(mocks.MockBus)
	r := newTestReaper(reservations, bus)

	reservations.On("FindAbandoned", mock.Anything, mock.MatchedBy(func(cutoff time.Time) bool {
		want := time.Now().Add(-15 * time.Minute)
		return cutoff.Sub(want).Abs() < time.Second
	})).Return([]domain.Reservation{}, nil)

	report, err := r.Sweep(context.Background(), 15*time.Minute)

	require.NoError(t, err)
	assert.Equal(t, SweepReport{}, report)
	reservations.AssertExpectations(t)
}

func TestSweep_SkipsReservationsLostToARacingHandler(t *testing.T) {
	reservations := new(mocks.MockReservationRepo)
	bus := new(mocks.MockBus)
	r := newTestReaper(reservations, bus)

	reservations.On("FindAbandoned", mock.Anything, mock.Anything).
		Return([]domain.Reservation{abandonedReservation(7, 20 * time.Minute)}, nil)
	reservations.On("Release", mock.Anything, 7).
		Return(domain.ReleaseOutcome{}, nil)

	report, err := r.Sweep(context.Background(), 15*time.Minute)

	require.NoError(t, err)
	assert.Equal(t, SweepReport{Examined: 1}, report)
	bus.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}

func TestSweep_OneFailureDoesNotAbortTheBatch(t *testing.T) {
	reservations := new(mocks.MockReservationRepo)
	bus := new(mocks.MockBus)
	r := newTestReaper(reservations, bus)

	reservations.On("FindAbandoned", mock.Anything, mock.Anything).
		Return([]domain.Reservation{
			abandonedReservation(1, 20*time.Minute),
			abandonedReservation(2, 20*time.Minute),
		}, nil)
	reservations.On("Release", mock.Anything, 1).
		Return(domain.ReleaseOutcome{}, errors.New("deadlock detected"))
	reservations.On("Release", mock.Anything, 2).
		Return(domain.ReleaseOutcome{Released: true, SeatsReleased: 3}, nil)
	bus.On("Publish", mock.Anything, string(event.TopicBookingCancelled), mock.Anything).
		Return(true).Once()

	report, err := r.Sweep(context.Background(), 15*time.Minute)

	require.NoError(t, err)
	assert.Equal(t, SweepReport{Examined: 2, Cancelled: 1, SeatsReleased: 3, Failed: 1}, report)
	reservations.AssertExpectations(t)
	bus.AssertExpectations(t)
}

func TestSweep_QueryFailure(t *testing.T) {
	reservations := new(mocks.MockReservationRepo)
	bus := new(mocks.MockBus)
	r := newTestReaper(reservations, bus)

	reservations.On("FindAbandoned", mock.Anything, mock.Anything).
		Return(nil, errors.New("connection refused"))

	_, err := r.Sweep(context.Background(), 15*time.Minute)

	require.Error(t, err)
	bus.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)
}
