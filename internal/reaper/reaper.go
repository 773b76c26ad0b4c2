// Package reaper reclaims seats from reservations that were started but
// never paid for. It competes with the event handlers for the same rows;
// the row-locked Release transition is what keeps them from both winning.
package reaper

import (
	"context"
	"log/slog"
	"time"

	"github.com/cinetick/cinema-ticket-reservation/internal/broker"
	"github.com/cinetick/cinema-ticket-reservation/internal/domain"
	"github.com/cinetick/cinema-ticket-reservation/internal/event"
	"github.com/go-co-op/gocron/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// DefaultTimeout is how long a pending reservation may sit before it
// counts as abandoned.
const DefaultTimeout = 15 * time.Minute

// DefaultInterval is how often the scheduled sweep runs.
const DefaultInterval = 5 * time.Minute

const sweepBudget = 2 * time.Minute

type Reaper struct {
	reservations domain.ReservationRepository
	bus          broker.Bus
	logger       *slog.Logger

	reaped metric.Int64Counter
}

func New(reservations domain.ReservationRepository, bus broker.Bus, logger *slog.Logger) *Reaper {
	meter := otel.Meter("cinetick/reaper")
	reaped, _ := meter.Int64Counter("reaper.reservations.cancelled",
		metric.WithDescription("Abandoned reservations cancelled by the reaper"))

	return &Reaper{
		reservations: reservations,
		bus:          bus,
		logger:       logger,
		reaped:       reaped,
	}
}

// SweepReport summarizes one sweep.
type SweepReport struct {
	Examined      int
	Cancelled     int
	SeatsReleased int
	Failed        int
}

// Sweep cancels every pending reservation older than the timeout and frees
// its seats. Each reservation is its own transaction: one bad row is
// logged and skipped, never aborting the rest of the batch. A reservation
// that a racing handler already finished counts as examined, not
// cancelled.
func (r *Reaper) Sweep(ctx context.Context, olderThan time.Duration) (SweepReport, error) {
	cutoff := time.Now().Add(-olderThan)

	r.logger.Info("sweeping abandoned reservations", "cutoff", cutoff)

	abandoned, err := r.reservations.FindAbandoned(ctx, cutoff)
	if err != nil {
		return SweepReport{}, err
	}

	report := SweepReport{Examined: len(abandoned)}

	for _, reservation := range abandoned {
		outcome, err := r.reservations.Release(ctx, reservation.ID)
		if err != nil {
			report.Failed++
			r.logger.Error("failed to cancel abandoned reservation",
				"reservation_id", reservation.ID,
				"error", err)
			continue
		}

		if !outcome.Released {
			// Lost the race: a handler confirmed or cancelled it between
			// our select and the row lock.
			continue
		}

		report.Cancelled++
		report.SeatsReleased += outcome.SeatsReleased
		r.reaped.Add(ctx, 1)

		r.bus.Publish(ctx, string(event.TopicBookingCancelled), event.ReservationStatusChanged{
			ReservationID: reservation.ID,
			Status:        string(domain.ReservationStatusCancelled),
			UpdatedAt:     time.Now().UTC(),
		})

		r.logger.Info("cancelled abandoned reservation",
			"reservation_id", reservation.ID,
			"created_at", reservation.CreatedAt,
			"seats_released", outcome.SeatsReleased,
			"owner", ownerLabel(reservation))
	}

	r.logger.Info("sweep finished",
		"examined", report.Examined,
		"cancelled", report.Cancelled,
		"seats_released", report.SeatsReleased,
		"failed", report.Failed)

	return report, nil
}

// Schedule registers the recurring sweep on the scheduler. Each run gets
// its own bounded context so a wedged sweep cannot pile up behind itself.
func (r *Reaper) Schedule(scheduler gocron.Scheduler, interval, olderThan time.Duration) (gocron.Job, error) {
	return scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), sweepBudget)
			defer cancel()

			if _, err := r.Sweep(ctx, olderThan); err != nil {
				r.logger.Error("scheduled sweep failed", "error", err)
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
}

func ownerLabel(reservation domain.Reservation) string {
	if reservation.UserID != nil {
		return "user"
	}
	if reservation.GuestEmail != nil {
		return *reservation.GuestEmail
	}
	return "unknown"
}
