package consumer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cinetick/cinema-ticket-reservation/internal/broker"
	"github.com/cinetick/cinema-ticket-reservation/internal/event"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// Breather between drained batches, bounding broker load.
	defaultPollInterval = 100 * time.Millisecond

	// Pause after a failed poll. A broker outage gets a long pause; a bad
	// message does not (it is dropped and the loop moves on).
	defaultErrorBackoff = 5 * time.Second
)

// Dispatcher is the long-running consume loop for one topic. Handler
// failures are logged with enough context for an operator to replay the
// message by hand, then dropped; only a failed poll slows the loop down.
type Dispatcher struct {
	topic   event.Topic
	group   string
	bus     broker.Bus
	handler HandlerFunc
	logger  *slog.Logger

	pollInterval time.Duration
	errorBackoff time.Duration

	handled metric.Int64Counter
	failed  metric.Int64Counter
}

func NewDispatcher(
	topic event.Topic,
	group string,
	bus broker.Bus,
	handlers *Handlers,
	logger *slog.Logger) (*Dispatcher, error) {

	handler, ok := handlers.HandlerFor(topic)
	if !ok {
		return nil, fmt.Errorf("no handler registered for topic %q", topic)
	}

	meter := otel.Meter("cinetick/consumer")
	handled, _ := meter.Int64Counter("consumer.messages.handled",
		metric.WithDescription("Messages handled successfully, by topic"))
	failed, _ := meter.Int64Counter("consumer.messages.failed",
		metric.WithDescription("Messages dropped after a handler failure, by topic"))

	return &Dispatcher{
		topic:        topic,
		group:        group,
		bus:          bus,
		handler:      handler,
		logger:       logger.With("topic", string(topic)),
		pollInterval: defaultPollInterval,
		errorBackoff: defaultErrorBackoff,
		handled:      handled,
		failed:       failed,
	}, nil
}

// Run polls until the context is cancelled. It only ever returns the
// context's error; everything else is absorbed, logged and retried.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("starting consumer", "group", d.group)

	for {
		if err := ctx.Err(); err != nil {
			d.logger.Info("stopping consumer")
			return err
		}

		messages, err := d.bus.Consume(ctx, string(d.topic), d.group)
		if err != nil {
			// Transport trouble, not a bad message: back off instead of
			// hammering a broker that is already struggling.
			if sleepErr := sleepCtx(ctx, d.errorBackoff); sleepErr != nil {
				d.logger.Info("stopping consumer")
				return sleepErr
			}
			continue
		}

		for _, msg := range messages {
			if err := d.handler(ctx, msg); err != nil {
				d.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", string(d.topic))))
				d.logger.Error("handler failed, dropping message",
					"offset", msg.Offset,
					"payload", string(msg.Value),
					"error", err)
				continue
			}
			d.handled.Add(ctx, 1, metric.WithAttributes(attribute.String("topic", string(d.topic))))
		}

		if err := sleepCtx(ctx, d.pollInterval); err != nil {
			d.logger.Info("stopping consumer")
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
