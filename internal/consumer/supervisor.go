package consumer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cinetick/cinema-ticket-reservation/internal/broker"
	"github.com/cinetick/cinema-ticket-reservation/internal/event"
)

// Interval between liveness checks on a dispatcher that has exited.
const restartInterval = time.Second

// Supervisor runs one dispatcher per topic and restarts any that stops
// while the process is still meant to be running. Dispatchers are
// crash-isolated from each other: a panic escaping one handler takes down
// only that topic's loop, and only until the next restart.
type Supervisor struct {
	bus      broker.Bus
	handlers *Handlers
	group    string
	logger   *slog.Logger
}

func NewSupervisor(bus broker.Bus, handlers *Handlers, group string, logger *slog.Logger) *Supervisor {
	return &Supervisor{
		bus:      bus,
		handlers: handlers,
		group:    group,
		logger:   logger,
	}
}

// Run blocks until the context is cancelled and every dispatcher has
// stopped.
func (s *Supervisor) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	for _, topic := range event.Topics() {
		dispatcher, err := NewDispatcher(topic, s.group, s.bus, s.handlers, s.logger)
		if err != nil {
			return err
		}

		wg.Add(1)
		go func(topic event.Topic) {
			defer wg.Done()
			s.superviseLoop(ctx, topic, dispatcher)
		}(topic)

		s.logger.Info("started consumer", "topic", string(topic))
	}

	wg.Wait()
	return ctx.Err()
}

func (s *Supervisor) superviseLoop(ctx context.Context, topic event.Topic, dispatcher *Dispatcher) {
	for {
		s.runIsolated(ctx, dispatcher)

		if ctx.Err() != nil {
			return
		}

		s.logger.Error("consumer stopped unexpectedly, restarting", "topic", string(topic))

		if err := sleepCtx(ctx, restartInterval); err != nil {
			return
		}
	}
}

// runIsolated contains a dispatcher crash so the other topics keep
// consuming.
func (s *Supervisor) runIsolated(ctx context.Context, dispatcher *Dispatcher) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("consumer panicked", "topic", string(dispatcher.topic), "panic", r)
		}
	}()

	_ = dispatcher.Run(ctx)
}
