package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/cinetick/cinema-ticket-reservation/internal/consumer"
	"github.com/cinetick/cinema-ticket-reservation/internal/event"
	"github.com/cinetick/cinema-ticket-reservation/internal/reaper"
	"github.com/go-co-op/gocron/v2"
	"github.com/spf13/cobra"
)

func newConsumeCommand(cfg *runtimeConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "consume <topic>",
		Short: "Run the consumer for a single topic",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := newRuntime(ctx, cfg)
			if err != nil {
				return err
			}
			defer rt.close()

			dispatcher, err := consumer.NewDispatcher(
				event.Topic(args[0]), cfg.ConsumerGroup, rt.bus, rt.handlers, rt.logger)
			if err != nil {
				return err
			}

			err = dispatcher.Run(ctx)
			if err == context.Canceled {
				return nil
			}
			return err
		},
	}
}

func newSuperviseCommand(cfg *runtimeConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "supervise",
		Short: "Run one supervised consumer per topic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := newRuntime(ctx, cfg)
			if err != nil {
				return err
			}
			defer rt.close()

			supervisor := consumer.NewSupervisor(rt.bus, rt.handlers, cfg.ConsumerGroup, rt.logger)

			err = supervisor.Run(ctx)
			if err == context.Canceled {
				return nil
			}
			return err
		},
	}
}

func newReapCommand(cfg *runtimeConfig) *cobra.Command {
	var (
		minutes int
		daemon  bool
	)

	cmd := &cobra.Command{
		Use:   "reap",
		Short: "Cancel abandoned reservations and free their seats",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rt, err := newRuntime(ctx, cfg)
			if err != nil {
				return err
			}
			defer rt.close()

			olderThan := time.Duration(minutes) * time.Minute

			if !daemon {
				report, err := rt.reaper.Sweep(ctx, olderThan)
				if err != nil {
					return err
				}

				fmt.Printf("examined %d, cancelled %d, released %d seats, %d failed\n",
					report.Examined, report.Cancelled, report.SeatsReleased, report.Failed)
				return nil
			}

			scheduler, err := gocron.NewScheduler()
			if err != nil {
				return err
			}

			_, err = rt.reaper.Schedule(scheduler, reaper.DefaultInterval, olderThan)
			if err != nil {
				return err
			}

			scheduler.Start()
			rt.logger.Info("reaper scheduled",
				"interval", reaper.DefaultInterval,
				"older_than", olderThan)

			<-ctx.Done()
			return scheduler.Shutdown()
		},
	}

	cmd.Flags().IntVar(&minutes, "minutes", int(reaper.DefaultTimeout.Minutes()),
		"Age in minutes after which a pending reservation is abandoned")
	cmd.Flags().BoolVar(&daemon, "daemon", false,
		"Keep running and sweep on a schedule instead of once")

	return cmd
}

func newPingCommand(cfg *runtimeConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check broker connectivity with a probe message",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			rt := newBrokerOnlyRuntime(cfg)

			if err := rt.bus.Ping(ctx); err != nil {
				return fmt.Errorf("broker unreachable: %w", err)
			}

			fmt.Println("broker OK")
			return nil
		},
	}
}
