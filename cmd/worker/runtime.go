package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/cinetick/cinema-ticket-reservation/internal/broker"
	"github.com/cinetick/cinema-ticket-reservation/internal/consumer"
	"github.com/cinetick/cinema-ticket-reservation/internal/mailer"
	"github.com/cinetick/cinema-ticket-reservation/internal/reaper"
	"github.com/cinetick/cinema-ticket-reservation/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// runtime bundles the shared infrastructure every subcommand builds on.
// Subcommands that need no database (ping) use newBrokerOnlyRuntime
// instead, so a broker probe works even while postgres is down.
type runtime struct {
	cfg    *runtimeConfig
	logger *slog.Logger
	db     *pgxpool.Pool
	redis  redis.UniversalClient
	bus    *broker.RestProxyClient

	reservations *repository.PostgresReservationRepository
	handlers     *consumer.Handlers
	reaper       *reaper.Reaper

	shutdownTelemetry func(context.Context)
}

func newRuntime(ctx context.Context, cfg *runtimeConfig) (*runtime, error) {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	shutdownTelemetry, err := initTelemetry(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	db, err := newDatabasePool(ctx, cfg.DatabaseDSN)
	if err != nil {
		shutdownTelemetry(ctx)
		return nil, err
	}

	redisClient, err := newRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		db.Close()
		shutdownTelemetry(ctx)
		return nil, err
	}

	bus := broker.NewRestProxyClient(cfg.BrokerURL, logger)

	reservationRepo := repository.NewPostgresReservationRepository(db)
	seatRepo := repository.NewPostgresSeatRepository(db)
	paymentRepo := repository.NewPostgresPaymentRepository(db)
	userRepo := repository.NewPostgresUserRepository(db)

	smtpMailer := mailer.NewSMTPMailer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPSender)

	handlers := consumer.NewHandlers(
		reservationRepo,
		seatRepo,
		paymentRepo,
		userRepo,
		smtpMailer,
		redisClient,
		bus,
		logger,
		defaultHoldMinutes,
	)

	return &runtime{
		cfg:               cfg,
		logger:            logger,
		db:                db,
		redis:             redisClient,
		bus:               bus,
		reservations:      reservationRepo,
		handlers:          handlers,
		reaper:            reaper.New(reservationRepo, bus, logger),
		shutdownTelemetry: shutdownTelemetry,
	}, nil
}

func newBrokerOnlyRuntime(cfg *runtimeConfig) *runtime {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	return &runtime{
		cfg:               cfg,
		logger:            logger,
		bus:               broker.NewRestProxyClient(cfg.BrokerURL, logger),
		shutdownTelemetry: func(context.Context) {},
	}
}

func (rt *runtime) close() {
	if rt.redis != nil {
		rt.redis.Close()
	}
	if rt.db != nil {
		rt.db.Close()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rt.shutdownTelemetry(ctx)
}

func newDatabasePool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	err = db.Ping(pingCtx)
	if err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func newRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: url,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	err := rdb.Ping(pingCtx).Err()
	if err != nil {
		return nil, err
	}

	return rdb, nil
}
