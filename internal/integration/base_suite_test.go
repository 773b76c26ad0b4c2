package integration_test

import (
	"context"
	"io"
	"log"
	"log/slog"
	"time"

	"github.com/cinetick/cinema-ticket-reservation/internal/consumer"
	"github.com/cinetick/cinema-ticket-reservation/internal/event"
	"github.com/cinetick/cinema-ticket-reservation/internal/mailer"
	"github.com/cinetick/cinema-ticket-reservation/internal/payment"
	"github.com/cinetick/cinema-ticket-reservation/internal/reaper"
	"github.com/cinetick/cinema-ticket-reservation/internal/repository"
	"github.com/cinetick/cinema-ticket-reservation/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
)

const (
	dbName         = "cinema_reservation"
	dbUser         = "test_user"
	dbPassword     = "test_password"
	dbImageName    = "postgres:17-alpine"
	cacheImageName = "redis:7"

	consumerGroup = "cinema-consumer-group"
	holdMinutes   = 15
)

// TestApp wires the whole event core against real postgres and redis,
// with an in-process bus and a recording mailer in place of the two
// external services.
type TestApp struct {
	DB     *pgxpool.Pool
	Redis  *redis.Client
	Bus    *memBus
	Mailer *mailer.MockMailer

	Reservations *repository.PostgresReservationRepository
	Seats        *repository.PostgresSeatRepository
	Payments     *repository.PostgresPaymentRepository
	Users        *repository.PostgresUserRepository

	Bookings *service.BookingService
	PaymentS *service.PaymentService
	Handlers *consumer.Handlers
	Reaper   *reaper.Reaper
}

type BaseSuite struct {
	suite.Suite
	app            *TestApp
	dbContainer    *PostgresContainer
	cacheContainer *RedisContainer
}

func (s *BaseSuite) SetupSuite() {
	ctx := context.Background()

	postgresContainer, err := getDbContainer(ctx)
	if err != nil {
		log.Printf("failed to start container: %s", err)
		return
	}

	redisContainer, err := getCacheContainer(ctx)
	if err != nil {
		log.Printf("failed to start container: %s", err)
		return
	}

	s.dbContainer = postgresContainer
	s.cacheContainer = redisContainer

	testApp, err := newTestApp(ctx, postgresContainer.ConnectionString, redisContainer.ConnectionString)
	if err != nil {
		log.Printf("cannot initialize app: %s", err)
		return
	}

	s.app = testApp
}

func (s *BaseSuite) TearDownSuite() {
	if s.app != nil {
		s.app.Redis.Close()
		s.app.DB.Close()
	}
	if s.dbContainer != nil {
		if err := testcontainers.TerminateContainer(s.dbContainer.Container); err != nil {
			log.Printf("failed to terminate container: %s", err)
		}
	}
	if s.cacheContainer != nil {
		if err := testcontainers.TerminateContainer(s.cacheContainer.Container); err != nil {
			log.Printf("failed to terminate container: %s", err)
		}
	}
}

func newTestApp(ctx context.Context, dbDSN, redisURL string) (*TestApp, error) {
	db, err := pgxpool.New(ctx, dbDSN)
	if err != nil {
		return nil, err
	}

	redisClient := redis.NewClient(&redis.Options{Addr: redisURL})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		db.Close()
		return nil, err
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	bus := newMemBus()
	mockMailer := mailer.NewMockMailer()

	reservationRepo := repository.NewPostgresReservationRepository(db)
	seatRepo := repository.NewPostgresSeatRepository(db)
	paymentRepo := repository.NewPostgresPaymentRepository(db)
	userRepo := repository.NewPostgresUserRepository(db)

	return &TestApp{
		DB:           db,
		Redis:        redisClient,
		Bus:          bus,
		Mailer:       mockMailer,
		Reservations: reservationRepo,
		Seats:        seatRepo,
		Payments:     paymentRepo,
		Users:        userRepo,
		Bookings:     service.NewBookingService(reservationRepo, bus, logger),
		PaymentS: service.NewPaymentService(
			paymentRepo, reservationRepo, userRepo, payment.NewMockProvider(), bus, logger),
		Handlers: consumer.NewHandlers(
			reservationRepo, seatRepo, paymentRepo, userRepo,
			mockMailer, redisClient, bus, logger, holdMinutes),
		Reaper: reaper.New(reservationRepo, bus, logger),
	}, nil
}

func (s *BaseSuite) guestInput(screeningID int, seatIDs ...int) service.CreateReservationInput {
	name := "Guest Smith"
	email := "guest@example.com"

	input := service.CreateReservationInput{
		ScreeningID: screeningID,
		GuestName:   &name,
		GuestEmail:  &email,
	}
	for _, seatID := range seatIDs {
		input.Seats = append(input.Seats, service.SeatSelection{SeatID: seatID, Price: seatPrice(10.00)})
	}
	return input
}

// drain consumes and handles every queued message on every topic until
// the queues are empty, standing in for the running dispatchers.
func (app *TestApp) drain(ctx context.Context) error {
	for {
		moved := false

		for _, topic := range event.Topics() {
			messages, err := app.Bus.Consume(ctx, string(topic), consumerGroup)
			if err != nil {
				return err
			}

			handler, _ := app.Handlers.HandlerFor(topic)
			for _, msg := range messages {
				moved = true
				if err := handler(ctx, msg); err != nil {
					return err
				}
			}
		}

		if !moved {
			return nil
		}
	}
}
