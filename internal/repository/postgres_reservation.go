package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cinetick/cinema-ticket-reservation/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type PostgresReservationRepository struct {
	db *pgxpool.Pool
}

func NewPostgresReservationRepository(db *pgxpool.Pool) *PostgresReservationRepository {
	return &PostgresReservationRepository{
		db: db,
	}
}

// Create inserts the reservation and its seats in one transaction. The
// unique index on reservation_seats.seat_id is what enforces the single
// active reservation per seat; a violation surfaces as ErrSeatAlreadyReserved.
func (p *PostgresReservationRepository) Create(ctx context.Context, reservation *domain.Reservation) error {
	err := runInTx(ctx, p.db, func(tx pgx.Tx) error {
		query := `
			INSERT INTO reservations (
				screening_id,
				user_id,
				guest_name,
				guest_email,
				guest_phone,
				status,
				reservation_code,
				confirmation_code
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id, created_at, updated_at
		`

		err := tx.QueryRow(
			ctx,
			query,
			reservation.ScreeningID,
			reservation.UserID,
			reservation.GuestName,
			reservation.GuestEmail,
			reservation.GuestPhone,
			reservation.Status,
			reservation.ReservationCode,
			reservation.ConfirmationCode,
		).Scan(&reservation.ID, &reservation.CreatedAt, &reservation.UpdatedAt)
		if err != nil {
			return err
		}

		query = `
			INSERT INTO reservation_seats (reservation_id, seat_id, price, status)
			VALUES ($1, $2, $3, $4)
			RETURNING id, created_at
		`

		for i := range reservation.ReservationSeats {
			seat := &reservation.ReservationSeats[i]
			seat.ReservationID = reservation.ID

			err := tx.QueryRow(
				ctx,
				query,
				seat.ReservationID,
				seat.SeatID,
				seat.Price,
				seat.Status,
			).Scan(&seat.ID, &seat.CreatedAt)
			if err != nil {
				return err
			}
		}

		return nil
	})

	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrSeatAlreadyReserved
		}
		return err
	}

	return nil
}

func (p *PostgresReservationRepository) GetById(ctx context.Context, id int) (*domain.Reservation, error) {
	query := `
		SELECT id, screening_id, user_id, guest_name, guest_email, guest_phone,
			status, reservation_code, confirmation_code, created_at, updated_at
		FROM reservations
		WHERE id = $1
	`

	var reservation domain.Reservation

	err := p.db.QueryRow(ctx, query, id).Scan(
		&reservation.ID,
		&reservation.ScreeningID,
		&reservation.UserID,
		&reservation.GuestName,
		&reservation.GuestEmail,
		&reservation.GuestPhone,
		&reservation.Status,
		&reservation.ReservationCode,
		&reservation.ConfirmationCode,
		&reservation.CreatedAt,
		&reservation.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, err
	}

	return &reservation, nil
}

func (p *PostgresReservationRepository) GetWithSeats(ctx context.Context, id int) (*domain.Reservation, error) {
	reservation, err := p.GetById(ctx, id)
	if err != nil {
		return nil, err
	}

	seats, err := p.retrieveReservationSeats(ctx, id)
	if err != nil {
		return nil, err
	}

	reservation.ReservationSeats = seats

	return reservation, nil
}

func (p *PostgresReservationRepository) GetReservationSeat(ctx context.Context, id int) (*domain.ReservationSeat, error) {
	query := `
		SELECT id, reservation_id, seat_id, price, status, created_at
		FROM reservation_seats
		WHERE id = $1
	`

	var seat domain.ReservationSeat

	err := p.db.QueryRow(ctx, query, id).Scan(
		&seat.ID,
		&seat.ReservationID,
		&seat.SeatID,
		&seat.Price,
		&seat.Status,
		&seat.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, err
	}

	return &seat, nil
}

func (p *PostgresReservationRepository) TotalPrice(ctx context.Context, id int) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(price), 0)
		FROM reservation_seats
		WHERE reservation_id = $1
	`

	var total decimal.Decimal

	err := p.db.QueryRow(ctx, query, id).Scan(&total)
	if err != nil {
		return decimal.Zero, err
	}

	return total, nil
}

// Confirm locks the reservation row before touching anything, so a
// concurrent reaper sweep or cancellation handler on the same reservation
// serializes behind it. Exactly one of the competitors wins the terminal
// transition; the others observe a terminal status and return false.
func (p *PostgresReservationRepository) Confirm(ctx context.Context, id int) (bool, error) {
	confirmed := false

	err := runInTx(ctx, p.db, func(tx pgx.Tx) error {
		status, err := lockReservation(ctx, tx, id)
		if err != nil {
			return err
		}

		if status.Terminal() {
			return nil
		}

		_, err = tx.Exec(ctx, `
			UPDATE reservations
			SET status = 'confirmed', updated_at = NOW()
			WHERE id = $1
		`, id)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE reservation_seats
			SET status = 'occupied'
			WHERE reservation_id = $1
		`, id)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			UPDATE seats
			SET status = 'occupied', updated_at = NOW()
			WHERE id IN (SELECT seat_id FROM reservation_seats WHERE reservation_id = $1)
		`, id)
		if err != nil {
			return err
		}

		confirmed = true
		return nil
	})

	return confirmed, err
}

func (p *PostgresReservationRepository) Release(ctx context.Context, id int) (domain.ReleaseOutcome, error) {
	var outcome domain.ReleaseOutcome

	err := runInTx(ctx, p.db, func(tx pgx.Tx) error {
		status, err := lockReservation(ctx, tx, id)
		if err != nil {
			return err
		}

		// Confirmed is terminal success: there is no path back to
		// cancelled, so a late cancellation loses and leaves it alone.
		if status == domain.ReservationStatusConfirmed {
			return nil
		}

		rows, err := tx.Query(ctx, `
			DELETE FROM reservation_seats
			WHERE reservation_id = $1
			RETURNING seat_id
		`, id)
		if err != nil {
			return err
		}

		seatIDs := make([]int, 0)
		for rows.Next() {
			var seatID int
			if err := rows.Scan(&seatID); err != nil {
				rows.Close()
				return err
			}
			seatIDs = append(seatIDs, seatID)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		if len(seatIDs) > 0 {
			_, err = tx.Exec(ctx, `
				UPDATE seats
				SET status = 'available', updated_at = NOW()
				WHERE id = ANY($1)
			`, seatIDs)
			if err != nil {
				return err
			}
		}

		if status == domain.ReservationStatusPending {
			_, err = tx.Exec(ctx, `
				UPDATE reservations
				SET status = 'cancelled', updated_at = NOW()
				WHERE id = $1
			`, id)
			if err != nil {
				return err
			}
			outcome.Released = true
		}

		outcome.SeatsReleased = len(seatIDs)
		return nil
	})

	return outcome, err
}

func (p *PostgresReservationRepository) FindAbandoned(ctx context.Context, cutoff time.Time) ([]domain.Reservation, error) {
	query := `
		SELECT id, screening_id, user_id, guest_name, guest_email, guest_phone,
			status, reservation_code, confirmation_code, created_at, updated_at
		FROM reservations
		WHERE status = 'pending' AND created_at < $1
		ORDER BY created_at
	`

	rows, err := p.db.Query(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reservations := make([]domain.Reservation, 0)

	for rows.Next() {
		var reservation domain.Reservation

		err := rows.Scan(
			&reservation.ID,
			&reservation.ScreeningID,
			&reservation.UserID,
			&reservation.GuestName,
			&reservation.GuestEmail,
			&reservation.GuestPhone,
			&reservation.Status,
			&reservation.ReservationCode,
			&reservation.ConfirmationCode,
			&reservation.CreatedAt,
			&reservation.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}

		reservations = append(reservations, reservation)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	for i := range reservations {
		seats, err := p.retrieveReservationSeats(ctx, reservations[i].ID)
		if err != nil {
			return nil, err
		}
		reservations[i].ReservationSeats = seats
	}

	return reservations, nil
}

func (p *PostgresReservationRepository) retrieveReservationSeats(
	ctx context.Context,
	reservationId int) ([]domain.ReservationSeat, error) {

	query := `
		SELECT id, reservation_id, seat_id, price, status, created_at
		FROM reservation_seats
		WHERE reservation_id = $1
		ORDER BY id
	`

	rows, err := p.db.Query(ctx, query, reservationId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reservationSeats := make([]domain.ReservationSeat, 0)

	for rows.Next() {
		var reservationSeat domain.ReservationSeat

		err := rows.Scan(
			&reservationSeat.ID,
			&reservationSeat.ReservationID,
			&reservationSeat.SeatID,
			&reservationSeat.Price,
			&reservationSeat.Status,
			&reservationSeat.CreatedAt,
		)
		if err != nil {
			return nil, err
		}

		reservationSeats = append(reservationSeats, reservationSeat)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return reservationSeats, nil
}

func lockReservation(ctx context.Context, tx pgx.Tx, id int) (domain.ReservationStatus, error) {
	var status domain.ReservationStatus

	err := tx.QueryRow(ctx, `
		SELECT status FROM reservations WHERE id = $1 FOR UPDATE
	`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", domain.ErrRecordNotFound
		}
		return "", fmt.Errorf("lock reservation %d: %w", id, err)
	}

	return status, nil
}
