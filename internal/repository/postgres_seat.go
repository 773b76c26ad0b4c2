package repository

import (
	"context"
	"errors"

	"github.com/cinetick/cinema-ticket-reservation/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresSeatRepository struct {
	db *pgxpool.Pool
}

func NewPostgresSeatRepository(db *pgxpool.Pool) *PostgresSeatRepository {
	return &PostgresSeatRepository{
		db: db,
	}
}

func (p *PostgresSeatRepository) GetById(ctx context.Context, id int) (*domain.Seat, error) {
	query := `
		SELECT id, seat_row, seat_col, status, created_at, updated_at
		FROM seats
		WHERE id = $1
	`

	var seat domain.Seat

	err := p.db.QueryRow(ctx, query, id).Scan(
		&seat.ID,
		&seat.Row,
		&seat.Col,
		&seat.Status,
		&seat.CreatedAt,
		&seat.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, err
	}

	return &seat, nil
}

// MarkReserved takes the same reservation row lock as Confirm and Release,
// so the hold check and the seat write cannot interleave with either of
// them committing in between.
func (p *PostgresSeatRepository) MarkReserved(ctx context.Context, reservationSeatID int) (bool, error) {
	var reserved bool

	err := runInTx(ctx, p.db, func(tx pgx.Tx) error {
		var (
			seatID int
			status domain.SeatStatus
		)

		err := tx.QueryRow(ctx, `
			SELECT rs.seat_id, rs.status
			FROM reservation_seats rs
			JOIN reservations r ON r.id = rs.reservation_id
			WHERE rs.id = $1
			FOR UPDATE OF r
		`, reservationSeatID).Scan(&seatID, &status)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrRecordNotFound
			}
			return err
		}

		if status != domain.SeatStatusReserved {
			return nil
		}

		_, err = tx.Exec(ctx, `
			UPDATE seats
			SET status = $1, updated_at = NOW()
			WHERE id = $2
		`, domain.SeatStatusReserved, seatID)
		if err != nil {
			return err
		}

		reserved = true
		return nil
	})

	return reserved, err
}
