package repository

import (
	"context"
	"errors"

	"github.com/cinetick/cinema-ticket-reservation/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresPaymentRepository struct {
	db *pgxpool.Pool
}

func NewPostgresPaymentRepository(db *pgxpool.Pool) *PostgresPaymentRepository {
	return &PostgresPaymentRepository{
		db: db,
	}
}

func (p *PostgresPaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (reservation_id, amount, status, payment_method, transaction_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`

	err := p.db.QueryRow(
		ctx,
		query,
		payment.ReservationID,
		payment.Amount,
		payment.Status,
		payment.Method,
		payment.TransactionID,
	).Scan(&payment.ID, &payment.CreatedAt, &payment.UpdatedAt)

	if err != nil && isUniqueViolation(err) {
		return domain.ErrEditConflict
	}

	return err
}

func (p *PostgresPaymentRepository) GetById(ctx context.Context, id int) (*domain.Payment, error) {
	return p.getOne(ctx, `WHERE id = $1`, id)
}

func (p *PostgresPaymentRepository) GetByReservationId(ctx context.Context, reservationID int) (*domain.Payment, error) {
	return p.getOne(ctx, `WHERE reservation_id = $1`, reservationID)
}

func (p *PostgresPaymentRepository) getOne(ctx context.Context, where string, arg any) (*domain.Payment, error) {
	query := `
		SELECT id, reservation_id, amount, status, payment_method, transaction_id, created_at, updated_at
		FROM payments ` + where

	var payment domain.Payment

	err := p.db.QueryRow(ctx, query, arg).Scan(
		&payment.ID,
		&payment.ReservationID,
		&payment.Amount,
		&payment.Status,
		&payment.Method,
		&payment.TransactionID,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, err
	}

	return &payment, nil
}

// UpdateStatus returns the updated row so the caller can build the
// payment-processed payload without a second round trip.
func (p *PostgresPaymentRepository) UpdateStatus(
	ctx context.Context,
	id int,
	status domain.PaymentStatus,
	transactionID string) (*domain.Payment, error) {

	query := `
		UPDATE payments
		SET status = $1, transaction_id = NULLIF($2, ''), updated_at = NOW()
		WHERE id = $3
		RETURNING id, reservation_id, amount, status, payment_method, transaction_id, created_at, updated_at
	`

	var payment domain.Payment

	err := p.db.QueryRow(ctx, query, status, transactionID, id).Scan(
		&payment.ID,
		&payment.ReservationID,
		&payment.Amount,
		&payment.Status,
		&payment.Method,
		&payment.TransactionID,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, err
	}

	return &payment, nil
}
