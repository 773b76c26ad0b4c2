package integration_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func seedScreening(t *testing.T, app *TestApp) int {
	t.Helper()

	var id int
	err := app.DB.QueryRow(context.Background(), `
		INSERT INTO screenings (movie_title, starts_at)
		VALUES ('Test Screening', NOW() + INTERVAL '1 day')
		RETURNING id
	`).Scan(&id)
	require.NoError(t, err)
	return id
}

func seedSeat(t *testing.T, app *TestApp, row, col int) int {
	t.Helper()

	var id int
	err := app.DB.QueryRow(context.Background(), `
		INSERT INTO seats (seat_row, seat_col, status)
		VALUES ($1, $2, 'available')
		RETURNING id
	`, row, col).Scan(&id)
	require.NoError(t, err)
	return id
}

func seedUser(t *testing.T, app *TestApp, name, email string) int {
	t.Helper()

	var id int
	err := app.DB.QueryRow(context.Background(), `
		INSERT INTO users (name, email)
		VALUES ($1, $2)
		RETURNING id
	`, name, email).Scan(&id)
	require.NoError(t, err)
	return id
}

func backdateReservation(t *testing.T, app *TestApp, reservationID int, age time.Duration) {
	t.Helper()

	_, err := app.DB.Exec(context.Background(), `
		UPDATE reservations
		SET created_at = NOW() - make_interval(mins => $2)
		WHERE id = $1
	`, reservationID, int(age.Minutes()))
	require.NoError(t, err)
}

func seatStatus(t *testing.T, app *TestApp, seatID int) string {
	t.Helper()

	var status string
	err := app.DB.QueryRow(context.Background(),
		`SELECT status FROM seats WHERE id = $1`, seatID).Scan(&status)
	require.NoError(t, err)
	return status
}

func reservationStatus(t *testing.T, app *TestApp, reservationID int) string {
	t.Helper()

	var status string
	err := app.DB.QueryRow(context.Background(),
		`SELECT status FROM reservations WHERE id = $1`, reservationID).Scan(&status)
	require.NoError(t, err)
	return status
}

func reservationSeatCount(t *testing.T, app *TestApp, reservationID int) int {
	t.Helper()

	var count int
	err := app.DB.QueryRow(context.Background(),
		`SELECT COUNT(*) FROM reservation_seats WHERE reservation_id = $1`, reservationID).Scan(&count)
	require.NoError(t, err)
	return count
}

func seatPrice(amount float64) decimal.Decimal {
	return decimal.NewFromFloat(amount)
}
