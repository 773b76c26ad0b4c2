package mocks

import (
	"context"

	"github.com/cinetick/cinema-ticket-reservation/internal/domain"
	"github.com/stretchr/testify/mock"
)

type MockSeatRepo struct {
	mock.Mock
	domain.SeatRepository
}

func (m *MockSeatRepo) GetById(ctx context.Context, id int) (*domain.Seat, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Seat), args.Error(1)
}

func (m *MockSeatRepo) MarkReserved(ctx context.Context, reservationSeatID int) (bool, error) {
	args := m.Called(ctx, reservationSeatID)
	return args.Bool(0), args.Error(1)
}
