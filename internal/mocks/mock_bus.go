package mocks

import (
	"context"

	"github.com/cinetick/cinema-ticket-reservation/internal/broker"
	"github.com/stretchr/testify/mock"
)

type MockBus struct {
	mock.Mock
}

func (m *MockBus) Publish(ctx context.Context, topic string, payload any) bool {
	args := m.Called(ctx, topic, payload)
	return args.Bool(0)
}

func (m *MockBus) Consume(ctx context.Context, topic, group string) ([]broker.Message, error) {
	args := m.Called(ctx, topic, group)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]broker.Message), args.Error(1)
}
