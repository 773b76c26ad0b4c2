package payment

import (
	"fmt"

	"github.com/cinetick/cinema-ticket-reservation/internal/domain"
)

type MockProvider struct {
}

func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

func (m *MockProvider) CreateCheckoutSession(
	email string,
	reservation *domain.Reservation) (*CheckoutSession, error) {

	return &CheckoutSession{
		ID:  fmt.Sprintf("cs_test_%d", reservation.ID),
		URL: fmt.Sprintf("https://checkout.example.com/%d", reservation.ID),
	}, nil
}
