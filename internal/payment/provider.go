package payment

import "github.com/cinetick/cinema-ticket-reservation/internal/domain"

// CheckoutSession is what the caller needs to hand the customer off to the
// payment page: the provider's session id and the redirect URL.
type CheckoutSession struct {
	ID  string
	URL string
}

type Provider interface {
	CreateCheckoutSession(email string, reservation *domain.Reservation) (*CheckoutSession, error)
}
