package payment

import (
	"fmt"
	"strconv"

	"github.com/cinetick/cinema-ticket-reservation/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
)

type StripeProvider struct {
	failureUrl string
	successUrl string
}

func NewStripeProvider(failureUrl, successUrl string) *StripeProvider {
	return &StripeProvider{
		failureUrl: failureUrl,
		successUrl: successUrl,
	}
}

func (s *StripeProvider) CreateCheckoutSession(
	email string,
	reservation *domain.Reservation) (*CheckoutSession, error) {

	var lineItems []*stripe.CheckoutSessionLineItemParams

	for _, seat := range reservation.ReservationSeats {
		priceCents := seat.Price.Mul(decimal.NewFromInt(100)).IntPart()

		lineItem := &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(string(stripe.CurrencyUSD)),
				UnitAmount: stripe.Int64(priceCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(fmt.Sprintf("Seat %d", seat.SeatID)),
					Description: stripe.String(fmt.Sprintf(
						"Reservation %s • Screening %d",
						reservation.ReservationCode,
						reservation.ScreeningID,
					)),
				},
			},
			Quantity: stripe.Int64(1),
		}

		lineItems = append(lineItems, lineItem)
	}

	params := &stripe.CheckoutSessionParams{
		LineItems:  lineItems,
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(s.successUrl),
		CancelURL:  stripe.String(s.failureUrl),
		Metadata: map[string]string{
			"reservation_id":   strconv.Itoa(reservation.ID),
			"reservation_code": reservation.ReservationCode,
		},
		CustomerEmail:     stripe.String(email),
		ClientReferenceID: stripe.String(strconv.Itoa(reservation.ID)),
	}

	checkoutSession, err := session.New(params)
	if err != nil {
		return nil, err
	}

	return &CheckoutSession{
		ID:  checkoutSession.ID,
		URL: checkoutSession.URL,
	}, nil
}
