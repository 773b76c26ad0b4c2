package service

import (
	"crypto/rand"
	"math/big"
	"strings"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// Reservation and confirmation codes are opaque, generated once at creation
// and never changed.
func generateReservationCode() string {
	return randomCode(10)
}

func generateConfirmationCode() string {
	return "CONF-" + strings.ToUpper(randomCode(8))
}

func randomCode(length int) string {
	var sb strings.Builder
	sb.Grow(length)

	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails if the OS entropy source is broken.
			panic(err)
		}
		sb.WriteByte(codeAlphabet[n.Int64()])
	}

	return sb.String()
}
