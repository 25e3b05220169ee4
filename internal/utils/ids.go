package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// Unambiguous characters only: no 0/O or 1/I.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// GenerateSecureID generates a secure random ID with a time component.
func GenerateSecureID(prefix string) string {
	max := big.NewInt(999999)
	n, _ := rand.Int(rand.Reader, max)

	return fmt.Sprintf("%s%d%06d", prefix, time.Now().Unix(), n.Int64())
}

// GenerateReservationCode returns a short code customers can read back
// over the phone, e.g. "RES-7KQ2MX".
func GenerateReservationCode() string {
	const length = 6
	b := make([]byte, length)
	max := big.NewInt(int64(len(codeAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// fall back to the time-based id
			return GenerateSecureID("RES-")
		}
		b[i] = codeAlphabet[n.Int64()]
	}
	return "RES-" + string(b)
}
