package util

import (
	"crypto/rand"
	"encoding/hex"
	"math"
)

const (
	SECONDS_IN_A_DAY   int64 = 24 * 60 * 60
	SECONDS_IN_AN_HOUR int64 = 60 * 60
)

// RandomHexToken returns a hex encoded token with n bytes of entropy
// from crypto/rand. Used for handoff tokens, 16 bytes minimum.
func RandomHexToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// RoundToOneDecimal rounds percentages for channel level reporting.
func RoundToOneDecimal(value float64) float64 {
	return math.Round(value*10) / 10
}
