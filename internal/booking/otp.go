package booking

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

const (
	otpMin = 1000
	otpMax = 9999
)

var otpSpan = big.NewInt(otpMax - otpMin + 1)

// NewOTP returns a uniformly random four-digit code.
func NewOTP() (int, error) {
	n, err := rand.Int(rand.Reader, otpSpan)
	if err != nil {
		return 0, fmt.Errorf("booking: generate otp: %w", err)
	}
	return otpMin + int(n.Int64()), nil
}

// ParseOTP validates a submitted code.
func ParseOTP(raw string) (int, error) {
	otp, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || otp < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidOTP, raw)
	}
	return otp, nil
}
