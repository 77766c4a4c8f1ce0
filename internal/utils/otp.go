package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// OTPLength is the number of digits in generated one-time codes.
const OTPLength = 6

var otpUpperBound = big.NewInt(1000000)

// GenerateOTP returns a zero-padded random numeric code.
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, otpUpperBound)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", OTPLength, n.Int64()), nil
}

// GenerateResetCode returns a code for the password-reset flow.
func GenerateResetCode() (string, error) {
	return GenerateOTP()
}
