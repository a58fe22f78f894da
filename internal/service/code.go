package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// VerificationCodeLength is the number of digits in emailed codes. Short
// enough to type from a phone, long enough that guessing within the TTL is
// impractical given the storage-level uniqueness constraint.
const VerificationCodeLength = 6

// GenerateVerificationCode returns a fixed-length numeric code. Each digit is
// drawn uniformly and independently; leading zeros are allowed. Uniqueness
// across join requests is not guaranteed here, it is enforced by the unique
// constraint on verification_code.
func GenerateVerificationCode() string {
	digits := make([]byte, VerificationCodeLength)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			panic(fmt.Sprintf("crypto/rand unavailable: %v", err))
		}
		digits[i] = byte('0' + n.Int64())
	}
	return string(digits)
}
