package delivery

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"strconv"
)

const (
	otpMin = 1000
	otpMax = 9999
)

// CodeSource produces a 4-digit delivery code.
type CodeSource interface {
	NewCode() (string, error)
}

// CryptoCodes draws codes from crypto/rand.
type CryptoCodes struct{}

func (CryptoCodes) NewCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpMax-otpMin+1))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+otpMin, 10), nil
}

// HashOTP returns the hex sha256 digest stored in place of the code.
func HashOTP(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// ValidCode reports whether s has the shape of a delivery code.
func ValidCode(s string) bool {
	if len(s) != 4 {
		return false
	}
	n, err := strconv.Atoi(s)
	return err == nil && n >= otpMin && n <= otpMax
}
