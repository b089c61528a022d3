package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	DefaultShortCodeLength = 6
	alphabet               = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

var alphabetLen = big.NewInt(int64(len(alphabet)))

func GenerateShortCode() (string, error) {
	return GenerateShortCodeWithLength(DefaultShortCodeLength)
}

// GenerateShortCodeWithLength draws each character uniformly from the 62-symbol alphabet.
func GenerateShortCodeWithLength(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("short code length must be positive, got %d", length)
	}

	code := make([]byte, length)
	for i := range code {
		randomIndex, err := rand.Int(rand.Reader, alphabetLen)
		if err != nil {
			return "", err
		}
		code[i] = alphabet[randomIndex.Int64()]
	}

	return string(code), nil
}
