package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

// MinSecretBytes is the smallest signing secret GenerateSecret will produce.
const MinSecretBytes = 32

// GenerateToken returns a random URL-safe token of the requested byte length.
func GenerateToken(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("crypto: token length must be positive")
	}
	buffer := make([]byte, length)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buffer), nil
}

// GenerateSecret returns a random HMAC signing secret of at least MinSecretBytes bytes.
func GenerateSecret(length int) (string, error) {
	if length < MinSecretBytes {
		length = MinSecretBytes
	}
	return GenerateToken(length)
}
