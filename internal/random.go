package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

const tokenRawSize = 32

// NewToken returns a fresh unguessable bearer token: 32 bytes of
// crypto/rand entropy, base64url without padding.
func NewToken() (string, error) {
	var raw [tokenRawSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// ValidToken reports whether token decodes to the expected raw size. It
// rejects malformed input before any backend lookup.
func ValidToken(token string) error {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return err
	}
	if len(raw) != tokenRawSize {
		return errors.New("invalid token size")
	}
	return nil
}
