// Package password derives and verifies PBKDF2 credential records.
//
// A record is encoded as portable text carrying everything verification
// needs (salt, iteration count, derived-key length, derived key), so it can
// be persisted by any backend and reproduced exactly later.
package password

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	minIterations = 1000
	minSaltLength = 16
	minKeyLength  = 16
	algorithmID   = "pbkdf2-sha256"
)

// Config controls key derivation. Zero values take the defaults below.
// Config instances are set once during initialization and treated as
// immutable afterwards.
type Config struct {
	Iterations int
	KeyLength  int
	SaltLength int
}

// DefaultConfig matches the derivation parameters used for new signups.
var DefaultConfig = Config{
	Iterations: 10000,
	KeyLength:  64,
	SaltLength: 32,
}

// Hasher derives credential records under a fixed Config.
type Hasher struct {
	config Config
}

// Record is a parsed credential record.
type Record struct {
	Iterations int
	KeyLength  int
	Salt       []byte
	Key        []byte
}

// NewHasher validates cfg and returns a Hasher. Zero fields fall back to
// DefaultConfig before validation.
func NewHasher(cfg Config) (*Hasher, error) {
	if cfg.Iterations == 0 {
		cfg.Iterations = DefaultConfig.Iterations
	}
	if cfg.KeyLength == 0 {
		cfg.KeyLength = DefaultConfig.KeyLength
	}
	if cfg.SaltLength == 0 {
		cfg.SaltLength = DefaultConfig.SaltLength
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return &Hasher{config: cfg}, nil
}

// Hash derives a fresh record for password with a random salt and encodes it.
func (h *Hasher) Hash(password string) (string, error) {
	if password == "" {
		return "", errors.New("password must not be empty")
	}

	salt := make([]byte, h.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := pbkdf2.Key([]byte(password), salt, h.config.Iterations, h.config.KeyLength, sha256.New)
	return encode(h.config.Iterations, salt, key), nil
}

// Verify re-derives the key for password using the parameters stored in
// encodedRecord and compares derived keys in constant time. Plaintext is
// never compared.
func (h *Hasher) Verify(password string, encodedRecord string) (bool, error) {
	rec, err := Parse(encodedRecord)
	if err != nil {
		return false, err
	}

	computed := pbkdf2.Key([]byte(password), rec.Salt, rec.Iterations, rec.KeyLength, sha256.New)
	return subtle.ConstantTimeCompare(computed, rec.Key) == 1, nil
}

func encode(iterations int, salt, key []byte) string {
	return fmt.Sprintf(
		"$%s$i=%d,l=%d$%s$%s",
		algorithmID,
		iterations,
		len(key),
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(key),
	)
}

// Parse decodes an encoded record.
func Parse(encodedRecord string) (*Record, error) {
	parts := strings.Split(encodedRecord, "$")
	if len(parts) != 5 || parts[0] != "" {
		return nil, errors.New("invalid record format")
	}
	if parts[1] != algorithmID {
		return nil, errors.New("unsupported algorithm")
	}

	iterations, keyLength, err := parseParams(parts[2])
	if err != nil {
		return nil, err
	}

	salt, err := base64.StdEncoding.DecodeString(parts[3])
	if err != nil {
		return nil, errors.New("invalid salt encoding")
	}
	if len(salt) < minSaltLength {
		return nil, errors.New("invalid salt length")
	}

	key, err := base64.StdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, errors.New("invalid key encoding")
	}
	if len(key) != keyLength {
		return nil, errors.New("key length mismatch")
	}

	return &Record{
		Iterations: iterations,
		KeyLength:  keyLength,
		Salt:       salt,
		Key:        key,
	}, nil
}

func parseParams(part string) (iterations, keyLength int, err error) {
	pairs := strings.Split(part, ",")
	if len(pairs) != 2 {
		return 0, 0, errors.New("invalid parameter format")
	}

	for _, pair := range pairs {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return 0, 0, errors.New("invalid parameter entry")
		}
		v, perr := strconv.Atoi(kv[1])
		if perr != nil {
			return 0, 0, errors.New("invalid parameter value")
		}
		switch kv[0] {
		case "i":
			iterations = v
		case "l":
			keyLength = v
		default:
			return 0, 0, errors.New("unsupported parameter")
		}
	}

	if iterations < minIterations {
		return 0, 0, errors.New("invalid iteration count")
	}
	if keyLength < minKeyLength {
		return 0, 0, errors.New("invalid key length")
	}
	return iterations, keyLength, nil
}

func validateConfig(cfg Config) error {
	if cfg.Iterations < minIterations {
		return errors.New("password iterations must be >= 1000")
	}
	if cfg.KeyLength < minKeyLength {
		return errors.New("password key length must be >= 16")
	}
	if cfg.SaltLength < minSaltLength {
		return errors.New("password salt length must be >= 16")
	}
	return nil
}
