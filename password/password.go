// Package password hashes and verifies passwords with Argon2id.
//
// Hashes are serialized in PHC format
// ($argon2id$v=19$m=...,t=...,p=...$salt$hash) so parameters travel with
// the hash and can be strengthened later without invalidating stored
// credentials.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	algorithmID = "argon2id"

	// Cost floors. The memory floor keeps the work factor at or above the
	// usual interactive-login recommendation.
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16

	minPasswordBytes = 8
)

// ErrEmptyHash is returned by Verify for accounts with no stored hash.
var ErrEmptyHash = errors.New("no password hash")

// Config holds Argon2id parameters. All values are validated against the
// cost floors at construction.
type Config struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Hasher hashes and verifies passwords. Safe for concurrent use.
type Hasher struct {
	config Config
}

// New validates cfg and returns a Hasher.
func New(cfg Config) (*Hasher, error) {
	switch {
	case cfg.Memory < minMemoryKB:
		return nil, errors.New("password memory must be >= 8192 KiB")
	case cfg.Time < minTimeCost:
		return nil, errors.New("password time cost must be >= 1")
	case cfg.Parallelism < minParallelism:
		return nil, errors.New("password parallelism must be >= 1")
	case cfg.SaltLength < minSaltLength:
		return nil, errors.New("password salt length must be >= 16")
	case cfg.KeyLength < minKeyLength:
		return nil, errors.New("password key length must be >= 16")
	}
	return &Hasher{config: cfg}, nil
}

// Hash derives a PHC-encoded Argon2id hash from password with a fresh
// random salt. Empty and short passwords are rejected; the plaintext is
// never logged or returned.
func (h *Hasher) Hash(password string) (string, error) {
	if len(password) < minPasswordBytes {
		return "", fmt.Errorf("password must be at least %d bytes", minPasswordBytes)
	}

	salt := make([]byte, h.config.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey(
		[]byte(password),
		salt,
		h.config.Time,
		h.config.Memory,
		h.config.Parallelism,
		h.config.KeyLength,
	)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		h.config.Memory,
		h.config.Time,
		h.config.Parallelism,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches the encoded hash using a
// constant-time comparison. An empty encoded hash (OAuth-only account)
// verifies false with ErrEmptyHash rather than panicking or matching.
func (h *Hasher) Verify(password, encoded string) (bool, error) {
	if encoded == "" {
		return false, ErrEmptyHash
	}

	params, salt, key, err := decode(encoded)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(
		[]byte(password),
		salt,
		params.Time,
		params.Memory,
		params.Parallelism,
		uint32(len(key)),
	)

	return subtle.ConstantTimeCompare(computed, key) == 1, nil
}

func decode(encoded string) (Config, []byte, []byte, error) {
	var cfg Config

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return cfg, nil, nil, errors.New("invalid hash format")
	}
	if parts[1] != algorithmID {
		return cfg, nil, nil, errors.New("unsupported hash algorithm")
	}

	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil || !strings.HasPrefix(parts[2], "v=") {
		return cfg, nil, nil, errors.New("invalid argon2 version field")
	}
	if version != argon2.Version {
		return cfg, nil, nil, errors.New("unsupported argon2 version")
	}

	if err := parseParams(parts[3], &cfg); err != nil {
		return cfg, nil, nil, err
	}

	salt, err := base64.StdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) < int(minSaltLength) {
		return cfg, nil, nil, errors.New("invalid salt")
	}
	key, err := base64.StdEncoding.DecodeString(parts[5])
	if err != nil || len(key) < int(minKeyLength) {
		return cfg, nil, nil, errors.New("invalid key")
	}

	return cfg, salt, key, nil
}

func parseParams(s string, cfg *Config) error {
	pairs := strings.Split(s, ",")
	if len(pairs) != 3 {
		return errors.New("invalid parameter block")
	}
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return errors.New("invalid parameter entry")
		}
		switch k {
		case "m":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil || n < uint64(minMemoryKB) {
				return errors.New("invalid memory parameter")
			}
			cfg.Memory = uint32(n)
		case "t":
			n, err := strconv.ParseUint(v, 10, 32)
			if err != nil || n < uint64(minTimeCost) {
				return errors.New("invalid time parameter")
			}
			cfg.Time = uint32(n)
		case "p":
			n, err := strconv.ParseUint(v, 10, 8)
			if err != nil || n < uint64(minParallelism) {
				return errors.New("invalid parallelism parameter")
			}
			cfg.Parallelism = uint8(n)
		default:
			return errors.New("unknown parameter")
		}
	}
	if cfg.Memory == 0 || cfg.Time == 0 || cfg.Parallelism == 0 {
		return errors.New("missing parameters")
	}
	return nil
}
