// Package internal holds shared random-material helpers for the engine.
package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"math/big"
	"strings"
)

const lookupTokenBytes = 32

// Verification and emailed challenge codes use an unambiguous uppercase
// alphabet (no 0/O or 1/I) since users retype them.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// NewLookupToken returns a URL-safe random token for email verification
// and password reset links.
func NewLookupToken() (string, error) {
	raw := make([]byte, lookupTokenBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// NewCode returns a random uppercase code of the given length.
func NewCode(length int) (string, error) {
	if length < 4 || length > 32 {
		return "", errors.New("invalid code length")
	}

	var b strings.Builder
	b.Grow(length)

	max := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NewBackupCodes returns count one-time recovery codes of the given length.
func NewBackupCodes(count, length int) ([]string, error) {
	codes := make([]string, 0, count)
	for i := 0; i < count; i++ {
		code, err := NewCode(length)
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, nil
}

// NormalizeCode uppercases and trims a user-entered code so verification
// is insensitive to case and surrounding whitespace.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// HashCode hashes a user-entered code after normalization. Backup codes
// and challenge comparisons go through this so the plaintext never needs
// to be stored.
func HashCode(code string) [32]byte {
	return sha256.Sum256([]byte(NormalizeCode(code)))
}
