// Package jwt mints and verifies the signed access/refresh token pair.
//
// Access tokens are short-lived and stateless, carrying {uid, email,
// role}. Refresh tokens are longer-lived and carry {uid, jti}; their
// validity additionally requires the matching ledger row in the durable
// store to be live. The two token kinds are signed with independent
// secrets so compromise of one cannot forge the other.
package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrExpired is a well-formed token past its expiry.
	ErrExpired = errors.New("token expired")
	// ErrInvalid covers malformed payloads and bad signatures.
	ErrInvalid = errors.New("token invalid")
)

// Config configures the Manager. The secrets must be non-empty and
// distinct.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
	Leeway        time.Duration
	// TimeFunc overrides the validation clock; tests use it to cross
	// expiry boundaries without sleeping.
	TimeFunc func() time.Time
}

// AccessClaims is the access-token claim set.
type AccessClaims struct {
	UserID int64  `json:"uid"`
	Email  string `json:"email"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// RefreshClaims is the refresh-token claim set. The registered ID claim
// carries a per-issuance random identifier so every mint is distinct.
type RefreshClaims struct {
	UserID int64 `json:"uid"`
	jwt.RegisteredClaims
}

// Manager signs and parses both token kinds. Safe for concurrent use.
type Manager struct {
	config Config
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("access and refresh secrets are required")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("access and refresh secrets must be independent")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.TimeFunc == nil {
		cfg.TimeFunc = time.Now
	}
	return &Manager{config: cfg}, nil
}

// CreateAccess mints a signed access token for the given identity.
func (m *Manager) CreateAccess(userID int64, email, role string) (string, error) {
	now := m.config.TimeFunc()
	claims := AccessClaims{
		UserID: userID,
		Email:  email,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.AccessTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.AccessSecret)
}

// CreateRefresh mints a signed refresh token with a fresh random token
// identifier and returns the token, its id, and its expiry.
func (m *Manager) CreateRefresh(userID int64) (token, tokenID string, expiresAt time.Time, err error) {
	now := m.config.TimeFunc()
	tokenID = uuid.NewString()
	expiresAt = now.Add(m.config.RefreshTTL)

	claims := RefreshClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Issuer:    m.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.config.RefreshSecret)
	return token, tokenID, expiresAt, err
}

// ParseAccess verifies signature and registered claims of an access token.
// Expired tokens fail with ErrExpired, everything else with ErrInvalid.
func (m *Manager) ParseAccess(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.parse(token, claims, m.config.AccessSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

// ParseRefresh verifies signature and registered claims of a refresh token.
func (m *Manager) ParseRefresh(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := m.parse(token, claims, m.config.RefreshSecret); err != nil {
		return nil, err
	}
	return claims, nil
}

func (m *Manager) parse(token string, claims jwt.Claims, secret []byte) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.config.TimeFunc),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parsed, err := jwt.NewParser(options...).ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	default:
		return ErrInvalid
	}
	if !parsed.Valid {
		return ErrInvalid
	}
	return nil
}
