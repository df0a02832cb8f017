package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultSessionTTL = 24 * time.Hour

// SessionClaims is the decoded, verified payload of a session token.
type SessionClaims struct {
	Department Department `json:"department"`
	jwt.RegisteredClaims
}

// IdentityID returns the numeric identity the session was issued for.
func (c SessionClaims) IdentityID() (int64, error) {
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad subject %q", ErrMalformedToken, c.Subject)
	}
	return id, nil
}

// TokenIssuer mints and validates signed session tokens. The secret and the
// signing algorithm are fixed at construction; there is no runtime mutation
// path. Validation is pure: signature, expiry and claim shape only. There is
// no revocation list, logout is client-side discard of the token.
type TokenIssuer struct {
	secret []byte
	method jwt.SigningMethod
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// TokenOption configures TokenIssuer behavior.
type TokenOption func(*TokenIssuer) error

// WithSessionTTL overrides the default session lifetime.
func WithSessionTTL(ttl time.Duration) TokenOption {
	return func(t *TokenIssuer) error {
		if ttl <= 0 {
			return errors.New("auth: session ttl must be positive")
		}
		t.ttl = ttl
		return nil
	}
}

// WithTokenIssuerName overrides the issuer claim.
func WithTokenIssuerName(name string) TokenOption {
	return func(t *TokenIssuer) error {
		t.issuer = strings.TrimSpace(name)
		return nil
	}
}

// WithTokenClock overrides the time source (useful for tests).
func WithTokenClock(fn func() time.Time) TokenOption {
	return func(t *TokenIssuer) error {
		if fn != nil {
			t.now = fn
		}
		return nil
	}
}

// NewTokenIssuer constructs a TokenIssuer. Only the HMAC family is accepted;
// the single configured algorithm is the only one tokens are verified under.
func NewTokenIssuer(secret, algorithm string, opts ...TokenOption) (*TokenIssuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	method, err := hmacMethod(algorithm)
	if err != nil {
		return nil, err
	}
	t := &TokenIssuer{
		secret: []byte(secret),
		method: method,
		ttl:    defaultSessionTTL,
		issuer: "epicrm",
		now:    time.Now,
	}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, err
		}
	}
	return t, nil
}

func hmacMethod(algorithm string) (jwt.SigningMethod, error) {
	switch strings.ToUpper(strings.TrimSpace(algorithm)) {
	case "", "HS256":
		return jwt.SigningMethodHS256, nil
	case "HS384":
		return jwt.SigningMethodHS384, nil
	case "HS512":
		return jwt.SigningMethodHS512, nil
	}
	return nil, fmt.Errorf("auth: unsupported signing algorithm %q", algorithm)
}

// Issue signs a session token for the identity and returns it with its expiry.
func (t *TokenIssuer) Issue(identity Identity) (string, time.Time, error) {
	if identity.ID <= 0 {
		return "", time.Time{}, fmt.Errorf("%w: identity id is required", ErrInvalidInput)
	}
	if !identity.Department.Valid() {
		return "", time.Time{}, fmt.Errorf("%w: unknown department %q", ErrInvalidInput, identity.Department)
	}
	now := t.now().UTC()
	exp := now.Add(t.ttl)
	claims := SessionClaims{
		Department: identity.Department,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    t.issuer,
			Subject:   strconv.FormatInt(identity.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(t.method, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Validate verifies the token signature and claims. A token signed under any
// algorithm other than the configured one is rejected as ErrInvalidSignature.
func (t *TokenIssuer) Validate(token string) (SessionClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return SessionClaims{}, ErrMalformedToken
	}
	var claims SessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{t.method.Alg()}),
		jwt.WithTimeFunc(t.now),
		jwt.WithIssuer(t.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return SessionClaims{}, mapTokenError(err)
	}
	if _, err := claims.IdentityID(); err != nil {
		return SessionClaims{}, err
	}
	if !claims.Department.Valid() {
		return SessionClaims{}, fmt.Errorf("%w: unknown department %q", ErrMalformedToken, claims.Department)
	}
	return claims, nil
}

func mapTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformedToken
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpiredSession
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrInvalidSignature
	default:
		return ErrMalformedToken
	}
}
