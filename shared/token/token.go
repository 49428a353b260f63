// Package token issues and validates the bearer session tokens handed out at
// login. Tokens are HS256 JWTs and are never stored server-side, so a token
// stays valid until it expires.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is the session lifetime when none is configured.
const DefaultTTL = time.Hour

// Claims is the JWT payload.
type Claims struct {
	UserID   int64  `json:"id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

type Config struct {
	Secret string
	TTL    time.Duration
	// Now overrides the clock. Nil means time.Now.
	Now func() time.Time
}

// Service signs and verifies tokens with a single shared secret. It holds no
// mutable state and is safe for concurrent use.
type Service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

func New(cfg Config) (*Service, error) {
	if cfg.Secret == "" {
		return nil, errors.New("token secret must be provided")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		secret: []byte(cfg.Secret),
		ttl:    cfg.TTL,
		now:    cfg.Now,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(cfg.Now),
		),
	}, nil
}

// TTL reports how long issued tokens stay valid.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Issue signs id and username with an expiry of now+TTL.
func (s *Service) Issue(userID int64, username string) (string, error) {
	now := s.now()
	claims := Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return signed, nil
}

// Validate checks the signature first, then expiry. Every failure is a *Error.
func (s *Service) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	tok, err := s.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, classify(err)
	}
	if !tok.Valid || claims.UserID == 0 {
		return nil, &Error{Kind: Malformed}
	}
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return &Error{Kind: Malformed, Err: err}
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return &Error{Kind: InvalidSignature, Err: err}
	case errors.Is(err, jwt.ErrTokenExpired):
		return &Error{Kind: Expired, Err: err}
	default:
		return &Error{Kind: Malformed, Err: err}
	}
}
