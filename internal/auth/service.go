// Package auth resolves bearer tokens to ledger actors. Identity management (customers,
// passwords, sessions) lives outside the ledger; tokens are issued by an upstream service or
// by ledgerctl for development.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/simonkvalheim/fjord-ledger/internal/model"
)

const (
	issuer          = "fjord-ledger"
	tokenTypeAccess = "access"
)

var (
	ErrInvalidToken   = errors.New("invalid or expired token")
	ErrMissingSubject = errors.New("token subject is required")
)

// Config holds authentication configuration
type Config struct {
	JWTSecret         []byte        // Secret key for signing tokens
	AccessTokenExpiry time.Duration // Default lifetime of issued tokens
}

// DefaultConfig returns sensible defaults
func DefaultConfig(jwtSecret string) Config {
	return Config{
		JWTSecret:         []byte(jwtSecret),
		AccessTokenExpiry: 15 * time.Minute,
	}
}

// Claims represents the JWT payload. Subject carries the actor id, which for customers is
// their customer id.
type Claims struct {
	jwt.RegisteredClaims
	Elevated  bool   `json:"elevated"`
	TokenType string `json:"token_type"`
}

// Provider turns an opaque bearer token into an authenticated Actor
type Provider interface {
	Authenticate(token string) (model.Actor, error)
}

// Service validates and issues HMAC-signed access tokens
type Service struct {
	config Config
	now    func() time.Time
}

// NewService creates a new auth service
func NewService(config Config) *Service {
	return &Service{config: config, now: time.Now}
}

// Authenticate validates an access token and returns the actor it names
func (s *Service) Authenticate(token string) (model.Actor, error) {
	claims, err := s.ValidateToken(token)
	if err != nil {
		return model.Actor{}, err
	}
	if claims.TokenType != tokenTypeAccess {
		return model.Actor{}, ErrInvalidToken
	}
	return model.Actor{ID: claims.Subject, Elevated: claims.Elevated}, nil
}

// ValidateToken parses and validates a JWT token
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.config.JWTSecret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Issue signs an access token for subject. A zero ttl uses the configured expiry.
func (s *Service) Issue(subject string, elevated bool, ttl time.Duration) (string, time.Time, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", time.Time{}, ErrMissingSubject
	}
	if ttl <= 0 {
		ttl = s.config.AccessTokenExpiry
	}

	now := s.now()
	expiry := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
			Issuer:    issuer,
		},
		Elevated:  elevated,
		TokenType: tokenTypeAccess,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.config.JWTSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiry, nil
}
