package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/yourorg/coinscope/internal/config"

	"go.uber.org/zap"
)

const sessionTokenType = "session"

// TokenService issues and validates session tokens
type TokenService struct {
	secret   []byte
	duration time.Duration
	logger   *zap.Logger
}

// NewTokenService creates a token service
func NewTokenService(cfg config.AuthConfig, logger *zap.Logger) *TokenService {
	return &TokenService{
		secret:   []byte(cfg.JWTSecret),
		duration: cfg.TokenDuration,
		logger:   logger,
	}
}

// Issue signs a token bound to sessionID
func (s *TokenService) Issue(sessionID string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.duration)

	claims := jwt.MapClaims{
		"sid":  sessionID,
		"exp":  expiresAt.Unix(),
		"iat":  now.Unix(),
		"type": sessionTokenType,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		s.logger.Error("failed to sign session token", zap.Error(err))
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

// Validate checks tokenString and returns the session ID it was issued for
func (s *TokenService) Validate(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return "", err
	}

	if !token.Valid {
		return "", errors.New("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}

	tokenType, ok := claims["type"].(string)
	if !ok || tokenType != sessionTokenType {
		return "", errors.New("invalid token type")
	}

	sessionID, ok := claims["sid"].(string)
	if !ok || sessionID == "" {
		return "", errors.New("invalid session ID in token")
	}

	return sessionID, nil
}
