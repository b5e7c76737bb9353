// Package auth issues and verifies the JWT tokens that carry caller
// identity for the access guard. User and credential management live
// outside this service; tokens arrive minted by the identity provider
// and are only verified here.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/arjun/haultrack/internal/model"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Service verifies bearer tokens and extracts the caller.
type Service struct {
	secret   []byte
	tokenTTL time.Duration
}

// NewService creates a token service with the given HMAC secret.
func NewService(secret string, tokenTTL time.Duration) *Service {
	return &Service{secret: []byte(secret), tokenTTL: tokenTTL}
}

// GenerateToken mints a token for a caller. Used by tooling and tests;
// production tokens come from the external identity provider sharing the
// same secret.
func (s *Service) GenerateToken(caller model.Caller) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  caller.ID,
		"role": string(caller.Role),
		"iat":  now.Unix(),
		"exp":  now.Add(s.tokenTTL).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// VerifyToken validates a bearer token (with or without the "Bearer "
// prefix) and returns the caller it represents.
func (s *Service) VerifyToken(raw string) (*model.Caller, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(raw, "Bearer "))
	if raw == "" {
		return nil, ErrInvalidToken
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	sub, _ := claims["sub"].(string)
	roleStr, _ := claims["role"].(string)
	role := model.Role(roleStr)
	if sub == "" {
		return nil, ErrInvalidToken
	}
	switch role {
	case model.RoleDriver, model.RoleManager, model.RoleAdmin:
	default:
		return nil, ErrInvalidToken
	}

	return &model.Caller{ID: sub, Role: role}, nil
}
