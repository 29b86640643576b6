package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/rookgm/paywatch/internal/models"
)

const defaultTokenTTL = 24 * time.Hour

type tokenClaims struct {
	jwt.RegisteredClaims
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

// TokenService issues and verifies HS256 API tokens
type TokenService struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewTokenService creates new TokenService instance
func NewTokenService(key []byte, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &TokenService{key: key, ttl: ttl, now: time.Now}
}

// CreateToken creates signed token for payload
func (ts *TokenService) CreateToken(payload models.TokenPayload) (string, error) {
	now := ts.now()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.ttl)),
		},
		UserID:   payload.UserID,
		Username: payload.Username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ts.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken checks token and returns its payload
func (ts *TokenService) VerifyToken(tokenString string) (*models.TokenPayload, error) {
	claims := &tokenClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return ts.key, nil
	})
	if err != nil || !token.Valid {
		return nil, errors.Join(models.ErrInvalidToken, err)
	}
	if claims.UserID == 0 {
		return nil, models.ErrInvalidToken
	}

	return &models.TokenPayload{UserID: claims.UserID, Username: claims.Username}, nil
}
