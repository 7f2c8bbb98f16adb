package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/gdg-garage/streak-ledger/internal/config"
	"github.com/golang-jwt/jwt/v5"
)

// TokenDuration is the lifetime of tokens minted by GenerateToken.
const TokenDuration = 24 * time.Hour

var ErrInvalidToken = errors.New("invalid token")

// AuthHandler verifies bearer tokens issued by the identity service. Tokens
// are HS256 JWTs carrying a numeric user_id claim.
type AuthHandler struct {
	cfg *config.Config
}

func NewAuthHandler(cfg *config.Config) *AuthHandler {
	return &AuthHandler{cfg: cfg}
}

// GenerateToken mints a token for userID. Production tokens come from the
// identity service; this exists for local development and tests.
func (h *AuthHandler) GenerateToken(userID uint) (string, error) {
	claims := jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(TokenDuration).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.cfg.JWTSecret))
}

// ParseToken validates tokenString and returns its user id.
func (h *AuthHandler) ParseToken(tokenString string) (uint, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(h.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return 0, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, ErrInvalidToken
	}
	userIDFloat, ok := claims["user_id"].(float64)
	if !ok || userIDFloat < 1 {
		return 0, fmt.Errorf("%w: missing user_id claim", ErrInvalidToken)
	}
	return uint(userIDFloat), nil
}
