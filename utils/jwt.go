package utils

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleAdmin  = "admin"
	RoleRenter = "renter"
)

// JWTSecret 驗證 token 用的 HMAC 金鑰
var JWTSecret []byte

// InitJWTSecret 初始化 JWTSecret
func InitJWTSecret(secret string) {
	JWTSecret = []byte(secret)
}

// GenerateToken signs an HS256 token carrying the actor id in "sub" and its role.
// Tokens are normally issued by the identity provider; this exists for local runs and tests.
func GenerateToken(actorID, role string, ttl time.Duration) (string, error) {
	if len(JWTSecret) == 0 {
		return "", fmt.Errorf("JWT secret is not initialized")
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  actorID,
		"role": role,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	})
	signed, err := token.SignedString(JWTSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}
