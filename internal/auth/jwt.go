// Package auth authenticates universities and students. Sessions are HS256
// tokens naming the account and its role; passwords are stored as bcrypt
// hashes.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Account roles
const (
	RoleUniversity = "university"
	RoleStudent    = "student"
)

// Claims identifies the session's account. The subject carries its email
type Claims struct {
	Role string `json:"role"`
	Name string `json:"name"`
	jwt.RegisteredClaims
}

// Email returns the account email
func (c *Claims) Email() string {
	return c.Subject
}

// GenerateToken issues a session token
func GenerateToken(role, email, name, secret, issuer string, expiration time.Duration) (string, error) {
	if role != RoleUniversity && role != RoleStudent {
		return "", fmt.Errorf("unknown role: %q", role)
	}
	if email == "" {
		return "", fmt.Errorf("account email is required")
	}

	now := time.Now()
	claims := &Claims{
		Role: role,
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			ExpiresAt: jwt.NewNumericDate(now.Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ValidateToken validates a session token and returns its claims. A token
// minted by another issuer is rejected
func ValidateToken(tokenString, secret, issuer string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token names no account")
	}

	return claims, nil
}
