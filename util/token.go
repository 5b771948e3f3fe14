package util

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	jwtSecretByte = []byte(os.Getenv("JWTSECRET"))
	jwtMutex      sync.RWMutex
)

// ErrMissingSecret is returned when tokens are minted or checked without JWTSECRET.
var ErrMissingSecret = errors.New("jwt secret is not configured")

// StaffClaims identifies the staff member behind a dashboard request.
type StaffClaims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// SetJWTSecret allows tests or runtime code to update the secret used for
// signing staff tokens. Safe for concurrent use.
func SetJWTSecret(secret string) {
	jwtMutex.Lock()
	defer jwtMutex.Unlock()
	jwtSecretByte = []byte(secret)
}

// GetJWTSecretByte returns a copy of the current JWT secret bytes in a thread-safe manner.
func GetJWTSecretByte() []byte {
	jwtMutex.RLock()
	defer jwtMutex.RUnlock()
	return append([]byte(nil), jwtSecretByte...)
}

// CreateStaffToken signs an HS256 token whose subject is staffID.
func CreateStaffToken(staffID, name string, ttl time.Duration) (string, error) {
	secret := GetJWTSecretByte()
	if len(secret) == 0 {
		return "", ErrMissingSecret
	}
	if staffID == "" {
		return "", fmt.Errorf("staff id is required")
	}
	now := time.Now()
	claims := StaffClaims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   staffID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseStaffToken validates signature, algorithm and expiry and returns the claims.
func ParseStaffToken(tokenString string) (*StaffClaims, error) {
	secret := GetJWTSecretByte()
	if len(secret) == 0 {
		return nil, ErrMissingSecret
	}
	claims := &StaffClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("invalid staff token: %w", err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("invalid staff token: missing subject")
	}
	return claims, nil
}
