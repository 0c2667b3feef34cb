// Package devicetoken signs and verifies the short-lived HS256 tokens that
// biometric sync agents present to the attendance device endpoints.
package devicetoken

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// DefaultTTL is the lifetime of tokens minted by Sign when ttl is zero.
const DefaultTTL = 5 * time.Minute

var (
	// ErrInvalidToken is returned for malformed, badly signed or expired tokens.
	ErrInvalidToken = errors.New("devicetoken: invalid token")
	// ErrMissingSecret is returned when no signing key is configured.
	ErrMissingSecret = errors.New("devicetoken: secret is required")
)

// Claims identifies the device a token was minted for.
type Claims struct {
	DeviceID string `json:"device_id"`
	jwt.RegisteredClaims
}

// Sign mints a token for deviceID valid for ttl from now.
func Sign(secret []byte, deviceID string, now time.Time, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", ErrMissingSecret
	}
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return "", errors.New("devicetoken: device id is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	claims := Claims{
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   deviceID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("devicetoken: sign: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of raw and returns its claims.
func Verify(secret []byte, raw string) (Claims, error) {
	if len(secret) == 0 {
		return Claims{}, ErrMissingSecret
	}

	claims := Claims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := parser.ParseWithClaims(strings.TrimSpace(raw), &claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return Claims{}, ErrInvalidToken
	}
	if claims.ExpiresAt == nil {
		return Claims{}, fmt.Errorf("%w: exp claim is required", ErrInvalidToken)
	}
	if strings.TrimSpace(claims.DeviceID) == "" {
		return Claims{}, fmt.Errorf("%w: device_id claim is required", ErrInvalidToken)
	}
	return claims, nil
}
