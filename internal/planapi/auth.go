package planapi

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthorized is returned by VerifyToken for a missing or invalid token.
var ErrUnauthorized = errors.New("unauthorized")

// VerifyToken checks a bearer token produced by a Client configured with the
// same "id:secret" key.
func VerifyToken(apiKey, bearer string) error {
	id, secretHex, ok := strings.Cut(apiKey, ":")
	if !ok {
		return fmt.Errorf("invalid plan api key format")
	}
	secret, err := hex.DecodeString(secretHex)
	if err != nil {
		return fmt.Errorf("failed to decode secret hex: %w", err)
	}

	raw, found := strings.CutPrefix(bearer, "Bearer ")
	if !found || raw == "" {
		return ErrUnauthorized
	}

	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if kid, _ := t.Header["kid"].(string); kid != id {
			return nil, fmt.Errorf("unknown key id %q", kid)
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithAudience("/plans/"), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	return nil
}
