package validator

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidCallerToken is returned by DecodeCaller when the token is
// malformed, unsigned with the expected method, or expired.
var ErrInvalidCallerToken = errors.New("invalid caller token")

// callerClaims extends the registered JWT claims with the allowed-tools
// list Layer 2(a) consults, mirroring the teacher's
// internal/infrastructure/websocket.JWTClaims pattern (UserID + embedded
// RegisteredClaims) with one additional field for this validator's needs.
type callerClaims struct {
	UserID       string   `json:"user_id"`
	AllowedTools []string `json:"allowed_tools"`
	jwt.RegisteredClaims
}

// DecodeCaller parses and validates an HMAC-signed JWT into a Caller,
// reusing the teacher's signing-method guard (golang-jwt/jwt/v5) rather
// than trusting the token's own alg header.
func DecodeCaller(tokenString, secret string) (Caller, error) {
	token, err := jwt.ParseWithClaims(tokenString, &callerClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: unexpected signing method %v", ErrInvalidCallerToken, token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return Caller{}, fmt.Errorf("%w: %v", ErrInvalidCallerToken, err)
	}

	claims, ok := token.Claims.(*callerClaims)
	if !ok || !token.Valid {
		return Caller{}, ErrInvalidCallerToken
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return Caller{}, ErrInvalidCallerToken
	}

	return Caller{UserID: userID, AllowedTools: claims.AllowedTools}, nil
}
