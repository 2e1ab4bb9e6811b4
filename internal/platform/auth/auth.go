// Package auth verifies bearer tokens and exposes the caller's identity to
// the REST routes and the WebSocket handshake.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/homecare/homecare/internal/platform/apperror"
)

// Role is the actor class carried inside a token.
type Role string

const (
	RolePatient Role = "patient"
	RoleNurse   Role = "nurse"
	RoleAdmin   Role = "admin"
)

// Valid reports whether the role is one the platform issues.
func (r Role) Valid() bool {
	switch r {
	case RolePatient, RoleNurse, RoleAdmin:
		return true
	}
	return false
}

// Identity is the authenticated actor extracted from a verified token.
type Identity struct {
	ActorID string
	Role    Role
}

// Claims is the JWT payload the platform issues at login.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Verifier validates HS256 tokens against a shared secret. Verification runs
// once per connection at the WebSocket handshake and once per REST request.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier for the given signing secret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates a token, returning the actor identity.
// Any failure is an authentication error; callers at the handshake boundary
// disconnect on it.
func (v *Verifier) Verify(tokenStr string) (Identity, error) {
	if tokenStr == "" {
		return Identity{}, apperror.Authentication("missing token")
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil || !token.Valid {
		return Identity{}, apperror.Authentication("invalid token")
	}

	role := Role(claims.Role)
	if claims.Subject == "" || !role.Valid() {
		return Identity{}, apperror.Authentication("token missing subject or role")
	}

	return Identity{ActorID: claims.Subject, Role: role}, nil
}

// Sign issues a token for the given identity. Used by tests and the dev
// tooling; production tokens come from the platform's login service.
func (v *Verifier) Sign(id Identity, ttl time.Duration) (string, error) {
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ActorID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
		Role: string(id.Role),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
