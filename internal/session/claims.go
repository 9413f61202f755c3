package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is what the CLI can learn from an access token without verifying it.
type Claims struct {
	Subject   string
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time

	// Known is false for opaque (non-JWT) tokens.
	Known bool
}

// ParseClaims decodes accessToken without checking its signature. The
// result is for display and scheduling hints only, never for authorization.
func ParseClaims(accessToken string) Claims {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return Claims{}
	}

	out := Claims{Known: true}
	out.Subject, _ = claims.GetSubject()
	if email, ok := claims["email"].(string); ok {
		out.Email = email
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		out.IssuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	return out
}

// ExpiresIn returns the remaining lifetime at now, or false when unknown.
func (c Claims) ExpiresIn(now time.Time) (time.Duration, bool) {
	if c.ExpiresAt.IsZero() {
		return 0, false
	}
	return c.ExpiresAt.Sub(now), true
}
