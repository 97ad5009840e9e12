package auth

import "github.com/golang-jwt/jwt/v5"

// SessionClaims is the subset of the identity provider's session token the API reads.
type SessionClaims struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	jwt.RegisteredClaims
}
