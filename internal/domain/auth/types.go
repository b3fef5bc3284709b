package auth

import "time"

// Config drives authentication behavior.
type Config struct {
	Secret             string
	TokenTTL           time.Duration
	RequireEntitlement bool
}

// Claims are extracted from the JWT token.
type Claims struct {
	UserID    string
	Email     string
	Entitled  bool
	TokenType string
	ExpiresAt time.Time
}

// IssuedToken is a freshly signed access token.
type IssuedToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}
