package domain

import "time"

// Credential is an upstream bearer token.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// Valid reports whether the token may still be used at now, keeping buffer in reserve.
func (c *Credential) Valid(now time.Time, buffer time.Duration) bool {
	return c != nil && c.Token != "" && now.Add(buffer).Before(c.ExpiresAt)
}
