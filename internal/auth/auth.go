// Package auth holds admin credentials: bcrypt password hashes and opaque
// session tokens with a sliding expiry.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

const DefaultSessionTTL = 24 * time.Hour

const tokenBytes = 32

type Passwords struct {
	cost int
}

func NewPasswords(cost int) *Passwords {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Passwords{cost: cost}
}

func (p *Passwords) Hash(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(hash), nil
}

func (p *Passwords) Verify(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// SessionStore issues and checks admin tokens. Validate refreshes the
// expiry of a live token and fails with models.ErrUnauthorized otherwise.
type SessionStore interface {
	Create(ctx context.Context, subject string) (string, error)
	Validate(ctx context.Context, token string) (string, error)
	Delete(ctx context.Context, token string) error
}

// Subject names the aggregate a session administers.
func Subject(kind, id string) string {
	return kind + ":" + id
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("auth: generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
