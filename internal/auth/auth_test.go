package auth

import (
	"context"
	"testing"
	"time"

	"github.com/jaam8/surbate/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestPasswords(t *testing.T) {
	p := NewPasswords(bcrypt.MinCost)
	hash, err := p.Hash("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)
	assert.True(t, p.Verify(hash, "s3cret"))
	assert.False(t, p.Verify(hash, "guess"))
	assert.False(t, p.Verify("not-a-hash", "s3cret"))
}

func TestNewPasswordsClampsCost(t *testing.T) {
	assert.Equal(t, bcrypt.DefaultCost, NewPasswords(0).cost)
	assert.Equal(t, bcrypt.DefaultCost, NewPasswords(99).cost)
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestMemorySessionsSlidingExpiry(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)}
	s := NewMemorySessions(time.Hour, c.now)

	token, err := s.Create(ctx, Subject("poll", "p1"))
	require.NoError(t, err)
	assert.Len(t, token, 2*tokenBytes)

	c.t = c.t.Add(50 * time.Minute)
	subject, err := s.Validate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "poll:p1", subject)

	c.t = c.t.Add(50 * time.Minute)
	_, err = s.Validate(ctx, token)
	require.NoError(t, err, "validation refreshes expiry")

	c.t = c.t.Add(61 * time.Minute)
	_, err = s.Validate(ctx, token)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestMemorySessionsDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemorySessions(0, nil)
	token, err := s.Create(ctx, "survey:s1")
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, token))
	_, err = s.Validate(ctx, token)
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	_, err = s.Validate(ctx, "unknown")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}
