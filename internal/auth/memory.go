package auth

import (
	"context"
	"sync"
	"time"

	"github.com/jaam8/surbate/internal/models"
)

type memorySession struct {
	subject   string
	expiresAt time.Time
}

// MemorySessions is a process-local SessionStore.
type MemorySessions struct {
	mu       sync.Mutex
	sessions map[string]memorySession
	ttl      time.Duration
	now      func() time.Time
}

func NewMemorySessions(ttl time.Duration, now func() time.Time) *MemorySessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if now == nil {
		now = time.Now
	}
	return &MemorySessions{
		sessions: make(map[string]memorySession),
		ttl:      ttl,
		now:      now,
	}
}

func (s *MemorySessions) Create(_ context.Context, subject string) (string, error) {
	token, err := newToken()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[token] = memorySession{subject: subject, expiresAt: s.now().Add(s.ttl)}
	return token, nil
}

func (s *MemorySessions) Validate(_ context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	now := s.now()
	if !ok || !now.Before(sess.expiresAt) {
		delete(s.sessions, token)
		return "", models.ErrUnauthorized
	}
	sess.expiresAt = now.Add(s.ttl)
	s.sessions[token] = sess
	return sess.subject, nil
}

func (s *MemorySessions) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}
