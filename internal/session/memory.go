package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

type entry struct {
	token     string
	expiresAt time.Time
}

// Memory is a process-local Store for development and tests.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{entries: map[string]entry{}, now: time.Now}
}

// WithClock makes the store read time from now.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) Put(_ context.Context, userID, refreshToken string, ttl time.Duration) error {
	ttl = ttlSeconds(ttl)
	if ttl == 0 {
		return errors.New("session ttl must be positive")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[userID] = entry{token: refreshToken, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *Memory) Get(_ context.Context, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[userID]
	if !ok {
		return "", ErrNoSession
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.entries, userID)
		return "", ErrNoSession
	}
	return e.token, nil
}

func (m *Memory) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, userID)
	return nil
}
