// Package sessions keeps opaque session tokens in process memory.
//
// A token maps to exactly one owner and the time it was issued. Tokens are
// removed explicitly (single, per owner, or by an age sweep); Lookup never
// mutates the map and does not look at age, so a deployment must schedule
// Expire itself.
package sessions

import (
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/safebox/internal/common"
)

// TokenBytes is the amount of randomness in a token (256 bits).
const TokenBytes = 32

type entry struct {
	owner    string
	issuedAt time.Time
}

// Manager is a token map guarded by a RWMutex: Lookup and Len share the read
// lock, every mutation takes the write lock.
type Manager struct {
	mu     sync.RWMutex
	tokens map[string]entry

	now      func() time.Time
	newToken func() (string, error)
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now as the source of issue times and sweep ages.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		tokens:   make(map[string]entry),
		now:      time.Now,
		newToken: func() (string, error) { return common.MakeRandHexString(TokenBytes) },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Issue creates a fresh random token for owner.
func (m *Manager) Issue(owner string) (string, error) {
	token, err := m.newToken()
	if err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token] = entry{owner: owner, issuedAt: m.now()}
	return token, nil
}

// Lookup returns the owner of token, if present.
func (m *Manager) Lookup(token string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.tokens[token]
	return e.owner, ok
}

// IssuedAt returns when token was issued, if present.
func (m *Manager) IssuedAt(token string) (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.tokens[token]
	return e.issuedAt, ok
}

// Invalidate removes token. Removing an unknown token is a no-op.
func (m *Manager) Invalidate(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.tokens[token]
	delete(m.tokens, token)
	return ok
}

// InvalidateOwner removes every token of owner and returns how many there were.
func (m *Manager) InvalidateOwner(owner string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for token, e := range m.tokens {
		if e.owner == owner {
			delete(m.tokens, token)
			n++
		}
	}
	return n
}

// Expire removes every token older than maxAge and returns the count.
// A token exactly maxAge old is kept.
func (m *Manager) Expire(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	n := 0
	for token, e := range m.tokens {
		if now.Sub(e.issuedAt) > maxAge {
			delete(m.tokens, token)
			n++
		}
	}
	return n
}

// Len returns the number of live tokens.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.tokens)
}
