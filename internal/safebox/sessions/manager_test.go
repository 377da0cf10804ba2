package sessions

import (
	"encoding/hex"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestManager() (*Manager, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	m := NewManager(WithClock(clock.Now))
	return m, clock
}

func TestIssue_TokenShapeAndLookup(t *testing.T) {
	m, clock := newTestManager()

	token, err := m.Issue("alice")
	require.NoError(t, err)

	raw, err := hex.DecodeString(token)
	require.NoError(t, err)
	assert.Len(t, raw, TokenBytes)

	owner, ok := m.Lookup(token)
	require.True(t, ok)
	assert.Equal(t, "alice", owner)

	issued, ok := m.IssuedAt(token)
	require.True(t, ok)
	assert.Equal(t, clock.Now(), issued)
}

func TestIssue_TokensAreDistinct(t *testing.T) {
	m, _ := newTestManager()
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		token, err := m.Issue("alice")
		require.NoError(t, err)
		_, dup := seen[token]
		require.False(t, dup)
		seen[token] = struct{}{}
	}
	assert.Equal(t, 100, m.Len())
}

func TestIssue_GeneratorError(t *testing.T) {
	m, _ := newTestManager()
	m.newToken = func() (string, error) { return "", errors.New("no entropy") }

	_, err := m.Issue("alice")
	require.Error(t, err)
	assert.Equal(t, 0, m.Len())
}

func TestLookup_Unknown(t *testing.T) {
	m, _ := newTestManager()
	owner, ok := m.Lookup("nope")
	assert.False(t, ok)
	assert.Empty(t, owner)
}

func TestLookup_IgnoresAge(t *testing.T) {
	m, clock := newTestManager()
	token, err := m.Issue("alice")
	require.NoError(t, err)

	clock.Advance(365 * 24 * time.Hour)

	owner, ok := m.Lookup(token)
	require.True(t, ok, "lookup must not expire tokens on its own")
	assert.Equal(t, "alice", owner)
	assert.Equal(t, 1, m.Len())
}

func TestInvalidate_IsIdempotent(t *testing.T) {
	m, _ := newTestManager()
	token, err := m.Issue("alice")
	require.NoError(t, err)

	assert.True(t, m.Invalidate(token))
	_, ok := m.Lookup(token)
	assert.False(t, ok)

	assert.False(t, m.Invalidate(token))
	assert.False(t, m.Invalidate("never-issued"))
}

func TestInvalidateOwner_OnlyThatOwner(t *testing.T) {
	m, _ := newTestManager()
	a1, _ := m.Issue("alice")
	a2, _ := m.Issue("alice")
	b1, _ := m.Issue("bob")

	assert.Equal(t, 2, m.InvalidateOwner("alice"))

	for _, tok := range []string{a1, a2} {
		_, ok := m.Lookup(tok)
		assert.False(t, ok)
	}
	owner, ok := m.Lookup(b1)
	require.True(t, ok)
	assert.Equal(t, "bob", owner)

	assert.Equal(t, 0, m.InvalidateOwner("alice"))
	assert.Equal(t, 0, m.InvalidateOwner("carol"))
}

func TestExpire_RemovesOnlyOlderThanMaxAge(t *testing.T) {
	m, clock := newTestManager()

	old, _ := m.Issue("alice")
	clock.Advance(30 * time.Minute)
	edge, _ := m.Issue("bob")
	clock.Advance(30 * time.Minute)
	young, _ := m.Issue("carol")

	// ages: old=60m, edge=30m, young=0
	assert.Equal(t, 1, m.Expire(30*time.Minute))

	_, ok := m.Lookup(old)
	assert.False(t, ok)
	_, ok = m.Lookup(edge)
	assert.True(t, ok, "a token exactly max age old is kept")
	_, ok = m.Lookup(young)
	assert.True(t, ok)

	clock.Advance(time.Nanosecond)
	assert.Equal(t, 1, m.Expire(30*time.Minute))
	assert.Equal(t, 1, m.Len())
}

func TestExpire_Empty(t *testing.T) {
	m, _ := newTestManager()
	assert.Equal(t, 0, m.Expire(time.Minute))
	assert.Equal(t, 0, m.Expire(0))
}

func TestManager_ConcurrentAccess(t *testing.T) {
	m := NewManager()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				token, err := m.Issue("alice")
				if err != nil {
					t.Error(err)
					return
				}
				m.Lookup(token)
				if j%10 == 0 {
					m.Expire(time.Hour)
				}
				m.Invalidate(token)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, m.Len())
}
