package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/safebox/internal/config"
	"github.com/dmitrijs2005/safebox/internal/cryptox"
	"github.com/dmitrijs2005/safebox/internal/metrics"
	"github.com/dmitrijs2005/safebox/internal/safebox"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// shell runs the shell over input with the given config tweaks applied.
func shell(t *testing.T, s Safe, input string, tweak func(*config.Config), opts ...Option) string {
	t.Helper()
	stubTerminal(t, false, nil)

	cfg := &config.Config{}
	cfg.LoadDefaults()
	if tweak != nil {
		tweak(cfg)
	}

	var out bytes.Buffer
	app := NewApp(s, cfg, strings.NewReader(input), &out, opts...)
	require.NoError(t, app.Run(context.Background(), []string{"shell"}))
	return out.String()
}

func TestShell_LoginAndTokens(t *testing.T) {
	s := openSafe(t, false)

	out := shell(t, s, strings.Join([]string{
		"create alice", "wonderland", "wonderland",
		"login alice", "wonderland",
		"login alice", "wrong",
		"tokens",
		"logout-all alice",
		"tokens",
		"exit",
	}, "\n")+"\n", nil)

	assert.Contains(t, out, "user alice created")
	assert.Contains(t, out, "mismatch")
	assert.Contains(t, out, "1 tokens invalidated")
	assert.Contains(t, out, "Bye!")
	assert.Zero(t, s.TokenCount())

	lines := strings.Split(out, "\n")
	var counts []string
	for _, l := range lines {
		if l == "safebox> 1" || l == "safebox> 0" {
			counts = append(counts, strings.TrimPrefix(l, "safebox> "))
		}
	}
	assert.Equal(t, []string{"1", "0"}, counts)
}

func TestShell_WhoamiAndLogout(t *testing.T) {
	ctx := context.Background()
	s := openSafe(t, false)
	token, err := s.IssueToken(ctx, "alice")
	require.NoError(t, err)

	out := shell(t, s, "whoami "+token+"\nlogout "+token+"\nwhoami "+token+"\n", nil)

	assert.Contains(t, out, "safebox> alice\n")
	assert.Contains(t, out, "safebox> ok\n")
	assert.Contains(t, out, "safebox> invalid token\n")
	_, ok := s.VerifyToken(token)
	assert.False(t, ok)
}

func TestShell_SweepUsesTokenMaxAge(t *testing.T) {
	ctx := context.Background()
	c := &clock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s, err := safebox.Open(ctx, filepath.Join(t.TempDir(), "safe.db"), safebox.Options{
		Params: cryptox.Params{Memory: 64, Time: 1, Threads: 1, KeyLen: 32, SaltLen: 16},
		Clock:  c.Now,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	_, err = s.IssueToken(ctx, "alice")
	require.NoError(t, err)
	c.Advance(30 * time.Minute)
	_, err = s.IssueToken(ctx, "bob")
	require.NoError(t, err)
	c.Advance(45 * time.Minute)

	noSchedule := func(cfg *config.Config) { cfg.SweepSchedule = "" }
	out := shell(t, s, "sweep\ntokens\n", noSchedule)
	assert.Contains(t, out, "1 tokens expired")
	assert.Equal(t, 1, s.TokenCount())

	withJanitor := func(cfg *config.Config) { cfg.TokenMaxAge = 10 * time.Minute }
	out = shell(t, s, "sweep\n", withJanitor)
	assert.Contains(t, out, "1 tokens expired")
	assert.Zero(t, s.TokenCount())
}

func TestShell_Metrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	s, err := safebox.Open(ctx, filepath.Join(t.TempDir(), "safe.db"), safebox.Options{
		Params:  cryptox.Params{Memory: 64, Time: 1, Threads: 1, KeyLen: 32, SaltLen: 16},
		Metrics: metrics.NewMetrics(reg),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Create(ctx, "alice", "wonderland"))

	out := shell(t, s, "login alice\nwonderland\nmetrics\n", nil, WithGatherer(reg))
	assert.Contains(t, out, `safebox_user_operations_total{op="create",result="ok"} 1`)
	assert.Contains(t, out, "safebox_tokens_issued_total 1")
	assert.Contains(t, out, "safebox_tokens_active 1")

	out = shell(t, s, "metrics\n", nil)
	assert.Contains(t, out, "metrics disabled")
}

func TestShell_ErrorsKeepTheShellRunning(t *testing.T) {
	s := openSafe(t, false)

	out := shell(t, s, "\nfrobnicate alice\nlogin\nshell\ntokens extra\ndelete ghost\nhelp\ncount\n", nil)

	assert.Contains(t, out, `unknown command "frobnicate"`)
	assert.Contains(t, out, "error: usage: login <arg>")
	assert.Contains(t, out, "error: already in the shell")
	assert.Contains(t, out, "error: usage: tokens")
	assert.Contains(t, out, "user does not exist")
	assert.Contains(t, out, "logout-all <user>")
	assert.True(t, strings.HasSuffix(out, "safebox> 0\nsafebox> \n"), out)
}

func TestShell_StopsOnCancelledContext(t *testing.T) {
	stubTerminal(t, false, nil)
	s := openSafe(t, false)
	cfg := &config.Config{}
	cfg.LoadDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var out bytes.Buffer
	app := NewApp(s, cfg, strings.NewReader("count\n"), &out)
	require.NoError(t, app.Run(ctx, []string{"shell"}))
	assert.NotContains(t, out.String(), "safebox>")
}
