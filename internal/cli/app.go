// Package cli implements the safebox admin command: it opens the credential
// database named in the configuration and runs one command against it, or
// an interactive shell that also manages session tokens.
package cli

import (
	"bufio"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/safebox/internal/common"
	"github.com/dmitrijs2005/safebox/internal/config"
	"github.com/dmitrijs2005/safebox/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	ErrUsage    = errors.New("usage: safebox [flags] <create|verify|passwd|delete|count|config|shell> [username]")
	ErrMismatch = errors.New("password mismatch")
)

// Safe is the part of *safebox.Safe the commands use.
type Safe interface {
	Create(ctx context.Context, username, password string) error
	Verify(ctx context.Context, username, password string) (bool, error)
	Update(ctx context.Context, username, newPassword string) error
	ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error
	Delete(ctx context.Context, username string) error
	DeleteVerified(ctx context.Context, username, password string) error
	UserCount(ctx context.Context) (int64, error)

	IssueToken(ctx context.Context, username string) (string, error)
	VerifyToken(token string) (string, bool)
	InvalidateToken(ctx context.Context, token string)
	InvalidateUserTokens(ctx context.Context, username string) int
	ExpireTokens(ctx context.Context, maxAge time.Duration) int
	TokenCount() int
}

type App struct {
	config                 *config.Config
	safe                   Safe
	requireCurrentPassword bool
	reader                 *bufio.Reader
	out                    io.Writer
	log                    logging.Logger
	gatherer               prometheus.Gatherer
}

type Option func(*App)

// WithLogger sets the logger handed to the token janitor.
func WithLogger(l logging.Logger) Option {
	return func(a *App) { a.log = l }
}

// WithGatherer enables the shell's metrics command.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(a *App) { a.gatherer = g }
}

func NewApp(safe Safe, c *config.Config, in io.Reader, out io.Writer, opts ...Option) *App {
	a := &App{
		config:                 c,
		safe:                   safe,
		requireCurrentPassword: c.RequireCurrentPassword,
		reader:                 bufio.NewReader(in),
		out:                    out,
		log:                    logging.NopLogger{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run executes the command in args (positional arguments only).
func (a *App) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return ErrUsage
	}

	cmd, rest := args[0], args[1:]

	switch cmd {
	case "count", "config", "shell":
		if len(rest) != 0 {
			return ErrUsage
		}
		switch cmd {
		case "config":
			return a.showConfig()
		case "shell":
			return a.shell(ctx)
		}
		return a.count(ctx)
	}

	if len(rest) != 1 || rest[0] == "" {
		return ErrUsage
	}
	user := rest[0]

	switch cmd {
	case "create":
		return a.create(ctx, user)
	case "verify":
		return a.verify(ctx, user)
	case "passwd":
		return a.passwd(ctx, user)
	case "delete":
		return a.delete(ctx, user)
	default:
		return fmt.Errorf("unknown command %q: %w", cmd, ErrUsage)
	}
}

func (a *App) password(prompt string) (string, error) {
	pw, err := GetPassword(a.reader, prompt, a.out)
	if err != nil {
		return "", fmt.Errorf("error reading password: %w", err)
	}
	defer common.WipeByteArray(pw)
	return string(pw), nil
}

// newPassword asks twice and refuses empty or differing input.
func (a *App) newPassword() (string, error) {
	first, err := a.password("New password: ")
	if err != nil {
		return "", err
	}
	if first == "" {
		return "", errors.New("empty password")
	}
	second, err := a.password("Repeat password: ")
	if err != nil {
		return "", err
	}
	if subtle.ConstantTimeCompare([]byte(first), []byte(second)) != 1 {
		return "", errors.New("passwords do not match")
	}
	return first, nil
}

func (a *App) create(ctx context.Context, user string) error {
	pw, err := a.newPassword()
	if err != nil {
		return err
	}
	if err := a.safe.Create(ctx, user, pw); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "user %s created\n", user)
	return nil
}

func (a *App) verify(ctx context.Context, user string) error {
	pw, err := a.password("Password: ")
	if err != nil {
		return err
	}
	ok, err := a.safe.Verify(ctx, user, pw)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(a.out, "mismatch")
		return ErrMismatch
	}
	fmt.Fprintln(a.out, "ok")
	return nil
}

func (a *App) passwd(ctx context.Context, user string) error {
	var current string
	if a.requireCurrentPassword {
		var err error
		if current, err = a.password("Current password: "); err != nil {
			return err
		}
	}

	pw, err := a.newPassword()
	if err != nil {
		return err
	}

	if a.requireCurrentPassword {
		err = a.safe.ChangePassword(ctx, user, current, pw)
	} else {
		err = a.safe.Update(ctx, user, pw)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "password for %s updated\n", user)
	return nil
}

func (a *App) delete(ctx context.Context, user string) error {
	var err error
	if a.requireCurrentPassword {
		var pw string
		if pw, err = a.password("Password: "); err != nil {
			return err
		}
		err = a.safe.DeleteVerified(ctx, user, pw)
	} else {
		err = a.safe.Delete(ctx, user)
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "user %s deleted\n", user)
	return nil
}

func (a *App) count(ctx context.Context) error {
	n, err := a.safe.UserCount(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, n)
	return nil
}

// showConfig prints the effective configuration in config file format.
func (a *App) showConfig() error {
	b, err := json.MarshalIndent(a.config, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.out, string(b))
	return err
}
