package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dmitrijs2005/safebox/internal/safebox/janitor"
	"github.com/prometheus/common/expfmt"
)

const janitorStopTimeout = 5 * time.Second

const shellHelp = `Available commands:
  create|verify|passwd|delete <user>
  count, config
  login <user>         verify and issue a session token
  whoami <token>       show the owner of a token
  logout <token>       invalidate one token
  logout-all <user>    invalidate every token of a user
  tokens               number of live tokens
  sweep                expire old tokens now
  metrics              dump metrics
  exit`

// shell reads commands line by line until exit, end of input or ctx is
// cancelled. Session tokens live as long as the shell; the janitor sweeps
// them on the configured schedule.
func (a *App) shell(ctx context.Context) error {
	var j *janitor.Janitor
	if a.config.SweepSchedule != "" {
		var err error
		j, err = janitor.New(a.safe, a.config.SweepSchedule, a.config.TokenMaxAge, a.log)
		if err != nil {
			return err
		}
		j.Start()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), janitorStopTimeout)
			defer cancel()
			_ = j.Stop(stopCtx)
		}()
	}

	fmt.Fprintln(a.out, "safebox shell (type 'help' for commands)")

	for ctx.Err() == nil {
		fmt.Fprint(a.out, "safebox> ")
		line, err := a.reader.ReadString('\n')
		if line == "" && err != nil {
			fmt.Fprintln(a.out)
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		switch cmd {
		case "help":
			fmt.Fprintln(a.out, shellHelp)
			continue
		case "exit", "quit":
			fmt.Fprintln(a.out, "Bye!")
			return nil
		}

		if err := a.shellCommand(ctx, j, cmd, args); err != nil {
			a.report(err)
		}
	}
	return nil
}

func (a *App) shellCommand(ctx context.Context, j *janitor.Janitor, cmd string, args []string) error {
	switch cmd {
	case "login", "whoami", "logout", "logout-all":
		if len(args) != 1 {
			return fmt.Errorf("usage: %s <arg>", cmd)
		}
	case "tokens", "sweep", "metrics":
		if len(args) != 0 {
			return fmt.Errorf("usage: %s", cmd)
		}
	case "shell":
		return errors.New("already in the shell")
	default:
		return a.Run(ctx, append([]string{cmd}, args...))
	}

	switch cmd {
	case "login":
		return a.login(ctx, args[0])
	case "whoami":
		owner, ok := a.safe.VerifyToken(args[0])
		if !ok {
			fmt.Fprintln(a.out, "invalid token")
			return nil
		}
		fmt.Fprintln(a.out, owner)
	case "logout":
		a.safe.InvalidateToken(ctx, args[0])
		fmt.Fprintln(a.out, "ok")
	case "logout-all":
		n := a.safe.InvalidateUserTokens(ctx, args[0])
		fmt.Fprintf(a.out, "%d tokens invalidated\n", n)
	case "tokens":
		fmt.Fprintln(a.out, a.safe.TokenCount())
	case "sweep":
		var n int
		if j != nil {
			n = j.Sweep(ctx)
		} else {
			n = a.safe.ExpireTokens(ctx, a.config.TokenMaxAge)
		}
		fmt.Fprintf(a.out, "%d tokens expired\n", n)
	case "metrics":
		return a.dumpMetrics()
	}
	return nil
}

func (a *App) login(ctx context.Context, user string) error {
	if err := a.verify(ctx, user); err != nil {
		return err
	}
	token, err := a.safe.IssueToken(ctx, user)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, token)
	return nil
}

func (a *App) dumpMetrics() error {
	if a.gatherer == nil {
		fmt.Fprintln(a.out, "metrics disabled")
		return nil
	}
	families, err := a.gatherer.Gather()
	if err != nil {
		return fmt.Errorf("error gathering metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(a.out, mf); err != nil {
			return err
		}
	}
	return nil
}

// report prints a command error and keeps the shell running. A mismatch has
// already been printed by verify.
func (a *App) report(err error) {
	if errors.Is(err, ErrMismatch) {
		return
	}
	fmt.Fprintln(a.out, "error:", err)
}
