// Package safebox is the embeddable credential store: usernames with Argon2id
// password hashes in SQLite, plus in-memory session tokens.
//
// A *Safe is safe for concurrent use. Verify never issues a token; callers
// decide when to call IssueToken.
package safebox

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/safebox/internal/common"
	"github.com/dmitrijs2005/safebox/internal/cryptox"
	"github.com/dmitrijs2005/safebox/internal/logging"
	"github.com/dmitrijs2005/safebox/internal/metrics"
	"github.com/dmitrijs2005/safebox/internal/safebox/credentials"
	"github.com/dmitrijs2005/safebox/internal/safebox/sessions"
)

// Options configure a Safe. The zero value is usable.
type Options struct {
	// Params are used for new hashes. Zero means cryptox.DefaultParams.
	Params cryptox.Params

	// RequireCurrentPassword disables Update and Delete; callers must use
	// ChangePassword and DeleteVerified instead.
	RequireCurrentPassword bool

	// RehashOnVerify upgrades a stored hash whose parameters differ from
	// Params after a successful Verify.
	RehashOnVerify bool

	Logger  logging.Logger
	Metrics metrics.Recorder

	// Clock defaults to time.Now.
	Clock func() time.Time

	// Rand is the salt source. Defaults to crypto/rand.
	Rand io.Reader
}

type Safe struct {
	store   *credentials.Store
	hasher  *cryptox.Hasher
	tokens  *sessions.Manager
	log     logging.Logger
	metrics metrics.Recorder

	requireCurrentPassword bool
	rehashOnVerify         bool
}

// Open opens (or creates) the database at path and returns a Safe over it.
func Open(ctx context.Context, path string, opts Options) (*Safe, error) {
	store, err := credentials.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	s, err := New(store, opts)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return s, nil
}

// New builds a Safe over an already opened store. The Safe takes ownership
// of store and closes it in Close.
func New(store *credentials.Store, opts Options) (*Safe, error) {
	params := opts.Params
	if params == (cryptox.Params{}) {
		params = cryptox.DefaultParams()
	}
	var hasher *cryptox.Hasher
	var err error
	if opts.Rand != nil {
		hasher, err = cryptox.NewHasherWithRand(params, opts.Rand)
	} else {
		hasher, err = cryptox.NewHasher(params)
	}
	if err != nil {
		return nil, err
	}

	var sessOpts []sessions.Option
	if opts.Clock != nil {
		sessOpts = append(sessOpts, sessions.WithClock(opts.Clock))
	}

	s := &Safe{
		store:                  store,
		hasher:                 hasher,
		tokens:                 sessions.NewManager(sessOpts...),
		log:                    opts.Logger,
		metrics:                opts.Metrics,
		requireCurrentPassword: opts.RequireCurrentPassword,
		rehashOnVerify:         opts.RehashOnVerify,
	}
	if s.log == nil {
		s.log = logging.NopLogger{}
	}
	if s.metrics == nil {
		s.metrics = metrics.Nop{}
	}
	return s, nil
}

func (s *Safe) Close() error {
	return s.store.Close()
}

// Create stores a freshly salted hash of password for a new username.
func (s *Safe) Create(ctx context.Context, username, password string) error {
	hash, err := s.hasher.HashPassword([]byte(password))
	if err != nil {
		err = s.hashFailure(ctx, "create", username, err)
		s.metrics.UserOp("create", err)
		return err
	}

	err = s.store.Create(ctx, username, hash)
	s.metrics.UserOp("create", err)
	if err != nil {
		return err
	}

	s.log.Info(ctx, "user created", "user", username)
	return nil
}

// Verify reports whether password matches the stored hash. A wrong password
// is (false, nil).
func (s *Safe) Verify(ctx context.Context, username, password string) (bool, error) {
	ok, err := s.verify(ctx, username, password, s.rehashOnVerify)
	s.metrics.Verification(ok, err)
	return ok, err
}

func (s *Safe) verify(ctx context.Context, username, password string, rehash bool) (bool, error) {
	stored, err := s.store.Get(ctx, username)
	if err != nil {
		return false, err
	}

	ok, err := s.hasher.Verify(stored, []byte(password))
	if err != nil {
		return false, s.hashFailure(ctx, "verify", username, err)
	}
	if ok && rehash {
		s.maybeRehash(ctx, username, password, stored)
	}
	return ok, nil
}

// maybeRehash never changes the outcome of a verify; failures are logged.
func (s *Safe) maybeRehash(ctx context.Context, username, password, stored string) {
	stale, err := s.hasher.NeedsRehash(stored)
	if err != nil || !stale {
		return
	}

	hash, err := s.hasher.HashPassword([]byte(password))
	if err != nil {
		s.log.Warn(ctx, "rehash failed", "user", username, "error", err)
		return
	}

	swapped, err := s.store.CompareAndUpdate(ctx, username, stored, hash)
	if err != nil {
		s.log.Warn(ctx, "rehash failed", "user", username, "error", err)
		return
	}
	if swapped {
		s.log.Info(ctx, "password hash upgraded", "user", username)
	}
}

// Update replaces the password of username and drops all of its tokens. It
// does not check the current password; see ChangePassword.
func (s *Safe) Update(ctx context.Context, username, newPassword string) error {
	if s.requireCurrentPassword {
		return common.ErrReverifyRequired
	}
	return s.update(ctx, username, newPassword)
}

// ChangePassword is Update guarded by a successful verify of oldPassword.
func (s *Safe) ChangePassword(ctx context.Context, username, oldPassword, newPassword string) error {
	if err := s.reverify(ctx, username, oldPassword); err != nil {
		return err
	}
	return s.update(ctx, username, newPassword)
}

// update hashes first so the gap between dropping tokens and storing the new
// hash is a single store call. A Verify with the old password that lands in
// that gap can still succeed.
func (s *Safe) update(ctx context.Context, username, newPassword string) error {
	hash, err := s.hasher.HashPassword([]byte(newPassword))
	if err != nil {
		err = s.hashFailure(ctx, "update", username, err)
		s.metrics.UserOp("update", err)
		return err
	}

	// the token lock is released before the store lock is taken
	n := s.tokens.InvalidateOwner(username)
	s.tokensRemoved(ctx, metrics.ReasonOwner, n, username)

	err = s.store.Update(ctx, username, hash)
	s.metrics.UserOp("update", err)
	if err != nil {
		return err
	}

	s.log.Info(ctx, "user updated", "user", username, "tokens_invalidated", n)
	return nil
}

// Delete removes username without a password check, together with its tokens.
func (s *Safe) Delete(ctx context.Context, username string) error {
	if s.requireCurrentPassword {
		return common.ErrReverifyRequired
	}
	return s.delete(ctx, username)
}

// DeleteVerified is Delete guarded by a successful verify of password.
func (s *Safe) DeleteVerified(ctx context.Context, username, password string) error {
	if err := s.reverify(ctx, username, password); err != nil {
		return err
	}
	return s.delete(ctx, username)
}

func (s *Safe) delete(ctx context.Context, username string) error {
	n := s.tokens.InvalidateOwner(username)
	s.tokensRemoved(ctx, metrics.ReasonOwner, n, username)

	err := s.store.Delete(ctx, username)
	s.metrics.UserOp("delete", err)
	if err != nil {
		return err
	}

	s.log.Info(ctx, "user deleted", "user", username)
	return nil
}

func (s *Safe) reverify(ctx context.Context, username, password string) error {
	ok, err := s.verify(ctx, username, password, false)
	s.metrics.Verification(ok, err)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %q", common.ErrWrongPassword, username)
	}
	return nil
}

// UserCount returns the number of stored credentials.
func (s *Safe) UserCount(ctx context.Context) (int64, error) {
	return s.store.Count(ctx)
}

// IssueToken creates a new session token for username. It does not check
// that the user exists; call it after a successful Verify.
func (s *Safe) IssueToken(ctx context.Context, username string) (string, error) {
	token, err := s.tokens.Issue(username)
	if err != nil {
		return "", err
	}

	s.metrics.TokenIssued()
	s.metrics.TokensActive(s.tokens.Len())
	s.log.Debug(ctx, "token issued", "user", username)
	return token, nil
}

// VerifyToken returns the owner of token. Age is not checked: a token stays
// valid until it is invalidated or swept by ExpireTokens.
func (s *Safe) VerifyToken(token string) (string, bool) {
	return s.tokens.Lookup(token)
}

// InvalidateToken removes token. Unknown tokens are ignored.
func (s *Safe) InvalidateToken(ctx context.Context, token string) {
	if s.tokens.Invalidate(token) {
		s.tokensRemoved(ctx, metrics.ReasonInvalidated, 1, "")
	}
}

// InvalidateUserTokens removes every token of username and returns the count.
func (s *Safe) InvalidateUserTokens(ctx context.Context, username string) int {
	n := s.tokens.InvalidateOwner(username)
	s.tokensRemoved(ctx, metrics.ReasonOwner, n, username)
	return n
}

// ExpireTokens removes every token older than maxAge and returns the count.
func (s *Safe) ExpireTokens(ctx context.Context, maxAge time.Duration) int {
	n := s.tokens.Expire(maxAge)
	s.tokensRemoved(ctx, metrics.ReasonExpired, n, "")
	if n > 0 {
		s.log.Info(ctx, "tokens expired", "count", n, "max_age", maxAge.String())
	}
	return n
}

// TokenCount returns the number of live tokens.
func (s *Safe) TokenCount() int {
	return s.tokens.Len()
}

// hashFailure logs the cause and returns a bare ErrCrypto, so the returned
// error does not reveal whether the record or the backend was at fault.
func (s *Safe) hashFailure(ctx context.Context, op, username string, cause error) error {
	s.log.Error(ctx, "password hash error", "op", op, "user", username, "error", cause)
	return fmt.Errorf("%s %q: %w", op, username, common.ErrCrypto)
}

func (s *Safe) tokensRemoved(ctx context.Context, reason string, n int, username string) {
	s.metrics.TokensRemoved(reason, n)
	s.metrics.TokensActive(s.tokens.Len())
	if n > 0 && username != "" {
		s.log.Debug(ctx, "tokens invalidated", "user", username, "count", n, "reason", reason)
	}
}
