package credentials

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/safebox/internal/common"
	"github.com/dmitrijs2005/safebox/internal/dbx"
	"github.com/jmoiron/sqlx"
)

// Store serializes all access to one database connection. Every method holds
// the lock for the whole check-and-act sequence and runs it in a single
// transaction, so two concurrent creates of the same username cannot both
// pass the existence check.
type Store struct {
	mu      sync.Mutex
	db      *sqlx.DB
	newRepo func(dbx.DBTX) Repository
}

// NewStore wraps db. The schema is assumed to exist; see Open.
func NewStore(db *sqlx.DB) *Store {
	return &Store{
		db:      db,
		newRepo: func(tx dbx.DBTX) Repository { return NewSQLiteRepository(tx) },
	}
}

func (s *Store) withRepo(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, s.newRepo(tx))
	})
}

// lookup returns the single hash stored for username. Zero rows is
// ErrUserNotExist, more than one is ErrInvalidData.
func lookup(ctx context.Context, repo Repository, username string) (string, error) {
	hashes, err := repo.FindHashes(ctx, username)
	if err != nil {
		return "", err
	}
	switch len(hashes) {
	case 0:
		return "", fmt.Errorf("%w: %q", common.ErrUserNotExist, username)
	case 1:
		return hashes[0], nil
	default:
		return "", fmt.Errorf("%w: %d rows for user %q", common.ErrInvalidData, len(hashes), username)
	}
}

// Create inserts username with hash. It fails with ErrUserAlreadyExist when a
// row is already present and leaves that row untouched.
func (s *Store) Create(ctx context.Context, username, hash string) error {
	return s.withRepo(ctx, func(ctx context.Context, repo Repository) error {
		_, err := lookup(ctx, repo, username)
		switch {
		case err == nil:
			return fmt.Errorf("%w: %q", common.ErrUserAlreadyExist, username)
		case !isNotExist(err):
			return err
		}
		return repo.Insert(ctx, username, hash)
	})
}

// Get returns the stored hash for username.
func (s *Store) Get(ctx context.Context, username string) (string, error) {
	var hash string
	err := s.withRepo(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		hash, err = lookup(ctx, repo, username)
		return err
	})
	if err != nil {
		return "", err
	}
	return hash, nil
}

// Update replaces the hash of an existing user.
func (s *Store) Update(ctx context.Context, username, hash string) error {
	return s.withRepo(ctx, func(ctx context.Context, repo Repository) error {
		if _, err := lookup(ctx, repo, username); err != nil {
			return err
		}
		n, err := repo.UpdateHash(ctx, username, hash)
		if err != nil {
			return err
		}
		if n != 1 {
			return fmt.Errorf("%w: update touched %d rows for user %q", common.ErrInvalidData, n, username)
		}
		return nil
	})
}

// CompareAndUpdate replaces the hash only if it still equals expected. It is
// used for transparent rehashing after a successful verify; a concurrent
// password change wins and the call reports false.
func (s *Store) CompareAndUpdate(ctx context.Context, username, expected, hash string) (bool, error) {
	var swapped bool
	err := s.withRepo(ctx, func(ctx context.Context, repo Repository) error {
		current, err := lookup(ctx, repo, username)
		if err != nil {
			return err
		}
		if current != expected {
			return nil
		}
		if _, err := repo.UpdateHash(ctx, username, hash); err != nil {
			return err
		}
		swapped = true
		return nil
	})
	return swapped, err
}

// Delete removes username without any password check.
func (s *Store) Delete(ctx context.Context, username string) error {
	return s.withRepo(ctx, func(ctx context.Context, repo Repository) error {
		if _, err := lookup(ctx, repo, username); err != nil {
			return err
		}
		_, err := repo.Delete(ctx, username)
		return err
	})
}

// Count returns the number of stored credentials.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.withRepo(ctx, func(ctx context.Context, repo Repository) error {
		var err error
		n, err = repo.Count(ctx)
		return err
	})
	return n, err
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func isNotExist(err error) bool {
	return errors.Is(err, common.ErrUserNotExist)
}
