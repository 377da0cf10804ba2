// Package credentials persists one password hash per username in SQLite.
//
// Repository is the row-level SQL layer. Store owns the single connection,
// serializes every operation behind a mutex and enforces the one-row-per-user
// invariant on top of a Repository.
package credentials

import "context"

type Repository interface {
	// FindHashes returns every stored hash for username. More than one
	// element means the table is corrupt.
	FindHashes(ctx context.Context, username string) ([]string, error)
	Insert(ctx context.Context, username, hash string) error
	UpdateHash(ctx context.Context, username, hash string) (int64, error)
	Delete(ctx context.Context, username string) (int64, error)
	Count(ctx context.Context) (int64, error)
}
