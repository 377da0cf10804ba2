package credentials

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/safebox/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) FindHashes(ctx context.Context, username string) ([]string, error) {
	var hashes []string
	err := r.db.SelectContext(ctx, &hashes,
		`SELECT password_hash FROM credentials WHERE username = ?`, username)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return hashes, nil
}

func (r *SQLiteRepository) Insert(ctx context.Context, username, hash string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO credentials (username, password_hash) VALUES (?, ?)`, username, hash)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) UpdateHash(ctx context.Context, username, hash string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE credentials SET password_hash = ? WHERE username = ?`, hash, username)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, username string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM credentials WHERE username = ?`, username)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM credentials`); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
