package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/sandevgo/tuskrelay/internal/core"
)

var (
	_ core.ListStore      = (*ListStore)(nil)
	_ core.AtomicReplacer = (*ListStore)(nil)
)

// ListStore emulates ordered lists with one row per entry, ordered by rowid.
type ListStore struct {
	db *sql.DB
}

func NewListStore(db *sql.DB) *ListStore {
	return &ListStore{db: db}
}

func (s *ListStore) Append(ctx context.Context, key string, values ...string) error {
	if len(values) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := insertValues(ctx, tx, key, values); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *ListStore) Range(ctx context.Context, key string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT value FROM list_entries WHERE list_key = ? ORDER BY id`, key)
	if err != nil {
		return nil, fmt.Errorf("failed to query list %s: %w", key, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, rows.Err()
}

func (s *ListStore) Len(ctx context.Context, key string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM list_entries WHERE list_key = ?`, key).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count list %s: %w", key, err)
	}
	return n, nil
}

func (s *ListStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM list_entries WHERE list_key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete list %s: %w", key, err)
	}
	return nil
}

func (s *ListStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT list_key FROM list_entries WHERE list_key LIKE ? ESCAPE '\' ORDER BY list_key`,
		escapeLike(prefix)+"%",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *ListStore) Replace(ctx context.Context, key string, values []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM list_entries WHERE list_key = ?`, key); err != nil {
		return fmt.Errorf("failed to clear list %s: %w", key, err)
	}
	if err := insertValues(ctx, tx, key, values); err != nil {
		return err
	}
	return tx.Commit()
}

func insertValues(ctx context.Context, tx *sql.Tx, key string, values []string) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO list_entries (list_key, value) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, v := range values {
		if _, err := stmt.ExecContext(ctx, key, v); err != nil {
			return fmt.Errorf("failed to insert into list %s: %w", key, err)
		}
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
