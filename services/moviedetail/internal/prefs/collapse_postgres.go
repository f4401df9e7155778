package prefs

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const collapseSchema = `CREATE TABLE IF NOT EXISTS collapse_prefs (
	user_id     TEXT        NOT NULL,
	movie_ref   TEXT        NOT NULL,
	comment_ids BIGINT[]    NOT NULL DEFAULT '{}',
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (user_id, movie_ref)
)`

// PostgresCollapseStore persists collapse state in Postgres.
type PostgresCollapseStore struct {
	pool *pgxpool.Pool
}

func NewPostgresCollapseStore(pool *pgxpool.Pool) *PostgresCollapseStore {
	return &PostgresCollapseStore{pool: pool}
}

// EnsureSchema creates the backing table when missing.
func (s *PostgresCollapseStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, collapseSchema)
	return err
}

func (s *PostgresCollapseStore) Load(ctx context.Context, userID, movieRef string) ([]int64, error) {
	const q = `SELECT comment_ids FROM collapse_prefs WHERE user_id = $1 AND movie_ref = $2`
	var ids []int64
	err := s.pool.QueryRow(ctx, q, userID, movieRef).Scan(&ids)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return ids, err
}

func (s *PostgresCollapseStore) Save(ctx context.Context, userID, movieRef string, ids []int64) error {
	if len(ids) == 0 {
		const del = `DELETE FROM collapse_prefs WHERE user_id = $1 AND movie_ref = $2`
		_, err := s.pool.Exec(ctx, del, userID, movieRef)
		return err
	}
	const q = `INSERT INTO collapse_prefs (user_id, movie_ref, comment_ids, updated_at)
	           VALUES ($1, $2, $3, now())
	           ON CONFLICT (user_id, movie_ref)
	           DO UPDATE SET comment_ids = EXCLUDED.comment_ids, updated_at = now()`
	_, err := s.pool.Exec(ctx, q, userID, movieRef, ids)
	return err
}
