package geospatial

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/bioscope/internal/db"
	"github.com/sells-group/bioscope/internal/model"
)

// PostgresStore implements Store using a Postgres connection pool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func pgPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }

// RangeQuery implements Store.
func (s *PostgresStore) RangeQuery(ctx context.Context, kind model.LayerKind, q model.RangeQuery) ([]Row, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, rangeSQL(t, q, pgPlaceholder), rangeArgs(q)...)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: query %s", t.Table)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		r, err := t.scan(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "geo: scan %s", t.Table)
		}
		out = append(out, r)
	}
	return out, eris.Wrapf(rows.Err(), "geo: iterate %s", t.Table)
}

// InsertRows copies rows into the table backing kind.
func (s *PostgresStore) InsertRows(ctx context.Context, kind model.LayerKind, rows []Row) (int64, error) {
	t, err := tableFor(kind)
	if err != nil {
		return 0, err
	}
	src := make([][]any, len(rows))
	for i, r := range rows {
		src[i] = insertArgs(kind, r)
	}
	n, err := s.pool.CopyFrom(ctx, pgx.Identifier{t.Table}, Columns(kind), pgx.CopyFromRows(src))
	if err != nil {
		return 0, eris.Wrapf(err, "geo: copy into %s", t.Table)
	}
	return n, nil
}
