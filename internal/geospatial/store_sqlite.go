package geospatial

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/bioscope/internal/model"
)

// SQLiteStore implements Store over a local SQLite file using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens a SQLite database at dsn and configures WAL mode.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS invasive_species (
	id          INTEGER PRIMARY KEY,
	latitude    REAL NOT NULL,
	longitude   REAL NOT NULL,
	common_name TEXT,
	threat_code TEXT DEFAULT 'low'
);
CREATE TABLE IF NOT EXISTS iucn_data (
	id            INTEGER PRIMARY KEY,
	latitude      REAL NOT NULL,
	longitude     REAL NOT NULL,
	species_name  TEXT,
	threat_status TEXT
);
CREATE TABLE IF NOT EXISTS freshwater_risk (
	id              INTEGER PRIMARY KEY,
	x               REAL NOT NULL,
	y               REAL NOT NULL,
	normalized_risk REAL,
	risk_level      TEXT
);
CREATE TABLE IF NOT EXISTS marine_hci (
	id         INTEGER PRIMARY KEY,
	x          REAL NOT NULL,
	y          REAL NOT NULL,
	marine_hci REAL
);
CREATE TABLE IF NOT EXISTS terrestrial_risk (
	id              INTEGER PRIMARY KEY,
	x               REAL NOT NULL,
	y               REAL NOT NULL,
	normalized_risk REAL,
	risk_level      TEXT
);
CREATE INDEX IF NOT EXISTS idx_invasive_species_lat_lon ON invasive_species(latitude, longitude);
CREATE INDEX IF NOT EXISTS idx_iucn_data_lat_lon ON iucn_data(latitude, longitude);
CREATE INDEX IF NOT EXISTS idx_freshwater_risk_y_x ON freshwater_risk(y, x);
CREATE INDEX IF NOT EXISTS idx_marine_hci_y_x ON marine_hci(y, x);
CREATE INDEX IF NOT EXISTS idx_terrestrial_risk_y_x ON terrestrial_risk(y, x);
`

// Migrate creates the layer tables if they do not exist.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteSchema)
	return eris.Wrap(err, "sqlite: migrate")
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the handle for loaders and tests.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

func sqlitePlaceholder(int) string { return "?" }

// RangeQuery implements Store.
func (s *SQLiteStore) RangeQuery(ctx context.Context, kind model.LayerKind, q model.RangeQuery) ([]Row, error) {
	t, err := tableFor(kind)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, rangeSQL(t, q, sqlitePlaceholder), rangeArgs(q)...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query %s", t.Table)
	}
	defer rows.Close() //nolint:errcheck

	var out []Row
	for rows.Next() {
		r, err := t.scan(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan %s", t.Table)
		}
		out = append(out, r)
	}
	return out, eris.Wrapf(rows.Err(), "sqlite: iterate %s", t.Table)
}

// InsertRows appends rows to the table backing kind in one transaction.
func (s *SQLiteStore) InsertRows(ctx context.Context, kind model.LayerKind, rows []Row) (int64, error) {
	t, err := tableFor(kind)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin insert")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, insertSQL(t, sqlitePlaceholder))
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: prepare insert %s", t.Table)
	}
	defer stmt.Close() //nolint:errcheck

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, insertArgs(kind, r)...); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert %s", t.Table)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit insert")
	}
	return int64(len(rows)), nil
}
