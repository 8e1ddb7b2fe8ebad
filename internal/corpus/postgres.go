package corpus

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/bioscope/internal/db"
	"github.com/sells-group/bioscope/internal/model"
)

// PostgresCorpus keeps documents in one table. Embeddings are stored as
// real[] and cast to pgvector's vector type at query time, so bulk loads
// go through plain COPY.
type PostgresCorpus struct {
	pool  db.Pool
	table string
}

// NewPostgresCorpus creates a corpus over table.
func NewPostgresCorpus(pool db.Pool, table string) *PostgresCorpus {
	if table == "" {
		table = "mitigation_actions"
	}
	return &PostgresCorpus{pool: pool, table: table}
}

var corpusColumns = []string{"id", "risk_type", "threat_level", "mitigation_action", "embedding"}

func (p *PostgresCorpus) ident() string {
	return pgx.Identifier{p.table}.Sanitize()
}

// Migrate creates the vector extension, the table, and the tag index.
func (p *PostgresCorpus) Migrate(ctx context.Context) error {
	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id                text PRIMARY KEY,
			risk_type         text NOT NULL,
			threat_level      text NOT NULL,
			mitigation_action text NOT NULL,
			embedding         real[],
			updated_at        timestamptz NOT NULL DEFAULT now()
		)`, p.ident()),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (risk_type, threat_level)",
			pgx.Identifier{"idx_" + p.table + "_tags"}.Sanitize(), p.ident()),
	}
	for _, s := range stmts {
		if _, err := p.pool.Exec(ctx, s); err != nil {
			return eris.Wrapf(err, "corpus: migrate %s", p.table)
		}
	}
	return nil
}

// GetExact implements Reader.
func (p *PostgresCorpus) GetExact(ctx context.Context, riskType, threatLevel string) (*model.MitigationDocument, error) {
	sql := fmt.Sprintf(`SELECT id, risk_type, threat_level, mitigation_action
		FROM %s WHERE risk_type = $1 AND threat_level = $2 ORDER BY id LIMIT 1`, p.ident())

	var d model.MitigationDocument
	err := p.pool.QueryRow(ctx, sql, NormalizeTag(riskType), NormalizeTag(threatLevel)).
		Scan(&d.ID, &d.RiskType, &d.ThreatLevel, &d.ActionText)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "corpus: get exact")
	}
	return &d, nil
}

// Nearest implements Reader using pgvector's cosine distance operator.
func (p *PostgresCorpus) Nearest(ctx context.Context, vec []float32, k int) ([]Neighbor, error) {
	if k <= 0 {
		return nil, nil
	}
	sql := fmt.Sprintf(`SELECT id, risk_type, threat_level, mitigation_action,
		embedding::vector <=> $1::real[]::vector AS distance
		FROM %s WHERE embedding IS NOT NULL
		ORDER BY distance, id LIMIT $2`, p.ident())

	rows, err := p.pool.Query(ctx, sql, vec, k)
	if err != nil {
		return nil, eris.Wrap(err, "corpus: nearest")
	}
	defer rows.Close()

	var out []Neighbor
	for rows.Next() {
		var n Neighbor
		if err := rows.Scan(&n.Doc.ID, &n.Doc.RiskType, &n.Doc.ThreatLevel, &n.Doc.ActionText, &n.Distance); err != nil {
			return nil, eris.Wrap(err, "corpus: scan neighbor")
		}
		out = append(out, n)
	}
	return out, eris.Wrap(rows.Err(), "corpus: iterate neighbors")
}

// Upsert implements Writer through a COPY-staged bulk upsert keyed by id.
func (p *PostgresCorpus) Upsert(ctx context.Context, docs []model.MitigationDocument) (int64, error) {
	rows := make([][]any, 0, len(docs))
	for _, d := range docs {
		d, ok := Prepare(d)
		if !ok {
			continue
		}
		rows = append(rows, []any{d.ID, d.RiskType, d.ThreatLevel, d.ActionText, d.Embedding})
	}
	n, err := db.BulkUpsert(ctx, p.pool, db.UpsertConfig{
		Table:        p.table,
		Columns:      corpusColumns,
		ConflictKeys: []string{"id"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "corpus: upsert")
	}
	return n, nil
}
