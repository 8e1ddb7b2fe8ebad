package corpus

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/bioscope/internal/embed"
	"github.com/sells-group/bioscope/internal/fetcher"
	"github.com/sells-group/bioscope/internal/model"
)

// Column aliases accepted in tabular seed files, after header normalization.
var (
	riskTypeColumns    = []string{"risk_type", "risk", "type"}
	threatLevelColumns = []string{"threat_level", "level", "threat"}
	actionColumns      = []string{"mitigation_action", "action", "mitigation"}
)

// LoadSeed reads mitigation documents from a YAML, JSON, CSV, TSV, or XLSX
// file. Rows missing a risk type, threat level, or action are skipped.
// Returned documents are prepared (normalized tags, stable IDs).
func LoadSeed(ctx context.Context, path string) ([]model.MitigationDocument, error) {
	var raw []model.MitigationDocument
	var err error

	switch ext := strings.ToLower(filepath.Ext(path)); {
	case ext == ".yaml" || ext == ".yml":
		raw, err = loadYAML(path)
	case ext == ".json":
		raw, err = loadJSON(ctx, path)
	case fetcher.Supported(path):
		raw, err = loadTable(ctx, path)
	default:
		return nil, eris.Errorf("corpus: unsupported seed file %q", path)
	}
	if err != nil {
		return nil, err
	}

	docs := make([]model.MitigationDocument, 0, len(raw))
	skipped := 0
	for _, d := range raw {
		d, ok := Prepare(d)
		if !ok {
			skipped++
			continue
		}
		docs = append(docs, d)
	}

	zap.L().Info("corpus: seed loaded",
		zap.String("path", path),
		zap.Int("documents", len(docs)),
		zap.Int("skipped", skipped),
	)
	return docs, nil
}

func loadYAML(path string) ([]model.MitigationDocument, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, eris.Wrapf(err, "corpus: read %s", path)
	}
	var docs []model.MitigationDocument
	if err := yaml.Unmarshal(data, &docs); err != nil {
		return nil, eris.Wrapf(err, "corpus: parse %s", path)
	}
	return docs, nil
}

func loadJSON(ctx context.Context, path string) ([]model.MitigationDocument, error) {
	f, err := os.Open(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, eris.Wrapf(err, "corpus: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	ch, errCh := fetcher.DecodeJSONArray[model.MitigationDocument](ctx, f)
	var docs []model.MitigationDocument
	for d := range ch {
		docs = append(docs, d)
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrapf(err, "corpus: parse %s", path)
	}
	return docs, nil
}

func loadTable(ctx context.Context, path string) ([]model.MitigationDocument, error) {
	var docs []model.MitigationDocument
	err := fetcher.EachRecord(ctx, path, func(_ int, rec fetcher.Record) error {
		docs = append(docs, model.MitigationDocument{
			ID:          rec.Get("id"),
			RiskType:    rec.Get(riskTypeColumns...),
			ThreatLevel: rec.Get(threatLevelColumns...),
			ActionText:  rec.Get(actionColumns...),
		})
		return nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "corpus: load seed")
	}
	return docs, nil
}

// IngestOptions tunes Ingest.
type IngestOptions struct {
	// Concurrency bounds parallel embedding calls. Default: 4.
	Concurrency int
	// BatchSize is the number of documents per Upsert. Default: 100.
	BatchSize int
}

// Ingest embeds each document's tag pair and upserts the documents in
// batches. Documents that fail Prepare are skipped. It returns the number
// of documents written.
func Ingest(ctx context.Context, w Writer, e embed.Embedder, docs []model.MitigationDocument, opts IngestOptions) (int64, error) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}

	prepared := make([]model.MitigationDocument, 0, len(docs))
	for _, d := range docs {
		if d, ok := Prepare(d); ok {
			prepared = append(prepared, d)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Concurrency)
	for i := range prepared {
		g.Go(func() error {
			vec, err := e.Embed(gctx, EmbeddingText(prepared[i].RiskType, prepared[i].ThreatLevel))
			if err != nil {
				return eris.Wrapf(err, "corpus: embed %s", prepared[i].ID)
			}
			prepared[i].Embedding = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	var total int64
	for start := 0; start < len(prepared); start += opts.BatchSize {
		end := min(start+opts.BatchSize, len(prepared))
		n, err := w.Upsert(ctx, prepared[start:end])
		if err != nil {
			return total, eris.Wrapf(err, "corpus: upsert batch at %d", start)
		}
		total += n
		zap.L().Debug("corpus: batch ingested", zap.Int("start", start), zap.Int64("written", n))
	}
	return total, nil
}
