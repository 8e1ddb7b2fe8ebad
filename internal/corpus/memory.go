package corpus

import (
	"context"
	"sort"
	"sync"

	"github.com/sells-group/bioscope/internal/embed"
	"github.com/sells-group/bioscope/internal/model"
)

// MemoryCorpus is an in-process corpus with brute-force cosine search.
// It is loaded once from a seed file and then read concurrently.
type MemoryCorpus struct {
	mu   sync.RWMutex
	docs map[string]model.MitigationDocument
}

// NewMemoryCorpus creates an empty corpus.
func NewMemoryCorpus() *MemoryCorpus {
	return &MemoryCorpus{docs: make(map[string]model.MitigationDocument)}
}

// Len returns the number of documents.
func (m *MemoryCorpus) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// Upsert implements Writer. Incomplete documents are skipped.
func (m *MemoryCorpus) Upsert(_ context.Context, docs []model.MitigationDocument) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, d := range docs {
		d, ok := Prepare(d)
		if !ok {
			continue
		}
		m.docs[d.ID] = d
		n++
	}
	return n, nil
}

// GetExact implements Reader. Among several matches the lowest ID wins.
func (m *MemoryCorpus) GetExact(_ context.Context, riskType, threatLevel string) (*model.MitigationDocument, error) {
	rt, lvl := NormalizeTag(riskType), NormalizeTag(threatLevel)

	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *model.MitigationDocument
	for _, d := range m.docs {
		if d.RiskType != rt || d.ThreatLevel != lvl {
			continue
		}
		if best == nil || d.ID < best.ID {
			d := d
			best = &d
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	return best, nil
}

// Nearest implements Reader.
func (m *MemoryCorpus) Nearest(_ context.Context, vec []float32, k int) ([]Neighbor, error) {
	if k <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	out := make([]Neighbor, 0, len(m.docs))
	for _, d := range m.docs {
		if len(d.Embedding) == 0 {
			continue
		}
		out = append(out, Neighbor{Doc: d, Distance: embed.CosineDistance(vec, d.Embedding)})
	}
	m.mu.RUnlock()

	sortNeighbors(out)
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// Documents returns a copy of all documents ordered by ID.
func (m *MemoryCorpus) Documents() []model.MitigationDocument {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.MitigationDocument, 0, len(m.docs))
	for _, d := range m.docs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
