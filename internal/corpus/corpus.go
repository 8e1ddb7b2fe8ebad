// Package corpus stores mitigation actions keyed by risk type and threat
// level, with an embedding per document for nearest-neighbour lookup.
package corpus

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/bioscope/internal/model"
)

// ErrNotFound is returned by GetExact when no document has the tag pair.
var ErrNotFound = eris.New("corpus: document not found")

// Neighbor is one nearest-neighbour hit.
type Neighbor struct {
	Doc      model.MitigationDocument
	Distance float64
}

// Reader is the read side used while resolving mitigations.
type Reader interface {
	// GetExact returns the first document whose normalized tags equal the
	// normalized arguments, or ErrNotFound.
	GetExact(ctx context.Context, riskType, threatLevel string) (*model.MitigationDocument, error)
	// Nearest returns up to k documents ordered by ascending cosine
	// distance, ties broken by ID.
	Nearest(ctx context.Context, vec []float32, k int) ([]Neighbor, error)
}

// Writer loads documents into a corpus.
type Writer interface {
	Upsert(ctx context.Context, docs []model.MitigationDocument) (int64, error)
}

// Corpus is a readable and writable corpus.
type Corpus interface {
	Reader
	Writer
}

// NormalizeTag trims, lower-cases, and collapses inner whitespace.
func NormalizeTag(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// EmbeddingText is the text embedded for a tag pair, both at ingestion and
// at semantic query time.
func EmbeddingText(riskType, threatLevel string) string {
	return NormalizeTag(riskType) + " | " + NormalizeTag(threatLevel)
}

var docNamespace = uuid.MustParse("8a3f4b0e-52a1-4c0e-9d55-6f2b1f7c9e21")

// DocumentID derives a stable ID from the normalized tags and action text,
// so re-ingesting the same file is idempotent.
func DocumentID(riskType, threatLevel, action string) string {
	key := NormalizeTag(riskType) + "\x1f" + NormalizeTag(threatLevel) + "\x1f" + strings.TrimSpace(action)
	return uuid.NewSHA1(docNamespace, []byte(key)).String()
}

// Prepare normalizes tags, trims the action, and fills in a missing ID.
// It reports false for documents missing any of the three fields.
func Prepare(doc model.MitigationDocument) (model.MitigationDocument, bool) {
	doc.RiskType = NormalizeTag(doc.RiskType)
	doc.ThreatLevel = NormalizeTag(doc.ThreatLevel)
	doc.ActionText = strings.TrimSpace(doc.ActionText)
	if doc.RiskType == "" || doc.ThreatLevel == "" || doc.ActionText == "" {
		return doc, false
	}
	if doc.ID == "" {
		doc.ID = DocumentID(doc.RiskType, doc.ThreatLevel, doc.ActionText)
	}
	return doc, true
}

func sortNeighbors(ns []Neighbor) {
	sort.SliceStable(ns, func(i, j int) bool {
		if ns[i].Distance != ns[j].Distance {
			return ns[i].Distance < ns[j].Distance
		}
		return ns[i].Doc.ID < ns[j].Doc.ID
	})
}
