package corpus

import (
	"context"
	"strings"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"

	"github.com/sells-group/bioscope/internal/model"
)

// WeaviateConfig locates a Weaviate instance.
type WeaviateConfig struct {
	URL       string
	ClassName string
	APIKey    string
}

// WeaviateCorpus stores documents as objects of one class with
// caller-supplied vectors (no server-side vectorizer).
type WeaviateCorpus struct {
	client *weaviate.Client
	class  string
}

// NewWeaviateCorpus builds a client for cfg. It does not contact the server.
func NewWeaviateCorpus(cfg WeaviateConfig) (*WeaviateCorpus, error) {
	wc := weaviate.Config{Host: cfg.URL, Scheme: "http"}
	switch {
	case strings.HasPrefix(cfg.URL, "https://"):
		wc.Scheme = "https"
		wc.Host = strings.TrimPrefix(cfg.URL, "https://")
	case strings.HasPrefix(cfg.URL, "http://"):
		wc.Host = strings.TrimPrefix(cfg.URL, "http://")
	}
	if cfg.APIKey != "" {
		wc.Headers = map[string]string{"Authorization": "Bearer " + cfg.APIKey}
	}

	client, err := weaviate.NewClient(wc)
	if err != nil {
		return nil, eris.Wrap(err, "corpus: create weaviate client")
	}
	class := cfg.ClassName
	if class == "" {
		class = "MitigationAction"
	}
	return &WeaviateCorpus{client: client, class: class}, nil
}

// Schema returns the class definition used by EnsureSchema.
func (w *WeaviateCorpus) Schema() *models.Class {
	text := func(name, desc string, tokenization string) *models.Property {
		return &models.Property{
			Name:         name,
			Description:  desc,
			DataType:     []string{"text"},
			Tokenization: tokenization,
		}
	}
	return &models.Class{
		Class:       w.class,
		Description: "Mitigation actions keyed by risk type and threat level",
		Vectorizer:  "none",
		Properties: []*models.Property{
			text("docId", "Stable document ID", "field"),
			text("riskType", "Normalized risk type", "field"),
			text("threatLevel", "Normalized threat level", "field"),
			text("mitigationAction", "Recommended action", "word"),
		},
	}
}

// EnsureSchema creates the class if it does not exist.
func (w *WeaviateCorpus) EnsureSchema(ctx context.Context) error {
	if _, err := w.client.Schema().ClassGetter().WithClassName(w.class).Do(ctx); err == nil {
		return nil
	}
	if err := w.client.Schema().ClassCreator().WithClass(w.Schema()).Do(ctx); err != nil {
		return eris.Wrapf(err, "corpus: create weaviate class %s", w.class)
	}
	return nil
}

func documentFields() []graphql.Field {
	return []graphql.Field{
		{Name: "docId"},
		{Name: "riskType"},
		{Name: "threatLevel"},
		{Name: "mitigationAction"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "distance"}}},
	}
}

func tagFilter(riskType, threatLevel string) *filters.WhereBuilder {
	return filters.Where().
		WithOperator(filters.And).
		WithOperands([]*filters.WhereBuilder{
			filters.Where().
				WithPath([]string{"riskType"}).
				WithOperator(filters.Equal).
				WithValueString(NormalizeTag(riskType)),
			filters.Where().
				WithPath([]string{"threatLevel"}).
				WithOperator(filters.Equal).
				WithValueString(NormalizeTag(threatLevel)),
		})
}

// GetExact implements Reader.
func (w *WeaviateCorpus) GetExact(ctx context.Context, riskType, threatLevel string) (*model.MitigationDocument, error) {
	resp, err := w.client.GraphQL().Get().
		WithClassName(w.class).
		WithFields(documentFields()...).
		WithWhere(tagFilter(riskType, threatLevel)).
		WithLimit(100).
		Do(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "corpus: weaviate get exact")
	}
	ns, err := parseNeighbors(resp, w.class)
	if err != nil {
		return nil, err
	}
	if len(ns) == 0 {
		return nil, ErrNotFound
	}
	best := ns[0].Doc
	for _, n := range ns[1:] {
		if n.Doc.ID < best.ID {
			best = n.Doc
		}
	}
	return &best, nil
}

// Nearest implements Reader.
func (w *WeaviateCorpus) Nearest(ctx context.Context, vec []float32, k int) ([]Neighbor, error) {
	if k <= 0 {
		return nil, nil
	}
	resp, err := w.client.GraphQL().Get().
		WithClassName(w.class).
		WithFields(documentFields()...).
		WithNearVector(w.client.GraphQL().NearVectorArgBuilder().WithVector(vec)).
		WithLimit(k).
		Do(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "corpus: weaviate nearest")
	}
	ns, err := parseNeighbors(resp, w.class)
	if err != nil {
		return nil, err
	}
	sortNeighbors(ns)
	return ns, nil
}

// Upsert implements Writer. Object IDs are derived from document IDs, so a
// second import of the same document replaces it.
func (w *WeaviateCorpus) Upsert(ctx context.Context, docs []model.MitigationDocument) (int64, error) {
	objects := make([]*models.Object, 0, len(docs))
	for _, d := range docs {
		d, ok := Prepare(d)
		if !ok {
			continue
		}
		objects = append(objects, toObject(w.class, d))
	}
	if len(objects) == 0 {
		return 0, nil
	}

	result, err := w.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "corpus: weaviate batch import")
	}

	var n int64
	var firstErr string
	for _, obj := range result {
		if obj.Result != nil && obj.Result.Errors != nil {
			if firstErr == "" && len(obj.Result.Errors.Error) > 0 {
				firstErr = obj.Result.Errors.Error[0].Message
			}
			continue
		}
		n++
	}
	if firstErr != "" {
		return n, eris.Errorf("corpus: weaviate batch import: %d of %d failed: %s", len(objects)-int(n), len(objects), firstErr)
	}
	return n, nil
}

func toObject(class string, d model.MitigationDocument) *models.Object {
	return &models.Object{
		Class:  class,
		ID:     objectID(d.ID),
		Vector: d.Embedding,
		Properties: map[string]interface{}{
			"docId":            d.ID,
			"riskType":         d.RiskType,
			"threatLevel":      d.ThreatLevel,
			"mitigationAction": d.ActionText,
		},
	}
}

// objectID returns id when it is already a UUID, otherwise a name-based
// UUID derived from it. The docId property always keeps the original.
func objectID(id string) strfmt.UUID {
	if u, err := uuid.Parse(id); err == nil {
		return strfmt.UUID(u.String())
	}
	return strfmt.UUID(uuid.NewSHA1(docNamespace, []byte(id)).String())
}

// parseNeighbors reads Get.<class> objects from a GraphQL response.
func parseNeighbors(resp *models.GraphQLResponse, class string) ([]Neighbor, error) {
	if resp == nil {
		return nil, nil
	}
	if len(resp.Errors) > 0 {
		return nil, eris.Errorf("corpus: weaviate query error: %s", resp.Errors[0].Message)
	}
	get, ok := resp.Data["Get"].(map[string]interface{})
	if !ok {
		return nil, nil
	}
	objects, ok := get[class].([]interface{})
	if !ok {
		return nil, nil
	}

	out := make([]Neighbor, 0, len(objects))
	for _, obj := range objects {
		m, ok := obj.(map[string]interface{})
		if !ok {
			continue
		}
		var n Neighbor
		n.Doc.ID, _ = m["docId"].(string)
		n.Doc.RiskType, _ = m["riskType"].(string)
		n.Doc.ThreatLevel, _ = m["threatLevel"].(string)
		n.Doc.ActionText, _ = m["mitigationAction"].(string)
		if add, ok := m["_additional"].(map[string]interface{}); ok {
			if d, ok := add["distance"].(float64); ok {
				n.Distance = d
			}
		}
		out = append(out, n)
	}
	return out, nil
}
