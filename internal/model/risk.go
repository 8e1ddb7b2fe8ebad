package model

// RiskRecord is one finding from one layer at one location. Records are
// built per request and copied, never shared, when enriched.
type RiskRecord struct {
	Coordinate  Coordinate        `json:"coordinate"`
	Layer       LayerKind         `json:"layer"`
	RiskType    string            `json:"risk_type"`
	Description string            `json:"description"`
	ThreatCode  ThreatCode        `json:"threat_code"`
	Normalized  *float64          `json:"normalized,omitempty"` // raster layers only
	Severity    int               `json:"severity"`
	Mitigation  *MitigationResult `json:"mitigation,omitempty"`
}

// WithMitigation returns a copy of r carrying res.
func (r RiskRecord) WithMitigation(res MitigationResult) RiskRecord {
	r.Mitigation = &res
	return r
}

// Tier names the retrieval stage that produced a mitigation.
type Tier string

const (
	TierExact     Tier = "exact"
	TierSemantic  Tier = "semantic"
	TierSynthetic Tier = "synthetic"
)

// MitigationResult is the action attached to a risk. Distance is set only
// for semantic matches.
type MitigationResult struct {
	ActionText string   `json:"action_text"`
	Tier       Tier     `json:"tier"`
	Distance   *float64 `json:"distance,omitempty"`
}

// MitigationDocument is one entry of the mitigation corpus. RiskType and
// ThreatLevel are stored normalized (trimmed, lower case).
type MitigationDocument struct {
	ID          string    `json:"id" yaml:"id"`
	RiskType    string    `json:"risk_type" yaml:"risk_type"`
	ThreatLevel string    `json:"threat_level" yaml:"threat_level"`
	ActionText  string    `json:"mitigation_action" yaml:"mitigation_action"`
	Embedding   []float32 `json:"-" yaml:"-"`
}
