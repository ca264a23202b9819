package domain

// Score bounds. Every hype and ethics score is clamped into this range no
// matter where it came from.
const (
	MinScore = 1.0
	MaxScore = 10.0
)

// Impact tag categories assigned by the heuristic scorer.
const (
	TagPrivacy     = "privacy"
	TagLabor       = "labor"
	TagEnvironment = "environment"
	TagSafety      = "safety"
)

// ScoreResult is the outcome of scoring a content item. Enhanced=false means
// only the heuristic floor was applied; Enhanced=true means the external
// refinement succeeded and its values supersede the heuristic ones.
// A ScoreResult is immutable once produced; re-scoring replaces it wholesale.
type ScoreResult struct {
	HypeScore    float64  `json:"hype_score"`
	EthicsScore  float64  `json:"ethics_score"`
	ImpactTags   []string `json:"impact_tags"`
	RealityCheck string   `json:"reality_check,omitempty"`
	ELI5Summary  string   `json:"eli5_summary,omitempty"`
	Enhanced     bool     `json:"enhanced"`
}

// ClampScore clamps a score into [MinScore, MaxScore].
func ClampScore(v float64) float64 {
	if v < MinScore {
		return MinScore
	}
	if v > MaxScore {
		return MaxScore
	}
	return v
}

// ValidScore reports whether v is already within the allowed score range.
func ValidScore(v float64) bool {
	return v >= MinScore && v <= MaxScore
}
