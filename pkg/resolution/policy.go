// Package resolution decides whether two extracted entities are the same
// real-world thing. The policy is pure: it scores a candidate pair and
// returns merge, keep_separate or ambiguous with a confidence in [0,1].
// Ambiguous is a terminal outcome surfaced for explicit analyst action;
// nothing here auto-resolves it.
//
// Merges are never applied by this package either. The orchestrator records
// a merge as an IS_DUPLICATE_OF edge in the graph, so it can be audited and
// undone by removing the edge.
package resolution

import (
	"github.com/sellside/dealgraph/pkg/types"
)

// Decision is the outcome class of a resolution evaluation.
type Decision string

const (
	Merge        Decision = "merge"
	KeepSeparate Decision = "keep_separate"
	Ambiguous    Decision = "ambiguous"
)

// Outcome is a scored resolution decision with the reason it was reached.
type Outcome struct {
	Decision   Decision `json:"decision"`
	Confidence float64  `json:"confidence"`
	Reason     string   `json:"reason"`
}

// Config holds the confidence thresholds. Confidence at or above High
// merges; below Low keeps separate; the band in between is ambiguous.
type Config struct {
	High float64 `mapstructure:"high_threshold"`
	Low  float64 `mapstructure:"low_threshold"`
}

// DefaultConfig returns the thresholds used when none are configured.
func DefaultConfig() Config {
	return Config{High: 0.90, Low: 0.60}
}

// Policy evaluates candidate entity pairs. It holds no mutable state and is
// safe for concurrent use.
type Policy struct {
	cfg Config
}

// NewPolicy builds a policy, falling back to defaults for unset or
// inverted thresholds.
func NewPolicy(cfg Config) *Policy {
	def := DefaultConfig()
	if cfg.High <= 0 || cfg.High > 1 {
		cfg.High = def.High
	}
	if cfg.Low <= 0 || cfg.Low >= cfg.High {
		cfg.Low = def.Low
	}
	return &Policy{cfg: cfg}
}

// Evaluate scores whether a and b refer to the same entity. Entities of
// different kinds never merge. Protected metrics whose qualifier terms
// differ are ambiguous at best, regardless of string similarity.
func (p *Policy) Evaluate(a, b *types.Entity) Outcome {
	if a == nil || b == nil {
		return Outcome{Decision: KeepSeparate, Confidence: 0, Reason: "missing candidate"}
	}
	if a.Kind != b.Kind {
		return Outcome{Decision: KeepSeparate, Confidence: 0, Reason: "kind mismatch"}
	}

	normA := NormalizeName(a.Name)
	normB := NormalizeName(b.Name)

	if a.Kind == types.KindFinancialMetric {
		if qualifierSet(normA) != qualifierSet(normB) {
			// "net revenue" vs "revenue" is a semantic distinction, not a
			// spelling variation. Requires explicit human confirmation.
			return Outcome{
				Decision:   Ambiguous,
				Confidence: 0,
				Reason:     "protected metric qualifiers differ",
			}
		}
	}

	confidence, reason := p.score(a, b, normA, normB)

	switch {
	case confidence >= p.cfg.High:
		return Outcome{Decision: Merge, Confidence: confidence, Reason: reason}
	case confidence < p.cfg.Low:
		return Outcome{Decision: KeepSeparate, Confidence: confidence, Reason: reason}
	default:
		return Outcome{Decision: Ambiguous, Confidence: confidence, Reason: reason}
	}
}

// score combines normalized equality, fuzzy name similarity, alias overlap
// and contextual signals into one confidence.
func (p *Policy) score(a, b *types.Entity, normA, normB string) (float64, string) {
	var confidence float64
	reason := "no signal"

	switch {
	case normA != "" && normA == normB:
		confidence = 0.95
		reason = "normalized names equal"
	default:
		if sim := trigramSimilarity(normA, normB); sim >= 0.5 {
			confidence = sim * 0.85
			reason = "fuzzy name similarity"
		}
	}

	aliasesA := append([]string{a.Name}, a.Aliases...)
	aliasesB := append([]string{b.Name}, b.Aliases...)
	if overlap := jaccard(aliasesA, aliasesB); overlap > 0 {
		confidence += overlap * 0.10
		reason += ", alias overlap"
	}

	// Contextual signal: two people at the same company are far more
	// likely to be one person than two namesakes elsewhere.
	if a.Kind == types.KindPerson && a.CompanyID != "" {
		if a.CompanyID == b.CompanyID {
			confidence += 0.05
			reason += ", shared employer"
		} else if b.CompanyID != "" {
			confidence -= 0.20
			reason += ", different employers"
		}
	}

	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0 {
		confidence = 0
	}
	return confidence, reason
}
