package types

import "time"

// RetrievalPath labels where a retrieved item came from, for observability.
type RetrievalPath string

const (
	PathGraph    RetrievalPath = "graph"
	PathFastPath RetrievalPath = "fastpath"
	PathHybrid   RetrievalPath = "hybrid"
)

// RetrievedItem is one merged retrieval candidate. Items from the graph path
// carry entity provenance; fast-path items carry chunk provenance.
type RetrievedItem struct {
	ID      string        `json:"id"`
	Content string        `json:"content"`
	Score   float64       `json:"score"`
	Path    RetrievalPath `json:"path"`

	Kind       Kind          `json:"kind,omitempty"`
	Channel    SourceChannel `json:"channel,omitempty"`
	Confidence float64       `json:"confidence,omitempty"`
	OccurredAt time.Time     `json:"occurred_at,omitempty"`

	// Contradicted marks findings connected by an unresolved Contradicts
	// edge. They are flagged, never dropped; the caller decides whether to
	// surface both sides.
	Contradicted          bool    `json:"contradicted,omitempty"`
	ContradictionSeverity float64 `json:"contradiction_severity,omitempty"`

	Citation *Citation `json:"citation,omitempty"`
}

// PhaseLatency records per-phase timings for one retrieval call.
type PhaseLatency struct {
	EmbedMS       int64 `json:"embed_ms"`
	GraphSearchMS int64 `json:"graph_search_ms"`
	VectorMS      int64 `json:"vector_ms"`
	TotalMS       int64 `json:"total_ms"`
}

// RetrievalResult is the coordinator's answer: ranked items, their
// citations, what it cost, and which path produced it. BudgetExceeded is a
// recorded condition, not a failure; the coordinator returns whatever it has
// at budget exhaustion.
type RetrievalResult struct {
	Items          []RetrievedItem `json:"items"`
	Citations      []Citation      `json:"citations"`
	Latency        PhaseLatency    `json:"latency"`
	PathUsed       RetrievalPath   `json:"path_used"`
	BudgetExceeded bool            `json:"budget_exceeded,omitempty"`
	Degraded       bool            `json:"degraded,omitempty"`
}

// IngestionResult summarizes one orchestrator call.
type IngestionResult struct {
	EpisodeCount int           `json:"episode_count"`
	EpisodeIDs   []string      `json:"episode_ids"`
	Duration     time.Duration `json:"duration"`
}
