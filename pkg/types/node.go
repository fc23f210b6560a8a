package types

import (
	"time"
)

// Kind enumerates the node kinds the graph store accepts. Entity kinds are
// a closed set; extraction output naming anything else is rejected.
type Kind string

const (
	KindCompany         Kind = "Company"
	KindPerson          Kind = "Person"
	KindFinancialMetric Kind = "FinancialMetric"
	KindFinding         Kind = "Finding"
	KindRisk            Kind = "Risk"

	// KindEpisode is not an entity kind. It participates in the edge
	// endpoint table for provenance edges (Mentions, ExtractedFrom).
	KindEpisode Kind = "Episode"
)

// EntityKinds lists the kinds an extracted entity may take.
var EntityKinds = []Kind{KindCompany, KindPerson, KindFinancialMetric, KindFinding, KindRisk}

// IsEntityKind reports whether k is a valid extracted-entity kind.
func IsEntityKind(k Kind) bool {
	for _, ek := range EntityKinds {
		if ek == k {
			return true
		}
	}
	return false
}

// wireKinds maps the snake_case names used on the extraction wire to kinds.
var wireKinds = map[string]Kind{
	"company":          KindCompany,
	"person":           KindPerson,
	"financial_metric": KindFinancialMetric,
	"finding":          KindFinding,
	"risk":             KindRisk,
}

// ParseKind resolves a wire-format kind name to its Kind. The second return
// is false for anything outside the closed set.
func ParseKind(name string) (Kind, bool) {
	k, ok := wireKinds[name]
	return k, ok
}

// SourceChannel is the provenance category of ingested content. It ranks
// truth precedence: an analyst correction beats a Q&A answer, which beats
// what a document says, all else equal.
type SourceChannel string

const (
	ChannelDocument    SourceChannel = "document"
	ChannelQAResponse  SourceChannel = "qa_response"
	ChannelAnalystChat SourceChannel = "analyst_chat"
)

// Precedence returns the truth-precedence rank of the channel. Higher wins
// on contradiction. Unknown channels rank lowest.
func (c SourceChannel) Precedence() int {
	switch c {
	case ChannelAnalystChat:
		return 3
	case ChannelQAResponse:
		return 2
	case ChannelDocument:
		return 1
	default:
		return 0
	}
}

// ConfidenceTier returns the fixed confidence attached to content ingested
// through the channel.
func (c SourceChannel) ConfidenceTier() float64 {
	switch c {
	case ChannelAnalystChat:
		return 0.95
	case ChannelQAResponse:
		return 0.85
	case ChannelDocument:
		return 0.70
	default:
		return 0.50
	}
}

// Episode is one atomic unit of ingested content from which entities and
// edges are extracted. Episodes are immutable once committed; corrections
// arrive as new episodes, never as mutations.
type Episode struct {
	ID                string        `json:"id"`
	Name              string        `json:"name"`
	Content           string        `json:"content"`
	SourceDescription string        `json:"source_description"`
	Channel           SourceChannel `json:"channel"`
	Confidence        float64       `json:"confidence"`
	GroupID           string        `json:"group_id"`
	OccurredAt        time.Time     `json:"occurred_at"`
	CreatedAt         time.Time     `json:"created_at"`

	// ExtractionHints carries category-specific guidance passed to the
	// extraction service alongside the content.
	ExtractionHints string `json:"extraction_hints,omitempty"`
}

// Validate checks the fields required before an episode may be committed.
func (e *Episode) Validate() error {
	if e.Content == "" {
		return ErrEmptyContent
	}
	if e.GroupID == "" {
		return ErrEmptyGroupID
	}
	return nil
}

// Entity is a node extracted from episodes. Exactly one of the kind-specific
// field groups is meaningful depending on Kind; Aliases feed entity
// resolution for every kind.
type Entity struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Name      string    `json:"name"`
	Aliases   []string  `json:"aliases,omitempty"`
	GroupID   string    `json:"group_id"`
	Summary   string    `json:"summary,omitempty"`
	CreatedAt time.Time `json:"created_at"`

	// Person
	CompanyID string `json:"company_id,omitempty"`

	// Finding / FinancialMetric (temporal facts)
	SemanticKey string        `json:"semantic_key,omitempty"`
	ValidAt     time.Time     `json:"valid_at,omitempty"`
	InvalidAt   *time.Time    `json:"invalid_at,omitempty"`
	Channel     SourceChannel `json:"channel,omitempty"`
	Confidence  float64       `json:"confidence,omitempty"`

	Embedding  []float32      `json:"embedding,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Validate checks the fields required before an entity may be written.
func (e *Entity) Validate() error {
	if e.Name == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if e.GroupID == "" {
		return ErrEmptyGroupID
	}
	if !IsEntityKind(e.Kind) {
		return &ValidationError{Field: "kind", Reason: "unknown entity kind " + string(e.Kind)}
	}
	return nil
}

// ValidDuring reports whether the entity's validity window covers t.
// Entities without an invalidation timestamp are open-ended.
func (e *Entity) ValidDuring(t time.Time) bool {
	if !e.ValidAt.IsZero() && t.Before(e.ValidAt) {
		return false
	}
	if e.InvalidAt != nil && !t.Before(*e.InvalidAt) {
		return false
	}
	return true
}

// ChunkNode is a fast-path record: one parsed chunk with its embedding,
// available for vector search before graph extraction completes. Created
// once, never mutated.
type ChunkNode struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"embedding"`
	DocumentID string    `json:"document_id"`
	GroupID    string    `json:"group_id"`
	ChunkIndex int       `json:"chunk_index"`
	PageNumber *int      `json:"page_number,omitempty"`
	ChunkType  string    `json:"chunk_type"`
	TokenCount int       `json:"token_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// Validate checks the fields required before a chunk may be indexed.
func (c *ChunkNode) Validate() error {
	if c.Content == "" {
		return ErrEmptyContent
	}
	if c.GroupID == "" {
		return ErrEmptyGroupID
	}
	if c.DocumentID == "" {
		return &ValidationError{Field: "document_id", Reason: "must not be empty"}
	}
	return nil
}

// Citation is derived per retrieval from ExtractedFrom edges or chunk
// provenance fields. It is never stored.
type Citation struct {
	ResultID   string `json:"result_id"`
	DocumentID string `json:"document_id,omitempty"`
	EpisodeID  string `json:"episode_id,omitempty"`
	ChunkIndex int    `json:"chunk_index,omitempty"`
	PageNumber *int   `json:"page_number,omitempty"`
	Source     string `json:"source,omitempty"`
}
