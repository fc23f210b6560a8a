package types

import (
	"time"
)

// EdgeKind enumerates the relationship kinds the graph store accepts.
type EdgeKind string

const (
	EdgeWorksFor      EdgeKind = "WORKS_FOR"
	EdgeSupersedes    EdgeKind = "SUPERSEDES"
	EdgeContradicts   EdgeKind = "CONTRADICTS"
	EdgeSupports      EdgeKind = "SUPPORTS"
	EdgeExtractedFrom EdgeKind = "EXTRACTED_FROM"
	EdgeCompetesWith  EdgeKind = "COMPETES_WITH"
	EdgeInvestsIn     EdgeKind = "INVESTS_IN"
	EdgeMentions      EdgeKind = "MENTIONS"
	EdgeSupplies      EdgeKind = "SUPPLIES"

	// EdgeIsDuplicateOf records an explicit entity merge. Merging creates
	// the relation, split removes it; the duplicate node is never deleted,
	// so the operation stays auditable and reversible.
	EdgeIsDuplicateOf EdgeKind = "IS_DUPLICATE_OF"
)

// ContradictionStatus tracks whether a Contradicts edge has been resolved
// by supersession or explicit analyst action.
type ContradictionStatus string

const (
	ContradictionUnresolved ContradictionStatus = "unresolved"
	ContradictionResolved   ContradictionStatus = "resolved"
)

// endpointPair keys the static edge validation table.
type endpointPair struct {
	Source Kind
	Target Kind
}

// allowedEdgeKinds is the closed endpoint table. An edge whose
// (source kind, target kind) pair does not appear here, or whose kind is
// not listed for its pair, is a write-time validation error.
var allowedEdgeKinds = map[endpointPair][]EdgeKind{
	{KindPerson, KindCompany}:  {EdgeWorksFor},
	{KindCompany, KindCompany}: {EdgeCompetesWith, EdgeInvestsIn, EdgeSupplies},

	// Temporal fact edges connect facts of the same kind. Findings and
	// metric observations both carry semantic keys and validity windows.
	{KindFinding, KindFinding}:                 {EdgeSupersedes, EdgeContradicts, EdgeSupports},
	{KindFinancialMetric, KindFinancialMetric}: {EdgeSupersedes, EdgeContradicts, EdgeSupports},

	{KindFinding, KindCompany}:         {EdgeMentions},
	{KindFinding, KindFinancialMetric}: {EdgeMentions},
	{KindRisk, KindCompany}:            {EdgeMentions},

	// Provenance: episodes mention entities, entities are extracted from
	// episodes.
	{KindEpisode, KindCompany}:         {EdgeMentions},
	{KindEpisode, KindPerson}:          {EdgeMentions},
	{KindEpisode, KindFinancialMetric}: {EdgeMentions},
	{KindEpisode, KindFinding}:         {EdgeMentions},
	{KindEpisode, KindRisk}:            {EdgeMentions},
	{KindCompany, KindEpisode}:         {EdgeExtractedFrom},
	{KindPerson, KindEpisode}:          {EdgeExtractedFrom},
	{KindFinancialMetric, KindEpisode}: {EdgeExtractedFrom},
	{KindFinding, KindEpisode}:         {EdgeExtractedFrom},
	{KindRisk, KindEpisode}:            {EdgeExtractedFrom},
}

func init() {
	// Duplicates are only recorded between entities of the same kind, so
	// the IS_DUPLICATE_OF entries are generated rather than listed.
	for _, k := range EntityKinds {
		pair := endpointPair{k, k}
		allowedEdgeKinds[pair] = append(allowedEdgeKinds[pair], EdgeIsDuplicateOf)
	}
}

// AllowedEdgeKinds returns the edge kinds permitted between two node kinds.
// The returned slice must not be mutated.
func AllowedEdgeKinds(source, target Kind) []EdgeKind {
	return allowedEdgeKinds[endpointPair{source, target}]
}

// EdgeKindAllowed reports whether kind may connect source to target.
func EdgeKindAllowed(kind EdgeKind, source, target Kind) bool {
	for _, k := range AllowedEdgeKinds(source, target) {
		if k == kind {
			return true
		}
	}
	return false
}

// Edge is a typed relationship between two nodes. SourceKind and TargetKind
// are carried on the edge so endpoint validation does not require a node
// lookup at write time.
type Edge struct {
	ID         string   `json:"id"`
	Kind       EdgeKind `json:"kind"`
	SourceID   string   `json:"source_id"`
	TargetID   string   `json:"target_id"`
	SourceKind Kind     `json:"source_kind"`
	TargetKind Kind     `json:"target_kind"`
	GroupID    string   `json:"group_id"`

	CreatedAt time.Time  `json:"created_at"`
	ValidAt   time.Time  `json:"valid_at,omitempty"`
	InvalidAt *time.Time `json:"invalid_at,omitempty"`

	// Status is meaningful for Contradicts edges only.
	Status ContradictionStatus `json:"status,omitempty"`

	Attributes map[string]any `json:"attributes,omitempty"`
}

// Validate rejects edges with missing scope or endpoints, and edges whose
// kind the endpoint table does not permit.
func (e *Edge) Validate() error {
	if e.GroupID == "" {
		return ErrEmptyGroupID
	}
	if e.SourceID == "" || e.TargetID == "" {
		return &ValidationError{Field: "edge", Reason: "source and target are required"}
	}
	if !EdgeKindAllowed(e.Kind, e.SourceKind, e.TargetKind) {
		return &ValidationError{
			Field:  "edge",
			Reason: "edge kind " + string(e.Kind) + " not permitted between " + string(e.SourceKind) + " and " + string(e.TargetKind),
		}
	}
	return nil
}
