package search

import (
	"math"
	"time"

	"github.com/sellside/dealgraph/pkg/types"
)

// FilterSuperseded drops entities no longer valid at the as-of instant.
// Superseded facts stay in the store for audit; they just never surface in
// retrieval results dated after their invalidation.
func FilterSuperseded(entities []*types.Entity, asOf time.Time) []*types.Entity {
	out := make([]*types.Entity, 0, len(entities))
	for _, ent := range entities {
		if ent.ValidDuring(asOf) {
			out = append(out, ent)
		}
	}
	return out
}

// ContradictionSeverity grades an unresolved contradiction between two
// findings. Close confidences from channels of equal standing make a severe
// conflict; a low-confidence document contradicting a high-confidence
// analyst statement barely registers.
func ContradictionSeverity(a, b *types.Entity) float64 {
	confGap := math.Abs(a.Confidence - b.Confidence)
	precGap := math.Abs(float64(a.Channel.Precedence() - b.Channel.Precedence()))

	severity := 1.0 - confGap - 0.15*precGap
	if severity < 0 {
		return 0
	}
	if severity > 1 {
		return 1
	}
	return severity
}

// AnnotateContradictions marks items connected by an unresolved Contradicts
// edge. Both sides stay in the result set: the reader sees the conflict
// instead of a silently chosen winner.
func AnnotateContradictions(items []types.RetrievedItem, edges []*types.Edge, entities map[string]*types.Entity) []types.RetrievedItem {
	if len(edges) == 0 {
		return items
	}

	severityByID := make(map[string]float64)
	for _, edge := range edges {
		if edge.Kind != types.EdgeContradicts || edge.Status == types.ContradictionResolved {
			continue
		}
		source, target := entities[edge.SourceID], entities[edge.TargetID]
		if source == nil || target == nil {
			continue
		}
		severity := ContradictionSeverity(source, target)
		if severity > severityByID[edge.SourceID] {
			severityByID[edge.SourceID] = severity
		}
		if severity > severityByID[edge.TargetID] {
			severityByID[edge.TargetID] = severity
		}
	}
	if len(severityByID) == 0 {
		return items
	}

	out := make([]types.RetrievedItem, len(items))
	copy(out, items)
	for i := range out {
		if severity, ok := severityByID[out[i].ID]; ok {
			out[i].Contradicted = true
			out[i].ContradictionSeverity = severity
		}
	}
	return out
}
