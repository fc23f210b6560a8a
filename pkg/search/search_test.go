package search

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sellside/dealgraph/pkg/types"
)

func TestFingerprintNormalizesWhitespaceAndCase(t *testing.T) {
	t.Parallel()
	assert.Equal(t,
		Fingerprint("Revenue grew  20%\nin Q3"),
		Fingerprint("revenue grew 20% in q3"),
	)
	assert.NotEqual(t, Fingerprint("revenue grew 20%"), Fingerprint("revenue grew 21%"))
}

func TestMergeDropsCrossPathDuplicates(t *testing.T) {
	t.Parallel()
	graph := []types.RetrievedItem{
		{ID: "e-1", Content: "Revenue grew 20% in Q3", Score: 0.8, Path: types.PathGraph},
		{ID: "e-2", Content: "Churn is rising", Score: 0.7, Path: types.PathGraph},
	}
	fast := []types.RetrievedItem{
		{ID: "ch-1", Content: "revenue grew 20% in q3", Score: 0.6, Path: types.PathFastPath},
		{ID: "ch-2", Content: "New CFO hired in May", Score: 0.5, Path: types.PathFastPath},
	}

	merged := Merge(graph, fast)
	require.Len(t, merged, 3)
	assert.Equal(t, "e-1", merged[0].ID, "graph item wins the collision")
	assert.Equal(t, "e-2", merged[1].ID)
	assert.Equal(t, "ch-2", merged[2].ID)
}

func TestMergeKeepsHigherScoredDuplicate(t *testing.T) {
	t.Parallel()
	graph := []types.RetrievedItem{
		{ID: "e-1", Content: "same text", Score: 0.4, Path: types.PathGraph},
	}
	fast := []types.RetrievedItem{
		{ID: "ch-1", Content: "Same  Text", Score: 0.9, Path: types.PathFastPath},
	}

	merged := Merge(graph, fast)
	require.Len(t, merged, 1)
	assert.Equal(t, "ch-1", merged[0].ID)
}

func TestFilterSupersededExcludesInvalidatedFacts(t *testing.T) {
	t.Parallel()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tCut := t0.Add(48 * time.Hour)

	old := &types.Entity{ID: "f-1", ValidAt: t0, InvalidAt: &tCut}
	current := &types.Entity{ID: "f-2", ValidAt: tCut}

	kept := FilterSuperseded([]*types.Entity{old, current}, tCut.Add(time.Hour))
	require.Len(t, kept, 1)
	assert.Equal(t, "f-2", kept[0].ID)

	// Before the cut the old fact is the valid one.
	kept = FilterSuperseded([]*types.Entity{old, current}, tCut.Add(-time.Hour))
	require.Len(t, kept, 1)
	assert.Equal(t, "f-1", kept[0].ID)
}

func TestContradictionSeverityGrading(t *testing.T) {
	t.Parallel()

	// Same channel, same confidence: maximal conflict.
	a := &types.Entity{Confidence: 0.85, Channel: types.ChannelQAResponse}
	b := &types.Entity{Confidence: 0.85, Channel: types.ChannelQAResponse}
	assert.InDelta(t, 1.0, ContradictionSeverity(a, b), 1e-9)

	// A weak document against a confident analyst statement barely counts.
	doc := &types.Entity{Confidence: 0.45, Channel: types.ChannelDocument}
	chat := &types.Entity{Confidence: 0.95, Channel: types.ChannelAnalystChat}
	severity := ContradictionSeverity(doc, chat)
	assert.InDelta(t, 0.2, severity, 1e-9) // 1 - 0.5 - 0.15*2
	assert.Less(t, severity, 0.5)
}

func TestAnnotateContradictionsFlagsBothSides(t *testing.T) {
	t.Parallel()
	entities := map[string]*types.Entity{
		"f-1": {ID: "f-1", Confidence: 0.85, Channel: types.ChannelQAResponse},
		"f-2": {ID: "f-2", Confidence: 0.85, Channel: types.ChannelQAResponse},
	}
	edges := []*types.Edge{{
		ID: "e-1", Kind: types.EdgeContradicts,
		SourceID: "f-1", TargetID: "f-2",
		SourceKind: types.KindFinding, TargetKind: types.KindFinding,
		Status: types.ContradictionUnresolved,
	}}
	items := []types.RetrievedItem{
		{ID: "f-1", Content: "margin improved"},
		{ID: "f-2", Content: "margin declined"},
		{ID: "f-3", Content: "unrelated"},
	}

	got := AnnotateContradictions(items, edges, entities)
	require.Len(t, got, 3)
	assert.True(t, got[0].Contradicted)
	assert.True(t, got[1].Contradicted)
	assert.False(t, got[2].Contradicted)
	assert.InDelta(t, 1.0, got[0].ContradictionSeverity, 1e-9)
}

func TestAnnotateContradictionsIgnoresResolvedEdges(t *testing.T) {
	t.Parallel()
	entities := map[string]*types.Entity{
		"f-1": {ID: "f-1", Confidence: 0.8},
		"f-2": {ID: "f-2", Confidence: 0.8},
	}
	edges := []*types.Edge{{
		ID: "e-1", Kind: types.EdgeContradicts,
		SourceID: "f-1", TargetID: "f-2",
		Status: types.ContradictionResolved,
	}}
	items := []types.RetrievedItem{{ID: "f-1"}, {ID: "f-2"}}

	got := AnnotateContradictions(items, edges, entities)
	assert.False(t, got[0].Contradicted)
	assert.False(t, got[1].Contradicted)
}

func TestAttachCitations(t *testing.T) {
	t.Parallel()
	page := 12
	chunks := map[string]*types.ChunkNode{
		"ch-1": {ID: "ch-1", DocumentID: "doc-9", ChunkIndex: 3, PageNumber: &page},
	}
	episodes := map[string]*types.Episode{
		"ep-1": {ID: "ep-1", SourceDescription: "Q3 board deck"},
	}
	provenance := []*types.Edge{{
		Kind: types.EdgeExtractedFrom, SourceID: "f-1", TargetID: "ep-1",
	}}
	items := []types.RetrievedItem{
		{ID: "f-1", Content: "finding"},
		{ID: "ch-1", Content: "chunk"},
	}

	got, citations := AttachCitations(items, provenance, episodes, chunks)
	require.Len(t, citations, 2)

	require.NotNil(t, got[0].Citation)
	assert.Equal(t, "ep-1", got[0].Citation.EpisodeID)
	assert.Equal(t, "Q3 board deck", got[0].Citation.Source)

	require.NotNil(t, got[1].Citation)
	assert.Equal(t, "doc-9", got[1].Citation.DocumentID)
	assert.Equal(t, 3, got[1].Citation.ChunkIndex)
	require.NotNil(t, got[1].Citation.PageNumber)
	assert.Equal(t, 12, *got[1].Citation.PageNumber)
}
