package extraction

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sellside/dealgraph/pkg/types"
)

type scriptedClient struct {
	response string
	err      error
}

func (s *scriptedClient) Complete(ctx context.Context, system, user string) (string, error) {
	return s.response, s.err
}

func (s *scriptedClient) Close() error { return nil }

func episode(content string) *types.Episode {
	return &types.Episode{
		ID:         "ep-1",
		Content:    content,
		GroupID:    "org_deal",
		Channel:    types.ChannelDocument,
		Confidence: 0.70,
		OccurredAt: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestExtractProducesTypedEntitiesAndProvenance(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{response: `{
		"entities": [
			{"kind": "company", "name": "Acme Robotics", "aliases": ["Acme"]},
			{"kind": "person", "name": "Dana Voss"}
		],
		"edges": [{"kind": "WORKS_FOR", "source_index": 1, "target_index": 0}]
	}`}

	entities, edges, err := NewExtractor(client).Extract(context.Background(), episode("Dana Voss is CFO of Acme Robotics."))
	require.NoError(t, err)
	require.Len(t, entities, 2)

	assert.Equal(t, types.KindCompany, entities[0].Kind)
	assert.Equal(t, "org_deal", entities[0].GroupID)
	assert.Equal(t, types.ChannelDocument, entities[0].Channel)
	assert.InDelta(t, 0.70, entities[0].Confidence, 1e-9)

	// One WORKS_FOR edge plus one EXTRACTED_FROM per entity.
	require.Len(t, edges, 3)
	assert.Equal(t, types.EdgeWorksFor, edges[0].Kind)
	assert.Equal(t, entities[1].ID, edges[0].SourceID)
	assert.Equal(t, types.EdgeExtractedFrom, edges[1].Kind)
	assert.Equal(t, "ep-1", edges[1].TargetID)
}

func TestExtractRejectsUnknownEntityKind(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{response: `{
		"entities": [{"kind": "spaceship", "name": "Enterprise"}],
		"edges": []
	}`}

	_, _, err := NewExtractor(client).Extract(context.Background(), episode("text"))
	assert.True(t, types.IsValidationError(err))
}

func TestExtractRejectsDisallowedEdgePairing(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{response: `{
		"entities": [
			{"kind": "company", "name": "Acme"},
			{"kind": "company", "name": "Globex"}
		],
		"edges": [{"kind": "WORKS_FOR", "source_index": 0, "target_index": 1}]
	}`}

	_, _, err := NewExtractor(client).Extract(context.Background(), episode("text"))
	assert.True(t, types.IsValidationError(err), "company WORKS_FOR company must be rejected, not coerced")
}

func TestExtractRejectsOutOfRangeEdgeIndex(t *testing.T) {
	t.Parallel()
	client := &scriptedClient{response: `{
		"entities": [{"kind": "company", "name": "Acme"}],
		"edges": [{"kind": "MENTIONS", "source_index": 0, "target_index": 5}]
	}`}

	_, _, err := NewExtractor(client).Extract(context.Background(), episode("text"))
	assert.True(t, types.IsValidationError(err))
}

func TestParseOutputRepairsAlmostJSON(t *testing.T) {
	t.Parallel()

	// Code fence plus trailing comma, both common in model output.
	raw := "```json\n{\"entities\": [{\"kind\": \"risk\", \"name\": \"Churn\",}], \"edges\": []}\n```"
	output, err := ParseOutput(raw)
	require.NoError(t, err)
	require.Len(t, output.Entities, 1)
	assert.Equal(t, "Churn", output.Entities[0].Name)
}

func TestParseOutputRejectsGarbage(t *testing.T) {
	t.Parallel()
	_, err := ParseOutput("I could not find any entities in this text.")
	assert.True(t, types.IsValidationError(err))
}

func TestExtractPropagatesHints(t *testing.T) {
	t.Parallel()
	var seenUser string
	client := &recordingClient{response: `{"entities": [], "edges": []}`, seen: &seenUser}

	ep := episode("Revenue was $4M.")
	ep.ExtractionHints = "Focus on financial metrics, deal terms, and valuations. Distinguish net and gross figures."

	_, _, err := NewExtractor(client).Extract(context.Background(), ep)
	require.NoError(t, err)
	assert.Contains(t, seenUser, "net and gross")
	assert.Contains(t, seenUser, "Revenue was $4M.")
}

type recordingClient struct {
	response string
	seen     *string
}

func (r *recordingClient) Complete(ctx context.Context, system, user string) (string, error) {
	*r.seen = user
	return r.response, nil
}

func (r *recordingClient) Close() error { return nil }
