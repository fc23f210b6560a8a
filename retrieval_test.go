package dealgraph_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sellside/dealgraph"
	"github.com/sellside/dealgraph/pkg/types"
)

type failingReranker struct{}

func (failingReranker) Rank(ctx context.Context, query string, items []types.RetrievedItem) ([]types.RetrievedItem, error) {
	return nil, &types.ConnectionError{Service: "reranker", Op: "rank", Err: errors.New("dial refused")}
}

func TestRetrieveFastPathWhenGraphEmpty(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, nil, dealgraph.Options{})
	scope := testScope(t)

	_, err := p.client.IngestDocumentChunks(ctx, scope, docInput("cim", time.Time{},
		"The target's churn rate is rising.",
		"Headcount remained flat quarter over quarter."))
	require.NoError(t, err)

	result, err := p.client.Retrieve(ctx, scope, "The target's churn rate is rising.", dealgraph.RetrieveOptions{})
	require.NoError(t, err)
	assert.Equal(t, types.PathFastPath, result.PathUsed)
	assert.False(t, result.Degraded)
	require.NotEmpty(t, result.Items)
	assert.Equal(t, "The target's churn rate is rising.", result.Items[0].Content)
	assert.Equal(t, types.PathFastPath, result.Items[0].Path)

	require.NotNil(t, result.Items[0].Citation)
	assert.Equal(t, "cim", result.Items[0].Citation.DocumentID)
}

func TestRetrieveGraphPathWithCitations(t *testing.T) {
	ctx := context.Background()
	chat := &queuedChat{responses: []string{
		`{"entities": [{"kind": "company", "name": "Acme Corp", "summary": "diligence target"}], "edges": []}`,
	}}
	p := newPipeline(t, chat, dealgraph.Options{})
	scope := testScope(t)

	_, err := p.client.IngestDocumentChunks(ctx, scope, docInput("overview", time.Time{},
		"Acme Corp is the diligence target for project neon."))
	require.NoError(t, err)

	// The query text matches the entity's embedded "name: summary" form.
	result, err := p.client.Retrieve(ctx, scope, "Acme Corp: diligence target", dealgraph.RetrieveOptions{})
	require.NoError(t, err)
	assert.Equal(t, types.PathGraph, result.PathUsed)
	require.NotEmpty(t, result.Items)
	assert.Equal(t, types.PathGraph, result.Items[0].Path)
	assert.Equal(t, types.KindCompany, result.Items[0].Kind)
	assert.Equal(t, "Acme Corp: diligence target", result.Items[0].Content)

	require.NotNil(t, result.Items[0].Citation)
	assert.NotEmpty(t, result.Items[0].Citation.EpisodeID, "graph results cite their source episode")
	assert.Equal(t, "overview.pdf", result.Items[0].Citation.Source)
}

func TestRetrieveFallsBackOnGraphConnectionError(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, nil, dealgraph.Options{})
	scope := testScope(t)

	_, err := p.client.IngestDocumentChunks(ctx, scope, docInput("cim", time.Time{},
		"The target's churn rate is rising."))
	require.NoError(t, err)

	p.store.SetFailing(true)

	result, err := p.client.Retrieve(ctx, scope, "The target's churn rate is rising.", dealgraph.RetrieveOptions{})
	require.NoError(t, err)
	assert.Equal(t, types.PathFastPath, result.PathUsed)
	assert.True(t, result.Degraded)
	require.NotEmpty(t, result.Items)
	assert.Equal(t, "The target's churn rate is rising.", result.Items[0].Content)
}

func TestRetrieveBothPathsDownReturnsDegradedEmpty(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, nil, dealgraph.Options{})
	scope := testScope(t)

	p.store.SetFailing(true)
	p.index.SetFailing(true)

	result, err := p.client.Retrieve(ctx, scope, "anything", dealgraph.RetrieveOptions{})
	require.NoError(t, err, "a query must degrade, not fail, when both paths are down")
	assert.True(t, result.Degraded)
	assert.Empty(t, result.Items)
}

func TestRetrieveHidesSupersededFacts(t *testing.T) {
	ctx := context.Background()
	const key = "revenue|2025Q3|reported"
	t1 := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	t2 := t1.AddDate(0, 0, 5)

	chat := &queuedChat{responses: []string{
		metricResponse("Q3 revenue $10M", key),
		metricResponse("Q3 revenue $12M", key),
	}}
	p := newPipeline(t, chat, dealgraph.Options{})
	scope := testScope(t)

	_, err := p.client.IngestDocumentChunks(ctx, scope, docInput("cim", t1,
		"Q3 revenue was $10M."))
	require.NoError(t, err)
	_, err = p.client.IngestChatFact(ctx, scope, dealgraph.FactInput{
		MessageID:  "chat-1",
		Content:    "Q3 revenue is actually $12M.",
		OccurredAt: t2,
	})
	require.NoError(t, err)

	// Query phrased like the stale figure; the superseded fact must still
	// not surface.
	result, err := p.client.Retrieve(ctx, scope, "Q3 revenue $10M", dealgraph.RetrieveOptions{MinScore: -1})
	require.NoError(t, err)
	for _, item := range result.Items {
		assert.NotEqual(t, "Q3 revenue $10M", item.Content,
			"superseded fact surfaced in retrieval")
	}
}

func TestRetrieveAsOfSeesHistoricalFact(t *testing.T) {
	ctx := context.Background()
	const key = "revenue|2025Q3|reported"
	t1 := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	t2 := t1.AddDate(0, 0, 5)

	chat := &queuedChat{responses: []string{
		metricResponse("Q3 revenue $10M", key),
		metricResponse("Q3 revenue $12M", key),
	}}
	p := newPipeline(t, chat, dealgraph.Options{})
	scope := testScope(t)

	_, err := p.client.IngestDocumentChunks(ctx, scope, docInput("cim", t1,
		"Q3 revenue was $10M."))
	require.NoError(t, err)
	_, err = p.client.IngestChatFact(ctx, scope, dealgraph.FactInput{
		MessageID:  "chat-1",
		Content:    "Q3 revenue is actually $12M.",
		OccurredAt: t2,
	})
	require.NoError(t, err)

	result, err := p.client.Retrieve(ctx, scope, "Q3 revenue $10M", dealgraph.RetrieveOptions{
		MinScore: -1,
		AsOf:     t1.Add(time.Hour),
	})
	require.NoError(t, err)

	var contents []string
	for _, item := range result.Items {
		contents = append(contents, item.Content)
	}
	assert.Contains(t, contents, "Q3 revenue $10M",
		"as-of retrieval between ingestions must see the then-valid fact")
	assert.NotContains(t, contents, "Q3 revenue $12M")
}

func TestRerankerFailureKeepsMergedOrder(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, nil, dealgraph.Options{Reranker: failingReranker{}})
	scope := testScope(t)

	_, err := p.client.IngestDocumentChunks(ctx, scope, docInput("cim", time.Time{},
		"The target's churn rate is rising.",
		"Headcount remained flat quarter over quarter."))
	require.NoError(t, err)

	result, err := p.client.Retrieve(ctx, scope, "The target's churn rate is rising.", dealgraph.RetrieveOptions{})
	require.NoError(t, err, "a reranker outage must not fail the query")
	assert.True(t, result.Degraded)
	require.NotEmpty(t, result.Items)
	assert.Equal(t, "The target's churn rate is rising.", result.Items[0].Content,
		"pre-rerank order preserved on reranker failure")
}

func TestRetrieveTenantIsolation(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, nil, dealgraph.Options{})
	scopeA := testScope(t)
	scopeB, err := types.NewTenantScope("acme-capital", "project-osprey")
	require.NoError(t, err)

	_, err = p.client.IngestDocumentChunks(ctx, scopeA, docInput("cim", time.Time{},
		"The target's churn rate is rising."))
	require.NoError(t, err)

	result, err := p.client.Retrieve(ctx, scopeB, "The target's churn rate is rising.", dealgraph.RetrieveOptions{})
	require.NoError(t, err)
	assert.Empty(t, result.Items, "results from another deal's scope leaked")
}

func TestRetrieveValidation(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, nil, dealgraph.Options{})
	scope := testScope(t)

	_, err := p.client.Retrieve(ctx, scope, "   ", dealgraph.RetrieveOptions{})
	assert.ErrorIs(t, err, types.ErrEmptyQuery)

	_, err = p.client.Retrieve(ctx, types.TenantScope{DealID: "project-neon"}, "query", dealgraph.RetrieveOptions{})
	assert.True(t, types.IsValidationError(err))
}

func TestRetrieveRespectsMaxResults(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, nil, dealgraph.Options{})
	scope := testScope(t)

	_, err := p.client.IngestDocumentChunks(ctx, scope, docInput("cim", time.Time{},
		"alpha section one", "alpha section two", "alpha section three", "alpha section four"))
	require.NoError(t, err)

	result, err := p.client.Retrieve(ctx, scope, "alpha section one", dealgraph.RetrieveOptions{
		MaxResults: 2,
		MinScore:   -1,
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(result.Items), 2)
	assert.Len(t, result.Citations, len(result.Items))
}
