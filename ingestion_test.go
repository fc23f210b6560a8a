package dealgraph_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sellside/dealgraph"
	"github.com/sellside/dealgraph/pkg/driver"
	"github.com/sellside/dealgraph/pkg/embedder"
	"github.com/sellside/dealgraph/pkg/extraction"
	"github.com/sellside/dealgraph/pkg/fastpath"
	"github.com/sellside/dealgraph/pkg/types"
)

// queuedChat replays scripted extraction responses in order, falling back to
// an empty extraction once the queue drains.
type queuedChat struct {
	mu        sync.Mutex
	responses []string
	err       error
}

func (q *queuedChat) Complete(ctx context.Context, system, user string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return "", q.err
	}
	if len(q.responses) == 0 {
		return `{"entities": [], "edges": []}`, nil
	}
	response := q.responses[0]
	q.responses = q.responses[1:]
	return response, nil
}

func (q *queuedChat) Close() error { return nil }

type pipeline struct {
	client *dealgraph.Client
	store  *driver.MemoryStore
	index  *fastpath.MemoryIndex
}

func newPipeline(t *testing.T, chat extraction.ChatClient, opts dealgraph.Options) *pipeline {
	t.Helper()
	store := driver.NewMemoryStore()
	index := fastpath.NewMemoryIndex()

	opts.Store = store
	opts.Index = index
	opts.Embedder = embedder.NewStaticEmbedder(8)
	if chat != nil {
		opts.Extractor = extraction.NewExtractor(chat)
	}

	client, err := dealgraph.New(context.Background(), opts)
	require.NoError(t, err)
	return &pipeline{client: client, store: store, index: index}
}

func testScope(t *testing.T) types.TenantScope {
	t.Helper()
	scope, err := types.NewTenantScope("acme-capital", "project-neon")
	require.NoError(t, err)
	return scope
}

func metricResponse(name, semanticKey string) string {
	return fmt.Sprintf(
		`{"entities": [{"kind": "financial_metric", "name": %q, "semantic_key": %q}], "edges": []}`,
		name, semanticKey)
}

func docInput(docID string, occurredAt time.Time, contents ...string) dealgraph.DocumentInput {
	chunks := make([]dealgraph.DocumentChunk, len(contents))
	for i, content := range contents {
		chunks[i] = dealgraph.DocumentChunk{Content: content, ChunkIndex: i}
	}
	return dealgraph.DocumentInput{
		DocumentID:   docID,
		DocumentName: docID + ".pdf",
		Chunks:       chunks,
		OccurredAt:   occurredAt,
	}
}

func TestIngestDocumentChunksIndexesAndExtracts(t *testing.T) {
	ctx := context.Background()
	chat := &queuedChat{responses: []string{
		`{"entities": [
			{"kind": "company", "name": "Acme Corp", "summary": "diligence target"},
			{"kind": "financial_metric", "name": "Q3 revenue $10M", "semantic_key": "revenue|2025Q3|reported"}
		], "edges": []}`,
	}}
	p := newPipeline(t, chat, dealgraph.Options{})
	scope := testScope(t)

	result, err := p.client.IngestDocumentChunks(ctx, scope, docInput("cim",
		time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
		"Acme Corp reported Q3 revenue of $10M.",
		"Headcount remained flat quarter over quarter."))
	require.NoError(t, err)
	assert.Equal(t, 1, result.EpisodeCount)
	require.Len(t, result.EpisodeIDs, 1)

	entities, err := p.store.QueryEntities(ctx, scope.GroupID(), driver.EntityFilter{})
	require.NoError(t, err)
	assert.Len(t, entities, 2)

	// Chunks are searchable in the fast path.
	query, err := embedder.NewStaticEmbedder(8).EmbedQuery(ctx, "Acme Corp reported Q3 revenue of $10M.")
	require.NoError(t, err)
	scored, err := p.index.Search(ctx, scope.GroupID(), query, fastpath.SearchOptions{Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, scored)
	assert.Equal(t, "Acme Corp reported Q3 revenue of $10M.", scored[0].Chunk.Content)
	assert.Equal(t, "cim", scored[0].Chunk.DocumentID)
}

func TestReingestDoesNotDuplicateEntities(t *testing.T) {
	ctx := context.Background()
	response := metricResponse("Q3 revenue $10M", "revenue|2025Q3|reported")
	chat := &queuedChat{responses: []string{response, response}}
	p := newPipeline(t, chat, dealgraph.Options{})
	scope := testScope(t)
	input := docInput("cim", time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC),
		"Acme Corp reported Q3 revenue of $10M.")

	_, err := p.client.IngestDocumentChunks(ctx, scope, input)
	require.NoError(t, err)
	_, err = p.client.IngestDocumentChunks(ctx, scope, input)
	require.NoError(t, err)

	entities, err := p.store.QueryEntities(ctx, scope.GroupID(), driver.EntityFilter{})
	require.NoError(t, err)
	assert.Len(t, entities, 1, "re-ingestion must upsert, not duplicate")

	episodes, err := p.client.Episodes(ctx, scope, 10)
	require.NoError(t, err)
	assert.Len(t, episodes, 2, "each ingestion records its own episode")
}

func TestExtractionFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	chat := &queuedChat{err: errors.New("model unavailable")}
	p := newPipeline(t, chat, dealgraph.Options{})
	scope := testScope(t)

	_, err := p.client.IngestDocumentChunks(ctx, scope, docInput("cim", time.Time{},
		"Acme Corp reported Q3 revenue of $10M."))
	require.Error(t, err)

	entities, err := p.store.QueryEntities(ctx, scope.GroupID(), driver.EntityFilter{})
	require.NoError(t, err)
	assert.Empty(t, entities)

	episodes, err := p.client.Episodes(ctx, scope, 10)
	require.NoError(t, err)
	assert.Empty(t, episodes)

	query, err := embedder.NewStaticEmbedder(8).EmbedQuery(ctx, "Acme Corp reported Q3 revenue of $10M.")
	require.NoError(t, err)
	scored, err := p.index.Search(ctx, scope.GroupID(), query, fastpath.SearchOptions{Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, scored, "fast-path chunks must not survive a failed ingestion")
}

// blockedCommitStore refuses the atomic ingestion commit while every other
// store operation keeps working.
type blockedCommitStore struct {
	*driver.MemoryStore
}

func (s *blockedCommitStore) CommitIngestion(ctx context.Context, episodes []*types.Episode, entities []*types.Entity, edges []*types.Edge) error {
	return &types.ConnectionError{Service: "memory", Op: "commit_ingestion", Err: context.DeadlineExceeded}
}

func TestCommitFailureLeavesBothStoresUntouched(t *testing.T) {
	ctx := context.Background()
	chat := &queuedChat{responses: []string{
		metricResponse("Q3 revenue $10M", "revenue|2025Q3|reported"),
	}}
	store := &blockedCommitStore{MemoryStore: driver.NewMemoryStore()}
	index := fastpath.NewMemoryIndex()
	client, err := dealgraph.New(ctx, dealgraph.Options{
		Store:     store,
		Index:     index,
		Embedder:  embedder.NewStaticEmbedder(8),
		Extractor: extraction.NewExtractor(chat),
	})
	require.NoError(t, err)
	scope := testScope(t)

	_, err = client.IngestDocumentChunks(ctx, scope, docInput("cim", time.Time{},
		"Q3 revenue was $10M."))
	require.Error(t, err)
	assert.True(t, types.IsConnectionError(err))

	episodes, err := store.RecentEpisodes(ctx, scope.GroupID(), 10)
	require.NoError(t, err)
	assert.Empty(t, episodes, "no episode survives a failed commit")

	entities, err := store.QueryEntities(ctx, scope.GroupID(), driver.EntityFilter{})
	require.NoError(t, err)
	assert.Empty(t, entities)

	query, err := embedder.NewStaticEmbedder(8).EmbedQuery(ctx, "Q3 revenue was $10M.")
	require.NoError(t, err)
	scored, err := index.Search(ctx, scope.GroupID(), query, fastpath.SearchOptions{Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, scored, "fast-path chunks are rolled back when the graph commit fails")
}

func TestOversizedDocumentSplitsIntoEpisodeParts(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, &queuedChat{}, dealgraph.Options{EpisodeCharLimit: 10})
	scope := testScope(t)

	result, err := p.client.IngestDocumentChunks(ctx, scope, docInput("cim", time.Time{},
		"aaaaaaaa", "bbbbbbbb"))
	require.NoError(t, err)
	assert.Equal(t, 2, result.EpisodeCount)

	episodes, err := p.client.Episodes(ctx, scope, 10)
	require.NoError(t, err)
	require.Len(t, episodes, 2)
	names := []string{episodes[0].Name, episodes[1].Name}
	assert.Contains(t, names, "cim.pdf (part 1/2)")
	assert.Contains(t, names, "cim.pdf (part 2/2)")
}

func TestFactChannelsCarryConfidenceTiers(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, &queuedChat{}, dealgraph.Options{})
	scope := testScope(t)

	_, err := p.client.IngestQAResponse(ctx, scope, dealgraph.FactInput{
		MessageID: "qa-1",
		Content:   "Churn is 4% annualized per management.",
		Source:    "Q&A tracker",
	})
	require.NoError(t, err)

	_, err = p.client.IngestChatFact(ctx, scope, dealgraph.FactInput{
		MessageID: "chat-1",
		Content:   "Correction: churn is 5%, the tracker is stale.",
		Source:    "deal room chat",
	})
	require.NoError(t, err)

	episodes, err := p.client.Episodes(ctx, scope, 10)
	require.NoError(t, err)
	require.Len(t, episodes, 2)

	byName := map[string]*types.Episode{}
	for _, ep := range episodes {
		byName[ep.Name] = ep
	}
	require.Contains(t, byName, "qa-1")
	require.Contains(t, byName, "chat-1")
	assert.Equal(t, types.ChannelQAResponse, byName["qa-1"].Channel)
	assert.InDelta(t, 0.85, byName["qa-1"].Confidence, 1e-9)
	assert.Equal(t, types.ChannelAnalystChat, byName["chat-1"].Channel)
	assert.InDelta(t, 0.95, byName["chat-1"].Confidence, 1e-9)
}

func TestAnalystCorrectionSupersedesDocumentFact(t *testing.T) {
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
		Content:    "Q3 revenue is actually $12M after the restatement.",
		OccurredAt: t2,
	})
	require.NoError(t, err)

	// After the correction, only the restated figure is valid.
	current, err := p.client.FactValidAt(ctx, scope, key, t2.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "Q3 revenue $12M", current.Name)

	// Between the two ingestions, the document figure still answers.
	historical, err := p.client.FactValidAt(ctx, scope, key, t1.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "Q3 revenue $10M", historical.Name)
}

func TestDocumentNeverOverridesAnalystCorrection(t *testing.T) {
	ctx := context.Background()
	const key = "revenue|2025Q3|reported"
	t1 := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)
	t2 := t1.AddDate(0, 0, 5)

	chat := &queuedChat{responses: []string{
		metricResponse("Q3 revenue $12M", key),
		metricResponse("Q3 revenue $10M", key),
	}}
	p := newPipeline(t, chat, dealgraph.Options{})
	scope := testScope(t)

	_, err := p.client.IngestChatFact(ctx, scope, dealgraph.FactInput{
		MessageID:  "chat-1",
		Content:    "Q3 revenue is $12M.",
		OccurredAt: t1,
	})
	require.NoError(t, err)

	// A later document carrying the stale figure arrives afterwards.
	_, err = p.client.IngestDocumentChunks(ctx, scope, docInput("cim", t2,
		"Q3 revenue was $10M."))
	require.NoError(t, err)

	current, err := p.client.FactValidAt(ctx, scope, key, t2.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "Q3 revenue $12M", current.Name,
		"a document must not supersede a higher-precedence analyst statement")
}

func TestIngestValidation(t *testing.T) {
	ctx := context.Background()
	p := newPipeline(t, nil, dealgraph.Options{})
	scope := testScope(t)

	_, err := p.client.IngestDocumentChunks(ctx, scope, dealgraph.DocumentInput{DocumentID: "cim"})
	assert.True(t, types.IsValidationError(err), "empty chunk list: %v", err)

	_, err = p.client.IngestDocumentChunks(ctx, types.TenantScope{OrganizationID: "acme-capital"},
		docInput("cim", time.Time{}, "content"))
	assert.True(t, types.IsValidationError(err), "missing deal id: %v", err)

	_, err = p.client.IngestQAResponse(ctx, scope, dealgraph.FactInput{MessageID: "qa-1"})
	assert.ErrorIs(t, err, types.ErrEmptyContent)
}

func TestTenantScopesNeverBleed(t *testing.T) {
	ctx := context.Background()
	response := metricResponse("Q3 revenue $10M", "revenue|2025Q3|reported")
	chat := &queuedChat{responses: []string{response}}
	p := newPipeline(t, chat, dealgraph.Options{})

	scopeA := testScope(t)
	scopeB, err := types.NewTenantScope("acme-capital", "project-osprey")
	require.NoError(t, err)

	_, err = p.client.IngestDocumentChunks(ctx, scopeA, docInput("cim", time.Time{},
		"Q3 revenue was $10M."))
	require.NoError(t, err)

	entities, err := p.store.QueryEntities(ctx, scopeB.GroupID(), driver.EntityFilter{})
	require.NoError(t, err)
	assert.Empty(t, entities)

	_, err = p.client.FactValidAt(ctx, scopeB, "revenue|2025Q3|reported", time.Now())
	assert.ErrorIs(t, err, types.ErrNotFound)
}
