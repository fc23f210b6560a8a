package dealgraph

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sellside/dealgraph/pkg/driver"
	"github.com/sellside/dealgraph/pkg/fastpath"
	"github.com/sellside/dealgraph/pkg/search"
	"github.com/sellside/dealgraph/pkg/types"
)

// RetrieveOptions tunes one retrieval call. Zero values take the client's
// configured defaults.
type RetrieveOptions struct {
	MaxResults int
	// Budget overrides the total latency budget.
	Budget time.Duration
	// AsOf queries the graph as of a past instant. Zero means now.
	AsOf time.Time
	// MinScore is the similarity floor for both paths.
	MinScore float64
}

// Retrieve answers a query against one deal's knowledge. The graph path
// runs first under a sub-budget; the fast path over raw chunks is
// consulted only when the graph path returns nothing, times out, or the
// store is unreachable. Candidates are merged by content fingerprint,
// filtered for supersession, annotated for contradictions, reranked and
// cited.
//
// Exceeding the latency budget is a recorded condition, not a failure: the
// coordinator returns whatever it has, flagged.
func (c *Client) Retrieve(ctx context.Context, scope types.TenantScope, query string, opts RetrieveOptions) (*types.RetrievalResult, error) {
	start := time.Now()
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(query) == "" {
		return nil, types.ErrEmptyQuery
	}
	groupID := scope.GroupID()

	budget := opts.Budget
	if budget <= 0 {
		budget = c.budget
	}
	maxResults := opts.MaxResults
	if maxResults <= 0 {
		maxResults = 20
	}
	asOf := opts.AsOf
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	result := &types.RetrievalResult{}

	// Embed once; both paths consume the same vector.
	embedStart := time.Now()
	vector, err := c.embedder.EmbedQuery(ctx, query)
	result.Latency.EmbedMS = time.Since(embedStart).Milliseconds()
	if err != nil {
		return nil, err
	}

	// Graph path under its sub-budget.
	graphCtx, graphCancel := context.WithTimeout(ctx, time.Duration(float64(budget)*c.graphFraction))
	graphStart := time.Now()
	graphItems, graphEntities, graphErr := c.graphSearch(graphCtx, groupID, vector, asOf, maxResults, opts.MinScore)
	graphCancel()
	result.Latency.GraphSearchMS = time.Since(graphStart).Milliseconds()

	if graphErr != nil && !fallbackWorthy(graphErr) {
		return nil, graphErr
	}

	// Fast path only when the graph produced nothing usable.
	var fastItems []types.RetrievedItem
	chunksByID := make(map[string]*types.ChunkNode)
	if graphErr != nil || len(graphItems) == 0 {
		if graphErr != nil {
			c.logger.Warn("graph path failed, falling back to fast path",
				"scope", scope.String(), "error", graphErr)
			result.Degraded = true
		}
		vectorStart := time.Now()
		scored, fastErr := c.index.Search(ctx, groupID, vector, fastpath.SearchOptions{
			Limit:    maxResults * 2,
			MinScore: opts.MinScore,
		})
		result.Latency.VectorMS = time.Since(vectorStart).Milliseconds()
		if fastErr != nil {
			if graphErr != nil {
				// Both paths down: degraded empty result, flagged.
				c.logger.Error("both retrieval paths failed",
					"scope", scope.String(), "graph_error", graphErr, "fastpath_error", fastErr)
				result.Degraded = true
				result.Latency.TotalMS = time.Since(start).Milliseconds()
				result.PathUsed = types.PathFastPath
				result.Items = []types.RetrievedItem{}
				return result, nil
			}
			return nil, fastErr
		}
		for _, sc := range scored {
			chunksByID[sc.Chunk.ID] = sc.Chunk
			fastItems = append(fastItems, types.RetrievedItem{
				ID:      sc.Chunk.ID,
				Content: sc.Chunk.Content,
				Score:   sc.Score,
				Path:    types.PathFastPath,
				Channel: types.ChannelDocument,
			})
		}
	}

	switch {
	case len(graphItems) > 0 && len(fastItems) > 0:
		result.PathUsed = types.PathHybrid
	case len(fastItems) > 0 || graphErr != nil || len(graphItems) == 0:
		result.PathUsed = types.PathFastPath
	default:
		result.PathUsed = types.PathGraph
	}

	merged := search.Merge(graphItems, fastItems)

	// Contradiction annotation over the graph-side findings.
	if len(graphEntities) > 0 {
		ids := make([]string, 0, len(graphEntities))
		for id := range graphEntities {
			ids = append(ids, id)
		}
		contradictions, err := c.store.EdgesByKind(ctx, groupID, types.EdgeContradicts, ids)
		if err != nil {
			c.logger.Warn("contradiction lookup failed", "scope", scope.String(), "error", err)
		} else {
			merged = search.AnnotateContradictions(merged, contradictions, graphEntities)
		}
	}

	// Rerank; a reranker failure keeps the merged order.
	ranked, err := c.reranker.Rank(ctx, query, merged)
	if err != nil {
		c.logger.Warn("reranker unavailable, keeping merged order",
			"scope", scope.String(), "error", err)
		result.Degraded = true
		ranked = merged
	}
	if len(ranked) > maxResults {
		ranked = ranked[:maxResults]
	}

	// Citations from provenance.
	provenance, err := c.provenanceEdges(ctx, groupID, ranked, graphEntities)
	if err != nil {
		c.logger.Warn("provenance lookup failed", "scope", scope.String(), "error", err)
	}
	episodes := c.episodesByID(ctx, groupID, provenance)
	ranked, citations := search.AttachCitations(ranked, provenance, episodes, chunksByID)

	result.Items = ranked
	result.Citations = citations
	result.Latency.TotalMS = time.Since(start).Milliseconds()
	if result.Latency.TotalMS > budget.Milliseconds() {
		result.BudgetExceeded = true
		c.logger.Warn("latency budget exceeded",
			"scope", scope.String(), "budget_ms", budget.Milliseconds(),
			"total_ms", result.Latency.TotalMS)
	}
	c.latency.Record(groupID, result)
	return result, nil
}

// graphSearch runs the graph store's native vector lookup and applies the
// supersession filter before anything else sees the candidates.
func (c *Client) graphSearch(ctx context.Context, groupID string, vector []float32, asOf time.Time, maxResults int, minScore float64) ([]types.RetrievedItem, map[string]*types.Entity, error) {
	scored, err := c.store.SearchByEmbedding(ctx, groupID, vector, driver.VectorOptions{
		Limit:    maxResults * 2,
		MinScore: minScore,
	})
	if err != nil {
		return nil, nil, err
	}

	entities := make([]*types.Entity, 0, len(scored))
	scoreByID := make(map[string]float64, len(scored))
	for _, sc := range scored {
		entities = append(entities, sc.Entity)
		scoreByID[sc.Entity.ID] = sc.Score
	}
	valid := search.FilterSuperseded(entities, asOf)

	items := make([]types.RetrievedItem, 0, len(valid))
	byID := make(map[string]*types.Entity, len(valid))
	for _, ent := range valid {
		byID[ent.ID] = ent
		content := ent.Name
		if ent.Summary != "" {
			content += ": " + ent.Summary
		}
		items = append(items, types.RetrievedItem{
			ID:         ent.ID,
			Content:    content,
			Score:      scoreByID[ent.ID],
			Path:       types.PathGraph,
			Kind:       ent.Kind,
			Channel:    ent.Channel,
			Confidence: ent.Confidence,
			OccurredAt: ent.ValidAt,
		})
	}
	return items, byID, nil
}

// provenanceEdges fetches EXTRACTED_FROM edges for the graph-side items.
func (c *Client) provenanceEdges(ctx context.Context, groupID string, items []types.RetrievedItem, graphEntities map[string]*types.Entity) ([]*types.Edge, error) {
	var ids []string
	for _, item := range items {
		if _, ok := graphEntities[item.ID]; ok {
			ids = append(ids, item.ID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return c.store.EdgesByKind(ctx, groupID, types.EdgeExtractedFrom, ids)
}

// episodesByID resolves the episodes referenced by provenance edges.
func (c *Client) episodesByID(ctx context.Context, groupID string, provenance []*types.Edge) map[string]*types.Episode {
	if len(provenance) == 0 {
		return nil
	}
	recent, err := c.store.RecentEpisodes(ctx, groupID, 200)
	if err != nil {
		c.logger.Warn("episode lookup failed", "group_id", groupID, "error", err)
		return nil
	}
	episodes := make(map[string]*types.Episode, len(recent))
	for _, ep := range recent {
		episodes[ep.ID] = ep
	}
	return episodes
}

// fallbackWorthy reports whether a graph-path error should trigger the
// fast path instead of failing the query.
func fallbackWorthy(err error) bool {
	return types.IsConnectionError(err) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}
