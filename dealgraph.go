package dealgraph

import (
	"context"
	"log/slog"
	"time"

	"github.com/sellside/dealgraph/pkg/driver"
	"github.com/sellside/dealgraph/pkg/embedder"
	"github.com/sellside/dealgraph/pkg/extraction"
	"github.com/sellside/dealgraph/pkg/fastpath"
	"github.com/sellside/dealgraph/pkg/hints"
	"github.com/sellside/dealgraph/pkg/rerank"
	"github.com/sellside/dealgraph/pkg/resolution"
	"github.com/sellside/dealgraph/pkg/telemetry"
	"github.com/sellside/dealgraph/pkg/types"
)

// Options wires the pipeline's collaborators. Store, Index and Embedder are
// required; the rest default to reasonable local implementations.
type Options struct {
	Store    driver.TemporalFactStore
	Index    fastpath.Index
	Embedder embedder.Client

	// Extractor turns episodes into entities and edges. Nil disables graph
	// extraction: episodes and chunks are still committed, which matches
	// a fast-path-only deployment.
	Extractor *extraction.Extractor

	// Reranker reorders merged candidates. Nil falls back to the canonical
	// sort.
	Reranker rerank.Reranker

	// Resolution holds the merge/keep/ambiguous thresholds.
	Resolution resolution.Config

	// MaxConcurrency bounds parallel extraction per ingestion call.
	MaxConcurrency int

	// EpisodeCharLimit splits oversized documents into multiple episodes.
	EpisodeCharLimit int

	// RetrievalBudget is the default total retrieval budget.
	RetrievalBudget time.Duration

	// GraphBudgetFraction is the share of the budget the graph path may
	// spend before fast-path fallback. Zero defaults to 0.6.
	GraphBudgetFraction float64

	// Latency receives per-retrieval phase timings. Nil disables recording.
	Latency *telemetry.LatencyRecorder

	Logger *slog.Logger
}

// Client is the pipeline facade: ingestion on one side, retrieval on the
// other, entity resolution operations in between. Safe for concurrent use;
// all state lives in the backing stores.
type Client struct {
	store    driver.TemporalFactStore
	index    fastpath.Index
	embedder embedder.Client

	extractor *extraction.Extractor
	reranker  rerank.Reranker
	selector  *hints.Selector
	policy    *resolution.Policy
	latency   *telemetry.LatencyRecorder
	logger    *slog.Logger

	maxConcurrency   int
	episodeCharLimit int
	budget           time.Duration
	graphFraction    float64
}

// New validates the options and builds a client.
func New(ctx context.Context, opts Options) (*Client, error) {
	if opts.Store == nil {
		return nil, &types.ValidationError{Field: "store", Reason: "required"}
	}
	if opts.Index == nil {
		return nil, &types.ValidationError{Field: "index", Reason: "required"}
	}
	if opts.Embedder == nil {
		return nil, &types.ValidationError{Field: "embedder", Reason: "required"}
	}

	selector, err := hints.NewSelector()
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reranker := opts.Reranker
	if reranker == nil {
		reranker = rerank.NoopReranker{}
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 4
	}
	if opts.EpisodeCharLimit <= 0 {
		opts.EpisodeCharLimit = 8000
	}
	if opts.RetrievalBudget <= 0 {
		opts.RetrievalBudget = 2 * time.Second
	}
	if opts.GraphBudgetFraction <= 0 || opts.GraphBudgetFraction >= 1 {
		opts.GraphBudgetFraction = 0.6
	}

	return &Client{
		store:            opts.Store,
		index:            opts.Index,
		embedder:         opts.Embedder,
		extractor:        opts.Extractor,
		reranker:         reranker,
		selector:         selector,
		policy:           resolution.NewPolicy(opts.Resolution),
		latency:          opts.Latency,
		logger:           logger,
		maxConcurrency:   opts.MaxConcurrency,
		episodeCharLimit: opts.EpisodeCharLimit,
		budget:           opts.RetrievalBudget,
		graphFraction:    opts.GraphBudgetFraction,
	}, nil
}

// EnsureSchema creates indexes and constraints in both stores. Idempotent;
// run on every process start.
func (c *Client) EnsureSchema(ctx context.Context) error {
	if err := c.store.EnsureSchema(ctx); err != nil {
		return err
	}
	return c.index.EnsureSchema(ctx)
}

// Ping verifies both stores for readiness probes.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return err
	}
	return c.index.Ping(ctx)
}

// Close releases all collaborators.
func (c *Client) Close(ctx context.Context) error {
	c.latency.Flush()
	c.index.Close()
	if err := c.embedder.Close(); err != nil {
		c.logger.Warn("embedder close failed", "error", err)
	}
	return c.store.Close(ctx)
}

// EvaluateResolution applies the resolution policy to two entities in the
// same scope. Ambiguous outcomes are terminal: they surface for manual
// merge or split and are never auto-applied.
func (c *Client) EvaluateResolution(ctx context.Context, scope types.TenantScope, firstID, secondID string) (resolution.Outcome, error) {
	if err := scope.Validate(); err != nil {
		return resolution.Outcome{}, err
	}
	groupID := scope.GroupID()

	first, err := c.store.CanonicalEntity(ctx, groupID, firstID)
	if err != nil {
		return resolution.Outcome{}, err
	}
	second, err := c.store.CanonicalEntity(ctx, groupID, secondID)
	if err != nil {
		return resolution.Outcome{}, err
	}
	return c.policy.Evaluate(first, second), nil
}

// MergeEntities marks duplicateID as a duplicate of canonicalID. The
// operation is an edge write, reversible with SplitEntities.
func (c *Client) MergeEntities(ctx context.Context, scope types.TenantScope, duplicateID, canonicalID string) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	c.logger.Info("merging entities",
		"scope", scope.String(), "duplicate_id", duplicateID, "canonical_id", canonicalID)
	return c.store.MergeEntities(ctx, scope.GroupID(), duplicateID, canonicalID)
}

// SplitEntities undoes a merge.
func (c *Client) SplitEntities(ctx context.Context, scope types.TenantScope, duplicateID, canonicalID string) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	c.logger.Info("splitting entities",
		"scope", scope.String(), "duplicate_id", duplicateID, "canonical_id", canonicalID)
	return c.store.SplitEntities(ctx, scope.GroupID(), duplicateID, canonicalID)
}

// AmbiguousPairs lists same-kind entity pairs whose resolution outcome is
// ambiguous, for the manual-resolution queue. Quadratic per kind; callers
// pass a limit to bound work on large deals.
func (c *Client) AmbiguousPairs(ctx context.Context, scope types.TenantScope, kind types.Kind, limit int) ([][2]*types.Entity, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}

	entities, err := c.store.QueryEntities(ctx, scope.GroupID(), driver.EntityFilter{Kinds: []types.Kind{kind}})
	if err != nil {
		return nil, err
	}

	var pairs [][2]*types.Entity
	for i := 0; i < len(entities) && len(pairs) < limit; i++ {
		for j := i + 1; j < len(entities) && len(pairs) < limit; j++ {
			outcome := c.policy.Evaluate(entities[i], entities[j])
			if outcome.Decision == resolution.Ambiguous {
				pairs = append(pairs, [2]*types.Entity{entities[i], entities[j]})
			}
		}
	}
	return pairs, nil
}

// Episodes lists the newest episodes in a scope.
func (c *Client) Episodes(ctx context.Context, scope types.TenantScope, limit int) ([]*types.Episode, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return c.store.RecentEpisodes(ctx, scope.GroupID(), limit)
}

// FactValidAt answers the point-in-time question for one semantic key.
func (c *Client) FactValidAt(ctx context.Context, scope types.TenantScope, semanticKey string, at time.Time) (*types.Entity, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	return c.store.QueryFactValidAt(ctx, scope.GroupID(), semanticKey, at)
}
