// Package driver defines the TemporalFactStore contract over the graph
// collaborator and provides a Neo4j implementation plus an in-memory store
// for tests and development.
//
// Every operation requires a group ID. Supersede is the only mutation path
// for fact replacement: it sets the old fact's invalid_at atomically with
// the supersession edge, so no reader ever observes two facts for the same
// semantic key simultaneously valid.
package driver

import (
	"context"
	"time"

	"github.com/sellside/dealgraph/pkg/types"
)

// EntityFilter constrains QueryEntities. Zero values mean no constraint.
type EntityFilter struct {
	Kinds        []types.Kind
	NameContains string
	SemanticKey  string
	ValidAt      *time.Time
	Limit        int
}

// VectorOptions constrains embedded search inside the graph store.
type VectorOptions struct {
	Limit    int
	MinScore float64
	Kinds    []types.Kind
}

// ScoredEntity pairs an entity with its similarity score. Results are
// ordered by score descending and already cut at the score threshold.
type ScoredEntity struct {
	Entity *types.Entity
	Score  float64
}

// TemporalFactStore is the narrow contract the pipeline consumes from the
// graph store. All reads and writes are tenant-scoped by group ID.
type TemporalFactStore interface {
	// AddEpisode commits one episode. The write is all-or-nothing: on a
	// connection failure nothing is persisted.
	AddEpisode(ctx context.Context, episode *types.Episode) (string, error)

	// UpsertEntities writes validated extraction output. Entities must
	// pass types.Entity.Validate before the call.
	UpsertEntities(ctx context.Context, entities []*types.Entity) error

	// UpsertEdges writes validated edges. Edges must pass
	// types.Edge.Validate before the call.
	UpsertEdges(ctx context.Context, edges []*types.Edge) error

	// CommitIngestion writes episodes, entities and edges in a single
	// atomic transaction. On failure nothing is persisted: no episode is
	// ever visible without the entities and edges extracted from it.
	CommitIngestion(ctx context.Context, episodes []*types.Episode, entities []*types.Entity, edges []*types.Edge) error

	// QueryEntities lists entities in a group matching the filter.
	QueryEntities(ctx context.Context, groupID string, filter EntityFilter) ([]*types.Entity, error)

	// QueryFactValidAt returns the single fact for a semantic key whose
	// validity window covers the timestamp, or types.ErrNotFound.
	QueryFactValidAt(ctx context.Context, groupID, semanticKey string, at time.Time) (*types.Entity, error)

	// Supersede invalidates oldFactID at occurredAt and records the
	// SUPERSEDES edge from the new fact, atomically. The old fact is never
	// deleted; history is append-only.
	Supersede(ctx context.Context, groupID, oldFactID, newFactID string, occurredAt time.Time) error

	// SearchByEmbedding runs the graph store's native vector index lookup,
	// returning (entity, score) pairs above the threshold, descending.
	SearchByEmbedding(ctx context.Context, groupID string, vector []float32, opts VectorOptions) ([]ScoredEntity, error)

	// MergeEntities records duplicateID as a duplicate of canonicalID via
	// an IS_DUPLICATE_OF edge. Both entities survive; the operation is
	// reversible with SplitEntities.
	MergeEntities(ctx context.Context, groupID, duplicateID, canonicalID string) error

	// SplitEntities undoes a merge by removing the IS_DUPLICATE_OF edge.
	SplitEntities(ctx context.Context, groupID, duplicateID, canonicalID string) error

	// CanonicalEntity resolves an entity to its canonical node by
	// following IS_DUPLICATE_OF edges.
	CanonicalEntity(ctx context.Context, groupID, entityID string) (*types.Entity, error)

	// EdgesByKind returns edges of one kind touching any of the given
	// source entities.
	EdgesByKind(ctx context.Context, groupID string, kind types.EdgeKind, sourceIDs []string) ([]*types.Edge, error)

	// RecentEpisodes lists the newest episodes in a group, newest first.
	RecentEpisodes(ctx context.Context, groupID string, limit int) ([]*types.Episode, error)

	// EnsureSchema creates indexes and constraints if they do not exist.
	// Safe to run on every process start.
	EnsureSchema(ctx context.Context) error

	// Ping verifies connectivity for readiness probes.
	Ping(ctx context.Context) error

	Close(ctx context.Context) error
}
