package driver

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sellside/dealgraph/pkg/types"
)

// MemoryStore is an in-memory TemporalFactStore used by tests and local
// development. It honors the same contract as the Neo4j store: group
// isolation on every operation, atomic supersession, append-only facts.
type MemoryStore struct {
	mu       sync.RWMutex
	episodes map[string]*types.Episode // keyed by group|id
	entities map[string]*types.Entity
	edges    map[string]*types.Edge

	// failing simulates an unreachable store when set.
	failing bool
}

// NewMemoryStore builds an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		episodes: make(map[string]*types.Episode),
		entities: make(map[string]*types.Entity),
		edges:    make(map[string]*types.Edge),
	}
}

// SetFailing toggles simulated connectivity failure.
func (m *MemoryStore) SetFailing(failing bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing = failing
}

func (m *MemoryStore) checkUp(op string) error {
	if m.failing {
		return &types.ConnectionError{Service: "memory", Op: op, Err: context.DeadlineExceeded}
	}
	return nil
}

func storeKey(groupID, id string) string { return groupID + "|" + id }

// AddEpisode commits one episode.
func (m *MemoryStore) AddEpisode(ctx context.Context, episode *types.Episode) (string, error) {
	if err := episode.Validate(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkUp("add_episode"); err != nil {
		return "", err
	}

	copied := *episode
	m.episodes[storeKey(episode.GroupID, episode.ID)] = &copied
	return episode.ID, nil
}

// UpsertEntities writes a batch of entities. Validation happens before any
// write so a bad row leaves the store untouched.
func (m *MemoryStore) UpsertEntities(ctx context.Context, entities []*types.Entity) error {
	for _, ent := range entities {
		if err := ent.Validate(); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkUp("upsert_entities"); err != nil {
		return err
	}

	for _, ent := range entities {
		copied := *ent
		m.entities[storeKey(ent.GroupID, ent.ID)] = &copied
	}
	return nil
}

// UpsertEdges writes a batch of edges after endpoint validation.
func (m *MemoryStore) UpsertEdges(ctx context.Context, edges []*types.Edge) error {
	for _, edge := range edges {
		if err := edge.Validate(); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkUp("upsert_edges"); err != nil {
		return err
	}

	for _, edge := range edges {
		copied := *edge
		m.edges[storeKey(edge.GroupID, edge.ID)] = &copied
	}
	return nil
}

// CommitIngestion writes episodes, entities and edges under one lock
// acquisition. Everything is validated before the first write, so a failure
// leaves the store untouched.
func (m *MemoryStore) CommitIngestion(ctx context.Context, episodes []*types.Episode, entities []*types.Entity, edges []*types.Edge) error {
	for _, ep := range episodes {
		if err := ep.Validate(); err != nil {
			return err
		}
	}
	for _, ent := range entities {
		if err := ent.Validate(); err != nil {
			return err
		}
	}
	for _, edge := range edges {
		if err := edge.Validate(); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkUp("commit_ingestion"); err != nil {
		return err
	}

	for _, ep := range episodes {
		copied := *ep
		m.episodes[storeKey(ep.GroupID, ep.ID)] = &copied
	}
	for _, ent := range entities {
		copied := *ent
		m.entities[storeKey(ent.GroupID, ent.ID)] = &copied
	}
	for _, edge := range edges {
		copied := *edge
		m.edges[storeKey(edge.GroupID, edge.ID)] = &copied
	}
	return nil
}

// QueryEntities lists entities in a group matching the filter.
func (m *MemoryStore) QueryEntities(ctx context.Context, groupID string, filter EntityFilter) ([]*types.Entity, error) {
	if groupID == "" {
		return nil, types.ErrEmptyGroupID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkUp("query_entities"); err != nil {
		return nil, err
	}

	var out []*types.Entity
	for _, ent := range m.entities {
		if ent.GroupID != groupID {
			continue
		}
		if len(filter.Kinds) > 0 && !containsKind(filter.Kinds, ent.Kind) {
			continue
		}
		if filter.NameContains != "" &&
			!strings.Contains(strings.ToLower(ent.Name), strings.ToLower(filter.NameContains)) {
			continue
		}
		if filter.SemanticKey != "" && ent.SemanticKey != filter.SemanticKey {
			continue
		}
		if filter.ValidAt != nil && !ent.ValidDuring(*filter.ValidAt) {
			continue
		}
		copied := *ent
		out = append(out, &copied)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// QueryFactValidAt returns the fact valid for a semantic key at a point in
// time, or types.ErrNotFound.
func (m *MemoryStore) QueryFactValidAt(ctx context.Context, groupID, semanticKey string, at time.Time) (*types.Entity, error) {
	if groupID == "" {
		return nil, types.ErrEmptyGroupID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkUp("query_fact_valid_at"); err != nil {
		return nil, err
	}

	for _, ent := range m.entities {
		if ent.GroupID != groupID || ent.SemanticKey != semanticKey {
			continue
		}
		if ent.ValidAt.IsZero() || !ent.ValidDuring(at) {
			continue
		}
		copied := *ent
		return &copied, nil
	}
	return nil, types.ErrNotFound
}

// Supersede invalidates the old fact and records the edge under one lock
// acquisition, so concurrent readers never see an intermediate state.
func (m *MemoryStore) Supersede(ctx context.Context, groupID, oldFactID, newFactID string, occurredAt time.Time) error {
	if groupID == "" {
		return types.ErrEmptyGroupID
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkUp("supersede"); err != nil {
		return err
	}

	oldFact, okOld := m.entities[storeKey(groupID, oldFactID)]
	newFact, okNew := m.entities[storeKey(groupID, newFactID)]
	if !okOld || !okNew {
		return types.ErrNotFound
	}

	invalidAt := occurredAt
	oldFact.InvalidAt = &invalidAt
	if newFact.ValidAt.IsZero() {
		newFact.ValidAt = occurredAt
	}

	edge := &types.Edge{
		ID:         uuid.NewString(),
		Kind:       types.EdgeSupersedes,
		SourceID:   newFactID,
		TargetID:   oldFactID,
		SourceKind: newFact.Kind,
		TargetKind: oldFact.Kind,
		GroupID:    groupID,
		CreatedAt:  occurredAt,
	}
	m.edges[storeKey(groupID, edge.ID)] = edge
	return nil
}

// SearchByEmbedding scores entities by cosine similarity.
func (m *MemoryStore) SearchByEmbedding(ctx context.Context, groupID string, vector []float32, opts VectorOptions) ([]ScoredEntity, error) {
	if groupID == "" {
		return nil, types.ErrEmptyGroupID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkUp("search_by_embedding"); err != nil {
		return nil, err
	}

	var scored []ScoredEntity
	for _, ent := range m.entities {
		if ent.GroupID != groupID || len(ent.Embedding) == 0 {
			continue
		}
		if len(opts.Kinds) > 0 && !containsKind(opts.Kinds, ent.Kind) {
			continue
		}
		score := cosineSimilarity(vector, ent.Embedding)
		if score < opts.MinScore {
			continue
		}
		copied := *ent
		scored = append(scored, ScoredEntity{Entity: &copied, Score: score})
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if opts.Limit > 0 && len(scored) > opts.Limit {
		scored = scored[:opts.Limit]
	}
	return scored, nil
}

// MergeEntities records the IS_DUPLICATE_OF relation.
func (m *MemoryStore) MergeEntities(ctx context.Context, groupID, duplicateID, canonicalID string) error {
	if groupID == "" {
		return types.ErrEmptyGroupID
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkUp("merge_entities"); err != nil {
		return err
	}

	dup, okDup := m.entities[storeKey(groupID, duplicateID)]
	_, okCanon := m.entities[storeKey(groupID, canonicalID)]
	if !okDup || !okCanon {
		return types.ErrNotFound
	}

	edge := &types.Edge{
		ID:         uuid.NewString(),
		Kind:       types.EdgeIsDuplicateOf,
		SourceID:   duplicateID,
		TargetID:   canonicalID,
		SourceKind: dup.Kind,
		TargetKind: dup.Kind,
		GroupID:    groupID,
		CreatedAt:  time.Now().UTC(),
	}
	m.edges[storeKey(groupID, edge.ID)] = edge
	return nil
}

// SplitEntities removes the IS_DUPLICATE_OF relation.
func (m *MemoryStore) SplitEntities(ctx context.Context, groupID, duplicateID, canonicalID string) error {
	if groupID == "" {
		return types.ErrEmptyGroupID
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkUp("split_entities"); err != nil {
		return err
	}

	for key, edge := range m.edges {
		if edge.GroupID == groupID && edge.Kind == types.EdgeIsDuplicateOf &&
			edge.SourceID == duplicateID && edge.TargetID == canonicalID {
			delete(m.edges, key)
			return nil
		}
	}
	return types.ErrNotFound
}

// CanonicalEntity follows duplicate edges to the canonical node.
func (m *MemoryStore) CanonicalEntity(ctx context.Context, groupID, entityID string) (*types.Entity, error) {
	if groupID == "" {
		return nil, types.ErrEmptyGroupID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkUp("canonical_entity"); err != nil {
		return nil, err
	}

	current := entityID
	// Bounded walk guards against accidental cycles.
	for hops := 0; hops < 16; hops++ {
		next := ""
		for _, edge := range m.edges {
			if edge.GroupID == groupID && edge.Kind == types.EdgeIsDuplicateOf && edge.SourceID == current {
				next = edge.TargetID
				break
			}
		}
		if next == "" {
			break
		}
		current = next
	}

	ent, ok := m.entities[storeKey(groupID, current)]
	if !ok {
		return nil, types.ErrNotFound
	}
	copied := *ent
	return &copied, nil
}

// EdgesByKind returns edges of one kind whose source is in sourceIDs.
func (m *MemoryStore) EdgesByKind(ctx context.Context, groupID string, kind types.EdgeKind, sourceIDs []string) ([]*types.Edge, error) {
	if groupID == "" {
		return nil, types.ErrEmptyGroupID
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkUp("edges_by_kind"); err != nil {
		return nil, err
	}

	wanted := make(map[string]struct{}, len(sourceIDs))
	for _, id := range sourceIDs {
		wanted[id] = struct{}{}
	}

	var out []*types.Edge
	for _, edge := range m.edges {
		if edge.GroupID != groupID || edge.Kind != kind {
			continue
		}
		if _, ok := wanted[edge.SourceID]; !ok {
			continue
		}
		copied := *edge
		out = append(out, &copied)
	}
	return out, nil
}

// RecentEpisodes lists the newest episodes in a group.
func (m *MemoryStore) RecentEpisodes(ctx context.Context, groupID string, limit int) ([]*types.Episode, error) {
	if groupID == "" {
		return nil, types.ErrEmptyGroupID
	}
	if limit <= 0 {
		limit = 20
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkUp("recent_episodes"); err != nil {
		return nil, err
	}

	var out []*types.Episode
	for _, ep := range m.episodes {
		if ep.GroupID != groupID {
			continue
		}
		copied := *ep
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OccurredAt.After(out[j].OccurredAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// EnsureSchema is a no-op for the in-memory store.
func (m *MemoryStore) EnsureSchema(ctx context.Context) error { return nil }

// Ping reports simulated connectivity.
func (m *MemoryStore) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.checkUp("ping")
}

// Close is a no-op.
func (m *MemoryStore) Close(ctx context.Context) error { return nil }

func containsKind(kinds []types.Kind, k types.Kind) bool {
	for _, kind := range kinds {
		if kind == k {
			return true
		}
	}
	return false
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
