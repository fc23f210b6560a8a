package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"

	"github.com/sellside/dealgraph/pkg/types"
)

// Neo4jStore implements TemporalFactStore against a Neo4j database.
// Entities are nodes labeled Entity with a kind property; episodes are
// nodes labeled Episode. Vector lookups use the native entity_embedding
// index, always filtered by group_id.
type Neo4jStore struct {
	client   neo4j.DriverWithContext
	database string
}

// NewNeo4jStore connects to Neo4j. The caller owns the lifecycle: construct
// once at process start, Close on shutdown.
func NewNeo4jStore(uri, username, password, database string) (*Neo4jStore, error) {
	client, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(username, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if database == "" {
		database = "neo4j"
	}
	return &Neo4jStore{client: client, database: database}, nil
}

func (s *Neo4jStore) session(ctx context.Context) neo4j.SessionWithContext {
	return s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
}

// connErr wraps a transport failure in the shared ConnectionError kind.
func connErr(op string, err error) error {
	return &types.ConnectionError{Service: "neo4j", Op: op, Err: err}
}

// The three ingestion write statements, shared between the standalone
// upserts and the atomic batch commit.
const (
	episodeMergeCypher = `
		UNWIND $rows AS row
		MERGE (e:Episode {id: row.id, group_id: row.group_id})
		ON CREATE SET
			e.name = row.name,
			e.content = row.content,
			e.source_description = row.source_description,
			e.channel = row.channel,
			e.confidence = row.confidence,
			e.extraction_hints = row.extraction_hints,
			e.occurred_at = row.occurred_at,
			e.created_at = row.created_at
	`

	entityMergeCypher = `
		UNWIND $rows AS row
		MERGE (n:Entity {id: row.id, group_id: row.group_id})
		SET n.kind = row.kind,
			n.name = row.name,
			n.aliases = row.aliases,
			n.summary = row.summary,
			n.company_id = row.company_id,
			n.semantic_key = row.semantic_key,
			n.channel = row.channel,
			n.confidence = row.confidence,
			n.embedding = row.embedding,
			n.attributes = row.attributes,
			n.created_at = row.created_at,
			n.valid_at = row.valid_at,
			n.invalid_at = row.invalid_at
	`

	edgeMergeCypher = `
		UNWIND $rows AS row
		MATCH (src {id: row.source_id, group_id: row.group_id})
		MATCH (dst {id: row.target_id, group_id: row.group_id})
		MERGE (src)-[r:RELATES {id: row.id, group_id: row.group_id}]->(dst)
		SET r.kind = row.kind,
			r.source_kind = row.source_kind,
			r.target_kind = row.target_kind,
			r.status = row.status,
			r.created_at = row.created_at,
			r.valid_at = row.valid_at,
			r.invalid_at = row.invalid_at
	`
)

func episodeRows(episodes []*types.Episode) ([]map[string]any, error) {
	rows := make([]map[string]any, 0, len(episodes))
	for _, episode := range episodes {
		if err := episode.Validate(); err != nil {
			return nil, err
		}
		rows = append(rows, map[string]any{
			"id":                 episode.ID,
			"group_id":           episode.GroupID,
			"name":               episode.Name,
			"content":            episode.Content,
			"source_description": episode.SourceDescription,
			"channel":            string(episode.Channel),
			"confidence":         episode.Confidence,
			"extraction_hints":   episode.ExtractionHints,
			"occurred_at":        episode.OccurredAt,
			"created_at":         episode.CreatedAt,
		})
	}
	return rows, nil
}

func entityRows(entities []*types.Entity) ([]map[string]any, error) {
	rows := make([]map[string]any, 0, len(entities))
	for _, ent := range entities {
		if err := ent.Validate(); err != nil {
			return nil, err
		}
		attrs, err := json.Marshal(ent.Attributes)
		if err != nil {
			return nil, &types.ValidationError{Field: "attributes", Reason: err.Error()}
		}
		row := map[string]any{
			"id":           ent.ID,
			"kind":         string(ent.Kind),
			"name":         ent.Name,
			"aliases":      ent.Aliases,
			"group_id":     ent.GroupID,
			"summary":      ent.Summary,
			"company_id":   ent.CompanyID,
			"semantic_key": ent.SemanticKey,
			"channel":      string(ent.Channel),
			"confidence":   ent.Confidence,
			"embedding":    ent.Embedding,
			"attributes":   string(attrs),
			"created_at":   ent.CreatedAt,
			"valid_at":     nil,
			"invalid_at":   nil,
		}
		if !ent.ValidAt.IsZero() {
			row["valid_at"] = ent.ValidAt
		}
		if ent.InvalidAt != nil {
			row["invalid_at"] = *ent.InvalidAt
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func edgeRows(edges []*types.Edge) ([]map[string]any, error) {
	rows := make([]map[string]any, 0, len(edges))
	for _, edge := range edges {
		if err := edge.Validate(); err != nil {
			return nil, err
		}
		row := map[string]any{
			"id":          edge.ID,
			"kind":        string(edge.Kind),
			"source_id":   edge.SourceID,
			"target_id":   edge.TargetID,
			"source_kind": string(edge.SourceKind),
			"target_kind": string(edge.TargetKind),
			"group_id":    edge.GroupID,
			"status":      string(edge.Status),
			"created_at":  edge.CreatedAt,
			"valid_at":    nil,
			"invalid_at":  nil,
		}
		if !edge.ValidAt.IsZero() {
			row["valid_at"] = edge.ValidAt
		}
		if edge.InvalidAt != nil {
			row["invalid_at"] = *edge.InvalidAt
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// AddEpisode commits one episode in a single write transaction.
func (s *Neo4jStore) AddEpisode(ctx context.Context, episode *types.Episode) (string, error) {
	rows, err := episodeRows([]*types.Episode{episode})
	if err != nil {
		return "", err
	}

	session := s.session(ctx)
	defer session.Close(ctx)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, episodeMergeCypher, map[string]any{"rows": rows})
		return nil, err
	})
	if err != nil {
		return "", connErr("add_episode", err)
	}
	return episode.ID, nil
}

// UpsertEntities writes a batch of entities in one transaction.
func (s *Neo4jStore) UpsertEntities(ctx context.Context, entities []*types.Entity) error {
	if len(entities) == 0 {
		return nil
	}
	rows, err := entityRows(entities)
	if err != nil {
		return err
	}

	session := s.session(ctx)
	defer session.Close(ctx)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, entityMergeCypher, map[string]any{"rows": rows})
		return nil, err
	})
	if err != nil {
		return connErr("upsert_entities", err)
	}
	return nil
}

// UpsertEdges writes a batch of edges in one transaction. The relationship
// type is carried as a property alongside a generic RELATES label so the
// endpoint table stays the single source of kind validation.
func (s *Neo4jStore) UpsertEdges(ctx context.Context, edges []*types.Edge) error {
	if len(edges) == 0 {
		return nil
	}
	rows, err := edgeRows(edges)
	if err != nil {
		return err
	}

	session := s.session(ctx)
	defer session.Close(ctx)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, edgeMergeCypher, map[string]any{"rows": rows})
		return nil, err
	})
	if err != nil {
		return connErr("upsert_edges", err)
	}
	return nil
}

// CommitIngestion writes episodes, entities and edges in one write
// transaction. A failure at any point rolls back the whole batch: no
// episode is ever visible without its extraction output.
func (s *Neo4jStore) CommitIngestion(ctx context.Context, episodes []*types.Episode, entities []*types.Entity, edges []*types.Edge) error {
	epRows, err := episodeRows(episodes)
	if err != nil {
		return err
	}
	entRows, err := entityRows(entities)
	if err != nil {
		return err
	}
	edgRows, err := edgeRows(edges)
	if err != nil {
		return err
	}

	session := s.session(ctx)
	defer session.Close(ctx)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if len(epRows) > 0 {
			if _, err := tx.Run(ctx, episodeMergeCypher, map[string]any{"rows": epRows}); err != nil {
				return nil, err
			}
		}
		if len(entRows) > 0 {
			if _, err := tx.Run(ctx, entityMergeCypher, map[string]any{"rows": entRows}); err != nil {
				return nil, err
			}
		}
		if len(edgRows) > 0 {
			if _, err := tx.Run(ctx, edgeMergeCypher, map[string]any{"rows": edgRows}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return connErr("commit_ingestion", err)
	}
	return nil
}

// QueryEntities lists entities in a group matching the filter.
func (s *Neo4jStore) QueryEntities(ctx context.Context, groupID string, filter EntityFilter) ([]*types.Entity, error) {
	if groupID == "" {
		return nil, types.ErrEmptyGroupID
	}

	query := `
		MATCH (n:Entity {group_id: $group_id})
		WHERE ($kinds = [] OR n.kind IN $kinds)
		  AND ($name_contains = '' OR toLower(n.name) CONTAINS toLower($name_contains))
		  AND ($semantic_key = '' OR n.semantic_key = $semantic_key)
		  AND ($valid_at IS NULL OR
		       ((n.valid_at IS NULL OR n.valid_at <= $valid_at) AND
		        (n.invalid_at IS NULL OR n.invalid_at > $valid_at)))
		RETURN n
		ORDER BY n.created_at DESC
		LIMIT $limit
	`
	kinds := make([]string, 0, len(filter.Kinds))
	for _, k := range filter.Kinds {
		kinds = append(kinds, string(k))
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	params := map[string]any{
		"group_id":      groupID,
		"kinds":         kinds,
		"name_contains": filter.NameContains,
		"semantic_key":  filter.SemanticKey,
		"valid_at":      nil,
		"limit":         limit,
	}
	if filter.ValidAt != nil {
		params["valid_at"] = *filter.ValidAt
	}

	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, connErr("query_entities", err)
	}

	records := result.([]*db.Record)
	entities := make([]*types.Entity, 0, len(records))
	for _, record := range records {
		ent, err := entityFromRecord(record, "n")
		if err != nil {
			return nil, err
		}
		entities = append(entities, ent)
	}
	return entities, nil
}

// QueryFactValidAt returns the fact valid for a semantic key at a point in
// time. The validity window is half-open, so at most one fact matches.
func (s *Neo4jStore) QueryFactValidAt(ctx context.Context, groupID, semanticKey string, at time.Time) (*types.Entity, error) {
	if groupID == "" {
		return nil, types.ErrEmptyGroupID
	}

	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (n:Entity {group_id: $group_id, semantic_key: $semantic_key})
			WHERE n.valid_at IS NOT NULL AND n.valid_at <= $at
			  AND (n.invalid_at IS NULL OR n.invalid_at > $at)
			RETURN n
			LIMIT 1
		`, map[string]any{
			"group_id":     groupID,
			"semantic_key": semanticKey,
			"at":           at,
		})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, connErr("query_fact_valid_at", err)
	}

	records := result.([]*db.Record)
	if len(records) == 0 {
		return nil, types.ErrNotFound
	}
	return entityFromRecord(records[0], "n")
}

// Supersede invalidates the old fact and records the supersession edge in
// one transaction. There is no window where both facts are valid or both
// invalid.
func (s *Neo4jStore) Supersede(ctx context.Context, groupID, oldFactID, newFactID string, occurredAt time.Time) error {
	if groupID == "" {
		return types.ErrEmptyGroupID
	}

	session := s.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (old:Entity {id: $old_id, group_id: $group_id})
			MATCH (new:Entity {id: $new_id, group_id: $group_id})
			SET old.invalid_at = $occurred_at,
				new.valid_at = coalesce(new.valid_at, $occurred_at)
			MERGE (new)-[r:RELATES {kind: 'SUPERSEDES', group_id: $group_id}]->(old)
			ON CREATE SET r.id = randomUUID(), r.created_at = $occurred_at,
				r.source_kind = new.kind, r.target_kind = old.kind
			RETURN old.id
		`, map[string]any{
			"old_id":      oldFactID,
			"new_id":      newFactID,
			"group_id":    groupID,
			"occurred_at": occurredAt,
		})
		if err != nil {
			return nil, err
		}
		records, err := res.Collect(ctx)
		if err != nil {
			return nil, err
		}
		if len(records) == 0 {
			return nil, types.ErrNotFound
		}
		return nil, nil
	})
	if err != nil {
		if err == types.ErrNotFound {
			return err
		}
		return connErr("supersede", err)
	}
	return nil
}

// SearchByEmbedding runs the vector index lookup scoped by group.
func (s *Neo4jStore) SearchByEmbedding(ctx context.Context, groupID string, vector []float32, opts VectorOptions) ([]ScoredEntity, error) {
	if groupID == "" {
		return nil, types.ErrEmptyGroupID
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}

	kinds := make([]string, 0, len(opts.Kinds))
	for _, k := range opts.Kinds {
		kinds = append(kinds, string(k))
	}

	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		// Over-fetch before the group filter: the index is global, the
		// result must not be.
		res, err := tx.Run(ctx, `
			CALL db.index.vector.queryNodes('entity_embedding', $candidates, $vector)
			YIELD node, score
			WHERE node.group_id = $group_id
			  AND score >= $min_score
			  AND ($kinds = [] OR node.kind IN $kinds)
			RETURN node, score
			ORDER BY score DESC
			LIMIT $limit
		`, map[string]any{
			"candidates": limit * 4,
			"vector":     vector,
			"group_id":   groupID,
			"min_score":  opts.MinScore,
			"kinds":      kinds,
			"limit":      limit,
		})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, connErr("search_by_embedding", err)
	}

	records := result.([]*db.Record)
	scored := make([]ScoredEntity, 0, len(records))
	for _, record := range records {
		ent, err := entityFromRecord(record, "node")
		if err != nil {
			return nil, err
		}
		score, _ := record.Get("score")
		scored = append(scored, ScoredEntity{Entity: ent, Score: asFloat(score)})
	}
	return scored, nil
}

// MergeEntities records the duplicate relation. Both entities survive.
func (s *Neo4jStore) MergeEntities(ctx context.Context, groupID, duplicateID, canonicalID string) error {
	return s.writeDuplicateEdge(ctx, groupID, duplicateID, canonicalID, true)
}

// SplitEntities removes the duplicate relation recorded by MergeEntities.
func (s *Neo4jStore) SplitEntities(ctx context.Context, groupID, duplicateID, canonicalID string) error {
	return s.writeDuplicateEdge(ctx, groupID, duplicateID, canonicalID, false)
}

func (s *Neo4jStore) writeDuplicateEdge(ctx context.Context, groupID, duplicateID, canonicalID string, create bool) error {
	if groupID == "" {
		return types.ErrEmptyGroupID
	}

	session := s.session(ctx)
	defer session.Close(ctx)

	query := `
		MATCH (dup:Entity {id: $dup_id, group_id: $group_id})
		MATCH (canon:Entity {id: $canon_id, group_id: $group_id})
		MERGE (dup)-[r:RELATES {kind: 'IS_DUPLICATE_OF', group_id: $group_id}]->(canon)
		ON CREATE SET r.id = randomUUID(), r.created_at = datetime()
		RETURN dup.id
	`
	if !create {
		query = `
			MATCH (dup:Entity {id: $dup_id, group_id: $group_id})
				-[r:RELATES {kind: 'IS_DUPLICATE_OF', group_id: $group_id}]->
				(canon:Entity {id: $canon_id, group_id: $group_id})
			DELETE r
			RETURN dup.id
		`
	}

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{
			"dup_id":   duplicateID,
			"canon_id": canonicalID,
			"group_id": groupID,
		})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return connErr("duplicate_edge", err)
	}
	return nil
}

// CanonicalEntity follows IS_DUPLICATE_OF edges to the canonical node.
func (s *Neo4jStore) CanonicalEntity(ctx context.Context, groupID, entityID string) (*types.Entity, error) {
	if groupID == "" {
		return nil, types.ErrEmptyGroupID
	}

	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (n:Entity {id: $id, group_id: $group_id})
			OPTIONAL MATCH (n)-[:RELATES* {kind: 'IS_DUPLICATE_OF', group_id: $group_id}]->(canon:Entity)
			WHERE NOT (canon)-[:RELATES {kind: 'IS_DUPLICATE_OF', group_id: $group_id}]->()
			RETURN coalesce(canon, n) AS n
			LIMIT 1
		`, map[string]any{"id": entityID, "group_id": groupID})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, connErr("canonical_entity", err)
	}

	records := result.([]*db.Record)
	if len(records) == 0 {
		return nil, types.ErrNotFound
	}
	return entityFromRecord(records[0], "n")
}

// EdgesByKind returns edges of one kind whose source is in sourceIDs.
func (s *Neo4jStore) EdgesByKind(ctx context.Context, groupID string, kind types.EdgeKind, sourceIDs []string) ([]*types.Edge, error) {
	if groupID == "" {
		return nil, types.ErrEmptyGroupID
	}
	if len(sourceIDs) == 0 {
		return nil, nil
	}

	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (src {group_id: $group_id})-[r:RELATES {kind: $kind, group_id: $group_id}]->(dst)
			WHERE src.id IN $source_ids
			RETURN r, src.id AS source_id, dst.id AS target_id
		`, map[string]any{
			"group_id":   groupID,
			"kind":       string(kind),
			"source_ids": sourceIDs,
		})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, connErr("edges_by_kind", err)
	}

	records := result.([]*db.Record)
	edges := make([]*types.Edge, 0, len(records))
	for _, record := range records {
		edge, err := edgeFromRecord(record)
		if err != nil {
			return nil, err
		}
		edges = append(edges, edge)
	}
	return edges, nil
}

// RecentEpisodes lists the newest episodes in a group.
func (s *Neo4jStore) RecentEpisodes(ctx context.Context, groupID string, limit int) ([]*types.Episode, error) {
	if groupID == "" {
		return nil, types.ErrEmptyGroupID
	}
	if limit <= 0 {
		limit = 20
	}

	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
			MATCH (e:Episode {group_id: $group_id})
			RETURN e
			ORDER BY e.occurred_at DESC
			LIMIT $limit
		`, map[string]any{"group_id": groupID, "limit": limit})
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, connErr("recent_episodes", err)
	}

	records := result.([]*db.Record)
	episodes := make([]*types.Episode, 0, len(records))
	for _, record := range records {
		ep, err := episodeFromRecord(record, "e")
		if err != nil {
			return nil, err
		}
		episodes = append(episodes, ep)
	}
	return episodes, nil
}

// schemaStatements are idempotent: IF NOT EXISTS makes re-running them on
// every process start safe.
var schemaStatements = []string{
	`CREATE CONSTRAINT entity_id_group IF NOT EXISTS
		FOR (n:Entity) REQUIRE (n.id, n.group_id) IS UNIQUE`,
	`CREATE CONSTRAINT episode_id_group IF NOT EXISTS
		FOR (n:Episode) REQUIRE (n.id, n.group_id) IS UNIQUE`,
	`CREATE INDEX entity_group IF NOT EXISTS FOR (n:Entity) ON (n.group_id)`,
	`CREATE INDEX entity_semantic_key IF NOT EXISTS FOR (n:Entity) ON (n.group_id, n.semantic_key)`,
	`CREATE INDEX episode_group IF NOT EXISTS FOR (n:Episode) ON (n.group_id, n.occurred_at)`,
	`CREATE VECTOR INDEX entity_embedding IF NOT EXISTS
		FOR (n:Entity) ON (n.embedding)
		OPTIONS {indexConfig: {` + "`vector.dimensions`" + `: 1536, ` + "`vector.similarity_function`" + `: 'cosine'}}`,
}

// EnsureSchema creates indexes and constraints on process start.
func (s *Neo4jStore) EnsureSchema(ctx context.Context) error {
	session := s.session(ctx)
	defer session.Close(ctx)

	for _, stmt := range schemaStatements {
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			return connErr("ensure_schema", err)
		}
	}
	return nil
}

// Ping verifies connectivity.
func (s *Neo4jStore) Ping(ctx context.Context) error {
	if err := s.client.VerifyConnectivity(ctx); err != nil {
		return connErr("ping", err)
	}
	return nil
}

// Close releases the underlying driver.
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.client.Close(ctx)
}
