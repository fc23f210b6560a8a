package driver

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/sellside/dealgraph/pkg/types"
)

// Record mapping between Neo4j property bags and the shared types. Neo4j
// returns temporal values as dbtype wrappers and numbers as int64/float64;
// the helpers below absorb that.

func nodeProps(record *db.Record, key string) (map[string]any, error) {
	value, found := record.Get(key)
	if !found || value == nil {
		return nil, types.ErrNotFound
	}
	node, ok := value.(dbtype.Node)
	if !ok {
		return nil, fmt.Errorf("unexpected record type %T for %q", value, key)
	}
	return node.Props, nil
}

func entityFromRecord(record *db.Record, key string) (*types.Entity, error) {
	props, err := nodeProps(record, key)
	if err != nil {
		return nil, err
	}

	ent := &types.Entity{
		ID:          asString(props["id"]),
		Kind:        types.Kind(asString(props["kind"])),
		Name:        asString(props["name"]),
		Aliases:     asStrings(props["aliases"]),
		GroupID:     asString(props["group_id"]),
		Summary:     asString(props["summary"]),
		CompanyID:   asString(props["company_id"]),
		SemanticKey: asString(props["semantic_key"]),
		Channel:     types.SourceChannel(asString(props["channel"])),
		Confidence:  asFloat(props["confidence"]),
		Embedding:   asVector(props["embedding"]),
		CreatedAt:   asTime(props["created_at"]),
		ValidAt:     asTime(props["valid_at"]),
	}
	if t := asTime(props["invalid_at"]); !t.IsZero() {
		ent.InvalidAt = &t
	}
	if raw := asString(props["attributes"]); raw != "" && raw != "null" {
		var attrs map[string]any
		if err := json.Unmarshal([]byte(raw), &attrs); err == nil {
			ent.Attributes = attrs
		}
	}
	return ent, nil
}

func episodeFromRecord(record *db.Record, key string) (*types.Episode, error) {
	props, err := nodeProps(record, key)
	if err != nil {
		return nil, err
	}
	return &types.Episode{
		ID:                asString(props["id"]),
		Name:              asString(props["name"]),
		Content:           asString(props["content"]),
		SourceDescription: asString(props["source_description"]),
		Channel:           types.SourceChannel(asString(props["channel"])),
		Confidence:        asFloat(props["confidence"]),
		GroupID:           asString(props["group_id"]),
		ExtractionHints:   asString(props["extraction_hints"]),
		OccurredAt:        asTime(props["occurred_at"]),
		CreatedAt:         asTime(props["created_at"]),
	}, nil
}

func edgeFromRecord(record *db.Record) (*types.Edge, error) {
	value, found := record.Get("r")
	if !found || value == nil {
		return nil, types.ErrNotFound
	}
	rel, ok := value.(dbtype.Relationship)
	if !ok {
		return nil, fmt.Errorf("unexpected record type %T for edge", value)
	}
	props := rel.Props

	sourceID, _ := record.Get("source_id")
	targetID, _ := record.Get("target_id")

	edge := &types.Edge{
		ID:         asString(props["id"]),
		Kind:       types.EdgeKind(asString(props["kind"])),
		SourceID:   asString(sourceID),
		TargetID:   asString(targetID),
		SourceKind: types.Kind(asString(props["source_kind"])),
		TargetKind: types.Kind(asString(props["target_kind"])),
		GroupID:    asString(props["group_id"]),
		Status:     types.ContradictionStatus(asString(props["status"])),
		CreatedAt:  asTime(props["created_at"]),
		ValidAt:    asTime(props["valid_at"]),
	}
	if t := asTime(props["invalid_at"]); !t.IsZero() {
		edge.InvalidAt = &t
	}
	return edge, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asStrings(v any) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []any:
		out := make([]string, 0, len(vals))
		for _, item := range vals {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int:
		return float64(n)
	default:
		return 0
	}
}

func asVector(v any) []float32 {
	vals, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]float32, 0, len(vals))
	for _, item := range vals {
		out = append(out, float32(asFloat(item)))
	}
	return out
}

func asTime(v any) time.Time {
	switch t := v.(type) {
	case time.Time:
		return t
	case dbtype.Time:
		return t.Time()
	case dbtype.LocalDateTime:
		return t.Time()
	case dbtype.Date:
		return t.Time()
	default:
		return time.Time{}
	}
}
