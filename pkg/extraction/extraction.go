// Package extraction turns episode text into typed entities and edges via
// an LLM, then validates the output against the closed type registry before
// anything reaches the graph store. Model output naming an unknown entity
// kind or a disallowed edge pairing is rejected, not coerced.
package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kaptinlin/jsonrepair"

	"github.com/sellside/dealgraph/pkg/resolution"
	"github.com/sellside/dealgraph/pkg/types"
)

// entityID derives a stable id from the entity's identity within its group.
// Re-extracting the same entity from a re-ingested document upserts the
// same node instead of creating a near-duplicate the resolution policy
// would immediately flag.
func entityID(groupID string, kind types.Kind, name, semanticKey string) string {
	seed := groupID + "|" + string(kind) + "|" + resolution.NormalizeName(name) + "|" + semanticKey
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed)).String()
}

func edgeID(groupID string, kind types.EdgeKind, sourceID, targetID string) string {
	seed := groupID + "|" + string(kind) + "|" + sourceID + "|" + targetID
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed)).String()
}

// ChatClient is the minimal LLM surface extraction needs.
type ChatClient interface {
	// Complete sends a system and user prompt and returns the raw response
	// text, which is expected, but not guaranteed, to be JSON.
	Complete(ctx context.Context, system, user string) (string, error)
	Close() error
}

// RawEntity is one entity as named by the model, before validation.
type RawEntity struct {
	Kind        string         `json:"kind"`
	Name        string         `json:"name"`
	Aliases     []string       `json:"aliases,omitempty"`
	Summary     string         `json:"summary,omitempty"`
	SemanticKey string         `json:"semantic_key,omitempty"`
	Attributes  map[string]any `json:"attributes,omitempty"`
}

// RawEdge is one relationship as named by the model, referencing entities
// by their position in the entities array.
type RawEdge struct {
	Kind        string `json:"kind"`
	SourceIndex int    `json:"source_index"`
	TargetIndex int    `json:"target_index"`
}

// ExtractionOutput is the parsed model response.
type ExtractionOutput struct {
	Entities []RawEntity `json:"entities"`
	Edges    []RawEdge   `json:"edges"`
}

const systemPrompt = `You are an information extraction engine for M&A due diligence.
Extract entities and relationships from the provided text.

Entity kinds: company, person, financial_metric, finding, risk.
Edge kinds and their permitted endpoints:
  WORKS_FOR (person -> company)
  COMPETES_WITH, INVESTS_IN, SUPPLIES (company -> company)
  SUPPORTS, CONTRADICTS (finding -> finding)
  MENTIONS (finding -> company, finding -> financial_metric, risk -> company)

For financial metrics, set semantic_key to "<metric>|<period>|<basis>",
e.g. "revenue|2025Q3|reported".

Respond with a single JSON object:
{"entities": [{"kind", "name", "aliases", "summary", "semantic_key", "attributes"}],
 "edges": [{"kind", "source_index", "target_index"}]}
Indexes refer to positions in the entities array. Extract nothing that is
not stated in the text.`

// Extractor drives extraction for one episode at a time.
type Extractor struct {
	client ChatClient
}

func NewExtractor(client ChatClient) *Extractor {
	return &Extractor{client: client}
}

// Extract runs the model over an episode and returns validated entities and
// edges scoped to the episode's group. Extraction hints, when present, are
// prepended to steer the model toward the document's domain.
func (e *Extractor) Extract(ctx context.Context, episode *types.Episode) ([]*types.Entity, []*types.Edge, error) {
	if episode.Content == "" {
		return nil, nil, types.ErrEmptyContent
	}

	user := episode.Content
	if episode.ExtractionHints != "" {
		user = episode.ExtractionHints + "\n\n" + user
	}

	raw, err := e.client.Complete(ctx, systemPrompt, user)
	if err != nil {
		return nil, nil, err
	}

	output, err := ParseOutput(raw)
	if err != nil {
		return nil, nil, err
	}
	return materialize(output, episode)
}

// ParseOutput parses model output, repairing almost-JSON first. Models wrap
// JSON in code fences or leave trailing commas often enough that strict
// parsing alone loses episodes.
func ParseOutput(raw string) (*ExtractionOutput, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	var output ExtractionOutput
	if err := json.Unmarshal([]byte(cleaned), &output); err == nil {
		return &output, nil
	}

	repaired, err := jsonrepair.JSONRepair(cleaned)
	if err != nil {
		return nil, &types.ValidationError{Field: "extraction", Reason: "model output is not JSON: " + err.Error()}
	}
	if err := json.Unmarshal([]byte(repaired), &output); err != nil {
		return nil, &types.ValidationError{Field: "extraction", Reason: "repaired output does not match schema: " + err.Error()}
	}
	return &output, nil
}

// materialize converts raw output into typed nodes and edges, rejecting
// anything outside the registry.
func materialize(output *ExtractionOutput, episode *types.Episode) ([]*types.Entity, []*types.Edge, error) {
	now := time.Now().UTC()

	entities := make([]*types.Entity, 0, len(output.Entities))
	for _, raw := range output.Entities {
		kind, ok := types.ParseKind(strings.ToLower(strings.TrimSpace(raw.Kind)))
		if !ok {
			return nil, nil, &types.ValidationError{
				Field:  "entity.kind",
				Reason: fmt.Sprintf("unknown entity kind %q", raw.Kind),
			}
		}
		if strings.TrimSpace(raw.Name) == "" {
			return nil, nil, &types.ValidationError{Field: "entity.name", Reason: "must not be empty"}
		}
		entities = append(entities, &types.Entity{
			ID:          entityID(episode.GroupID, kind, raw.Name, raw.SemanticKey),
			Kind:        kind,
			Name:        raw.Name,
			Aliases:     raw.Aliases,
			Summary:     raw.Summary,
			SemanticKey: raw.SemanticKey,
			Attributes:  raw.Attributes,
			GroupID:     episode.GroupID,
			Channel:     episode.Channel,
			Confidence:  episode.Confidence,
			ValidAt:     episode.OccurredAt,
			CreatedAt:   now,
		})
	}

	edges := make([]*types.Edge, 0, len(output.Edges))
	for _, raw := range output.Edges {
		if raw.SourceIndex < 0 || raw.SourceIndex >= len(entities) ||
			raw.TargetIndex < 0 || raw.TargetIndex >= len(entities) {
			return nil, nil, &types.ValidationError{
				Field:  "edge",
				Reason: fmt.Sprintf("edge references entity index out of range (%d -> %d)", raw.SourceIndex, raw.TargetIndex),
			}
		}
		source, target := entities[raw.SourceIndex], entities[raw.TargetIndex]
		kind := types.EdgeKind(strings.ToUpper(strings.TrimSpace(raw.Kind)))
		edge := &types.Edge{
			ID:         edgeID(episode.GroupID, kind, source.ID, target.ID),
			Kind:       kind,
			SourceID:   source.ID,
			TargetID:   target.ID,
			SourceKind: source.Kind,
			TargetKind: target.Kind,
			GroupID:    episode.GroupID,
			Status:     statusFor(kind),
			ValidAt:    episode.OccurredAt,
			CreatedAt:  now,
		}
		if err := edge.Validate(); err != nil {
			return nil, nil, err
		}
		edges = append(edges, edge)
	}

	// Provenance: every entity links back to the episode it came from.
	for _, ent := range entities {
		edges = append(edges, &types.Edge{
			ID:         edgeID(episode.GroupID, types.EdgeExtractedFrom, ent.ID, episode.ID),
			Kind:       types.EdgeExtractedFrom,
			SourceID:   ent.ID,
			TargetID:   episode.ID,
			SourceKind: ent.Kind,
			TargetKind: types.KindEpisode,
			GroupID:    episode.GroupID,
			ValidAt:    episode.OccurredAt,
			CreatedAt:  now,
		})
	}

	return entities, edges, nil
}

func statusFor(kind types.EdgeKind) types.ContradictionStatus {
	if kind == types.EdgeContradicts {
		return types.ContradictionUnresolved
	}
	return ""
}
