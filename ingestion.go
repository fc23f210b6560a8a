package dealgraph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/sellside/dealgraph/pkg/driver"
	"github.com/sellside/dealgraph/pkg/hints"
	"github.com/sellside/dealgraph/pkg/types"
)

// DocumentChunk is one parsed chunk of a deal document.
type DocumentChunk struct {
	Content    string
	ChunkIndex int
	PageNumber *int
	ChunkType  string
	TokenCount int
}

// DocumentInput describes one document ingestion call.
type DocumentInput struct {
	DocumentID   string
	DocumentName string
	Format       string
	Chunks       []DocumentChunk
	// OccurredAt is the document's business timestamp. Zero means now.
	OccurredAt time.Time
}

// FactInput describes a Q&A response or analyst chat fact.
type FactInput struct {
	MessageID string
	Content   string
	Source    string
	// OccurredAt is when the statement was made. Zero means now.
	OccurredAt time.Time
}

// extractionUnit is one episode plus everything extracted from it, staged
// before any write.
type extractionUnit struct {
	episode  *types.Episode
	entities []*types.Entity
	edges    []*types.Edge
}

// IngestDocumentChunks turns a parsed document into chunks in the fast-path
// index and one or more episodes in the graph. Chunks become searchable
// immediately; graph extraction follows within the same call.
//
// The call is all-or-nothing: extraction and embedding for every episode
// complete before the first write, so a failure leaves both stores
// untouched. Re-ingesting the same document creates new episodes but
// upserts the same entities, so nothing duplicates.
func (c *Client) IngestDocumentChunks(ctx context.Context, scope types.TenantScope, input DocumentInput) (*types.IngestionResult, error) {
	start := time.Now()
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if input.DocumentID == "" {
		return nil, &types.ValidationError{Field: "document_id", Reason: "must not be empty"}
	}
	if len(input.Chunks) == 0 {
		return nil, &types.ValidationError{Field: "chunks", Reason: "must not be empty"}
	}
	groupID := scope.GroupID()
	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	meta := hints.DocumentMeta{Filename: input.DocumentName, Format: input.Format}
	category := c.selector.DetectCategory(meta)
	hintText := c.selector.BuildHints(category, meta)

	// Stage fast-path chunks.
	chunkNodes := make([]*types.ChunkNode, 0, len(input.Chunks))
	texts := make([]string, 0, len(input.Chunks))
	for _, chunk := range input.Chunks {
		if strings.TrimSpace(chunk.Content) == "" {
			return nil, types.ErrEmptyContent
		}
		chunkType := chunk.ChunkType
		if chunkType == "" {
			chunkType = "text"
		}
		chunkNodes = append(chunkNodes, &types.ChunkNode{
			ID:         chunkID(groupID, input.DocumentID, chunk.ChunkIndex),
			Content:    chunk.Content,
			DocumentID: input.DocumentID,
			GroupID:    groupID,
			ChunkIndex: chunk.ChunkIndex,
			PageNumber: chunk.PageNumber,
			ChunkType:  chunkType,
			TokenCount: chunk.TokenCount,
			CreatedAt:  time.Now().UTC(),
		})
		texts = append(texts, chunk.Content)
	}

	vectors, err := c.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	for i := range chunkNodes {
		chunkNodes[i].Embedding = vectors[i]
	}

	// One episode per document, split when content exceeds the ceiling.
	episodes := c.buildEpisodes(groupID, input, hintText, occurredAt)

	units, err := c.extractAll(ctx, episodes)
	if err != nil {
		return nil, err
	}

	// Everything validated and extracted; write.
	if err := c.index.IndexChunks(ctx, chunkNodes); err != nil {
		return nil, err
	}
	if err := c.commit(ctx, groupID, units, occurredAt); err != nil {
		// Undo the fast-path write so a failed call leaves both stores
		// untouched.
		if cleanupErr := c.index.DeleteDocument(ctx, groupID, input.DocumentID); cleanupErr != nil {
			c.logger.Warn("fast-path rollback failed",
				"scope", scope.String(), "document_id", input.DocumentID, "error", cleanupErr)
		}
		return nil, err
	}

	ids := make([]string, len(episodes))
	for i, ep := range episodes {
		ids[i] = ep.ID
	}
	c.logger.Info("document ingested",
		"scope", scope.String(), "document_id", input.DocumentID,
		"category", string(category), "chunks", len(chunkNodes), "episodes", len(episodes),
		"duration_ms", time.Since(start).Milliseconds())

	return &types.IngestionResult{
		EpisodeCount: len(episodes),
		EpisodeIDs:   ids,
		Duration:     time.Since(start),
	}, nil
}

// IngestQAResponse ingests one answered diligence question at the
// qa_response confidence tier.
func (c *Client) IngestQAResponse(ctx context.Context, scope types.TenantScope, input FactInput) (*types.IngestionResult, error) {
	return c.ingestFact(ctx, scope, input, types.ChannelQAResponse)
}

// IngestChatFact ingests one analyst chat statement at the analyst_chat
// confidence tier, the highest truth precedence.
func (c *Client) IngestChatFact(ctx context.Context, scope types.TenantScope, input FactInput) (*types.IngestionResult, error) {
	return c.ingestFact(ctx, scope, input, types.ChannelAnalystChat)
}

func (c *Client) ingestFact(ctx context.Context, scope types.TenantScope, input FactInput, channel types.SourceChannel) (*types.IngestionResult, error) {
	start := time.Now()
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Content) == "" {
		return nil, types.ErrEmptyContent
	}
	groupID := scope.GroupID()
	occurredAt := input.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	episode := &types.Episode{
		ID:                uuid.NewString(),
		Name:              input.MessageID,
		Content:           input.Content,
		SourceDescription: input.Source,
		Channel:           channel,
		Confidence:        channel.ConfidenceTier(),
		GroupID:           groupID,
		OccurredAt:        occurredAt,
		CreatedAt:         time.Now().UTC(),
	}

	units, err := c.extractAll(ctx, []*types.Episode{episode})
	if err != nil {
		return nil, err
	}
	if err := c.commit(ctx, groupID, units, occurredAt); err != nil {
		return nil, err
	}

	c.logger.Info("fact ingested",
		"scope", scope.String(), "channel", string(channel),
		"message_id", input.MessageID,
		"duration_ms", time.Since(start).Milliseconds())

	return &types.IngestionResult{
		EpisodeCount: 1,
		EpisodeIDs:   []string{episode.ID},
		Duration:     time.Since(start),
	}, nil
}

// buildEpisodes groups document chunks into episodes: one per document
// unless content exceeds the size ceiling, then one per batch.
func (c *Client) buildEpisodes(groupID string, input DocumentInput, hintText string, occurredAt time.Time) []*types.Episode {
	var batches [][]DocumentChunk
	var current []DocumentChunk
	var size int
	for _, chunk := range input.Chunks {
		if size > 0 && size+len(chunk.Content) > c.episodeCharLimit {
			batches = append(batches, current)
			current, size = nil, 0
		}
		current = append(current, chunk)
		size += len(chunk.Content)
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}

	episodes := make([]*types.Episode, 0, len(batches))
	for i, batch := range batches {
		var b strings.Builder
		for j, chunk := range batch {
			if j > 0 {
				b.WriteString("\n\n")
			}
			b.WriteString(chunk.Content)
		}
		name := input.DocumentName
		if len(batches) > 1 {
			name = fmt.Sprintf("%s (part %d/%d)", input.DocumentName, i+1, len(batches))
		}
		episodes = append(episodes, &types.Episode{
			ID:                uuid.NewString(),
			Name:              name,
			Content:           b.String(),
			SourceDescription: input.DocumentName,
			Channel:           types.ChannelDocument,
			Confidence:        types.ChannelDocument.ConfidenceTier(),
			GroupID:           groupID,
			ExtractionHints:   hintText,
			OccurredAt:        occurredAt,
			CreatedAt:         time.Now().UTC(),
		})
	}
	return episodes
}

// extractAll runs extraction for all episodes with bounded concurrency and
// embeds the extracted entities. No writes happen here; a failure aborts
// the whole call before anything is persisted.
func (c *Client) extractAll(ctx context.Context, episodes []*types.Episode) ([]*extractionUnit, error) {
	units := make([]*extractionUnit, len(episodes))

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(c.maxConcurrency)
	for i, episode := range episodes {
		i, episode := i, episode
		group.Go(func() error {
			unit := &extractionUnit{episode: episode}
			if c.extractor != nil {
				entities, edges, err := c.extractor.Extract(ctx, episode)
				if err != nil {
					return err
				}
				unit.entities, unit.edges = entities, edges
			}
			units[i] = unit
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	// Embed entity names for the graph store's vector index.
	var texts []string
	var targets []*types.Entity
	for _, unit := range units {
		for _, ent := range unit.entities {
			text := ent.Name
			if ent.Summary != "" {
				text += ": " + ent.Summary
			}
			texts = append(texts, text)
			targets = append(targets, ent)
		}
	}
	if len(texts) > 0 {
		vectors, err := c.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, err
		}
		for i, ent := range targets {
			ent.Embedding = vectors[i]
		}
	}
	return units, nil
}

// commit writes staged units in one atomic store transaction, then
// supersedes any temporal facts the new ones replace.
func (c *Client) commit(ctx context.Context, groupID string, units []*extractionUnit, occurredAt time.Time) error {
	episodes := make([]*types.Episode, 0, len(units))
	var entities []*types.Entity
	var edges []*types.Edge
	for _, unit := range units {
		episodes = append(episodes, unit.episode)
		entities = append(entities, unit.entities...)
		edges = append(edges, unit.edges...)
	}

	if err := c.store.CommitIngestion(ctx, episodes, entities, edges); err != nil {
		return err
	}
	return c.supersedeReplaced(ctx, groupID, entities, occurredAt)
}

// supersedeReplaced invalidates currently-valid facts that the new entities
// replace, keyed by semantic key. Equal-or-higher channel precedence wins;
// a document never silently overrides an analyst correction.
func (c *Client) supersedeReplaced(ctx context.Context, groupID string, entities []*types.Entity, occurredAt time.Time) error {
	for _, ent := range entities {
		if ent.SemanticKey == "" {
			continue
		}
		validAt := occurredAt
		existing, err := c.store.QueryEntities(ctx, groupID, driver.EntityFilter{
			SemanticKey: ent.SemanticKey,
			ValidAt:     &validAt,
		})
		if err != nil {
			return err
		}
		for _, old := range existing {
			if old.ID == ent.ID {
				continue
			}
			if ent.Channel.Precedence() < old.Channel.Precedence() {
				// The standing fact wins. Close the newcomer's window at its
				// own valid_at so the two are never simultaneously valid.
				c.logger.Info("keeping higher-precedence fact",
					"group_id", groupID, "semantic_key", ent.SemanticKey,
					"existing_channel", string(old.Channel), "new_channel", string(ent.Channel))
				if err := c.store.Supersede(ctx, groupID, ent.ID, old.ID, occurredAt); err != nil {
					return err
				}
				continue
			}
			if err := c.store.Supersede(ctx, groupID, old.ID, ent.ID, occurredAt); err != nil {
				return err
			}
		}
	}
	return nil
}

// chunkID derives a stable chunk id so re-parsing a document is an upsert.
func chunkID(groupID, documentID string, index int) string {
	seed := fmt.Sprintf("%s|%s|%d", groupID, documentID, index)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(seed)).String()
}
