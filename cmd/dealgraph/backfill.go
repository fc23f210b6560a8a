package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sellside/dealgraph/pkg/config"
	"github.com/sellside/dealgraph/pkg/driver"
	"github.com/sellside/dealgraph/pkg/jobs"
	"github.com/sellside/dealgraph/pkg/types"
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Re-embed entities missing or carrying stale embeddings",
	Long: `Walk the entities of one deal scope and regenerate embeddings through the
configured provider. Run after an embedding model change; jobs are
idempotent per entity batch, so interrupting and re-running is safe.`,
	RunE: runBackfill,
}

var (
	backfillOrg   string
	backfillDeal  string
	backfillBatch int
)

func init() {
	rootCmd.AddCommand(backfillCmd)

	backfillCmd.Flags().StringVar(&backfillOrg, "organization", "", "organization id (required)")
	backfillCmd.Flags().StringVar(&backfillDeal, "deal", "", "deal id (required)")
	backfillCmd.Flags().IntVar(&backfillBatch, "batch-size", 64, "entities per embedding batch")
	backfillCmd.MarkFlagRequired("organization")
	backfillCmd.MarkFlagRequired("deal")
}

type backfillPayload struct {
	EntityIDs []string `json:"entity_ids"`
}

func runBackfill(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := buildLogger(cfg)
	if err != nil {
		return err
	}

	scope, err := types.NewTenantScope(backfillOrg, backfillDeal)
	if err != nil {
		return err
	}

	ctx := context.Background()
	store, err := driver.NewNeo4jStore(cfg.Neo4j.URI, cfg.Neo4j.Username, cfg.Neo4j.Password, cfg.Neo4j.Database)
	if err != nil {
		return fmt.Errorf("connect neo4j: %w", err)
	}
	defer store.Close(ctx)

	embedClient, err := buildEmbedder(cfg, logger)
	if err != nil {
		return err
	}
	defer embedClient.Close()

	groupID := scope.GroupID()
	entities, err := store.QueryEntities(ctx, groupID, driver.EntityFilter{})
	if err != nil {
		return fmt.Errorf("list entities: %w", err)
	}

	byID := make(map[string]*types.Entity, len(entities))
	for _, ent := range entities {
		byID[ent.ID] = ent
	}

	registry := jobs.NewRegistry()
	err = registry.Register("reembed-entities", func(ctx context.Context, job jobs.Job) error {
		var payload backfillPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return &types.ValidationError{Field: "payload", Reason: err.Error()}
		}

		batch := make([]*types.Entity, 0, len(payload.EntityIDs))
		texts := make([]string, 0, len(payload.EntityIDs))
		for _, id := range payload.EntityIDs {
			ent, ok := byID[id]
			if !ok {
				continue
			}
			text := ent.Name
			if ent.Summary != "" {
				text += ": " + ent.Summary
			}
			batch = append(batch, ent)
			texts = append(texts, text)
		}
		if len(batch) == 0 {
			return nil
		}

		vectors, err := embedClient.Embed(ctx, texts)
		if err != nil {
			return err
		}
		for i, ent := range batch {
			ent.Embedding = vectors[i]
		}
		return store.UpsertEntities(ctx, batch)
	})
	if err != nil {
		return err
	}

	var queue []jobs.Job
	for start := 0; start < len(entities); start += backfillBatch {
		end := start + backfillBatch
		if end > len(entities) {
			end = len(entities)
		}
		ids := make([]string, 0, end-start)
		for _, ent := range entities[start:end] {
			ids = append(ids, ent.ID)
		}
		payload, err := json.Marshal(backfillPayload{EntityIDs: ids})
		if err != nil {
			return err
		}
		queue = append(queue, jobs.Job{
			ID:      fmt.Sprintf("reembed-%s-%d", groupID, start),
			Kind:    "reembed-entities",
			GroupID: groupID,
			Payload: payload,
		})
	}

	runner := jobs.NewRunner(registry, cfg.Jobs.MaxConcurrency, logger)
	if err := runner.RunBatch(ctx, queue); err != nil {
		return err
	}
	logger.Info("backfill complete", "scope", scope.String(), "entities", len(entities), "batches", len(queue))
	return nil
}
