package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sellside/dealgraph/pkg/config"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Create indexes and constraints in both backing stores",
	Long: `Create the Neo4j constraints and vector index, and the Postgres table and
HNSW index, if they do not already exist. Safe to run repeatedly.`,
	RunE: runSchema,
}

func init() {
	rootCmd.AddCommand(schemaCmd)
}

func runSchema(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := buildLogger(cfg)
	if err != nil {
		return err
	}

	ctx := context.Background()
	client, err := buildClient(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer client.Close(ctx)

	if err := client.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	logger.Info("schema ensured")
	return nil
}
