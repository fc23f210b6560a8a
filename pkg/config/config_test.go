package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "bolt://localhost:7687", cfg.Neo4j.URI)
	assert.Equal(t, 1536, cfg.Embedding.Dimensions)
	assert.Equal(t, 2000, cfg.Retrieval.BudgetMS)
	assert.InDelta(t, 0.6, cfg.Retrieval.GraphBudgetFraction, 1e-9)
	assert.InDelta(t, 0.90, cfg.Resolution.High, 1e-9)
	assert.InDelta(t, 0.60, cfg.Resolution.Low, 1e-9)
	assert.Equal(t, 4, cfg.Ingestion.MaxConcurrency)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("NEO4J_URI", "bolt://graph.internal:7687")
	t.Setenv("POSTGRES_DSN", "postgres://pg.internal/dealgraph")
	t.Setenv("SERVER_PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "bolt://graph.internal:7687", cfg.Neo4j.URI)
	assert.Equal(t, "postgres://pg.internal/dealgraph", cfg.Postgres.DSN)
	assert.Equal(t, 9090, cfg.Server.Port)
}
