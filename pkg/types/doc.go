// Package types defines the shared data model for the deal knowledge graph:
// tenant scoping, episodes, entity and edge variants, temporal facts,
// fast-path chunks, citations, and the error kinds used across the pipeline.
//
// Every node and edge carries a group ID derived from a TenantScope. Queries
// always filter by group ID, so cross-tenant reads are impossible by
// construction rather than by convention.
//
// Edge kinds are validated against a static endpoint table at write time:
// an edge between entity kinds that the table does not permit is a
// ValidationError, never a runtime graph error.
package types
