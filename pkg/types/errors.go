package types

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the pipeline.
var (
	// ErrEmptyGroupID indicates a read or write was attempted without a
	// tenant scope.
	ErrEmptyGroupID = errors.New("group_id cannot be empty")
	// ErrEmptyContent indicates an episode or chunk with no content.
	ErrEmptyContent = errors.New("content cannot be empty")
	// ErrEmptyQuery indicates a retrieval call with an empty query.
	ErrEmptyQuery = errors.New("query cannot be empty")
	// ErrNotFound indicates the requested node, edge or fact does not exist
	// within the caller's scope.
	ErrNotFound = errors.New("not found")
)

// ConnectionError indicates one of the backing stores or upstream services
// was unreachable. Ingestion aborts without partial writes; retrieval falls
// back to the other path or returns a degraded result.
type ConnectionError struct {
	Service string // e.g. "neo4j", "postgres", "embedder", "reranker"
	Op      string
	Err     error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s unreachable during %s: %v", e.Service, e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Is reports a match against any other ConnectionError, so
// errors.Is(err, &ConnectionError{}) works on wrapped errors.
func (e *ConnectionError) Is(target error) bool {
	_, ok := target.(*ConnectionError)
	return ok
}

// ValidationError indicates malformed input: an edge between disallowed
// entity kinds, a malformed tenant scope, or extraction output that names an
// unknown type. Rejected before any write, never partially applied.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	_, ok := target.(*ValidationError)
	return ok
}

// RateLimitError indicates upstream throttling by the embedding or LLM
// provider. Callers retry with backoff, bounded attempts.
type RateLimitError struct {
	Service string
	Err     error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s rate limited: %v", e.Service, e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

func (e *RateLimitError) Is(target error) bool {
	_, ok := target.(*RateLimitError)
	return ok
}

// EmbeddingError indicates the embedding service failed for a reason other
// than throttling. It is not retried.
type EmbeddingError struct {
	Err error
}

func (e *EmbeddingError) Error() string {
	return fmt.Sprintf("embedding failed: %v", e.Err)
}

func (e *EmbeddingError) Unwrap() error { return e.Err }

func (e *EmbeddingError) Is(target error) bool {
	_, ok := target.(*EmbeddingError)
	return ok
}

// IsConnectionError reports whether err is or wraps a ConnectionError.
func IsConnectionError(err error) bool {
	return errors.Is(err, &ConnectionError{})
}

// IsValidationError reports whether err is or wraps a ValidationError.
func IsValidationError(err error) bool {
	return errors.Is(err, &ValidationError{})
}

// IsRateLimitError reports whether err is or wraps a RateLimitError.
func IsRateLimitError(err error) bool {
	return errors.Is(err, &RateLimitError{})
}
