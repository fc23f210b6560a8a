// Package jobs provides the background job registry and runner used for
// deferred pipeline work: re-embedding after a model change, entity
// resolution sweeps, schema migrations. Job kinds map to handlers through
// an explicit registry built at startup, so an unknown kind is a
// configuration error surfaced immediately rather than a silently dropped
// message.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sellside/dealgraph/pkg/types"
)

// Job is one unit of deferred work.
type Job struct {
	ID         string          `json:"id"`
	Kind       string          `json:"kind"`
	GroupID    string          `json:"group_id"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Handler processes one job. Handlers must be safe for concurrent use.
type Handler func(ctx context.Context, job Job) error

// Registry maps job kinds to handlers. Registration happens once at
// startup; dispatch is read-only after that.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds a handler to a kind. Registering the same kind twice is a
// programming error and fails loudly.
func (r *Registry) Register(kind string, handler Handler) error {
	if kind == "" {
		return &types.ValidationError{Field: "kind", Reason: "must not be empty"}
	}
	if handler == nil {
		return &types.ValidationError{Field: "handler", Reason: "must not be nil"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[kind]; exists {
		return fmt.Errorf("job kind %q already registered", kind)
	}
	r.handlers[kind] = handler
	return nil
}

// Kinds returns the registered kinds, for the health endpoint.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.handlers))
	for kind := range r.handlers {
		kinds = append(kinds, kind)
	}
	return kinds
}

func (r *Registry) handler(kind string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	return h, ok
}

// Runner executes jobs against a registry with bounded concurrency and
// per-id idempotency: a job id that already ran (successfully) is skipped,
// so redelivery from an at-least-once queue is harmless.
type Runner struct {
	registry *Registry
	logger   *slog.Logger
	limit    int

	mu   sync.Mutex
	done map[string]struct{}
}

func NewRunner(registry *Registry, limit int, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if limit <= 0 {
		limit = 4
	}
	return &Runner{
		registry: registry,
		logger:   logger,
		limit:    limit,
		done:     make(map[string]struct{}),
	}
}

// Run dispatches one job. Unknown kinds are validation errors; completed
// ids are no-ops.
func (r *Runner) Run(ctx context.Context, job Job) error {
	if job.ID == "" {
		return &types.ValidationError{Field: "job.id", Reason: "must not be empty"}
	}
	handler, ok := r.registry.handler(job.Kind)
	if !ok {
		return &types.ValidationError{Field: "job.kind", Reason: fmt.Sprintf("unknown job kind %q", job.Kind)}
	}

	r.mu.Lock()
	if _, seen := r.done[job.ID]; seen {
		r.mu.Unlock()
		r.logger.Debug("skipping completed job", "job_id", job.ID, "kind", job.Kind)
		return nil
	}
	r.mu.Unlock()

	start := time.Now()
	if err := handler(ctx, job); err != nil {
		r.logger.Error("job failed", "job_id", job.ID, "kind", job.Kind, "error", err)
		return err
	}

	r.mu.Lock()
	r.done[job.ID] = struct{}{}
	r.mu.Unlock()

	r.logger.Info("job completed", "job_id", job.ID, "kind", job.Kind,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

// RunBatch executes jobs concurrently, at most limit at a time. The first
// error cancels the remaining jobs.
func (r *Runner) RunBatch(ctx context.Context, batch []Job) error {
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(r.limit)
	for _, job := range batch {
		job := job
		group.Go(func() error {
			return r.Run(ctx, job)
		})
	}
	return group.Wait()
}
