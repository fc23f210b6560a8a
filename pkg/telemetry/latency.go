package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"

	"github.com/sellside/dealgraph/pkg/types"
)

// LatencySample is one retrieval call's phase breakdown.
type LatencySample struct {
	ID             string    `parquet:"id"`
	Timestamp      time.Time `parquet:"timestamp"`
	GroupID        string    `parquet:"group_id"`
	PathUsed       string    `parquet:"path_used"`
	EmbedMS        int64     `parquet:"embed_ms"`
	GraphSearchMS  int64     `parquet:"graph_search_ms"`
	VectorMS       int64     `parquet:"vector_ms"`
	TotalMS        int64     `parquet:"total_ms"`
	BudgetExceeded bool      `parquet:"budget_exceeded"`
	Degraded       bool      `parquet:"degraded"`
	ItemCount      int       `parquet:"item_count"`
}

// LatencyRecorder buffers retrieval latency samples and writes them to
// parquet in batches. A nil recorder is safe to call; Record becomes a
// no-op, so wiring telemetry stays optional.
type LatencyRecorder struct {
	outputDir string
	mu        sync.Mutex
	buffer    []LatencySample
	batchSize int
}

// NewLatencyRecorder creates the recorder and its output directory.
func NewLatencyRecorder(outputDir string) (*LatencyRecorder, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create telemetry directory: %w", err)
	}
	return &LatencyRecorder{
		outputDir: outputDir,
		batchSize: 256,
		buffer:    make([]LatencySample, 0, 256),
	}, nil
}

// Record buffers one sample.
func (l *LatencyRecorder) Record(groupID string, result *types.RetrievalResult) {
	if l == nil || result == nil {
		return
	}

	sample := LatencySample{
		ID:             uuid.New().String(),
		Timestamp:      time.Now().UTC(),
		GroupID:        groupID,
		PathUsed:       string(result.PathUsed),
		EmbedMS:        result.Latency.EmbedMS,
		GraphSearchMS:  result.Latency.GraphSearchMS,
		VectorMS:       result.Latency.VectorMS,
		TotalMS:        result.Latency.TotalMS,
		BudgetExceeded: result.BudgetExceeded,
		Degraded:       result.Degraded,
		ItemCount:      len(result.Items),
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.buffer = append(l.buffer, sample)
	if len(l.buffer) >= l.batchSize {
		l.flush()
	}
}

// Flush writes any buffered samples, used on shutdown.
func (l *LatencyRecorder) Flush() {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.flush()
}

// flush writes the buffer to a new parquet file. Caller holds the lock.
func (l *LatencyRecorder) flush() {
	if len(l.buffer) == 0 {
		return
	}

	name := fmt.Sprintf("retrieval_latency_%s_%d.parquet", time.Now().Format("20060102_150405"), time.Now().UnixNano())
	path := filepath.Join(l.outputDir, name)

	if err := parquet.WriteFile(path, l.buffer); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write latency parquet file: %v\n", err)
		return
	}
	l.buffer = l.buffer[:0]
}
