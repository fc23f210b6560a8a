package search

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/sellside/dealgraph/pkg/types"
)

// Fingerprint returns a stable content hash used for cross-path dedup:
// SHA-256 over the lowercased content with all whitespace runs collapsed to
// a single space. Near-identical text from the graph and fast paths
// collides on purpose.
func Fingerprint(content string) string {
	normalized := strings.ToLower(strings.Join(strings.Fields(content), " "))
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Merge combines candidates from both retrieval paths, dropping duplicates
// by fingerprint. On a collision the higher-scored item survives; a graph
// item beats a fast-path item at equal score, since it carries entity
// provenance. Input order is otherwise preserved.
func Merge(graph, fastpath []types.RetrievedItem) []types.RetrievedItem {
	out := make([]types.RetrievedItem, 0, len(graph)+len(fastpath))
	byPrint := make(map[string]int, len(graph)+len(fastpath))

	keep := func(item types.RetrievedItem) {
		print := Fingerprint(item.Content)
		idx, seen := byPrint[print]
		if !seen {
			byPrint[print] = len(out)
			out = append(out, item)
			return
		}
		if item.Score > out[idx].Score {
			out[idx] = item
		}
	}

	for _, item := range graph {
		keep(item)
	}
	for _, item := range fastpath {
		keep(item)
	}
	return out
}
