// Package search holds the post-retrieval pipeline stages shared by both
// retrieval paths: content fingerprinting and merge/dedup, the supersession
// and contradiction filter, and citation derivation.
//
// The stages are pure functions over retrieved items so the coordinator can
// compose them in either order and tests can exercise them without a store.
package search
