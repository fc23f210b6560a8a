package resolution

import (
	"regexp"
	"sort"
	"strings"
)

var (
	punctRe      = regexp.MustCompile(`[^\pL\pN' ]+`)
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// legalSuffixes are trailing corporate designators stripped before name
// comparison. "Acme Corp" and "Acme, Inc." both normalize to "acme".
var legalSuffixes = map[string]struct{}{
	"corp":         {},
	"corporation":  {},
	"inc":          {},
	"incorporated": {},
	"ltd":          {},
	"limited":      {},
	"llc":          {},
	"llp":          {},
	"lp":           {},
	"plc":          {},
	"gmbh":         {},
	"ag":           {},
	"sa":           {},
	"co":           {},
	"company":      {},
	"holdings":     {},
	"group":        {},
}

// metricQualifiers is the protected-metric denylist: qualifier terms whose
// presence changes what a metric means. Two metric names that differ in
// these terms are never auto-merged, whatever their string similarity.
var metricQualifiers = map[string]struct{}{
	"net":        {},
	"gross":      {},
	"adjusted":   {},
	"normalized": {},
	"pro":        {}, // "pro forma" after tokenization
	"forma":      {},
	"organic":    {},
	"recurring":  {},
	"diluted":    {},
	"basic":      {},
	"trailing":   {},
	"forward":    {},
}

// NormalizeName lowercases, strips punctuation and trailing legal suffixes,
// and collapses whitespace. It is the canonical form used for equality and
// similarity comparisons.
func NormalizeName(name string) string {
	lowered := strings.ToLower(name)
	cleaned := punctRe.ReplaceAllString(lowered, " ")
	cleaned = whitespaceRe.ReplaceAllString(strings.TrimSpace(cleaned), " ")

	tokens := strings.Fields(cleaned)
	for len(tokens) > 1 {
		last := tokens[len(tokens)-1]
		if _, ok := legalSuffixes[last]; !ok {
			break
		}
		tokens = tokens[:len(tokens)-1]
	}
	return strings.Join(tokens, " ")
}

// qualifierSet extracts the protected qualifier terms present in a
// normalized metric name, as a sorted joined key for comparison.
func qualifierSet(normalized string) string {
	var found []string
	for _, tok := range strings.Fields(normalized) {
		if _, ok := metricQualifiers[tok]; ok {
			found = append(found, tok)
		}
	}
	sort.Strings(found)
	return strings.Join(found, "|")
}

// jaccard computes set overlap between two string slices after
// normalization. Empty sets have zero similarity.
func jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]struct{}, len(a))
	for _, s := range a {
		setA[NormalizeName(s)] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, s := range b {
		setB[NormalizeName(s)] = struct{}{}
	}

	intersection := 0
	for s := range setA {
		if _, ok := setB[s]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// trigramSimilarity computes Jaccard overlap of character 3-gram shingles of
// two normalized names. It tolerates small spelling variations exact
// equality misses.
func trigramSimilarity(a, b string) float64 {
	sa := shingles(a)
	sb := shingles(b)
	if len(sa) == 0 || len(sb) == 0 {
		return 0
	}

	setA := make(map[string]struct{}, len(sa))
	for _, s := range sa {
		setA[s] = struct{}{}
	}
	intersection := 0
	setB := make(map[string]struct{}, len(sb))
	for _, s := range sb {
		if _, seen := setB[s]; seen {
			continue
		}
		setB[s] = struct{}{}
		if _, ok := setA[s]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func shingles(normalized string) []string {
	cleaned := strings.ReplaceAll(normalized, " ", "")
	if len(cleaned) < 3 {
		if cleaned == "" {
			return nil
		}
		return []string{cleaned}
	}
	out := make([]string, 0, len(cleaned)-2)
	for i := 0; i+3 <= len(cleaned); i++ {
		out = append(out, cleaned[i:i+3])
	}
	return out
}
