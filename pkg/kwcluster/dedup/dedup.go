// Package dedup removes exact duplicates and groups near-duplicate
// keywords by normalized edit-distance similarity.
package dedup

import (
	"strings"

	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/keyword"
)

// DefaultSimilarityThreshold is the normalized similarity at or above
// which two phrases are considered near-duplicates.
const DefaultSimilarityThreshold = 0.8

// Config controls near-duplicate grouping.
type Config struct {
	SimilarityThreshold float64
}

// DefaultConfig returns the dedup defaults.
func DefaultConfig() Config {
	return Config{SimilarityThreshold: DefaultSimilarityThreshold}
}

// Result holds the surviving unique records plus informational groups of
// near-duplicate phrases. Groups of size 1 are never reported.
type Result struct {
	Unique        []keyword.Record
	SimilarGroups [][]keyword.Record
}

// Deduplicator groups keywords by textual similarity.
type Deduplicator struct {
	cfg Config
}

// New creates a Deduplicator with the given config.
func New(cfg Config) *Deduplicator {
	if cfg.SimilarityThreshold <= 0 || cfg.SimilarityThreshold > 1 {
		cfg.SimilarityThreshold = DefaultSimilarityThreshold
	}
	return &Deduplicator{cfg: cfg}
}

// Deduplicate runs the exact pass then the near-duplicate pass.
//
// Exact pass: group by case-insensitive cleaned phrase, keep the first
// occurrence, preserving input order. Near pass: greedy single-link over
// the unique records in original order; each unclaimed anchor collects
// all later unclaimed records whose similarity meets the threshold.
// O(n²) worst case.
func (d *Deduplicator) Deduplicate(records []keyword.Record) Result {
	unique := exactPass(records)
	groups := d.nearPass(unique)
	return Result{Unique: unique, SimilarGroups: groups}
}

func exactPass(records []keyword.Record) []keyword.Record {
	seen := make(map[string]struct{}, len(records))
	out := make([]keyword.Record, 0, len(records))
	for _, r := range records {
		key := strings.ToLower(r.CleanedPhrase)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, r)
	}
	return out
}

func (d *Deduplicator) nearPass(unique []keyword.Record) [][]keyword.Record {
	claimed := make([]bool, len(unique))
	var groups [][]keyword.Record

	for i := range unique {
		if claimed[i] {
			continue
		}
		group := []keyword.Record{unique[i]}
		for j := i + 1; j < len(unique); j++ {
			if claimed[j] {
				continue
			}
			if Similarity(unique[i].CleanedPhrase, unique[j].CleanedPhrase) >= d.cfg.SimilarityThreshold {
				claimed[j] = true
				group = append(group, unique[j])
			}
		}
		if len(group) > 1 {
			claimed[i] = true
			groups = append(groups, group)
		}
	}
	return groups
}

// Similarity is normalized edit-distance similarity:
// 1 − levenshtein(a,b) / max(len(a),len(b)). Two empty strings are
// identical.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ra, rb))/float64(maxLen)
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min3(curr[j-1]+1, prev[j]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}
