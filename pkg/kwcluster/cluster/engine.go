// Package cluster partitions keyword feature vectors into semantically
// coherent topic clusters. It selects its own cluster count by jointly
// evaluating inertia and silhouette quality, runs k-means at the chosen
// k, and names and scores the resulting clusters.
package cluster

import (
	"math/rand"
	"sort"
	"strconv"

	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/dedup"
	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/embed"
	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/keyword"
)

// nameTokens is how many top tokens form a cluster name.
const nameTokens = 3

// Config controls the clustering engine.
type Config struct {
	// ForcedK pins the cluster count; 0 selects automatically.
	ForcedK int
	// Seed makes cluster assignments reproducible across runs.
	Seed int64
}

// DefaultConfig returns the clustering defaults.
func DefaultConfig() Config {
	return Config{Seed: 1}
}

// Engine embeds and clusters a corpus of unique keywords.
type Engine struct {
	cfg     Config
	builder *embed.Builder
}

// NewEngine creates an Engine around an embedding builder. Naming reuses
// the builder's token pipeline, so names and vectors stay consistent.
func NewEngine(cfg Config, builder *embed.Builder) *Engine {
	return &Engine{cfg: cfg, builder: builder}
}

// Cluster partitions the records and writes cluster id/name back onto
// each returned record. Every input record lands in exactly one cluster.
func (e *Engine) Cluster(records []keyword.Record) ([]keyword.Cluster, []keyword.Record) {
	n := len(records)
	if n == 0 {
		return nil, records
	}

	matrix := e.builder.Build(records)

	if n == 1 {
		c := e.buildSingle(records, matrix)
		c.Silhouette = 1.0
		c.Coherence = 1.0
		clusters := []keyword.Cluster{c}
		return clusters, annotate(records, clusters, []int{0})
	}

	rng := rand.New(rand.NewSource(e.cfg.Seed))
	k := e.cfg.ForcedK
	if k <= 0 {
		k = selectK(matrix.Vectors, rng).K
	}
	if k > n {
		k = n
	}

	if k == 1 {
		// Degenerate selection: one cluster, no k-means run.
		clusters := []keyword.Cluster{e.buildSingle(records, matrix)}
		return clusters, annotate(records, clusters, make([]int, n))
	}

	res := runKMeans(matrix.Vectors, k, rng)
	sil := silhouetteScore(matrix.Vectors, res.Assignments, k)

	clusters := make([]keyword.Cluster, k)
	for c := 0; c < k; c++ {
		clusters[c] = keyword.Cluster{ID: c, Centroid: res.Centroids[c]}
	}
	for i, c := range res.Assignments {
		clusters[c].Members = append(clusters[c].Members, records[i])
	}

	for c := range clusters {
		memberTokens := tokensFor(matrix, res.Assignments, c)
		clusters[c].Name = nameFromTokens(memberTokens, clusters[c].Members, c)
		clusters[c].Coherence = coherence(clusters[c].Members)
		// One silhouette per run, attached to every cluster.
		clusters[c].Silhouette = sil
	}

	return clusters, annotate(records, clusters, res.Assignments)
}

func (e *Engine) buildSingle(records []keyword.Record, matrix *embed.Matrix) keyword.Cluster {
	c := keyword.Cluster{
		ID:        0,
		Members:   append([]keyword.Record(nil), records...),
		Coherence: coherence(records),
	}
	if len(matrix.Vectors) > 0 {
		c.Centroid = meanVector(matrix.Vectors)
	}
	c.Name = nameFromTokens(matrix.Tokens, records, 0)
	return c
}

// annotate writes cluster id and name onto a copy of each record.
func annotate(records []keyword.Record, clusters []keyword.Cluster, assignments []int) []keyword.Record {
	out := make([]keyword.Record, len(records))
	for i, r := range records {
		c := assignments[i]
		id := clusters[c].ID
		r.ClusterID = &id
		r.ClusterName = clusters[c].Name
		out[i] = r
	}
	// Keep cluster members in sync with the annotated records.
	for c := range clusters {
		clusters[c].Members = clusters[c].Members[:0]
	}
	for i, r := range out {
		clusters[assignments[i]].Members = append(clusters[assignments[i]].Members, r)
	}
	return out
}

func tokensFor(matrix *embed.Matrix, assignments []int, c int) [][]string {
	var out [][]string
	for i, a := range assignments {
		if a == c {
			out = append(out, matrix.Tokens[i])
		}
	}
	return out
}

// nameFromTokens names a cluster from the top-3 most frequent tokens
// across its member phrases, ties broken by first-seen order.
func nameFromTokens(memberTokens [][]string, members []keyword.Record, id int) string {
	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	order := 0
	for _, tokens := range memberTokens {
		for _, tok := range tokens {
			if _, ok := counts[tok]; !ok {
				firstSeen[tok] = order
				order++
			}
			counts[tok]++
		}
	}

	if len(counts) == 0 {
		// All tokens filtered away; fall back to the first member phrase.
		if len(members) > 0 && members[0].CleanedPhrase != "" {
			return members[0].CleanedPhrase
		}
		return "topic " + strconv.Itoa(id+1)
	}

	tokens := make([]string, 0, len(counts))
	for tok := range counts {
		tokens = append(tokens, tok)
	}
	sort.Slice(tokens, func(i, j int) bool {
		if counts[tokens[i]] != counts[tokens[j]] {
			return counts[tokens[i]] > counts[tokens[j]]
		}
		return firstSeen[tokens[i]] < firstSeen[tokens[j]]
	})
	if len(tokens) > nameTokens {
		tokens = tokens[:nameTokens]
	}

	name := tokens[0]
	for _, t := range tokens[1:] {
		name += " " + t
	}
	return name
}

// coherence is the mean pairwise string similarity over all member-phrase
// pairs; 0 for singleton clusters.
func coherence(members []keyword.Record) float64 {
	if len(members) < 2 {
		return 0
	}
	total := 0.0
	pairs := 0
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			total += dedup.Similarity(members[i].CleanedPhrase, members[j].CleanedPhrase)
			pairs++
		}
	}
	return total / float64(pairs)
}

func meanVector(vectors [][]float64) []float64 {
	out := make([]float64, len(vectors[0]))
	for _, v := range vectors {
		for j, x := range v {
			out[j] += x
		}
	}
	for j := range out {
		out[j] /= float64(len(vectors))
	}
	return out
}
