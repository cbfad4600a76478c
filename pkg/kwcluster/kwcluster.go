// Package kwcluster turns a flat list of raw keyword records into
// cleaned, deduplicated keywords partitioned into named topic clusters
// with per-keyword priority scores.
package kwcluster

import (
	"io"
	"log/slog"

	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/clean"
	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/cluster"
	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/dedup"
	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/embed"
	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/keyword"
	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/score"
)

// Options configures one Engine. Zero values select defaults.
type Options struct {
	Clean   clean.Config
	Dedup   dedup.Config
	Embed   embed.Config
	Cluster cluster.Config
	Weights score.Weights
	Logger  *slog.Logger
}

// DefaultOptions returns the configuration all components ship with.
func DefaultOptions() Options {
	return Options{
		Clean:   clean.DefaultConfig(),
		Dedup:   dedup.DefaultConfig(),
		Embed:   embed.DefaultConfig(),
		Cluster: cluster.DefaultConfig(),
		Weights: score.DefaultWeights(),
	}
}

// Stats summarizes one Process call.
type Stats struct {
	InputKeywords     int
	CleanedKeywords   int
	UniqueKeywords    int
	DuplicatesRemoved int
	Clusters          int
	Warnings          int
}

// Result is the output of Process.
type Result struct {
	Keywords []keyword.Record
	Clusters []keyword.Cluster
	Warnings []clean.ParseWarning
	Stats    Stats
}

// Engine is the single-shot pipeline facade.
type Engine struct {
	cleaner *clean.Cleaner
	dedup   *dedup.Deduplicator
	cluster *cluster.Engine
	scorer  *score.Scorer
	logger  *slog.Logger
}

// New wires the pipeline stages from options.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{
		cleaner: clean.New(opts.Clean),
		dedup:   dedup.New(opts.Dedup),
		cluster: cluster.NewEngine(opts.Cluster, embed.NewBuilder(opts.Embed)),
		scorer:  score.NewScorer(opts.Weights),
		logger:  logger,
	}
}

// Process runs the full pipeline over raw records in one pass. Empty
// input yields an empty result, never an error.
func (e *Engine) Process(raw []keyword.Raw) Result {
	cleaned, warnings := e.cleaner.Clean(raw)
	e.logger.Debug("cleaned", "input", len(raw), "kept", len(cleaned), "warnings", len(warnings))

	deduped := e.dedup.Deduplicate(cleaned)
	clusters, annotated := e.cluster.Cluster(deduped.Unique)
	scored := e.scorer.Score(annotated, clusters)
	clusters = score.AttachMembers(clusters, scored)

	e.logger.Info("pipeline done",
		"keywords", len(scored), "clusters", len(clusters), "removed", len(cleaned)-len(deduped.Unique))
	return Result{
		Keywords: scored,
		Clusters: clusters,
		Warnings: warnings,
		Stats: Stats{
			InputKeywords:     len(raw),
			CleanedKeywords:   len(cleaned),
			UniqueKeywords:    len(deduped.Unique),
			DuplicatesRemoved: len(cleaned) - len(deduped.Unique),
			Clusters:          len(clusters),
			Warnings:          len(warnings),
		},
	}
}

// Process runs the pipeline with default options. Convenience for
// one-off callers.
func Process(raw []keyword.Raw) Result {
	return New(DefaultOptions()).Process(raw)
}
