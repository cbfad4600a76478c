// Package config loads pipeline configuration and stopword lists from
// YAML files.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/batch"
	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/clean"
	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/cluster"
	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/dedup"
	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/embed"
	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/internalerr"
	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/score"
)

// Config is the assembled pipeline configuration.
type Config struct {
	Clean struct {
		MinQuality  float64 `yaml:"min_quality"`
		StripMarkup bool    `yaml:"strip_markup"`
	} `yaml:"clean"`
	Dedup struct {
		SimilarityThreshold float64 `yaml:"similarity_threshold"`
	} `yaml:"dedup"`
	Embed struct {
		StoplistPath    string  `yaml:"stoplist_path"`
		RemoveStopwords bool    `yaml:"remove_stopwords"`
		Stem            bool    `yaml:"stem"`
		SemanticWeight  float64 `yaml:"semantic_weight"`
	} `yaml:"embed"`
	Cluster struct {
		ForcedK int   `yaml:"forced_k"`
		Seed    int64 `yaml:"seed"`
	} `yaml:"cluster"`
	Score score.Weights `yaml:"score"`
	Batch batch.Config  `yaml:"batch"`
}

// Default returns the configuration all components ship with.
func Default() Config {
	var cfg Config

	cl := clean.DefaultConfig()
	cfg.Clean.MinQuality = cl.MinQuality
	cfg.Clean.StripMarkup = cl.StripMarkup

	cfg.Dedup.SimilarityThreshold = dedup.DefaultConfig().SimilarityThreshold

	em := embed.DefaultConfig()
	cfg.Embed.RemoveStopwords = em.RemoveStopwords
	cfg.Embed.Stem = em.Stem
	cfg.Embed.SemanticWeight = em.SemanticWeight

	cfg.Cluster.Seed = cluster.DefaultConfig().Seed
	cfg.Score = score.DefaultWeights()
	cfg.Batch = batch.DefaultConfig()
	return cfg
}

// Load reads a YAML config file over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges the pipeline depends on.
func (c Config) Validate() error {
	if c.Clean.MinQuality < 0 || c.Clean.MinQuality > 1 {
		return fmt.Errorf("%w: clean.min_quality %v outside [0,1]", internalerr.ErrInvalidConfig, c.Clean.MinQuality)
	}
	if c.Dedup.SimilarityThreshold < 0 || c.Dedup.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: dedup.similarity_threshold %v outside [0,1]", internalerr.ErrInvalidConfig, c.Dedup.SimilarityThreshold)
	}
	if c.Embed.SemanticWeight < 0 || c.Embed.SemanticWeight > 1 {
		return fmt.Errorf("%w: embed.semantic_weight %v outside [0,1]", internalerr.ErrInvalidConfig, c.Embed.SemanticWeight)
	}
	if c.Cluster.ForcedK < 0 {
		return fmt.Errorf("%w: cluster.forced_k %d negative", internalerr.ErrInvalidConfig, c.Cluster.ForcedK)
	}
	if c.Batch.BatchSize < 1 {
		return fmt.Errorf("%w: batch.batch_size %d below 1", internalerr.ErrInvalidConfig, c.Batch.BatchSize)
	}
	if err := c.Score.Validate(); err != nil {
		return err
	}
	return nil
}

// CleanConfig converts to the cleaner's config.
func (c Config) CleanConfig() clean.Config {
	return clean.Config{MinQuality: c.Clean.MinQuality, StripMarkup: c.Clean.StripMarkup}
}

// DedupConfig converts to the deduplicator's config.
func (c Config) DedupConfig() dedup.Config {
	return dedup.Config{SimilarityThreshold: c.Dedup.SimilarityThreshold}
}

// EmbedConfig converts to the embedding builder's config, loading the
// stoplist file when one is set.
func (c Config) EmbedConfig() (embed.Config, error) {
	cfg := embed.Config{
		RemoveStopwords: c.Embed.RemoveStopwords,
		Stem:            c.Embed.Stem,
		SemanticWeight:  c.Embed.SemanticWeight,
	}
	if c.Embed.StoplistPath != "" {
		sl, err := LoadStoplist(c.Embed.StoplistPath)
		if err != nil {
			return embed.Config{}, fmt.Errorf("load stoplist: %w", err)
		}
		cfg.Stopwords = sl.Terms
	}
	return cfg, nil
}

// ClusterConfig converts to the clustering engine's config.
func (c Config) ClusterConfig() cluster.Config {
	return cluster.Config{ForcedK: c.Cluster.ForcedK, Seed: c.Cluster.Seed}
}

// Stoplist is a stopword list loaded from YAML.
type Stoplist struct {
	Terms []string `yaml:"terms"`
}

// LoadStoplist loads stopwords from a YAML file.
func LoadStoplist(path string) (*Stoplist, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var sl Stoplist
	if err := yaml.Unmarshal(data, &sl); err != nil {
		return nil, err
	}
	return &sl, nil
}
