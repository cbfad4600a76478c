// Package score ranks keywords for content planning. Each keyword gets a
// weighted blend of volume, competition, cluster relevance, and cluster
// coherence, damped by difficulty, then a priority tier.
package score

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/internalerr"
	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/keyword"
)

// Tier thresholds over the [0,1]-scaled priority score.
const (
	TierHighThreshold   = 0.8
	TierMediumThreshold = 0.5
)

// Weights defines the scoring blend. They must sum to 1.
type Weights struct {
	Volume      float64 `yaml:"volume"`
	Competition float64 `yaml:"competition"`
	Relevance   float64 `yaml:"relevance"`
	Coherence   float64 `yaml:"coherence"`
}

// DefaultWeights returns the documented default blend.
func DefaultWeights() Weights {
	return Weights{Volume: 0.35, Competition: 0.25, Relevance: 0.25, Coherence: 0.15}
}

// Validate checks that the weights are non-negative and sum to 1.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"volume": w.Volume, "competition": w.Competition,
		"relevance": w.Relevance, "coherence": w.Coherence,
	} {
		if v < 0 {
			return fmt.Errorf("%w: negative %s weight", internalerr.ErrInvalidConfig, name)
		}
	}
	sum := w.Volume + w.Competition + w.Relevance + w.Coherence
	if math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("%w: scoring weights sum to %.4f, want 1", internalerr.ErrInvalidConfig, sum)
	}
	return nil
}

// Breakdown exposes the scored components for one keyword.
type Breakdown struct {
	Volume      float64
	Competition float64
	Relevance   float64
	Coherence   float64
	Base        float64
	Difficulty  float64
	Priority    float64
}

// Scorer computes priority scores against a fixed cluster set.
type Scorer struct {
	weights Weights
}

// NewScorer creates a Scorer. Invalid weights fall back to the defaults.
func NewScorer(w Weights) *Scorer {
	if err := w.Validate(); err != nil {
		w = DefaultWeights()
	}
	return &Scorer{weights: w}
}

// Score fills priority fields on every record and returns the records
// sorted by priority descending, ties broken by volume then phrase so
// output order is stable for identical inputs.
func (s *Scorer) Score(records []keyword.Record, clusters []keyword.Cluster) []keyword.Record {
	coherenceByID := make(map[int]float64, len(clusters))
	for _, c := range clusters {
		coherenceByID[c.ID] = c.Coherence
	}

	maxVolume := 0
	for _, r := range records {
		if v := r.Volume(); v > maxVolume {
			maxVolume = v
		}
	}

	out := make([]keyword.Record, len(records))
	for i, r := range records {
		b := s.Breakdown(r, coherenceByID[clusterID(r)])
		p := b.Priority
		r.PriorityScore = &p
		r.PriorityTier = tierFor(p)

		// Business value and opportunity share one formula; both are
		// normalized against the corpus max volume so they live on the
		// same [0,1] scale as the priority score.
		bv := 0.0
		if maxVolume > 0 {
			bv = (float64(r.Volume()) / float64(maxVolume)) * (1 - r.CompetitionOrZero())
		}
		r.BusinessValue = bv
		r.OpportunityScore = bv

		out[i] = r
	}

	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := *out[i].PriorityScore, *out[j].PriorityScore
		if pi != pj {
			return pi > pj
		}
		if out[i].Volume() != out[j].Volume() {
			return out[i].Volume() > out[j].Volume()
		}
		return out[i].CleanedPhrase < out[j].CleanedPhrase
	})
	return out
}

// Breakdown scores a single keyword against its cluster's coherence.
//
// volumeScore = log10(volume+1)/5 capped at 1; competitionScore = 1 −
// competition; relevanceScore = fraction of cluster-name tokens appearing
// in the phrase; base = Σ(weight·score); priority = base·(1−difficulty).
func (s *Scorer) Breakdown(r keyword.Record, clusterCoherence float64) Breakdown {
	b := Breakdown{
		Volume:      math.Min(math.Log10(float64(r.Volume())+1)/5, 1),
		Competition: 1 - r.CompetitionOrZero(),
		Relevance:   relevance(r.ClusterName, r.CleanedPhrase),
		Coherence:   clusterCoherence,
		Difficulty:  r.CompetitionOrZero(),
	}
	b.Base = s.weights.Volume*b.Volume +
		s.weights.Competition*b.Competition +
		s.weights.Relevance*b.Relevance +
		s.weights.Coherence*b.Coherence
	b.Priority = b.Base * (1 - b.Difficulty)
	return b
}

// relevance is the fraction of cluster-name tokens that appear as
// substrings of the phrase.
func relevance(clusterName, phrase string) float64 {
	tokens := strings.Fields(clusterName)
	if len(tokens) == 0 {
		return 0
	}
	matched := 0
	for _, tok := range tokens {
		if strings.Contains(phrase, tok) {
			matched++
		}
	}
	return float64(matched) / float64(len(tokens))
}

func tierFor(priority float64) keyword.Tier {
	switch {
	case priority >= TierHighThreshold:
		return keyword.TierHigh
	case priority >= TierMediumThreshold:
		return keyword.TierMedium
	default:
		return keyword.TierLow
	}
}

func clusterID(r keyword.Record) int {
	if r.ClusterID == nil {
		return -1
	}
	return *r.ClusterID
}

// AttachMembers rebuilds each cluster's member list from scored records
// so cluster views carry the priority fields. Member order follows the
// scored (priority-descending) order.
func AttachMembers(clusters []keyword.Cluster, scored []keyword.Record) []keyword.Cluster {
	out := make([]keyword.Cluster, len(clusters))
	byID := make(map[int]*keyword.Cluster, len(clusters))
	for i, c := range clusters {
		c.Members = nil
		out[i] = c
		byID[c.ID] = &out[i]
	}
	for _, r := range scored {
		if r.ClusterID == nil {
			continue
		}
		if c, ok := byID[*r.ClusterID]; ok {
			c.Members = append(c.Members, r)
		}
	}
	return out
}
