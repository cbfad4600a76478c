package score

import (
	"math"
	"testing"

	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/keyword"
)

func intp(v int) *int           { return &v }
func floatp(v float64) *float64 { return &v }

func TestWeightsValidate(t *testing.T) {
	if err := DefaultWeights().Validate(); err != nil {
		t.Fatalf("default weights invalid: %v", err)
	}
	bad := Weights{Volume: 0.5, Competition: 0.5, Relevance: 0.5, Coherence: 0.5}
	if err := bad.Validate(); err == nil {
		t.Errorf("weights summing to 2 should fail validation")
	}
	negative := Weights{Volume: -0.5, Competition: 0.5, Relevance: 0.5, Coherence: 0.5}
	if err := negative.Validate(); err == nil {
		t.Errorf("negative weight should fail validation")
	}
}

func TestBreakdownComponents(t *testing.T) {
	s := NewScorer(DefaultWeights())
	id := 0
	r := keyword.Record{
		CleanedPhrase: "buy running shoes",
		SearchVolume:  intp(9999),
		Competition:   floatp(0.3),
		ClusterID:     &id,
		ClusterName:   "run shoe",
	}
	b := s.Breakdown(r, 0.8)

	wantVolume := math.Log10(10000) / 5 // 0.8
	if math.Abs(b.Volume-wantVolume) > 1e-9 {
		t.Errorf("volume score = %f, want %f", b.Volume, wantVolume)
	}
	if math.Abs(b.Competition-0.7) > 1e-9 {
		t.Errorf("competition score = %f, want 0.7", b.Competition)
	}
	if b.Relevance != 1 {
		t.Errorf("relevance = %f, want 1 (both name tokens are substrings)", b.Relevance)
	}
	if b.Coherence != 0.8 {
		t.Errorf("coherence = %f, want 0.8", b.Coherence)
	}
	if math.Abs(b.Priority-b.Base*0.7) > 1e-9 {
		t.Errorf("priority = %f, want base·(1−difficulty) = %f", b.Priority, b.Base*0.7)
	}
}

func TestVolumeScoreCapped(t *testing.T) {
	s := NewScorer(DefaultWeights())
	b := s.Breakdown(keyword.Record{SearchVolume: intp(10_000_000)}, 0)
	if b.Volume > 1 {
		t.Errorf("volume score should cap at 1, got %f", b.Volume)
	}
}

func TestMissingFieldsDegrade(t *testing.T) {
	s := NewScorer(DefaultWeights())
	b := s.Breakdown(keyword.Record{CleanedPhrase: "orphan keyword"}, 0)
	if b.Volume != 0 {
		t.Errorf("nil volume should score 0, got %f", b.Volume)
	}
	if b.Difficulty != 0 {
		t.Errorf("nil competition means difficulty 0, got %f", b.Difficulty)
	}
	if b.Competition != 1 {
		t.Errorf("nil competition means competition score 1, got %f", b.Competition)
	}
}

func TestRelevance(t *testing.T) {
	tests := []struct {
		name, phrase string
		want         float64
	}{
		{"run shoe", "buy running shoes", 1},
		{"run shoe", "running gear", 0.5},
		{"insurance", "running gear", 0},
		{"", "anything", 0},
	}
	for _, tt := range tests {
		if got := relevance(tt.name, tt.phrase); got != tt.want {
			t.Errorf("relevance(%q, %q) = %f, want %f", tt.name, tt.phrase, got, tt.want)
		}
	}
}

func TestScoreSortedAndTiered(t *testing.T) {
	s := NewScorer(DefaultWeights())
	id := 0
	records := []keyword.Record{
		{CleanedPhrase: "hard keyword", SearchVolume: intp(100), Competition: floatp(0.95), ClusterID: &id, ClusterName: "hard keyword"},
		{CleanedPhrase: "easy keyword", SearchVolume: intp(90000), Competition: floatp(0.05), ClusterID: &id, ClusterName: "easy keyword"},
		{CleanedPhrase: "middle keyword", SearchVolume: intp(5000), Competition: floatp(0.5), ClusterID: &id, ClusterName: "middle keyword"},
	}
	clusters := []keyword.Cluster{{ID: 0, Coherence: 0.9}}

	out := s.Score(records, clusters)

	for i := 1; i < len(out); i++ {
		if *out[i-1].PriorityScore < *out[i].PriorityScore {
			t.Fatalf("output not sorted by priority descending")
		}
	}

	// Tiers must never increase in priority down the ranking.
	rank := map[keyword.Tier]int{keyword.TierHigh: 2, keyword.TierMedium: 1, keyword.TierLow: 0}
	for i := 1; i < len(out); i++ {
		if rank[out[i].PriorityTier] > rank[out[i-1].PriorityTier] {
			t.Errorf("tier ordering violated at %d: %s above %s", i, out[i].PriorityTier, out[i-1].PriorityTier)
		}
	}

	if out[0].CleanedPhrase != "easy keyword" {
		t.Errorf("highest volume + lowest competition should rank first, got %q", out[0].CleanedPhrase)
	}
}

func TestBusinessValueNormalized(t *testing.T) {
	s := NewScorer(DefaultWeights())
	records := []keyword.Record{
		{CleanedPhrase: "top", SearchVolume: intp(1000), Competition: floatp(0.0)},
		{CleanedPhrase: "half", SearchVolume: intp(500), Competition: floatp(0.5)},
	}
	out := s.Score(records, nil)
	for _, r := range out {
		if r.BusinessValue < 0 || r.BusinessValue > 1 {
			t.Errorf("business value %f not normalized to [0,1]", r.BusinessValue)
		}
		if r.OpportunityScore != r.BusinessValue {
			t.Errorf("opportunity must reuse the business value formula")
		}
	}
}

func TestZeroVolumeCorpusGuard(t *testing.T) {
	s := NewScorer(DefaultWeights())
	out := s.Score([]keyword.Record{{CleanedPhrase: "a"}, {CleanedPhrase: "b"}}, nil)
	for _, r := range out {
		if math.IsNaN(r.BusinessValue) || math.IsInf(r.BusinessValue, 0) {
			t.Errorf("zero max volume must short-circuit to 0, got %f", r.BusinessValue)
		}
		if r.BusinessValue != 0 {
			t.Errorf("expected 0 business value, got %f", r.BusinessValue)
		}
	}
}

func TestDeterministicTieBreak(t *testing.T) {
	s := NewScorer(DefaultWeights())
	records := []keyword.Record{
		{CleanedPhrase: "beta", SearchVolume: intp(100)},
		{CleanedPhrase: "alpha", SearchVolume: intp(100)},
	}
	out := s.Score(records, nil)
	if out[0].CleanedPhrase != "alpha" {
		t.Errorf("equal scores should tie-break by phrase, got %q first", out[0].CleanedPhrase)
	}
}

func TestAttachMembers(t *testing.T) {
	cid0, cid1 := 0, 1
	p1, p2 := 0.9, 0.4
	scored := []keyword.Record{
		{CleanedPhrase: "running shoes", ClusterID: &cid0, PriorityScore: &p1},
		{CleanedPhrase: "trail shoes", ClusterID: &cid0, PriorityScore: &p2},
		{CleanedPhrase: "stray", PriorityScore: &p2},
	}
	clusters := AttachMembers([]keyword.Cluster{
		{ID: 0, Name: "shoes", Members: []keyword.Record{{CleanedPhrase: "stale"}}},
		{ID: 1, Name: "empty"},
	}, scored)

	if len(clusters[0].Members) != 2 {
		t.Fatalf("cluster 0 has %d members, want 2", len(clusters[0].Members))
	}
	if clusters[0].Members[0].PriorityScore == nil {
		t.Error("members must carry scored fields")
	}
	if len(clusters[1].Members) != 0 {
		t.Errorf("cluster %d should have no members", cid1)
	}
}
