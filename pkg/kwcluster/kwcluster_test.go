package kwcluster

import (
	"fmt"
	"testing"

	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/keyword"
)

func TestProcessEmptyInput(t *testing.T) {
	res := Process(nil)
	if len(res.Keywords) != 0 || len(res.Clusters) != 0 {
		t.Fatalf("empty input produced %d keywords, %d clusters", len(res.Keywords), len(res.Clusters))
	}
	if res.Stats.InputKeywords != 0 {
		t.Errorf("stats = %+v", res.Stats)
	}
}

func TestProcessSingleKeyword(t *testing.T) {
	res := Process([]keyword.Raw{{Phrase: "Best Running Shoes", SearchVolume: "1200"}})

	if len(res.Keywords) != 1 || len(res.Clusters) != 1 {
		t.Fatalf("got %d keywords, %d clusters", len(res.Keywords), len(res.Clusters))
	}
	c := res.Clusters[0]
	if c.Silhouette != 1 || c.Coherence != 1 {
		t.Errorf("single cluster quality = %v, %v, want 1, 1", c.Silhouette, c.Coherence)
	}
	k := res.Keywords[0]
	if k.CleanedPhrase != "best running shoes" {
		t.Errorf("cleaned phrase = %q", k.CleanedPhrase)
	}
	if k.PriorityScore == nil || k.ClusterID == nil {
		t.Error("keyword missing scoring or cluster assignment")
	}
}

func TestProcessFullPipeline(t *testing.T) {
	var raw []keyword.Raw
	topics := []string{"running shoes", "protein powder", "yoga mat"}
	for i := 0; i < 30; i++ {
		raw = append(raw, keyword.Raw{
			Phrase:       fmt.Sprintf("best %s %d", topics[i%3], i),
			SearchVolume: fmt.Sprintf("%d", 500+i*10),
			Competition:  "0.3",
		})
	}
	// Exact duplicate and junk rows exercise cleaning and dedup.
	raw = append(raw,
		keyword.Raw{Phrase: "Best Running Shoes 0", SearchVolume: "500"},
		keyword.Raw{Phrase: "???!!!"},
	)

	res := New(DefaultOptions()).Process(raw)

	if res.Stats.InputKeywords != 32 {
		t.Errorf("input = %d", res.Stats.InputKeywords)
	}
	if res.Stats.DuplicatesRemoved < 1 {
		t.Error("duplicate row not removed")
	}
	if res.Stats.UniqueKeywords != len(res.Keywords) {
		t.Errorf("unique = %d, keywords = %d", res.Stats.UniqueKeywords, len(res.Keywords))
	}
	if len(res.Clusters) < 2 {
		t.Fatalf("got %d clusters", len(res.Clusters))
	}

	// Every keyword lands in exactly one cluster with scored members.
	total := 0
	for _, c := range res.Clusters {
		total += len(c.Members)
		for _, m := range c.Members {
			if m.PriorityScore == nil {
				t.Fatalf("member %q not scored", m.CleanedPhrase)
			}
		}
	}
	if total != len(res.Keywords) {
		t.Errorf("cluster members sum to %d, want %d", total, len(res.Keywords))
	}

	// Output is ordered by priority descending.
	for i := 1; i < len(res.Keywords); i++ {
		if *res.Keywords[i-1].PriorityScore < *res.Keywords[i].PriorityScore {
			t.Fatalf("keywords not sorted at %d", i)
		}
	}
}

func TestProcessDeterministic(t *testing.T) {
	var raw []keyword.Raw
	for i := 0; i < 20; i++ {
		raw = append(raw, keyword.Raw{
			Phrase:       fmt.Sprintf("keyword topic %d", i%5),
			SearchVolume: "100",
		})
	}

	a := Process(raw)
	b := Process(raw)
	if len(a.Keywords) != len(b.Keywords) {
		t.Fatalf("run sizes differ: %d vs %d", len(a.Keywords), len(b.Keywords))
	}
	for i := range a.Keywords {
		if a.Keywords[i].CleanedPhrase != b.Keywords[i].CleanedPhrase {
			t.Fatalf("order differs at %d", i)
		}
		if *a.Keywords[i].PriorityScore != *b.Keywords[i].PriorityScore {
			t.Fatalf("scores differ at %d", i)
		}
	}
}
