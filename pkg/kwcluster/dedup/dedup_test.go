package dedup

import (
	"testing"

	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/keyword"
)

func recs(phrases ...string) []keyword.Record {
	out := make([]keyword.Record, len(phrases))
	for i, p := range phrases {
		out[i] = keyword.Record{Phrase: p, CleanedPhrase: p}
	}
	return out
}

func TestExactDuplicates(t *testing.T) {
	d := New(DefaultConfig())
	in := []keyword.Record{
		{CleanedPhrase: "running shoes"},
		{CleanedPhrase: "Running Shoes"},
	}
	res := d.Deduplicate(in)
	if len(res.Unique) != 1 {
		t.Fatalf("expected 1 unique record, got %d", len(res.Unique))
	}
	if res.Unique[0].CleanedPhrase != "running shoes" {
		t.Errorf("first occurrence should be kept, got %q", res.Unique[0].CleanedPhrase)
	}
}

func TestExactPassPreservesOrder(t *testing.T) {
	d := New(DefaultConfig())
	res := d.Deduplicate(recs("zebra print", "apple pie", "zebra print", "mango juice"))
	want := []string{"zebra print", "apple pie", "mango juice"}
	if len(res.Unique) != len(want) {
		t.Fatalf("expected %d unique, got %d", len(want), len(res.Unique))
	}
	for i, w := range want {
		if res.Unique[i].CleanedPhrase != w {
			t.Errorf("position %d: got %q, want %q", i, res.Unique[i].CleanedPhrase, w)
		}
	}
}

func TestNearDuplicateGrouping(t *testing.T) {
	d := New(DefaultConfig())
	res := d.Deduplicate(recs("running shoes", "running shoe", "car insurance"))
	if len(res.SimilarGroups) != 1 {
		t.Fatalf("expected 1 similar group, got %d", len(res.SimilarGroups))
	}
	g := res.SimilarGroups[0]
	if len(g) != 2 {
		t.Fatalf("expected group of 2, got %d", len(g))
	}
	if g[0].CleanedPhrase != "running shoes" || g[1].CleanedPhrase != "running shoe" {
		t.Errorf("unexpected group members: %v", g)
	}
	// near-duplicates remain in the unique set; groups are informational
	if len(res.Unique) != 3 {
		t.Errorf("expected 3 unique records, got %d", len(res.Unique))
	}
}

func TestSingletonGroupsDiscarded(t *testing.T) {
	d := New(DefaultConfig())
	res := d.Deduplicate(recs("alpha", "completely different"))
	if len(res.SimilarGroups) != 0 {
		t.Errorf("singleton groups must not be reported, got %v", res.SimilarGroups)
	}
}

func TestDeduplicateIdempotent(t *testing.T) {
	d := New(DefaultConfig())
	first := d.Deduplicate(recs("running shoes", "running shoes", "running shoe", "car insurance"))
	second := d.Deduplicate(first.Unique)
	if len(second.Unique) != len(first.Unique) {
		t.Errorf("dedup not idempotent: %d != %d", len(second.Unique), len(first.Unique))
	}
	for i := range first.Unique {
		if second.Unique[i].CleanedPhrase != first.Unique[i].CleanedPhrase {
			t.Errorf("record %d changed on second pass", i)
		}
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"abc", "abc", 1},
		{"", "", 1},
		{"abc", "abd", 1 - 1.0/3.0},
		{"abcd", "", 0},
	}
	for _, tt := range tests {
		got := Similarity(tt.a, tt.b)
		if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("Similarity(%q,%q) = %f, want %f", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestThresholdBoundary(t *testing.T) {
	// "12345678901" vs "1234567890x": similarity 10/11 ≈ 0.909
	d := New(Config{SimilarityThreshold: 0.9})
	res := d.Deduplicate(recs("12345678901", "1234567890x"))
	if len(res.SimilarGroups) != 1 {
		t.Errorf("similarity at threshold should join the group")
	}

	strict := New(Config{SimilarityThreshold: 0.95})
	res = strict.Deduplicate(recs("12345678901", "1234567890x"))
	if len(res.SimilarGroups) != 0 {
		t.Errorf("similarity below threshold should not group")
	}
}
