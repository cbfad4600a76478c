package cluster

import (
	"testing"

	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/embed"
	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/keyword"
)

func intp(v int) *int           { return &v }
func floatp(v float64) *float64 { return &v }

func newEngine(forcedK int) *Engine {
	cfg := DefaultConfig()
	cfg.ForcedK = forcedK
	return NewEngine(cfg, embed.NewBuilder(embed.DefaultConfig()))
}

func shoeCorpus() []keyword.Record {
	return []keyword.Record{
		{Phrase: "buy running shoes", CleanedPhrase: "buy running shoes", SearchVolume: intp(1000), Competition: floatp(0.3)},
		{Phrase: "best running shoes", CleanedPhrase: "best running shoes", SearchVolume: intp(800), Competition: floatp(0.4)},
		{Phrase: "car insurance quotes", CleanedPhrase: "car insurance quotes", SearchVolume: intp(500), Competition: floatp(0.6)},
	}
}

func TestForcedTwoClusters(t *testing.T) {
	clusters, annotated := newEngine(2).Cluster(shoeCorpus())
	if len(clusters) != 2 {
		t.Fatalf("expected 2 clusters, got %d", len(clusters))
	}

	total := 0
	for _, c := range clusters {
		total += len(c.Members)
	}
	if total != 3 {
		t.Errorf("member conservation violated: %d != 3", total)
	}

	// The two running-shoe phrases must share a cluster.
	if *annotated[0].ClusterID != *annotated[1].ClusterID {
		t.Errorf("running-shoe phrases split across clusters")
	}
	if *annotated[0].ClusterID == *annotated[2].ClusterID {
		t.Errorf("car insurance should not join the shoe cluster")
	}
}

func TestEmptyCorpus(t *testing.T) {
	clusters, annotated := newEngine(0).Cluster(nil)
	if len(clusters) != 0 || len(annotated) != 0 {
		t.Errorf("empty input should produce empty output")
	}
}

func TestSingleKeyword(t *testing.T) {
	clusters, annotated := newEngine(0).Cluster([]keyword.Record{
		{Phrase: "running shoes", CleanedPhrase: "running shoes"},
	})
	if len(clusters) != 1 {
		t.Fatalf("expected exactly one cluster, got %d", len(clusters))
	}
	c := clusters[0]
	if c.Silhouette != 1.0 {
		t.Errorf("singleton corpus silhouette = %f, want 1.0", c.Silhouette)
	}
	if c.Coherence != 1.0 {
		t.Errorf("singleton corpus coherence = %f, want 1.0", c.Coherence)
	}
	if len(c.Members) != 1 {
		t.Errorf("member conservation violated")
	}
	if annotated[0].ClusterID == nil || *annotated[0].ClusterID != 0 {
		t.Errorf("record not annotated with cluster id")
	}
}

func TestForcedSingleCluster(t *testing.T) {
	clusters, annotated := newEngine(1).Cluster(shoeCorpus())
	if len(clusters) != 1 {
		t.Fatalf("expected 1 cluster, got %d", len(clusters))
	}
	if len(clusters[0].Members) != 3 {
		t.Errorf("all records should join the single cluster")
	}
	for _, r := range annotated {
		if r.ClusterName != clusters[0].Name {
			t.Errorf("record name %q != cluster name %q", r.ClusterName, clusters[0].Name)
		}
	}
}

func TestDeterministicAssignments(t *testing.T) {
	a1, r1 := newEngine(0).Cluster(shoeCorpus())
	a2, r2 := newEngine(0).Cluster(shoeCorpus())
	if len(a1) != len(a2) {
		t.Fatalf("selected k differs across identical runs: %d vs %d", len(a1), len(a2))
	}
	for i := range r1 {
		if *r1[i].ClusterID != *r2[i].ClusterID {
			t.Errorf("assignment for record %d differs across runs", i)
		}
	}
}

func TestSilhouetteSharedAcrossClusters(t *testing.T) {
	clusters, _ := newEngine(2).Cluster(shoeCorpus())
	for _, c := range clusters[1:] {
		if c.Silhouette != clusters[0].Silhouette {
			t.Errorf("run-level silhouette should be attached to every cluster")
		}
	}
}

func TestClusterNaming(t *testing.T) {
	members := [][]string{
		{"run", "shoe"},
		{"run", "shoe", "best"},
		{"run", "trail"},
	}
	name := nameFromTokens(members, nil, 0)
	if name != "run shoe best" {
		t.Errorf("name = %q, want %q", name, "run shoe best")
	}
}

func TestClusterNamingTieBreak(t *testing.T) {
	// All tokens appear once: first-seen order wins.
	name := nameFromTokens([][]string{{"beta", "alpha", "gamma", "delta"}}, nil, 0)
	if name != "beta alpha gamma" {
		t.Errorf("tie-break by first-seen order failed: %q", name)
	}
}

func TestCoherenceSingletonIsZero(t *testing.T) {
	if c := coherence([]keyword.Record{{CleanedPhrase: "solo"}}); c != 0 {
		t.Errorf("singleton coherence = %f, want 0", c)
	}
}

func TestCoherenceIdenticalPhrases(t *testing.T) {
	c := coherence([]keyword.Record{
		{CleanedPhrase: "running shoes"},
		{CleanedPhrase: "running shoes"},
	})
	if c != 1 {
		t.Errorf("identical phrases coherence = %f, want 1", c)
	}
}
