package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/checkpoint"
	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/internalerr"
	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/keyword"
)

func TestSaveAssignsIdentity(t *testing.T) {
	s := New()
	ctx := context.Background()

	receipt, err := s.Save(ctx, checkpoint.New("run-1", "cleaning", 0, 100, []byte("state")))
	if err != nil {
		t.Fatalf("Save() = %v", err)
	}
	if receipt.CheckpointID == "" {
		t.Error("receipt missing checkpoint id")
	}
	if receipt.ValidationHash == "" {
		t.Error("receipt missing validation hash")
	}
	if receipt.Timestamp.IsZero() {
		t.Error("receipt missing timestamp")
	}
}

func TestPruneKeepsNewest(t *testing.T) {
	s := New()
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		if _, err := s.Save(ctx, checkpoint.New("run-1", "cleaning", i, i*100, []byte("state"))); err != nil {
			t.Fatalf("Save(%d) = %v", i, err)
		}
	}

	list, err := s.ListAll(ctx, "run-1")
	if err != nil {
		t.Fatalf("ListAll() = %v", err)
	}
	if len(list) != checkpoint.DefaultKeep {
		t.Fatalf("kept %d checkpoints, want %d", len(list), checkpoint.DefaultKeep)
	}
	// Newest first: batches 7 down to 3.
	for i, want := 0, 7; i < len(list); i, want = i+1, want-1 {
		if list[i].BatchNumber != want {
			t.Errorf("list[%d].BatchNumber = %d, want %d", i, list[i].BatchNumber, want)
		}
	}
}

func TestLoadLatestSkipsUnrecoverable(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.Save(ctx, checkpoint.New("run-1", "cleaning", 0, 100, []byte("a"))); err != nil {
		t.Fatal(err)
	}
	dead := checkpoint.New("run-1", "cleaning", 1, 200, []byte("b"))
	dead.Recoverable = false
	if _, err := s.Save(ctx, dead); err != nil {
		t.Fatal(err)
	}

	cp, ok, err := s.LoadLatest(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("LoadLatest() = %v, ok=%v", err, ok)
	}
	if cp.BatchNumber != 0 {
		t.Errorf("loaded batch %d, want 0 (newest recoverable)", cp.BatchNumber)
	}
}

func TestLoadLatestRejectsCorruption(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.Save(ctx, checkpoint.New("run-1", "scoring", 2, 500, []byte("state"))); err != nil {
		t.Fatal(err)
	}
	s.Corrupt("run-1")

	_, _, err := s.LoadLatest(ctx, "run-1")
	if !errors.Is(err, internalerr.ErrChecksumMismatch) {
		t.Fatalf("LoadLatest() = %v, want ErrChecksumMismatch", err)
	}
}

func TestLoadLatestEmptyRun(t *testing.T) {
	s := New()
	_, ok, err := s.LoadLatest(context.Background(), "missing")
	if err != nil {
		t.Fatalf("LoadLatest() = %v", err)
	}
	if ok {
		t.Fatal("expected no checkpoint for unknown run")
	}
}

func TestRunRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	run := checkpoint.RunRecord{ID: "run-1", Stage: "clustering", ProcessedKeywords: 400, TotalKeywords: 1000}
	if err := s.SaveRun(ctx, run); err != nil {
		t.Fatalf("SaveRun() = %v", err)
	}

	got, ok, err := s.GetRun(ctx, "run-1")
	if err != nil || !ok {
		t.Fatalf("GetRun() = %v, ok=%v", err, ok)
	}
	if got.Stage != "clustering" || got.ProcessedKeywords != 400 {
		t.Errorf("got run %+v", got)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("UpdatedAt not stamped on save")
	}
}

func TestLoadKeywordsTierAndLimit(t *testing.T) {
	s := New()
	ctx := context.Background()

	records := []keyword.Record{
		{Phrase: "a", PriorityTier: keyword.TierHigh},
		{Phrase: "b", PriorityTier: keyword.TierMedium},
		{Phrase: "c", PriorityTier: keyword.TierHigh},
		{Phrase: "d", PriorityTier: keyword.TierLow},
	}
	if err := s.SaveKeywords(ctx, "run-1", records); err != nil {
		t.Fatalf("SaveKeywords() = %v", err)
	}

	high, err := s.LoadKeywords(ctx, "run-1", keyword.TierHigh, 0)
	if err != nil {
		t.Fatalf("LoadKeywords() = %v", err)
	}
	if len(high) != 2 || high[0].Phrase != "a" || high[1].Phrase != "c" {
		t.Errorf("high tier = %+v", high)
	}

	capped, err := s.LoadKeywords(ctx, "run-1", "", 2)
	if err != nil {
		t.Fatalf("LoadKeywords() = %v", err)
	}
	if len(capped) != 2 || capped[0].Phrase != "a" || capped[1].Phrase != "b" {
		t.Errorf("capped = %+v", capped)
	}
}

func TestClustersSortedByID(t *testing.T) {
	s := New()
	ctx := context.Background()

	clusters := []keyword.Cluster{{ID: 2, Name: "b"}, {ID: 0, Name: "a"}, {ID: 1, Name: "c"}}
	if err := s.SaveClusters(ctx, "run-1", clusters); err != nil {
		t.Fatalf("SaveClusters() = %v", err)
	}

	got, err := s.LoadClusters(ctx, "run-1")
	if err != nil {
		t.Fatalf("LoadClusters() = %v", err)
	}
	for i, c := range got {
		if c.ID != i {
			t.Errorf("got[%d].ID = %d, want %d", i, c.ID, i)
		}
	}
}
