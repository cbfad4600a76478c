// kwcluster-batch runs the pipeline as a resumable batch job with
// SQLite-backed checkpoints. Ctrl-C pauses at the next batch boundary
// instead of killing the run.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/batch"
	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/checkpoint/sqlite"
	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/clean"
	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/cluster"
	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/config"
	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/dedup"
	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/embed"
	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/keyword"
	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/score"
)

func main() {
	var (
		input      = flag.String("input", "", "Path to keywords CSV (required unless resuming)")
		dbPath     = flag.String("db", "kwcluster.db", "SQLite database for checkpoints and results")
		configPath = flag.String("config", "", "Optional: pipeline config YAML")
		fast       = flag.Bool("fast", false, "Fast mode: sample the input before running")
		resume     = flag.String("resume", "", "Resume a paused or interrupted run by id")
		list       = flag.String("list", "", "List checkpoints for a run id and exit")
	)
	flag.Parse()

	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
	}
	if *fast {
		cfg.Batch.FastMode = true
	}

	store, err := sqlite.Open(ctx, *dbPath, 0)
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer store.Close()

	if *list != "" {
		listCheckpoints(ctx, store, *list)
		return
	}

	embedCfg, err := cfg.EmbedConfig()
	if err != nil {
		log.Fatalf("embed config: %v", err)
	}
	orch := batch.New(cfg.Batch, batch.Deps{
		Cleaner: clean.New(cfg.CleanConfig()),
		Dedup:   dedup.New(cfg.DedupConfig()),
		Engine:  cluster.NewEngine(cfg.ClusterConfig(), embed.NewBuilder(embedCfg)),
		Scorer:  score.NewScorer(cfg.Score),
		Store:   store,
		Results: store,
		Logger:  logger,
	})

	// Ctrl-C requests a cooperative pause; the run stops at the next
	// cleaning-batch boundary with a resumable checkpoint.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		info := orch.Pause()
		fmt.Fprintf(os.Stderr, "pause requested at %s (%.0f%% done)\n",
			info.PausedAt.Format("15:04:05"), info.Progress.ProgressPercent)
	}()

	var res batch.Result
	if *resume != "" {
		res, err = orch.Resume(ctx, *resume)
		if err != nil {
			log.Fatalf("resume: %v", err)
		}
	} else {
		if *input == "" {
			log.Fatal("--input required")
		}
		raw, err := loadCSV(*input)
		if err != nil {
			log.Fatalf("load keywords: %v", err)
		}
		info, err := orch.Initialize(ctx, raw)
		if err != nil {
			log.Fatalf("initialize: %v", err)
		}
		fmt.Fprintf(os.Stderr, "run %s: %d keywords, %d batches of %d (~%d min)\n",
			info.RunID, info.TotalKeywords, info.TotalBatches, info.BatchSize, info.EstimatedTimeMinutes)

		res, err = orch.Start(ctx)
		if err != nil {
			log.Fatalf("run: %v", err)
		}
	}

	s := res.Stats
	if s.Paused {
		fmt.Fprintf(os.Stderr, "run %s paused after %d/%d keywords; resume with --resume %s\n",
			s.RunID, s.CleanedKeywords, s.TotalKeywords, s.RunID)
		return
	}
	fmt.Fprintf(os.Stderr, "run %s completed: %d unique keywords in %d clusters (%d duplicates, %d warnings) in %s\n",
		s.RunID, s.UniqueKeywords, s.Clusters, s.DuplicatesRemoved, s.Warnings, s.Elapsed.Round(1e9))
}

func listCheckpoints(ctx context.Context, store *sqlite.Store, runID string) {
	summaries, err := store.ListAll(ctx, runID)
	if err != nil {
		log.Fatalf("list checkpoints: %v", err)
	}
	if len(summaries) == 0 {
		fmt.Printf("no checkpoints for run %s\n", runID)
		return
	}
	for _, s := range summaries {
		state := "recoverable"
		if !s.Recoverable {
			state = "not recoverable"
		}
		fmt.Printf("%s  %-14s batch %-3d %6d processed  %s  %s\n",
			s.ID, s.Stage, s.BatchNumber, s.KeywordsProcessed,
			s.CreatedAt.Format("2006-01-02 15:04:05"), state)
	}
}

func loadCSV(path string) ([]keyword.Raw, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var out []keyword.Raw
	for i := 0; ; i++ {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		if len(row) == 0 {
			continue
		}
		if i == 0 && (row[0] == "phrase" || row[0] == "keyword" || row[0] == "Keyword" || row[0] == "Phrase") {
			continue
		}
		raw := keyword.Raw{Phrase: row[0]}
		if len(row) > 1 {
			raw.SearchVolume = row[1]
		}
		if len(row) > 2 {
			raw.Competition = row[2]
		}
		if len(row) > 3 {
			raw.CPC = row[3]
		}
		out = append(out, raw)
	}
	return out, nil
}
