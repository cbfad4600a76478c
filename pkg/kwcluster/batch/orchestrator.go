// Package batch drives the pipeline stages over large keyword sets in
// resumable runs: chunked cleaning with cooperative pause, global
// deduplication, clustering, and scoring, with a checkpoint written at
// every stage boundary.
package batch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/checkpoint"
	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/checkpoint/memstore"
	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/clean"
	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/cluster"
	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/dedup"
	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/embed"
	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/internalerr"
	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/keyword"
	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/score"
)

const (
	// DefaultBatchSize caps one cleaning chunk.
	DefaultBatchSize = 1000

	// fastSampleFraction and fastSampleFloor size the fast-mode sample.
	fastSampleFraction = 0.1
	fastSampleFloor    = 50

	// keywordsPerMinute feeds the pre-run time estimate. Rough
	// throughput observed on full pipeline runs; advisory only.
	keywordsPerMinute = 2000
)

// Config controls one orchestrator.
type Config struct {
	// BatchSize is the configured ceiling for one cleaning chunk. The
	// effective size also never exceeds a tenth of the input.
	BatchSize int `yaml:"batch_size"`
	// FastMode samples the input down before running: the half of the
	// sample budget with the highest volumes, plus a seeded random draw
	// from the rest.
	FastMode   bool  `yaml:"fast_mode"`
	SampleSeed int64 `yaml:"sample_seed"`
	// BatchesPerSecond paces cleaning chunks. Zero means unpaced.
	BatchesPerSecond float64 `yaml:"batches_per_second"`
	// MaxMemoryUsageMB is advisory. Checkpoints record actual usage and
	// the orchestrator logs when a sample exceeds this; nothing is
	// enforced.
	MaxMemoryUsageMB float64 `yaml:"max_memory_usage_mb"`
}

// DefaultConfig returns the orchestrator defaults.
func DefaultConfig() Config {
	return Config{BatchSize: DefaultBatchSize, SampleSeed: 1, MaxMemoryUsageMB: 512}
}

// Deps are the stage collaborators. Nil fields get defaults; a nil
// Store/Results pair shares one in-memory store.
type Deps struct {
	Cleaner *clean.Cleaner
	Dedup   *dedup.Deduplicator
	Engine  *cluster.Engine
	Scorer  *score.Scorer
	Store   checkpoint.Store
	Results checkpoint.ResultStore
	Logger  *slog.Logger
	// OnProgress, when set, is invoked after every batch and stage
	// boundary with a fresh progress snapshot.
	OnProgress func(Progress)
}

// InitSummary is what Initialize reports back before any work runs.
type InitSummary struct {
	RunID                string
	TotalKeywords        int
	TotalBatches         int
	BatchSize            int
	EstimatedTimeMinutes int
}

// Stats summarizes a finished (or paused) run.
type Stats struct {
	RunID               string
	TotalKeywords       int
	CleanedKeywords     int
	UniqueKeywords      int
	DuplicatesRemoved   int
	NearDuplicateGroups int
	Clusters            int
	Warnings            int
	Elapsed             time.Duration
	Paused              bool
}

// Result is the output of Start or Resume.
type Result struct {
	Keywords []keyword.Record
	Clusters []keyword.Cluster
	Stats    Stats
}

// Progress is a point-in-time view of a running or paused run.
type Progress struct {
	Stage                  string
	ProcessedKeywords      int
	TotalKeywords          int
	ProgressPercent        float64
	ElapsedTime            time.Duration
	EstimatedTimeRemaining time.Duration
}

// PauseInfo is returned by Pause.
type PauseInfo struct {
	PausedAt time.Time
	Progress Progress
}

// Orchestrator owns one run at a time. Execution is single-threaded;
// the only suspension point is between cleaning batches, where a pause
// request is observed.
type Orchestrator struct {
	cfg     Config
	deps    Deps
	limiter *rate.Limiter
	logger  *slog.Logger

	mu        sync.Mutex
	state     RunState
	startedAt time.Time
	pausedAt  time.Time
	pauseReq  bool
}

// New builds an orchestrator, filling missing collaborators with
// defaults.
func New(cfg Config, deps Deps) *Orchestrator {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = DefaultBatchSize
	}
	if deps.Cleaner == nil {
		deps.Cleaner = clean.New(clean.DefaultConfig())
	}
	if deps.Dedup == nil {
		deps.Dedup = dedup.New(dedup.DefaultConfig())
	}
	if deps.Engine == nil {
		deps.Engine = cluster.NewEngine(cluster.DefaultConfig(), embed.NewBuilder(embed.DefaultConfig()))
	}
	if deps.Scorer == nil {
		deps.Scorer = score.NewScorer(score.DefaultWeights())
	}
	if deps.Store == nil {
		mem := memstore.New()
		deps.Store = mem
		if deps.Results == nil {
			deps.Results = mem
		}
	}
	if deps.Results == nil {
		deps.Results = memstore.New()
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	limit := rate.Inf
	if cfg.BatchesPerSecond > 0 {
		limit = rate.Limit(cfg.BatchesPerSecond)
	}
	return &Orchestrator{
		cfg:     cfg,
		deps:    deps,
		logger:  logger,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// Initialize sizes a new run: samples the input in fast mode, derives
// the effective batch size and batch count, and persists the run record.
func (o *Orchestrator) Initialize(ctx context.Context, raw []keyword.Raw) (InitSummary, error) {
	if len(raw) == 0 {
		return InitSummary{}, fmt.Errorf("%w: no keywords to process", internalerr.ErrInvalidInput)
	}

	input := raw
	if o.cfg.FastMode {
		input = fastSample(raw, o.cfg.SampleSeed)
		o.logger.Info("fast mode sample", "input", len(raw), "sampled", len(input))
	}

	n := len(input)
	batchSize := o.cfg.BatchSize
	if tenth := ceilDiv(n, 10); tenth < batchSize {
		batchSize = tenth
	}
	if batchSize < 1 {
		batchSize = 1
	}
	totalBatches := ceilDiv(n, batchSize)

	st := RunState{
		RunID:        checkpoint.NewID(),
		Stage:        StageCleaning,
		BatchSize:    batchSize,
		TotalBatches: totalBatches,
		Total:        n,
		Raw:          input,
	}

	o.mu.Lock()
	o.state = st
	o.startedAt = time.Time{}
	o.pauseReq = false
	o.mu.Unlock()

	if err := o.deps.Results.SaveRun(ctx, o.runRecord(st, StageInitializing)); err != nil {
		return InitSummary{}, fmt.Errorf("save run: %w", err)
	}

	minutes := int(math.Ceil(float64(n) / keywordsPerMinute))
	if minutes < 1 {
		minutes = 1
	}
	o.logger.Info("run initialized",
		"run_id", st.RunID, "keywords", n, "batch_size", batchSize, "batches", totalBatches)

	return InitSummary{
		RunID:                st.RunID,
		TotalKeywords:        n,
		TotalBatches:         totalBatches,
		BatchSize:            batchSize,
		EstimatedTimeMinutes: minutes,
	}, nil
}

// Start runs an initialized run to completion or pause.
func (o *Orchestrator) Start(ctx context.Context) (Result, error) {
	o.mu.Lock()
	if o.state.RunID == "" {
		o.mu.Unlock()
		return Result{}, internalerr.ErrRunNotInitialized
	}
	if o.startedAt.IsZero() {
		o.startedAt = time.Now()
	}
	o.mu.Unlock()

	return o.run(ctx)
}

// Resume loads the newest recoverable checkpoint for a run, validates
// it, reconstructs the snapshot, and continues from the next incomplete
// stage. Completed stages are not recomputed.
func (o *Orchestrator) Resume(ctx context.Context, runID string) (Result, error) {
	cp, ok, err := o.deps.Store.LoadLatest(ctx, runID)
	if err != nil {
		return Result{}, fmt.Errorf("load checkpoint: %w", err)
	}
	if !ok {
		return Result{}, fmt.Errorf("%w: run %s has no recoverable checkpoint", internalerr.ErrNotRecoverable, runID)
	}

	payload, err := cp.DecodeState()
	if err != nil {
		return Result{}, fmt.Errorf("decode checkpoint state: %w", err)
	}
	st, err := decodeState(payload)
	if err != nil {
		return Result{}, fmt.Errorf("decode run state: %w", err)
	}

	o.mu.Lock()
	o.state = st
	o.startedAt = time.Now()
	o.pauseReq = false
	o.mu.Unlock()

	o.logger.Info("run resumed",
		"run_id", runID, "stage", st.Stage, "batch", st.CurrentBatch, "processed", st.Processed)
	return o.run(ctx)
}

// Pause requests a cooperative stop. The running stage observes it at
// the next cleaning-batch boundary; stages past cleaning run to
// completion first.
func (o *Orchestrator) Pause() PauseInfo {
	o.mu.Lock()
	o.pauseReq = true
	o.pausedAt = time.Now()
	info := PauseInfo{PausedAt: o.pausedAt, Progress: o.progressLocked()}
	o.mu.Unlock()
	return info
}

// GetProgress returns a snapshot of the current run.
func (o *Orchestrator) GetProgress() Progress {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.progressLocked()
}

func (o *Orchestrator) progressLocked() Progress {
	st := o.state
	percent := st.progressPercent()

	var elapsed, remaining time.Duration
	if !o.startedAt.IsZero() {
		elapsed = time.Since(o.startedAt)
		if percent > 0 && percent < 100 {
			remaining = time.Duration(float64(elapsed) / percent * (100 - percent))
		}
	}
	return Progress{
		Stage:                  st.Stage,
		ProcessedKeywords:      st.Processed,
		TotalKeywords:          st.Total,
		ProgressPercent:        percent,
		ElapsedTime:            elapsed,
		EstimatedTimeRemaining: remaining,
	}
}

// run executes stages in order from the current snapshot. Stage order is
// fixed and total; each boundary checkpoints the next snapshot.
func (o *Orchestrator) run(ctx context.Context) (Result, error) {
	st := o.snapshot()

	for !st.terminal() {
		var err error
		var paused bool

		switch st.Stage {
		case StageCleaning:
			st, paused, err = o.cleaningStage(ctx, st)
			if err == nil && paused {
				return o.pausedResult(ctx, st)
			}
		case StageDeduplication:
			st, err = o.deduplicationStage(ctx, st)
		case StageClustering:
			st, err = o.clusteringStage(ctx, st)
		case StageScoring:
			st, err = o.scoringStage(ctx, st)
		case StageFinalizing:
			st, err = o.finalizingStage(ctx, st)
		default:
			err = fmt.Errorf("%w: unknown stage %q", internalerr.ErrInvalidInput, st.Stage)
		}

		if err != nil {
			return Result{}, o.fail(ctx, st, err)
		}
		o.setState(st)
		o.notifyProgress()
	}

	o.logger.Info("run completed",
		"run_id", st.RunID, "keywords", len(st.Scored), "clusters", len(st.Clusters))
	return Result{
		Keywords: st.Scored,
		Clusters: st.Clusters,
		Stats:    o.stats(st, false),
	}, nil
}

// cleaningStage processes raw input in strict batch order, observing
// pause requests and pacing between chunks.
func (o *Orchestrator) cleaningStage(ctx context.Context, st RunState) (RunState, bool, error) {
	for st.CurrentBatch < st.TotalBatches {
		if o.pauseRequested() {
			o.logger.Info("pause observed", "run_id", st.RunID, "batch", st.CurrentBatch)
			return st, true, nil
		}
		if err := o.limiter.Wait(ctx); err != nil {
			return st, false, err
		}

		lo := st.CurrentBatch * st.BatchSize
		hi := lo + st.BatchSize
		if hi > len(st.Raw) {
			hi = len(st.Raw)
		}
		chunk := st.Raw[lo:hi]

		cleaned, warnings := o.deps.Cleaner.Clean(chunk)

		next := st
		next.Cleaned = append(append([]keyword.Record(nil), st.Cleaned...), cleaned...)
		next.Warnings = append(append([]clean.ParseWarning(nil), st.Warnings...), warnings...)
		next.Processed = st.Processed + len(chunk)
		next.CurrentBatch = st.CurrentBatch + 1

		if err := o.writeCheckpoint(ctx, next); err != nil {
			return st, false, err
		}
		o.setState(next)
		o.notifyProgress()
		st = next
	}

	next := st
	next.Stage = StageDeduplication
	next.Raw = nil
	if err := o.writeCheckpoint(ctx, next); err != nil {
		return st, false, err
	}
	o.logger.Info("cleaning done",
		"run_id", next.RunID, "kept", len(next.Cleaned), "warnings", len(next.Warnings))
	return next, false, nil
}

func (o *Orchestrator) deduplicationStage(ctx context.Context, st RunState) (RunState, error) {
	res := o.deps.Dedup.Deduplicate(st.Cleaned)

	next := st
	next.Unique = res.Unique
	next.DuplicatesRemoved = len(st.Cleaned) - len(res.Unique)
	next.NearDuplicateGroups = len(res.SimilarGroups)
	next.Stage = StageClustering
	if err := o.writeCheckpoint(ctx, next); err != nil {
		return st, err
	}
	o.logger.Info("deduplication done",
		"run_id", next.RunID, "unique", len(next.Unique), "removed", next.DuplicatesRemoved)
	return next, nil
}

func (o *Orchestrator) clusteringStage(ctx context.Context, st RunState) (RunState, error) {
	clusters, annotated := o.deps.Engine.Cluster(st.Unique)

	next := st
	next.Clusters = clusters
	next.Unique = annotated
	next.Stage = StageScoring
	if err := o.writeCheckpoint(ctx, next); err != nil {
		return st, err
	}
	o.logger.Info("clustering done", "run_id", next.RunID, "clusters", len(clusters))
	return next, nil
}

func (o *Orchestrator) scoringStage(ctx context.Context, st RunState) (RunState, error) {
	next := st
	next.Scored = o.deps.Scorer.Score(st.Unique, st.Clusters)
	next.Clusters = score.AttachMembers(st.Clusters, next.Scored)
	next.Stage = StageFinalizing
	if err := o.writeCheckpoint(ctx, next); err != nil {
		return st, err
	}
	return next, nil
}

// finalizingStage persists the finished output and closes the run.
func (o *Orchestrator) finalizingStage(ctx context.Context, st RunState) (RunState, error) {
	if err := o.deps.Results.SaveKeywords(ctx, st.RunID, st.Scored); err != nil {
		return st, fmt.Errorf("save keywords: %w", err)
	}
	if err := o.deps.Results.SaveClusters(ctx, st.RunID, st.Clusters); err != nil {
		return st, fmt.Errorf("save clusters: %w", err)
	}

	next := st
	next.Stage = StageCompleted
	if err := o.deps.Results.SaveRun(ctx, o.runRecord(next, StageCompleted)); err != nil {
		return st, fmt.Errorf("save run: %w", err)
	}
	return next, nil
}

// writeCheckpoint seals the snapshot, persists it, and updates the run
// record. A checkpoint that cannot be written fails the stage; silent
// progress without durability would break resume guarantees.
func (o *Orchestrator) writeCheckpoint(ctx context.Context, st RunState) error {
	payload, err := st.encode()
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	cp := checkpoint.New(st.RunID, st.Stage, st.CurrentBatch, st.Processed, payload)
	receipt, err := o.deps.Store.Save(ctx, cp)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	if o.cfg.MaxMemoryUsageMB > 0 && receipt.MemoryUsageMB > o.cfg.MaxMemoryUsageMB {
		o.logger.Warn("memory above configured ceiling",
			"run_id", st.RunID, "usage_mb", receipt.MemoryUsageMB, "ceiling_mb", o.cfg.MaxMemoryUsageMB)
	}
	if err := o.deps.Results.SaveRun(ctx, o.runRecord(st, st.Stage)); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

// fail marks the run failed with the captured message. The run is not
// auto-retried; the stored record tells the caller where it stopped.
func (o *Orchestrator) fail(ctx context.Context, st RunState, cause error) error {
	stage := st.Stage
	st.Error = cause.Error()
	st.Stage = StageFailed
	o.setState(st)

	if saveErr := o.deps.Results.SaveRun(ctx, o.runRecord(st, StageFailed)); saveErr != nil {
		o.logger.Error("save failed-run record", "run_id", st.RunID, "error", saveErr)
	}
	o.logger.Error("run failed", "run_id", st.RunID, "error", cause)
	return fmt.Errorf("run %s failed at %s (%d/%d processed): %w",
		st.RunID, stage, st.Processed, st.Total, cause)
}

// pausedResult checkpoints the partial snapshot so a later Resume can
// pick up from it, then marks the run paused.
func (o *Orchestrator) pausedResult(ctx context.Context, st RunState) (Result, error) {
	if err := o.writeCheckpoint(ctx, st); err != nil {
		return Result{}, err
	}
	if err := o.deps.Results.SaveRun(ctx, o.runRecord(st, StagePaused)); err != nil {
		return Result{}, fmt.Errorf("save run: %w", err)
	}
	o.setState(st)
	return Result{Stats: o.stats(st, true)}, nil
}

func (o *Orchestrator) stats(st RunState, paused bool) Stats {
	o.mu.Lock()
	var elapsed time.Duration
	if !o.startedAt.IsZero() {
		elapsed = time.Since(o.startedAt)
	}
	o.mu.Unlock()

	return Stats{
		RunID:               st.RunID,
		TotalKeywords:       st.Total,
		CleanedKeywords:     len(st.Cleaned),
		UniqueKeywords:      len(st.Unique),
		DuplicatesRemoved:   st.DuplicatesRemoved,
		NearDuplicateGroups: st.NearDuplicateGroups,
		Clusters:            len(st.Clusters),
		Warnings:            len(st.Warnings),
		Elapsed:             elapsed,
		Paused:              paused,
	}
}

func (o *Orchestrator) runRecord(st RunState, stage string) checkpoint.RunRecord {
	return checkpoint.RunRecord{
		ID:                st.RunID,
		Stage:             stage,
		ProcessedKeywords: st.Processed,
		TotalKeywords:     st.Total,
		CurrentBatch:      st.CurrentBatch,
		TotalBatches:      st.TotalBatches,
		Error:             st.Error,
		StartedAt:         o.started(),
	}
}

func (o *Orchestrator) started() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.startedAt.IsZero() {
		return time.Now().UTC()
	}
	return o.startedAt
}

func (o *Orchestrator) snapshot() RunState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *Orchestrator) setState(st RunState) {
	o.mu.Lock()
	o.state = st
	o.mu.Unlock()
}

func (o *Orchestrator) notifyProgress() {
	if o.deps.OnProgress != nil {
		o.deps.OnProgress(o.GetProgress())
	}
}

func (o *Orchestrator) pauseRequested() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pauseReq
}

// fastSample keeps the highest-volume half of the sample budget
// plus a seeded random draw from the remainder.
func fastSample(raw []keyword.Raw, seed int64) []keyword.Raw {
	n := len(raw)
	target := int(math.Ceil(fastSampleFraction * float64(n)))
	if target < fastSampleFloor {
		target = fastSampleFloor
	}
	if target >= n {
		return raw
	}

	byVolume := make([]keyword.Raw, n)
	copy(byVolume, raw)
	sort.SliceStable(byVolume, func(i, j int) bool {
		return rawVolume(byVolume[i]) > rawVolume(byVolume[j])
	})

	top := target / 2
	sample := make([]keyword.Raw, 0, target)
	sample = append(sample, byVolume[:top]...)

	rest := byVolume[top:]
	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(len(rest))
	for _, idx := range perm[:target-top] {
		sample = append(sample, rest[idx])
	}
	return sample
}

func rawVolume(r keyword.Raw) int {
	s := strings.ReplaceAll(strings.TrimSpace(r.SearchVolume), ",", "")
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0
	}
	return v
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
