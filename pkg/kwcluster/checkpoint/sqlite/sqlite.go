// Package sqlite persists batch runs, checkpoints, and finished pipeline
// output in a SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"runtime"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/checkpoint"
	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/keyword"
)

// Store is the SQLite-backed persistence layer.
type Store struct {
	db   *sqlx.DB
	keep int
}

var (
	_ checkpoint.Store       = (*Store)(nil)
	_ checkpoint.ResultStore = (*Store)(nil)
)

// Open opens (and initializes) a SQLite database with WAL mode enabled.
// keep controls checkpoint pruning; values below 1 select the default.
func Open(ctx context.Context, path string, keep int) (*Store, error) {
	if keep < 1 {
		keep = checkpoint.DefaultKeep
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, err
	}
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, keep: keep}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func initSchema(ctx context.Context, db *sqlx.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	stage TEXT NOT NULL,
	processed_keywords INTEGER NOT NULL DEFAULT 0,
	total_keywords INTEGER NOT NULL DEFAULT 0,
	current_batch INTEGER NOT NULL DEFAULT 0,
	total_batches INTEGER NOT NULL DEFAULT 0,
	error TEXT NOT NULL DEFAULT '',
	started_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS checkpoints (
	id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	stage TEXT NOT NULL,
	batch_number INTEGER NOT NULL,
	keywords_processed INTEGER NOT NULL,
	state TEXT NOT NULL,
	encoding TEXT NOT NULL,
	validation_hash TEXT NOT NULL,
	recoverable INTEGER NOT NULL,
	recovery_hint TEXT NOT NULL DEFAULT '',
	memory_usage_mb REAL NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_checkpoints_run ON checkpoints(run_id, created_at);

CREATE TABLE IF NOT EXISTS keywords (
	run_id TEXT NOT NULL,
	position INTEGER NOT NULL,
	phrase TEXT NOT NULL,
	cleaned_phrase TEXT NOT NULL,
	search_volume INTEGER,
	competition REAL,
	cpc REAL,
	quality_score REAL NOT NULL,
	cluster_id INTEGER,
	cluster_name TEXT NOT NULL DEFAULT '',
	priority_score REAL,
	priority_tier TEXT NOT NULL DEFAULT '',
	business_value REAL NOT NULL DEFAULT 0,
	opportunity_score REAL NOT NULL DEFAULT 0,
	PRIMARY KEY(run_id, position)
);

CREATE TABLE IF NOT EXISTS clusters (
	run_id TEXT NOT NULL,
	id INTEGER NOT NULL,
	name TEXT NOT NULL,
	silhouette REAL NOT NULL,
	coherence REAL NOT NULL,
	PRIMARY KEY(run_id, id)
);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// Save inserts a checkpoint and prunes older ones for the same run.
func (s *Store) Save(ctx context.Context, cp checkpoint.Checkpoint) (checkpoint.Receipt, error) {
	cp.ID = checkpoint.NewID()
	cp.CreatedAt = time.Now().UTC()
	cp.MemoryUsageMB = memoryUsageMB()

	insert := sq.Insert("checkpoints").
		Columns("id", "run_id", "stage", "batch_number", "keywords_processed",
			"state", "encoding", "validation_hash", "recoverable",
			"recovery_hint", "memory_usage_mb", "created_at").
		Values(cp.ID, cp.RunID, cp.Stage, cp.BatchNumber, cp.KeywordsProcessed,
			cp.State, cp.Encoding, cp.ValidationHash, cp.Recoverable,
			cp.RecoveryHint, cp.MemoryUsageMB, cp.CreatedAt.Format(time.RFC3339Nano))

	query, args, err := insert.ToSql()
	if err != nil {
		return checkpoint.Receipt{}, err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return checkpoint.Receipt{}, fmt.Errorf("insert checkpoint: %w", err)
	}

	if err := s.prune(ctx, cp.RunID); err != nil {
		return checkpoint.Receipt{}, fmt.Errorf("prune checkpoints: %w", err)
	}

	return checkpoint.Receipt{
		CheckpointID:   cp.ID,
		ValidationHash: cp.ValidationHash,
		MemoryUsageMB:  cp.MemoryUsageMB,
		Timestamp:      cp.CreatedAt,
	}, nil
}

// prune keeps the newest N checkpoints for a run. ULIDs sort
// lexicographically by creation time, so id ordering matches recency.
func (s *Store) prune(ctx context.Context, runID string) error {
	_, err := s.db.ExecContext(ctx, `
DELETE FROM checkpoints WHERE run_id = ? AND id NOT IN (
	SELECT id FROM checkpoints WHERE run_id = ? ORDER BY id DESC LIMIT ?
)`, runID, runID, s.keep)
	return err
}

type checkpointRow struct {
	ID                string  `db:"id"`
	RunID             string  `db:"run_id"`
	Stage             string  `db:"stage"`
	BatchNumber       int     `db:"batch_number"`
	KeywordsProcessed int     `db:"keywords_processed"`
	State             string  `db:"state"`
	Encoding          string  `db:"encoding"`
	ValidationHash    string  `db:"validation_hash"`
	Recoverable       bool    `db:"recoverable"`
	RecoveryHint      string  `db:"recovery_hint"`
	MemoryUsageMB     float64 `db:"memory_usage_mb"`
	CreatedAt         string  `db:"created_at"`
}

func (r checkpointRow) toCheckpoint() checkpoint.Checkpoint {
	created, _ := time.Parse(time.RFC3339Nano, r.CreatedAt)
	return checkpoint.Checkpoint{
		ID:                r.ID,
		RunID:             r.RunID,
		Stage:             r.Stage,
		BatchNumber:       r.BatchNumber,
		KeywordsProcessed: r.KeywordsProcessed,
		State:             r.State,
		Encoding:          r.Encoding,
		ValidationHash:    r.ValidationHash,
		Recoverable:       r.Recoverable,
		RecoveryHint:      r.RecoveryHint,
		MemoryUsageMB:     r.MemoryUsageMB,
		CreatedAt:         created,
	}
}

// LoadLatest returns the newest recoverable checkpoint after hash
// verification. A corrupted checkpoint fails the load outright.
func (s *Store) LoadLatest(ctx context.Context, runID string) (checkpoint.Checkpoint, bool, error) {
	var row checkpointRow
	err := s.db.GetContext(ctx, &row, `
SELECT * FROM checkpoints WHERE run_id = ? AND recoverable = 1 ORDER BY id DESC LIMIT 1`, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return checkpoint.Checkpoint{}, false, nil
	}
	if err != nil {
		return checkpoint.Checkpoint{}, false, err
	}

	cp := row.toCheckpoint()
	if err := cp.Verify(); err != nil {
		return checkpoint.Checkpoint{}, false, err
	}
	return cp, true, nil
}

// ListAll returns checkpoint summaries for a run, newest first.
func (s *Store) ListAll(ctx context.Context, runID string) ([]checkpoint.Summary, error) {
	query, args, err := sq.Select("id", "stage", "batch_number", "keywords_processed", "recoverable", "created_at").
		From("checkpoints").
		Where(sq.Eq{"run_id": runID}).
		OrderBy("id DESC").
		ToSql()
	if err != nil {
		return nil, err
	}

	var rows []struct {
		ID                string `db:"id"`
		Stage             string `db:"stage"`
		BatchNumber       int    `db:"batch_number"`
		KeywordsProcessed int    `db:"keywords_processed"`
		Recoverable       bool   `db:"recoverable"`
		CreatedAt         string `db:"created_at"`
	}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	out := make([]checkpoint.Summary, len(rows))
	for i, r := range rows {
		created, _ := time.Parse(time.RFC3339Nano, r.CreatedAt)
		out[i] = checkpoint.Summary{
			ID:                r.ID,
			Stage:             r.Stage,
			BatchNumber:       r.BatchNumber,
			KeywordsProcessed: r.KeywordsProcessed,
			Recoverable:       r.Recoverable,
			CreatedAt:         created,
		}
	}
	return out, nil
}

// SaveRun upserts the run record.
func (s *Store) SaveRun(ctx context.Context, run checkpoint.RunRecord) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	run.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
INSERT INTO runs (id, stage, processed_keywords, total_keywords, current_batch, total_batches, error, started_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	stage = excluded.stage,
	processed_keywords = excluded.processed_keywords,
	total_keywords = excluded.total_keywords,
	current_batch = excluded.current_batch,
	total_batches = excluded.total_batches,
	error = excluded.error,
	updated_at = excluded.updated_at`,
		run.ID, run.Stage, run.ProcessedKeywords, run.TotalKeywords,
		run.CurrentBatch, run.TotalBatches, run.Error,
		run.StartedAt.Format(time.RFC3339Nano), run.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert run: %w", err)
	}
	return nil
}

// GetRun loads one run record.
func (s *Store) GetRun(ctx context.Context, runID string) (checkpoint.RunRecord, bool, error) {
	var row struct {
		ID                string `db:"id"`
		Stage             string `db:"stage"`
		ProcessedKeywords int    `db:"processed_keywords"`
		TotalKeywords     int    `db:"total_keywords"`
		CurrentBatch      int    `db:"current_batch"`
		TotalBatches      int    `db:"total_batches"`
		Error             string `db:"error"`
		StartedAt         string `db:"started_at"`
		UpdatedAt         string `db:"updated_at"`
	}
	err := s.db.GetContext(ctx, &row, `SELECT * FROM runs WHERE id = ?`, runID)
	if errors.Is(err, sql.ErrNoRows) {
		return checkpoint.RunRecord{}, false, nil
	}
	if err != nil {
		return checkpoint.RunRecord{}, false, err
	}

	started, _ := time.Parse(time.RFC3339Nano, row.StartedAt)
	updated, _ := time.Parse(time.RFC3339Nano, row.UpdatedAt)
	return checkpoint.RunRecord{
		ID:                row.ID,
		Stage:             row.Stage,
		ProcessedKeywords: row.ProcessedKeywords,
		TotalKeywords:     row.TotalKeywords,
		CurrentBatch:      row.CurrentBatch,
		TotalBatches:      row.TotalBatches,
		Error:             row.Error,
		StartedAt:         started,
		UpdatedAt:         updated,
	}, true, nil
}

// SaveKeywords replaces the stored records for a run, preserving ranked
// order through the position column.
func (s *Store) SaveKeywords(ctx context.Context, runID string, records []keyword.Record) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM keywords WHERE run_id = ?`, runID); err != nil {
		return err
	}
	for i, r := range records {
		_, err := tx.ExecContext(ctx, `
INSERT INTO keywords (run_id, position, phrase, cleaned_phrase, search_volume, competition, cpc,
	quality_score, cluster_id, cluster_name, priority_score, priority_tier, business_value, opportunity_score)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, i, r.Phrase, r.CleanedPhrase, r.SearchVolume, r.Competition, r.CPC,
			r.QualityScore, r.ClusterID, r.ClusterName, r.PriorityScore, string(r.PriorityTier),
			r.BusinessValue, r.OpportunityScore)
		if err != nil {
			return fmt.Errorf("insert keyword %d: %w", i, err)
		}
	}
	return tx.Commit()
}

type keywordRow struct {
	RunID            string          `db:"run_id"`
	Position         int             `db:"position"`
	Phrase           string          `db:"phrase"`
	CleanedPhrase    string          `db:"cleaned_phrase"`
	SearchVolume     sql.NullInt64   `db:"search_volume"`
	Competition      sql.NullFloat64 `db:"competition"`
	CPC              sql.NullFloat64 `db:"cpc"`
	QualityScore     float64         `db:"quality_score"`
	ClusterID        sql.NullInt64   `db:"cluster_id"`
	ClusterName      string          `db:"cluster_name"`
	PriorityScore    sql.NullFloat64 `db:"priority_score"`
	PriorityTier     string          `db:"priority_tier"`
	BusinessValue    float64         `db:"business_value"`
	OpportunityScore float64         `db:"opportunity_score"`
}

func (r keywordRow) toRecord() keyword.Record {
	rec := keyword.Record{
		Phrase:           r.Phrase,
		CleanedPhrase:    r.CleanedPhrase,
		QualityScore:     r.QualityScore,
		ClusterName:      r.ClusterName,
		PriorityTier:     keyword.Tier(r.PriorityTier),
		BusinessValue:    r.BusinessValue,
		OpportunityScore: r.OpportunityScore,
	}
	if r.SearchVolume.Valid {
		v := int(r.SearchVolume.Int64)
		rec.SearchVolume = &v
	}
	if r.Competition.Valid {
		v := r.Competition.Float64
		rec.Competition = &v
	}
	if r.CPC.Valid {
		v := r.CPC.Float64
		rec.CPC = &v
	}
	if r.ClusterID.Valid {
		v := int(r.ClusterID.Int64)
		rec.ClusterID = &v
	}
	if r.PriorityScore.Valid {
		v := r.PriorityScore.Float64
		rec.PriorityScore = &v
	}
	return rec
}

// LoadKeywords returns stored records in ranked order, optionally
// filtered by tier and capped at limit.
func (s *Store) LoadKeywords(ctx context.Context, runID string, tier keyword.Tier, limit int) ([]keyword.Record, error) {
	builder := sq.Select("*").From("keywords").
		Where(sq.Eq{"run_id": runID}).
		OrderBy("position ASC")
	if tier != "" {
		builder = builder.Where(sq.Eq{"priority_tier": string(tier)})
	}
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, err
	}

	var rows []keywordRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]keyword.Record, len(rows))
	for i, r := range rows {
		out[i] = r.toRecord()
	}
	return out, nil
}

// SaveClusters replaces the stored clusters for a run. Members are not
// duplicated; they are reconstructed from the keywords table on load.
func (s *Store) SaveClusters(ctx context.Context, runID string, clusters []keyword.Cluster) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM clusters WHERE run_id = ?`, runID); err != nil {
		return err
	}
	for _, c := range clusters {
		_, err := tx.ExecContext(ctx, `
INSERT INTO clusters (run_id, id, name, silhouette, coherence) VALUES (?, ?, ?, ?, ?)`,
			runID, c.ID, c.Name, c.Silhouette, c.Coherence)
		if err != nil {
			return fmt.Errorf("insert cluster %d: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// LoadClusters returns stored clusters ordered by id, with members
// rebuilt from the stored keyword records.
func (s *Store) LoadClusters(ctx context.Context, runID string) ([]keyword.Cluster, error) {
	var rows []struct {
		ID         int     `db:"id"`
		Name       string  `db:"name"`
		Silhouette float64 `db:"silhouette"`
		Coherence  float64 `db:"coherence"`
	}
	err := s.db.SelectContext(ctx, &rows,
		`SELECT id, name, silhouette, coherence FROM clusters WHERE run_id = ? ORDER BY id ASC`, runID)
	if err != nil {
		return nil, err
	}

	records, err := s.LoadKeywords(ctx, runID, "", 0)
	if err != nil {
		return nil, err
	}

	byID := make(map[int]*keyword.Cluster, len(rows))
	out := make([]keyword.Cluster, len(rows))
	for i, r := range rows {
		out[i] = keyword.Cluster{ID: r.ID, Name: r.Name, Silhouette: r.Silhouette, Coherence: r.Coherence}
		byID[r.ID] = &out[i]
	}
	for _, rec := range records {
		if rec.ClusterID == nil {
			continue
		}
		if c, ok := byID[*rec.ClusterID]; ok {
			c.Members = append(c.Members, rec)
		}
	}
	return out, nil
}

func memoryUsageMB() float64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return float64(ms.Alloc) / (1024 * 1024)
}
