// Package checkpoint defines durable, integrity-validated snapshots of
// batch orchestrator state, and the store interface the persistence
// collaborator implements.
package checkpoint

import (
	"context"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/internalerr"
	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/keyword"
)

const (
	// EncodingRaw stores the serialized state as-is.
	EncodingRaw = "raw"
	// EncodingBase64 wraps larger payloads for transport portability.
	// It is an encoding, not compression; kept for checkpoint
	// portability across stores.
	EncodingBase64 = "base64"

	// encodeThreshold is the payload size above which base64 wrapping
	// kicks in.
	encodeThreshold = 1000

	// DefaultKeep is how many checkpoints survive pruning per run.
	DefaultKeep = 5
)

// Checkpoint is one durable snapshot. Immutable once written.
type Checkpoint struct {
	ID                string    `db:"id"`
	RunID             string    `db:"run_id"`
	Stage             string    `db:"stage"`
	BatchNumber       int       `db:"batch_number"`
	KeywordsProcessed int       `db:"keywords_processed"`
	State             string    `db:"state"`
	Encoding          string    `db:"encoding"`
	ValidationHash    string    `db:"validation_hash"`
	Recoverable       bool      `db:"recoverable"`
	RecoveryHint      string    `db:"recovery_hint"`
	MemoryUsageMB     float64   `db:"memory_usage_mb"`
	CreatedAt         time.Time `db:"created_at"`
}

// Summary is the listing view of a checkpoint, without the payload.
type Summary struct {
	ID                string    `db:"id"`
	Stage             string    `db:"stage"`
	BatchNumber       int       `db:"batch_number"`
	KeywordsProcessed int       `db:"keywords_processed"`
	Recoverable       bool      `db:"recoverable"`
	CreatedAt         time.Time `db:"created_at"`
}

// Receipt confirms a successful save.
type Receipt struct {
	CheckpointID   string
	ValidationHash string
	MemoryUsageMB  float64
	Timestamp      time.Time
}

// New builds a sealed checkpoint from raw serialized state: the payload
// is encoded, and the validation hash covers stage, batch number,
// processed count, and the stored payload.
func New(runID, stage string, batchNumber, processed int, state []byte) Checkpoint {
	cp := Checkpoint{
		RunID:             runID,
		Stage:             stage,
		BatchNumber:       batchNumber,
		KeywordsProcessed: processed,
		Recoverable:       true,
		RecoveryHint:      fmt.Sprintf("resume after stage %q, batch %d", stage, batchNumber),
	}
	if len(state) > encodeThreshold {
		cp.State = base64.StdEncoding.EncodeToString(state)
		cp.Encoding = EncodingBase64
	} else {
		cp.State = string(state)
		cp.Encoding = EncodingRaw
	}
	cp.ValidationHash = Hash(cp)
	return cp
}

// Hash computes the MD5 integrity hash over the checkpoint identity
// fields and the stored payload.
func Hash(cp Checkpoint) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s|%d|%d|%s", cp.Stage, cp.BatchNumber, cp.KeywordsProcessed, cp.State)))
	return hex.EncodeToString(sum[:])
}

// Verify recomputes the integrity hash and fails on any mismatch. Resume
// must not proceed from a corrupted checkpoint.
func (cp Checkpoint) Verify() error {
	if Hash(cp) != cp.ValidationHash {
		return fmt.Errorf("%w: checkpoint %s", internalerr.ErrChecksumMismatch, cp.ID)
	}
	return nil
}

// DecodeState returns the raw serialized state regardless of encoding.
func (cp Checkpoint) DecodeState() ([]byte, error) {
	switch cp.Encoding {
	case EncodingBase64:
		return base64.StdEncoding.DecodeString(cp.State)
	case EncodingRaw, "":
		return []byte(cp.State), nil
	default:
		return nil, fmt.Errorf("%w: unknown checkpoint encoding %q", internalerr.ErrInvalidInput, cp.Encoding)
	}
}

// NewID returns a fresh ULID for runs and checkpoints.
func NewID() string {
	return ulid.Make().String()
}

// Store persists checkpoints. Save assigns the ID, timestamp, and memory
// sample, then prunes older checkpoints beyond the configured keep count
// for the same run. LoadLatest returns the newest recoverable checkpoint
// after verifying its hash.
type Store interface {
	Save(ctx context.Context, cp Checkpoint) (Receipt, error)
	LoadLatest(ctx context.Context, runID string) (Checkpoint, bool, error)
	ListAll(ctx context.Context, runID string) ([]Summary, error)
	Close() error
}

// RunRecord is the stored view of one batch run.
type RunRecord struct {
	ID                string    `db:"id"`
	Stage             string    `db:"stage"`
	ProcessedKeywords int       `db:"processed_keywords"`
	TotalKeywords     int       `db:"total_keywords"`
	CurrentBatch      int       `db:"current_batch"`
	TotalBatches      int       `db:"total_batches"`
	Error             string    `db:"error"`
	StartedAt         time.Time `db:"started_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

// ResultStore is the simple keyed storage the persistence collaborator
// provides for runs and finished pipeline output.
type ResultStore interface {
	SaveRun(ctx context.Context, run RunRecord) error
	GetRun(ctx context.Context, runID string) (RunRecord, bool, error)
	SaveKeywords(ctx context.Context, runID string, records []keyword.Record) error
	LoadKeywords(ctx context.Context, runID string, tier keyword.Tier, limit int) ([]keyword.Record, error)
	SaveClusters(ctx context.Context, runID string, clusters []keyword.Cluster) error
	LoadClusters(ctx context.Context, runID string) ([]keyword.Cluster, error)
}
