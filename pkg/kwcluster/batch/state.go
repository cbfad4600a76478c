package batch

import (
	"encoding/json"

	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/clean"
	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/keyword"
)

// Stage names, in fixed execution order. A run moves through the
// pipeline stages strictly in sequence; paused and failed are terminal
// only until a resume or a fresh run.
const (
	StageInitializing  = "initializing"
	StageCleaning      = "cleaning"
	StageDeduplication = "deduplication"
	StageClustering    = "clustering"
	StageScoring       = "scoring"
	StageFinalizing    = "finalizing"
	StageCompleted     = "completed"
	StageFailed        = "failed"
	StagePaused        = "paused"
)

// RunState is one immutable snapshot of a run between batch and stage
// boundaries. Stages never mutate a state in place; each boundary
// produces the next snapshot, and that snapshot is what checkpoints
// serialize. Stage always names the next work to perform, so a resumed
// run picks up exactly where the snapshot left off.
type RunState struct {
	RunID        string `json:"run_id"`
	Stage        string `json:"stage"`
	BatchSize    int    `json:"batch_size"`
	TotalBatches int    `json:"total_batches"`
	CurrentBatch int    `json:"current_batch"`
	Processed    int    `json:"processed"`
	Total        int    `json:"total"`

	Raw      []keyword.Raw        `json:"raw,omitempty"`
	Cleaned  []keyword.Record     `json:"cleaned,omitempty"`
	Warnings []clean.ParseWarning `json:"warnings,omitempty"`
	Unique   []keyword.Record     `json:"unique,omitempty"`
	Clusters []keyword.Cluster    `json:"clusters,omitempty"`
	Scored   []keyword.Record     `json:"scored,omitempty"`

	DuplicatesRemoved   int    `json:"duplicates_removed"`
	NearDuplicateGroups int    `json:"near_duplicate_groups"`
	Error               string `json:"error,omitempty"`
}

// encode serializes the snapshot for checkpointing.
func (st RunState) encode() ([]byte, error) {
	return json.Marshal(st)
}

// decodeState reconstructs a snapshot from a checkpoint payload.
func decodeState(data []byte) (RunState, error) {
	var st RunState
	err := json.Unmarshal(data, &st)
	return st, err
}

// terminal reports whether the run has reached a final stage.
func (st RunState) terminal() bool {
	return st.Stage == StageCompleted || st.Stage == StageFailed
}

// stageProgress maps stages past cleaning to an overall percent.
// Cleaning dominates wall time for large corpora, so its share scales
// with processed keywords; the global stages get fixed slices.
func (st RunState) progressPercent() float64 {
	switch st.Stage {
	case StageInitializing:
		return 0
	case StageCleaning:
		if st.Total == 0 {
			return 0
		}
		return 60 * float64(st.Processed) / float64(st.Total)
	case StageDeduplication:
		return 60
	case StageClustering:
		return 70
	case StageScoring:
		return 85
	case StageFinalizing:
		return 95
	case StageCompleted:
		return 100
	default:
		return 0
	}
}
