package keyword

// Raw is a keyword row as delivered by a keyword source. Numeric fields
// arrive as text and may be empty or malformed; the cleaner degrades bad
// values to null rather than rejecting the row.
type Raw struct {
	Phrase       string `json:"phrase"`
	SearchVolume string `json:"search_volume,omitempty"`
	Competition  string `json:"competition,omitempty"`
	CPC          string `json:"cpc,omitempty"`
}

// Tier buckets keywords by priority score.
type Tier string

const (
	TierHigh   Tier = "high"
	TierMedium Tier = "medium"
	TierLow    Tier = "low"
)

// Record is a keyword as it moves through the pipeline. The cleaner
// creates it, the deduplicator drops exact duplicates, the clustering
// engine assigns ClusterID/ClusterName, and the scorer fills the
// priority fields.
//
// CleanedPhrase is always lowercase, whitespace-collapsed, and contains
// only [a-z0-9 -].
type Record struct {
	Phrase        string   `json:"phrase"`
	CleanedPhrase string   `json:"cleaned_phrase"`
	SearchVolume  *int     `json:"search_volume"`
	Competition   *float64 `json:"competition"`
	CPC           *float64 `json:"cpc"`
	QualityScore  float64  `json:"quality_score"`

	ClusterID   *int   `json:"cluster_id"`
	ClusterName string `json:"cluster_name,omitempty"`

	PriorityScore    *float64 `json:"priority_score"`
	PriorityTier     Tier     `json:"priority_tier,omitempty"`
	BusinessValue    float64  `json:"business_value_score"`
	OpportunityScore float64  `json:"opportunity_score"`
}

// Volume returns the search volume, or 0 when unknown.
func (r Record) Volume() int {
	if r.SearchVolume == nil {
		return 0
	}
	return *r.SearchVolume
}

// CompetitionOrZero returns the competition value, or 0 when unknown.
func (r Record) CompetitionOrZero() float64 {
	if r.Competition == nil {
		return 0
	}
	return *r.Competition
}

// Cluster is one semantic topic produced by a clustering run. Immutable
// after creation within a run; clusters never span runs.
type Cluster struct {
	ID         int       `json:"id"`
	Name       string    `json:"name"`
	Members    []Record  `json:"members"`
	Centroid   []float64 `json:"-"`
	Silhouette float64   `json:"silhouette"`
	Coherence  float64   `json:"coherence"`
}
