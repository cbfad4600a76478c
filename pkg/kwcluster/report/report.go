// Package report renders a pipeline run as a Markdown topic plan, with
// optional HTML output.
package report

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/keyword"
)

// Input is everything a report needs from a finished run.
type Input struct {
	Title       string
	GeneratedAt time.Time
	Keywords    []keyword.Record
	Clusters    []keyword.Cluster
	// TopPerCluster caps the keywords listed under each cluster.
	// Zero means the default of 10.
	TopPerCluster int
}

const defaultTopPerCluster = 10

// Markdown renders the topic plan as Markdown. Clusters are ordered by
// their best member's priority, keywords within a cluster by priority.
func Markdown(in Input) string {
	top := in.TopPerCluster
	if top <= 0 {
		top = defaultTopPerCluster
	}
	title := in.Title
	if title == "" {
		title = "Keyword Topic Plan"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	if !in.GeneratedAt.IsZero() {
		fmt.Fprintf(&b, "Generated %s\n\n", in.GeneratedAt.UTC().Format("2006-01-02 15:04 UTC"))
	}

	fmt.Fprintf(&b, "## Summary\n\n")
	fmt.Fprintf(&b, "| Keywords | Clusters | High priority | Medium priority | Low priority |\n")
	fmt.Fprintf(&b, "|---:|---:|---:|---:|---:|\n")
	high, med, low := tierCounts(in.Keywords)
	fmt.Fprintf(&b, "| %d | %d | %d | %d | %d |\n\n",
		len(in.Keywords), len(in.Clusters), high, med, low)

	for _, c := range orderClusters(in.Clusters) {
		fmt.Fprintf(&b, "## %s\n\n", c.Name)
		fmt.Fprintf(&b, "%d keywords, silhouette %.2f, coherence %.2f\n\n",
			len(c.Members), c.Silhouette, c.Coherence)

		members := orderMembers(c.Members)
		if len(members) > top {
			members = members[:top]
		}
		fmt.Fprintf(&b, "| Keyword | Volume | Priority | Tier |\n")
		fmt.Fprintf(&b, "|---|---:|---:|---|\n")
		for _, m := range members {
			fmt.Fprintf(&b, "| %s | %d | %s | %s |\n",
				m.CleanedPhrase, m.Volume(), priorityCell(m), m.PriorityTier)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// HTML renders the Markdown plan to HTML.
func HTML(in Input) (string, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.Table))
	var buf bytes.Buffer
	if err := md.Convert([]byte(Markdown(in)), &buf); err != nil {
		return "", fmt.Errorf("render report: %w", err)
	}
	return buf.String(), nil
}

func tierCounts(records []keyword.Record) (high, med, low int) {
	for _, r := range records {
		switch r.PriorityTier {
		case keyword.TierHigh:
			high++
		case keyword.TierMedium:
			med++
		case keyword.TierLow:
			low++
		}
	}
	return
}

func priorityCell(r keyword.Record) string {
	if r.PriorityScore == nil {
		return "-"
	}
	return fmt.Sprintf("%.3f", *r.PriorityScore)
}

// orderClusters sorts clusters by their best member's priority, falling
// back to id for stability.
func orderClusters(clusters []keyword.Cluster) []keyword.Cluster {
	out := append([]keyword.Cluster(nil), clusters...)
	sort.SliceStable(out, func(i, j int) bool {
		bi, bj := bestPriority(out[i]), bestPriority(out[j])
		if bi != bj {
			return bi > bj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func bestPriority(c keyword.Cluster) float64 {
	best := 0.0
	for _, m := range c.Members {
		if m.PriorityScore != nil && *m.PriorityScore > best {
			best = *m.PriorityScore
		}
	}
	return best
}

func orderMembers(members []keyword.Record) []keyword.Record {
	out := append([]keyword.Record(nil), members...)
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := 0.0, 0.0
		if out[i].PriorityScore != nil {
			pi = *out[i].PriorityScore
		}
		if out[j].PriorityScore != nil {
			pj = *out[j].PriorityScore
		}
		if pi != pj {
			return pi > pj
		}
		return out[i].CleanedPhrase < out[j].CleanedPhrase
	})
	return out
}
