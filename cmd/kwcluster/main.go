// kwcluster runs the keyword clustering pipeline in one pass: CSV in,
// JSON or a rendered topic plan out.
package main

import (
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster"
	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/config"
	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/keyword"
	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/report"
)

func main() {
	var (
		input      = flag.String("input", "", "Path to keywords CSV (required)")
		configPath = flag.String("config", "", "Optional: pipeline config YAML")
		format     = flag.String("format", "json", "Output format: json, markdown, html")
		output     = flag.String("output", "", "Output file (default stdout)")
		clusters   = flag.Int("clusters", 0, "Force the cluster count (0 = automatic)")
		verbose    = flag.Bool("verbose", false, "Log pipeline progress to stderr")
	)
	flag.Parse()

	if *input == "" {
		log.Fatal("--input required")
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
	}
	if *clusters > 0 {
		cfg.Cluster.ForcedK = *clusters
	}

	embedCfg, err := cfg.EmbedConfig()
	if err != nil {
		log.Fatalf("embed config: %v", err)
	}
	opts := kwcluster.Options{
		Clean:   cfg.CleanConfig(),
		Dedup:   cfg.DedupConfig(),
		Embed:   embedCfg,
		Cluster: cfg.ClusterConfig(),
		Weights: cfg.Score,
	}
	if *verbose {
		opts.Logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	raw, err := loadCSV(*input)
	if err != nil {
		log.Fatalf("load keywords: %v", err)
	}

	res := kwcluster.New(opts).Process(raw)
	for _, w := range res.Warnings {
		fmt.Fprintf(os.Stderr, "warning: row %d %s %q: %s\n", w.Row, w.Field, w.Value, w.Reason)
	}

	out := os.Stdout
	if *output != "" {
		f, err := os.Create(*output)
		if err != nil {
			log.Fatalf("create output: %v", err)
		}
		defer f.Close()
		out = f
	}

	if err := render(out, *format, res); err != nil {
		log.Fatal(err)
	}
	fmt.Fprintf(os.Stderr, "%d keywords in %d clusters (%d duplicates removed)\n",
		len(res.Keywords), len(res.Clusters), res.Stats.DuplicatesRemoved)
}

func render(w io.Writer, format string, res kwcluster.Result) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Keywords []keyword.Record  `json:"keywords"`
			Clusters []keyword.Cluster `json:"clusters"`
			Stats    kwcluster.Stats   `json:"stats"`
		}{res.Keywords, res.Clusters, res.Stats})
	case "markdown":
		_, err := io.WriteString(w, report.Markdown(reportInput(res)))
		return err
	case "html":
		html, err := report.HTML(reportInput(res))
		if err != nil {
			return err
		}
		_, err = io.WriteString(w, html)
		return err
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}

func reportInput(res kwcluster.Result) report.Input {
	return report.Input{
		GeneratedAt: time.Now(),
		Keywords:    res.Keywords,
		Clusters:    res.Clusters,
	}
}

// loadCSV reads keyword rows. The first column is the phrase; volume,
// competition, and cpc follow when present. A header row is detected by
// a non-numeric volume cell named like a header.
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
		if i == 0 && isHeader(row) {
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

func isHeader(row []string) bool {
	switch row[0] {
	case "phrase", "keyword", "Keyword", "Phrase":
		return true
	}
	return false
}
