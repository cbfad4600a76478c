// Package clean sanitizes raw keyword rows into pipeline records.
//
// Cleaning never fails a batch: malformed numeric fields degrade to null
// and are reported as ParseWarnings so callers can audit data quality.
package clean

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/net/html"

	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/keyword"
)

// DefaultMinQuality is the quality score below which records are dropped.
const DefaultMinQuality = 0.3

// Config controls the cleaning pass.
type Config struct {
	// MinQuality drops records whose quality score falls below it.
	MinQuality float64
	// StripMarkup runs phrases that look like HTML through a tag stripper
	// before normalization. Keyword exports scraped from web tools often
	// carry markup fragments.
	StripMarkup bool
}

// DefaultConfig returns the cleaning defaults.
func DefaultConfig() Config {
	return Config{MinQuality: DefaultMinQuality, StripMarkup: true}
}

// ParseWarning records a numeric field that could not be parsed and was
// degraded to null.
type ParseWarning struct {
	Row    int
	Field  string
	Value  string
	Reason string
}

// Cleaner sanitizes raw keyword rows.
type Cleaner struct {
	cfg Config
}

// New creates a Cleaner with the given config.
func New(cfg Config) *Cleaner {
	if cfg.MinQuality <= 0 {
		cfg.MinQuality = DefaultMinQuality
	}
	return &Cleaner{cfg: cfg}
}

// Clean sanitizes every raw row, assigns quality scores, and drops rows
// below the quality threshold. It never returns an error; field-level
// problems come back as warnings.
func (c *Cleaner) Clean(raw []keyword.Raw) ([]keyword.Record, []ParseWarning) {
	records := make([]keyword.Record, 0, len(raw))
	var warnings []ParseWarning

	for i, row := range raw {
		phrase := row.Phrase
		if c.cfg.StripMarkup && strings.ContainsAny(phrase, "<&") {
			phrase = stripMarkup(phrase)
		}
		cleaned := Phrase(phrase)
		quality := qualityScore(cleaned)
		if cleaned == "" || quality < c.cfg.MinQuality {
			continue
		}

		rec := keyword.Record{
			Phrase:        row.Phrase,
			CleanedPhrase: cleaned,
			QualityScore:  quality,
		}

		if v, w := parseVolume(row.SearchVolume); w == "" {
			rec.SearchVolume = v
		} else {
			warnings = append(warnings, ParseWarning{Row: i, Field: "search_volume", Value: row.SearchVolume, Reason: w})
		}
		if v, w := parseCompetition(row.Competition); w == "" {
			rec.Competition = v
		} else {
			warnings = append(warnings, ParseWarning{Row: i, Field: "competition", Value: row.Competition, Reason: w})
		}
		if v, w := parseCPC(row.CPC); w == "" {
			rec.CPC = v
		} else {
			warnings = append(warnings, ParseWarning{Row: i, Field: "cpc", Value: row.CPC, Reason: w})
		}

		records = append(records, rec)
	}

	return records, warnings
}

// Phrase normalizes a keyword phrase: control characters are removed,
// anything outside letters/digits/whitespace/hyphen is dropped, whitespace
// collapses to single spaces, and the result is lowercased.
//
// The transform is idempotent: Phrase(Phrase(x)) == Phrase(x).
func Phrase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsControl(r):
			// dropped
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		case r == '-':
			b.WriteRune('-')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// qualityScore is the ratio of alphanumeric characters to total length of
// the cleaned phrase, clamped to [0,1].
func qualityScore(cleaned string) float64 {
	if cleaned == "" {
		return 0
	}
	alnum := 0
	total := 0
	for _, r := range cleaned {
		total++
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			alnum++
		}
	}
	score := float64(alnum) / float64(total)
	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

func parseVolume(s string) (*int, string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ""
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return nil, "not an integer"
	}
	if v < 0 {
		return nil, "negative volume"
	}
	return &v, ""
}

func parseCompetition(s string) (*float64, string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ""
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, "not a number"
	}
	if v < 0 || v > 1 {
		return nil, "outside [0,1]"
	}
	return &v, ""
}

func parseCPC(s string) (*float64, string) {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "$"))
	if s == "" {
		return nil, ""
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, "not a number"
	}
	if v < 0 {
		return nil, "negative cpc"
	}
	return &v, ""
}

// stripMarkup extracts the text content of an HTML fragment. Parsing
// plain text is a no-op, so this is safe on anything that merely looks
// like markup.
func stripMarkup(s string) string {
	doc, err := html.Parse(strings.NewReader(s))
	if err != nil {
		return s
	}
	var text strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			text.WriteString(n.Data)
			text.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return text.String()
}
