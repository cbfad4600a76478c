package clean

import (
	"testing"

	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/keyword"
)

func TestPhraseNormalization(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Running!!  Shoes  ", "running shoes"},
		{"Buy Cheap Laptops", "buy cheap laptops"},
		{"wi-fi router", "wi-fi router"},
		{"tabs\tand\nnewlines", "tabs and newlines"},
		{"émigré coffee", "émigré coffee"},
		{"", ""},
		{"!!!", ""},
	}
	for _, tt := range tests {
		if got := Phrase(tt.in); got != tt.want {
			t.Errorf("Phrase(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPhraseIdempotent(t *testing.T) {
	inputs := []string{
		"  Running!!  Shoes  ",
		"best 4k tv 2024",
		"wi-fi -- router",
		"UPPER case MIX",
	}
	for _, in := range inputs {
		once := Phrase(in)
		twice := Phrase(once)
		if once != twice {
			t.Errorf("Phrase not idempotent for %q: %q != %q", in, once, twice)
		}
	}
}

func TestCleanNumericDegradation(t *testing.T) {
	c := New(DefaultConfig())
	records, warnings := c.Clean([]keyword.Raw{
		{Phrase: "running shoes", SearchVolume: "1000", Competition: "0.3", CPC: "$1.25"},
		{Phrase: "trail shoes", SearchVolume: "abc", Competition: "1.7", CPC: "-2"},
		{Phrase: "hiking boots"},
	})
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}

	good := records[0]
	if good.SearchVolume == nil || *good.SearchVolume != 1000 {
		t.Errorf("volume not parsed: %v", good.SearchVolume)
	}
	if good.Competition == nil || *good.Competition != 0.3 {
		t.Errorf("competition not parsed: %v", good.Competition)
	}
	if good.CPC == nil || *good.CPC != 1.25 {
		t.Errorf("cpc not parsed: %v", good.CPC)
	}

	bad := records[1]
	if bad.SearchVolume != nil || bad.Competition != nil || bad.CPC != nil {
		t.Errorf("malformed fields should degrade to null: %+v", bad)
	}
	if len(warnings) != 3 {
		t.Errorf("expected 3 parse warnings, got %d: %v", len(warnings), warnings)
	}

	missing := records[2]
	if missing.SearchVolume != nil || missing.Competition != nil {
		t.Errorf("absent fields should be null without warnings: %+v", missing)
	}
}

func TestCleanDropsLowQuality(t *testing.T) {
	c := New(DefaultConfig())
	records, _ := c.Clean([]keyword.Raw{
		{Phrase: "good keyword"},
		{Phrase: "- - - - - a"}, // mostly hyphens, quality below threshold
		{Phrase: "!!!"},
	})
	if len(records) != 1 {
		t.Fatalf("expected 1 surviving record, got %d", len(records))
	}
	if records[0].CleanedPhrase != "good keyword" {
		t.Errorf("wrong survivor: %q", records[0].CleanedPhrase)
	}
}

func TestCleanStripsMarkup(t *testing.T) {
	c := New(DefaultConfig())
	records, _ := c.Clean([]keyword.Raw{
		{Phrase: "<b>running</b> shoes"},
	})
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	if records[0].CleanedPhrase != "running shoes" {
		t.Errorf("markup not stripped: %q", records[0].CleanedPhrase)
	}
}

func TestQualityScoreBounds(t *testing.T) {
	c := New(Config{MinQuality: 0.01, StripMarkup: true})
	records, _ := c.Clean([]keyword.Raw{{Phrase: "plain words"}})
	if len(records) != 1 {
		t.Fatalf("expected 1 record")
	}
	q := records[0].QualityScore
	if q < 0 || q > 1 {
		t.Errorf("quality score out of bounds: %f", q)
	}
}
