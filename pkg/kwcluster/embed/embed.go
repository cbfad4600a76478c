// Package embed turns cleaned keywords into fixed-length feature vectors:
// five engineered scalars concatenated with a TF-IDF semantic embedding.
package embed

import (
	"math"
	"regexp"

	"github.com/wahengchang/keywords-cluster-topic/pkg/kwcluster/keyword"
)

// DefaultSemanticWeight is the share of the feature vector carried by the
// TF-IDF embedding; the remainder goes to the engineered scalars.
const DefaultSemanticWeight = 0.7

// Engineered scalar weights within the (1−semanticWeight) share:
// volume, competition, word count, question intent, commercial intent.
var scalarWeights = [5]float64{0.4, 0.3, 0.1, 0.1, 0.1}

var (
	questionRe   = regexp.MustCompile(`(^|\s)(who|what|when|where|why|how|which|can|could|should|will|would|do|does|did|is|are)(\s|$)`)
	commercialRe = regexp.MustCompile(`(^|\s)(buy|price|prices|pricing|cheap|deal|deals|discount|best|top|review|reviews|compare|vs|sale|cost|coupon|order|shop)(\s|$)`)
)

// Config controls tokenization and feature weighting.
type Config struct {
	// Stopwords overrides the built-in stopword list when non-nil.
	Stopwords       []string
	RemoveStopwords bool
	Stem            bool
	// SemanticWeight ∈ [0,1] balances TF-IDF against engineered scalars.
	SemanticWeight float64
}

// DefaultConfig returns the embedding defaults.
func DefaultConfig() Config {
	return Config{
		RemoveStopwords: true,
		Stem:            true,
		SemanticWeight:  DefaultSemanticWeight,
	}
}

// Matrix is the per-keyword feature matrix for one corpus. Row i
// corresponds to the i-th input record. It exists only for the duration
// of a clustering run.
type Matrix struct {
	Vectors [][]float64
	Tokens  [][]string
	Vocab   map[string]int
}

// Dim returns the feature vector length (5 scalars + vocabulary size).
func (m *Matrix) Dim() int {
	return 5 + len(m.Vocab)
}

// Builder constructs feature matrices.
type Builder struct {
	cfg       Config
	tokenizer *Tokenizer
}

// NewBuilder creates a Builder with the given config.
func NewBuilder(cfg Config) *Builder {
	if cfg.SemanticWeight < 0 || cfg.SemanticWeight > 1 {
		cfg.SemanticWeight = DefaultSemanticWeight
	}
	return &Builder{
		cfg:       cfg,
		tokenizer: NewTokenizer(cfg.Stopwords, cfg.RemoveStopwords, cfg.Stem),
	}
}

// Tokenizer exposes the builder's token pipeline so cluster naming runs
// through the exact same stopword/stemming rules.
func (b *Builder) Tokenizer() *Tokenizer {
	return b.tokenizer
}

// Build computes the feature matrix for a corpus of unique keywords.
//
// Semantic part: tf = count/docLength, idf = ln(N/df), L2-normalized to
// unit length. Engineered part: normalized volume, competition, word
// count, and binary question/commercial indicators, weighted 0.4/0.3/
// 0.1/0.1/0.1 inside the (1−semanticWeight) share.
func (b *Builder) Build(records []keyword.Record) *Matrix {
	n := len(records)
	m := &Matrix{
		Vectors: make([][]float64, n),
		Tokens:  make([][]string, n),
		Vocab:   make(map[string]int),
	}
	if n == 0 {
		return m
	}

	// Tokenize once, growing the shared vocabulary incrementally.
	docFreq := make(map[string]int)
	for i, r := range records {
		tokens := b.tokenizer.Tokenize(r.CleanedPhrase)
		m.Tokens[i] = tokens
		seen := make(map[string]struct{}, len(tokens))
		for _, tok := range tokens {
			if _, ok := m.Vocab[tok]; !ok {
				m.Vocab[tok] = len(m.Vocab)
			}
			if _, ok := seen[tok]; ok {
				continue
			}
			seen[tok] = struct{}{}
			docFreq[tok]++
		}
	}

	idf := make([]float64, len(m.Vocab))
	for tok, idx := range m.Vocab {
		idf[idx] = math.Log(float64(n) / float64(docFreq[tok]))
	}

	maxVolume := 0
	for _, r := range records {
		if v := r.Volume(); v > maxVolume {
			maxVolume = v
		}
	}

	sw := b.cfg.SemanticWeight
	for i, r := range records {
		vec := make([]float64, 5+len(m.Vocab))

		scalars := engineeredScalars(r, maxVolume)
		for j, s := range scalars {
			vec[j] = s * scalarWeights[j] * (1 - sw)
		}

		semantic := tfidf(m.Tokens[i], m.Vocab, idf)
		for j, v := range semantic {
			vec[5+j] = v * sw
		}

		m.Vectors[i] = vec
	}
	return m
}

func engineeredScalars(r keyword.Record, maxVolume int) [5]float64 {
	var s [5]float64

	// Zero corpus volume must not divide; default to 0.
	if maxVolume > 0 {
		s[0] = float64(r.Volume()) / float64(maxVolume)
	}
	s[1] = r.CompetitionOrZero()

	wordCount := 0
	inWord := false
	for _, c := range r.CleanedPhrase {
		if c == ' ' {
			inWord = false
		} else if !inWord {
			inWord = true
			wordCount++
		}
	}
	s[2] = math.Min(float64(wordCount)/5, 1)

	if questionRe.MatchString(r.CleanedPhrase) {
		s[3] = 1
	}
	if commercialRe.MatchString(r.CleanedPhrase) {
		s[4] = 1
	}
	return s
}

// tfidf returns the unit-normalized TF-IDF vector for one document.
func tfidf(tokens []string, vocab map[string]int, idf []float64) []float64 {
	vec := make([]float64, len(vocab))
	if len(tokens) == 0 {
		return vec
	}

	counts := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		counts[tok]++
	}

	var norm float64
	for tok, count := range counts {
		idx := vocab[tok]
		tf := float64(count) / float64(len(tokens))
		v := tf * idf[idx]
		vec[idx] = v
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}
