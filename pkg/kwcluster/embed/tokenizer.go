package embed

import "strings"

// defaultStopwords covers common English function words. A custom list
// can be supplied through Config (loaded from YAML by the config package).
var defaultStopwords = []string{
	"a", "an", "and", "are", "as", "at", "be", "but", "by", "for", "from",
	"had", "has", "have", "he", "her", "his", "i", "in", "is", "it", "its",
	"of", "on", "or", "our", "so", "than", "that", "the", "their", "them",
	"they", "this", "to", "too", "was", "we", "were", "will", "with", "you",
	"your",
}

// Tokenizer splits cleaned phrases into tokens, with optional stopword
// removal and stemming.
type Tokenizer struct {
	stopwords  map[string]struct{}
	removeStop bool
	stem       bool
}

// NewTokenizer creates a tokenizer. A nil stopword list selects the
// built-in default.
func NewTokenizer(stopwords []string, removeStopwords, stem bool) *Tokenizer {
	if stopwords == nil {
		stopwords = defaultStopwords
	}
	stops := make(map[string]struct{}, len(stopwords))
	for _, w := range stopwords {
		stops[strings.ToLower(w)] = struct{}{}
	}
	return &Tokenizer{stopwords: stops, removeStop: removeStopwords, stem: stem}
}

// Tokenize splits an already-cleaned phrase into processed tokens.
// Cleaned phrases are lowercase and whitespace-collapsed, so a field
// split is sufficient.
func (t *Tokenizer) Tokenize(phrase string) []string {
	fields := strings.Fields(phrase)
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, "-")
		if f == "" {
			continue
		}
		if t.removeStop {
			if _, ok := t.stopwords[f]; ok {
				continue
			}
		}
		if t.stem {
			f = stem(f)
		}
		tokens = append(tokens, f)
	}
	return tokens
}

// stem applies a small Porter-style suffix stripper. It only needs to
// conflate close variants ("shoes"/"shoe", "running"/"run") so that
// near-identical keywords share vocabulary entries.
func stem(word string) string {
	if len(word) < 4 {
		return word
	}

	switch {
	case strings.HasSuffix(word, "sses"):
		word = word[:len(word)-2]
	case strings.HasSuffix(word, "ies"):
		word = word[:len(word)-2]
	case strings.HasSuffix(word, "ss"):
		// keep
	case strings.HasSuffix(word, "s"):
		word = word[:len(word)-1]
	}

	switch {
	case strings.HasSuffix(word, "eed"):
		word = word[:len(word)-1]
	case strings.HasSuffix(word, "ing") && len(word) > 5:
		word = undouble(word[:len(word)-3])
	case strings.HasSuffix(word, "ed") && len(word) > 4:
		word = undouble(word[:len(word)-2])
	}

	switch {
	case strings.HasSuffix(word, "ization"):
		word = word[:len(word)-5] + "ize"
	case strings.HasSuffix(word, "ational"):
		word = word[:len(word)-5] + "ate"
	case strings.HasSuffix(word, "fulness"),
		strings.HasSuffix(word, "ousness"),
		strings.HasSuffix(word, "iveness"):
		word = word[:len(word)-4]
	}

	return word
}

// undouble collapses a trailing doubled consonant ("runn" → "run").
func undouble(word string) string {
	n := len(word)
	if n >= 2 && word[n-1] == word[n-2] && !isVowel(word[n-1]) {
		return word[:n-1]
	}
	return word
}

func isVowel(c byte) bool {
	switch c {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	}
	return false
}
