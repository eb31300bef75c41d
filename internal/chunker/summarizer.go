package chunker

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

const (
	maxSummaryRunes = 280
	maxKeywords     = 8
	minKeywordRunes = 3
)

// Summarizer ranks sentences and terms by stopword-filtered word frequency.
type Summarizer struct {
	tokenPattern    *regexp.Regexp
	sentencePattern *regexp.Regexp
	stopwords       map[string]struct{}
}

// NewSummarizer creates a frequency-based summarizer.
func NewSummarizer() *Summarizer {
	return &Summarizer{
		tokenPattern:    regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`),
		sentencePattern: regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`),
		stopwords:       defaultStopwords(),
	}
}

// Summary returns the highest ranked sentence of text, trimmed to a fixed
// rune budget.
func (s *Summarizer) Summary(text string) string {
	sentences := s.sentencePattern.FindAllString(text, -1)
	if len(sentences) == 0 {
		return truncateRunes(strings.TrimSpace(text), maxSummaryRunes)
	}

	freq := s.frequencies(text)

	best, bestScore := 0, -1.0
	for i, sent := range sentences {
		toks := s.tokens(sent)
		score := 0.0
		for _, tok := range toks {
			score += freq[tok]
		}
		if len(toks) > 0 {
			score /= math.Sqrt(float64(len(toks)))
		}
		// Earlier sentences win ties.
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return truncateRunes(strings.TrimSpace(sentences[best]), maxSummaryRunes)
}

// Keywords returns the most frequent non-stopword terms, ties broken
// alphabetically.
func (s *Summarizer) Keywords(text string) []string {
	freq := s.frequencies(text)

	terms := make([]string, 0, len(freq))
	for term := range freq {
		if utf8.RuneCountInString(term) < minKeywordRunes {
			continue
		}
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool {
		if freq[terms[i]] != freq[terms[j]] {
			return freq[terms[i]] > freq[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > maxKeywords {
		terms = terms[:maxKeywords]
	}
	return terms
}

// frequencies returns stopword-filtered term frequencies normalized to (0, 1].
func (s *Summarizer) frequencies(text string) map[string]float64 {
	freq := map[string]float64{}
	for _, tok := range s.tokens(text) {
		if _, ok := s.stopwords[tok]; ok {
			continue
		}
		freq[tok]++
	}

	maxF := 0.0
	for _, v := range freq {
		if v > maxF {
			maxF = v
		}
	}
	if maxF > 0 {
		for k, v := range freq {
			freq[k] = v / maxF
		}
	}
	return freq
}

func (s *Summarizer) tokens(text string) []string {
	return s.tokenPattern.FindAllString(strings.ToLower(text), -1)
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n])) + "..."
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by",
		"with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those",
		"from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about",
		"between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too",
		"very", "can", "will", "just", "don", "should", "now", "you", "your", "our", "not", "have", "has", "its",
		// es / pt / it
		"el", "los", "las", "una", "por", "para", "con", "que", "del", "não", "uma", "com", "il", "gli", "della", "per",
		// fr / de
		"le", "les", "des", "une", "est", "pour", "dans", "der", "die", "das", "und", "ist", "mit", "nicht", "ein", "eine",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
