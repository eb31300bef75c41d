// Package language classifies text into one of the supported languages using
// lexicon and character-pattern scoring.
package language

import (
	"sort"
	"strings"
	"unicode"

	"github.com/cloo-solutions/kbase/internal/domain"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

const (
	// maxSampleRunes bounds how much of a document is inspected.
	maxSampleRunes = 4000
	lexiconWeight  = 1.0
	patternWeight  = 0.6
	charWeight     = 0.8
	// minScore is the evidence needed before trusting a non-default answer.
	minScore = 1.5
)

type profile struct {
	lang     domain.Language
	lexicon  map[string]struct{}
	patterns []string // word-internal substrings
	chars    string   // characteristic letters
}

// Detector scores text against per-language profiles.
type Detector struct {
	profiles []profile
	fallback domain.Language
}

// Result is a detection outcome with a relative confidence in [0,1].
type Result struct {
	Language   domain.Language
	Confidence float64
}

// NewDetector creates a detector that answers fallback when evidence is weak.
func NewDetector(fallback domain.Language) *Detector {
	if _, ok := domain.ParseLanguage(string(fallback)); !ok {
		fallback = domain.DefaultLanguage
	}
	return &Detector{
		profiles: defaultProfiles(),
		fallback: fallback,
	}
}

// Detect returns the most likely language of text.
func (d *Detector) Detect(text string) domain.Language {
	return d.DetectWithConfidence(text).Language
}

// DetectWithConfidence returns the most likely language and how far ahead of
// the runner-up it scored.
func (d *Detector) DetectWithConfidence(text string) Result {
	words := d.words(text)
	if len(words) == 0 {
		return Result{Language: d.fallback}
	}

	scores := make([]float64, len(d.profiles))
	for i, p := range d.profiles {
		scores[i] = p.score(words)
	}

	order := make([]int, len(scores))
	for i := range order {
		order[i] = i
	}
	// Ties resolve to profile order so results are deterministic.
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

	best := scores[order[0]]
	if best < minScore {
		return Result{Language: d.fallback}
	}
	runnerUp := 0.0
	if len(order) > 1 {
		runnerUp = scores[order[1]]
	}
	return Result{
		Language:   d.profiles[order[0]].lang,
		Confidence: (best - runnerUp) / best,
	}
}

func (d *Detector) words(text string) []string {
	if len(text) > maxSampleRunes*4 {
		text = text[:maxSampleRunes*4]
	}
	// Casers are stateful, so each call gets its own.
	folded := cases.Fold().String(norm.NFC.String(text))
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\''
	})
}

func (p profile) score(words []string) float64 {
	var lex, pat, chr float64
	for _, w := range words {
		w = strings.Trim(w, "'")
		if w == "" {
			continue
		}
		if _, ok := p.lexicon[w]; ok {
			lex++
		}
		for _, s := range p.patterns {
			if len(w) > len(s) && strings.Contains(w, s) {
				pat++
				break
			}
		}
		if p.chars != "" && strings.ContainsAny(w, p.chars) {
			chr++
		}
	}
	return lex*lexiconWeight + pat*patternWeight + chr*charWeight
}

func set(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

func defaultProfiles() []profile {
	return []profile{
		{
			lang: domain.LanguageEnglish,
			lexicon: set("the", "and", "of", "to", "is", "in", "that", "it", "with", "for", "you",
				"this", "are", "was", "be", "have", "not", "what", "which", "how", "from", "they",
				"will", "would", "there", "their", "can", "your", "does", "an"),
			patterns: []string{"tion", "ing", "ness", "ough", "th", "wh"},
		},
		{
			lang: domain.LanguageSpanish,
			lexicon: set("el", "los", "las", "del", "que", "y", "es", "en", "por", "para", "una",
				"con", "como", "pero", "más", "está", "son", "muy", "también", "cómo", "qué",
				"puedo", "hay", "sus", "nuestro", "usted", "cuando", "donde", "al", "lo"),
			patterns: []string{"ción", "ciones", "mente", "dad", "ll", "ñ"},
			chars:    "ñ¿¡",
		},
		{
			lang: domain.LanguageFrench,
			lexicon: set("le", "la", "les", "des", "est", "et", "un", "une", "du", "dans", "pour",
				"pas", "que", "qui", "sur", "avec", "vous", "nous", "sont", "mais", "être", "avoir",
				"très", "cette", "comment", "je", "il", "au", "aux", "ne"),
			patterns: []string{"eau", "aux", "ais", "oient", "ement", "qu'"},
			chars:    "çœèêëîïûù",
		},
		{
			lang: domain.LanguageGerman,
			lexicon: set("der", "die", "das", "und", "ist", "nicht", "ein", "eine", "mit", "den",
				"von", "zu", "sich", "auf", "für", "im", "dem", "auch", "es", "ich", "sie", "wir",
				"wie", "werden", "kann", "oder", "aber", "sind", "wird", "bei"),
			patterns: []string{"sch", "ung", "keit", "heit", "ei", "tz"},
			chars:    "äöüß",
		},
		{
			lang: domain.LanguagePortuguese,
			lexicon: set("o", "os", "as", "do", "da", "dos", "das", "não", "em", "um", "uma",
				"com", "para", "que", "é", "mais", "como", "mas", "foi", "são", "você", "também",
				"isso", "pelo", "pela", "seu", "sua", "nos", "ao", "está"),
			patterns: []string{"ção", "ções", "nh", "lh", "mente", "ão"},
			chars:    "ãõ",
		},
		{
			lang: domain.LanguageItalian,
			lexicon: set("il", "lo", "gli", "della", "delle", "di", "che", "è", "non", "per",
				"una", "sono", "con", "come", "anche", "più", "questo", "questa", "nel", "alla",
				"degli", "ma", "perché", "essere", "molto", "ci", "si", "dei", "ho", "cosa"),
			patterns: []string{"zione", "zioni", "gli", "cch", "mente", "ggi"},
			chars:    "òì",
		},
	}
}
