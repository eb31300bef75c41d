package domain

import "strings"

// Language is an ISO 639-1 code from the closed set the detector can emit
type Language string

const (
	LanguageEnglish    Language = "en"
	LanguageSpanish    Language = "es"
	LanguageFrench     Language = "fr"
	LanguageGerman     Language = "de"
	LanguagePortuguese Language = "pt"
	LanguageItalian    Language = "it"
)

// DefaultLanguage is used when nothing better is known
const DefaultLanguage = LanguageEnglish

// SupportedLanguages lists every language in detection order
var SupportedLanguages = []Language{
	LanguageEnglish,
	LanguageSpanish,
	LanguageFrench,
	LanguageGerman,
	LanguagePortuguese,
	LanguageItalian,
}

// ParseLanguage normalizes a language code; ok is false for unknown codes.
func ParseLanguage(s string) (Language, bool) {
	code := strings.ToLower(strings.TrimSpace(s))
	if i := strings.IndexAny(code, "-_"); i > 0 {
		code = code[:i]
	}
	for _, l := range SupportedLanguages {
		if string(l) == code {
			return l, true
		}
	}
	return "", false
}
