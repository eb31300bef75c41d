// Package prompt turns reranked chunks into citations and the structured
// payload handed to the answer-generation step.
package prompt

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/cloo-solutions/kbase/internal/domain"
)

const (
	SnippetMaxChars = 220
	citationIDLen   = 6
	untitled        = "Untitled"
)

// CitationID returns the short marker for a chunk, e.g. "C1A2B3C".
func CitationID(chunkID string) string {
	sum := sha256.Sum256([]byte(chunkID))
	return "C" + strings.ToUpper(hex.EncodeToString(sum[:])[:citationIDLen])
}

// Snippet collapses whitespace and truncates to SnippetMaxChars runes,
// marking truncation with "...".
func Snippet(content string) string {
	if content == "" {
		return ""
	}
	clean := []rune(strings.Join(strings.Fields(content), " "))
	if len(clean) <= SnippetMaxChars {
		return string(clean)
	}
	return string(clean[:SnippetMaxChars-3]) + "..."
}

// NewCitation derives the citation for a chunk.
func NewCitation(c domain.KnowledgeChunk) domain.Citation {
	return domain.Citation{
		ID:       CitationID(c.ID),
		ChunkID:  c.ID,
		Title:    title(c.Source),
		Snippet:  Snippet(c.Content),
		URL:      c.Source.URL,
		Filename: c.Source.Filename,
	}
}

func title(s domain.ChunkSource) string {
	switch {
	case s.Title != "":
		return s.Title
	case s.Filename != "":
		return s.Filename
	case s.URL != "":
		return s.URL
	}
	return untitled
}

// Payload is the structured prompt for the generation step.
type Payload struct {
	Tone         domain.Tone       `json:"tone"`
	Language     domain.Language   `json:"language"`
	Instructions string            `json:"instructions"`
	Context      string            `json:"context"`
	Citations    []domain.Citation `json:"citations"`
}

var toneGuidance = map[domain.Tone]string{
	domain.ToneNeutral:      "Answer in a neutral, informative tone.",
	domain.ToneFriendly:     "Answer in a warm, friendly tone.",
	domain.ToneFormal:       "Answer in a formal register.",
	domain.ToneConcise:      "Answer as briefly as the question allows.",
	domain.ToneProfessional: "Answer in a professional tone.",
}

var languageNames = map[domain.Language]string{
	domain.LanguageEnglish:    "English",
	domain.LanguageSpanish:    "Spanish",
	domain.LanguageFrench:     "French",
	domain.LanguageGerman:     "German",
	domain.LanguagePortuguese: "Portuguese",
	domain.LanguageItalian:    "Italian",
}

// Assemble builds the prompt payload from the workspace tone, the resolved
// language and the ordered contexts.
func Assemble(tone domain.Tone, lang domain.Language, contexts []domain.ScoredChunk) Payload {
	if tone == "" {
		tone = domain.ToneNeutral
	}
	citations := make([]domain.Citation, len(contexts))
	var ctx strings.Builder
	for i, c := range contexts {
		citations[i] = NewCitation(c.KnowledgeChunk)
		if i > 0 {
			ctx.WriteString("\n\n")
		}
		fmt.Fprintf(&ctx, "[%s] %s\n%s", citations[i].ID, citations[i].Title, strings.TrimSpace(c.Content))
	}

	return Payload{
		Tone:         tone,
		Language:     lang,
		Instructions: instructions(tone, lang, len(citations) > 0),
		Context:      ctx.String(),
		Citations:    citations,
	}
}

func instructions(tone domain.Tone, lang domain.Language, hasContext bool) string {
	var b strings.Builder
	guidance, ok := toneGuidance[tone]
	if !ok {
		guidance = toneGuidance[domain.ToneNeutral]
	}
	b.WriteString(guidance)

	name := languageNames[lang]
	if name == "" {
		name = languageNames[domain.DefaultLanguage]
	}
	fmt.Fprintf(&b, " Reply in %s.", name)

	if hasContext {
		b.WriteString(" Use only the provided context and cite sources with their [C...] markers.")
	} else {
		b.WriteString(" No knowledge base context matched; say so instead of guessing.")
	}
	return b.String()
}
