// Package chunker splits document text into token-bounded, overlapping
// chunk records.
package chunker

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/cloo-solutions/kbase/internal/domain"
	"github.com/cloo-solutions/kbase/internal/language"
)

// Default window bounds, in tokens.
const (
	DefaultMinTokens     = 500
	DefaultMaxTokens     = 1000
	DefaultOverlapTokens = 150
)

// Config bounds the chunk windows.
type Config struct {
	MinTokens     int
	MaxTokens     int
	OverlapTokens int
}

// DefaultConfig returns the default window bounds.
func DefaultConfig() Config {
	return Config{
		MinTokens:     DefaultMinTokens,
		MaxTokens:     DefaultMaxTokens,
		OverlapTokens: DefaultOverlapTokens,
	}
}

// Validate rejects bounds for which the window walk cannot keep every
// chunk within [MinTokens, MaxTokens].
func (c Config) Validate() error {
	switch {
	case c.MinTokens <= 0:
		return errors.New("min tokens must be positive")
	case c.MaxTokens < c.MinTokens:
		return fmt.Errorf("max tokens (%d) must be >= min tokens (%d)", c.MaxTokens, c.MinTokens)
	case c.OverlapTokens < 0 || c.OverlapTokens >= c.MinTokens:
		return fmt.Errorf("overlap tokens (%d) must be in [0, min tokens)", c.OverlapTokens)
	case c.MaxTokens+c.OverlapTokens < 2*c.MinTokens:
		return fmt.Errorf("max tokens + overlap (%d) must be >= 2 * min tokens (%d)",
			c.MaxTokens+c.OverlapTokens, 2*c.MinTokens)
	}
	return nil
}

// Input is one document to chunk.
type Input struct {
	DocumentID  string
	WorkspaceID string
	JobID       string
	Text        string
	Source      domain.DocumentSource
}

// Result holds the detected document language and its chunks in index order.
type Result struct {
	Language domain.Language
	Chunks   []domain.ChunkRecord
}

// Chunker turns documents into queued chunk records.
type Chunker struct {
	cfg        Config
	tokenizer  Tokenizer
	detector   *language.Detector
	summarizer *Summarizer
}

// New creates a Chunker. A nil detector falls back to one defaulting to English.
func New(cfg Config, tokenizer Tokenizer, detector *language.Detector) (*Chunker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid chunker config: %w", err)
	}
	if tokenizer == nil {
		return nil, errors.New("tokenizer is required")
	}
	if detector == nil {
		detector = language.NewDetector(domain.DefaultLanguage)
	}
	return &Chunker{
		cfg:        cfg,
		tokenizer:  tokenizer,
		detector:   detector,
		summarizer: NewSummarizer(),
	}, nil
}

// Config returns the chunker's window bounds.
func (c *Chunker) Config() Config {
	return c.cfg
}

// ChunkDocument splits the input text into chunk records. An empty text
// yields an empty result.
func (c *Chunker) ChunkDocument(in Input) (*Result, error) {
	if in.DocumentID == "" {
		return nil, domain.NewValidationError(domain.ErrMissingRequiredField.Message, errors.New("document id is required"))
	}
	if err := domain.ValidateSource(in.Source); err != nil {
		return nil, err
	}

	tokens := c.tokenizer.Tokenize(in.Text)
	if len(tokens) == 0 {
		return &Result{Language: c.detector.Detect(in.Text)}, nil
	}

	lang := c.detector.Detect(in.Text)
	ranges := Windows(len(tokens), c.cfg)
	chunks := make([]domain.ChunkRecord, 0, len(ranges))
	for i, r := range ranges {
		text := strings.ToValidUTF8(strings.Join(tokens[r.Start:r.End], ""), "")
		chunks = append(chunks, domain.ChunkRecord{
			ID:          domain.NewChunkID(in.DocumentID, i),
			DocumentID:  in.DocumentID,
			WorkspaceID: in.WorkspaceID,
			ChunkIndex:  i,
			Text:        text,
			TokenCount:  r.End - r.Start,
			TokenRange:  r,
			Metadata: domain.ChunkMetadata{
				SourceType: in.Source.Type,
				URL:        in.Source.URL,
				Filename:   in.Source.Filename,
				Title:      in.Source.Title,
				Language:   lang,
				Checksum:   Checksum(text),
				JobID:      in.JobID,
			},
			Summary:  c.summarizer.Summary(text),
			Keywords: c.summarizer.Keywords(text),
			Status:   domain.ChunkStatusQueued,
		})
	}

	return &Result{Language: lang, Chunks: chunks}, nil
}

// Windows computes the token ranges for a sequence of total tokens.
//
// Every window holds at most MaxTokens. When more than one window is needed,
// each holds at least MinTokens and starts OverlapTokens before the end of
// the previous one. A window that would leave a final remainder shorter than
// MinTokens is closed early so the final window holds exactly MinTokens.
func Windows(total int, cfg Config) []domain.TokenRange {
	if total <= 0 {
		return nil
	}
	if total <= cfg.MaxTokens {
		return []domain.TokenRange{{Start: 0, End: total}}
	}

	var out []domain.TokenRange
	start := 0
	for {
		end := min(start+cfg.MaxTokens, total)
		if end < total && total-(end-cfg.OverlapTokens) < cfg.MinTokens {
			end = total - cfg.MinTokens + cfg.OverlapTokens
		}
		out = append(out, domain.TokenRange{Start: start, End: end})
		if end == total {
			return out
		}
		start = end - cfg.OverlapTokens
	}
}

// Checksum returns the hex SHA-256 of text.
func Checksum(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
