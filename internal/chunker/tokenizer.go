package chunker

import (
	"fmt"
	"regexp"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// Tokenizer splits text into token pieces. Concatenating the pieces of a
// text yields the text again, byte for byte.
type Tokenizer interface {
	Tokenize(text string) []string
}

const (
	// EncodingCL100K is the BPE encoding used for chunk boundaries.
	EncodingCL100K = "cl100k_base"
	// EncodingWords splits on whitespace and is meant for local runs and tests.
	EncodingWords = "words"
)

var loaderOnce sync.Once

// BPETokenizer tokenizes with a tiktoken encoding using the embedded
// offline BPE tables.
type BPETokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewBPETokenizer loads the named tiktoken encoding.
func NewBPETokenizer(encoding string) (*BPETokenizer, error) {
	loaderOnce.Do(func() {
		tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
	})

	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load encoding %s: %w", encoding, err)
	}
	return &BPETokenizer{enc: enc}, nil
}

// Tokenize implements Tokenizer.
func (t *BPETokenizer) Tokenize(text string) []string {
	ids := t.enc.Encode(text, nil, nil)
	pieces := make([]string, len(ids))
	for i, id := range ids {
		// A piece may hold a partial UTF-8 sequence; joined pieces are whole again.
		pieces[i] = t.enc.Decode([]int{id})
	}
	return pieces
}

var wordPattern = regexp.MustCompile(`\S+\s*|\s+`)

// WordTokenizer treats every whitespace-delimited word, with its trailing
// whitespace, as one token.
type WordTokenizer struct{}

// Tokenize implements Tokenizer.
func (WordTokenizer) Tokenize(text string) []string {
	return wordPattern.FindAllString(text, -1)
}

// NewTokenizer returns the tokenizer for an encoding name.
func NewTokenizer(encoding string) (Tokenizer, error) {
	switch encoding {
	case EncodingWords:
		return WordTokenizer{}, nil
	case "", EncodingCL100K:
		return NewBPETokenizer(EncodingCL100K)
	default:
		return NewBPETokenizer(encoding)
	}
}
