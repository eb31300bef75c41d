package pagination

import (
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
)

// Cursor is a decoded position within an ordered listing: the scope it
// belongs to and the last position already returned.
type Cursor struct {
	Scope    string
	Position int
}

// PageResult represents a paginated result set
type PageResult[T any] struct {
	Items   []T    `json:"items"`
	Cursor  string `json:"cursor,omitempty"`
	HasMore bool   `json:"has_more"`
}

var (
	ErrInvalidCursor = errors.New("invalid cursor format")
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// ClampLimit applies the default and maximum page sizes.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	}
	return limit
}

// EncodeCursor creates an opaque cursor for a scope and position.
func EncodeCursor(scope string, position int) string {
	if scope == "" {
		return ""
	}
	raw := scope + "|" + strconv.Itoa(position)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor decodes a cursor. An empty cursor decodes to nil.
func DecodeCursor(cursor string) (*Cursor, error) {
	if cursor == "" {
		return nil, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	i := strings.LastIndexByte(string(decoded), '|')
	if i <= 0 {
		return nil, ErrInvalidCursor
	}

	position, err := strconv.Atoi(string(decoded[i+1:]))
	if err != nil {
		return nil, ErrInvalidCursor
	}

	return &Cursor{
		Scope:    string(decoded[:i]),
		Position: position,
	}, nil
}

// CreateNextCursor creates a cursor for the next page based on the last item
// Returns empty string if there are no more items
func CreateNextCursor[T any](items []T, limit int, scope string, getPosition func(T) int) string {
	if len(items) == 0 || len(items) < limit {
		return ""
	}
	return EncodeCursor(scope, getPosition(items[len(items)-1]))
}
