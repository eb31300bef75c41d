package pagination

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCursorRoundTrip(t *testing.T) {
	c := EncodeCursor("doc|with|pipes", 41)

	got, err := DecodeCursor(c)
	require.NoError(t, err)
	assert.Equal(t, "doc|with|pipes", got.Scope)
	assert.Equal(t, 41, got.Position)
}

func TestDecodeCursor_Invalid(t *testing.T) {
	got, err := DecodeCursor("")
	assert.NoError(t, err)
	assert.Nil(t, got)

	for _, c := range []string{
		"%%%",
		base64.RawURLEncoding.EncodeToString([]byte("no-separator")),
		base64.RawURLEncoding.EncodeToString([]byte("doc|abc")),
		base64.RawURLEncoding.EncodeToString([]byte("|3")),
	} {
		_, err := DecodeCursor(c)
		assert.ErrorIs(t, err, ErrInvalidCursor, c)
	}
}

func TestCreateNextCursor(t *testing.T) {
	pos := func(i int) int { return i }

	assert.Empty(t, CreateNextCursor([]int{}, 2, "doc", pos))
	assert.Empty(t, CreateNextCursor([]int{0}, 2, "doc", pos))

	c := CreateNextCursor([]int{0, 1}, 2, "doc", pos)
	got, err := DecodeCursor(c)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Position)
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, ClampLimit(0))
	assert.Equal(t, 10, ClampLimit(10))
	assert.Equal(t, MaxLimit, ClampLimit(10000))
}
