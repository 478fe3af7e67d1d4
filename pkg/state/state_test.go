package state

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookmarkFallback(t *testing.T) {
	s := New()
	assert.Equal(t, "2021-01-01T00:00:00Z", s.Bookmark("blasts", "modify_time", "2021-01-01T00:00:00Z"))
}

func TestSetAndGetBookmark(t *testing.T) {
	s := New()
	s.SetBookmark("blasts", "modify_time", "2021-06-15T12:00:00Z")

	assert.Equal(t, "2021-06-15T12:00:00Z", s.Bookmark("blasts", "modify_time", "fallback"))
	assert.Equal(t, "fallback", s.Bookmark("blasts", "other_key", "fallback"))
	assert.Equal(t, "fallback", s.Bookmark("purchase_log", "date", "fallback"))
}

func TestLoadEmptyPath(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, s.Bookmarks)
}

func TestLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	content := `{"bookmarks":{"purchase_log":{"date":"2021-03-04T00:00:00Z"}}}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "2021-03-04T00:00:00Z", s.Bookmark("purchase_log", "date", "x"))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}
