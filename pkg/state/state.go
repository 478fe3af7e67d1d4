// Package state tracks replication progress as per-stream bookmarks.
// The sync orchestrator is the sole writer; a state message carrying
// the full mapping is emitted after each completed stream so a crash
// loses at most the unflushed tail.
package state

import (
	"fmt"
	"os"

	jsonpool "github.com/tapstream-io/tap-sailthru/pkg/json"
)

// State is the persisted bookmark mapping
type State struct {
	Bookmarks map[string]map[string]interface{} `json:"bookmarks"`
}

// New returns an empty state
func New() *State {
	return &State{Bookmarks: make(map[string]map[string]interface{})}
}

// Load reads state from a JSON file. An empty path yields a fresh state.
func Load(path string) (*State, error) {
	if path == "" {
		return New(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read state file %s: %w", path, err)
	}

	s := New()
	if err := jsonpool.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("failed to parse state file %s: %w", path, err)
	}
	if s.Bookmarks == nil {
		s.Bookmarks = make(map[string]map[string]interface{})
	}
	return s, nil
}

// Bookmark returns the stored bookmark value for a stream's replication
// key, or fallback when the stream has never synced
func (s *State) Bookmark(stream, key, fallback string) string {
	if streamState, ok := s.Bookmarks[stream]; ok {
		if v, ok := streamState[key].(string); ok && v != "" {
			return v
		}
	}
	return fallback
}

// SetBookmark records a new bookmark value for a stream
func (s *State) SetBookmark(stream, key string, value interface{}) {
	if s.Bookmarks == nil {
		s.Bookmarks = make(map[string]map[string]interface{})
	}
	if s.Bookmarks[stream] == nil {
		s.Bookmarks[stream] = make(map[string]interface{})
	}
	s.Bookmarks[stream][key] = value
}
