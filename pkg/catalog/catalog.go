// Package catalog provides the stream-selection catalog consumed by a
// sync run. The tap reads which streams are selected; it does not
// validate catalog structure beyond what it needs.
package catalog

import (
	"fmt"
	"os"

	jsonpool "github.com/tapstream-io/tap-sailthru/pkg/json"
)

// Catalog is the set of discoverable streams
type Catalog struct {
	Streams []Entry `json:"streams"`
}

// Entry describes one stream: its schema plus key and replication metadata
type Entry struct {
	Stream            string              `json:"stream"`
	TapStreamID       string              `json:"tap_stream_id"`
	Schema            jsonpool.RawMessage `json:"schema"`
	KeyProperties     []string            `json:"key_properties"`
	ReplicationMethod string              `json:"replication_method"`
	ReplicationKey    string              `json:"replication_key,omitempty"`
	Metadata          []Metadata          `json:"metadata"`
}

// Metadata is one breadcrumbed metadata entry
type Metadata struct {
	Breadcrumb []string               `json:"breadcrumb"`
	Metadata   map[string]interface{} `json:"metadata"`
}

// Load reads a catalog from a JSON file
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}

	var c Catalog
	if err := jsonpool.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file %s: %w", path, err)
	}
	return &c, nil
}

// IsSelected reports whether the stream is selected for sync. The
// stream-level metadata's "selected" wins; "selected-by-default"
// applies when "selected" is absent. An entry with no metadata at all
// is treated as selected, so a freshly discovered catalog syncs
// everything.
func (e *Entry) IsSelected() bool {
	streamMeta := e.streamMetadata()
	if streamMeta == nil {
		return true
	}
	if v, ok := streamMeta["selected"].(bool); ok {
		return v
	}
	if v, ok := streamMeta["selected-by-default"].(bool); ok {
		return v
	}
	return false
}

// SelectedFields returns field names excluded by field-level selection.
// A field is dropped only when its metadata explicitly sets selected to
// false and inclusion is not automatic.
func (e *Entry) DeselectedFields() map[string]bool {
	deselected := make(map[string]bool)
	for _, m := range e.Metadata {
		if len(m.Breadcrumb) != 2 || m.Breadcrumb[0] != "properties" {
			continue
		}
		if inc, ok := m.Metadata["inclusion"].(string); ok && inc == "automatic" {
			continue
		}
		if v, ok := m.Metadata["selected"].(bool); ok && !v {
			deselected[m.Breadcrumb[1]] = true
		}
	}
	return deselected
}

// SelectedStreams returns the catalog entries marked for sync, in
// catalog order
func (c *Catalog) SelectedStreams() []Entry {
	var selected []Entry
	for _, e := range c.Streams {
		if e.IsSelected() {
			selected = append(selected, e)
		}
	}
	return selected
}

func (e *Entry) streamMetadata() map[string]interface{} {
	for _, m := range e.Metadata {
		if len(m.Breadcrumb) == 0 {
			return m.Metadata
		}
	}
	return nil
}
