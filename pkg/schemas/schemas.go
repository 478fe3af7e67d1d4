// Package schemas holds the JSON schema for every stream the tap can
// emit. Schemas are embedded at build time and compiled once; the sync
// engine validates each record against its stream schema before the
// record is written.
package schemas

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/tapstream-io/tap-sailthru/pkg/errors"
	"github.com/tapstream-io/tap-sailthru/pkg/json"
)

//go:embed files/*.json
var files embed.FS

var (
	mu       sync.Mutex
	raw      map[string]json.RawMessage
	compiled map[string]*jsonschema.Schema
)

func load() error {
	if raw != nil {
		return nil
	}
	entries, err := files.ReadDir("files")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "reading embedded schemas")
	}
	raw = make(map[string]json.RawMessage, len(entries))
	compiled = make(map[string]*jsonschema.Schema, len(entries))
	for _, entry := range entries {
		name := strings.TrimSuffix(entry.Name(), ".json")
		data, err := files.ReadFile("files/" + entry.Name())
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeInternal, "reading embedded schema").
				WithDetail("schema", entry.Name())
		}
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft7
		url := fmt.Sprintf("schema://%s.json", name)
		if err := c.AddResource(url, strings.NewReader(string(data))); err != nil {
			return errors.Wrap(err, errors.ErrorTypeInternal, "registering schema").
				WithDetail("schema", name)
		}
		s, err := c.Compile(url)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeInternal, "compiling schema").
				WithDetail("schema", name)
		}
		raw[name] = json.RawMessage(data)
		compiled[name] = s
	}
	return nil
}

// Get returns the raw JSON schema for a stream, suitable for inclusion
// in a SCHEMA message or a discovery catalog.
func Get(stream string) (json.RawMessage, error) {
	mu.Lock()
	defer mu.Unlock()
	if err := load(); err != nil {
		return nil, err
	}
	schema, ok := raw[stream]
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeNotFound, "no schema for stream %q", stream)
	}
	return schema, nil
}

// Validate checks a record against the stream's compiled schema.
func Validate(stream string, record map[string]interface{}) error {
	mu.Lock()
	s, ok := compiled[stream]
	if !ok {
		if err := load(); err != nil {
			mu.Unlock()
			return err
		}
		s, ok = compiled[stream]
	}
	mu.Unlock()
	if !ok {
		return errors.Newf(errors.ErrorTypeNotFound, "no schema for stream %q", stream)
	}

	// The validator walks plain interface{} trees, so round-trip the
	// record through JSON to shed concrete types like time.Time.
	data, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "encoding record for validation").
			WithDetail("stream", stream)
	}
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "decoding record for validation").
			WithDetail("stream", stream)
	}
	if err := s.Validate(doc); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "record failed schema validation").
			WithDetail("stream", stream)
	}
	return nil
}

// Streams returns the names of every embedded schema, sorted by the
// embedded filesystem's directory order (lexicographic).
func Streams() ([]string, error) {
	mu.Lock()
	defer mu.Unlock()
	if err := load(); err != nil {
		return nil, err
	}
	entries, err := files.ReadDir("files")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "reading embedded schemas")
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, strings.TrimSuffix(entry.Name(), ".json"))
	}
	return names, nil
}
