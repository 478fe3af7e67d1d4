package sync

import (
	"context"
	"sort"

	"github.com/tapstream-io/tap-sailthru/pkg/catalog"
	"github.com/tapstream-io/tap-sailthru/pkg/clients"
	"github.com/tapstream-io/tap-sailthru/pkg/errors"
	jsonpool "github.com/tapstream-io/tap-sailthru/pkg/json"
	"github.com/tapstream-io/tap-sailthru/pkg/schemas"
	"github.com/tapstream-io/tap-sailthru/pkg/streams"
)

// Discover verifies platform access and assembles the full catalog of
// extractable streams with their schemas and replication metadata
func Discover(ctx context.Context, client *clients.SailthruClient) (*catalog.Catalog, error) {
	if err := client.CheckPlatformAccess(ctx); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeAuthentication,
			"credential check against the settings endpoint failed")
	}

	cat := &catalog.Catalog{}
	for _, name := range streams.Names() {
		stream, err := streams.New(name)
		if err != nil {
			return nil, err
		}
		schema, err := schemas.Get(name)
		if err != nil {
			return nil, err
		}
		metadata, err := buildMetadata(stream, schema)
		if err != nil {
			return nil, err
		}

		cat.Streams = append(cat.Streams, catalog.Entry{
			Stream:            name,
			TapStreamID:       name,
			Schema:            schema,
			KeyProperties:     stream.KeyProperties(),
			ReplicationMethod: stream.ReplicationMethod(),
			ReplicationKey:    stream.ReplicationKey(),
			Metadata:          metadata,
		})
	}
	return cat, nil
}

// buildMetadata emits the stream-level entry plus one entry per schema
// property. Key properties and the replication key get automatic
// inclusion so selection can never drop them.
func buildMetadata(stream streams.Stream, schema jsonpool.RawMessage) ([]catalog.Metadata, error) {
	streamMeta := map[string]interface{}{
		"inclusion":                 "available",
		"selected-by-default":       true,
		"table-key-properties":      stream.KeyProperties(),
		"forced-replication-method": stream.ReplicationMethod(),
	}
	if key := stream.ReplicationKey(); key != "" {
		streamMeta["valid-replication-keys"] = []string{key}
	}
	metadata := []catalog.Metadata{{Breadcrumb: []string{}, Metadata: streamMeta}}

	var parsed struct {
		Properties map[string]jsonpool.RawMessage `json:"properties"`
	}
	if err := jsonpool.Unmarshal(schema, &parsed); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "parsing stream schema").
			WithDetail("stream", stream.Name())
	}

	automatic := map[string]bool{}
	for _, prop := range stream.KeyProperties() {
		automatic[prop] = true
	}
	if key := stream.ReplicationKey(); key != "" {
		automatic[key] = true
	}

	fields := make([]string, 0, len(parsed.Properties))
	for field := range parsed.Properties {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		inclusion := "available"
		if automatic[field] {
			inclusion = "automatic"
		}
		metadata = append(metadata, catalog.Metadata{
			Breadcrumb: []string{"properties", field},
			Metadata:   map[string]interface{}{"inclusion": inclusion},
		})
	}
	return metadata, nil
}
