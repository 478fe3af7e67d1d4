// Package streams defines the extractable Sailthru streams. Each stream
// knows its key properties, replication mode and how to pull its records
// from the API; emitting, bookmarking and validation belong to the sync
// engine.
package streams

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/tapstream-io/tap-sailthru/pkg/clients"
	"github.com/tapstream-io/tap-sailthru/pkg/config"
	"github.com/tapstream-io/tap-sailthru/pkg/jobs"
)

// Replication methods
const (
	MethodFullTable   = "FULL_TABLE"
	MethodIncremental = "INCREMENTAL"
)

// Emit receives one extracted record. Returning an error aborts the
// stream.
type Emit func(record clients.Row) error

// Context carries the shared machinery a stream needs during one sync
// pass.
type Context struct {
	Client *clients.SailthruClient
	Jobs   *jobs.Runner
	Config *config.Config
	Logger *zap.Logger

	// Bookmark is the incremental floor: records strictly older than
	// this are filtered out. Zero for full-table streams.
	Bookmark time.Time
}

// Stream is one extractable Sailthru data set
type Stream interface {
	Name() string
	KeyProperties() []string
	ReplicationMethod() string
	// ReplicationKey is empty for full-table streams
	ReplicationKey() string
	// DateKeys lists the record fields carrying RFC 2822 timestamps
	// that must be normalized to RFC 3339 before emission
	DateKeys() []string

	// GetRecords pulls the stream's records and hands each one to emit
	GetRecords(ctx context.Context, sc *Context, emit Emit) error
}

// Factory constructs a stream instance
type Factory func() Stream

var registry = map[string]Factory{}

func register(name string, factory Factory) {
	if _, exists := registry[name]; exists {
		panic(fmt.Sprintf("stream %q registered twice", name))
	}
	registry[name] = factory
}

// New constructs the named stream
func New(name string) (Stream, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown stream %q", name)
	}
	return factory(), nil
}

// Names returns every registered stream name, sorted
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
