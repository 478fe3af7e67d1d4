// Package sync orchestrates a full tap run: it walks the selected
// catalog entries in order, extracts each stream, maps the records and
// emits the schema/record/state message sequence on the output.
package sync

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"github.com/tapstream-io/tap-sailthru/pkg/catalog"
	"github.com/tapstream-io/tap-sailthru/pkg/clients"
	"github.com/tapstream-io/tap-sailthru/pkg/config"
	"github.com/tapstream-io/tap-sailthru/pkg/errors"
	"github.com/tapstream-io/tap-sailthru/pkg/jobs"
	jsonpool "github.com/tapstream-io/tap-sailthru/pkg/json"
	"github.com/tapstream-io/tap-sailthru/pkg/logger"
	"github.com/tapstream-io/tap-sailthru/pkg/messages"
	"github.com/tapstream-io/tap-sailthru/pkg/metrics"
	"github.com/tapstream-io/tap-sailthru/pkg/schemas"
	"github.com/tapstream-io/tap-sailthru/pkg/state"
	"github.com/tapstream-io/tap-sailthru/pkg/streams"
	"github.com/tapstream-io/tap-sailthru/pkg/transform"
)

// Engine runs the sync pass
type Engine struct {
	client *clients.SailthruClient
	jobs   *jobs.Runner
	cfg    *config.Config
	writer *messages.Writer
	state  *state.State
	log    *zap.Logger
}

// NewEngine assembles a sync engine writing messages to out
func NewEngine(cfg *config.Config, client *clients.SailthruClient, st *state.State, out io.Writer) *Engine {
	return &Engine{
		client: client,
		jobs:   jobs.NewRunner(client, cfg),
		cfg:    cfg,
		writer: messages.NewWriter(out),
		state:  st,
		log:    logger.Get().With(zap.String("component", "sync")),
	}
}

// Run syncs every selected stream in catalog order. A failing stream is
// reported and skipped; the remaining streams still sync. The combined
// per-stream errors are returned at the end so the process can exit
// nonzero.
func (e *Engine) Run(ctx context.Context, cat *catalog.Catalog) error {
	selected := cat.SelectedStreams()
	if len(selected) == 0 {
		e.log.Warn("no streams selected, nothing to sync")
		return nil
	}

	var result *multierror.Error
	for i := range selected {
		entry := &selected[i]
		if err := e.syncStream(ctx, entry); err != nil {
			e.log.Error("stream sync failed",
				zap.String("stream", entry.TapStreamID),
				zap.Error(err))
			result = multierror.Append(result, fmt.Errorf("stream %s: %w", entry.TapStreamID, err))
		}
		if ctx.Err() != nil {
			result = multierror.Append(result, ctx.Err())
			break
		}
	}
	return result.ErrorOrNil()
}

func (e *Engine) syncStream(ctx context.Context, entry *catalog.Entry) error {
	stream, err := streams.New(entry.TapStreamID)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "catalog names an unknown stream")
	}
	name := stream.Name()
	log := e.log.With(zap.String("stream", name))
	log.Info("syncing stream", zap.String("replication_method", stream.ReplicationMethod()))

	schema := entry.Schema
	if len(schema) == 0 {
		if schema, err = schemas.Get(name); err != nil {
			return err
		}
	}

	var bookmarkProps []string
	if key := stream.ReplicationKey(); key != "" {
		bookmarkProps = []string{key}
	}
	if err := e.writer.WriteSchema(name, schema, stream.KeyProperties(), bookmarkProps); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "writing schema message")
	}

	var bookmark time.Time
	if stream.ReplicationMethod() == streams.MethodIncremental {
		raw := e.state.Bookmark(name, stream.ReplicationKey(), e.cfg.StartDate)
		bookmark, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeConfig,
				"bookmark is not a valid RFC 3339 timestamp").
				WithDetail("value", raw)
		}
	}

	sc := &streams.Context{
		Client:   e.client,
		Jobs:     e.jobs,
		Config:   e.cfg,
		Logger:   log,
		Bookmark: bookmark,
	}

	deselected := entry.DeselectedFields()
	maxBookmark := bookmark
	var count int64

	err = stream.GetRecords(ctx, sc, func(record clients.Row) error {
		transform.SnakeCaseKeys(record)
		transform.NormalizeDates(record, stream.DateKeys())

		for _, prop := range stream.KeyProperties() {
			if record[prop] == nil {
				return errors.Newf(errors.ErrorTypeData,
					"record is missing key property %q", prop).
					WithDetail("record", record)
			}
		}
		if err := schemas.Validate(name, record); err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "invalid record").
				WithDetail("record", record)
		}

		if key := stream.ReplicationKey(); key != "" {
			if raw, ok := record[key].(string); ok {
				if t, err := time.Parse(time.RFC3339, raw); err == nil && t.After(maxBookmark) {
					maxBookmark = t
				}
			}
		}

		for field := range deselected {
			delete(record, field)
		}

		count++
		metrics.RecordsEmitted.WithLabelValues(name).Inc()
		return e.writer.WriteRecord(name, record, time.Now())
	})
	if err != nil {
		return err
	}

	if stream.ReplicationMethod() == streams.MethodIncremental {
		e.state.SetBookmark(name, stream.ReplicationKey(), maxBookmark.UTC().Format(time.RFC3339))
	}
	if err := e.writer.WriteState(e.state); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "writing state message")
	}

	log.Info("stream synced", zap.Int64("records", count))
	return nil
}

// CatalogJSON renders a catalog the way discovery prints it
func CatalogJSON(cat *catalog.Catalog) ([]byte, error) {
	return jsonpool.MarshalIndent(cat, "", "  ")
}
