package streams

import (
	"context"
	"time"

	"github.com/tapstream-io/tap-sailthru/pkg/clients"
	"github.com/tapstream-io/tap-sailthru/pkg/metrics"
	"github.com/tapstream-io/tap-sailthru/pkg/transform"
)

func init() {
	register("blasts", func() Stream { return &blasts{} })
}

// blastStatuses are the only values GET /blast accepts; the endpoint
// has no way to list every campaign in one call.
var blastStatuses = []string{"sent", "sending", "unscheduled", "scheduled"}

// blasts pulls campaigns from GET /blast, one request per status
type blasts struct{}

func (s *blasts) Name() string              { return "blasts" }
func (s *blasts) KeyProperties() []string   { return []string{"blast_id"} }
func (s *blasts) ReplicationMethod() string { return MethodIncremental }
func (s *blasts) ReplicationKey() string    { return "modify_time" }
func (s *blasts) DateKeys() []string {
	return []string{"start_time", "modify_time", "schedule_time"}
}

func (s *blasts) GetRecords(ctx context.Context, sc *Context, emit Emit) error {
	for _, status := range blastStatuses {
		resp, err := sc.Client.GetBlasts(ctx, status)
		if err != nil {
			return err
		}
		for _, blast := range resp.Blasts {
			if !onOrAfterBookmark(blast, s.ReplicationKey(), sc.Bookmark) {
				metrics.RecordsFiltered.WithLabelValues(s.Name(), "bookmark").Inc()
				continue
			}
			blast["status"] = status
			if err := emit(blast); err != nil {
				return err
			}
		}
	}
	return nil
}

// sentBlastIDs returns the ids of all sent campaigns, for streams that
// export per-blast data
func sentBlastIDs(ctx context.Context, sc *Context) ([]interface{}, error) {
	resp, err := sc.Client.GetBlasts(ctx, "sent")
	if err != nil {
		return nil, err
	}
	ids := make([]interface{}, 0, len(resp.Blasts))
	for _, blast := range resp.Blasts {
		if id, ok := blast["blast_id"]; ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// onOrAfterBookmark reports whether the record's replication key is at
// or past the bookmark. Records with a missing or unparseable key are
// kept; at-least-once beats silently dropping data.
func onOrAfterBookmark(record clients.Row, key string, bookmark time.Time) bool {
	if bookmark.IsZero() {
		return true
	}
	raw, _ := record[key].(string)
	if raw == "" {
		return true
	}
	t, err := transform.ParseRFC2822(raw)
	if err != nil {
		if t, err = time.Parse(time.RFC3339, raw); err != nil {
			return true
		}
	}
	return !t.Before(bookmark)
}
