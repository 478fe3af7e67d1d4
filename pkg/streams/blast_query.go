package streams

import (
	"context"

	"go.uber.org/zap"

	"github.com/tapstream-io/tap-sailthru/pkg/clients"
)

func init() {
	register("blast_query", func() Stream { return &blastQuery{} })
}

// blastQuery exports per-recipient engagement data for each sent
// campaign via the blast_query job
type blastQuery struct{}

func (s *blastQuery) Name() string              { return "blast_query" }
func (s *blastQuery) KeyProperties() []string   { return []string{"profile_id", "blast_id"} }
func (s *blastQuery) ReplicationMethod() string { return MethodFullTable }
func (s *blastQuery) ReplicationKey() string    { return "" }
func (s *blastQuery) DateKeys() []string {
	return []string{"send_time", "open_time", "click_time", "purchase_time", "first_ten_clicks_time"}
}

func (s *blastQuery) GetRecords(ctx context.Context, sc *Context, emit Emit) error {
	ids, err := sentBlastIDs(ctx, sc)
	if err != nil {
		return err
	}

	for _, blastID := range ids {
		result, err := sc.Jobs.Run(ctx, map[string]interface{}{
			"job":      "blast_query",
			"blast_id": blastID,
		})
		if err != nil {
			return err
		}
		if result.Skipped {
			// Some sent blasts may not be exported (Sailthru error
			// code 99); the server tells us per blast.
			sc.Logger.Info("blast export refused, skipping",
				zap.Any("blast_id", blastID))
			continue
		}

		extra := clients.Row{"blast_id": blastID}
		if err := fetchExport(ctx, sc, result.ExportURL, extra, emit); err != nil {
			return err
		}
	}
	return nil
}
