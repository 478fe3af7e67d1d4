package streams

import (
	"context"

	"go.uber.org/zap"

	"github.com/tapstream-io/tap-sailthru/pkg/metrics"
)

func init() {
	register("blast_repeats", func() Stream { return &blastRepeats{} })
}

// blastRepeats pulls recurring campaigns from GET /blast_repeat
type blastRepeats struct{}

func (s *blastRepeats) Name() string              { return "blast_repeats" }
func (s *blastRepeats) KeyProperties() []string   { return []string{"repeat_id"} }
func (s *blastRepeats) ReplicationMethod() string { return MethodIncremental }
func (s *blastRepeats) ReplicationKey() string    { return "modify_time" }
func (s *blastRepeats) DateKeys() []string {
	return []string{"create_time", "modify_time", "start_date", "end_date", "error_time"}
}

func (s *blastRepeats) GetRecords(ctx context.Context, sc *Context, emit Emit) error {
	resp, err := sc.Client.GetBlastRepeats(ctx)
	if err != nil {
		return err
	}
	if len(resp.Repeats) == 0 {
		sc.Logger.Info("no blast repeats returned", zap.String("stream", s.Name()))
		return nil
	}
	for _, repeat := range resp.Repeats {
		if !onOrAfterBookmark(repeat, s.ReplicationKey(), sc.Bookmark) {
			metrics.RecordsFiltered.WithLabelValues(s.Name(), "bookmark").Inc()
			continue
		}
		if err := emit(repeat); err != nil {
			return err
		}
	}
	return nil
}
