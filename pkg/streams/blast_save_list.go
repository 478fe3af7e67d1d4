package streams

import (
	"context"

	"go.uber.org/zap"

	"github.com/tapstream-io/tap-sailthru/pkg/clients"
)

func init() {
	register("blast_save_list", func() Stream { return &blastSaveList{} })
}

// blastSaveList exports the member profiles of every list via the
// export_list_data job
type blastSaveList struct{}

func (s *blastSaveList) Name() string              { return "blast_save_list" }
func (s *blastSaveList) KeyProperties() []string   { return []string{"profile_id"} }
func (s *blastSaveList) ReplicationMethod() string { return MethodFullTable }
func (s *blastSaveList) ReplicationKey() string    { return "" }
func (s *blastSaveList) DateKeys() []string {
	return []string{"profile_created_date", "optout_time", "first_purchase_time", "last_purchase_time", "signup_time"}
}

func (s *blastSaveList) GetRecords(ctx context.Context, sc *Context, emit Emit) error {
	names, err := listNames(ctx, sc)
	if err != nil {
		return err
	}

	for _, name := range names {
		result, err := sc.Jobs.Run(ctx, map[string]interface{}{
			"job":  "export_list_data",
			"list": name,
		})
		if err != nil {
			return err
		}
		if result.Skipped {
			sc.Logger.Info("list export refused, skipping", zap.String("list", name))
			continue
		}

		extra := clients.Row{"list_name": name}
		if err := fetchExport(ctx, sc, result.ExportURL, extra, emit); err != nil {
			return err
		}
	}
	return nil
}
