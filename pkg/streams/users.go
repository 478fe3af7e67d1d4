package streams

import (
	"context"

	"go.uber.org/zap"

	"github.com/tapstream-io/tap-sailthru/pkg/clients"
	"github.com/tapstream-io/tap-sailthru/pkg/metrics"
	"github.com/tapstream-io/tap-sailthru/pkg/transform"
)

func init() {
	register("users", func() Stream { return &users{} })
}

// users pulls the full profile for every member of every list. The
// member exports only carry a handful of columns; GET /user fills in
// vars, list membership and engagement.
type users struct{}

func (s *users) Name() string              { return "users" }
func (s *users) KeyProperties() []string   { return []string{"profile_id"} }
func (s *users) ReplicationMethod() string { return MethodFullTable }
func (s *users) ReplicationKey() string    { return "" }
func (s *users) DateKeys() []string        { return nil }

func (s *users) GetRecords(ctx context.Context, sc *Context, emit Emit) error {
	names, err := listNames(ctx, sc)
	if err != nil {
		return err
	}

	seen := make(map[string]bool)
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

		err = fetchExport(ctx, sc, result.ExportURL, nil, func(row clients.Row) error {
			profileID, _ := row["profile_id"].(string)
			if profileID == "" {
				sc.Logger.Warn("list member has no profile id, skipping",
					zap.String("list", name))
				metrics.RecordsFiltered.WithLabelValues(s.Name(), "missing_profile_id").Inc()
				return nil
			}
			if seen[profileID] {
				metrics.RecordsFiltered.WithLabelValues(s.Name(), "duplicate").Inc()
				return nil
			}
			seen[profileID] = true

			user, err := sc.Client.GetUser(ctx, map[string]interface{}{
				"id":  profileID,
				"key": "sid",
			})
			if err != nil {
				return err
			}
			return emit(transform.FlattenUserResponse(user))
		})
		if err != nil {
			return err
		}
	}
	return nil
}
