package streams

import (
	"context"

	"go.uber.org/zap"
)

func init() {
	register("ad_targeter_plans", func() Stream { return &adTargeterPlans{} })
}

// adTargeterPlans pulls Ad Targeter plan settings from GET /ad/plan
type adTargeterPlans struct{}

func (s *adTargeterPlans) Name() string              { return "ad_targeter_plans" }
func (s *adTargeterPlans) KeyProperties() []string   { return []string{"plan_id"} }
func (s *adTargeterPlans) ReplicationMethod() string { return MethodFullTable }
func (s *adTargeterPlans) ReplicationKey() string    { return "" }
func (s *adTargeterPlans) DateKeys() []string        { return nil }

func (s *adTargeterPlans) GetRecords(ctx context.Context, sc *Context, emit Emit) error {
	resp, err := sc.Client.GetAdTargeterPlans(ctx)
	if err != nil {
		return err
	}
	if len(resp.AdPlans) == 0 {
		sc.Logger.Info("no ad targeter plans returned", zap.String("stream", s.Name()))
		return nil
	}
	for _, plan := range resp.AdPlans {
		if err := emit(plan); err != nil {
			return err
		}
	}
	return nil
}
