package streams

import (
	"context"

	"go.uber.org/zap"
)

func init() {
	register("lists", func() Stream { return &lists{} })
}

// lists pulls subscriber list settings from GET /list
type lists struct{}

func (s *lists) Name() string              { return "lists" }
func (s *lists) KeyProperties() []string   { return []string{"list_id"} }
func (s *lists) ReplicationMethod() string { return MethodFullTable }
func (s *lists) ReplicationKey() string    { return "" }
func (s *lists) DateKeys() []string        { return []string{"create_time"} }

func (s *lists) GetRecords(ctx context.Context, sc *Context, emit Emit) error {
	resp, err := sc.Client.GetLists(ctx)
	if err != nil {
		return err
	}
	if len(resp.Lists) == 0 {
		sc.Logger.Info("no lists returned", zap.String("stream", s.Name()))
		return nil
	}
	for _, list := range resp.Lists {
		if err := emit(list); err != nil {
			return err
		}
	}
	return nil
}

// listNames returns the name of every list, for streams that export
// per-list member data
func listNames(ctx context.Context, sc *Context) ([]string, error) {
	resp, err := sc.Client.GetLists(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(resp.Lists))
	for _, list := range resp.Lists {
		if name, ok := list["name"].(string); ok && name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}
