// Command tap-sailthru extracts Sailthru marketing data and emits it as
// a stream of schema/record/state JSON messages on stdout. Logs go to
// stderr; stdout belongs to the message stream.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tapstream-io/tap-sailthru/internal/sync"
	"github.com/tapstream-io/tap-sailthru/pkg/catalog"
	"github.com/tapstream-io/tap-sailthru/pkg/clients"
	"github.com/tapstream-io/tap-sailthru/pkg/config"
	"github.com/tapstream-io/tap-sailthru/pkg/logger"
	"github.com/tapstream-io/tap-sailthru/pkg/metrics"
	"github.com/tapstream-io/tap-sailthru/pkg/state"
)

// version is set at build time via ldflags
var version = "dev"

var (
	configPath  string
	catalogPath string
	statePath   string
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "tap-sailthru",
		Short:         "Extract Sailthru data as a stream of JSON messages",
		SilenceUsage:  true,
		SilenceErrors: false,
		Version:       version,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to the JSON configuration file")
	_ = root.MarkPersistentFlagRequired("config")

	root.AddCommand(newDiscoverCommand())
	root.AddCommand(newSyncCommand())
	return root
}

func newDiscoverCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "discover",
		Short: "Verify credentials and print the stream catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, client, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cat, err := sync.Discover(ctx, client)
			if err != nil {
				return err
			}
			out, err := sync.CatalogJSON(cat)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func newSyncCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync the selected catalog streams",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, client, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			cat, err := catalog.Load(catalogPath)
			if err != nil {
				return err
			}
			st, err := state.Load(statePath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			engine := sync.NewEngine(cfg, client, st, os.Stdout)
			runErr := engine.Run(ctx, cat)
			metrics.LogSummary(logger.Get())
			if runErr != nil {
				logger.Error("sync finished with errors", zap.Error(runErr))
				return runErr
			}
			logger.Info("sync finished")
			return nil
		},
	}
	cmd.Flags().StringVar(&catalogPath, "catalog", "", "path to the catalog file")
	cmd.Flags().StringVar(&statePath, "state", "", "path to the state file (optional)")
	_ = cmd.MarkFlagRequired("catalog")
	return cmd
}

// setup loads configuration, initializes logging on stderr and builds
// the API client
func setup() (*config.Config, *clients.SailthruClient, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if err := logger.Init(logger.Config{Level: cfg.LogLevel}); err != nil {
		return nil, nil, err
	}
	return cfg, clients.NewSailthruClient(cfg), nil
}
