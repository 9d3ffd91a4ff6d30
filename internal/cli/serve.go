package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"trafficwatch/internal/app"
	"trafficwatch/internal/platform/config"
	"trafficwatch/internal/platform/logger"
)

type serveOptions struct {
	addr     string
	store    string
	registry string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:          "serve",
		Short:        "Run the HTTP API",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			if opts.addr != "" {
				cfg.Server.Addr = opts.addr
			}
			if opts.store != "" {
				cfg.Store.Backend = opts.store
			}
			if opts.registry != "" {
				cfg.Registry.Path = opts.registry
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&opts.addr, "addr", "", "listen address; overrides TRAFFICWATCH_ADDR")
	cmd.Flags().StringVar(&opts.store, "store", "", "record store backend (memory|postgres|redis); overrides TRAFFICWATCH_STORE")
	cmd.Flags().StringVar(&opts.registry, "registry", "", "violation registry YAML file; overrides TRAFFICWATCH_REGISTRY_FILE")
	return cmd
}

func loadConfig(rootOpts *RootOptions) (config.Config, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return config.Config{}, err
	}
	if rootOpts.LogLevel != "" {
		cfg.LogLevel = rootOpts.LogLevel
	}
	return cfg, nil
}

func runServe(parent context.Context, cfg config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", "error", err)
		return err
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		log.Error("server stopped with error", "error", err)
		return err
	}
	log.Info("server stopped")
	return nil
}
