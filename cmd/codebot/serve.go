package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/isdmx/codebot/catalog"
	"github.com/isdmx/codebot/config"
	"github.com/isdmx/codebot/logger"
	"github.com/isdmx/codebot/mcpserver"
	"github.com/isdmx/codebot/metrics"
	"github.com/isdmx/codebot/sandbox"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server",
	Long: `Start the MCP server on the configured transport (stdio or http).

On startup leftover sandbox containers are swept and configured images are
prewarmed into the container pool.

Examples:
  codebot serve
  codebot serve --config /etc/codebot/config.yaml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	app := fx.New(appOptions(cfg))
	if err := app.Err(); err != nil {
		return err
	}

	// Start the application
	app.Run()
	return nil
}

// startTimeout covers the startup sweep, which stops orphans one by one
const startTimeout = 2 * time.Minute

// appOptions builds the dependency graph of the server
func appOptions(cfg *config.Config) fx.Option {
	return fx.Options(
		fx.Supply(cfg),

		// Provide dependencies
		fx.Provide(
			logger.NewFromConfig,
			loadCatalog,
			newMetricsServer,

			sandbox.NewDaemon,
			sandbox.NewTracker,
			sandbox.NewProvisionerFromConfig,
			sandbox.NewPoolFromConfig,
			sandbox.NewSweeperFromConfig,
			fx.Annotate(
				sandbox.NewExecutorFromConfig,
				fx.As(new(sandbox.SandboxExecutor)),
			),

			mcpserver.New,
		),

		fx.Invoke(registerHooks),
		fx.StartTimeout(startTimeout),

		// Use the application logger for fx logs
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)
}

func loadCatalog(cfg *config.Config) (*catalog.Catalog, error) {
	return catalog.Load(cfg.Catalog.Path)
}

// newMetricsServer returns nil when metrics.listen is empty
func newMetricsServer(cfg *config.Config, log *zap.Logger) *metrics.Server {
	if cfg.Metrics.Listen == "" {
		return nil
	}
	return metrics.NewServer(log, cfg.Metrics.Listen)
}

type hookParams struct {
	fx.In

	Lifecycle  fx.Lifecycle
	Shutdowner fx.Shutdowner
	Config     *config.Config
	Logger     *zap.Logger
	Daemon     sandbox.Daemon
	Catalog    *catalog.Catalog
	Pool       *sandbox.Pool
	Sweeper    *sandbox.Sweeper
	Server     *mcpserver.MCPServer
	Metrics    *metrics.Server
}

func registerHooks(p hookParams) {
	background, cancel := context.WithCancel(context.Background())

	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := p.Daemon.Ping(ctx); err != nil {
				return fmt.Errorf("docker daemon not reachable: %w", err)
			}

			if p.Config.Sandbox.Sweep.OnStartup {
				removed, err := p.Sweeper.Sweep(ctx)
				if err != nil {
					p.Logger.Warn("startup sweep failed", zap.Error(err))
				} else {
					p.Logger.Info("startup sweep finished", zap.Int("removed", removed))
				}
			}

			if p.Metrics != nil {
				if err := p.Metrics.Start(); err != nil {
					return fmt.Errorf("failed to start metrics server: %w", err)
				}
			}

			go prewarm(background, p)

			if interval := p.Config.GetSweepInterval(); interval > 0 {
				go p.Sweeper.Run(background, interval)
			}

			go serve(p)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()

			var errs []error
			if err := p.Server.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("mcp server shutdown: %w", err))
			}
			if p.Metrics != nil {
				if err := p.Metrics.Shutdown(ctx); err != nil {
					errs = append(errs, fmt.Errorf("metrics server shutdown: %w", err))
				}
			}
			if err := p.Pool.Close(ctx); err != nil {
				errs = append(errs, fmt.Errorf("pool close: %w", err))
			}
			if err := p.Daemon.Close(); err != nil {
				errs = append(errs, fmt.Errorf("docker client close: %w", err))
			}
			return errors.Join(errs...)
		},
	})
}

// serve runs the configured transport and stops the app when it ends
func serve(p hookParams) {
	var err error
	switch p.Config.Server.Transport {
	case "stdio":
		err = p.Server.ServeStdio()
	case "http":
		err = p.Server.ServeHTTP()
	default:
		err = fmt.Errorf("unsupported transport: %s", p.Config.Server.Transport)
	}

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		p.Logger.Error("transport stopped", zap.Error(err))
		_ = p.Shutdowner.Shutdown(fx.ExitCode(1))
		return
	}
	_ = p.Shutdowner.Shutdown()
}

func prewarm(ctx context.Context, p hookParams) {
	for _, alias := range p.Config.Sandbox.Pool.Prewarm {
		profile, err := p.Catalog.Lookup(alias)
		if err != nil {
			p.Logger.Warn("cannot prewarm unknown language", zap.String("language", alias))
			continue
		}

		createCtx, cancel := context.WithTimeout(ctx, p.Config.GetCreateTimeout())
		err = p.Pool.Prewarm(createCtx, profile)
		cancel()
		if err != nil {
			p.Logger.Warn("prewarm failed", zap.String("language", alias), zap.Error(err))
			continue
		}
		p.Logger.Info("container prewarmed", zap.String("language", profile.Name), zap.String("image", profile.Image))
	}
}
