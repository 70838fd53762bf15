package sandbox

import (
	"go.uber.org/zap"

	"github.com/isdmx/codebot/config"
)

// NewDaemon connects to the Docker daemon configured in sandbox.docker_host
func NewDaemon(cfg *config.Config) (Daemon, error) {
	return NewDockerDaemon(cfg.Sandbox.DockerHost)
}

// NewProvisionerFromConfig creates a provisioner with the configured limits
func NewProvisionerFromConfig(logger *zap.Logger, cfg *config.Config, daemon Daemon, tracker *Tracker) *Provisioner {
	return NewProvisioner(logger, daemon, tracker, Options{
		MemoryBytes: cfg.GetMemoryBytes(),
		StopGrace:   cfg.GetStopGrace(),
	})
}

// NewPoolFromConfig creates the container pool
func NewPoolFromConfig(logger *zap.Logger, cfg *config.Config, provisioner *Provisioner) *Pool {
	return NewPool(logger, provisioner,
		WithMaxIdlePerImage(cfg.Sandbox.Pool.MaxIdlePerImage),
		WithCreateTimeout(cfg.GetCreateTimeout()))
}

// NewExecutorFromConfig creates the execution pipeline
func NewExecutorFromConfig(logger *zap.Logger, cfg *config.Config, pool *Pool) *Executor {
	return NewExecutor(logger, pool,
		WithDefaultTimeout(cfg.GetTimeout()),
		WithMaxConcurrent(cfg.Sandbox.MaxConcurrent))
}

// NewSweeperFromConfig creates the orphan sweeper
func NewSweeperFromConfig(logger *zap.Logger, cfg *config.Config, daemon Daemon, tracker *Tracker) *Sweeper {
	return NewSweeper(logger, daemon, tracker, cfg.GetSweepStopGrace())
}
