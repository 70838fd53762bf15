package sandbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/codebot/metrics"
)

// Sweeper removes sandbox containers this process does not own
type Sweeper struct {
	logger    *zap.Logger
	daemon    Daemon
	tracker   *Tracker
	stopGrace time.Duration
}

// NewSweeper creates a sweeper. Containers in tracker are never removed.
func NewSweeper(logger *zap.Logger, daemon Daemon, tracker *Tracker, stopGrace time.Duration) *Sweeper {
	if tracker == nil {
		tracker = NewTracker()
	}
	return &Sweeper{
		logger:    logger,
		daemon:    daemon,
		tracker:   tracker,
		stopGrace: stopGrace,
	}
}

// IsSandboxName reports whether a container name carries the sandbox prefix.
// Names may come with the daemon's leading slash.
func IsSandboxName(name string) bool {
	return strings.HasPrefix(strings.TrimPrefix(name, "/"), NamePrefix)
}

// Orphans lists sandbox containers, stopped ones included, that this
// process does not own
func (s *Sweeper) Orphans(ctx context.Context) ([]ContainerSummary, error) {
	list, err := s.daemon.ListContainers(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	var orphans []ContainerSummary
	for _, c := range list {
		if hasSandboxName(c) && !s.tracker.Owns(c.ID, c.Name()) {
			orphans = append(orphans, c)
		}
	}
	return orphans, nil
}

// Sweep stops and removes every orphaned sandbox container. Per-container
// failures are logged and skipped. Only a failed listing is returned as an
// error.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	orphans, err := s.Orphans(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, c := range orphans {
		logger := s.logger.With(zap.String("container", c.Name()), zap.String("id", c.ID))
		if err := s.daemon.StopContainer(ctx, c.ID, s.stopGrace); err != nil {
			logger.Warn("Failed to stop orphaned container", zap.Error(err))
		}
		if err := s.daemon.RemoveContainer(ctx, c.ID); err != nil {
			logger.Warn("Failed to remove orphaned container", zap.Error(err))
			continue
		}

		removed++
		metrics.SweepRemovedTotal.Inc()
		logger.Info("Removed orphaned container")
	}

	return removed, nil
}

// Run sweeps every interval until ctx is done
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				s.logger.Warn("Scheduled sweep failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.logger.Info("Scheduled sweep finished", zap.Int("removed", n))
			}
		}
	}
}

func hasSandboxName(c ContainerSummary) bool {
	for _, name := range c.Names {
		if IsSandboxName(name) {
			return true
		}
	}
	return false
}

// ListContainers lists containers known to the daemon, running ones only
// unless all is set
func ListContainers(ctx context.Context, daemon Daemon, all bool) ([]ContainerSummary, error) {
	list, err := daemon.ListContainers(ctx, all)
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}
	return list, nil
}

// FormatContainers renders a listing as one "name image state" line per container
func FormatContainers(list []ContainerSummary) string {
	if len(list) == 0 {
		return "No containers."
	}

	var b strings.Builder
	for i, c := range list {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s %s %s", c.Name(), c.Image, c.State)
	}
	return b.String()
}
