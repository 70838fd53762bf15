package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/isdmx/codebot/metrics"
)

const teardownTimeout = 30 * time.Second

// Executor runs submissions end to end: acquire a container, upload, compile,
// run under a deadline, download requested files, remove the container.
type Executor struct {
	logger         *zap.Logger
	pool           *Pool
	defaultTimeout time.Duration
	slots          *semaphore.Weighted
}

// ExecutorOption configures an Executor
type ExecutorOption func(*Executor)

// WithDefaultTimeout sets the run deadline used when a request has none
func WithDefaultTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.defaultTimeout = d
	}
}

// WithMaxConcurrent limits simultaneous executions, zero means unlimited
func WithMaxConcurrent(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.slots = semaphore.NewWeighted(int64(n))
		} else {
			e.slots = nil
		}
	}
}

// NewExecutor creates an executor drawing containers from pool
func NewExecutor(logger *zap.Logger, pool *Pool, opts ...ExecutorOption) *Executor {
	e := &Executor{
		logger:         logger,
		pool:           pool,
		defaultTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs one submission. The container is removed on every path.
func (e *Executor) Execute(ctx context.Context, req ExecuteRequest) (*Result, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}

	if e.slots != nil {
		if err := e.slots.Acquire(ctx, 1); err != nil {
			return nil, fmt.Errorf("failed to wait for an execution slot: %w", err)
		}
		defer e.slots.Release(1)
	}

	language := req.Profile.Name
	logger := e.logger.With(zap.String("language", language))
	start := time.Now()

	req.notify(fmt.Sprintf("Creating %s container.", language))
	c, err := e.pool.Acquire(ctx, req.Profile)
	if err != nil {
		logger.Error("Failed to acquire container", zap.Error(err))
		observe(language, metrics.OutcomeError, start)
		return nil, err
	}
	logger = logger.With(zap.String("container", c.Name))
	req.notify(fmt.Sprintf("Created: %s", c.ID))

	defer e.teardown(logger, c)

	result, err := e.execute(ctx, logger, c, req, timeout)
	if err != nil {
		logger.Error("Execution failed", zap.Error(err))
		observe(language, metrics.OutcomeError, start)
		return nil, err
	}

	result.Container = c.Name
	result.Duration = time.Since(start)
	outcome := metrics.OutcomeOK
	if result.TimedOut {
		outcome = metrics.OutcomeTimeout
	}
	observe(language, outcome, start)

	logger.Info("Execution finished",
		zap.Bool("timed_out", result.TimedOut),
		zap.Int("files", len(result.Files)),
		zap.Duration("duration", result.Duration))
	return result, nil
}

func (e *Executor) execute(ctx context.Context, logger *zap.Logger, c *Container, req ExecuteRequest, timeout time.Duration) (*Result, error) {
	for _, att := range req.Attachments {
		if err := c.UploadAttachment(ctx, att.Data, att.Path); err != nil {
			return nil, err
		}
	}
	if err := c.UploadSource(ctx, req.Source, c.FileName()); err != nil {
		return nil, err
	}

	result := &Result{}

	compileLog, err := e.compile(ctx, logger, c)
	if err != nil {
		return nil, err
	}
	result.CompileLog = compileLog

	runLog, timedOut, err := e.run(ctx, logger, c, timeout)
	if err != nil {
		return nil, err
	}
	result.RunLog = runLog
	result.TimedOut = timedOut

	if timedOut {
		logger.Info("Execution timed out", zap.Duration("timeout", timeout))
		if err := c.Kill(ctx); err != nil {
			logger.Warn("Failed to kill timed out container", zap.Error(err))
		}
	}

	for _, path := range req.OutputPaths {
		data, err := c.Download(ctx, path)
		if err != nil {
			logger.Info("Requested file not available", zap.String("path", path), zap.Error(err))
			result.Missing = append(result.Missing, path)
			continue
		}
		result.Files = append(result.Files, Artifact{Path: path, Data: data})
	}

	return result, nil
}

// compile drains the compile step to completion. It has no deadline of its
// own and stops only when ctx is cancelled.
func (e *Executor) compile(ctx context.Context, logger *zap.Logger, c *Container) (string, error) {
	x, ok, err := c.Compile(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}

	var buf bytes.Buffer
	g := new(errgroup.Group)
	g.Go(func() error {
		for chunk := range x.Output() {
			buf.Write(chunk)
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-x.Done():
			return nil
		case <-ctx.Done():
			x.Cancel()
			return ctx.Err()
		}
	})
	if err := g.Wait(); err != nil {
		return "", err
	}
	if err := x.Wait(); err != nil {
		logger.Warn("Compile output incomplete", zap.Error(err))
	}

	return buf.String(), nil
}

// run drains the run step until it ends or the deadline passes
func (e *Executor) run(ctx context.Context, logger *zap.Logger, c *Container, timeout time.Duration) (string, bool, error) {
	x, err := c.Run(ctx)
	if err != nil {
		return "", false, err
	}

	var buf bytes.Buffer
	var timedOut bool

	g := new(errgroup.Group)
	g.Go(func() error {
		for chunk := range x.Output() {
			buf.Write(chunk)
		}
		return nil
	})
	g.Go(func() error {
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		select {
		case <-x.Done():
			return nil
		case <-timer.C:
			timedOut = true
			x.Cancel()
			return nil
		case <-ctx.Done():
			x.Cancel()
			return ctx.Err()
		}
	})
	if err := g.Wait(); err != nil {
		return "", false, err
	}
	if err := x.Wait(); err != nil {
		logger.Warn("Run output incomplete", zap.Error(err))
	}

	return buf.String(), timedOut, nil
}

func (e *Executor) teardown(logger *zap.Logger, c *Container) {
	ctx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	if err := c.Stop(ctx); err != nil {
		if errors.Is(err, ErrNotFound) {
			logger.Debug("Container already gone", zap.Error(err))
			return
		}
		logger.Warn("Failed to remove container", zap.Error(err))
	}
}

func observe(language, outcome string, start time.Time) {
	metrics.ExecutionsTotal.WithLabelValues(language, outcome).Inc()
	metrics.ExecutionDuration.WithLabelValues(language).Observe(time.Since(start).Seconds())
}
