package sandbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/isdmx/codebot/catalog"
	"github.com/isdmx/codebot/metrics"
)

// Pool caches idle containers by image. A hit is replaced in the background
// so the next submission for the same image also finds a warm container.
type Pool struct {
	logger          *zap.Logger
	provisioner     *Provisioner
	maxIdlePerImage int
	createTimeout   time.Duration

	mu     sync.Mutex
	idle   []*Container
	closed bool
	wg     sync.WaitGroup
}

// PoolOption configures a Pool
type PoolOption func(*Pool)

// WithMaxIdlePerImage caps idle containers per image, zero means no cap
func WithMaxIdlePerImage(n int) PoolOption {
	return func(p *Pool) {
		p.maxIdlePerImage = n
	}
}

// WithCreateTimeout bounds background replacement creation
func WithCreateTimeout(d time.Duration) PoolOption {
	return func(p *Pool) {
		p.createTimeout = d
	}
}

// NewPool creates an empty pool
func NewPool(logger *zap.Logger, provisioner *Provisioner, opts ...PoolOption) *Pool {
	p := &Pool{
		logger:          logger,
		provisioner:     provisioner,
		maxIdlePerImage: 1,
		createTimeout:   time.Minute,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Acquire returns an idle container for the profile's image, or creates one.
// On a hit a replacement is created in the background.
func (p *Pool) Acquire(ctx context.Context, profile catalog.Profile) (*Container, error) {
	p.mu.Lock()
	c := p.takeLocked(profile.Image)
	p.mu.Unlock()

	if c == nil {
		metrics.PoolAcquireTotal.WithLabelValues("miss").Inc()
		return p.provisioner.Create(ctx, profile)
	}

	metrics.PoolAcquireTotal.WithLabelValues("hit").Inc()
	c.claim(profile)
	p.logger.Debug("Pooled container acquired",
		zap.String("container", c.Name),
		zap.String("image", profile.Image))

	p.replenish(profile)
	return c, nil
}

// Prewarm creates a container and parks it in the pool, subject to the cap
func (p *Pool) Prewarm(ctx context.Context, profile catalog.Profile) error {
	c, err := p.provisioner.Create(ctx, profile)
	if err != nil {
		return err
	}
	p.put(ctx, c)
	return nil
}

// Idle returns the number of idle containers
func (p *Pool) Idle() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// Close waits for in-flight replacements and removes every idle container
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.wg.Wait()

	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	metrics.PoolIdle.Set(0)
	p.mu.Unlock()

	var errs []error
	for _, c := range idle {
		if err := c.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *Pool) replenish(profile catalog.Profile) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), p.createTimeout)
		defer cancel()

		c, err := p.provisioner.Create(ctx, profile)
		if err != nil {
			p.logger.Warn("Failed to replenish pool",
				zap.String("image", profile.Image),
				zap.Error(err))
			return
		}
		p.put(ctx, c)
	}()
}

// put parks c, or removes it when the pool is closed or the image is full
func (p *Pool) put(ctx context.Context, c *Container) {
	image := c.Profile().Image

	p.mu.Lock()
	if p.closed || (p.maxIdlePerImage > 0 && p.countLocked(image) >= p.maxIdlePerImage) {
		p.mu.Unlock()
		if err := c.Stop(ctx); err != nil {
			p.logger.Warn("Failed to remove surplus container",
				zap.String("container", c.Name),
				zap.Error(err))
		}
		return
	}
	c.transition(StatePooledIdle)
	p.idle = append(p.idle, c)
	metrics.PoolIdle.Set(float64(len(p.idle)))
	p.mu.Unlock()
}

func (p *Pool) takeLocked(image string) *Container {
	for i, c := range p.idle {
		if c.Profile().Image == image {
			p.idle = append(p.idle[:i], p.idle[i+1:]...)
			metrics.PoolIdle.Set(float64(len(p.idle)))
			return c
		}
	}
	return nil
}

func (p *Pool) countLocked(image string) int {
	n := 0
	for _, c := range p.idle {
		if c.Profile().Image == image {
			n++
		}
	}
	return n
}
