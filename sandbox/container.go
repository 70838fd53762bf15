package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/isdmx/codebot/archive"
	"github.com/isdmx/codebot/catalog"
)

const (
	// NamePrefix marks every container created by the sandbox
	NamePrefix = "dockerbot-"

	// LabelProfile carries the profile name on created containers
	LabelProfile = "codebot.profile"

	// uploadRoot is where files are extracted and where commands run, so
	// relative paths in a profile resolve the same way for both
	uploadRoot = "/"
)

// State is the lifecycle state of a sandbox container
type State int

const (
	StateCreated State = iota
	StatePooledIdle
	StatePopulated
	StateCompiling
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StatePooledIdle:
		return "pooled"
	case StatePopulated:
		return "populated"
	case StateCompiling:
		return "compiling"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options controls how containers are created
type Options struct {
	MemoryBytes int64
	StopGrace   time.Duration
}

// DefaultOptions returns a 1 GiB memory ceiling and a 30s stop grace
func DefaultOptions() Options {
	return Options{
		MemoryBytes: 1 << 30,
		StopGrace:   30 * time.Second,
	}
}

// Provisioner creates sandbox containers
type Provisioner struct {
	logger  *zap.Logger
	daemon  Daemon
	tracker *Tracker
	opts    Options
}

// NewProvisioner creates a provisioner. A nil tracker is replaced by a
// private one.
func NewProvisioner(logger *zap.Logger, daemon Daemon, tracker *Tracker, opts Options) *Provisioner {
	if tracker == nil {
		tracker = NewTracker()
	}
	return &Provisioner{
		logger:  logger,
		daemon:  daemon,
		tracker: tracker,
		opts:    opts,
	}
}

// Create creates a stopped, network-disabled container for the profile.
// It is started on first upload.
func (p *Provisioner) Create(ctx context.Context, profile catalog.Profile) (*Container, error) {
	name := NamePrefix + uuid.NewString()

	id, err := p.daemon.CreateContainer(ctx, ContainerSpec{
		Name:            name,
		Image:           profile.Image,
		Cmd:             []string{"/bin/sh"},
		Tty:             true,
		NetworkDisabled: true,
		MemoryBytes:     p.opts.MemoryBytes,
		StopTimeout:     p.opts.StopGrace,
		Labels:          map[string]string{LabelProfile: profile.Name},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: image %s: %w", ErrContainerCreate, profile.Image, err)
	}
	p.tracker.Add(id, name)

	p.logger.Debug("Container created",
		zap.String("container", name),
		zap.String("id", id),
		zap.String("image", profile.Image))

	return &Container{
		ID:      id,
		Name:    name,
		daemon:  p.daemon,
		logger:  p.logger.With(zap.String("container", name)),
		tracker: p.tracker,
		profile: profile,
		state:   StateCreated,
	}, nil
}

// Container is one sandbox container owned by this process
type Container struct {
	ID   string
	Name string

	daemon  Daemon
	logger  *zap.Logger
	tracker *Tracker

	mu      sync.Mutex
	profile catalog.Profile
	state   State
	started bool
}

// Profile returns the execution profile the container runs
func (c *Container) Profile() catalog.Profile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.profile
}

// State returns the current lifecycle state
func (c *Container) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// FileName returns the source file name, derived from the container name
func (c *Container) FileName() string {
	return c.Profile().FileName(c.Name)
}

// UploadSource writes the program text to the profile's source path
func (c *Container) UploadSource(ctx context.Context, content, fileName string) error {
	path := c.Profile().ResolvePath(fileName)
	if err := c.upload(ctx, path, []byte(content)); err != nil {
		return err
	}
	c.transition(StatePopulated)
	return nil
}

// UploadAttachment writes an auxiliary file, relative to the container root
func (c *Container) UploadAttachment(ctx context.Context, data []byte, path string) error {
	return c.upload(ctx, path, data)
}

func (c *Container) upload(ctx context.Context, path string, data []byte) error {
	if err := c.ensureStarted(ctx); err != nil {
		return err
	}

	packed, err := archive.Pack(archive.Entry{Path: strings.TrimPrefix(path, "/"), Data: data})
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUpload, path, err)
	}
	if err := c.daemon.CopyToContainer(ctx, c.ID, uploadRoot, bytes.NewReader(packed)); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUpload, path, err)
	}

	c.logger.Debug("File uploaded", zap.String("path", path), zap.Int("size", len(data)))
	return nil
}

func (c *Container) ensureStarted(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateStopped {
		return ErrContainerStopped
	}
	if c.started {
		return nil
	}
	if err := c.daemon.StartContainer(ctx, c.ID); err != nil {
		return fmt.Errorf("%w: start: %w", ErrUpload, err)
	}
	c.started = true
	return nil
}

// Compile starts the profile's compile command. It returns false when the
// profile has no compile step.
func (c *Container) Compile(ctx context.Context) (*Exec, bool, error) {
	profile := c.Profile()
	if !profile.HasCompileStep() {
		return nil, false, nil
	}

	x, err := c.exec(ctx, profile.Compile.Args(c.FileName()))
	if err != nil {
		return nil, true, err
	}
	c.transition(StateCompiling)
	return x, true, nil
}

// Run starts the profile's run command
func (c *Container) Run(ctx context.Context) (*Exec, error) {
	x, err := c.exec(ctx, c.Profile().Run.Args(c.FileName()))
	if err != nil {
		return nil, err
	}
	c.transition(StateRunning)
	return x, nil
}

func (c *Container) exec(ctx context.Context, cmd []string) (*Exec, error) {
	if c.State() == StateStopped {
		return nil, ErrContainerStopped
	}

	stream, err := c.daemon.ExecAttach(ctx, c.ID, uploadRoot, cmd)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrExec, strings.Join(cmd, " "), err)
	}

	c.logger.Debug("Exec started", zap.Strings("cmd", cmd))
	return startExec(stream), nil
}

// Download reads one file out of the container
func (c *Container) Download(ctx context.Context, path string) ([]byte, error) {
	rc, err := c.daemon.CopyFromContainer(ctx, c.ID, path)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return nil, fmt.Errorf("failed to download %s: %w", path, err)
	}
	defer rc.Close()

	data, err := archive.UnpackSingleFrom(rc)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFileNotFound, path, err)
	}
	return data, nil
}

// Kill sends SIGKILL to every process in the container. The filesystem
// stays readable until Stop.
func (c *Container) Kill(ctx context.Context) error {
	if err := c.daemon.KillContainer(ctx, c.ID); err != nil {
		return fmt.Errorf("failed to kill container %s: %w", c.Name, err)
	}
	return nil
}

// Stop removes the container. Calling it again surfaces the daemon's
// not-found error.
func (c *Container) Stop(ctx context.Context) error {
	c.transition(StateStopped)
	c.tracker.Remove(c.ID)

	if err := c.daemon.RemoveContainer(ctx, c.ID); err != nil {
		return fmt.Errorf("failed to remove container %s: %w", c.Name, err)
	}

	c.logger.Debug("Container removed")
	return nil
}

func (c *Container) transition(to State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateStopped {
		c.state = to
	}
}

// claim hands a pooled container to a new submission. Profiles sharing an
// image share the execution environment, so the commands follow the caller.
func (c *Container) claim(profile catalog.Profile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.profile = profile
	c.state = StateCreated
}
