package sandbox

import (
	"context"
	"errors"
	"io"
	"time"
)

// Sandbox errors. Daemon implementations wrap ErrDaemonUnavailable and
// ErrNotFound; the container layer adds the step that failed.
var (
	ErrDaemonUnavailable = errors.New("container daemon unavailable")
	ErrNotFound          = errors.New("no such object")
	ErrContainerCreate   = errors.New("container create failed")
	ErrUpload            = errors.New("upload failed")
	ErrExec              = errors.New("exec failed")
	ErrFileNotFound      = errors.New("file not found")
	ErrContainerStopped  = errors.New("container already stopped")
)

// ContainerSpec describes a container to create
type ContainerSpec struct {
	Name            string
	Image           string
	Cmd             []string
	Tty             bool
	NetworkDisabled bool
	MemoryBytes     int64
	StopTimeout     time.Duration
	Labels          map[string]string
}

// ContainerSummary is one entry of a container listing
type ContainerSummary struct {
	ID     string
	Names  []string
	Image  string
	State  string
	Status string
}

// Name returns the primary container name without the leading slash
func (s ContainerSummary) Name() string {
	if len(s.Names) == 0 {
		return ""
	}
	name := s.Names[0]
	if len(name) > 0 && name[0] == '/' {
		return name[1:]
	}
	return name
}

// Daemon is the subset of the container daemon the sandbox relies on
type Daemon interface {
	Ping(ctx context.Context) error
	CreateContainer(ctx context.Context, spec ContainerSpec) (string, error)
	StartContainer(ctx context.Context, id string) error
	StopContainer(ctx context.Context, id string, grace time.Duration) error
	KillContainer(ctx context.Context, id string) error
	// RemoveContainer force-removes a container, running or not.
	RemoveContainer(ctx context.Context, id string) error
	// ExecAttach starts cmd in workDir inside the container and returns its
	// output as a multiplexed stdout/stderr stream (see pkg/stdcopy).
	ExecAttach(ctx context.Context, id, workDir string, cmd []string) (io.ReadCloser, error)
	// CopyToContainer extracts a tar archive, optionally compressed, at dstPath.
	CopyToContainer(ctx context.Context, id, dstPath string, content io.Reader) error
	// CopyFromContainer returns a tar archive of srcPath.
	CopyFromContainer(ctx context.Context, id, srcPath string) (io.ReadCloser, error)
	ListContainers(ctx context.Context, all bool) ([]ContainerSummary, error)
	Close() error
}
