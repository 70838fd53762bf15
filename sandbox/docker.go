package sandbox

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
)

// DockerDaemon implements Daemon on the Docker Engine API
type DockerDaemon struct {
	cli *client.Client
}

// NewDockerDaemon connects to the daemon named by the DOCKER_* environment,
// or to host when it is not empty. No request is made until first use.
func NewDockerDaemon(host string) (*DockerDaemon, error) {
	opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}

	cli, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: docker client init failed: %w", ErrDaemonUnavailable, err)
	}
	return &DockerDaemon{cli: cli}, nil
}

// Ping checks that the daemon answers
func (d *DockerDaemon) Ping(ctx context.Context) error {
	_, err := d.cli.Ping(ctx)
	return classify(err)
}

// CreateContainer creates a container without starting it
func (d *DockerDaemon) CreateContainer(ctx context.Context, spec ContainerSpec) (string, error) {
	stopTimeout := int(spec.StopTimeout / time.Second)

	hostConfig := &container.HostConfig{
		Resources: container.Resources{
			Memory: spec.MemoryBytes,
		},
	}
	if spec.NetworkDisabled {
		hostConfig.NetworkMode = "none"
	}

	resp, err := d.cli.ContainerCreate(ctx, &container.Config{
		Image:           spec.Image,
		Cmd:             spec.Cmd,
		Tty:             spec.Tty,
		NetworkDisabled: spec.NetworkDisabled,
		StopTimeout:     &stopTimeout,
		Labels:          spec.Labels,
	}, hostConfig, nil, nil, spec.Name)
	if err != nil {
		return "", classify(err)
	}
	return resp.ID, nil
}

// StartContainer starts a created container
func (d *DockerDaemon) StartContainer(ctx context.Context, id string) error {
	return classify(d.cli.ContainerStart(ctx, id, container.StartOptions{}))
}

// StopContainer stops a container, killing it after grace
func (d *DockerDaemon) StopContainer(ctx context.Context, id string, grace time.Duration) error {
	timeout := int(grace / time.Second)
	return classify(d.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout}))
}

// KillContainer sends SIGKILL to the container
func (d *DockerDaemon) KillContainer(ctx context.Context, id string) error {
	return classify(d.cli.ContainerKill(ctx, id, "SIGKILL"))
}

// RemoveContainer force-removes a container
func (d *DockerDaemon) RemoveContainer(ctx context.Context, id string) error {
	return classify(d.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true}))
}

// ExecAttach creates an exec session and attaches to its combined output.
// workDir overrides the image's WORKDIR.
func (d *DockerDaemon) ExecAttach(ctx context.Context, id, workDir string, cmd []string) (io.ReadCloser, error) {
	created, err := d.cli.ContainerExecCreate(ctx, id, container.ExecOptions{
		Cmd:          cmd,
		WorkingDir:   workDir,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, classify(err)
	}

	resp, err := d.cli.ContainerExecAttach(ctx, created.ID, container.ExecStartOptions{})
	if err != nil {
		return nil, classify(err)
	}
	return &hijackedStream{resp: resp}, nil
}

// CopyToContainer uploads a tar archive rooted at dstPath
func (d *DockerDaemon) CopyToContainer(ctx context.Context, id, dstPath string, content io.Reader) error {
	return classify(d.cli.CopyToContainer(ctx, id, dstPath, content, container.CopyToContainerOptions{}))
}

// CopyFromContainer downloads srcPath as a tar archive
func (d *DockerDaemon) CopyFromContainer(ctx context.Context, id, srcPath string) (io.ReadCloser, error) {
	rc, _, err := d.cli.CopyFromContainer(ctx, id, srcPath)
	if err != nil {
		return nil, classify(err)
	}
	return rc, nil
}

// ListContainers lists running containers, or every container when all is set
func (d *DockerDaemon) ListContainers(ctx context.Context, all bool) ([]ContainerSummary, error) {
	list, err := d.cli.ContainerList(ctx, container.ListOptions{All: all})
	if err != nil {
		return nil, classify(err)
	}

	out := make([]ContainerSummary, 0, len(list))
	for _, c := range list {
		out = append(out, ContainerSummary{
			ID:     c.ID,
			Names:  c.Names,
			Image:  c.Image,
			State:  c.State,
			Status: c.Status,
		})
	}
	return out, nil
}

// Close releases the client's transport
func (d *DockerDaemon) Close() error {
	return d.cli.Close()
}

// classify maps daemon errors onto the sandbox sentinels
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case client.IsErrConnectionFailed(err):
		return fmt.Errorf("%w: %w", ErrDaemonUnavailable, err)
	case errdefs.IsNotFound(err):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	default:
		return err
	}
}

type hijackedStream struct {
	resp types.HijackedResponse
}

func (s *hijackedStream) Read(p []byte) (int, error) {
	return s.resp.Reader.Read(p)
}

func (s *hijackedStream) Close() error {
	s.resp.Close()
	return nil
}
