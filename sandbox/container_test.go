package sandbox

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/isdmx/codebot/catalog"
)

func pythonProfile() catalog.Profile {
	return catalog.Profile{
		Name:      "python",
		Aliases:   []string{"py"},
		Extension: "py",
		Path:      "{file}",
		Run:       catalog.MustParseCommand("python {file}"),
		Image:     "python:3",
	}
}

func cProfile() catalog.Profile {
	compile := catalog.MustParseCommand("gcc src/{file} -o out")
	return catalog.Profile{
		Name:      "c",
		Extension: "c",
		Path:      "src/{file}",
		Compile:   &compile,
		Run:       catalog.MustParseCommand("./out"),
		Image:     "gcc:13",
	}
}

func newTestProvisioner(t *testing.T, daemon Daemon, tracker *Tracker) *Provisioner {
	t.Helper()
	return NewProvisioner(zaptest.NewLogger(t), daemon, tracker, DefaultOptions())
}

func TestProvisionerCreate(t *testing.T) {
	t.Run("ContainerSpec", func(t *testing.T) {
		daemon := NewMockDaemon()
		tracker := NewTracker()
		p := newTestProvisioner(t, daemon, tracker)

		c, err := p.Create(context.Background(), pythonProfile())
		require.NoError(t, err)

		assert.True(t, strings.HasPrefix(c.Name, NamePrefix))
		assert.Equal(t, StateCreated, c.State())
		assert.True(t, tracker.Owns(c.ID, c.Name))

		spec := daemon.spec(c.ID)
		assert.Equal(t, c.Name, spec.Name)
		assert.Equal(t, "python:3", spec.Image)
		assert.Equal(t, []string{"/bin/sh"}, spec.Cmd)
		assert.True(t, spec.Tty)
		assert.True(t, spec.NetworkDisabled)
		assert.Equal(t, int64(1<<30), spec.MemoryBytes)
		assert.Equal(t, 30*time.Second, spec.StopTimeout)
		assert.Equal(t, "python", spec.Labels[LabelProfile])
	})

	t.Run("UniqueNames", func(t *testing.T) {
		p := newTestProvisioner(t, NewMockDaemon(), nil)

		a, err := p.Create(context.Background(), pythonProfile())
		require.NoError(t, err)
		b, err := p.Create(context.Background(), pythonProfile())
		require.NoError(t, err)
		assert.NotEqual(t, a.Name, b.Name)
	})

	t.Run("CreateFailure", func(t *testing.T) {
		daemon := NewMockDaemon()
		daemon.createErr = errors.New("no such image")
		p := newTestProvisioner(t, daemon, nil)

		_, err := p.Create(context.Background(), pythonProfile())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrContainerCreate)
		assert.NotErrorIs(t, err, ErrDaemonUnavailable)
	})

	t.Run("DaemonUnavailable", func(t *testing.T) {
		daemon := NewMockDaemon()
		daemon.createErr = errors.Join(ErrDaemonUnavailable, errors.New("connection refused"))
		p := newTestProvisioner(t, daemon, nil)

		_, err := p.Create(context.Background(), pythonProfile())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrDaemonUnavailable)
	})
}

func TestContainerUpload(t *testing.T) {
	ctx := context.Background()

	t.Run("SourceAtProfilePath", func(t *testing.T) {
		daemon := NewMockDaemon()
		c, err := newTestProvisioner(t, daemon, nil).Create(ctx, cProfile())
		require.NoError(t, err)

		require.NoError(t, c.UploadSource(ctx, "int main(){}", c.FileName()))

		data, ok := daemon.file(c.ID, "/src/"+c.Name+".c")
		require.True(t, ok)
		assert.Equal(t, "int main(){}", string(data))
		assert.Equal(t, StatePopulated, c.State())
	})

	t.Run("AttachmentPathUnchanged", func(t *testing.T) {
		daemon := NewMockDaemon()
		c, err := newTestProvisioner(t, daemon, nil).Create(ctx, pythonProfile())
		require.NoError(t, err)

		require.NoError(t, c.UploadAttachment(ctx, []byte{0, 1, 2}, "data/input.bin"))
		require.NoError(t, c.UploadAttachment(ctx, []byte("abs"), "/tmp/abs.txt"))

		data, ok := daemon.file(c.ID, "/data/input.bin")
		require.True(t, ok)
		assert.Equal(t, []byte{0, 1, 2}, data)

		data, ok = daemon.file(c.ID, "/tmp/abs.txt")
		require.True(t, ok)
		assert.Equal(t, "abs", string(data))
	})

	t.Run("StartsOnce", func(t *testing.T) {
		daemon := NewMockDaemon()
		c, err := newTestProvisioner(t, daemon, nil).Create(ctx, pythonProfile())
		require.NoError(t, err)

		require.NoError(t, c.UploadAttachment(ctx, []byte("a"), "a.txt"))
		daemon.startErr = errors.New("already started")
		assert.NoError(t, c.UploadSource(ctx, "print(1)", c.FileName()))
	})

	t.Run("CopyFailure", func(t *testing.T) {
		daemon := NewMockDaemon()
		daemon.copyToErr = errors.New("disk full")
		c, err := newTestProvisioner(t, daemon, nil).Create(ctx, pythonProfile())
		require.NoError(t, err)

		err = c.UploadSource(ctx, "print(1)", c.FileName())
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrUpload)
	})

	t.Run("StartFailure", func(t *testing.T) {
		daemon := NewMockDaemon()
		daemon.startErr = errors.New("oci runtime error")
		c, err := newTestProvisioner(t, daemon, nil).Create(ctx, pythonProfile())
		require.NoError(t, err)

		assert.ErrorIs(t, c.UploadSource(ctx, "print(1)", c.FileName()), ErrUpload)
	})
}

func TestContainerExec(t *testing.T) {
	ctx := context.Background()

	t.Run("NoCompileStep", func(t *testing.T) {
		daemon := NewMockDaemon()
		c, err := newTestProvisioner(t, daemon, nil).Create(ctx, pythonProfile())
		require.NoError(t, err)

		x, ok, err := c.Compile(ctx)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Nil(t, x)
		assert.Empty(t, daemon.execLog())
	})

	t.Run("CompileAndRunArgs", func(t *testing.T) {
		daemon := NewMockDaemon()
		c, err := newTestProvisioner(t, daemon, nil).Create(ctx, cProfile())
		require.NoError(t, err)

		x, ok, err := c.Compile(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, StateCompiling, c.State())
		require.NoError(t, x.Wait())

		x, err = c.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, StateRunning, c.State())
		require.NoError(t, x.Wait())

		assert.Equal(t, [][]string{
			{"gcc", "src/" + c.Name + ".c", "-o", "out"},
			{"./out"},
		}, daemon.execLog())
	})

	t.Run("CombinedOutput", func(t *testing.T) {
		daemon := NewMockDaemon()
		daemon.execFunc = func(_ string, _ []string) io.ReadCloser {
			return muxedStream(stdout("out\n"), stderr("err\n"))
		}
		c, err := newTestProvisioner(t, daemon, nil).Create(ctx, pythonProfile())
		require.NoError(t, err)

		x, err := c.Run(ctx)
		require.NoError(t, err)
		assert.Equal(t, "out\nerr\n", collect(t, x))
	})

	t.Run("RunsInUploadRoot", func(t *testing.T) {
		daemon := NewMockDaemon()
		build := catalog.MustParseCommand("go build -o app {file}")
		profile := catalog.Profile{
			Name:      "go",
			Extension: "go",
			Path:      "{file}",
			Compile:   &build,
			Run:       catalog.MustParseCommand("./app"),
			Image:     "golang:1.23-alpine",
		}
		c, err := newTestProvisioner(t, daemon, nil).Create(ctx, profile)
		require.NoError(t, err)
		require.NoError(t, c.UploadSource(ctx, "package main", c.FileName()))

		x, _, err := c.Compile(ctx)
		require.NoError(t, err)
		require.NoError(t, x.Wait())
		x, err = c.Run(ctx)
		require.NoError(t, err)
		require.NoError(t, x.Wait())

		// relative command paths must land on the uploaded file, whatever
		// WORKDIR the image declares
		assert.Equal(t, []string{"/", "/"}, daemon.execDirs())
		_, ok := daemon.file(c.ID, daemon.execDirs()[0]+c.FileName())
		assert.True(t, ok)
	})

	t.Run("ExecFailure", func(t *testing.T) {
		daemon := NewMockDaemon()
		daemon.execErr = errors.New("container not running")
		c, err := newTestProvisioner(t, daemon, nil).Create(ctx, pythonProfile())
		require.NoError(t, err)

		_, err = c.Run(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrExec)
		assert.Contains(t, err.Error(), "python "+c.Name+".py")
	})
}

func TestContainerDownload(t *testing.T) {
	ctx := context.Background()
	daemon := NewMockDaemon()
	c, err := newTestProvisioner(t, daemon, nil).Create(ctx, pythonProfile())
	require.NoError(t, err)

	t.Run("Found", func(t *testing.T) {
		daemon.putFile(c.ID, "/out/result.txt", []byte("42"))

		data, err := c.Download(ctx, "/out/result.txt")
		require.NoError(t, err)
		assert.Equal(t, "42", string(data))
	})

	t.Run("EmptyFile", func(t *testing.T) {
		daemon.putFile(c.ID, "/empty", []byte{})

		data, err := c.Download(ctx, "/empty")
		require.NoError(t, err)
		assert.Empty(t, data)
	})

	t.Run("Missing", func(t *testing.T) {
		_, err := c.Download(ctx, "/nope")
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrFileNotFound)
	})
}

func TestContainerStop(t *testing.T) {
	ctx := context.Background()

	t.Run("RemovesAndUntracks", func(t *testing.T) {
		daemon := NewMockDaemon()
		tracker := NewTracker()
		c, err := newTestProvisioner(t, daemon, tracker).Create(ctx, pythonProfile())
		require.NoError(t, err)

		require.NoError(t, c.Stop(ctx))
		assert.Equal(t, StateStopped, c.State())
		assert.False(t, tracker.Owns(c.ID, c.Name))
		assert.Equal(t, 0, daemon.count())
	})

	t.Run("SecondStopSurfacesNotFound", func(t *testing.T) {
		daemon := NewMockDaemon()
		c, err := newTestProvisioner(t, daemon, nil).Create(ctx, pythonProfile())
		require.NoError(t, err)

		require.NoError(t, c.Stop(ctx))
		err = c.Stop(ctx)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("StoppedIsTerminal", func(t *testing.T) {
		daemon := NewMockDaemon()
		daemon.removeErr["c0001"] = errors.New("removal in progress")
		c, err := newTestProvisioner(t, daemon, nil).Create(ctx, pythonProfile())
		require.NoError(t, err)

		require.Error(t, c.Stop(ctx))
		assert.Equal(t, StateStopped, c.State())

		assert.ErrorIs(t, c.UploadSource(ctx, "print(1)", c.FileName()), ErrContainerStopped)
		_, err = c.Run(ctx)
		assert.ErrorIs(t, err, ErrContainerStopped)
	})

	t.Run("KillKeepsFiles", func(t *testing.T) {
		daemon := NewMockDaemon()
		c, err := newTestProvisioner(t, daemon, nil).Create(ctx, pythonProfile())
		require.NoError(t, err)
		daemon.putFile(c.ID, "/out.txt", []byte("kept"))

		require.NoError(t, c.Kill(ctx))
		data, err := c.Download(ctx, "/out.txt")
		require.NoError(t, err)
		assert.Equal(t, "kept", string(data))
	})
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "pooled", StatePooledIdle.String())
	assert.Equal(t, "stopped", StateStopped.String())
	assert.Equal(t, "state(42)", State(42).String())
}
