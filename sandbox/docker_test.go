package sandbox

import (
	"errors"
	"testing"

	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Run("Nil", func(t *testing.T) {
		assert.NoError(t, classify(nil))
	})

	t.Run("ConnectionFailed", func(t *testing.T) {
		err := classify(client.ErrorConnectionFailed("unix:///var/run/docker.sock"))
		assert.ErrorIs(t, err, ErrDaemonUnavailable)
	})

	t.Run("NotFound", func(t *testing.T) {
		err := classify(errdefs.NotFound(errors.New("No such container: abc")))
		assert.ErrorIs(t, err, ErrNotFound)
		assert.Contains(t, err.Error(), "No such container")
	})

	t.Run("Other", func(t *testing.T) {
		cause := errors.New("conflict")
		err := classify(cause)
		assert.Equal(t, cause, err)
		assert.NotErrorIs(t, err, ErrNotFound)
	})
}

func TestNewDockerDaemon(t *testing.T) {
	d, err := NewDockerDaemon("tcp://127.0.0.1:2375")
	require.NoError(t, err)
	assert.NoError(t, d.Close())
}

func TestContainerSummaryName(t *testing.T) {
	assert.Equal(t, "dockerbot-1", ContainerSummary{Names: []string{"/dockerbot-1"}}.Name())
	assert.Equal(t, "plain", ContainerSummary{Names: []string{"plain"}}.Name())
	assert.Empty(t, ContainerSummary{}.Name())
}
