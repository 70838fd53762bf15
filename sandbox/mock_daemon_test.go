package sandbox

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/pkg/stdcopy"
	"github.com/klauspost/compress/gzip"
)

// mockContainer is the in-memory state of one container
type mockContainer struct {
	id      string
	spec    ContainerSpec
	running bool
	killed  bool
	files   map[string][]byte
}

// MockDaemon implements Daemon in memory for testing
type MockDaemon struct {
	mu         sync.Mutex
	containers map[string]*mockContainer
	nextID     int

	// external containers returned by ListContainers alongside created ones
	external []ContainerSummary

	pingErr   error
	createErr error
	startErr  error
	copyToErr error
	execErr   error
	listErr   error
	stopErrs  map[string]error
	removeErr map[string]error

	// execFunc produces the output stream for a command; nil means empty output
	execFunc func(id string, cmd []string) io.ReadCloser

	execs    [][]string
	workDirs []string
	stopped []string
	removed []string
	kills   []string
}

func NewMockDaemon() *MockDaemon {
	return &MockDaemon{
		containers: make(map[string]*mockContainer),
		stopErrs:   make(map[string]error),
		removeErr:  make(map[string]error),
	}
}

func (m *MockDaemon) Ping(_ context.Context) error {
	return m.pingErr
}

func (m *MockDaemon) CreateContainer(_ context.Context, spec ContainerSpec) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return "", m.createErr
	}
	m.nextID++
	id := fmt.Sprintf("c%04d", m.nextID)
	m.containers[id] = &mockContainer{id: id, spec: spec, files: make(map[string][]byte)}
	return id, nil
}

func (m *MockDaemon) StartContainer(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.startErr != nil {
		return m.startErr
	}
	c, ok := m.containers[id]
	if !ok {
		return fmt.Errorf("%w: container %s", ErrNotFound, id)
	}
	c.running = true
	return nil
}

func (m *MockDaemon) StopContainer(_ context.Context, id string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stopped = append(m.stopped, id)
	if err, ok := m.stopErrs[id]; ok {
		return err
	}
	if c, ok := m.containers[id]; ok {
		c.running = false
	}
	return nil
}

func (m *MockDaemon) KillContainer(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.containers[id]
	if !ok {
		return fmt.Errorf("%w: container %s", ErrNotFound, id)
	}
	m.kills = append(m.kills, id)
	c.running = false
	c.killed = true
	return nil
}

func (m *MockDaemon) RemoveContainer(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.removeErr[id]; ok {
		return err
	}
	if _, ok := m.containers[id]; ok {
		delete(m.containers, id)
		m.removed = append(m.removed, id)
		return nil
	}
	for i, c := range m.external {
		if c.ID == id {
			m.external = append(m.external[:i], m.external[i+1:]...)
			m.removed = append(m.removed, id)
			return nil
		}
	}
	return fmt.Errorf("%w: container %s", ErrNotFound, id)
}

func (m *MockDaemon) ExecAttach(_ context.Context, id, workDir string, cmd []string) (io.ReadCloser, error) {
	m.mu.Lock()
	if m.execErr != nil {
		m.mu.Unlock()
		return nil, m.execErr
	}
	if _, ok := m.containers[id]; !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: container %s", ErrNotFound, id)
	}
	m.execs = append(m.execs, append([]string(nil), cmd...))
	m.workDirs = append(m.workDirs, workDir)
	execFunc := m.execFunc
	m.mu.Unlock()

	if execFunc == nil {
		return muxedStream(), nil
	}
	return execFunc(id, cmd), nil
}

func (m *MockDaemon) CopyToContainer(_ context.Context, id, dstPath string, content io.Reader) error {
	if m.copyToErr != nil {
		return m.copyToErr
	}

	gz, err := gzip.NewReader(content)
	if err != nil {
		return err
	}
	tr := tar.NewReader(gz)

	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.containers[id]
	if !ok {
		return fmt.Errorf("%w: container %s", ErrNotFound, id)
	}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return err
		}
		c.files[strings.TrimSuffix(dstPath, "/")+"/"+hdr.Name] = data
	}
}

// CopyFromContainer returns a plain tar with a directory header ahead of the
// file, the way the Docker daemon wraps archive downloads
func (m *MockDaemon) CopyFromContainer(_ context.Context, id, srcPath string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.containers[id]
	if !ok {
		return nil, fmt.Errorf("%w: container %s", ErrNotFound, id)
	}
	data, ok := c.files[srcPath]
	if !ok {
		return nil, fmt.Errorf("%w: path %s", ErrNotFound, srcPath)
	}

	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	_ = tw.WriteHeader(&tar.Header{Name: "out/", Typeflag: tar.TypeDir, Mode: 0755})
	_ = tw.WriteHeader(&tar.Header{Name: "out/file", Typeflag: tar.TypeReg, Mode: 0644, Size: int64(len(data))})
	_, _ = tw.Write(data)
	_ = tw.Close()
	return io.NopCloser(&buf), nil
}

func (m *MockDaemon) ListContainers(_ context.Context, _ bool) ([]ContainerSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.listErr != nil {
		return nil, m.listErr
	}
	list := append([]ContainerSummary(nil), m.external...)
	for _, c := range m.containers {
		state := "created"
		if c.running {
			state = "running"
		}
		list = append(list, ContainerSummary{
			ID:    c.id,
			Names: []string{"/" + c.spec.Name},
			Image: c.spec.Image,
			State: state,
		})
	}
	return list, nil
}

func (m *MockDaemon) Close() error {
	return nil
}

// file returns an uploaded file by absolute path
func (m *MockDaemon) file(id, path string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.containers[id]
	if !ok {
		return nil, false
	}
	data, ok := c.files[path]
	return data, ok
}

// putFile plants a file as if a program had written it
func (m *MockDaemon) putFile(id, path string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.containers[id].files[path] = data
}

func (m *MockDaemon) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.containers)
}

func (m *MockDaemon) spec(id string) ContainerSpec {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.containers[id].spec
}

func (m *MockDaemon) killCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.kills)
}

func (m *MockDaemon) execLog() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string(nil), m.execs...)
}

func (m *MockDaemon) execDirs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.workDirs...)
}

func (m *MockDaemon) removedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.removed...)
}

// frame is one chunk of multiplexed exec output
type frame struct {
	stream stdcopy.StdType
	data   string
}

func stdout(s string) frame { return frame{stdcopy.Stdout, s} }
func stderr(s string) frame { return frame{stdcopy.Stderr, s} }

// muxedStream encodes frames the way the daemon multiplexes exec output
func muxedStream(frames ...frame) io.ReadCloser {
	var buf bytes.Buffer
	for _, f := range frames {
		_, _ = stdcopy.NewStdWriter(&buf, f.stream).Write([]byte(f.data))
	}
	return io.NopCloser(&buf)
}

// liveStream is an exec stream the test writes to; it records Close
type liveStream struct {
	*io.PipeReader
	w      *io.PipeWriter
	closed chan struct{}
	once   sync.Once
}

func newLiveStream() *liveStream {
	r, w := io.Pipe()
	return &liveStream{PipeReader: r, w: w, closed: make(chan struct{})}
}

func (s *liveStream) send(f frame) error {
	_, err := stdcopy.NewStdWriter(s.w, f.stream).Write([]byte(f.data))
	return err
}

func (s *liveStream) finish() {
	_ = s.w.Close()
}

func (s *liveStream) Close() error {
	s.once.Do(func() { close(s.closed) })
	return s.PipeReader.Close()
}
