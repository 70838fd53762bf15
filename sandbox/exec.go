package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/docker/docker/pkg/stdcopy"
)

const outputBuffer = 64

// Exec is a command running inside a container. Its combined stdout and
// stderr arrive on Output in the order the daemon produced them.
type Exec struct {
	output chan []byte
	done   chan struct{}
	cancel context.CancelFunc
	err    error
}

func startExec(stream io.ReadCloser) *Exec {
	ctx, cancel := context.WithCancel(context.Background())
	x := &Exec{
		output: make(chan []byte, outputBuffer),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	go x.pump(ctx, stream)
	return x
}

// Output yields output chunks. The channel is closed when the stream ends
// or the exec is cancelled, whichever comes first.
func (x *Exec) Output() <-chan []byte {
	return x.output
}

// Done is closed once the exec has finished delivering output
func (x *Exec) Done() <-chan struct{} {
	return x.done
}

// Wait blocks until the exec finishes and returns the stream error, if any.
// A cancelled exec is not an error.
func (x *Exec) Wait() error {
	<-x.done
	return x.err
}

// Cancel stops delivery and closes the underlying stream. It does not wait.
func (x *Exec) Cancel() {
	x.cancel()
}

func (x *Exec) pump(ctx context.Context, stream io.ReadCloser) {
	defer close(x.done)
	defer close(x.output)
	defer x.cancel()
	defer stream.Close()

	chunks := make(chan []byte)
	copyErr := make(chan error, 1)
	go func() {
		w := chunkWriter{ctx: ctx, chunks: chunks}
		_, err := stdcopy.StdCopy(w, w, stream)
		copyErr <- err
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case chunk := <-chunks:
			select {
			case x.output <- chunk:
			case <-ctx.Done():
				return
			}
		case err := <-copyErr:
			if err != nil && !errors.Is(err, io.EOF) {
				x.err = fmt.Errorf("%w: output stream: %w", ErrExec, err)
			}
			return
		}
	}
}

// chunkWriter hands each write to the pump as its own slice
type chunkWriter struct {
	ctx    context.Context
	chunks chan<- []byte
}

func (w chunkWriter) Write(p []byte) (int, error) {
	chunk := make([]byte, len(p))
	copy(chunk, p)
	select {
	case w.chunks <- chunk:
		return len(p), nil
	case <-w.ctx.Done():
		return 0, w.ctx.Err()
	}
}
