package sandbox

import (
	"context"
	"time"

	"github.com/isdmx/codebot/archive"
	"github.com/isdmx/codebot/catalog"
)

// ExecuteRequest represents one code submission
type ExecuteRequest struct {
	Profile     catalog.Profile
	Source      string
	Attachments []archive.Entry // uploaded before the source
	OutputPaths []string        // files to download after the run
	Timeout     time.Duration   // zero uses the executor default

	// Notify, when set, receives progress messages
	Notify func(message string)
}

func (r ExecuteRequest) notify(message string) {
	if r.Notify != nil {
		r.Notify(message)
	}
}

// Artifact is a named file produced by an execution
type Artifact struct {
	Path string
	Data []byte
}

// Result represents the outcome of an execution. A timeout is a result,
// not an error.
type Result struct {
	Container  string
	CompileLog string
	RunLog     string
	TimedOut   bool
	Files      []Artifact
	Missing    []string
	Duration   time.Duration
}

// SandboxExecutor defines the interface for sandbox execution
type SandboxExecutor interface {
	Execute(ctx context.Context, req ExecuteRequest) (*Result, error)
}
