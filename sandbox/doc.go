// Package sandbox provides secure code execution capabilities.
//
// The sandbox package implements the execution engine for running untrusted
// code in ephemeral, network-disabled, memory-capped Docker containers. It is
// built from a few cooperating pieces:
//
//   - Daemon, the capability interface over the container daemon, with a
//     Docker Engine API implementation (DockerDaemon).
//   - Container, one sandbox container: upload, compile, run with a
//     cancellable output stream, download, stop.
//   - Pool, a cache of idle containers keyed by image.
//   - Executor, the pipeline tying them together for one submission.
//   - Sweeper, which removes sandbox containers left behind by a crash.
//
// Usage:
//
//	executor := sandbox.NewExecutor(logger, pool)
//	result, err := executor.Execute(ctx, sandbox.ExecuteRequest{
//	    Profile: profile,
//	    Source:  "print('Hello, World!')",
//	    Timeout: 10 * time.Second,
//	})
//	report := result.Render(sandbox.DefaultDisplayLimit)
package sandbox
