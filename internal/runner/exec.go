package runner

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

const hardTimeout = 10 * time.Minute

// diagnosticMarker is appended to captured output when the soft timeout
// fires and the runner gives up waiting for the exploit to finish.
const diagnosticMarker = "listener killed due to timeout"

// ExecResult is the outcome of one exploit invocation inside a leased
// container.
type ExecResult struct {
	Output     []byte
	ExitCode   int
	StartedAt  time.Time
	FinishedAt time.Time
	TimedOut   bool
}

// Run invokes /exploit/run.sh inside containerID with IP and FLAG_ID set,
// bounded by softTimeout (abandon-and-record) and a fixed hard timeout
// (give up entirely).
func Run(ctx context.Context, docker *client.Client, containerID, ip, flagID string, softTimeout time.Duration) (ExecResult, error) {
	started := time.Now().UTC()

	execCfg := container.ExecOptions{
		Cmd:          []string{"/exploit/run.sh"},
		Env:          []string{"IP=" + ip, "FLAG_ID=" + flagID},
		AttachStdout: true,
		AttachStderr: true,
	}

	created, err := docker.ContainerExecCreate(ctx, containerID, execCfg)
	if err != nil {
		return ExecResult{}, fmt.Errorf("exec create: %w", err)
	}

	attach, err := docker.ContainerExecAttach(ctx, created.ID, container.ExecStartOptions{})
	if err != nil {
		return ExecResult{}, fmt.Errorf("exec attach: %w", err)
	}
	defer attach.Close()

	type outcome struct {
		output []byte
		err    error
	}
	var stdout, stderr lockedBuffer
	done := make(chan outcome, 1)
	go func() {
		_, copyErr := stdcopy.StdCopy(&stdout, &stderr, attach.Reader)
		done <- outcome{output: append(stdout.Bytes(), stderr.Bytes()...), err: copyErr}
	}()

	soft := time.NewTimer(softTimeout)
	defer soft.Stop()
	hard := time.NewTimer(hardTimeout)
	defer hard.Stop()

	select {
	case o := <-done:
		return finish(ctx, docker, created.ID, started, o.output)

	case <-soft.C:
		select {
		case o := <-done:
			return finish(ctx, docker, created.ID, started, o.output)
		case <-hard.C:
			return ExecResult{}, fmt.Errorf("hard timeout of %s exceeded waiting for exploit output", hardTimeout)
		default:
			// Copy goroutine is still running against the shared,
			// mutex-guarded buffers; snapshot whatever it has written so
			// far rather than discarding it.
			partial := append(stdout.Bytes(), stderr.Bytes()...)
			partial = append(partial, '\n')
			partial = append(partial, diagnosticMarker...)
			return ExecResult{
				Output:     stripNullBytes(partial),
				ExitCode:   0,
				StartedAt:  started,
				FinishedAt: time.Now().UTC(),
				TimedOut:   true,
			}, nil
		}

	case <-hard.C:
		return ExecResult{}, fmt.Errorf("hard timeout of %s exceeded waiting for exploit output", hardTimeout)
	}
}

// lockedBuffer is a bytes.Buffer safe for concurrent use by the
// background stdcopy.StdCopy goroutine and a snapshot read from the
// timeout path.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, b.buf.Len())
	copy(out, b.buf.Bytes())
	return out
}

func finish(ctx context.Context, docker *client.Client, execID string, started time.Time, output []byte) (ExecResult, error) {
	finished := time.Now().UTC()
	exitCode, err := inspectExitCode(ctx, docker, execID)
	if err != nil {
		return ExecResult{}, fmt.Errorf("exec inspect: %w", err)
	}
	return ExecResult{
		Output:     stripNullBytes(output),
		ExitCode:   exitCode,
		StartedAt:  started,
		FinishedAt: finished,
	}, nil
}

func inspectExitCode(ctx context.Context, docker *client.Client, execID string) (int, error) {
	inspect, err := docker.ContainerExecInspect(ctx, execID)
	if err != nil {
		return 0, err
	}
	return inspect.ExitCode, nil
}

func stripNullBytes(b []byte) []byte {
	out := make([]byte, 0, len(b))
	for _, c := range b {
		if c != 0 {
			out = append(out, c)
		}
	}
	return out
}

// ExtractFlags scans output with re and returns the de-duplicated set of
// matches, in order of first appearance.
func ExtractFlags(re *regexp.Regexp, output []byte) []string {
	matches := re.FindAll(output, -1)
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		s := string(m)
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
