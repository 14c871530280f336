package pipeline

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/viant/gosh"
	"github.com/viant/gosh/runner"
	"github.com/viant/gosh/runner/local"
	"github.com/viant/tasker/internal/expand"
	"github.com/viant/tasker/model/task"
	"github.com/viant/tasker/service/cancel"
	"github.com/viant/tasker/service/executor"
)

const (
	// DefaultCommandTimeout bounds a single command run when none is configured.
	DefaultCommandTimeout = 24 * time.Hour

	// KillGrace is how long a canceled command may handle SIGTERM before SIGKILL.
	KillGrace = 5 * time.Second

	pidWait = 2 * time.Second
)

// Command runs an external program through a local shell. ${field}
// placeholders in Line are replaced by shell-quoted request values.
type Command struct {
	Line      string
	Directory string
	Env       map[string]string
	Timeout   time.Duration
}

// ExitError reports a non-zero exit status
type ExitError struct {
	Status int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("command exited with status %d", e.Status)
}

// Expand returns the command line for request
func (c *Command) Expand(request task.Payload) string {
	return expand.Text(c.Line, func(key string) (string, bool) {
		value, ok := request[key]
		if !ok || value == nil {
			return "", false
		}
		return quote(fmt.Sprint(value)), true
	})
}

// Work returns the command as orchestrator work. The result mirrors the
// request's output field and carries the exit status.
//
// The command runs in its own session; when the signal fires its process
// group receives SIGTERM, then SIGKILL after KillGrace.
func (c *Command) Work() Work {
	return func(ctx context.Context, request task.Payload, onProgress executor.ProgressFunc, onLog executor.LogFunc, signal cancel.Signal) (task.Payload, error) {
		if signal.Canceled() {
			return nil, context.Canceled
		}
		line := c.Expand(request)
		pidFile, err := newPIDFile()
		if err != nil {
			return nil, err
		}
		defer os.Remove(pidFile)

		var options []runner.Option
		if len(c.Env) > 0 {
			options = append(options, runner.WithEnvironment(c.Env))
		}
		// the shell must outlive ctx so that it reaps the terminated group
		runCtx := context.WithoutCancel(ctx)
		service, err := gosh.New(runCtx, local.New(options...))
		if err != nil {
			return nil, fmt.Errorf("failed to start shell: %w", err)
		}
		var closeOnce sync.Once
		closeShell := func() { closeOnce.Do(func() { _ = service.Close() }) }
		defer closeShell()

		stop := make(chan struct{})
		watched := make(chan struct{})
		go func() {
			defer close(watched)
			watch(ctx, signal, pidFile, stop, closeShell)
		}()
		defer func() {
			close(stop)
			<-watched
		}()

		if c.Directory != "" {
			if _, status, err := service.Run(runCtx, "cd "+quote(c.Directory)); err != nil || status != 0 {
				return nil, fmt.Errorf("failed to change directory to %v: status %d: %v", c.Directory, status, err)
			}
		}
		if signal.Canceled() {
			return nil, context.Canceled
		}

		timeout := c.Timeout
		if timeout <= 0 {
			timeout = DefaultCommandTimeout
		}
		onProgress(0, "started")
		stdout, status, err := service.Run(runCtx, detached(line, pidFile), runner.WithTimeout(int(timeout.Milliseconds())))
		for _, text := range strings.Split(strings.TrimRight(stdout, "\n"), "\n") {
			if text = strings.TrimRight(text, "\r"); text != "" {
				onLog(text)
			}
		}
		if signal.Canceled() {
			return task.Payload{"output": request["output"]}, context.Canceled
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if status != 0 {
			return nil, &ExitError{Status: status}
		}
		if err != nil {
			return nil, fmt.Errorf("command failed: %w", err)
		}
		onProgress(1, "finished")
		return task.Payload{"output": request["output"], "status": status}, nil
	}
}

// detached runs line in a new session, records its pid and waits for it.
func detached(line, pidFile string) string {
	inner := quote(line)
	return fmt.Sprintf("if command -v setsid >/dev/null 2>&1; then setsid sh -c %s & else sh -c %s & fi; echo $! > %s; wait $!",
		inner, inner, quote(pidFile))
}

func newPIDFile() (string, error) {
	file, err := os.CreateTemp("", "tasker-*.pid")
	if err != nil {
		return "", fmt.Errorf("failed to create pid file: %w", err)
	}
	name := file.Name()
	if err = file.Close(); err != nil {
		_ = os.Remove(name)
		return "", fmt.Errorf("failed to create pid file: %w", err)
	}
	return name, nil
}

// watch terminates the command once the signal fires or ctx is done.
func watch(ctx context.Context, signal cancel.Signal, pidFile string, stop <-chan struct{}, closeShell func()) {
	select {
	case <-stop:
		return
	case <-signal.Done():
	case <-ctx.Done():
	}
	pid := readPID(pidFile, stop)
	if pid > 0 {
		_ = signalGroup(pid, false)
	}
	select {
	case <-stop:
		return
	case <-time.After(KillGrace):
	}
	if pid > 0 {
		_ = signalGroup(pid, true)
	}
	closeShell()
}

// readPID polls pidFile until the shell has written it, stop closes or
// pidWait elapses.
func readPID(pidFile string, stop <-chan struct{}) int {
	deadline := time.After(pidWait)
	for {
		if data, err := os.ReadFile(pidFile); err == nil {
			if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil && pid > 0 {
				return pid
			}
		}
		select {
		case <-stop:
			return 0
		case <-deadline:
			return 0
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func quote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}
