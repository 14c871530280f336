//go:build linux

package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/tasker/model/task"
	"github.com/viant/tasker/service/cancel"
)

// alive reports whether pid exists and is not a zombie.
func alive(pid int) bool {
	if err := syscall.Kill(pid, 0); err != nil {
		return false
	}
	stat, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return false
	}
	fields := strings.Fields(string(stat[strings.LastIndexByte(string(stat), ')')+1:]))
	return len(fields) > 0 && fields[0] != "Z"
}

func TestCommand_CancelTerminatesProcess(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "child.pid")
	command := &Command{Line: "echo $$ > ${pidfile}; exec sleep 7"}
	token := cancel.NewToken()
	ctx, cancelFn := cancel.Context(context.Background(), token)
	defer cancelFn()

	onProgress := func(progress float64, message string) {
		if message == "started" {
			time.AfterFunc(300*time.Millisecond, token.Cancel)
		}
	}
	started := time.Now()
	result, err := command.Work()(ctx, task.Payload{"output": "o", "pidfile": pidPath}, onProgress, func(string) {}, token)
	elapsed := time.Since(started)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, elapsed, 3*time.Second)
	assert.Equal(t, task.Payload{"output": "o"}, result)

	data, err := os.ReadFile(pidPath)
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return !alive(pid) }, time.Second, 20*time.Millisecond)
}

func TestCommand_CanceledContextTerminatesProcess(t *testing.T) {
	pidPath := filepath.Join(t.TempDir(), "child.pid")
	command := &Command{Line: "echo $$ > ${pidfile}; exec sleep 7"}
	ctx, cancelFn := context.WithCancel(context.Background())
	defer cancelFn()
	onProgress := func(progress float64, message string) {
		if message == "started" {
			time.AfterFunc(300*time.Millisecond, cancelFn)
		}
	}
	_, err := command.Work()(ctx, task.Payload{"pidfile": pidPath}, onProgress, func(string) {}, cancel.NewToken())
	assert.ErrorIs(t, err, context.Canceled)

	data, err := os.ReadFile(pidPath)
	require.NoError(t, err)
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return !alive(pid) }, time.Second, 20*time.Millisecond)
}
