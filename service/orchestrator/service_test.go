package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/tasker/model/task"
	"github.com/viant/tasker/policy"
	"github.com/viant/tasker/service/cancel"
	"github.com/viant/tasker/service/dao"
	"github.com/viant/tasker/service/dao/record/memory"
	"github.com/viant/tasker/service/event"
	"github.com/viant/tasker/service/store"
)

const waitTimeout = 5 * time.Second

func newService(t *testing.T, mirror dao.Service[string, task.Record], options ...Option) *Service {
	t.Helper()
	srv, err := New("tasks", store.New(mirror), options...)
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	t.Cleanup(srv.Shutdown)
	return srv
}

func wait(t *testing.T, srv *Service, id string) *task.Record {
	t.Helper()
	ctx, cancelFn := context.WithTimeout(context.Background(), waitTimeout)
	defer cancelFn()
	record, err := srv.Wait(ctx, id)
	require.NoError(t, err)
	return record
}

func TestService_Execution(t *testing.T) {
	testCases := []struct {
		name         string
		work         Work
		expectStatus task.Status
		expectError  string
		expectResult task.Payload
		expectEvents []string
		expectLogs   []string
	}{
		{
			name: "halfway progress then result",
			work: func(ctx context.Context, request task.Payload, onProgress ProgressFunc, onLog LogFunc, signal cancel.Signal) (task.Payload, error) {
				onProgress(0.5, "halfway")
				return task.Payload{"output": "x"}, nil
			},
			expectStatus: task.StatusSucceeded,
			expectResult: task.Payload{"output": "x"},
			expectEvents: []string{"halfway"},
			expectLogs:   []string{},
		},
		{
			name: "disk full",
			work: func(ctx context.Context, request task.Payload, onProgress ProgressFunc, onLog LogFunc, signal cancel.Signal) (task.Payload, error) {
				onLog("writing output")
				return nil, errors.New("disk full")
			},
			expectStatus: task.StatusFailed,
			expectError:  "disk full",
			expectEvents: []string{},
			expectLogs:   []string{"writing output"},
		},
		{
			name: "panic",
			work: func(ctx context.Context, request task.Payload, onProgress ProgressFunc, onLog LogFunc, signal cancel.Signal) (task.Payload, error) {
				var values []int
				_ = values[3]
				return nil, nil
			},
			expectStatus: task.StatusFailed,
			expectError:  "panic: runtime error: index out of range [3] with length 0",
			expectEvents: []string{},
			expectLogs:   []string{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mirror := memory.New()
			srv := newService(t, mirror)
			submitted, err := srv.Submit(context.Background(), "test", task.Payload{"output": "x"}, tc.work)
			require.NoError(t, err)
			assert.Equal(t, task.StatusQueued, submitted.Status)

			record := wait(t, srv, submitted.ID)
			assert.Equal(t, tc.expectStatus, record.Status)
			assert.Equal(t, tc.expectError, record.Error)
			assert.Equal(t, tc.expectResult, record.Result)
			assert.Equal(t, tc.expectLogs, record.Logs)
			var messages = []string{}
			for _, e := range record.ProgressEvents {
				messages = append(messages, e.Message)
			}
			assert.Equal(t, tc.expectEvents, messages)
			require.NotNil(t, record.StartedAt)
			require.NotNil(t, record.FinishedAt)
			assert.False(t, record.FinishedAt.Before(*record.StartedAt))

			persisted, err := mirror.Load(context.Background(), submitted.ID)
			require.NoError(t, err)
			assert.Equal(t, record, persisted)
		})
	}
}

func TestService_Submit_Validation(t *testing.T) {
	noop := func(ctx context.Context, request task.Payload, onProgress ProgressFunc, onLog LogFunc, signal cancel.Signal) (task.Payload, error) {
		return nil, nil
	}
	testCases := []struct {
		name      string
		kind      string
		work      Work
		expectErr error
	}{
		{name: "empty kind", kind: " ", work: noop, expectErr: ErrInvalidKind},
		{name: "nil work", kind: "train", expectErr: ErrNilWork},
		{name: "denied kind", kind: "blocked", work: noop, expectErr: policy.ErrDenied},
	}
	srv := newService(t, nil, WithPolicy(&policy.Policy{BlockList: []string{"blocked"}}))
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			record, err := srv.Submit(context.Background(), tc.kind, nil, tc.work)
			assert.ErrorIs(t, err, tc.expectErr)
			assert.Nil(t, record)
		})
	}
	assert.Empty(t, srv.List(nil))
}

func TestService_Cancel(t *testing.T) {
	srv := newService(t, memory.New())
	started := make(chan struct{})
	submitted, err := srv.Submit(context.Background(), "train", nil, func(ctx context.Context, request task.Payload, onProgress ProgressFunc, onLog LogFunc, signal cancel.Signal) (task.Payload, error) {
		close(started)
		<-signal.Done()
		onLog("stopping early")
		return task.Payload{"partial": true}, nil
	})
	require.NoError(t, err)
	<-started

	assert.True(t, srv.Cancel(context.Background(), submitted.ID))
	record := wait(t, srv, submitted.ID)
	assert.Equal(t, task.StatusCanceled, record.Status)
	assert.Equal(t, task.Payload{"partial": true}, record.Result)
	assert.Equal(t, []string{CancellationRequested, "stopping early"}, record.Logs)
	assert.Empty(t, record.Error)
}

func TestService_Cancel_ContextAware(t *testing.T) {
	srv := newService(t, nil)
	started := make(chan struct{})
	submitted, err := srv.Submit(context.Background(), "fold", nil, func(ctx context.Context, request task.Payload, onProgress ProgressFunc, onLog LogFunc, signal cancel.Signal) (task.Payload, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.NoError(t, err)
	<-started
	assert.True(t, srv.Cancel(context.Background(), submitted.ID))
	assert.Equal(t, task.StatusCanceled, wait(t, srv, submitted.ID).Status)
}

func TestService_Cancel_UnknownAndTerminal(t *testing.T) {
	srv := newService(t, nil)
	assert.False(t, srv.Cancel(context.Background(), "missing"))

	submitted, err := srv.Submit(context.Background(), "train", nil, func(ctx context.Context, request task.Payload, onProgress ProgressFunc, onLog LogFunc, signal cancel.Signal) (task.Payload, error) {
		return task.Payload{"output": "done"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, task.StatusSucceeded, wait(t, srv, submitted.ID).Status)

	assert.True(t, srv.Cancel(context.Background(), submitted.ID))
	record, ok := srv.Get(submitted.ID)
	require.True(t, ok)
	assert.Equal(t, task.StatusSucceeded, record.Status)
	assert.Equal(t, task.Payload{"output": "done"}, record.Result)
}

func TestService_ConcurrencyBound(t *testing.T) {
	const workers = 2
	const total = 6
	srv := newService(t, nil, WithWorkers(workers))
	release := make(chan struct{})
	var ids []string
	for i := 0; i < total; i++ {
		record, err := srv.Submit(context.Background(), "train", task.Payload{"index": i}, func(ctx context.Context, request task.Payload, onProgress ProgressFunc, onLog LogFunc, signal cancel.Signal) (task.Payload, error) {
			<-release
			return nil, nil
		})
		require.NoError(t, err)
		ids = append(ids, record.ID)
	}

	running := task.StatusRunning
	queued := task.StatusQueued
	assert.Eventually(t, func() bool { return len(srv.List(&running)) == workers }, waitTimeout, 5*time.Millisecond)
	for i := 0; i < 20; i++ {
		assert.LessOrEqual(t, len(srv.List(&running)), workers)
		time.Sleep(time.Millisecond)
	}
	assert.Len(t, srv.List(&queued), total-workers)
	close(release)

	for _, id := range ids {
		assert.Equal(t, task.StatusSucceeded, wait(t, srv, id).Status)
	}
	snapshot := srv.Tracker().Snapshot()
	assert.Equal(t, total, snapshot.Total)
	assert.Equal(t, total, snapshot.Succeeded)
	assert.Equal(t, 0, snapshot.Running)
}

func TestService_ListOrderAndSnapshots(t *testing.T) {
	srv, err := New("jobs", store.New(nil))
	require.NoError(t, err)
	defer srv.Shutdown()

	noop := func(ctx context.Context, request task.Payload, onProgress ProgressFunc, onLog LogFunc, signal cancel.Signal) (task.Payload, error) {
		return nil, nil
	}
	var ids []string
	for _, kind := range []string{"c", "a", "b"} {
		record, err := srv.Submit(context.Background(), kind, task.Payload{"nested": map[string]interface{}{"k": "v"}}, noop)
		require.NoError(t, err)
		ids = append(ids, record.ID)
	}
	var listed []string
	for _, record := range srv.List(nil) {
		listed = append(listed, record.ID)
	}
	assert.Equal(t, ids, listed)

	snapshot, ok := srv.Get(ids[0])
	require.True(t, ok)
	snapshot.Logs = append(snapshot.Logs, "tampered")
	snapshot.Request["nested"].(map[string]interface{})["k"] = "tampered"
	fresh, _ := srv.Get(ids[0])
	assert.Empty(t, fresh.Logs)
	assert.Equal(t, "v", fresh.Request["nested"].(map[string]interface{})["k"])

	succeeded := task.StatusSucceeded
	assert.Empty(t, srv.List(&succeeded))
	_, ok = srv.Get("missing")
	assert.False(t, ok)
}

func TestService_ShutdownAbandonsQueued(t *testing.T) {
	mirror := memory.New()
	srv, err := New("tasks", store.New(mirror))
	require.NoError(t, err)
	record, err := srv.Submit(context.Background(), "train", nil, func(ctx context.Context, request task.Payload, onProgress ProgressFunc, onLog LogFunc, signal cancel.Signal) (task.Payload, error) {
		return nil, nil
	})
	require.NoError(t, err)
	srv.Shutdown()

	final := wait(t, srv, record.ID)
	assert.Equal(t, task.StatusFailed, final.Status)
	assert.Equal(t, ErrShutdown.Error(), final.Error)
	assert.Nil(t, final.StartedAt)
	assert.NotNil(t, final.FinishedAt)

	late, err := srv.Submit(context.Background(), "train", nil, func(ctx context.Context, request task.Payload, onProgress ProgressFunc, onLog LogFunc, signal cancel.Signal) (task.Payload, error) {
		return nil, nil
	})
	assert.Error(t, err)
	require.NotNil(t, late)
	assert.Equal(t, task.StatusFailed, late.Status)
}

func TestService_Wait_Unknown(t *testing.T) {
	srv := newService(t, nil)
	_, err := srv.Wait(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

type failingMirror struct {
	*memory.Service
}

func (f *failingMirror) Save(ctx context.Context, record *task.Record) error {
	return errors.New("no space left on device")
}

func TestService_PersistFailureKeepsRunning(t *testing.T) {
	srv := newService(t, &failingMirror{Service: memory.New()})
	record, err := srv.Submit(context.Background(), "train", nil, func(ctx context.Context, request task.Payload, onProgress ProgressFunc, onLog LogFunc, signal cancel.Signal) (task.Payload, error) {
		onProgress(1, "done")
		return task.Payload{"ok": true}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, task.StatusSucceeded, wait(t, srv, record.ID).Status)
}

func TestService_Events(t *testing.T) {
	events := event.New()
	defer events.Close()

	var mu sync.Mutex
	var received []task.Update
	event.SetListenerOf[task.Update](context.Background(), events, func(e *event.Event[task.Update]) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, e.Data)
	})

	srv := newService(t, nil, WithEvents(events))
	record, err := srv.Submit(context.Background(), "train", nil, func(ctx context.Context, request task.Payload, onProgress ProgressFunc, onLog LogFunc, signal cancel.Signal) (task.Payload, error) {
		onProgress(0.25, "quarter")
		onLog("hello")
		return nil, nil
	})
	require.NoError(t, err)
	wait(t, srv, record.ID)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 5
	}, waitTimeout, 5*time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	var types []task.UpdateType
	for _, update := range received {
		types = append(types, update.Type)
	}
	assert.Equal(t, []task.UpdateType{task.UpdateStatus, task.UpdateStatus, task.UpdateProgress, task.UpdateLog, task.UpdateStatus}, types)
	assert.Equal(t, 0.25, received[2].Progress)
	assert.Equal(t, task.StatusSucceeded, received[4].Status)
}

func TestService_WriteThrough(t *testing.T) {
	mirror := memory.New()
	srv := newService(t, mirror)
	reported := make(chan struct{})
	release := make(chan struct{})
	record, err := srv.Submit(context.Background(), "train", nil, func(ctx context.Context, request task.Payload, onProgress ProgressFunc, onLog LogFunc, signal cancel.Signal) (task.Payload, error) {
		onProgress(0.5, "halfway")
		onLog("checkpoint saved")
		close(reported)
		<-release
		return task.Payload{"output": "x"}, nil
	})
	require.NoError(t, err)

	select {
	case <-reported:
	case <-time.After(waitTimeout):
		t.Fatal("work did not report progress")
	}
	persisted, err := mirror.Load(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusRunning, persisted.Status)
	assert.NotNil(t, persisted.StartedAt)
	assert.Nil(t, persisted.FinishedAt)
	require.Len(t, persisted.ProgressEvents, 1)
	assert.Equal(t, 0.5, persisted.ProgressEvents[0].Progress)
	assert.Equal(t, "halfway", persisted.ProgressEvents[0].Message)
	assert.Equal(t, []string{"checkpoint saved"}, persisted.Logs)

	close(release)
	assert.Equal(t, task.StatusSucceeded, wait(t, srv, record.ID).Status)
	persisted, err = mirror.Load(context.Background(), record.ID)
	require.NoError(t, err)
	assert.Equal(t, task.StatusSucceeded, persisted.Status)
}

func TestService_SnapshotsNeverShrink(t *testing.T) {
	const steps = 200
	srv := newService(t, memory.New(), WithWorkers(3))
	work := func(ctx context.Context, request task.Payload, onProgress ProgressFunc, onLog LogFunc, signal cancel.Signal) (task.Payload, error) {
		for i := 1; i <= steps; i++ {
			onProgress(float64(i)/steps, "step")
			onLog("step")
		}
		return nil, nil
	}
	var ids []string
	for i := 0; i < 3; i++ {
		record, err := srv.Submit(context.Background(), "train", nil, work)
		require.NoError(t, err)
		ids = append(ids, record.ID)
	}

	type lengths struct{ logs, events int }
	seen := map[string]lengths{}
	observe := func(record *task.Record) {
		prev := seen[record.ID]
		current := lengths{logs: len(record.Logs), events: len(record.ProgressEvents)}
		assert.GreaterOrEqual(t, current.logs, prev.logs, record.ID)
		assert.GreaterOrEqual(t, current.events, prev.events, record.ID)
		seen[record.ID] = current
	}
	deadline := time.Now().Add(waitTimeout)
	for {
		finished := 0
		for _, id := range ids {
			record, ok := srv.Get(id)
			require.True(t, ok)
			observe(record)
			if record.Status.IsTerminal() {
				finished++
			}
		}
		for _, record := range srv.List(nil) {
			observe(record)
		}
		if finished == len(ids) || time.Now().After(deadline) {
			break
		}
	}
	for _, id := range ids {
		record := wait(t, srv, id)
		assert.Len(t, record.Logs, steps)
		assert.Len(t, record.ProgressEvents, steps)
	}
}
