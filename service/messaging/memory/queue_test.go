package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/tasker/service/messaging"
)

type TestPayload struct {
	ID    string
	Count int
}

func TestQueue(t *testing.T) {
	queue := NewQueue[TestPayload](DefaultConfig())
	ctx := context.Background()
	payload := TestPayload{ID: "test-1", Count: 1}

	require.NoError(t, queue.Publish(ctx, &payload))
	assert.Equal(t, 1, queue.Size())

	message, err := queue.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, queue.Size())
	assert.Equal(t, payload, *message.T())

	assert.NoError(t, message.Ack())
	assert.Error(t, message.Ack())
}

func TestQueue_FIFO(t *testing.T) {
	queue := NewQueue[TestPayload](DefaultConfig())
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		require.NoError(t, queue.Publish(ctx, &TestPayload{Count: i}))
	}
	for i := 0; i < 100; i++ {
		message, err := queue.Consume(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, message.T().Count)
	}
}

func TestQueue_PublishDoesNotBlock(t *testing.T) {
	queue := NewQueue[TestPayload](DefaultConfig())
	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			_ = queue.Publish(context.Background(), &TestPayload{Count: i})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publish blocked without consumers")
	}
	assert.Equal(t, 10000, queue.Size())
}

func TestQueue_ConcurrentConsumers(t *testing.T) {
	queue := NewQueue[TestPayload](DefaultConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const total = 200
	var mu sync.Mutex
	seen := map[int]bool{}
	wg := sync.WaitGroup{}
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				message, err := queue.Consume(ctx)
				if err != nil {
					return
				}
				mu.Lock()
				seen[message.T().Count] = true
				mu.Unlock()
				_ = message.Ack()
			}
		}()
	}
	for i := 0; i < total; i++ {
		require.NoError(t, queue.Publish(ctx, &TestPayload{Count: i}))
	}
	queue.Close()
	wg.Wait()
	assert.Len(t, seen, total)
}

func TestQueue_Close(t *testing.T) {
	queue := NewQueue[TestPayload](DefaultConfig())
	ctx := context.Background()
	require.NoError(t, queue.Publish(ctx, &TestPayload{ID: "left"}))
	queue.Close()
	queue.Close()

	assert.ErrorIs(t, queue.Publish(ctx, &TestPayload{}), messaging.ErrClosed)

	message, err := queue.Consume(ctx)
	require.NoError(t, err)
	assert.Equal(t, "left", message.T().ID)

	_, err = queue.Consume(ctx)
	assert.ErrorIs(t, err, messaging.ErrClosed)
}

func TestQueue_ConsumeContext(t *testing.T) {
	queue := NewQueue[TestPayload](DefaultConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := queue.Consume(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_Nack(t *testing.T) {
	queue := NewQueue[TestPayload](DefaultConfig())
	ctx := context.Background()
	require.NoError(t, queue.Publish(ctx, &TestPayload{ID: "bad"}))
	message, err := queue.Consume(ctx)
	require.NoError(t, err)

	failure := errors.New("boom")
	assert.NoError(t, message.Nack(failure))
	assert.Error(t, message.Nack(failure))
	assert.Equal(t, 1, queue.DLQSize())
	assert.Equal(t, 0, queue.Size())
	assert.Equal(t, failure, message.(*Message[TestPayload]).Err())
}
