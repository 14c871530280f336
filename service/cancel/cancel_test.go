package cancel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRegistry(t *testing.T) {
	registry := NewRegistry()
	token := registry.Register("a")
	assert.Same(t, token, registry.Register("a"))
	assert.False(t, token.Canceled())

	assert.False(t, registry.Cancel("unknown"))
	assert.True(t, registry.Cancel("a"))
	assert.True(t, registry.Cancel("a"))
	assert.True(t, token.Canceled())

	select {
	case <-token.Done():
	default:
		t.Fatal("done channel should be closed")
	}

	_, ok := registry.Lookup("unknown")
	assert.False(t, ok)
}

func TestContext(t *testing.T) {
	t.Run("signal cancels context", func(t *testing.T) {
		token := NewToken()
		ctx, cancelFn := Context(context.Background(), token)
		defer cancelFn()
		assert.NoError(t, ctx.Err())
		token.Cancel()
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
			t.Fatal("context was not canceled")
		}
	})

	t.Run("parent cancels context without setting signal", func(t *testing.T) {
		token := NewToken()
		parent, cancelParent := context.WithCancel(context.Background())
		ctx, cancelFn := Context(parent, token)
		defer cancelFn()
		cancelParent()
		<-ctx.Done()
		assert.False(t, token.Canceled())
	})
}
