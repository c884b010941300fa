package events

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Harsh-BH/codr/internal/domain"
)

func receive(t *testing.T, sub *Subscription) (domain.Event, bool) {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		return ev, ok
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return domain.Event{}, false
	}
}

func TestHub_PublishWithoutSubscribersIsNoop(t *testing.T) {
	hub := NewHub(4, zap.NewNop())

	err := hub.PublishOutput(context.Background(), uuid.New(), domain.StreamStdout, "hello")

	assert.NoError(t, err)
}

func TestHub_DeliversInOrderAndClosesAfterTerminal(t *testing.T) {
	hub := NewHub(8, zap.NewNop())
	ctx := context.Background()
	jobID := uuid.New()

	sub, err := hub.Subscribe(ctx, jobID)
	require.NoError(t, err)

	require.NoError(t, hub.PublishOutput(ctx, jobID, domain.StreamStdout, "a"))
	require.NoError(t, hub.PublishOutput(ctx, jobID, domain.StreamStderr, "b"))
	require.NoError(t, hub.PublishComplete(ctx, jobID, 0, 0.5))

	ev, ok := receive(t, sub)
	require.True(t, ok)
	assert.Equal(t, "a", ev.Data)
	assert.Equal(t, domain.StreamStdout, ev.Stream)

	ev, _ = receive(t, sub)
	assert.Equal(t, "b", ev.Data)
	assert.Equal(t, domain.StreamStderr, ev.Stream)

	ev, _ = receive(t, sub)
	assert.Equal(t, domain.EventComplete, ev.Type)
	require.NotNil(t, ev.ExitCode)
	assert.Equal(t, 0, *ev.ExitCode)

	_, ok = receive(t, sub)
	assert.False(t, ok, "subscription must close after the terminal event")
	assert.Equal(t, 0, hub.SubscriberCount(jobID))
}

func TestHub_FanOutToEverySubscriber(t *testing.T) {
	hub := NewHub(8, zap.NewNop())
	ctx := context.Background()
	jobID := uuid.New()

	first, _ := hub.Subscribe(ctx, jobID)
	second, _ := hub.Subscribe(ctx, jobID)
	other, _ := hub.Subscribe(ctx, uuid.New())

	require.NoError(t, hub.PublishError(ctx, jobID, "boom"))

	for _, sub := range []*Subscription{first, second} {
		ev, ok := receive(t, sub)
		require.True(t, ok)
		assert.Equal(t, domain.EventError, ev.Type)
		assert.Equal(t, "boom", ev.Message)
	}

	select {
	case ev := <-other.Events():
		t.Fatalf("subscriber of another job received %+v", ev)
	default:
	}
}

func TestHub_NoReplayForLateSubscribers(t *testing.T) {
	hub := NewHub(8, zap.NewNop())
	ctx := context.Background()
	jobID := uuid.New()

	require.NoError(t, hub.PublishOutput(ctx, jobID, domain.StreamStdout, "early"))
	sub, _ := hub.Subscribe(ctx, jobID)
	require.NoError(t, hub.PublishOutput(ctx, jobID, domain.StreamStdout, "late"))

	ev, ok := receive(t, sub)
	require.True(t, ok)
	assert.Equal(t, "late", ev.Data)
}

func TestHub_SlowSubscriberIsEvicted(t *testing.T) {
	hub := NewHub(2, zap.NewNop())
	ctx := context.Background()
	jobID := uuid.New()

	slow, _ := hub.Subscribe(ctx, jobID)
	for i := 0; i < 5; i++ {
		require.NoError(t, hub.PublishOutput(ctx, jobID, domain.StreamStdout, "x"))
	}

	assert.Equal(t, 0, hub.SubscriberCount(jobID))

	count := 0
	for range slow.Events() {
		count++
	}
	assert.Equal(t, 2, count, "buffered events stay readable before the close")
}

func TestHub_ContextCancelEndsSubscription(t *testing.T) {
	hub := NewHub(2, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	jobID := uuid.New()

	sub, _ := hub.Subscribe(ctx, jobID)
	cancel()

	_, ok := receive(t, sub)
	assert.False(t, ok)
	assert.Equal(t, 0, hub.SubscriberCount(jobID))
}

func TestHub_CloseIsIdempotent(t *testing.T) {
	hub := NewHub(2, zap.NewNop())
	jobID := uuid.New()
	sub, _ := hub.Subscribe(context.Background(), jobID)

	sub.Close()
	sub.Close()

	_, ok := receive(t, sub)
	assert.False(t, ok)
	assert.NoError(t, hub.PublishComplete(context.Background(), jobID, 0, 0))
}

func TestHub_SubscribeWithDoneContext(t *testing.T) {
	hub := NewHub(2, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := hub.Subscribe(ctx, uuid.New())

	assert.ErrorIs(t, err, context.Canceled)
}
