package dispatcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/procurement-tracker/internal/domain/event"
)

type recordingLogger struct {
	mu     sync.Mutex
	infos  []string
	errors []string
}

func (l *recordingLogger) Info(msg string, _ ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, msg)
}

func (l *recordingLogger) Error(msg string, _ ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.errors = append(l.errors, msg)
}

func (l *recordingLogger) errorCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors)
}

func statusEvent() *event.Event {
	return event.NewEvent(event.TypeStatusChanged, 1, "REQ-20261019-0001", nil)
}

func TestDispatch_RunsHandlersInOrder(t *testing.T) {
	d := NewDispatcher()
	var order []string

	d.SubscribeNamed(event.TypeStatusChanged, "audit", func(ctx context.Context, evt *event.Event) error {
		order = append(order, "audit")
		return nil
	})
	d.SubscribeNamed(event.TypeStatusChanged, "notify", func(ctx context.Context, evt *event.Event) error {
		order = append(order, "notify")
		return nil
	})
	d.Subscribe(event.TypeIdeaVoted, func(ctx context.Context, evt *event.Event) error {
		order = append(order, "wrong type")
		return nil
	})

	require.NoError(t, d.Dispatch(context.Background(), statusEvent()))
	assert.Equal(t, []string{"audit", "notify"}, order)
}

func TestDispatch_StopsAtFirstError(t *testing.T) {
	logger := &recordingLogger{}
	d := NewDispatcher(WithLogger(logger))
	boom := errors.New("boom")
	secondCalled := false

	d.SubscribeNamed(event.TypeStatusChanged, "failing", func(ctx context.Context, evt *event.Event) error {
		return boom
	})
	d.Subscribe(event.TypeStatusChanged, func(ctx context.Context, evt *event.Event) error {
		secondCalled = true
		return nil
	})

	err := d.Dispatch(context.Background(), statusEvent())
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failing")
	assert.False(t, secondCalled)
	assert.Equal(t, 1, logger.errorCount())
}

func TestDispatch_RecoversPanic(t *testing.T) {
	d := NewDispatcher()
	d.Subscribe(event.TypeStatusChanged, func(ctx context.Context, evt *event.Event) error {
		panic("bad handler")
	})

	err := d.Dispatch(context.Background(), statusEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad handler")
}

func TestDispatchAsync_SurvivesCallerCancellation(t *testing.T) {
	d := NewDispatcher()
	var ran, cancelled atomic.Bool

	d.Subscribe(event.TypeStatusChanged, func(ctx context.Context, evt *event.Event) error {
		time.Sleep(10 * time.Millisecond)
		ran.Store(true)
		cancelled.Store(ctx.Err() != nil)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	d.DispatchAsync(ctx, statusEvent())
	cancel()

	require.NoError(t, d.Close())
	assert.True(t, ran.Load())
	assert.False(t, cancelled.Load())
}

func TestDispatchAsync_LogsHandlerErrors(t *testing.T) {
	logger := &recordingLogger{}
	d := NewDispatcher(WithLogger(logger))
	var calls atomic.Int32

	d.Subscribe(event.TypeThresholdExceeded, func(ctx context.Context, evt *event.Event) error {
		calls.Add(1)
		return errors.New("smtp down")
	})
	d.Subscribe(event.TypeThresholdExceeded, func(ctx context.Context, evt *event.Event) error {
		calls.Add(1)
		panic("nil recipient")
	})

	d.DispatchAsync(context.Background(), event.NewEvent(event.TypeThresholdExceeded, 1, "CMB-1", nil))
	require.NoError(t, d.Close())

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 2, logger.errorCount())
}

func TestUnsubscribe(t *testing.T) {
	d := NewDispatcher()
	called := map[string]bool{}

	d.SubscribeNamed(event.TypeIdeaVoted, "keep", func(ctx context.Context, evt *event.Event) error {
		called["keep"] = true
		return nil
	})
	d.SubscribeNamed(event.TypeIdeaVoted, "drop", func(ctx context.Context, evt *event.Event) error {
		called["drop"] = true
		return nil
	})
	d.Unsubscribe(event.TypeIdeaVoted, "drop")

	require.NoError(t, d.Dispatch(context.Background(), event.NewEvent(event.TypeIdeaVoted, 3, "", nil)))
	assert.Equal(t, map[string]bool{"keep": true}, called)
}

func TestListHandlers_HidesFunctions(t *testing.T) {
	d := NewDispatcher()
	d.SubscribeNamed(event.TypeRequestCreated, "audit", func(ctx context.Context, evt *event.Event) error { return nil })
	d.Subscribe(event.TypeRequestCreated, func(ctx context.Context, evt *event.Event) error { return nil })

	handlers := d.ListHandlers(event.TypeRequestCreated)
	require.Len(t, handlers, 2)
	assert.Equal(t, "audit", handlers[0].Name)
	assert.Equal(t, "request.created#1", handlers[1].Name)
	for _, h := range handlers {
		assert.Nil(t, h.Handler)
	}
	assert.Empty(t, d.ListHandlers(event.TypeIdeaCreated))
}

func TestClose(t *testing.T) {
	logger := &recordingLogger{}
	d := NewDispatcher(WithLogger(logger))
	var done atomic.Bool

	d.Subscribe(event.TypeStatusChanged, func(ctx context.Context, evt *event.Event) error {
		time.Sleep(20 * time.Millisecond)
		done.Store(true)
		return nil
	})
	d.DispatchAsync(context.Background(), statusEvent())

	require.NoError(t, d.Close())
	assert.True(t, done.Load(), "Close should wait for in-flight handlers")

	assert.Error(t, d.Close())
	assert.ErrorIs(t, d.Dispatch(context.Background(), statusEvent()), ErrClosed)

	d.DispatchAsync(context.Background(), statusEvent())
	assert.Equal(t, 1, logger.errorCount())
}

func TestConcurrentSubscribeAndDispatch(t *testing.T) {
	d := NewDispatcher()
	var calls atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			d.Subscribe(event.TypeIdeaVoted, func(ctx context.Context, evt *event.Event) error {
				calls.Add(1)
				return nil
			})
		}()
		go func() {
			defer wg.Done()
			d.DispatchAsync(context.Background(), event.NewEvent(event.TypeIdeaVoted, 1, "", nil))
		}()
	}
	wg.Wait()
	require.NoError(t, d.Close())

	assert.Len(t, d.ListHandlers(event.TypeIdeaVoted), 20)
}
