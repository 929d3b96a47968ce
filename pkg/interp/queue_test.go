package interp

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hive/interp-go/pkg/runtime"
)

func TestQueueOrdersByTimeThenInsertion(t *testing.T) {
	q := NewScriptQueue(7)
	at := time.Now().Add(time.Hour)

	_, err := q.Enqueue(at.Add(time.Second), "third")
	require.NoError(t, err)
	_, err = q.Enqueue(at, "first")
	require.NoError(t, err)
	_, err = q.Enqueue(at, "second")
	require.NoError(t, err)

	events := q.Events()
	require.Len(t, events, 3)
	assert.Equal(t, "first", events[0].Script)
	assert.Equal(t, "second", events[1].Script)
	assert.Equal(t, "third", events[2].Script)
	for _, ev := range events {
		assert.Equal(t, NodeID(7), ev.Owner)
		assert.Equal(t, time.UTC, ev.When.Location())
		assert.NotEqual(t, uuid.Nil, ev.ID)
	}
}

func TestQueueRemoveAndPriorityFloor(t *testing.T) {
	q := NewScriptQueue(1)
	low, err := q.EnqueueEvent(QueuedScriptEvent{Script: "low", Priority: PriorityLow})
	require.NoError(t, err)
	_, err = q.EnqueueEvent(QueuedScriptEvent{Script: "high", Priority: PriorityHigh})
	require.NoError(t, err)

	ev, ok := q.popDue(time.Now().Add(time.Second), PriorityNormal)
	require.True(t, ok)
	assert.Equal(t, "high", ev.Script)
	_, ok = q.popDue(time.Now().Add(time.Second), PriorityNormal)
	assert.False(t, ok)
	assert.Equal(t, 1, q.Len())

	assert.True(t, q.Remove(low))
	assert.False(t, q.Remove(low))
	assert.Equal(t, 0, q.Len())
}

func TestServiceSkipsEventsNotYetDue(t *testing.T) {
	tree := newTestTree(t)
	root := tree.Root()
	ctx := context.Background()

	_, err := root.Queue().Enqueue(time.Now().Add(100*time.Millisecond), "set x 1")
	require.NoError(t, err)

	report, err := root.ServiceEvents(ctx, DefaultServiceOptions())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Serviced)
	_, ok := root.Variables().Get("x")
	assert.False(t, ok)

	time.Sleep(150 * time.Millisecond)
	report, err = root.ServiceEvents(ctx, DefaultServiceOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Serviced)
	v, ok := root.Variables().Get("x")
	require.True(t, ok)
	assert.Equal(t, "1", v)
	assert.Equal(t, 0, root.Queue().Len())
}

func TestServiceLimitAndErrors(t *testing.T) {
	tree := newTestTree(t)
	root := tree.Root()
	ctx := context.Background()
	for _, script := range []string{"set a 1", "fail once", "set b 2", "set c 3"} {
		_, err := root.Queue().Enqueue(time.Time{}, script)
		require.NoError(t, err)
	}

	opts := DefaultServiceOptions()
	opts.Limit = 1
	report, err := root.ServiceEvents(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Serviced)

	opts.Limit = 0
	report, err = root.ServiceEvents(ctx, opts)
	require.Error(t, err)
	assert.EqualError(t, err, "boom once")
	assert.Equal(t, 1, report.Serviced)
	assert.Equal(t, 1, report.Errors)
	assert.Equal(t, 2, root.Queue().Len())

	opts.StopOnError = false
	_, err = root.Queue().Enqueue(time.Time{}, "fail again")
	require.NoError(t, err)
	report, err = root.ServiceEvents(ctx, opts)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Serviced)
	assert.Equal(t, 1, report.Errors)
	assert.Equal(t, runtime.Error, report.LastResult.Code)
}

func TestServiceErrorOnEmpty(t *testing.T) {
	tree := newTestTree(t)
	opts := DefaultServiceOptions()
	opts.ErrorOnEmpty = true
	_, err := tree.Root().ServiceEvents(context.Background(), opts)
	assert.EqualError(t, err, "queue empty")

	opts.ErrorOnEmpty = false
	report, err := tree.Root().ServiceEvents(context.Background(), opts)
	require.NoError(t, err)
	assert.Zero(t, report.Serviced)
}

func TestServiceStopsOnCancellation(t *testing.T) {
	tree := newTestTree(t)
	root := tree.Root()
	_, err := root.Queue().Enqueue(time.Time{}, "set x 1")
	require.NoError(t, err)
	require.NoError(t, root.Cancellation().Cancel(false, true, ""))

	report, err := root.ServiceEvents(context.Background(), DefaultServiceOptions())
	require.NoError(t, err)
	assert.True(t, report.Canceled)
	assert.Zero(t, report.Serviced)
	assert.True(t, root.Cancellation().Pending())

	opts := DefaultServiceOptions()
	opts.NoCancel = true
	_, err = root.ServiceEvents(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, CancelIdle, root.Cancellation().State())

	report, err = root.ServiceEvents(context.Background(), DefaultServiceOptions())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Serviced)
}

func TestServiceWaitsForScheduledEvents(t *testing.T) {
	tree := newTestTree(t)
	root := tree.Root()
	_, err := root.Queue().Enqueue(time.Now().Add(40*time.Millisecond), "set x 1")
	require.NoError(t, err)

	opts := DefaultServiceOptions()
	opts.EventFlags = EventWait
	begin := time.Now()
	report, err := root.ServiceEvents(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Serviced)
	assert.GreaterOrEqual(t, time.Since(begin), 40*time.Millisecond)
}

func TestServiceUserInterfaceHook(t *testing.T) {
	calls := 0
	tree := newTestTree(t, WithUserInterfaceHook(func(context.Context, *Node) { calls++ }))
	root := tree.Root()
	for i := 0; i < 2; i++ {
		_, err := root.Queue().Enqueue(time.Time{}, "echo")
		require.NoError(t, err)
	}
	opts := DefaultServiceOptions()
	opts.UserInterface = true
	_, err := root.ServiceEvents(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}
