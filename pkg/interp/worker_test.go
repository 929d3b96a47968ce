package interp

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hive/interp-go/pkg/runtime"
)

func TestWorkerRunsItemsInOrder(t *testing.T) {
	w := NewWorker(context.Background(), nil)
	defer func() {
		w.Close()
		w.Wait()
	}()

	var (
		mu    sync.Mutex
		order []int
	)
	for i := 0; i < 5; i++ {
		i := i
		require.NoError(t, w.Submit("item", func(context.Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		}))
	}
	w.Flush()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
	assert.Zero(t, w.Pending())
}

func TestWorkerRecoversPanics(t *testing.T) {
	var (
		mu    sync.Mutex
		errs  []error
		names []string
	)
	w := NewWorker(context.Background(), func(name string, err error) {
		mu.Lock()
		defer mu.Unlock()
		names = append(names, name)
		errs = append(errs, err)
	})
	require.NoError(t, w.Submit("explode", func(context.Context) error { panic("kaboom") }))
	require.NoError(t, w.Submit("fail", func(context.Context) error { return errors.New("plain") }))
	w.Flush()
	w.Close()
	w.Wait()

	require.Len(t, errs, 2)
	assert.Equal(t, []string{"explode", "fail"}, names)
	assert.EqualError(t, errs[0], "panic: kaboom")
	assert.EqualError(t, errs[1], "plain")
}

func TestWorkerCloseCancelsRunningItem(t *testing.T) {
	w := NewWorker(context.Background(), nil)
	running := make(chan struct{})
	require.NoError(t, w.Submit("block", func(ctx context.Context) error {
		close(running)
		<-ctx.Done()
		return ctx.Err()
	}))
	<-running
	w.Close()

	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
	assert.ErrorIs(t, w.Submit("late", func(context.Context) error { return nil }), ErrWorkerClosed)
}

func TestServiceDedicatedRunsInBackground(t *testing.T) {
	tree := newTestTree(t)
	root := tree.Root()
	a := mustCreate(t, root, "a", CreateOptions{})
	_, err := a.Queue().Enqueue(time.Now().Add(20*time.Millisecond), "set x 1")
	require.NoError(t, err)

	require.NoError(t, a.ServiceDedicated(DefaultServiceOptions()))
	assert.True(t, a.HasWorker())
	require.Eventually(t, func() bool {
		v, ok := a.Variables().Get("x")
		return ok && v == "1"
	}, time.Second, 5*time.Millisecond)
}

func TestWaitWorkerBlocksUntilQueueDrained(t *testing.T) {
	tree := newTestTree(t)
	root := tree.Root()
	a := mustCreate(t, root, "a", CreateOptions{})
	a.WaitWorker()

	_, err := a.Queue().Enqueue(time.Now().Add(30*time.Millisecond), "set y 2")
	require.NoError(t, err)
	require.NoError(t, a.ServiceDedicated(DefaultServiceOptions()))
	a.WaitWorker()

	v, ok := a.Variables().Get("y")
	assert.True(t, ok)
	assert.Equal(t, "2", v)
	assert.Zero(t, a.Queue().Len())
}

func TestDeleteJoinsDedicatedWorker(t *testing.T) {
	spin := &spinState{}
	tree := newTestTree(t, WithInitializer(testCommands(spin)))
	root := tree.Root()
	a := mustCreate(t, root, "a", CreateOptions{})
	_, err := a.Queue().Enqueue(time.Time{}, "spin")
	require.NoError(t, err)

	require.NoError(t, a.ServiceDedicated(DefaultServiceOptions()))
	require.Eventually(t, spin.started.Load, time.Second, time.Millisecond)
	assert.False(t, spin.finished.Load())

	require.NoError(t, root.Delete("a"))
	assert.True(t, spin.finished.Load())
	assert.False(t, a.HasWorker())
	assert.ErrorIs(t, a.Context().Err(), context.Canceled)
	assert.Error(t, a.ServiceDedicated(DefaultServiceOptions()))
}

func TestDeleteFromOwnWorkerDoesNotJoinItself(t *testing.T) {
	tree := newTestTree(t)
	root := tree.Root()
	a := mustCreate(t, root, "a", CreateOptions{})
	_, err := root.DefineCommand(CommandSpec{Name: "drop", Flags: CommandSafe | CommandStandard, Fn: func(c *Call) runtime.Result {
		if err := c.Node.DeleteContext(c.Ctx, c.Args[0]); err != nil {
			return runtime.Fail(err)
		}
		return runtime.OK("")
	}})
	require.NoError(t, err)
	_, err = root.DefineAlias("a", "quit", "", "drop", "a")
	require.NoError(t, err)
	conn := &closer{}
	_, err = a.AddObject("conn", conn)
	require.NoError(t, err)

	_, err = a.Queue().Enqueue(time.Time{}, "quit")
	require.NoError(t, err)
	require.NoError(t, a.ServiceDedicated(DefaultServiceOptions()))

	require.Eventually(t, func() bool { return !tree.Exists("a") }, time.Second, time.Millisecond)
	_, ok := tree.Lookup(a.ID())
	assert.False(t, ok)
	require.Eventually(t, func() bool { return conn.closed.Load() == 1 }, time.Second, time.Millisecond)
	assert.False(t, a.HasWorker())
	assert.ErrorIs(t, a.Context().Err(), context.Canceled)
}

func TestDedicatedErrorsReachBackgroundHandler(t *testing.T) {
	tree := newTestTree(t)
	root := tree.Root()
	a := mustCreate(t, root, "a", CreateOptions{})
	assert.Equal(t, []string{DefaultBackgroundError}, a.BackgroundError())

	rec := &recorder{}
	_, err := a.DefineCommand(CommandSpec{Name: "record", Fn: rec.command})
	require.NoError(t, err)
	require.NoError(t, a.SetBackgroundError([]string{"record", "bg"}))

	_, err = a.Queue().Enqueue(time.Time{}, "fail x")
	require.NoError(t, err)
	require.NoError(t, a.ServiceDedicated(DefaultServiceOptions()))
	a.WaitWorker()
	args, node := rec.last()
	assert.Equal(t, []string{"bg", "boom x"}, args)
	assert.Same(t, a, node)

	w, err := a.dedicatedWorker()
	require.NoError(t, err)
	require.NoError(t, w.Submit("explode", func(context.Context) error { panic("kaboom") }))
	a.WaitWorker()
	args, _ = rec.last()
	assert.Equal(t, []string{"bg", "panic: kaboom"}, args)

	// without a handler command the error is only logged
	require.NoError(t, a.SetBackgroundError(nil))
	_, err = a.Queue().Enqueue(time.Time{}, "fail y")
	require.NoError(t, err)
	require.NoError(t, a.ServiceDedicated(DefaultServiceOptions()))
	a.WaitWorker()
	args, _ = rec.last()
	assert.Equal(t, []string{"bg", "panic: kaboom"}, args)
	assert.Zero(t, a.Queue().Len())
}
