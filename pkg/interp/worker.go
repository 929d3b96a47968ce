package interp

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// WorkItem is a unit of work run on a node's dedicated worker.
type WorkItem func(ctx context.Context) error

var ErrWorkerClosed = errors.New("worker closed")

type workItem struct {
	name string
	fn   WorkItem
}

// Worker executes work items one at a time on a single goroutine. Items run
// with the worker's context, which is canceled by Close.
type Worker struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []workItem
	closed bool
	active bool

	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	onError func(name string, err error)
}

// NewWorker starts a worker whose context derives from parent. onError, when
// set, receives every error a work item returns (panics included).
func NewWorker(parent context.Context, onError func(name string, err error)) *Worker {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	w := &Worker{
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		onError: onError,
	}
	w.cond = sync.NewCond(&w.mu)
	go w.loop()
	return w
}

func (w *Worker) Submit(name string, fn WorkItem) error {
	if fn == nil {
		return fmt.Errorf("worker: nil work item %q", name)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWorkerClosed
	}
	w.queue = append(w.queue, workItem{name: name, fn: fn})
	w.cond.Signal()
	return nil
}

func (w *Worker) loop() {
	defer close(w.done)
	for {
		item, ok := w.nextItem()
		if !ok {
			return
		}
		if err := w.safeInvoke(item); err != nil && w.onError != nil {
			w.onError(item.name, err)
		}
		w.mu.Lock()
		w.active = false
		w.cond.Broadcast()
		w.mu.Unlock()
	}
}

func (w *Worker) nextItem() (workItem, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for len(w.queue) == 0 && !w.closed {
		w.cond.Wait()
	}
	if w.closed && len(w.queue) == 0 {
		return workItem{}, false
	}
	item := w.queue[0]
	w.queue = w.queue[1:]
	w.active = true
	return item, true
}

func (w *Worker) safeInvoke(item workItem) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return item.fn(context.WithValue(w.ctx, workerKey{}, w))
}

type workerKey struct{}

// runs reports whether ctx was handed to a work item by w, that is whether
// the caller is on w's goroutine.
func (w *Worker) runs(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	current, _ := ctx.Value(workerKey{}).(*Worker)
	return current == w
}

// Flush blocks until the queue is empty and no item is running.
func (w *Worker) Flush() {
	w.mu.Lock()
	for (len(w.queue) > 0 || w.active) && !w.closed {
		w.cond.Wait()
	}
	w.mu.Unlock()
}

func (w *Worker) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := len(w.queue)
	if w.active {
		n++
	}
	return n
}

// Close stops accepting work and cancels the worker context. Items already
// queued still run, with a canceled context.
func (w *Worker) Close() {
	w.mu.Lock()
	w.closed = true
	w.cond.Broadcast()
	w.mu.Unlock()
	w.cancel()
}

// Wait blocks until the worker goroutine has exited. Only meaningful after
// Close.
func (w *Worker) Wait() {
	<-w.done
}

// Done is closed once the worker goroutine has exited.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}
