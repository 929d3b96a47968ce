package interp

import (
	"sort"
	"sync"
	"time"

	pq "github.com/emirpasic/gods/queues/priorityqueue"
	"github.com/google/uuid"
)

type EventPriority int

const (
	PriorityLow    EventPriority = -1
	PriorityNormal EventPriority = 0
	PriorityHigh   EventPriority = 1
)

func (p EventPriority) String() string {
	switch {
	case p < PriorityNormal:
		return "low"
	case p > PriorityNormal:
		return "high"
	default:
		return "normal"
	}
}

// QueuedScriptEvent is a script scheduled to run in its owner node at When.
type QueuedScriptEvent struct {
	ID       uuid.UUID
	When     time.Time
	Script   string
	Owner    NodeID
	Priority EventPriority

	seq uint64
}

// byWhen orders events by scheduled instant, then by insertion.
func byWhen(a, b interface{}) int {
	x, y := a.(*QueuedScriptEvent), b.(*QueuedScriptEvent)
	switch {
	case x.When.Before(y.When):
		return -1
	case y.When.Before(x.When):
		return 1
	case x.seq < y.seq:
		return -1
	case x.seq > y.seq:
		return 1
	default:
		return 0
	}
}

// ScriptQueue is a node's schedule of pending scripts.
type ScriptQueue struct {
	mu     sync.Mutex
	events *pq.Queue
	seq    uint64
	owner  NodeID
	notify chan struct{}
}

func NewScriptQueue(owner NodeID) *ScriptQueue {
	return &ScriptQueue{
		events: pq.NewWith(byWhen),
		owner:  owner,
		notify: make(chan struct{}, 1),
	}
}

// Enqueue schedules script at when, converted to UTC. A zero when means now.
func (q *ScriptQueue) Enqueue(when time.Time, script string) (uuid.UUID, error) {
	return q.EnqueueEvent(QueuedScriptEvent{When: when, Script: script})
}

func (q *ScriptQueue) EnqueueEvent(ev QueuedScriptEvent) (uuid.UUID, error) {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.When.IsZero() {
		ev.When = time.Now()
	}
	ev.When = ev.When.UTC()
	ev.Owner = q.owner

	q.mu.Lock()
	q.seq++
	ev.seq = q.seq
	q.events.Enqueue(&ev)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return ev.ID, nil
}

func (q *ScriptQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.events.Size()
}

// Events returns a snapshot of the queue in service order.
func (q *ScriptQueue) Events() []QueuedScriptEvent {
	q.mu.Lock()
	values := q.events.Values()
	q.mu.Unlock()
	sort.Slice(values, func(i, j int) bool { return byWhen(values[i], values[j]) < 0 })
	out := make([]QueuedScriptEvent, len(values))
	for i, v := range values {
		out[i] = *v.(*QueuedScriptEvent)
	}
	return out
}

// Remove drops the event with the given id, reporting whether it was queued.
func (q *ScriptQueue) Remove(id uuid.UUID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	values := q.events.Values()
	found := false
	q.events.Clear()
	for _, v := range values {
		if ev := v.(*QueuedScriptEvent); ev.ID == id {
			found = true
			continue
		}
		q.events.Enqueue(v)
	}
	return found
}

func (q *ScriptQueue) Clear() {
	q.mu.Lock()
	q.events.Clear()
	q.mu.Unlock()
}

// popDue removes the earliest event due at now whose priority is at least
// floor. Due events of lower priority stay queued.
func (q *ScriptQueue) popDue(now time.Time, floor EventPriority) (QueuedScriptEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var skipped []interface{}
	defer func() {
		for _, v := range skipped {
			q.events.Enqueue(v)
		}
	}()
	for {
		v, ok := q.events.Peek()
		if !ok {
			return QueuedScriptEvent{}, false
		}
		ev := v.(*QueuedScriptEvent)
		if ev.When.After(now) {
			return QueuedScriptEvent{}, false
		}
		q.events.Dequeue()
		if ev.Priority < floor {
			skipped = append(skipped, v)
			continue
		}
		return *ev, true
	}
}

// nextDue reports the earliest scheduled instant among events of priority at
// least floor.
func (q *ScriptQueue) nextDue(floor EventPriority) (time.Time, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var (
		earliest time.Time
		found    bool
	)
	for _, v := range q.events.Values() {
		ev := v.(*QueuedScriptEvent)
		if ev.Priority < floor {
			continue
		}
		if !found || ev.When.Before(earliest) {
			earliest, found = ev.When, true
		}
	}
	return earliest, found
}

// Notify receives a value whenever an event is enqueued.
func (q *ScriptQueue) Notify() <-chan struct{} {
	return q.notify
}
