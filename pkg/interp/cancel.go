package interp

import (
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"hive/interp-go/pkg/runtime"
)

type CancelState int

const (
	CancelIdle CancelState = iota
	CancelPending
	CancelConsumed
)

func (s CancelState) String() string {
	switch s {
	case CancelPending:
		return "pending"
	case CancelConsumed:
		return "consumed"
	default:
		return "idle"
	}
}

type CancelReason struct {
	Message string
	Unwind  bool
	Forced  bool
	At      time.Time
}

// Limits are stored here and surfaced to the evaluator; only Timeout and
// SleepTime are acted on by the core itself.
type Limits struct {
	Timeout        time.Duration
	FinallyTimeout time.Duration
	ReadyLimit     int
	RecursionLimit int
	SleepTime      time.Duration
	// ResultLimit caps the length of an evaluation result; 0 is unlimited.
	ResultLimit int
}

// ErrCanceled matches every error returned by Checkpoint.
var ErrCanceled = errors.New("eval canceled")

type CanceledError struct {
	Reason CancelReason
}

func (e *CanceledError) Error() string {
	if e.Reason.Message != "" {
		return e.Reason.Message
	}
	if e.Reason.Unwind {
		return "eval unwound"
	}
	return "eval canceled"
}

func (e *CanceledError) Is(target error) bool {
	return target == ErrCanceled
}

// Cancellation is the per-node cooperative cancellation controller. Nothing
// is ever interrupted: the evaluator polls Checkpoint between steps.
type Cancellation struct {
	mu       sync.Mutex
	state    CancelState
	reason   CancelReason
	done     chan struct{}
	closed   bool
	depth    int
	activity time.Time
	limits   Limits
	watchdog *watchdog
	log      *logrus.Entry
}

func NewCancellation(limits Limits, log *logrus.Entry) *Cancellation {
	if log == nil {
		log = discardLogger()
	}
	return &Cancellation{
		done:     make(chan struct{}),
		activity: time.Now(),
		limits:   limits,
		log:      log,
	}
}

// Cancel posts a cancellation. A pending one is only replaced when force is
// set.
func (c *Cancellation) Cancel(force, unwind bool, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == CancelPending && !force {
		return runtime.NewError(runtime.KindAlreadyPending, "cancellation already pending")
	}
	c.state = CancelPending
	c.reason = CancelReason{Message: message, Unwind: unwind, Forced: force, At: time.Now()}
	if !c.closed {
		close(c.done)
		c.closed = true
	}
	c.log.WithFields(logrus.Fields{"unwind": unwind, "force": force}).Debug("cancellation posted")
	return nil
}

// ResetCancel clears a pending or consumed cancellation and reports whether
// anything was cleared. While an evaluation is running on the node the state
// is left alone unless ignorePending is set; an unwinding evaluation may
// therefore finish before a reset gets through.
func (c *Cancellation) ResetCancel(ignorePending bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == CancelIdle {
		return false
	}
	if c.depth > 0 && !ignorePending {
		return false
	}
	c.clearLocked()
	return true
}

func (c *Cancellation) clearLocked() {
	c.state = CancelIdle
	c.reason = CancelReason{}
	if c.closed {
		c.done = make(chan struct{})
		c.closed = false
	}
}

// Checkpoint is polled by the evaluator between dispatch steps. It consumes a
// pending cancellation and returns a *CanceledError. An unwinding
// cancellation keeps failing every checkpoint until it is reset.
func (c *Cancellation) Checkpoint() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case CancelPending:
		c.state = CancelConsumed
		return &CanceledError{Reason: c.reason}
	case CancelConsumed:
		if c.reason.Unwind {
			return &CanceledError{Reason: c.reason}
		}
	}
	return nil
}

func (c *Cancellation) BeginEvaluation() {
	c.mu.Lock()
	if c.depth == 0 {
		c.activity = time.Now()
	}
	c.depth++
	c.mu.Unlock()
}

// EndEvaluation leaves an evaluation level. Returning to depth zero clears a
// consumed cancellation that was not unwinding.
func (c *Cancellation) EndEvaluation() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.depth > 0 {
		c.depth--
	}
	if c.depth == 0 && c.state == CancelConsumed && !c.reason.Unwind {
		c.clearLocked()
	}
}

// Touch records activity, restarting the watchdog countdown.
func (c *Cancellation) Touch() {
	c.mu.Lock()
	c.activity = time.Now()
	c.mu.Unlock()
}

func (c *Cancellation) Depth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.depth
}

func (c *Cancellation) State() CancelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pending reports whether a cancellation is posted and not yet consumed.
func (c *Cancellation) Pending() bool {
	return c.State() == CancelPending
}

// Canceled reports whether a new evaluation would be stopped right away.
func (c *Cancellation) Canceled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == CancelPending || (c.state == CancelConsumed && c.reason.Unwind)
}

func (c *Cancellation) Reason() (CancelReason, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == CancelIdle {
		return CancelReason{}, runtime.NewError(runtime.KindNotPending, "no cancellation pending")
	}
	return c.reason, nil
}

// Done is closed when a cancellation is posted. A reset installs a fresh
// channel, so callers must fetch it again after one.
func (c *Cancellation) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done
}

func (c *Cancellation) Limits() Limits {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.limits
}

func (c *Cancellation) SetLimits(l Limits) error {
	if l.Timeout < 0 || l.FinallyTimeout < 0 || l.ReadyLimit < 0 || l.RecursionLimit < 0 || l.SleepTime < 0 || l.ResultLimit < 0 {
		return runtime.NewError(runtime.KindInvalidArgument, "limits must not be negative")
	}
	c.mu.Lock()
	c.limits = l
	c.mu.Unlock()
	return nil
}

func (c *Cancellation) update(name string, negative bool, fn func(*Limits)) error {
	if negative {
		return runtime.NewError(runtime.KindInvalidArgument, "bad %s: must not be negative", name)
	}
	c.mu.Lock()
	fn(&c.limits)
	c.mu.Unlock()
	return nil
}

func (c *Cancellation) SetTimeout(d time.Duration) error {
	return c.update("timeout", d < 0, func(l *Limits) { l.Timeout = d })
}

func (c *Cancellation) SetFinallyTimeout(d time.Duration) error {
	return c.update("finally timeout", d < 0, func(l *Limits) { l.FinallyTimeout = d })
}

func (c *Cancellation) SetReadyLimit(v int) error {
	return c.update("ready limit", v < 0, func(l *Limits) { l.ReadyLimit = v })
}

func (c *Cancellation) SetRecursionLimit(v int) error {
	return c.update("recursion limit", v < 0, func(l *Limits) { l.RecursionLimit = v })
}

func (c *Cancellation) SetResultLimit(v int) error {
	return c.update("result limit", v < 0, func(l *Limits) { l.ResultLimit = v })
}

func (c *Cancellation) SetSleepTime(d time.Duration) error {
	return c.update("sleep time", d < 0, func(l *Limits) { l.SleepTime = d })
}
