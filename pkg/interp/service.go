package interp

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"hive/interp-go/pkg/runtime"
)

type EventFlags uint32

const (
	// EventWait makes the loop sleep until queued events become due instead
	// of returning as soon as nothing is due.
	EventWait EventFlags = 1 << iota
)

type ServiceOptions struct {
	EventFlags    EventFlags
	Priority      EventPriority
	Limit         int
	NoCancel      bool
	StopOnError   bool
	ErrorOnEmpty  bool
	UserInterface bool

	// background routes failing events to the background-error handler
	// instead of the caller.
	background bool
}

// DefaultServiceOptions services every due event and stops on the first
// error.
func DefaultServiceOptions() ServiceOptions {
	return ServiceOptions{Priority: PriorityLow, StopOnError: true}
}

type ServiceReport struct {
	Serviced   int
	Errors     int
	LastResult runtime.Result
	Canceled   bool
}

// ServiceEvents drains due events from n's queue, evaluating each in n. With
// NoCancel, any cancellation left behind is reset on return.
func (n *Node) ServiceEvents(ctx context.Context, opts ServiceOptions) (ServiceReport, error) {
	var report ServiceReport
	if n.isDead() {
		return report, notFound(n.Path())
	}
	if ctx == nil {
		ctx = n.ctx
	}
	if opts.ErrorOnEmpty && n.queue.Len() == 0 {
		return report, runtime.NewError(runtime.KindNotFound, "queue empty")
	}
	if opts.NoCancel {
		defer n.cancel.ResetCancel(true)
	}
	log := n.log.WithField("service", "events")
	for {
		if opts.Limit > 0 && report.Serviced >= opts.Limit {
			return report, nil
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if n.ctx.Err() != nil {
			return report, nil
		}
		if n.cancel.Canceled() {
			report.Canceled = true
			return report, nil
		}
		ev, ok := n.queue.popDue(time.Now(), opts.Priority)
		if !ok {
			if opts.EventFlags&EventWait == 0 {
				return report, nil
			}
			if !n.waitForEvent(ctx, opts.Priority) {
				return report, nil
			}
			continue
		}

		res := n.Evaluate(ctx, ev.Script)
		report.Serviced++
		report.LastResult = res
		if opts.UserInterface && n.tree.uiHook != nil {
			n.tree.uiHook(ctx, n)
		}
		if res.IsError() {
			report.Errors++
			if opts.background {
				n.reportBackground(ctx, "event "+ev.ID.String(), res.AsError())
				if opts.StopOnError {
					return report, nil
				}
				continue
			}
			log.WithFields(logrus.Fields{"event": ev.ID.String()}).Warn(res.Trace())
			if opts.StopOnError {
				return report, res.AsError()
			}
		}
	}
}

// waitForEvent sleeps until the next eligible event is due, something is
// enqueued, or the loop must stop. It returns false when the queue holds no
// eligible events.
func (n *Node) waitForEvent(ctx context.Context, floor EventPriority) bool {
	when, ok := n.queue.nextDue(floor)
	if !ok {
		return false
	}
	wait := time.Until(when)
	if sleep := n.cancel.Limits().SleepTime; sleep > 0 && sleep < wait {
		wait = sleep
	}
	if wait <= 0 {
		return true
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-n.ctx.Done():
	case <-n.cancel.Done():
	case <-n.queue.Notify():
	case <-timer.C:
	}
	return true
}

// ServiceDedicated hands the service loop to n's dedicated worker and returns
// at once. The loop waits for scheduled events and ends when the queue is
// empty or the node is canceled.
func (n *Node) ServiceDedicated(opts ServiceOptions) error {
	w, err := n.dedicatedWorker()
	if err != nil {
		return runtime.WrapError(runtime.KindInternal, err, "failed to queue event servicing work item")
	}
	opts.EventFlags |= EventWait
	opts.ErrorOnEmpty = false
	opts.background = true
	err = w.Submit("service", func(ctx context.Context) error {
		report, err := n.ServiceEvents(ctx, opts)
		n.log.WithFields(logrus.Fields{"serviced": report.Serviced, "errors": report.Errors}).Debug("dedicated service loop finished")
		return err
	})
	if err != nil {
		return runtime.WrapError(runtime.KindInternal, err, "failed to queue event servicing work item")
	}
	return nil
}

// DefaultBackgroundError is the handler prefix every node starts with.
const DefaultBackgroundError = "bgerror"

// SetBackgroundError sets the command prefix that receives errors raised by
// work on n's dedicated worker, with the error message appended. An empty
// prefix only logs them.
func (n *Node) SetBackgroundError(prefix []string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.dead {
		return notFound(n.path)
	}
	n.bgerror = append([]string(nil), prefix...)
	return nil
}

func (n *Node) BackgroundError() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return append([]string(nil), n.bgerror...)
}

// reportBackground runs the background-error handler for err. Errors nobody
// handles are logged.
func (n *Node) reportBackground(ctx context.Context, work string, err error) {
	log := n.log.WithError(err).WithField("work", work)
	prefix := n.BackgroundError()
	if len(prefix) == 0 || n.isDead() {
		log.Warn("background work failed")
		return
	}
	if _, ok := n.LookupCommand(prefix[0]); !ok {
		log.Warn("background work failed")
		return
	}
	args := append(prefix[1:len(prefix):len(prefix)], err.Error())
	if res := n.Invoke(ctx, prefix[0], args...); res.IsError() {
		log.WithFields(logrus.Fields{
			"handler":       strings.Join(prefix, " "),
			"handler_error": res.Trace(),
		}).Error("background error handler failed")
	}
}
