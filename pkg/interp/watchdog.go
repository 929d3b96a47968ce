package interp

import (
	"time"
)

const idleWatchdogPoll = 100 * time.Millisecond

type watchdog struct {
	stop chan struct{}
	done chan struct{}
}

// StartWatchdog starts the node's watchdog goroutine. It reports false, and
// does nothing, when one is already running.
//
// While an evaluation is in progress the watchdog posts an unwinding
// cancellation once Timeout passes without activity, then re-arms. Idle
// time with no evaluation running does not count.
func (c *Cancellation) StartWatchdog() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.watchdog != nil {
		return false, nil
	}
	w := &watchdog{stop: make(chan struct{}), done: make(chan struct{})}
	c.watchdog = w
	c.activity = time.Now()
	go c.runWatchdog(w)
	c.log.Debug("watchdog started")
	return true, nil
}

// StopWatchdog stops and joins the watchdog, reporting whether one was
// running.
func (c *Cancellation) StopWatchdog() bool {
	c.mu.Lock()
	w := c.watchdog
	c.watchdog = nil
	c.mu.Unlock()
	if w == nil {
		return false
	}
	close(w.stop)
	<-w.done
	c.log.Debug("watchdog stopped")
	return true
}

func (c *Cancellation) HasWatchdog() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.watchdog != nil
}

func (c *Cancellation) runWatchdog(w *watchdog) {
	defer close(w.done)
	for {
		wait := c.watchdogTick()
		timer := time.NewTimer(wait)
		select {
		case <-w.stop:
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// watchdogTick fires the cancellation when it is due and returns how long to
// sleep before looking again. time.Since uses the monotonic clock reading
// carried by the activity timestamp.
func (c *Cancellation) watchdogTick() time.Duration {
	c.mu.Lock()
	timeout := c.limits.Timeout
	if timeout <= 0 {
		c.mu.Unlock()
		return idleWatchdogPoll
	}
	if c.depth == 0 {
		c.activity = time.Now()
		c.mu.Unlock()
		return timeout
	}
	idle := time.Since(c.activity)
	c.mu.Unlock()
	if idle < timeout {
		return timeout - idle
	}
	if err := c.Cancel(false, true, "eval unwound: watchdog timeout"); err != nil {
		c.log.WithError(err).Debug("watchdog cancellation skipped")
	} else {
		c.log.WithField("timeout", timeout).Warn("watchdog timeout")
	}
	c.Touch()
	return timeout
}
