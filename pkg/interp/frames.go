package interp

import "sync"

// FrameFlags describe why a call-tracking frame was pushed.
type FrameFlags uint32

const (
	FrameRestricted FrameFlags = 1 << iota
	FrameAlias
	FrameHidden
	FrameEvaluate
	FrameGlobal
	FrameScope
)

// Marker identifies a pushed frame so that it, and every frame left open above
// it, can be popped in one step.
type Marker uint64

// FrameTracker is the call-frame subsystem seen from the core.
type FrameTracker interface {
	Push(name string, flags FrameFlags) Marker
	PopThrough(m Marker) int
	Depth() int
}

type Frame struct {
	Name   string
	Flags  FrameFlags
	marker Marker
}

// CallStack is the default FrameTracker.
type CallStack struct {
	mu     sync.Mutex
	frames []Frame
	next   Marker
}

func NewCallStack() *CallStack {
	return &CallStack{}
}

func (s *CallStack) Push(name string, flags FrameFlags) Marker {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.frames = append(s.frames, Frame{Name: name, Flags: flags, marker: s.next})
	return s.next
}

// PopThrough removes the frame identified by m together with any scope frames
// pushed after it, returning how many frames were dropped. Unknown markers are
// ignored.
func (s *CallStack) PopThrough(m Marker) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	for idx := len(s.frames) - 1; idx >= 0; idx-- {
		if s.frames[idx].marker == m {
			popped := len(s.frames) - idx
			s.frames = s.frames[:idx]
			return popped
		}
	}
	return 0
}

func (s *CallStack) Depth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

// Frames returns a copy of the stack, innermost last.
func (s *CallStack) Frames() []Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Frame, len(s.frames))
	copy(out, s.frames)
	return out
}
