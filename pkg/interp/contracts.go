package interp

import (
	"context"
	"sort"
	"sync"

	"hive/interp-go/pkg/runtime"
)

// Evaluator runs script text inside a node. Implementations must call
// n.Cancellation().Checkpoint() between dispatch steps and stop with an Error
// result once it reports a cancellation.
type Evaluator interface {
	Evaluate(ctx context.Context, n *Node, script string) runtime.Result
}

type EvaluatorFunc func(ctx context.Context, n *Node, script string) runtime.Result

func (f EvaluatorFunc) Evaluate(ctx context.Context, n *Node, script string) runtime.Result {
	return f(ctx, n, script)
}

// Profile selects how a fresh node's command table is populated.
type Profile int

const (
	ProfileFull Profile = iota
	ProfileSafe
	ProfileNone
)

func (p Profile) String() string {
	switch p {
	case ProfileFull:
		return "full"
	case ProfileSafe:
		return "safe"
	default:
		return "none"
	}
}

// Initializer populates a new node before it becomes reachable.
type Initializer interface {
	Initialize(n *Node, profile Profile) error
}

type InitializerFunc func(n *Node, profile Profile) error

func (f InitializerFunc) Initialize(n *Node, profile Profile) error {
	return f(n, profile)
}

// VariableStore is the per-node variable service. Variable semantics belong to
// the evaluator; the core only creates one store per node and drops it on
// teardown.
type VariableStore interface {
	Get(name string) (string, bool)
	Set(name, value string)
	Unset(name string) bool
	Names() []string
}

type memoryVariables struct {
	mu   sync.RWMutex
	vars map[string]string
}

// NewMemoryVariables is the default VariableStore.
func NewMemoryVariables() VariableStore {
	return &memoryVariables{vars: make(map[string]string)}
}

func (m *memoryVariables) Get(name string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vars[name]
	return v, ok
}

func (m *memoryVariables) Set(name, value string) {
	m.mu.Lock()
	m.vars[name] = value
	m.mu.Unlock()
}

func (m *memoryVariables) Unset(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vars[name]; !ok {
		return false
	}
	delete(m.vars, name)
	return true
}

func (m *memoryVariables) Names() []string {
	m.mu.RLock()
	names := make([]string, 0, len(m.vars))
	for name := range m.vars {
		names = append(names, name)
	}
	m.mu.RUnlock()
	sort.Strings(names)
	return names
}
