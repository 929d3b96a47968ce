package interp

import (
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"hive/interp-go/pkg/runtime"
)

// NodeID addresses a node in the tree's arena. Zero is never assigned.
type NodeID uint64

// UserInterfaceHook runs between serviced events when a service loop asks
// for user-interface processing.
type UserInterfaceHook func(ctx context.Context, n *Node)

type Option func(*Tree)

func WithEvaluator(e Evaluator) Option {
	return func(t *Tree) { t.evaluator = e }
}

func WithInitializer(i Initializer) Option {
	return func(t *Tree) { t.initializer = i }
}

func WithLogger(log *logrus.Entry) Option {
	return func(t *Tree) {
		if log != nil {
			t.log = log
		}
	}
}

func WithFrameTracker(factory func() FrameTracker) Option {
	return func(t *Tree) {
		if factory != nil {
			t.newFrames = factory
		}
	}
}

func WithVariableStore(factory func() VariableStore) Option {
	return func(t *Tree) {
		if factory != nil {
			t.newVars = factory
		}
	}
}

// WithDefaultLimits sets the limits every new node starts with.
func WithDefaultLimits(l Limits) Option {
	return func(t *Tree) { t.limits = l }
}

func WithUserInterfaceHook(hook UserInterfaceHook) Option {
	return func(t *Tree) { t.uiHook = hook }
}

// Tree is the arena of interpreter nodes. Nodes are addressed by id; parent
// and child links are ids, so a node never holds a pointer to its parent.
type Tree struct {
	mu     sync.RWMutex
	nodes  map[NodeID]*Node
	lastID NodeID
	root   *Node
	closed bool

	tokens atomic.Uint64

	evaluator   Evaluator
	initializer Initializer
	newFrames   func() FrameTracker
	newVars     func() VariableStore
	limits      Limits
	uiHook      UserInterfaceHook
	log         *logrus.Entry
}

func discardLogger() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

// NewTree builds a tree holding a single unsafe root node populated with the
// full profile.
func NewTree(opts ...Option) (*Tree, error) {
	t := &Tree{
		nodes:     make(map[NodeID]*Node),
		newFrames: func() FrameTracker { return NewCallStack() },
		newVars:   NewMemoryVariables,
		limits:    DefaultLimits(),
		log:       discardLogger(),
	}
	for _, opt := range opts {
		opt(t)
	}
	root := t.newNode(nil, "", TrustState{Namespaces: true, Profile: ProfileFull})
	if t.initializer != nil {
		if err := t.initializer.Initialize(root, ProfileFull); err != nil {
			root.release(context.Background())
			return nil, runtime.WrapError(runtime.KindInternal, err, "initialize root interpreter")
		}
	}
	t.mu.Lock()
	t.nodes[root.id] = root
	t.root = root
	t.mu.Unlock()
	return t, nil
}

func (t *Tree) Root() *Node {
	return t.root
}

// Lookup returns a live node by id.
func (t *Tree) Lookup(id NodeID) (*Node, bool) {
	t.mu.RLock()
	n, ok := t.nodes[id]
	t.mu.RUnlock()
	if !ok || n.isDead() {
		return nil, false
	}
	return n, true
}

// Len reports the number of nodes in the arena, root included.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// Resolve finds a node by absolute path.
func (t *Tree) Resolve(path string) (*Node, error) {
	return t.root.Resolve(path)
}

func (t *Tree) Exists(path string) bool {
	return t.root.Exists(path)
}

// Create adds a node under parentPath acting as the root interpreter.
func (t *Tree) Create(parentPath, name string, opts CreateOptions) (NodeID, error) {
	return t.root.Create(parentPath, name, opts)
}

// Delete removes the node at path acting as the root interpreter.
func (t *Tree) Delete(path string) error {
	return t.root.Delete(path)
}

// Close tears down every node, root and host-owned shared nodes included.
func (t *Tree) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	root := t.root
	t.mu.Unlock()

	root.markDead()
	root.teardown(context.Background())

	t.mu.RLock()
	rest := make([]*Node, 0, len(t.nodes))
	for _, n := range t.nodes {
		rest = append(rest, n)
	}
	t.mu.RUnlock()
	for _, n := range rest {
		n.markDead()
		n.teardown(context.Background())
	}
	return nil
}

func (t *Tree) newNode(parent *Node, name string, trust TrustState) *Node {
	t.mu.Lock()
	t.lastID++
	id := t.lastID
	t.mu.Unlock()

	var (
		parentID NodeID
		path     = name
	)
	if parent != nil {
		parentID = parent.id
		path = JoinPath(parent.Path(), name)
	}
	// Subtree cancellation is driven by teardown, so a node handed over to
	// the host keeps running after its parent goes away.
	ctx, stop := context.WithCancel(context.Background())
	n := &Node{
		id:       id,
		name:     name,
		path:     path,
		home:     parentID,
		parent:   parentID,
		tree:     t,
		trust:    trust,
		children: make(map[string]link),
		commands: newCommandTable(),
		aliases:  make(map[string]*Alias),
		objects:  make(map[string]*Object),
		bgerror:  []string{DefaultBackgroundError},
		frames:   t.newFrames(),
		vars:     t.newVars(),
		ctx:      ctx,
		stop:     stop,
	}
	n.log = t.log.WithFields(logrus.Fields{"node": id, "path": path})
	n.cancel = NewCancellation(t.limits, n.log)
	n.queue = NewScriptQueue(id)
	return n
}

func (t *Tree) attach(n *Node) {
	t.mu.Lock()
	t.nodes[n.id] = n
	t.mu.Unlock()
}

func (t *Tree) forget(id NodeID) {
	t.mu.Lock()
	delete(t.nodes, id)
	t.mu.Unlock()
}

func (t *Tree) nextToken() uint64 {
	return t.tokens.Add(1)
}

// JoinPath appends rel to the absolute path base.
func JoinPath(base, rel string) string {
	switch {
	case base == "":
		return rel
	case rel == "":
		return base
	default:
		return base + "." + rel
	}
}

// SplitPath separates the parent path from the last name of path.
func SplitPath(path string) (parent, name string) {
	idx := strings.LastIndexByte(path, '.')
	if idx < 0 {
		return "", path
	}
	return path[:idx], path[idx+1:]
}

func validName(name string) bool {
	return name != "" && !strings.Contains(name, ".")
}

// DefaultLimits are the limits a node starts with unless the tree is given
// others.
func DefaultLimits() Limits {
	return Limits{
		RecursionLimit: 1000,
		SleepTime:      20 * time.Millisecond,
	}
}
