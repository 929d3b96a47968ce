package interp

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"hive/interp-go/pkg/runtime"
)

// lineEvaluator runs one command per line or ";" segment, words split on
// whitespace, polling cancellation before each command.
var lineEvaluator = EvaluatorFunc(func(ctx context.Context, n *Node, script string) runtime.Result {
	res := runtime.OK("")
	for _, line := range strings.FieldsFunc(script, func(r rune) bool { return r == '\n' || r == ';' }) {
		words := strings.Fields(line)
		if len(words) == 0 {
			continue
		}
		if err := n.Cancellation().Checkpoint(); err != nil {
			return runtime.Fail(err)
		}
		res = n.Invoke(ctx, words[0], words[1:]...)
		if res.Code != runtime.Ok {
			return res
		}
	}
	return res
})

type spinState struct {
	started  atomic.Bool
	finished atomic.Bool
}

// testCommands installs a small command set: set, echo and fail are safe,
// file is standard only, exit is neither.
func testCommands(spin *spinState) Initializer {
	return InitializerFunc(func(n *Node, profile Profile) error {
		defs := []CommandSpec{
			{Name: "set", Flags: CommandSafe | CommandStandard, Fn: func(c *Call) runtime.Result {
				if len(c.Args) == 1 {
					v, ok := c.Node.Variables().Get(c.Args[0])
					if !ok {
						return runtime.Failf("can't read %q: no such variable", c.Args[0])
					}
					return runtime.OK(v)
				}
				if len(c.Args) != 2 {
					return runtime.Failf("wrong # args")
				}
				c.Node.Variables().Set(c.Args[0], c.Args[1])
				return runtime.OK(c.Args[1])
			}},
			{Name: "echo", Flags: CommandSafe | CommandStandard, Fn: func(c *Call) runtime.Result {
				return runtime.OK(strings.Join(c.Args, " "))
			}},
			{Name: "fail", Flags: CommandSafe | CommandStandard, Fn: func(c *Call) runtime.Result {
				return runtime.Failf("boom %s", strings.Join(c.Args, " "))
			}},
			{Name: "file", Flags: CommandStandard, Fn: func(c *Call) runtime.Result {
				return runtime.OK("file")
			}},
			{Name: "exit", Fn: func(c *Call) runtime.Result {
				return runtime.OK("exit")
			}},
			{Name: "spin", Flags: CommandSafe | CommandStandard, Fn: func(c *Call) runtime.Result {
				if spin != nil {
					spin.started.Store(true)
					defer spin.finished.Store(true)
				}
				for {
					if err := c.Node.Cancellation().Checkpoint(); err != nil {
						return runtime.Fail(err)
					}
					select {
					case <-c.Ctx.Done():
						return runtime.Fail(c.Ctx.Err())
					case <-time.After(time.Millisecond):
					}
				}
			}},
		}
		if profile == ProfileNone {
			return nil
		}
		for _, def := range defs {
			if _, err := n.DefineCommand(def); err != nil {
				return err
			}
		}
		return nil
	})
}

func newTestTree(t *testing.T, opts ...Option) *Tree {
	t.Helper()
	base := []Option{WithEvaluator(lineEvaluator), WithInitializer(testCommands(nil))}
	tree, err := NewTree(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tree.Close() })
	return tree
}

func mustCreate(t *testing.T, caller *Node, path string, opts CreateOptions) *Node {
	t.Helper()
	parent, name := SplitPath(path)
	_, err := caller.Create(parent, name, opts)
	require.NoError(t, err)
	n, err := caller.Resolve(path)
	require.NoError(t, err)
	return n
}

// recorder captures the arguments a command received.
type recorder struct {
	mu    sync.Mutex
	calls [][]string
	nodes []*Node
}

func (r *recorder) command(c *Call) runtime.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, append([]string(nil), c.Args...))
	r.nodes = append(r.nodes, c.Node)
	return runtime.OK(strings.Join(c.Args, " "))
}

func (r *recorder) last() ([]string, *Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return nil, nil
	}
	return r.calls[len(r.calls)-1], r.nodes[len(r.nodes)-1]
}

type closer struct {
	closed atomic.Int32
}

func (c *closer) Close() error {
	c.closed.Add(1)
	return nil
}
