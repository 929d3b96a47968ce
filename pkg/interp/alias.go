package interp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"hive/interp-go/pkg/runtime"
)

// Alias redirects a command of one node to a command of another (or the same)
// node. TargetPath is absolute and resolved on every call.
type Alias struct {
	Source     string
	TargetPath string
	TargetName string
	BoundArgs  []string
	Cross      bool

	seq uint64
}

func (a *Alias) clone() *Alias {
	c := *a
	c.BoundArgs = append([]string(nil), a.BoundArgs...)
	return &c
}

// String renders the target command line without the call arguments.
func (a *Alias) String() string {
	return strings.Join(append([]string{a.TargetName}, a.BoundArgs...), " ")
}

func wrongAliasArgs() error {
	return runtime.NewError(runtime.KindInvalidArgument, `wrong # args: should be "interp alias srcPath srcCmd ?targetPath targetCmd? ?arg ...?"`)
}

// Alias implements the three-way alias operation, with n as the caller. The
// meaning is chosen purely by the shape of rest:
//
//	no rest                    query, returns the definition
//	[""]                       delete
//	[targetPath, ""]           delete
//	[targetPath, name, args…]  create
//
// Any other shape is rejected. Delete returns a nil alias.
func (n *Node) Alias(srcPath, srcName string, rest ...string) (*Alias, error) {
	switch {
	case len(rest) == 0:
		return n.QueryAlias(srcPath, srcName)
	case len(rest) == 1 && rest[0] == "":
		return nil, n.DeleteAlias(srcPath, srcName)
	case len(rest) == 2 && rest[1] == "":
		if _, err := n.Resolve(rest[0]); err != nil {
			return nil, noSuchTarget(rest[0])
		}
		return nil, n.DeleteAlias(srcPath, srcName)
	case len(rest) >= 2:
		return n.DefineAlias(srcPath, srcName, rest[0], rest[1], rest[2:]...)
	default:
		return nil, wrongAliasArgs()
	}
}

func (n *Node) QueryAlias(srcPath, srcName string) (*Alias, error) {
	src, err := n.Resolve(srcPath)
	if err != nil {
		return nil, err
	}
	src.mu.RLock()
	defer src.mu.RUnlock()
	a, ok := src.aliases[srcName]
	if !ok {
		return nil, aliasNotFound(srcName)
	}
	return a.clone(), nil
}

func noSuchTarget(path string) error {
	return runtime.NewError(runtime.KindNoSuchInterpreter, "target interpreter %q is not my descendant", path)
}

func aliasNotFound(name string) error {
	return runtime.NewError(runtime.KindNotFound, "alias %q not found", name)
}

// DefineAlias creates alias srcName in the node at srcPath forwarding to
// targetName in the node at targetPath. Both paths are relative to n.
func (n *Node) DefineAlias(srcPath, srcName, targetPath, targetName string, bound ...string) (*Alias, error) {
	if err := n.requireUnsafe("create aliases"); err != nil {
		return nil, err
	}
	if srcName == "" || targetName == "" {
		return nil, runtime.NewError(runtime.KindInvalidArgument, "invalid alias %q -> %q", srcName, targetName)
	}
	src, err := n.Resolve(srcPath)
	if err != nil {
		return nil, err
	}
	target, err := n.Resolve(targetPath)
	if err != nil {
		return nil, noSuchTarget(targetPath)
	}

	a := &Alias{
		Source:     srcName,
		TargetPath: target.Path(),
		TargetName: targetName,
		BoundArgs:  append([]string(nil), bound...),
		Cross:      target != src,
	}

	src.mu.Lock()
	defer src.mu.Unlock()
	if src.trust.ReadOnly {
		return nil, readOnly(srcPath)
	}
	if _, ok := src.aliases[srcName]; ok {
		return nil, runtime.NewError(runtime.KindAlreadyExists, "alias %q already exists", srcName)
	}
	if _, ok := src.commands.hidden[srcName]; ok {
		return nil, runtime.NewError(runtime.KindAlreadyExists, "command %q is hidden", srcName)
	}
	// One table holds executables, procedures and plain commands alike, so
	// there is at most one conflicting definition to remove.
	if existing, ok := src.commands.visible[srcName]; ok {
		if err := src.removeVisibleLocked(srcName, existing); err != nil {
			return nil, runtime.WrapError(runtime.KindInternal, err, "could not replace %s %q", existing.Kind, srcName)
		}
	}
	a.seq = src.nextSeq()
	src.commands.visible[srcName] = &Command{
		Name:  srcName,
		Kind:  CommandAlias,
		Flags: CommandSafe | CommandStandard,
		Type:  "alias",
		Fn:    a.dispatch,
		seq:   a.seq,
		alias: a,
	}
	src.aliases[srcName] = a
	src.log.WithFields(logrus.Fields{"alias": srcName, "target": a.TargetPath}).Debug("alias created")
	return a.clone(), nil
}

// DeleteAlias removes alias srcName and its shim from the node at srcPath.
func (n *Node) DeleteAlias(srcPath, srcName string) error {
	if err := n.requireUnsafe("delete aliases"); err != nil {
		return err
	}
	src, err := n.Resolve(srcPath)
	if err != nil {
		return err
	}
	src.mu.Lock()
	defer src.mu.Unlock()
	if src.trust.ReadOnly {
		return readOnly(srcPath)
	}
	a, ok := src.aliases[srcName]
	if !ok {
		return aliasNotFound(srcName)
	}
	delete(src.aliases, srcName)
	for _, table := range []map[string]*Command{src.commands.visible, src.commands.hidden} {
		for name, cmd := range table {
			if cmd.alias == a {
				delete(table, name)
			}
		}
	}
	return nil
}

// Aliases lists the alias names of the node at path in definition order.
func (n *Node) Aliases(path string) ([]string, error) {
	src, err := n.Resolve(path)
	if err != nil {
		return nil, err
	}
	src.mu.RLock()
	all := make([]*Alias, 0, len(src.aliases))
	for _, a := range src.aliases {
		all = append(all, a)
	}
	src.mu.RUnlock()
	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })
	out := make([]string, len(all))
	for i, a := range all {
		out[i] = a.Source
	}
	return out, nil
}

// AliasTarget returns the absolute target path of alias srcName.
func (n *Node) AliasTarget(srcPath, srcName string) (string, error) {
	a, err := n.QueryAlias(srcPath, srcName)
	if err != nil {
		return "", err
	}
	return a.TargetPath, nil
}

func (a *Alias) dispatch(call *Call) runtime.Result {
	src := call.Node
	target, err := src.tree.Resolve(a.TargetPath)
	if err != nil {
		return runtime.Fail(runtime.NewError(runtime.KindNoSuchInterpreter, "target interpreter %q for alias %q no longer exists", a.TargetPath, a.Source))
	}
	if limit := src.cancel.Limits().RecursionLimit; limit > 0 && src.frames.Depth() >= limit {
		return runtime.Failf("too many nested evaluations (infinite loop?)")
	}
	marker := src.frames.Push("alias "+a.Source, FrameRestricted|FrameAlias)
	defer src.frames.PopThrough(marker)

	args := make([]string, 0, len(a.BoundArgs)+len(call.Args))
	args = append(args, a.BoundArgs...)
	args = append(args, call.Args...)
	res := target.Invoke(call.Ctx, a.TargetName, args...)
	if res.IsError() {
		line := strings.Join(append([]string{a.TargetName}, args...), " ")
		res = res.Annotate(fmt.Sprintf("(in alias %q eval %q)", a.Source, line))
	}
	return res
}
