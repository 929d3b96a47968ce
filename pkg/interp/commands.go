package interp

import (
	"context"
	"sort"

	"hive/interp-go/pkg/runtime"
)

type CommandKind int

const (
	CommandPlain CommandKind = iota
	CommandProcedure
	CommandExecute
	CommandAlias
)

func (k CommandKind) String() string {
	switch k {
	case CommandProcedure:
		return "procedure"
	case CommandExecute:
		return "execute"
	case CommandAlias:
		return "alias"
	default:
		return "command"
	}
}

type CommandFlags uint32

const (
	// CommandSafe commands stay visible in safe interpreters.
	CommandSafe CommandFlags = 1 << iota
	// CommandStandard commands stay visible in standard interpreters.
	CommandStandard
	CommandNoRemove
)

type hideReason uint8

const (
	hiddenBySafe hideReason = 1 << iota
	hiddenByStandard
)

// Call is handed to a command implementation. Node is the interpreter the
// command runs in.
type Call struct {
	Ctx    context.Context
	Node   *Node
	Name   string
	Args   []string
	Hidden bool
}

type CommandFunc func(call *Call) runtime.Result

// CommandSpec describes a command to define. Type defaults to Name and is the
// tag policies match on.
type CommandSpec struct {
	Name  string
	Kind  CommandKind
	Flags CommandFlags
	Type  string
	Token uint64
	Fn    CommandFunc
}

// Command is an installed definition. Its pointer is its identity: hiding and
// exposing move the same *Command between tables.
type Command struct {
	Name  string
	Kind  CommandKind
	Flags CommandFlags
	Type  string
	Token uint64
	Fn    CommandFunc

	seq        uint64
	autoHidden hideReason
	alias      *Alias
}

func (c *Command) Seq() uint64 { return c.seq }

type commandTable struct {
	visible map[string]*Command
	hidden  map[string]*Command
}

func newCommandTable() commandTable {
	return commandTable{
		visible: make(map[string]*Command),
		hidden:  make(map[string]*Command),
	}
}

func invalidCommand(name string) error {
	return runtime.NewError(runtime.KindNotFound, "invalid command name %q", name)
}

func readOnly(path string) error {
	return runtime.NewError(runtime.KindPermissionDenied, "permission denied: interpreter %q is read-only", path)
}

// DefineCommand installs a visible command, replacing a removable visible
// definition of the same name.
func (n *Node) DefineCommand(spec CommandSpec) (*Command, error) {
	if spec.Name == "" {
		return nil, runtime.NewError(runtime.KindInvalidArgument, "invalid command name %q", spec.Name)
	}
	if spec.Fn == nil {
		return nil, runtime.NewError(runtime.KindInvalidArgument, "command %q has no implementation", spec.Name)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.dead {
		return nil, notFound(n.path)
	}
	if n.trust.ReadOnly {
		return nil, readOnly(n.path)
	}
	if _, ok := n.commands.hidden[spec.Name]; ok {
		return nil, runtime.NewError(runtime.KindAlreadyExists, "command %q is hidden", spec.Name)
	}
	if existing, ok := n.commands.visible[spec.Name]; ok {
		if err := n.removeVisibleLocked(spec.Name, existing); err != nil {
			return nil, err
		}
	}
	cmd := &Command{
		Name:  spec.Name,
		Kind:  spec.Kind,
		Flags: spec.Flags,
		Type:  spec.Type,
		Token: spec.Token,
		Fn:    spec.Fn,
		seq:   n.nextSeq(),
	}
	if cmd.Type == "" {
		cmd.Type = spec.Name
	}
	n.commands.visible[spec.Name] = cmd
	return cmd, nil
}

func (n *Node) removeVisibleLocked(name string, cmd *Command) error {
	if cmd.Flags&CommandNoRemove != 0 {
		return runtime.NewError(runtime.KindPermissionDenied, "cannot remove command %q", name)
	}
	delete(n.commands.visible, name)
	if cmd.alias != nil {
		delete(n.aliases, cmd.alias.Source)
	}
	return nil
}

// RemoveCommand deletes a visible command. Removing an alias shim removes the
// alias as well.
func (n *Node) RemoveCommand(name string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.trust.ReadOnly {
		return readOnly(n.path)
	}
	cmd, ok := n.commands.visible[name]
	if !ok {
		return invalidCommand(name)
	}
	return n.removeVisibleLocked(name, cmd)
}

func (n *Node) LookupCommand(name string) (*Command, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	cmd, ok := n.commands.visible[name]
	return cmd, ok
}

func (n *Node) LookupHidden(name string) (*Command, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	cmd, ok := n.commands.hidden[name]
	return cmd, ok
}

// Commands lists visible command names in definition order.
func (n *Node) Commands() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return listNames(n.commands.visible, func(*Command) bool { return true })
}

// Invoke runs the visible command name in n.
func (n *Node) Invoke(ctx context.Context, name string, args ...string) runtime.Result {
	cmd, ok := n.LookupCommand(name)
	if !ok {
		return runtime.Fail(invalidCommand(name))
	}
	return cmd.Fn(&Call{Ctx: ctx, Node: n, Name: name, Args: args})
}

// Hide moves command name of the node at path to its hidden table under
// hiddenName, or under name when hiddenName is empty.
func (n *Node) Hide(path, name, hiddenName string) error {
	if err := n.requireUnsafe("hide commands"); err != nil {
		return err
	}
	target, err := n.Resolve(path)
	if err != nil {
		return err
	}
	if hiddenName == "" {
		hiddenName = name
	}
	target.mu.Lock()
	defer target.mu.Unlock()
	if target.trust.ReadOnly {
		return readOnly(path)
	}
	cmd, ok := target.commands.visible[name]
	if !ok {
		return invalidCommand(name)
	}
	if _, taken := target.commands.hidden[hiddenName]; taken {
		return runtime.NewError(runtime.KindAlreadyExists, "hidden command %q already exists", hiddenName)
	}
	if _, taken := target.commands.visible[hiddenName]; taken && hiddenName != name {
		return runtime.NewError(runtime.KindAlreadyExists, "command %q already exists", hiddenName)
	}
	delete(target.commands.visible, name)
	target.commands.hidden[hiddenName] = cmd
	return nil
}

// Expose moves hidden command name of the node at path back to its visible
// table under exposedName, or under name when exposedName is empty.
func (n *Node) Expose(path, name, exposedName string) error {
	if err := n.requireUnsafe("expose commands"); err != nil {
		return err
	}
	target, err := n.Resolve(path)
	if err != nil {
		return err
	}
	if exposedName == "" {
		exposedName = name
	}
	target.mu.Lock()
	defer target.mu.Unlock()
	if target.trust.ReadOnly {
		return readOnly(path)
	}
	cmd, ok := target.commands.hidden[name]
	if !ok {
		return runtime.NewError(runtime.KindNotFound, "unknown hidden command %q", name)
	}
	if _, taken := target.commands.visible[exposedName]; taken {
		return runtime.NewError(runtime.KindAlreadyExists, "exposed command %q already exists", exposedName)
	}
	if _, taken := target.commands.hidden[exposedName]; taken && exposedName != name {
		return runtime.NewError(runtime.KindAlreadyExists, "command %q is hidden", exposedName)
	}
	delete(target.commands.hidden, name)
	cmd.autoHidden = 0
	target.commands.visible[exposedName] = cmd
	return nil
}

// Hidden lists the hidden commands of the node at path: plain commands
// first, then procedures, each in definition order.
func (n *Node) Hidden(path string) ([]string, error) {
	target, err := n.Resolve(path)
	if err != nil {
		return nil, err
	}
	target.mu.RLock()
	defer target.mu.RUnlock()
	isProc := func(cmd *Command) bool { return cmd.Kind == CommandProcedure }
	out := listNames(target.commands.hidden, func(cmd *Command) bool { return !isProc(cmd) })
	return append(out, listNames(target.commands.hidden, isProc)...), nil
}

// listNames returns the names of the commands accepted by keep, ordered by
// definition sequence.
func listNames(table map[string]*Command, keep func(*Command) bool) []string {
	type entry struct {
		name string
		seq  uint64
	}
	entries := make([]entry, 0, len(table))
	for name, cmd := range table {
		if !keep(cmd) {
			continue
		}
		entries = append(entries, entry{name: name, seq: cmd.seq})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.name
	}
	return out
}

// hideUnflagged hides every visible command lacking flag, recording why so
// the move can be undone. Caller holds n.mu.
func (n *Node) hideUnflagged(flag CommandFlags, reason hideReason) {
	for name, cmd := range n.commands.visible {
		if cmd.Flags&flag != 0 {
			continue
		}
		if _, taken := n.commands.hidden[name]; taken {
			continue
		}
		delete(n.commands.visible, name)
		cmd.autoHidden |= reason
		n.commands.hidden[name] = cmd
	}
	for _, cmd := range n.commands.hidden {
		if cmd.autoHidden != 0 && cmd.Flags&flag == 0 {
			cmd.autoHidden |= reason
		}
	}
}

// restoreHidden exposes commands that are hidden only because of reason.
// Caller holds n.mu.
func (n *Node) restoreHidden(reason hideReason) {
	for name, cmd := range n.commands.hidden {
		if cmd.autoHidden&reason == 0 {
			continue
		}
		cmd.autoHidden &^= reason
		if cmd.autoHidden != 0 {
			continue
		}
		if _, taken := n.commands.visible[name]; taken {
			continue
		}
		delete(n.commands.hidden, name)
		n.commands.visible[name] = cmd
	}
}
