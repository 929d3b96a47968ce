package interp

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"hive/interp-go/pkg/runtime"
)

type PolicyFlags uint32

const (
	// PolicyInvoke policies gate hidden-command invocation.
	PolicyInvoke PolicyFlags = 1 << iota
	// PolicyEvaluate policies gate script evaluation in the target.
	PolicyEvaluate
)

type PolicyDecision int

const (
	PolicyUndecided PolicyDecision = iota
	PolicyDenied
	PolicyApproved
)

func (d PolicyDecision) String() string {
	switch d {
	case PolicyDenied:
		return "denied"
	case PolicyApproved:
		return "approved"
	default:
		return "undecided"
	}
}

// PolicyContext describes the operation a guard is deciding on.
type PolicyContext struct {
	Policy  *Policy
	Caller  *Node
	Target  *Node
	Command *Command
	Name    string
	Args    []string
	Script  string
}

type policyContextKey struct{}

// PolicyContextFrom returns the policy context of a running guard script.
func PolicyContextFrom(ctx context.Context) (*PolicyContext, bool) {
	if ctx == nil {
		return nil, false
	}
	pc, ok := ctx.Value(policyContextKey{}).(*PolicyContext)
	return pc, ok
}

// GuardFunc is a host-supplied policy predicate.
type GuardFunc func(ctx context.Context, pc *PolicyContext) (PolicyDecision, error)

// PolicySpec is the input to AddPolicy. Exactly one of Script or Guard is
// normally set; a policy with neither approves nothing and denies nothing.
type PolicySpec struct {
	Flags  PolicyFlags
	Type   string
	Token  uint64
	Script string
	Guard  GuardFunc
	Plugin string
}

// Policy is an installed guard. Owner is the node whose authority the guard
// runs with.
type Policy struct {
	Name   string
	Flags  PolicyFlags
	Type   string
	Token  uint64
	Script string
	Guard  GuardFunc
	Plugin string
	Owner  NodeID
}

func (p *Policy) matchesCommand(cmd *Command) bool {
	if p.Flags&PolicyInvoke == 0 {
		return false
	}
	if p.Type != "" && (p.Type == "*" || p.Type == cmd.Type) {
		return true
	}
	return p.Token != 0 && p.Token == cmd.Token
}

func (p *Policy) matchesEvaluate() bool {
	return p.Flags&PolicyEvaluate != 0 && (p.Type == "*" || p.Type == "eval")
}

// AddPolicy installs a policy on the node at path, owned by n.
func (n *Node) AddPolicy(path string, spec PolicySpec) (string, error) {
	if err := n.requireUnsafe("add policy"); err != nil {
		return "", err
	}
	if spec.Type == "" && spec.Token == 0 {
		return "", runtime.NewError(runtime.KindInvalidArgument, "-type or -token required")
	}
	target, err := n.Resolve(path)
	if err != nil {
		return "", err
	}
	if spec.Flags == 0 {
		spec.Flags = PolicyInvoke
	}
	target.mu.Lock()
	defer target.mu.Unlock()
	target.policySeq++
	p := &Policy{
		Name:   "policy" + strconv.Itoa(target.policySeq),
		Flags:  spec.Flags,
		Type:   spec.Type,
		Token:  spec.Token,
		Script: spec.Script,
		Guard:  spec.Guard,
		Plugin: spec.Plugin,
		Owner:  n.id,
	}
	target.policies = append(target.policies, p)
	target.log.WithFields(logrus.Fields{"policy": p.Name, "type": p.Type}).Debug("policy added")
	return p.Name, nil
}

// RemovePolicy removes policy name from the node at path.
func (n *Node) RemovePolicy(path, name string) error {
	if err := n.requireUnsafe("remove policy"); err != nil {
		return err
	}
	target, err := n.Resolve(path)
	if err != nil {
		return err
	}
	target.mu.Lock()
	defer target.mu.Unlock()
	for idx, p := range target.policies {
		if p.Name == name {
			target.policies = append(target.policies[:idx], target.policies[idx+1:]...)
			return nil
		}
	}
	return runtime.NewError(runtime.KindNotFound, "policy %q not found", name)
}

// Policies lists the policy names of the node at path in installation order.
func (n *Node) Policies(path string) ([]string, error) {
	target, err := n.Resolve(path)
	if err != nil {
		return nil, err
	}
	target.mu.RLock()
	defer target.mu.RUnlock()
	out := make([]string, len(target.policies))
	for i, p := range target.policies {
		out[i] = p.Name
	}
	return out, nil
}

func (n *Node) policySnapshot(match func(*Policy) bool) []*Policy {
	n.mu.RLock()
	defer n.mu.RUnlock()
	var out []*Policy
	for _, p := range n.policies {
		if match(p) {
			out = append(out, p)
		}
	}
	return out
}

// checkPolicies runs the guards in order. The first denial wins; guards whose
// owner is gone are skipped.
func (t *Tree) checkPolicies(ctx context.Context, policies []*Policy, pc PolicyContext) error {
	for _, p := range policies {
		owner, ok := t.Lookup(p.Owner)
		if !ok {
			continue
		}
		local := pc
		local.Policy = p
		decision := owner.runGuard(ctx, &local)
		owner.log.WithFields(logrus.Fields{"policy": p.Name, "decision": decision.String(), "command": pc.Name}).Debug("policy checked")
		if decision == PolicyDenied {
			return runtime.NewError(runtime.KindPermissionDenied, "permission denied: %s denied %q", p.Name, pc.Name)
		}
	}
	return nil
}

// runGuard evaluates a policy in the owner node's authority.
func (n *Node) runGuard(ctx context.Context, pc *PolicyContext) PolicyDecision {
	p := pc.Policy
	if p.Guard != nil {
		decision, err := p.Guard(ctx, pc)
		if err != nil {
			n.log.WithError(err).WithField("policy", p.Name).Warn("policy guard failed")
			return PolicyDenied
		}
		return decision
	}
	if p.Script == "" {
		return PolicyUndecided
	}
	res := n.Evaluate(context.WithValue(ctx, policyContextKey{}, pc), p.Script)
	if res.IsError() {
		n.log.WithField("policy", p.Name).Warn(res.Trace())
		return PolicyDenied
	}
	return decisionOf(res.Value)
}

func decisionOf(value string) PolicyDecision {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on", "approved", "allow":
		return PolicyApproved
	case "0", "false", "no", "off", "denied", "deny":
		return PolicyDenied
	default:
		return PolicyUndecided
	}
}

type InvokeOptions struct {
	// Global runs the hidden command in a global frame.
	Global bool
}

// InvokeHidden runs hidden command name in the node at path after consulting
// the node's invoke policies.
func (n *Node) InvokeHidden(ctx context.Context, path, name string, args []string, opts InvokeOptions) runtime.Result {
	if err := n.requireUnsafe("invoke hidden commands"); err != nil {
		return runtime.Fail(err)
	}
	target, err := n.Resolve(path)
	if err != nil {
		return runtime.Fail(err)
	}
	cmd, ok := target.LookupHidden(name)
	if !ok {
		return runtime.Fail(runtime.NewError(runtime.KindNotFound, "invalid hidden command name %q", name))
	}
	policies := target.policySnapshot(func(p *Policy) bool { return p.matchesCommand(cmd) })
	pc := PolicyContext{Caller: n, Target: target, Command: cmd, Name: name, Args: append([]string(nil), args...)}
	if err := n.tree.checkPolicies(ctx, policies, pc); err != nil {
		return runtime.Fail(err)
	}
	flags := FrameHidden
	if opts.Global {
		flags |= FrameGlobal
	}
	marker := target.frames.Push("invokehidden "+name, flags)
	defer target.frames.PopThrough(marker)
	return cmd.Fn(&Call{Ctx: ctx, Node: target, Name: name, Args: args, Hidden: true})
}

// Eval evaluates script in the node at path. Evaluating in another node
// consults that node's evaluate policies first.
func (n *Node) Eval(ctx context.Context, path, script string) runtime.Result {
	target, err := n.Resolve(path)
	if err != nil {
		return runtime.Fail(err)
	}
	if target != n {
		policies := target.policySnapshot((*Policy).matchesEvaluate)
		pc := PolicyContext{Caller: n, Target: target, Name: "eval", Script: script}
		if err := n.tree.checkPolicies(ctx, policies, pc); err != nil {
			return runtime.Fail(err)
		}
	}
	marker := target.frames.Push("eval", FrameEvaluate)
	defer target.frames.PopThrough(marker)
	res := target.Evaluate(ctx, script)
	if res.IsError() && target != n {
		res = res.Annotate(fmt.Sprintf("(in interp eval %q)", path))
	}
	return res
}
