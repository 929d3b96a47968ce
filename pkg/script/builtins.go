package script

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"hive/interp-go/pkg/interp"
	"hive/interp-go/pkg/runtime"
)

// Host is what the builtins need from the embedding program.
type Host struct {
	Stdout io.Writer
	// FS backs the file and source commands. Paths are resolved inside it.
	FS   billy.Filesystem
	Exit func(code int)
}

type builtin struct {
	name     string
	kind     interp.CommandKind
	flags    interp.CommandFlags
	fullOnly bool
	fn       func(h *Host, call *interp.Call) runtime.Result
}

const everywhere = interp.CommandSafe | interp.CommandStandard

var builtins = []builtin{
	{name: "set", flags: everywhere, fn: cmdSet},
	{name: "unset", flags: everywhere, fn: cmdUnset},
	{name: "incr", flags: everywhere, fn: cmdIncr},
	{name: "list", flags: everywhere, fn: cmdList},
	{name: "llength", flags: everywhere, fn: cmdLlength},
	{name: "lindex", flags: everywhere, fn: cmdLindex},
	{name: "puts", flags: everywhere, fn: cmdPuts},
	{name: "eval", flags: everywhere, fn: cmdEval},
	{name: "catch", flags: everywhere, fn: cmdCatch},
	{name: "error", flags: everywhere, fn: cmdError},
	{name: "break", flags: everywhere, fn: cmdBreak},
	{name: "continue", flags: everywhere, fn: cmdContinue},
	{name: "repeat", flags: everywhere, fn: cmdRepeat},
	{name: "if", flags: everywhere, fn: cmdIf},
	{name: "string", flags: everywhere, fn: cmdString},
	{name: "proc", flags: everywhere, fn: cmdProc},
	{name: "info", flags: everywhere, fn: cmdInfo},
	{name: "after", flags: everywhere, fn: cmdAfter},
	{name: "spin", flags: everywhere, fn: cmdSpin},
	{name: "policyinfo", flags: everywhere, fn: cmdPolicyInfo},
	{name: "file", flags: interp.CommandStandard, fn: cmdFile},
	{name: "source", flags: interp.CommandStandard, fn: cmdSource},
	{name: "exit", fullOnly: true, fn: cmdExit},
}

// Initializer populates new interpreters with the builtins, then runs extra.
// The safe profile leaves out host-level commands entirely; everything else
// is installed and left to the tree's trust hiding.
func Initializer(host Host, extra ...interp.Initializer) interp.Initializer {
	h := &host
	if h.Stdout == nil {
		h.Stdout = os.Stdout
	}
	return interp.InitializerFunc(func(n *interp.Node, profile interp.Profile) error {
		if profile == interp.ProfileNone {
			return nil
		}
		for _, b := range builtins {
			if b.fullOnly && profile != interp.ProfileFull {
				continue
			}
			fn := b.fn
			_, err := n.DefineCommand(interp.CommandSpec{
				Name:  b.name,
				Kind:  b.kind,
				Flags: b.flags,
				Fn:    func(call *interp.Call) runtime.Result { return fn(h, call) },
			})
			if err != nil {
				return err
			}
		}
		for _, x := range extra {
			if err := x.Initialize(n, profile); err != nil {
				return err
			}
		}
		return nil
	})
}

func wrongArgs(usage string) runtime.Result {
	return runtime.Fail(runtime.NewError(runtime.KindInvalidArgument, "wrong # args: should be %q", usage))
}

func noSuchVariable(name string) runtime.Result {
	return runtime.Fail(runtime.NewError(runtime.KindNotFound, "can't read %q: no such variable", name))
}

func cmdSet(_ *Host, call *interp.Call) runtime.Result {
	vars := call.Node.Variables()
	switch len(call.Args) {
	case 1:
		v, ok := vars.Get(call.Args[0])
		if !ok {
			return noSuchVariable(call.Args[0])
		}
		return runtime.OK(v)
	case 2:
		vars.Set(call.Args[0], call.Args[1])
		return runtime.OK(call.Args[1])
	default:
		return wrongArgs("set varName ?newValue?")
	}
}

func cmdUnset(_ *Host, call *interp.Call) runtime.Result {
	args := call.Args
	strict := true
	if len(args) > 0 && args[0] == "-nocomplain" {
		strict = false
		args = args[1:]
	}
	for _, name := range args {
		if !call.Node.Variables().Unset(name) && strict {
			return runtime.Fail(runtime.NewError(runtime.KindNotFound, "can't unset %q: no such variable", name))
		}
	}
	return runtime.OK("")
}

func cmdIncr(_ *Host, call *interp.Call) runtime.Result {
	if len(call.Args) < 1 || len(call.Args) > 2 {
		return wrongArgs("incr varName ?increment?")
	}
	by := 1
	if len(call.Args) == 2 {
		v, err := strconv.Atoi(call.Args[1])
		if err != nil {
			return runtime.Failf("expected integer but got %q", call.Args[1])
		}
		by = v
	}
	vars := call.Node.Variables()
	cur := 0
	if s, ok := vars.Get(call.Args[0]); ok {
		v, err := strconv.Atoi(s)
		if err != nil {
			return runtime.Failf("expected integer but got %q", s)
		}
		cur = v
	}
	out := strconv.Itoa(cur + by)
	vars.Set(call.Args[0], out)
	return runtime.OK(out)
}

func cmdList(_ *Host, call *interp.Call) runtime.Result {
	return runtime.OK(FormatList(call.Args))
}

func cmdLlength(_ *Host, call *interp.Call) runtime.Result {
	if len(call.Args) != 1 {
		return wrongArgs("llength list")
	}
	items, err := SplitList(call.Args[0])
	if err != nil {
		return runtime.Fail(err)
	}
	return runtime.OK(strconv.Itoa(len(items)))
}

func cmdLindex(_ *Host, call *interp.Call) runtime.Result {
	if len(call.Args) != 2 {
		return wrongArgs("lindex list index")
	}
	items, err := SplitList(call.Args[0])
	if err != nil {
		return runtime.Fail(err)
	}
	i, err := strconv.Atoi(call.Args[1])
	if err != nil {
		return runtime.Failf("bad index %q", call.Args[1])
	}
	if i < 0 || i >= len(items) {
		return runtime.OK("")
	}
	return runtime.OK(items[i])
}

func cmdPuts(h *Host, call *interp.Call) runtime.Result {
	args := call.Args
	newline := true
	if len(args) == 2 && args[0] == "-nonewline" {
		newline = false
		args = args[1:]
	}
	if len(args) != 1 {
		return wrongArgs("puts ?-nonewline? string")
	}
	text := args[0]
	if newline {
		text += "\n"
	}
	if _, err := io.WriteString(h.Stdout, text); err != nil {
		return runtime.Fail(err)
	}
	return runtime.OK("")
}

func cmdEval(_ *Host, call *interp.Call) runtime.Result {
	if len(call.Args) == 0 {
		return wrongArgs("eval arg ?arg ...?")
	}
	return call.Node.Evaluate(call.Ctx, strings.Join(call.Args, " "))
}

// catch reports the completion code of its script. An unwinding
// cancellation cannot be caught.
func cmdCatch(_ *Host, call *interp.Call) runtime.Result {
	if len(call.Args) < 1 || len(call.Args) > 2 {
		return wrongArgs("catch script ?varName?")
	}
	r := call.Node.Evaluate(call.Ctx, call.Args[0])
	if r.Code == runtime.Error && errors.Is(r.Err, interp.ErrCanceled) {
		var ce *interp.CanceledError
		if errors.As(r.Err, &ce) && ce.Reason.Unwind {
			return r
		}
	}
	if len(call.Args) == 2 {
		call.Node.Variables().Set(call.Args[1], r.Value)
	}
	return runtime.OK(strconv.Itoa(int(r.Code)))
}

func cmdError(_ *Host, call *interp.Call) runtime.Result {
	if len(call.Args) != 1 {
		return wrongArgs("error message")
	}
	return runtime.Fail(errors.New(call.Args[0]))
}

func cmdBreak(_ *Host, call *interp.Call) runtime.Result {
	if len(call.Args) != 0 {
		return wrongArgs("break")
	}
	return runtime.Result{Code: runtime.Break}
}

func cmdContinue(_ *Host, call *interp.Call) runtime.Result {
	if len(call.Args) != 0 {
		return wrongArgs("continue")
	}
	return runtime.Result{Code: runtime.Continue}
}

// repeat runs body count times; a negative count loops until break, an error
// or a cancellation.
func cmdRepeat(_ *Host, call *interp.Call) runtime.Result {
	if len(call.Args) != 2 {
		return wrongArgs("repeat count body")
	}
	count, err := strconv.Atoi(call.Args[0])
	if err != nil {
		return runtime.Failf("expected integer but got %q", call.Args[0])
	}
	for i := 0; count < 0 || i < count; i++ {
		r := call.Node.Evaluate(call.Ctx, call.Args[1])
		switch r.Code {
		case runtime.Ok, runtime.Continue:
		case runtime.Break:
			return runtime.OK("")
		default:
			return r
		}
	}
	return runtime.OK("")
}

// if evaluates conditions with substitution only: a condition is true when
// it reads as a true boolean or a non-zero integer.
func cmdIf(_ *Host, call *interp.Call) runtime.Result {
	args := call.Args
	const usage = "if cond body ?elseif cond body ...? ?else body?"
	for {
		if len(args) < 2 {
			return wrongArgs(usage)
		}
		cond, r := Substitute(call.Ctx, call.Node, args[0])
		if r.Code != runtime.Ok {
			return r
		}
		ok, err := truthy(cond)
		if err != nil {
			return runtime.Fail(err)
		}
		if ok {
			return call.Node.Evaluate(call.Ctx, args[1])
		}
		args = args[2:]
		switch {
		case len(args) == 0:
			return runtime.OK("")
		case args[0] == "elseif":
			args = args[1:]
		case args[0] == "else" && len(args) == 2:
			return call.Node.Evaluate(call.Ctx, args[1])
		default:
			return wrongArgs(usage)
		}
	}
}

func truthy(s string) (bool, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.Atoi(s); err == nil {
		return v != 0, nil
	}
	switch strings.ToLower(s) {
	case "true", "yes", "on":
		return true, nil
	case "false", "no", "off":
		return false, nil
	}
	return false, fmt.Errorf("expected boolean value but got %q", s)
}

func cmdString(_ *Host, call *interp.Call) runtime.Result {
	if len(call.Args) < 2 {
		return wrongArgs("string subcommand arg ?arg ...?")
	}
	sub, rest := call.Args[0], call.Args[1:]
	switch sub {
	case "equal":
		if len(rest) != 2 {
			return wrongArgs("string equal string1 string2")
		}
		return runtime.OK(boolString(rest[0] == rest[1]))
	case "length":
		if len(rest) != 1 {
			return wrongArgs("string length string")
		}
		return runtime.OK(strconv.Itoa(len(rest[0])))
	case "prefix":
		if len(rest) != 2 {
			return wrongArgs("string prefix prefix string")
		}
		return runtime.OK(boolString(strings.HasPrefix(rest[1], rest[0])))
	default:
		return runtime.Failf("unknown or ambiguous subcommand %q: must be equal, length, or prefix", sub)
	}
}

func cmdProc(_ *Host, call *interp.Call) runtime.Result {
	if len(call.Args) != 3 {
		return wrongArgs("proc name args body")
	}
	name, body := call.Args[0], call.Args[2]
	params, err := SplitList(call.Args[1])
	if err != nil {
		return runtime.Fail(err)
	}
	variadic := len(params) > 0 && params[len(params)-1] == "args"
	usage := strings.TrimSpace(name + " " + strings.Join(params, " "))

	fn := func(pc *interp.Call) runtime.Result {
		fixed := params
		if variadic {
			fixed = params[:len(params)-1]
		}
		if len(pc.Args) < len(fixed) || (!variadic && len(pc.Args) > len(fixed)) {
			return wrongArgs(usage)
		}
		vars := pc.Node.Variables()
		for i, p := range fixed {
			vars.Set(p, pc.Args[i])
		}
		if variadic {
			vars.Set("args", FormatList(pc.Args[len(fixed):]))
		}
		r := pc.Node.Evaluate(pc.Ctx, body)
		if r.Code == runtime.Break || r.Code == runtime.Continue {
			return runtime.Failf("invoked %q outside of a loop", r.Code.String())
		}
		if r.Code == runtime.Error {
			return r.Annotate(fmt.Sprintf("(procedure %q line 1)", name))
		}
		return r
	}
	_, err = call.Node.DefineCommand(interp.CommandSpec{
		Name:  name,
		Kind:  interp.CommandProcedure,
		Flags: everywhere,
		Type:  "proc",
		Fn:    fn,
	})
	if err != nil {
		return runtime.Fail(err)
	}
	return runtime.OK("")
}

func cmdInfo(_ *Host, call *interp.Call) runtime.Result {
	if len(call.Args) == 0 {
		return wrongArgs("info subcommand ?arg ...?")
	}
	n := call.Node
	switch sub, rest := call.Args[0], call.Args[1:]; sub {
	case "commands":
		return runtime.OK(FormatList(n.Commands()))
	case "exists":
		if len(rest) != 1 {
			return wrongArgs("info exists varName")
		}
		_, ok := n.Variables().Get(rest[0])
		return runtime.OK(boolString(ok))
	case "vars":
		return runtime.OK(FormatList(n.Variables().Names()))
	case "depth":
		return runtime.OK(strconv.Itoa(n.Cancellation().Depth()))
	case "path":
		return runtime.OK(n.Path())
	case "safe":
		return runtime.OK(boolString(n.IsSafe()))
	default:
		return runtime.Failf("unknown or ambiguous subcommand %q: must be commands, depth, exists, path, safe, or vars", sub)
	}
}

func boolString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// after either sleeps, waking early on cancellation, or schedules a script
// on the interpreter's event queue.
func cmdAfter(_ *Host, call *interp.Call) runtime.Result {
	if len(call.Args) == 0 {
		return wrongArgs("after ms ?script ...?")
	}
	n := call.Node
	switch call.Args[0] {
	case "info":
		events := n.Queue().Events()
		ids := make([]string, len(events))
		for i, ev := range events {
			ids[i] = ev.ID.String()
		}
		return runtime.OK(FormatList(ids))
	case "cancel":
		if len(call.Args) != 2 {
			return wrongArgs("after cancel id")
		}
		for _, ev := range n.Queue().Events() {
			if ev.ID.String() == call.Args[1] {
				n.Queue().Remove(ev.ID)
			}
		}
		return runtime.OK("")
	}

	ms, err := strconv.Atoi(call.Args[0])
	if err != nil || ms < 0 {
		return runtime.Failf("bad argument %q: must be a non-negative integer, cancel, or info", call.Args[0])
	}
	d := time.Duration(ms) * time.Millisecond
	if len(call.Args) > 1 {
		id, err := n.Queue().Enqueue(time.Now().Add(d), strings.Join(call.Args[1:], " "))
		if err != nil {
			return runtime.Fail(err)
		}
		return runtime.OK(id.String())
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-n.Cancellation().Done():
	case <-call.Ctx.Done():
		return runtime.Fail(call.Ctx.Err())
	}
	if err := n.Cancellation().Checkpoint(); err != nil {
		return runtime.Fail(err)
	}
	return runtime.OK("")
}

// spin busy-waits, polling for cancellation, until ms have passed or forever
// when no duration is given.
func cmdSpin(_ *Host, call *interp.Call) runtime.Result {
	if len(call.Args) > 1 {
		return wrongArgs("spin ?ms?")
	}
	var deadline time.Time
	if len(call.Args) == 1 {
		ms, err := strconv.Atoi(call.Args[0])
		if err != nil {
			return runtime.Failf("expected integer but got %q", call.Args[0])
		}
		deadline = time.Now().Add(time.Duration(ms) * time.Millisecond)
	}
	c := call.Node.Cancellation()
	pause := c.Limits().SleepTime
	if pause <= 0 || pause > 10*time.Millisecond {
		pause = time.Millisecond
	}
	for {
		if err := c.Checkpoint(); err != nil {
			return runtime.Fail(err)
		}
		if err := call.Ctx.Err(); err != nil {
			return runtime.Fail(err)
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return runtime.OK("")
		}
		time.Sleep(pause)
	}
}

// policyinfo describes the operation a policy script is deciding on.
func cmdPolicyInfo(_ *Host, call *interp.Call) runtime.Result {
	pc, ok := interp.PolicyContextFrom(call.Ctx)
	if !ok {
		return runtime.Failf("no policy is being evaluated")
	}
	caller, target := "", ""
	if pc.Caller != nil {
		caller = pc.Caller.Path()
	}
	if pc.Target != nil {
		target = pc.Target.Path()
	}
	if pc.Script != "" {
		return runtime.OK(FormatList([]string{"eval", caller, target, pc.Script}))
	}
	return runtime.OK(FormatList(append([]string{"invoke", caller, target, pc.Name}, pc.Args...)))
}

func cmdFile(h *Host, call *interp.Call) runtime.Result {
	if h.FS == nil {
		return runtime.Failf("no filesystem available")
	}
	if len(call.Args) < 2 {
		return wrongArgs("file option name ?arg ...?")
	}
	sub, name := call.Args[0], call.Args[1]
	switch sub {
	case "exists":
		_, err := h.FS.Stat(name)
		return runtime.OK(boolString(err == nil))
	case "read":
		data, err := util.ReadFile(h.FS, name)
		if err != nil {
			return runtime.Failf("couldn't read file %q: %v", name, err)
		}
		return runtime.OK(string(data))
	case "write":
		if len(call.Args) != 3 {
			return wrongArgs("file write name data")
		}
		if err := util.WriteFile(h.FS, name, []byte(call.Args[2]), 0o644); err != nil {
			return runtime.Failf("couldn't write file %q: %v", name, err)
		}
		return runtime.OK("")
	case "delete":
		if err := h.FS.Remove(name); err != nil && !os.IsNotExist(err) {
			return runtime.Failf("couldn't delete file %q: %v", name, err)
		}
		return runtime.OK("")
	default:
		return runtime.Failf("unknown file option %q: must be delete, exists, read, or write", sub)
	}
}

func cmdSource(h *Host, call *interp.Call) runtime.Result {
	if len(call.Args) != 1 {
		return wrongArgs("source fileName")
	}
	if h.FS == nil {
		return runtime.Failf("no filesystem available")
	}
	data, err := util.ReadFile(h.FS, call.Args[0])
	if err != nil {
		return runtime.Failf("couldn't read file %q: %v", call.Args[0], err)
	}
	r := call.Node.Evaluate(call.Ctx, string(data))
	if r.Code == runtime.Error {
		return r.Annotate(fmt.Sprintf("(file %q)", call.Args[0]))
	}
	return r
}

func cmdExit(h *Host, call *interp.Call) runtime.Result {
	code := 0
	if len(call.Args) > 1 {
		return wrongArgs("exit ?returnCode?")
	}
	if len(call.Args) == 1 {
		v, err := strconv.Atoi(call.Args[0])
		if err != nil {
			return runtime.Failf("expected integer but got %q", call.Args[0])
		}
		code = v
	}
	if h.Exit == nil {
		return runtime.Failf("exit is not available in this host")
	}
	h.Exit(code)
	return runtime.OK("")
}
