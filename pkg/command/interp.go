// Package command is the script-facing surface of the interpreter tree: the
// "interp" ensemble, a fixed table of subcommands that parse their words and
// call straight into pkg/interp.
package command

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"hive/interp-go/pkg/interp"
	"hive/interp-go/pkg/runtime"
	"hive/interp-go/pkg/script"
)

// invocation is one call of the ensemble.
type invocation struct {
	ctx  context.Context
	node *interp.Node
	log  *logrus.Entry
}

type subcommand struct {
	usage string
	min   int
	max   int // -1 = unbounded
	fn    func(inv *invocation, args []string) runtime.Result
}

var (
	ensemble map[string]subcommand
	names    []string
)

func init() {
	ensemble = map[string]subcommand{
		"alias":          {"srcPath srcCmd ?targetPath targetCmd? ?arg ...?", 2, -1, cmdAlias},
		"aliases":        {"?path?", 0, 1, cmdAliases},
		"bgerror":        {"path ?cmdPrefix?", 1, 2, cmdBgError},
		"cancel":         {"?-unwind? ?-force? ?--? ?path? ?message?", 0, -1, cmdCancel},
		"cancelstate":    {"?path?", 0, 1, cmdCancelState},
		"children":       {"?path?", 0, 1, cmdChildren},
		"create":         {"?-safe? ?-standard? ?-unsafeinitialize? ?-noinitialize? ?-nonamespaces? ?--? ?path?", 0, -1, cmdCreate},
		"delete":         {"?path ...?", 0, -1, cmdDelete},
		"dequeue":        {"path id", 2, 2, cmdDequeue},
		"disposeshared":  {"path", 1, 1, cmdDisposeShared},
		"eval":           {"path arg ?arg ...?", 2, -1, cmdEval},
		"exists":         {"path", 1, 1, cmdExists},
		"expose":         {"path hiddenCmdName ?cmdName?", 2, 3, cmdExpose},
		"finallytimeout": {"?path? ?milliseconds?", 0, 2, limitCommand(finallyTimeoutLimit)},
		"hidden":         {"?path?", 0, 1, cmdHidden},
		"hide":           {"path cmdName ?hiddenCmdName?", 2, 3, cmdHide},
		"immutable":      {"path ?boolean?", 1, 2, cmdImmutable},
		"invokehidden":   {"path ?-global? ?--? hiddenCmdName ?arg ...?", 2, -1, cmdInvokeHidden},
		"issafe":         {"?path?", 0, 1, trustQuery(func(t interp.TrustState) bool { return t.Safe })},
		"isstandard":     {"?path?", 0, 1, trustQuery(func(t interp.TrustState) bool { return t.Standard })},
		"istrusted":      {"?path?", 0, 1, trustQuery(func(t interp.TrustState) bool { return t.Trusted })},
		"makesafe":       {"path ?boolean?", 1, 2, cmdMakeSafe},
		"makestandard":   {"path ?boolean?", 1, 2, cmdMakeStandard},
		"marktrusted":    {"path", 1, 1, cmdMarkTrusted},
		"nopolicy":       {"path policyName", 2, 2, cmdNoPolicy},
		"objects":        {"?path?", 0, 1, cmdObjects},
		"policies":       {"?path?", 0, 1, cmdPolicies},
		"policy":         {"?-type type? ?-token token? ?-invoke? ?-evaluate? ?-plugin name? ?--? path script", 2, -1, cmdPolicy},
		"queue":          {"?-delay milliseconds? ?-priority priority? ?--? path script", 2, -1, cmdQueue},
		"queued":         {"?path?", 0, 1, cmdQueued},
		"readonly":       {"path ?boolean?", 1, 2, cmdReadOnly},
		"readylimit":     {"?path? ?limit?", 0, 2, limitCommand(readyLimit)},
		"recursionlimit": {"?path? ?limit?", 0, 2, limitCommand(recursionLimit)},
		"resetcancel":    {"?-force? ?--? ?path?", 0, -1, cmdResetCancel},
		"resultlimit":    {"?path? ?limit?", 0, 2, limitCommand(resultLimit)},
		"service":        {"?-dedicated? ?-wait? ?-nocancel? ?-noerror? ?-erroronempty? ?-userinterface? ?-limit count? ?-priority priority? ?--? ?path?", 0, -1, cmdService},
		"shareinterp":    {"path srcPath", 2, 2, cmdShareInterp},
		"shareobject":    {"path objectName", 2, 2, cmdShareObject},
		"slaves":         {"?path?", 0, 1, cmdChildren},
		"sleeptime":      {"?path? ?milliseconds?", 0, 2, limitCommand(sleepTimeLimit)},
		"target":         {"path alias", 2, 2, cmdTarget},
		"timeout":        {"?path? ?milliseconds?", 0, 2, limitCommand(timeoutLimit)},
		"watchdog":       {"start|stop|status ?path?", 1, 2, cmdWatchdog},
	}
	names = make([]string, 0, len(ensemble))
	for name := range ensemble {
		names = append(names, name)
	}
	sort.Strings(names)
}

// Subcommands lists the ensemble's subcommand names.
func Subcommands() []string {
	return append([]string(nil), names...)
}

// Initializer installs the "interp" command. It is visible everywhere; each
// subcommand enforces its own trust rules through the core.
func Initializer(log *logrus.Entry) interp.Initializer {
	return interp.InitializerFunc(func(n *interp.Node, profile interp.Profile) error {
		if profile == interp.ProfileNone {
			return nil
		}
		_, err := n.DefineCommand(interp.CommandSpec{
			Name:  "interp",
			Flags: interp.CommandSafe | interp.CommandStandard,
			Fn: func(call *interp.Call) runtime.Result {
				return Dispatch(call, log)
			},
		})
		return err
	})
}

// Dispatch runs the ensemble for call. call.Args[0] names the subcommand.
func Dispatch(call *interp.Call, log *logrus.Entry) runtime.Result {
	if len(call.Args) == 0 {
		return wrongArgs(call.Name, "subcommand ?arg ...?")
	}
	sub, args := call.Args[0], call.Args[1:]
	entry, ok := ensemble[sub]
	if !ok {
		return runtime.Fail(runtime.NewError(runtime.KindInvalidArgument,
			"bad option %q: must be %s", sub, oneOf(names)))
	}
	if len(args) < entry.min || (entry.max >= 0 && len(args) > entry.max) {
		return wrongArgs(call.Name+" "+sub, entry.usage)
	}
	if log == nil {
		log = call.Node.Logger()
	}
	inv := &invocation{
		ctx:  call.Ctx,
		node: call.Node,
		log:  log.WithField("subcommand", sub),
	}
	if inv.ctx == nil {
		inv.ctx = call.Node.Context()
	}
	return entry.fn(inv, args)
}

func wrongArgs(prefix, usage string) runtime.Result {
	return runtime.Fail(runtime.NewError(runtime.KindInvalidArgument, "wrong # args: should be %q", prefix+" "+usage))
}

func fail(err error) runtime.Result {
	return runtime.Fail(err)
}

// supervise refuses a safe caller that tries to change how the node it runs
// in, or one of its ancestors, is supervised.
func (inv *invocation) supervise(target *interp.Node, action string) error {
	if inv.node.IsSafe() && inv.node.IsWithin(target) {
		return runtime.NewError(runtime.KindPermissionDenied, "permission denied: safe interpreter cannot %s", action)
	}
	return nil
}

func optionalPath(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func list(items []string) runtime.Result {
	return runtime.OK(script.FormatList(items))
}

func cmdCreate(inv *invocation, args []string) runtime.Result {
	opts, rest, err := parseOptions(args,
		optionSpec{name: "-safe"},
		optionSpec{name: "-standard"},
		optionSpec{name: "-unsafeinitialize"},
		optionSpec{name: "-noinitialize"},
		optionSpec{name: "-nonamespaces"},
	)
	if err != nil {
		return fail(err)
	}
	if len(rest) > 1 {
		return wrongArgs("interp create", ensemble["create"].usage)
	}
	path := optionalPath(rest)
	if path == "" {
		path = inv.generatedName()
	}
	create := interp.CreateOptions{
		Safe:             opts.has("-safe"),
		Standard:         opts.has("-standard"),
		UnsafeInitialize: opts.has("-unsafeinitialize"),
		NoInitialize:     opts.has("-noinitialize"),
	}
	if opts.has("-nonamespaces") {
		off := false
		create.Namespaces = &off
	}
	parent, name := interp.SplitPath(path)
	if _, err := inv.node.Create(parent, name, create); err != nil {
		return fail(err)
	}
	inv.log.WithField("path", path).Debug("interpreter created")
	return runtime.OK(path)
}

// generatedName picks the first free "interpN" among the caller's children.
func (inv *invocation) generatedName() string {
	for i := 0; ; i++ {
		name := "interp" + strconv.Itoa(i)
		if !inv.node.Exists(name) {
			return name
		}
	}
}

func cmdDelete(inv *invocation, args []string) runtime.Result {
	for _, path := range args {
		if err := inv.node.DeleteContext(inv.ctx, path); err != nil {
			return fail(err)
		}
	}
	return runtime.OK("")
}

func cmdExists(inv *invocation, args []string) runtime.Result {
	return boolResult(inv.node.Exists(args[0]))
}

func cmdChildren(inv *invocation, args []string) runtime.Result {
	children, err := inv.node.Children(optionalPath(args))
	if err != nil {
		return fail(err)
	}
	return list(children)
}

func cmdEval(inv *invocation, args []string) runtime.Result {
	return inv.node.Eval(inv.ctx, args[0], strings.Join(args[1:], " "))
}

func cmdAlias(inv *invocation, args []string) runtime.Result {
	a, err := inv.node.Alias(args[0], args[1], args[2:]...)
	if err != nil {
		return fail(err)
	}
	switch {
	case a == nil:
		return runtime.OK("")
	case len(args) == 2:
		return list(append([]string{a.TargetName}, a.BoundArgs...))
	default:
		return runtime.OK(a.Source)
	}
}

func cmdBgError(inv *invocation, args []string) runtime.Result {
	target, err := inv.node.Resolve(args[0])
	if err != nil {
		return fail(err)
	}
	if len(args) == 2 {
		prefix, err := script.SplitList(args[1])
		if err != nil {
			return fail(err)
		}
		if err := target.SetBackgroundError(prefix); err != nil {
			return fail(err)
		}
	}
	return list(target.BackgroundError())
}

func cmdAliases(inv *invocation, args []string) runtime.Result {
	aliases, err := inv.node.Aliases(optionalPath(args))
	if err != nil {
		return fail(err)
	}
	return list(aliases)
}

func cmdTarget(inv *invocation, args []string) runtime.Result {
	target, err := inv.node.AliasTarget(args[0], args[1])
	if err != nil {
		return fail(err)
	}
	return runtime.OK(target)
}

func cmdHide(inv *invocation, args []string) runtime.Result {
	hidden := ""
	if len(args) == 3 {
		hidden = args[2]
	}
	if err := inv.node.Hide(args[0], args[1], hidden); err != nil {
		return fail(err)
	}
	return runtime.OK("")
}

func cmdExpose(inv *invocation, args []string) runtime.Result {
	exposed := ""
	if len(args) == 3 {
		exposed = args[2]
	}
	if err := inv.node.Expose(args[0], args[1], exposed); err != nil {
		return fail(err)
	}
	return runtime.OK("")
}

func cmdHidden(inv *invocation, args []string) runtime.Result {
	hidden, err := inv.node.Hidden(optionalPath(args))
	if err != nil {
		return fail(err)
	}
	return list(hidden)
}

func cmdInvokeHidden(inv *invocation, args []string) runtime.Result {
	path := args[0]
	opts, rest, err := parseOptions(args[1:], optionSpec{name: "-global"})
	if err != nil {
		return fail(err)
	}
	if len(rest) == 0 {
		return wrongArgs("interp invokehidden", ensemble["invokehidden"].usage)
	}
	return inv.node.InvokeHidden(inv.ctx, path, rest[0], rest[1:], interp.InvokeOptions{Global: opts.has("-global")})
}

func trustQuery(get func(interp.TrustState) bool) func(*invocation, []string) runtime.Result {
	return func(inv *invocation, args []string) runtime.Result {
		target, err := inv.node.Resolve(optionalPath(args))
		if err != nil {
			return fail(err)
		}
		return boolResult(get(target.Trust()))
	}
}

// toggle handles "path ?boolean?": a query without the boolean, a mutation
// with it.
func toggle(inv *invocation, args []string, get func(interp.TrustState) bool, set func(path string, on bool) error) runtime.Result {
	if len(args) == 1 {
		target, err := inv.node.Resolve(args[0])
		if err != nil {
			return fail(err)
		}
		return boolResult(get(target.Trust()))
	}
	on, err := parseBool(args[1])
	if err != nil {
		return fail(err)
	}
	if err := set(args[0], on); err != nil {
		return fail(err)
	}
	return boolResult(on)
}

func cmdMakeSafe(inv *invocation, args []string) runtime.Result {
	if len(args) == 1 {
		args = append(args, "1")
	}
	return toggle(inv, args, func(t interp.TrustState) bool { return t.Safe }, inv.node.MakeSafe)
}

func cmdMakeStandard(inv *invocation, args []string) runtime.Result {
	if len(args) == 1 {
		args = append(args, "1")
	}
	return toggle(inv, args, func(t interp.TrustState) bool { return t.Standard }, inv.node.MakeStandard)
}

func cmdMarkTrusted(inv *invocation, args []string) runtime.Result {
	if err := inv.node.MarkTrusted(args[0]); err != nil {
		return fail(err)
	}
	return runtime.OK("")
}

func cmdReadOnly(inv *invocation, args []string) runtime.Result {
	return toggle(inv, args, func(t interp.TrustState) bool { return t.ReadOnly }, inv.node.SetReadOnly)
}

func cmdImmutable(inv *invocation, args []string) runtime.Result {
	return toggle(inv, args, func(t interp.TrustState) bool { return t.Immutable }, inv.node.SetImmutable)
}

func cmdPolicy(inv *invocation, args []string) runtime.Result {
	opts, rest, err := parseOptions(args,
		optionSpec{name: "-type", takesValue: true},
		optionSpec{name: "-token", takesValue: true},
		optionSpec{name: "-invoke"},
		optionSpec{name: "-evaluate"},
		optionSpec{name: "-plugin", takesValue: true},
	)
	if err != nil {
		return fail(err)
	}
	if len(rest) != 2 {
		return wrongArgs("interp policy", ensemble["policy"].usage)
	}
	spec := interp.PolicySpec{Script: rest[1]}
	spec.Type, _ = opts.value("-type")
	spec.Plugin, _ = opts.value("-plugin")
	if tok, ok := opts.value("-token"); ok {
		if spec.Token, err = parseUint64(tok); err != nil {
			return fail(err)
		}
	}
	if opts.has("-invoke") {
		spec.Flags |= interp.PolicyInvoke
	}
	if opts.has("-evaluate") {
		spec.Flags |= interp.PolicyEvaluate
	}
	name, err := inv.node.AddPolicy(rest[0], spec)
	if err != nil {
		return fail(err)
	}
	return runtime.OK(name)
}

func cmdNoPolicy(inv *invocation, args []string) runtime.Result {
	if err := inv.node.RemovePolicy(args[0], args[1]); err != nil {
		return fail(err)
	}
	return runtime.OK("")
}

func cmdPolicies(inv *invocation, args []string) runtime.Result {
	policies, err := inv.node.Policies(optionalPath(args))
	if err != nil {
		return fail(err)
	}
	return list(policies)
}

func cmdCancel(inv *invocation, args []string) runtime.Result {
	opts, rest, err := parseOptions(args, optionSpec{name: "-unwind"}, optionSpec{name: "-force"})
	if err != nil {
		return fail(err)
	}
	if len(rest) > 2 {
		return wrongArgs("interp cancel", ensemble["cancel"].usage)
	}
	target, err := inv.node.Resolve(optionalPath(rest))
	if err != nil {
		return fail(err)
	}
	message := ""
	if len(rest) == 2 {
		message = rest[1]
	}
	if err := target.Cancellation().Cancel(opts.has("-force"), opts.has("-unwind"), message); err != nil {
		return fail(err)
	}
	return runtime.OK("")
}

func cmdResetCancel(inv *invocation, args []string) runtime.Result {
	opts, rest, err := parseOptions(args, optionSpec{name: "-force"})
	if err != nil {
		return fail(err)
	}
	if len(rest) > 1 {
		return wrongArgs("interp resetcancel", ensemble["resetcancel"].usage)
	}
	target, err := inv.node.Resolve(optionalPath(rest))
	if err != nil {
		return fail(err)
	}
	if opts.has("-force") {
		if err := inv.supervise(target, "force a cancellation reset"); err != nil {
			return fail(err)
		}
	}
	return boolResult(target.Cancellation().ResetCancel(opts.has("-force")))
}

func cmdCancelState(inv *invocation, args []string) runtime.Result {
	target, err := inv.node.Resolve(optionalPath(args))
	if err != nil {
		return fail(err)
	}
	return runtime.OK(target.Cancellation().State().String())
}

func cmdWatchdog(inv *invocation, args []string) runtime.Result {
	target, err := inv.node.Resolve(optionalPath(args[1:]))
	if err != nil {
		return fail(err)
	}
	c := target.Cancellation()
	switch args[0] {
	case "start", "stop":
		if err := inv.supervise(target, args[0]+" its own watchdog"); err != nil {
			return fail(err)
		}
	}
	switch args[0] {
	case "start":
		started, err := c.StartWatchdog()
		if err != nil {
			return fail(err)
		}
		return boolResult(started)
	case "stop":
		return boolResult(c.StopWatchdog())
	case "status":
		return boolResult(c.HasWatchdog())
	default:
		return fail(runtime.NewError(runtime.KindInvalidArgument, "bad option %q: must be start, status, or stop", args[0]))
	}
}

type limitField struct {
	name string
	get  func(interp.Limits) int64
	set  func(c *interp.Cancellation, v int64) error
}

var (
	timeoutLimit = limitField{
		name: "timeout",
		get:  func(l interp.Limits) int64 { return l.Timeout.Milliseconds() },
		set:  func(c *interp.Cancellation, v int64) error { return c.SetTimeout(time.Duration(v) * time.Millisecond) },
	}
	finallyTimeoutLimit = limitField{
		name: "finallytimeout",
		get:  func(l interp.Limits) int64 { return l.FinallyTimeout.Milliseconds() },
		set: func(c *interp.Cancellation, v int64) error {
			return c.SetFinallyTimeout(time.Duration(v) * time.Millisecond)
		},
	}
	sleepTimeLimit = limitField{
		name: "sleeptime",
		get:  func(l interp.Limits) int64 { return l.SleepTime.Milliseconds() },
		set: func(c *interp.Cancellation, v int64) error {
			return c.SetSleepTime(time.Duration(v) * time.Millisecond)
		},
	}
	readyLimit = limitField{
		name: "readylimit",
		get:  func(l interp.Limits) int64 { return int64(l.ReadyLimit) },
		set:  func(c *interp.Cancellation, v int64) error { return c.SetReadyLimit(int(v)) },
	}
	resultLimit = limitField{
		name: "resultlimit",
		get:  func(l interp.Limits) int64 { return int64(l.ResultLimit) },
		set:  func(c *interp.Cancellation, v int64) error { return c.SetResultLimit(int(v)) },
	}
	recursionLimit = limitField{
		name: "recursionlimit",
		get:  func(l interp.Limits) int64 { return int64(l.RecursionLimit) },
		set:  func(c *interp.Cancellation, v int64) error { return c.SetRecursionLimit(int(v)) },
	}
)

// limitCommand builds "?path? ?value?". Changing a limit requires an unsafe
// caller, otherwise a sandbox could lift its own timeout.
func limitCommand(field limitField) func(*invocation, []string) runtime.Result {
	return func(inv *invocation, args []string) runtime.Result {
		target, err := inv.node.Resolve(optionalPath(args))
		if err != nil {
			return fail(err)
		}
		c := target.Cancellation()
		if len(args) < 2 {
			return runtime.OK(strconv.FormatInt(field.get(c.Limits()), 10))
		}
		if inv.node.IsSafe() {
			return fail(runtime.NewError(runtime.KindPermissionDenied, "permission denied: safe interpreter cannot set %s", field.name))
		}
		v, err := parseInt(args[1])
		if err != nil {
			return fail(err)
		}
		if err := field.set(c, int64(v)); err != nil {
			return fail(err)
		}
		inv.log.WithFields(logrus.Fields{"path": target.Path(), "value": v}).Debug("limit changed")
		return runtime.OK(strconv.Itoa(v))
	}
}

func parsePriority(s string) (interp.EventPriority, error) {
	switch strings.ToLower(s) {
	case "low":
		return interp.PriorityLow, nil
	case "normal":
		return interp.PriorityNormal, nil
	case "high":
		return interp.PriorityHigh, nil
	}
	return 0, runtime.NewError(runtime.KindInvalidArgument, "bad priority %q: must be high, low, or normal", s)
}

func cmdQueue(inv *invocation, args []string) runtime.Result {
	opts, rest, err := parseOptions(args,
		optionSpec{name: "-delay", takesValue: true},
		optionSpec{name: "-priority", takesValue: true},
	)
	if err != nil {
		return fail(err)
	}
	if len(rest) != 2 {
		return wrongArgs("interp queue", ensemble["queue"].usage)
	}
	target, err := inv.node.Resolve(rest[0])
	if err != nil {
		return fail(err)
	}
	ev := interp.QueuedScriptEvent{Script: rest[1], Priority: interp.PriorityNormal}
	if d, ok := opts.value("-delay"); ok {
		ms, err := parseInt(d)
		if err != nil {
			return fail(err)
		}
		ev.When = time.Now().Add(time.Duration(ms) * time.Millisecond)
	}
	if p, ok := opts.value("-priority"); ok {
		if ev.Priority, err = parsePriority(p); err != nil {
			return fail(err)
		}
	}
	id, err := target.Queue().EnqueueEvent(ev)
	if err != nil {
		return fail(err)
	}
	return runtime.OK(id.String())
}

func cmdQueued(inv *invocation, args []string) runtime.Result {
	target, err := inv.node.Resolve(optionalPath(args))
	if err != nil {
		return fail(err)
	}
	events := target.Queue().Events()
	ids := make([]string, len(events))
	for i, ev := range events {
		ids[i] = ev.ID.String()
	}
	return list(ids)
}

func cmdDequeue(inv *invocation, args []string) runtime.Result {
	target, err := inv.node.Resolve(args[0])
	if err != nil {
		return fail(err)
	}
	for _, ev := range target.Queue().Events() {
		if ev.ID.String() == args[1] {
			return boolResult(target.Queue().Remove(ev.ID))
		}
	}
	return boolResult(false)
}

func cmdService(inv *invocation, args []string) runtime.Result {
	opts, rest, err := parseOptions(args,
		optionSpec{name: "-dedicated"},
		optionSpec{name: "-wait"},
		optionSpec{name: "-nocancel"},
		optionSpec{name: "-noerror"},
		optionSpec{name: "-erroronempty"},
		optionSpec{name: "-userinterface"},
		optionSpec{name: "-limit", takesValue: true},
		optionSpec{name: "-priority", takesValue: true},
	)
	if err != nil {
		return fail(err)
	}
	if len(rest) > 1 {
		return wrongArgs("interp service", ensemble["service"].usage)
	}
	target, err := inv.node.Resolve(optionalPath(rest))
	if err != nil {
		return fail(err)
	}
	so := interp.DefaultServiceOptions()
	if opts.has("-wait") {
		so.EventFlags |= interp.EventWait
	}
	so.NoCancel = opts.has("-nocancel")
	so.StopOnError = !opts.has("-noerror")
	so.ErrorOnEmpty = opts.has("-erroronempty")
	so.UserInterface = opts.has("-userinterface")
	if v, ok := opts.value("-limit"); ok {
		if so.Limit, err = parseInt(v); err != nil {
			return fail(err)
		}
	}
	if v, ok := opts.value("-priority"); ok {
		if so.Priority, err = parsePriority(v); err != nil {
			return fail(err)
		}
	}
	if opts.has("-dedicated") {
		if err := inv.supervise(target, "start its own dedicated service loop"); err != nil {
			return fail(err)
		}
		if err := target.ServiceDedicated(so); err != nil {
			return fail(err)
		}
		return runtime.OK("")
	}
	report, err := target.ServiceEvents(inv.ctx, so)
	if err != nil {
		return fail(err)
	}
	return runtime.OK(strconv.Itoa(report.Serviced))
}

func cmdShareObject(inv *invocation, args []string) runtime.Result {
	token, err := inv.node.ShareObject(args[0], args[1])
	if err != nil {
		return fail(err)
	}
	return runtime.OK(strconv.FormatUint(token, 10))
}

func cmdShareInterp(inv *invocation, args []string) runtime.Result {
	link, err := inv.node.ShareInterp(args[0], args[1])
	if err != nil {
		return fail(err)
	}
	return runtime.OK(link)
}

func cmdDisposeShared(inv *invocation, args []string) runtime.Result {
	if err := inv.node.DisposeSharedContext(inv.ctx, args[0]); err != nil {
		return fail(err)
	}
	return runtime.OK("")
}

func cmdObjects(inv *invocation, args []string) runtime.Result {
	target, err := inv.node.Resolve(optionalPath(args))
	if err != nil {
		return fail(err)
	}
	return list(target.Objects())
}
