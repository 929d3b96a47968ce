package interp

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"hive/interp-go/pkg/runtime"
)

type link struct {
	id     NodeID
	shared bool
}

// linkRef names a shared link installed in another node.
type linkRef struct {
	parent NodeID
	name   string
}

// Node is one interpreter in the tree. All registries are guarded by mu; the
// cancellation controller and script queue carry their own locks.
type Node struct {
	id     NodeID
	name   string
	parent NodeID
	tree   *Tree

	mu          sync.RWMutex
	path        string
	home        NodeID
	dead        bool
	released    bool
	shared      bool
	sharedLinks []linkRef
	trust       TrustState
	children    map[string]link
	order       []string
	commands    commandTable
	aliases     map[string]*Alias
	policies    []*Policy
	policySeq   int
	objects     map[string]*Object
	bgerror     []string
	seq         uint64

	cancel *Cancellation
	queue  *ScriptQueue
	frames FrameTracker
	vars   VariableStore

	workerMu sync.Mutex
	worker   *Worker

	ctx  context.Context
	stop context.CancelFunc
	log  *logrus.Entry
}

func (n *Node) ID() NodeID { return n.id }

func (n *Node) Name() string { return n.name }

// Path is the node's absolute dotted path; the root's path is empty. A shared
// node whose parent was deleted answers with the path of a surviving link.
func (n *Node) Path() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.path
}

func (n *Node) Tree() *Tree { return n.tree }

func (n *Node) IsRoot() bool { return n.parent == 0 }

// Parent returns the live parent node, if any.
func (n *Node) Parent() (*Node, bool) {
	if n.parent == 0 {
		return nil, false
	}
	return n.tree.Lookup(n.parent)
}

func (n *Node) Cancellation() *Cancellation { return n.cancel }

func (n *Node) Queue() *ScriptQueue { return n.queue }

func (n *Node) Frames() FrameTracker { return n.frames }

func (n *Node) Variables() VariableStore { return n.vars }

func (n *Node) Logger() *logrus.Entry { return n.log }

// Context is canceled when the node is deleted.
func (n *Node) Context() context.Context { return n.ctx }

func (n *Node) isDead() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.dead
}

func (n *Node) markDead() {
	n.mu.Lock()
	n.dead = true
	n.mu.Unlock()
}

func (n *Node) nextSeq() uint64 {
	n.seq++
	return n.seq
}

func notFound(path string) error {
	return runtime.NewError(runtime.KindNotFound, "could not find interpreter %q", path)
}

// Resolve finds the node at path relative to n. An empty path is n itself.
func (n *Node) Resolve(path string) (*Node, error) {
	if n.isDead() {
		return nil, notFound(path)
	}
	if path == "" {
		return n, nil
	}
	cur := n
	rest := path
	for rest != "" {
		seg := rest
		if idx := strings.IndexByte(rest, '.'); idx >= 0 {
			seg, rest = rest[:idx], rest[idx+1:]
			if rest == "" {
				return nil, notFound(path)
			}
		} else {
			rest = ""
		}
		cur.mu.RLock()
		l, ok := cur.children[seg]
		dead := cur.dead
		cur.mu.RUnlock()
		if !ok || dead {
			return nil, notFound(path)
		}
		next, ok := n.tree.Lookup(l.id)
		if !ok {
			return nil, notFound(path)
		}
		cur = next
	}
	return cur, nil
}

func (n *Node) Exists(path string) bool {
	_, err := n.Resolve(path)
	return err == nil
}

// Children lists the link names of the node at path in creation order,
// shared links included.
func (n *Node) Children(path string) ([]string, error) {
	target, err := n.Resolve(path)
	if err != nil {
		return nil, err
	}
	target.mu.RLock()
	defer target.mu.RUnlock()
	out := make([]string, len(target.order))
	copy(out, target.order)
	return out, nil
}

// IsWithin reports whether n is other or one of its descendants.
func (n *Node) IsWithin(other *Node) bool { return n.isDescendantOf(other) }

// isDescendantOf reports whether n is other or lies below it on the primary
// parent chain.
func (n *Node) isDescendantOf(other *Node) bool {
	for cur := n; cur != nil; {
		if cur == other {
			return true
		}
		if cur.parent == 0 {
			return false
		}
		cur, _ = n.tree.Lookup(cur.parent)
	}
	return false
}

// CreateOptions are the creation flags of a new node. Namespaces is inherited
// from the parent when nil.
type CreateOptions struct {
	Safe             bool
	Standard         bool
	UnsafeInitialize bool
	NoInitialize     bool
	Namespaces       *bool
}

// Create adds a child named name under the node at parentPath, with n acting
// as the caller.
func (n *Node) Create(parentPath, name string, opts CreateOptions) (NodeID, error) {
	if !validName(name) {
		return 0, runtime.NewError(runtime.KindInvalidArgument, "invalid interpreter name %q", name)
	}
	callerSafe := n.IsSafe()
	if callerSafe && opts.Standard {
		return 0, runtime.NewError(runtime.KindPermissionDenied, "permission denied: safe interpreter cannot create standard interpreters")
	}
	if callerSafe && opts.UnsafeInitialize {
		return 0, runtime.NewError(runtime.KindPermissionDenied, "permission denied: safe interpreter cannot use unsafe initialization")
	}
	parent, err := n.Resolve(parentPath)
	if err != nil {
		return 0, err
	}
	full := JoinPath(parentPath, name)

	parent.mu.RLock()
	parentTrust := parent.trust
	_, taken := parent.children[name]
	parent.mu.RUnlock()
	if taken {
		return 0, alreadyExists(full)
	}

	trust := TrustState{
		Safe:       opts.Safe || parentTrust.Safe || callerSafe,
		Standard:   opts.Standard,
		Namespaces: parentTrust.Namespaces,
	}
	if opts.Namespaces != nil {
		trust.Namespaces = *opts.Namespaces
	}
	switch {
	case opts.NoInitialize:
		trust.Profile = ProfileNone
	case trust.Safe && !opts.UnsafeInitialize:
		trust.Profile = ProfileSafe
	default:
		trust.Profile = ProfileFull
	}

	child := n.tree.newNode(parent, name, trust)
	if n.tree.initializer != nil && trust.Profile != ProfileNone {
		if err := n.tree.initializer.Initialize(child, trust.Profile); err != nil {
			child.release(context.Background())
			return 0, runtime.WrapError(runtime.KindInternal, err, "initialize interpreter %q", full)
		}
	}
	child.mu.Lock()
	if trust.Safe {
		child.hideUnflagged(CommandSafe, hiddenBySafe)
	}
	if trust.Standard {
		child.hideUnflagged(CommandStandard, hiddenByStandard)
	}
	child.mu.Unlock()

	parent.mu.Lock()
	if parent.dead {
		parent.mu.Unlock()
		child.release(context.Background())
		return 0, notFound(parentPath)
	}
	if _, ok := parent.children[name]; ok {
		parent.mu.Unlock()
		child.release(context.Background())
		return 0, alreadyExists(full)
	}
	parent.children[name] = link{id: child.id}
	parent.order = append(parent.order, name)
	n.tree.attach(child)
	parent.mu.Unlock()

	child.log.WithFields(logrus.Fields{"safe": trust.Safe, "profile": trust.Profile.String()}).Debug("interpreter created")
	return child.id, nil
}

func alreadyExists(path string) error {
	return runtime.NewError(runtime.KindAlreadyExists, "interpreter named %q already exists, cannot create", path)
}

// Delete removes the node at path, relative to n, with its whole subtree.
// Deleting through a shared link only removes the link.
func (n *Node) Delete(path string) error {
	return n.DeleteContext(context.Background(), path)
}

// DeleteContext is Delete for a caller that may be running on a dedicated
// worker of the doomed subtree. ctx must be the context the caller's work
// item received; that worker is not joined.
func (n *Node) DeleteContext(ctx context.Context, path string) error {
	target, err := n.Resolve(path)
	if err != nil {
		return err
	}
	if target.IsRoot() {
		return runtime.NewError(runtime.KindInvalidArgument, "cannot delete the root interpreter")
	}
	if n.isDescendantOf(target) {
		return runtime.NewError(runtime.KindInvalidArgument, "cannot delete interpreter %q from within itself", path)
	}
	parentPath, name := SplitPath(path)
	parent, err := n.Resolve(parentPath)
	if err != nil {
		return err
	}

	parent.mu.RLock()
	l, ok := parent.children[name]
	parent.mu.RUnlock()
	if !ok || l.id != target.id {
		return notFound(path)
	}
	if l.shared {
		if !parent.unlink(name, target.id) {
			return notFound(path)
		}
		target.dropSharedLink(parent.id, name)
		return nil
	}

	target.mu.Lock()
	if target.dead {
		target.mu.Unlock()
		return notFound(path)
	}
	target.dead = true
	target.mu.Unlock()

	parent.unlink(name, target.id)
	target.unlinkShared()
	target.teardown(ctx)
	target.log.Debug("interpreter deleted")
	return nil
}

func (n *Node) unlink(name string, id NodeID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	l, ok := n.children[name]
	if !ok || l.id != id {
		return false
	}
	delete(n.children, name)
	for idx, existing := range n.order {
		if existing == name {
			n.order = append(n.order[:idx], n.order[idx+1:]...)
			break
		}
	}
	return true
}

func (n *Node) dropSharedLink(parent NodeID, name string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for idx, ref := range n.sharedLinks {
		if ref.parent == parent && ref.name == name {
			n.sharedLinks = append(n.sharedLinks[:idx], n.sharedLinks[idx+1:]...)
			return
		}
	}
}

// unlinkShared removes every shared link that points at n.
func (n *Node) unlinkShared() {
	n.mu.Lock()
	refs := n.sharedLinks
	n.sharedLinks = nil
	n.mu.Unlock()
	for _, ref := range refs {
		if holder, ok := n.tree.lookupAny(ref.parent); ok {
			holder.unlink(ref.name, n.id)
		}
	}
}

// teardown releases n's subtree depth-first. n must already be marked dead.
// Children reached through shared links, and children handed over to the
// host by shareinterp, are left alone.
func (n *Node) teardown(ctx context.Context) {
	n.mu.Lock()
	kids := make([]NodeID, 0, len(n.order))
	var linked []NodeID
	for _, name := range n.order {
		if l := n.children[name]; l.shared {
			linked = append(linked, l.id)
		} else {
			kids = append(kids, l.id)
		}
	}
	n.mu.Unlock()

	for _, id := range kids {
		child, ok := n.tree.lookupAny(id)
		if !ok {
			continue
		}
		child.mu.Lock()
		hostOwned := child.shared
		if !hostOwned {
			child.dead = true
		}
		child.mu.Unlock()
		if hostOwned {
			child.rehome(n.id)
			continue
		}
		child.unlinkShared()
		child.teardown(ctx)
	}
	for _, id := range linked {
		if child, ok := n.tree.lookupAny(id); ok {
			child.rehome(n.id)
		}
	}
	n.release(ctx)
	n.tree.forget(n.id)
}

// release stops everything running on behalf of n and drops its registries.
// The dedicated worker is joined before anything else is dropped, unless ctx
// belongs to one of its work items: then the registries are dropped once the
// worker goroutine exits.
func (n *Node) release(ctx context.Context) {
	n.mu.Lock()
	if n.released {
		n.mu.Unlock()
		return
	}
	n.released = true
	n.mu.Unlock()

	n.cancel.StopWatchdog()
	_ = n.cancel.Cancel(true, true, "interpreter deleted")
	n.stop()

	n.workerMu.Lock()
	w := n.worker
	n.worker = nil
	n.workerMu.Unlock()
	if w != nil {
		w.Close()
		if w.runs(ctx) {
			go func() {
				<-w.Done()
				n.drop()
			}()
			return
		}
		w.Wait()
	}
	n.drop()
}

// drop clears n's registries and disposes of the objects it owns.
func (n *Node) drop() {
	n.mu.Lock()
	var disposable []*Object
	for _, obj := range n.objects {
		if !obj.NoDispose {
			disposable = append(disposable, obj)
		}
	}
	n.objects = make(map[string]*Object)
	n.commands = newCommandTable()
	n.aliases = make(map[string]*Alias)
	n.policies = nil
	n.children = make(map[string]link)
	n.order = nil
	n.mu.Unlock()

	for _, obj := range disposable {
		if err := disposeObject(obj); err != nil {
			n.log.WithError(err).WithField("object", obj.Name).Warn("dispose object")
		}
	}
	n.queue.Clear()
}

func disposeObject(obj *Object) error {
	closer, ok := obj.Value.(io.Closer)
	if !ok {
		return nil
	}
	return closer.Close()
}

// lookupAny returns a node from the arena even when it is marked dead.
func (t *Tree) lookupAny(id NodeID) (*Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[id]
	return n, ok
}

// dedicatedWorker returns the node's worker, starting it on first use.
func (n *Node) dedicatedWorker() (*Worker, error) {
	if n.isDead() {
		return nil, ErrWorkerClosed
	}
	n.workerMu.Lock()
	defer n.workerMu.Unlock()
	if n.worker == nil {
		n.worker = NewWorker(n.ctx, func(name string, err error) {
			if errors.Is(err, context.Canceled) || errors.Is(err, ErrCanceled) {
				n.log.WithField("work", name).Debug("work item canceled")
				return
			}
			n.reportBackground(n.ctx, name, err)
		})
	}
	return n.worker, nil
}

// HasWorker reports whether a dedicated worker has been started for n.
func (n *Node) HasWorker() bool {
	n.workerMu.Lock()
	defer n.workerMu.Unlock()
	return n.worker != nil
}

// WaitWorker blocks until the dedicated worker, if one was started, has run
// everything submitted to it.
func (n *Node) WaitWorker() {
	n.workerMu.Lock()
	w := n.worker
	n.workerMu.Unlock()
	if w != nil {
		w.Flush()
	}
}
