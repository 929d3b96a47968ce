package interp

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"hive/interp-go/pkg/runtime"
)

// Object is a host value registered in a node. Values implementing io.Closer
// are closed when their node is torn down unless NoDispose is set.
type Object struct {
	Name      string
	Value     any
	Token     uint64
	NoDispose bool
	Shared    bool
}

func objectNotFound(name string) error {
	return runtime.NewError(runtime.KindNotFound, "object %q not found", name)
}

// AddObject registers value in n under name.
func (n *Node) AddObject(name string, value any) (*Object, error) {
	if name == "" {
		return nil, runtime.NewError(runtime.KindInvalidArgument, "invalid object name %q", name)
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.dead {
		return nil, notFound(n.path)
	}
	if _, ok := n.objects[name]; ok {
		return nil, runtime.NewError(runtime.KindAlreadyExists, "object %q already exists", name)
	}
	obj := &Object{Name: name, Value: value, Token: n.tree.nextToken()}
	n.objects[name] = obj
	return obj, nil
}

func (n *Node) Object(name string) (*Object, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	obj, ok := n.objects[name]
	return obj, ok
}

// RemoveObject unregisters name, disposing of its value unless NoDispose is
// set.
func (n *Node) RemoveObject(name string) error {
	n.mu.Lock()
	obj, ok := n.objects[name]
	if ok {
		delete(n.objects, name)
	}
	n.mu.Unlock()
	if !ok {
		return objectNotFound(name)
	}
	if obj.NoDispose {
		return nil
	}
	return disposeObject(obj)
}

// Objects lists the object names registered in n.
func (n *Node) Objects() []string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]string, 0, len(n.objects))
	for name := range n.objects {
		out = append(out, name)
	}
	return out
}

// ShareObject makes object objectName of n available in the node at path
// under the same name. The object is no longer disposed with either node.
func (n *Node) ShareObject(path, objectName string) (uint64, error) {
	if err := n.requireUnsafe("share objects"); err != nil {
		return 0, err
	}
	target, err := n.Resolve(path)
	if err != nil {
		return 0, err
	}
	n.mu.Lock()
	obj, ok := n.objects[objectName]
	if ok {
		obj.NoDispose = true
		obj.Shared = true
	}
	n.mu.Unlock()
	if !ok {
		return 0, objectNotFound(objectName)
	}
	if target == n {
		return obj.Token, nil
	}

	target.mu.Lock()
	defer target.mu.Unlock()
	if target.dead {
		return 0, notFound(path)
	}
	if existing, ok := target.objects[objectName]; ok && existing != obj {
		return 0, runtime.NewError(runtime.KindAlreadyExists, "object %q already exists", objectName)
	}
	target.objects[objectName] = obj
	return obj.Token, nil
}

// ShareInterp links the node at srcPath into the node at path as a shared
// child and hands its ownership to the host: deleting its parent or the
// holder no longer destroys it. The new link name is returned.
func (n *Node) ShareInterp(path, srcPath string) (string, error) {
	if err := n.requireUnsafe("share interpreters"); err != nil {
		return "", err
	}
	src, err := n.Resolve(srcPath)
	if err != nil {
		return "", err
	}
	holder, err := n.Resolve(path)
	if err != nil {
		return "", err
	}
	if src.IsRoot() {
		return "", runtime.NewError(runtime.KindInvalidArgument, "cannot share the root interpreter")
	}
	if holder.isDescendantOf(src) {
		return "", runtime.NewError(runtime.KindInvalidArgument, "cannot share interpreter %q into itself", srcPath)
	}
	name := fmt.Sprintf("shared%d", src.id)

	holder.mu.Lock()
	if holder.dead {
		holder.mu.Unlock()
		return "", notFound(path)
	}
	if _, ok := holder.children[name]; ok {
		holder.mu.Unlock()
		return "", runtime.NewError(runtime.KindAlreadyExists, "interpreter %q is already shared into %q", srcPath, path)
	}
	holder.children[name] = link{id: src.id, shared: true}
	holder.order = append(holder.order, name)
	holder.mu.Unlock()

	src.mu.Lock()
	src.shared = true
	src.sharedLinks = append(src.sharedLinks, linkRef{parent: holder.id, name: name})
	src.mu.Unlock()

	src.log.WithFields(logrus.Fields{"holder": holder.Path(), "link": name}).Info("interpreter shared")
	return name, nil
}

func (n *Node) IsShared() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.shared
}

// DisposeShared destroys a node previously handed over by ShareInterp,
// removing its primary link and every shared link to it.
func (n *Node) DisposeShared(path string) error {
	return n.DisposeSharedContext(context.Background(), path)
}

// DisposeSharedContext is DisposeShared for a caller that may be running on
// a dedicated worker of the disposed subtree; see DeleteContext.
func (n *Node) DisposeSharedContext(ctx context.Context, path string) error {
	if err := n.requireUnsafe("dispose shared interpreters"); err != nil {
		return err
	}
	target, err := n.Resolve(path)
	if err != nil {
		return err
	}
	if n.isDescendantOf(target) {
		return runtime.NewError(runtime.KindInvalidArgument, "cannot dispose interpreter %q from within itself", path)
	}
	target.mu.Lock()
	if !target.shared {
		target.mu.Unlock()
		return runtime.NewError(runtime.KindInvalidArgument, "interpreter %q is not shared", path)
	}
	if target.dead {
		target.mu.Unlock()
		return notFound(path)
	}
	target.dead = true
	target.mu.Unlock()

	if parent, ok := n.tree.lookupAny(target.parent); ok {
		parent.unlink(target.name, target.id)
	}
	target.unlinkShared()
	target.teardown(ctx)
	return nil
}

// rehome drops the shared links held by the torn-down node gone and, when
// gone provided n's path, moves n onto the first surviving link.
func (n *Node) rehome(gone NodeID) {
	n.mu.Lock()
	kept := n.sharedLinks[:0]
	for _, ref := range n.sharedLinks {
		if ref.parent != gone {
			kept = append(kept, ref)
		}
	}
	n.sharedLinks = kept
	refs := append([]linkRef(nil), kept...)
	moved := n.home == gone
	n.mu.Unlock()
	if !moved {
		return
	}

	for _, ref := range refs {
		holder, ok := n.tree.Lookup(ref.parent)
		if !ok {
			continue
		}
		path := JoinPath(holder.Path(), ref.name)
		n.mu.Lock()
		n.home = holder.id
		n.path = path
		n.mu.Unlock()
		n.log.WithField("reachable", path).Debug("shared interpreter rehomed")
		return
	}
}
