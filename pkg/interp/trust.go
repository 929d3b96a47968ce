package interp

import (
	"hive/interp-go/pkg/runtime"
)

// TrustState is the capability state of a node. Namespaces and Profile are the
// creation snapshot and never change afterwards.
type TrustState struct {
	Safe      bool
	Standard  bool
	Trusted   bool
	ReadOnly  bool
	Immutable bool

	Namespaces bool
	Profile    Profile
}

func (n *Node) Trust() TrustState {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.trust
}

func (n *Node) IsSafe() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.trust.Safe
}

func (n *Node) IsStandard() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.trust.Standard
}

func (n *Node) IsTrusted() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.trust.Trusted
}

func (n *Node) IsReadOnly() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.trust.ReadOnly
}

func (n *Node) IsImmutable() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.trust.Immutable
}

func denied(action string) error {
	return runtime.NewError(runtime.KindPermissionDenied, "permission denied: safe interpreter cannot %s", action)
}

// requireUnsafe refuses privileged operations issued by a safe caller.
func (n *Node) requireUnsafe(action string) error {
	if n.IsSafe() {
		return denied(action)
	}
	return nil
}

// mutateTrust resolves path and applies fn to the target's trust state under
// its lock, after checking the caller and the target's immutability.
func (n *Node) mutateTrust(path, action string, fn func(target *Node) error) error {
	if err := n.requireUnsafe(action); err != nil {
		return err
	}
	target, err := n.Resolve(path)
	if err != nil {
		return err
	}
	target.mu.Lock()
	defer target.mu.Unlock()
	if target.trust.Immutable {
		return runtime.NewError(runtime.KindPermissionDenied, "permission denied: interpreter %q is immutable", path)
	}
	return fn(target)
}

func alreadyMarked(flag string) error {
	return runtime.NewError(runtime.KindInvalidArgument, "interpreter is already marked as %q", flag)
}

func notMarked(flag string) error {
	return runtime.NewError(runtime.KindInvalidArgument, "interpreter is not marked as %q", flag)
}

// MakeSafe marks the node at path safe, hiding every command not flagged
// CommandSafe. Clearing the flag exposes the commands that marking it hid.
func (n *Node) MakeSafe(path string, safe bool) error {
	return n.mutateTrust(path, "modify safety", func(target *Node) error {
		if target.trust.Safe == safe {
			if safe {
				return alreadyMarked("safe")
			}
			return notMarked("safe")
		}
		target.trust.Safe = safe
		if safe {
			target.hideUnflagged(CommandSafe, hiddenBySafe)
		} else {
			target.restoreHidden(hiddenBySafe)
		}
		target.log.WithField("safe", safe).Info("interpreter safety changed")
		return nil
	})
}

// MakeStandard marks the node at path standard, hiding every command not
// flagged CommandStandard.
func (n *Node) MakeStandard(path string, standard bool) error {
	return n.mutateTrust(path, "modify standardization", func(target *Node) error {
		if target.trust.Standard == standard {
			if standard {
				return alreadyMarked("standard")
			}
			return notMarked("standard")
		}
		target.trust.Standard = standard
		if standard {
			target.hideUnflagged(CommandStandard, hiddenByStandard)
		} else {
			target.restoreHidden(hiddenByStandard)
		}
		return nil
	})
}

// MarkTrusted marks the node at path trusted. There is no way back.
func (n *Node) MarkTrusted(path string) error {
	return n.mutateTrust(path, "mark trusted", func(target *Node) error {
		if target.trust.Trusted {
			return alreadyMarked("trusted")
		}
		target.trust.Trusted = true
		target.log.Info("interpreter marked trusted")
		return nil
	})
}

// SetReadOnly toggles whether the command table and aliases of the node at
// path may be changed.
func (n *Node) SetReadOnly(path string, readOnly bool) error {
	return n.mutateTrust(path, "modify read-only state", func(target *Node) error {
		target.trust.ReadOnly = readOnly
		return nil
	})
}

// SetImmutable freezes the trust state of the node at path. Once set it can
// not be cleared.
func (n *Node) SetImmutable(path string, immutable bool) error {
	return n.mutateTrust(path, "modify immutability", func(target *Node) error {
		target.trust.Immutable = immutable
		return nil
	})
}
