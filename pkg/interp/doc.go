// Package interp is the control core of the hive scripting engine. It owns the
// tree of interpreter nodes and, per node, the trust flags, the visible/hidden
// command partition, cross-node aliases, hidden-command policies, cooperative
// cancellation with its watchdog, and the scheduled script queue together with
// the loop that services it.
//
// Parsing and evaluating scripts is not done here. Callers inject an Evaluator
// (see package script for the reference one) and the core hands it scripts,
// while the evaluator is expected to poll Cancellation.Checkpoint between
// dispatch steps.
//
// Locking: every node has its own mutex. Operations that span two nodes read
// the acting node, release it, then lock the target; node locks are never
// nested. The node arena has a separate leaf lock that may be taken while a
// node lock is held, never the other way round.
package interp
