package driver

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"hive/interp-go/pkg/interp"
)

// Manifest describes an interpreter tree to build under the root: which
// interpreters exist, how far each is trusted and what it may reach.
type Manifest struct {
	Path         string
	Limits       LimitsOverride
	Interpreters []InterpreterSpec
}

// LimitsOverride carries only the limits a manifest mentions.
type LimitsOverride struct {
	Timeout        *time.Duration `yaml:"timeout"`
	FinallyTimeout *time.Duration `yaml:"finallyTimeout"`
	ReadyLimit     *int           `yaml:"readyLimit"`
	RecursionLimit *int           `yaml:"recursionLimit"`
	SleepTime      *time.Duration `yaml:"sleepTime"`
	ResultLimit    *int           `yaml:"resultLimit"`
}

func (o LimitsOverride) empty() bool {
	return o.Timeout == nil && o.FinallyTimeout == nil && o.ReadyLimit == nil &&
		o.RecursionLimit == nil && o.SleepTime == nil && o.ResultLimit == nil
}

// Over returns base with every mentioned limit replaced.
func (o LimitsOverride) Over(base interp.Limits) interp.Limits {
	if o.Timeout != nil {
		base.Timeout = *o.Timeout
	}
	if o.FinallyTimeout != nil {
		base.FinallyTimeout = *o.FinallyTimeout
	}
	if o.ReadyLimit != nil {
		base.ReadyLimit = *o.ReadyLimit
	}
	if o.RecursionLimit != nil {
		base.RecursionLimit = *o.RecursionLimit
	}
	if o.SleepTime != nil {
		base.SleepTime = *o.SleepTime
	}
	if o.ResultLimit != nil {
		base.ResultLimit = *o.ResultLimit
	}
	return base
}

type InterpreterSpec struct {
	Path             string         `yaml:"path"`
	Safe             bool           `yaml:"safe"`
	Standard         bool           `yaml:"standard"`
	UnsafeInitialize bool           `yaml:"unsafeInitialize"`
	NoInitialize     bool           `yaml:"noInitialize"`
	Trusted          bool           `yaml:"trusted"`
	ReadOnly         bool           `yaml:"readonly"`
	Immutable        bool           `yaml:"immutable"`
	Limits           LimitsOverride `yaml:"limits"`
	Hide             []string       `yaml:"hide"`
	Expose           []string       `yaml:"expose"`
	Aliases          []AliasSpec    `yaml:"aliases"`
	Policies         []PolicySpec   `yaml:"policies"`
	Scripts          []string       `yaml:"scripts"`
	Watchdog         bool           `yaml:"watchdog"`
}

// AliasSpec installs Name in the interpreter, forwarding to Command in the
// interpreter at Target (the root when empty) with Args prepended.
type AliasSpec struct {
	Name    string   `yaml:"name"`
	Target  string   `yaml:"target"`
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

type PolicySpec struct {
	Type     string `yaml:"type"`
	Token    uint64 `yaml:"token"`
	Script   string `yaml:"script"`
	Evaluate bool   `yaml:"evaluate"`
}

type manifestDisk struct {
	Limits       LimitsOverride    `yaml:"limits"`
	Interpreters []InterpreterSpec `yaml:"interpreters"`
}

// LoadManifest parses a manifest file from disk.
func LoadManifest(path string) (*Manifest, error) {
	if path == "" {
		return nil, fmt.Errorf("manifest: empty path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: resolve %s: %w", path, err)
	}
	file, err := os.Open(abs)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	m, err := ParseManifest(file)
	if err != nil {
		return nil, fmt.Errorf("manifest: parse %s: %w", abs, err)
	}
	m.Path = abs
	return m, nil
}

// ParseManifest decodes a manifest, rejecting unknown fields.
func ParseManifest(r io.Reader) (*Manifest, error) {
	var raw manifestDisk
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&raw); err != nil && err != io.EOF {
		return nil, err
	}
	m := &Manifest{Limits: raw.Limits, Interpreters: raw.Interpreters}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manifest) validate() error {
	seen := make(map[string]bool, len(m.Interpreters))
	for i, spec := range m.Interpreters {
		path := strings.TrimSpace(spec.Path)
		if path == "" {
			return fmt.Errorf("interpreters[%d]: path is required", i)
		}
		if seen[path] {
			return fmt.Errorf("interpreters[%d]: duplicate path %q", i, path)
		}
		seen[path] = true
		m.Interpreters[i].Path = path
		for j, a := range spec.Aliases {
			if a.Name == "" || a.Command == "" {
				return fmt.Errorf("interpreters[%d].aliases[%d]: name and command are required", i, j)
			}
		}
		for j, p := range spec.Policies {
			if p.Type == "" && p.Token == 0 {
				return fmt.Errorf("interpreters[%d].policies[%d]: type or token is required", i, j)
			}
		}
	}
	return nil
}

// ApplyLimits sets the manifest's global limits on every interpreter of the
// tree, then each interpreter's own overrides. Interpreters that do not
// exist yet are skipped.
func (m *Manifest) ApplyLimits(root *interp.Node) error {
	if !m.Limits.empty() {
		if err := setLimitsBelow(root, "", m.Limits); err != nil {
			return err
		}
	}
	for _, spec := range m.Interpreters {
		if spec.Limits.empty() || !root.Exists(spec.Path) {
			continue
		}
		if err := setLimits(root, spec.Path, spec.Limits); err != nil {
			return err
		}
	}
	return nil
}

func setLimitsBelow(root *interp.Node, path string, o LimitsOverride) error {
	if err := setLimits(root, path, o); err != nil {
		return err
	}
	children, err := root.Children(path)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := setLimitsBelow(root, interp.JoinPath(path, child), o); err != nil {
			return err
		}
	}
	return nil
}

func setLimits(root *interp.Node, path string, o LimitsOverride) error {
	n, err := root.Resolve(path)
	if err != nil {
		return err
	}
	c := n.Cancellation()
	if err := c.SetLimits(o.Over(c.Limits())); err != nil {
		return fmt.Errorf("limits for %q: %w", path, err)
	}
	return nil
}

// Apply builds the manifest's interpreters under root in order. Existing
// interpreters are left as they are apart from their limits, so applying the
// same manifest twice is harmless.
func (m *Manifest) Apply(ctx context.Context, root *interp.Node, log *logrus.Entry) error {
	if log == nil {
		log = root.Logger()
	}
	for _, spec := range m.Interpreters {
		if root.Exists(spec.Path) {
			continue
		}
		if err := applyInterpreter(ctx, root, spec, m.Limits); err != nil {
			return fmt.Errorf("manifest: interpreter %q: %w", spec.Path, err)
		}
		log.WithFields(logrus.Fields{"path": spec.Path, "safe": spec.Safe}).Debug("manifest interpreter created")
	}
	return m.ApplyLimits(root)
}

func applyInterpreter(ctx context.Context, root *interp.Node, spec InterpreterSpec, global LimitsOverride) error {
	parent, name := interp.SplitPath(spec.Path)
	if _, err := root.Create(parent, name, interp.CreateOptions{
		Safe:             spec.Safe,
		Standard:         spec.Standard,
		UnsafeInitialize: spec.UnsafeInitialize,
		NoInitialize:     spec.NoInitialize,
	}); err != nil {
		return err
	}
	path := spec.Path
	if err := setLimits(root, path, global); err != nil {
		return err
	}
	if err := setLimits(root, path, spec.Limits); err != nil {
		return err
	}

	for _, name := range spec.Hide {
		if err := root.Hide(path, name, ""); err != nil {
			return fmt.Errorf("hide %s: %w", name, err)
		}
	}
	for _, name := range spec.Expose {
		if err := root.Expose(path, name, ""); err != nil {
			return fmt.Errorf("expose %s: %w", name, err)
		}
	}
	for _, a := range spec.Aliases {
		rest := append([]string{a.Target, a.Command}, a.Args...)
		if _, err := root.Alias(path, a.Name, rest...); err != nil {
			return fmt.Errorf("alias %s: %w", a.Name, err)
		}
	}
	for _, p := range spec.Policies {
		flags := interp.PolicyInvoke
		if p.Evaluate {
			flags = interp.PolicyEvaluate
		}
		if _, err := root.AddPolicy(path, interp.PolicySpec{
			Flags:  flags,
			Type:   p.Type,
			Token:  p.Token,
			Script: p.Script,
		}); err != nil {
			return fmt.Errorf("policy: %w", err)
		}
	}
	for i, src := range spec.Scripts {
		if res := root.Eval(ctx, path, src); res.IsError() {
			return fmt.Errorf("scripts[%d]: %w", i, res.AsError())
		}
	}
	if spec.Watchdog {
		n, err := root.Resolve(path)
		if err != nil {
			return err
		}
		if _, err := n.Cancellation().StartWatchdog(); err != nil {
			return fmt.Errorf("watchdog: %w", err)
		}
	}

	if spec.Trusted {
		if err := root.MarkTrusted(path); err != nil {
			return err
		}
	}
	if spec.ReadOnly {
		if err := root.SetReadOnly(path, true); err != nil {
			return err
		}
	}
	if spec.Immutable {
		if err := root.SetImmutable(path, true); err != nil {
			return err
		}
	}
	return nil
}
