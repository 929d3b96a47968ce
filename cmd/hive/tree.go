package main

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"hive/interp-go/pkg/interp"
)

func newTreeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tree",
		Short: "Print the interpreter tree after applying the manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			node, err := describeTree(a.tree.Root(), "")
			if err != nil {
				return err
			}
			out, err := pterm.DefaultTree.WithRoot(node).Srender()
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(a.stdout, out)
			return err
		},
	}
}

func describeTree(root *interp.Node, path string) (pterm.TreeNode, error) {
	n, err := root.Resolve(path)
	if err != nil {
		return pterm.TreeNode{}, err
	}
	node := pterm.TreeNode{Text: describeNode(n)}
	children, err := root.Children(path)
	if err != nil {
		return pterm.TreeNode{}, err
	}
	for _, child := range children {
		sub, err := describeTree(root, interp.JoinPath(path, child))
		if err != nil {
			return pterm.TreeNode{}, err
		}
		node.Children = append(node.Children, sub)
	}
	return node, nil
}

func describeNode(n *interp.Node) string {
	name := n.Name()
	if n.IsRoot() {
		name = "{}"
	}
	var marks []string
	trust := n.Trust()
	for _, m := range []struct {
		set  bool
		name string
	}{
		{trust.Safe, "safe"},
		{trust.Standard, "standard"},
		{trust.Trusted, "trusted"},
		{trust.ReadOnly, "readonly"},
		{trust.Immutable, "immutable"},
		{n.IsShared(), "shared"},
		{n.Cancellation().HasWatchdog(), "watchdog"},
	} {
		if m.set {
			marks = append(marks, m.name)
		}
	}
	if q := n.Queue().Len(); q > 0 {
		marks = append(marks, fmt.Sprintf("%d queued", q))
	}
	if len(marks) == 0 {
		return name
	}
	return fmt.Sprintf("%s [%s]", name, strings.Join(marks, ", "))
}
