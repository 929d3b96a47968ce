package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"hive/interp-go/pkg/interp"
	"hive/interp-go/pkg/script"
)

const (
	historyFile = ".hive_history"
	promptMain  = "% "
	promptCont  = "> "
)

func newReplCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Evaluate commands interactively in the root interpreter",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.repl(cmd.Context())
		},
	}
}

func (a *app) repl(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)
	ln.SetCompleter(a.complete)

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	root := a.tree.Root()
	poll := interp.DefaultServiceOptions()
	for {
		src, ok := readScript(ln)
		if !ok {
			fmt.Fprintln(a.stdout)
			return nil
		}
		if strings.TrimSpace(src) == "" {
			continue
		}
		ln.AppendHistory(strings.ReplaceAll(src, "\n", " "))

		res := root.Evaluate(ctx, src)
		if res.IsError() {
			pterm.Error.Println(res.Trace())
		} else if res.Value != "" {
			fmt.Fprintln(a.stdout, res.Value)
		}
		// an unwind must not poison the next line
		root.Cancellation().ResetCancel(true)

		// run whatever `after` scheduled that is already due
		if _, err := root.ServiceEvents(ctx, poll); err != nil {
			pterm.Warning.Println(err.Error())
		}
	}
}

// readScript keeps prompting while the input ends inside an open brace,
// quote or bracket.
func readScript(ln *liner.State) (string, bool) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if errors.Is(err, liner.ErrPromptAborted) {
			return "", true
		}
		if err != nil {
			return "", false
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)

		src := b.String()
		if _, err := script.Parse(src); script.Incomplete(err) {
			continue
		}
		return src, true
	}
}

func (a *app) complete(line string) []string {
	start := strings.LastIndexAny(line, " \t[;") + 1
	prefix := line[start:]
	if prefix == "" {
		return nil
	}
	var out []string
	for _, name := range a.tree.Root().Commands() {
		if strings.HasPrefix(name, prefix) {
			out = append(out, line[:start]+name)
		}
	}
	return out
}
