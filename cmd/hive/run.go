package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"hive/interp-go/pkg/driver"
	"hive/interp-go/pkg/runtime"
)

type runOptions struct {
	git       driver.GitSource
	service   bool
	dedicated bool
}

func newRunCmd(a *app) *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run [file]",
		Short: "Evaluate a script in the root interpreter",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := ""
			if len(args) == 1 {
				file = args[0]
			}
			return a.run(cmd.Context(), file, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.git.URL, "git", "", "read the script from this git repository")
	f.StringVar(&opts.git.Rev, "rev", "", "revision of the git repository (default HEAD)")
	f.StringVar(&opts.git.Path, "path", "", "path of the script inside the git repository")
	f.BoolVar(&opts.service, "service", false, "service queued events after the script finishes")
	f.BoolVar(&opts.dedicated, "dedicated", false, "service queued events on the dedicated worker")
	return cmd
}

func (a *app) loadScript(ctx context.Context, file string, opts runOptions) (name, src string, err error) {
	switch {
	case opts.git.URL != "" && file != "":
		return "", "", errors.New("run: give either a file or --git, not both")
	case opts.git.URL != "":
		src, err = opts.git.Fetch(ctx)
		return opts.git.Name(), src, err
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", "", fmt.Errorf("run: %w", err)
		}
		return file, string(data), nil
	}
	return "", "", errors.New("run: a script file or --git is required")
}

func (a *app) run(ctx context.Context, file string, opts runOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := a.tree.Root()
	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-ctx.Done():
			_ = root.Cancellation().Cancel(true, true, "eval unwound: interrupted")
		case <-finished:
		}
	}()

	name, src, err := a.loadScript(ctx, file, opts)
	if err != nil {
		return err
	}
	a.log().WithField("script", name).Debug("evaluating script")

	res := root.Evaluate(ctx, src)
	if res.IsError() {
		res = res.Annotate(fmt.Sprintf("(file %q)", name))
		return errors.New(res.Trace())
	}
	if res.Code == runtime.Ok && res.Value != "" {
		fmt.Fprintln(a.stdout, res.Value)
	}

	svc := a.cfg.Service
	switch {
	case opts.dedicated || svc.Dedicated:
		if err := root.ServiceDedicated(svc.Options()); err != nil {
			return err
		}
		root.WaitWorker()
	case opts.service:
		report, err := root.ServiceEvents(ctx, svc.Options())
		a.log().WithField("serviced", report.Serviced).Debug("service loop finished")
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}
	if ctx.Err() != nil {
		return errors.New("interrupted")
	}
	return nil
}
