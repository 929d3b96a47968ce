package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"hive/interp-go/pkg/command"
	"hive/interp-go/pkg/driver"
	"hive/interp-go/pkg/interp"
	"hive/interp-go/pkg/script"
)

// app is the state shared by every subcommand: configuration, the logger and
// the interpreter tree built from them.
type app struct {
	configPath string
	stdout     io.Writer

	cfg     *driver.Config
	logger  *logrus.Logger
	tree    *interp.Tree
	watcher *driver.ManifestWatcher
}

func newRootCmd(a *app) *cobra.Command {
	if a.stdout == nil {
		a.stdout = os.Stdout
	}
	loader := driver.NewLoader("")
	root := &cobra.Command{
		Use:           "hive",
		Short:         "hive runs scripts in a tree of nested, isolated interpreters",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.setup(cmd.Context(), loader)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.teardown()
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (default ./hive.yaml)")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.String("manifest", "", "interpreter tree manifest to apply at startup")
	flags.Bool("watch", false, "re-apply the manifest when it changes")

	v := loader.Viper()
	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = v.BindPFlag("manifest", flags.Lookup("manifest"))
	_ = v.BindPFlag("watch", flags.Lookup("watch"))

	root.AddCommand(newRunCmd(a), newReplCmd(a), newTreeCmd(a), newVersionCmd(a))
	return root
}

func (a *app) setup(ctx context.Context, loader *driver.Loader) error {
	if a.configPath != "" {
		loader.SetPath(a.configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger, err := driver.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	a.logger = logger
	log := logrus.NewEntry(logger).WithField("component", "hive")
	if file := loader.ConfigFile(); file != "" {
		log.WithField("config", file).Debug("configuration loaded")
	}

	host := script.Host{
		Stdout: a.stdout,
		FS:     osfs.New(cfg.Workdir),
		Exit: func(code int) {
			a.teardown()
			os.Exit(code)
		},
	}
	tree, err := interp.NewTree(
		interp.WithEvaluator(script.New()),
		interp.WithInitializer(script.Initializer(host, command.Initializer(log))),
		interp.WithLogger(log),
		interp.WithDefaultLimits(cfg.Limits.Limits()),
	)
	if err != nil {
		return fmt.Errorf("failed to create interpreter tree: %w", err)
	}
	a.tree = tree

	if cfg.Manifest == "" {
		return nil
	}
	m, err := driver.LoadManifest(cfg.Manifest)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if err := m.Apply(ctx, tree.Root(), log); err != nil {
		return err
	}
	if !cfg.Watch {
		return nil
	}
	a.watcher, err = driver.WatchManifest(cfg.Manifest, 0, log, func(_, updated *driver.Manifest) error {
		return updated.Apply(context.Background(), tree.Root(), log)
	})
	return err
}

func (a *app) teardown() {
	if a.watcher != nil {
		_ = a.watcher.Close()
		a.watcher = nil
	}
	if a.tree != nil {
		_ = a.tree.Close()
		a.tree = nil
	}
	if a.logger != nil {
		_ = driver.CloseLogger(a.logger)
		a.logger = nil
	}
}

func (a *app) log() *logrus.Entry {
	return a.tree.Root().Logger()
}
