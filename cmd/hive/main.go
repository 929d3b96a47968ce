package main

import (
	"fmt"
	"os"
)

const cliToolVersion = "hive v0.1.0"

func main() {
	a := &app{}
	if err := a.execute(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// execute runs one command line and tears the app down afterwards. cobra
// skips PersistentPostRun when a command fails.
func (a *app) execute(args []string) error {
	cmd := newRootCmd(a)
	cmd.SetArgs(args)
	err := cmd.Execute()
	a.teardown()
	return err
}
