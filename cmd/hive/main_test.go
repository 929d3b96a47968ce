package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	a := &app{stdout: &out}
	err := a.execute(args)
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, cliToolVersion+"\n", out)
}

func TestRunFile(t *testing.T) {
	dir := t.TempDir()
	testChdir(t, dir)
	file := writeFile(t, dir, "main.tcl", `
interp create -safe box
interp alias box greet {} puts
interp eval box {greet [list hello box]}
set done yes
`)
	out, err := execute(t, "run", file)
	require.NoError(t, err)
	assert.Equal(t, "hello box\nyes\n", out)
}

func TestRunReportsErrorTrail(t *testing.T) {
	dir := t.TempDir()
	testChdir(t, dir)
	file := writeFile(t, dir, "bad.tcl", "set x 1\nerror boom\n")
	_, err := execute(t, "run", file)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Contains(t, err.Error(), "bad.tcl")
}

func TestFailedRunStillTearsDown(t *testing.T) {
	dir := t.TempDir()
	testChdir(t, dir)
	cfg := writeFile(t, dir, "hive.yaml", "log:\n  output: file\n  file_path: "+filepath.Join(dir, "hive.log")+"\n")
	manifest := writeFile(t, dir, "tree.yaml", "interpreters:\n  - path: box\n")
	file := writeFile(t, dir, "bad.tcl", "error boom\n")

	a := &app{stdout: &bytes.Buffer{}}
	err := a.execute([]string{"--config", cfg, "--manifest", manifest, "--watch", "run", file})
	require.ErrorContains(t, err, "boom")
	assert.Nil(t, a.tree)
	assert.Nil(t, a.watcher)
	assert.Nil(t, a.logger)
}

func TestRunServicesQueuedEvents(t *testing.T) {
	dir := t.TempDir()
	testChdir(t, dir)
	file := writeFile(t, dir, "later.tcl", "after 10 {puts later}\nputs now\n")

	out, err := execute(t, "run", "--service", file)
	require.NoError(t, err)
	assert.Equal(t, "now\nlater\n", out)

	out, err = execute(t, "run", "--dedicated", file)
	require.NoError(t, err)
	assert.Equal(t, "now\nlater\n", out)
}

func TestRunFromGit(t *testing.T) {
	repoDir := t.TempDir()
	repo, err := git.PlainInit(repoDir, false)
	require.NoError(t, err)
	writeFile(t, repoDir, "boot/init.tcl", "puts from-git\n")
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("boot/init.tcl")
	require.NoError(t, err)
	_, err = wt.Commit("init", &git.CommitOptions{
		Author: &object.Signature{Name: "hive", Email: "hive@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	testChdir(t, t.TempDir())
	out, err := execute(t, "run", "--git", repoDir, "--path", "boot/init.tcl")
	require.NoError(t, err)
	assert.Equal(t, "from-git\n", out)

	_, err = execute(t, "run")
	assert.ErrorContains(t, err, "a script file or --git is required")
}

func TestTreeAppliesManifest(t *testing.T) {
	pterm.DisableStyling()
	defer pterm.EnableStyling()

	dir := t.TempDir()
	testChdir(t, dir)
	manifest := writeFile(t, dir, "tree.yaml", `
interpreters:
  - path: box
    safe: true
  - path: box.inner
    safe: true
  - path: tools
    trusted: true
`)
	out, err := execute(t, "tree", "--manifest", manifest)
	require.NoError(t, err)
	assert.Contains(t, out, "{}")
	assert.Contains(t, out, "box [safe]")
	assert.Contains(t, out, "inner [safe]")
	assert.Contains(t, out, "tools [trusted]")
}

func TestConfigFileFlag(t *testing.T) {
	dir := t.TempDir()
	testChdir(t, dir)
	cfg := writeFile(t, dir, "custom.yaml", "log:\n  format: yaml\n")
	_, err := execute(t, "--config", cfg, "tree")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.format")

	_, err = execute(t, "--watch", "tree")
	assert.ErrorContains(t, err, "watch requires a manifest")
}

// testChdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func testChdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}
