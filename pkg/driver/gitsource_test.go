package driver

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSignature = &object.Signature{Name: "hive", Email: "hive@example.com", When: time.Unix(1700000000, 0)}

func commitFile(t *testing.T, repo *git.Repository, write func(name, contents string), name, contents, msg string) plumbing.Hash {
	t.Helper()
	write(name, contents)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add(name)
	require.NoError(t, err)
	hash, err := wt.Commit(msg, &git.CommitOptions{Author: testSignature})
	require.NoError(t, err)
	return hash
}

func TestReadScriptFromMemoryRepository(t *testing.T) {
	fs := memfs.New()
	repo, err := git.Init(memory.NewStorage(), fs)
	require.NoError(t, err)
	write := func(name, contents string) {
		require.NoError(t, util.WriteFile(fs, name, []byte(contents), 0o644))
	}

	first := commitFile(t, repo, write, "boot.tcl", "set x 1\n", "first")
	commitFile(t, repo, write, "boot.tcl", "set x 2\n", "second")

	src, err := ReadScript(repo, plumbing.Revision(plumbing.HEAD), "boot.tcl")
	require.NoError(t, err)
	assert.Equal(t, "set x 2\n", src)

	src, err = ReadScript(repo, plumbing.Revision(first.String()), "/boot.tcl")
	require.NoError(t, err)
	assert.Equal(t, "set x 1\n", src)

	_, err = ReadScript(repo, plumbing.Revision(plumbing.HEAD), "missing.tcl")
	assert.Error(t, err)
	_, err = ReadScript(repo, plumbing.Revision("refs/tags/nope"), "boot.tcl")
	assert.Error(t, err)
}

func TestGitSourceFetchLocal(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	write := func(name, contents string) {
		require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(dir, name)), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644))
	}

	tagged := commitFile(t, repo, write, "scripts/init.tcl", "puts v1\n", "v1")
	_, err = repo.CreateTag("v1", tagged, nil)
	require.NoError(t, err)
	commitFile(t, repo, write, "scripts/init.tcl", "puts v2\n", "v2")

	ctx := context.Background()
	src, err := GitSource{URL: dir, Path: "scripts/init.tcl"}.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "puts v2\n", src)

	tag := GitSource{URL: dir, Tag: "v1", Path: "scripts/init.tcl"}
	src, err = tag.Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "puts v1\n", src)
	assert.Contains(t, tag.Name(), "refs/tags/v1")

	_, err = GitSource{URL: dir}.Fetch(ctx)
	assert.ErrorContains(t, err, "path is required")
	_, err = GitSource{Path: "x"}.Fetch(ctx)
	assert.ErrorContains(t, err, "url is required")
}
