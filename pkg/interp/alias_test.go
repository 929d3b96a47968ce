package interp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hive/interp-go/pkg/runtime"
)

func TestAliasForwardsBoundArgs(t *testing.T) {
	tree := newTestTree(t)
	root := tree.Root()
	a := mustCreate(t, root, "a", CreateOptions{})
	b := mustCreate(t, root, "b", CreateOptions{})
	rec := &recorder{}
	_, err := b.DefineCommand(CommandSpec{Name: "bar", Fn: rec.command})
	require.NoError(t, err)

	alias, err := root.Alias("a", "foo", "b", "bar", "1", "2")
	require.NoError(t, err)
	assert.True(t, alias.Cross)
	assert.Equal(t, "b", alias.TargetPath)

	res := a.Invoke(context.Background(), "foo", "3")
	require.Equal(t, runtime.Ok, res.Code)
	args, node := rec.last()
	assert.Equal(t, []string{"1", "2", "3"}, args)
	assert.Same(t, b, node)
	assert.Equal(t, 0, a.Frames().Depth())
}

func TestAliasQueryIsIdempotent(t *testing.T) {
	tree := newTestTree(t)
	root := tree.Root()
	mustCreate(t, root, "a", CreateOptions{})
	mustCreate(t, root, "b", CreateOptions{})
	_, err := root.Alias("a", "foo", "b", "echo", "x")
	require.NoError(t, err)

	first, err := root.Alias("a", "foo")
	require.NoError(t, err)
	second, err := root.Alias("a", "foo")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, "echo x", first.String())

	// mutating a returned copy never leaks back into the registry
	first.BoundArgs[0] = "changed"
	third, err := root.QueryAlias("a", "foo")
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, third.BoundArgs)
}

func TestAliasArityTrichotomy(t *testing.T) {
	tree := newTestTree(t)
	root := tree.Root()
	a := mustCreate(t, root, "a", CreateOptions{})

	_, err := root.Alias("a", "foo", "", "echo")
	require.NoError(t, err)
	deleted, err := root.Alias("a", "foo", "")
	require.NoError(t, err)
	assert.Nil(t, deleted)
	_, ok := a.LookupCommand("foo")
	assert.False(t, ok)

	_, err = root.Alias("a", "foo", "", "echo")
	require.NoError(t, err)
	_, err = root.Alias("a", "foo", "", "")
	require.NoError(t, err)
	_, ok = a.LookupCommand("foo")
	assert.False(t, ok)

	_, err = root.Alias("a", "foo")
	assert.ErrorIs(t, err, runtime.ErrNotFound)
	_, err = root.Alias("a", "foo", "")
	assert.ErrorIs(t, err, runtime.ErrNotFound)
	_, err = root.Alias("a", "foo", "b")
	assert.ErrorIs(t, err, runtime.ErrInvalidArgument)
}

func TestAliasReplacesExistingDefinition(t *testing.T) {
	tree := newTestTree(t)
	root := tree.Root()
	a := mustCreate(t, root, "a", CreateOptions{})

	_, err := root.Alias("a", "set", "", "echo", "aliased")
	require.NoError(t, err)
	res := a.Invoke(context.Background(), "set", "x", "1")
	assert.Equal(t, "aliased x 1", res.Value)

	_, err = root.Alias("a", "set", "", "echo")
	assert.ErrorIs(t, err, runtime.ErrAlreadyExists)
	require.NoError(t, root.Hide("a", "fail", ""))
	_, err = root.Alias("a", "fail", "", "echo")
	assert.ErrorIs(t, err, runtime.ErrAlreadyExists)
}

func TestAliasAbortsWhenConflictCannotBeRemoved(t *testing.T) {
	tree := newTestTree(t)
	root := tree.Root()
	a := mustCreate(t, root, "a", CreateOptions{})
	locked, err := a.DefineCommand(CommandSpec{Name: "locked", Kind: CommandProcedure, Flags: CommandNoRemove, Fn: func(*Call) runtime.Result {
		return runtime.OK("locked")
	}})
	require.NoError(t, err)

	_, err = root.Alias("a", "locked", "", "echo")
	require.ErrorIs(t, err, runtime.ErrInternal)
	assert.ErrorIs(t, err, runtime.ErrPermissionDenied)

	still, ok := a.LookupCommand("locked")
	require.True(t, ok)
	assert.Same(t, locked, still)
	names, err := root.Aliases("a")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestAliasTargetResolvedAtCallTime(t *testing.T) {
	tree := newTestTree(t)
	root := tree.Root()
	a := mustCreate(t, root, "a", CreateOptions{})
	mustCreate(t, root, "b", CreateOptions{})
	_, err := root.Alias("a", "foo", "b", "set", "v")
	require.NoError(t, err)

	require.NoError(t, root.Delete("b"))
	res := a.Invoke(context.Background(), "foo", "1")
	require.True(t, res.IsError())
	assert.ErrorIs(t, res.Err, runtime.ErrNoSuchInterpreter)

	b := mustCreate(t, root, "b", CreateOptions{})
	res = a.Invoke(context.Background(), "foo", "2")
	require.Equal(t, runtime.Ok, res.Code)
	v, ok := b.Variables().Get("v")
	require.True(t, ok)
	assert.Equal(t, "2", v)
}

func TestAliasToMissingInterpreter(t *testing.T) {
	tree := newTestTree(t)
	root := tree.Root()
	mustCreate(t, root, "a", CreateOptions{})

	_, err := root.Alias("a", "foo", "ghost", "echo")
	require.ErrorIs(t, err, runtime.ErrNoSuchInterpreter)
	assert.EqualError(t, err, `target interpreter "ghost" is not my descendant`)

	// the delete form checks its target path too, and keeps the alias
	_, err = root.Alias("a", "foo", "", "echo")
	require.NoError(t, err)
	_, err = root.Alias("a", "foo", "ghost", "")
	require.ErrorIs(t, err, runtime.ErrNoSuchInterpreter)
	_, err = root.QueryAlias("a", "foo")
	assert.NoError(t, err)
}

func TestAliasErrorIsAnnotatedAndFramesPopped(t *testing.T) {
	tree := newTestTree(t)
	root := tree.Root()
	a := mustCreate(t, root, "a", CreateOptions{})
	mustCreate(t, root, "b", CreateOptions{})
	_, err := root.Alias("a", "foo", "b", "fail", "x")
	require.NoError(t, err)

	res := a.Invoke(context.Background(), "foo", "y")
	require.True(t, res.IsError())
	assert.Equal(t, "boom x y", res.Value)
	assert.Equal(t, []string{`(in alias "foo" eval "fail x y")`}, res.ErrorInfo)
	assert.Equal(t, 0, a.Frames().Depth())
}

func TestAliasRecursionIsBounded(t *testing.T) {
	tree := newTestTree(t, WithDefaultLimits(Limits{RecursionLimit: 10}))
	root := tree.Root()
	a := mustCreate(t, root, "a", CreateOptions{})
	_, err := root.Alias("a", "loop", "a", "loop")
	require.NoError(t, err)

	res := a.Invoke(context.Background(), "loop")
	require.True(t, res.IsError())
	assert.Contains(t, res.Value, "too many nested evaluations")
	assert.Len(t, res.ErrorInfo, 10)
	assert.Equal(t, 0, a.Frames().Depth())
}

func TestAliasesListAndTarget(t *testing.T) {
	tree := newTestTree(t)
	root := tree.Root()
	mustCreate(t, root, "a", CreateOptions{})
	mustCreate(t, root, "a.b", CreateOptions{})

	for _, name := range []string{"zz", "aa", "mm"} {
		_, err := root.Alias("a", name, "a.b", "echo")
		require.NoError(t, err)
	}
	names, err := root.Aliases("a")
	require.NoError(t, err)
	assert.Equal(t, []string{"zz", "aa", "mm"}, names)

	a, err := tree.Resolve("a")
	require.NoError(t, err)
	target, err := a.AliasTarget("", "aa")
	require.NoError(t, err)
	assert.Equal(t, "a.b", target)
}
