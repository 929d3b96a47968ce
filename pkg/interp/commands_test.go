package interp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hive/interp-go/pkg/runtime"
)

func TestHideExposeKeepsDefinitionIdentity(t *testing.T) {
	tree := newTestTree(t)
	root := tree.Root()
	a := mustCreate(t, root, "a", CreateOptions{})
	before, ok := a.LookupCommand("echo")
	require.True(t, ok)

	require.NoError(t, root.Hide("a", "echo", ""))
	_, ok = a.LookupCommand("echo")
	assert.False(t, ok)
	hidden, ok := a.LookupHidden("echo")
	require.True(t, ok)
	assert.Same(t, before, hidden)

	require.NoError(t, root.Expose("a", "echo", ""))
	after, ok := a.LookupCommand("echo")
	require.True(t, ok)
	assert.Same(t, before, after)
	_, ok = a.LookupHidden("echo")
	assert.False(t, ok)
}

func TestHideUnderAnotherName(t *testing.T) {
	tree := newTestTree(t)
	root := tree.Root()
	a := mustCreate(t, root, "a", CreateOptions{})

	require.NoError(t, root.Hide("a", "echo", "secret"))
	_, ok := a.LookupHidden("secret")
	assert.True(t, ok)

	assert.ErrorIs(t, root.Hide("a", "set", "secret"), runtime.ErrAlreadyExists)
	assert.ErrorIs(t, root.Hide("a", "set", "fail"), runtime.ErrAlreadyExists)
	assert.ErrorIs(t, root.Expose("a", "secret", "set"), runtime.ErrAlreadyExists)

	require.NoError(t, root.Expose("a", "secret", "say"))
	res := a.Invoke(context.Background(), "say", "hi")
	assert.Equal(t, "hi", res.Value)
}

func TestHideExposeNotFound(t *testing.T) {
	tree := newTestTree(t)
	root := tree.Root()
	mustCreate(t, root, "a", CreateOptions{})

	err := root.Hide("a", "nope", "")
	require.ErrorIs(t, err, runtime.ErrNotFound)
	assert.EqualError(t, err, `invalid command name "nope"`)
	assert.ErrorIs(t, root.Expose("a", "echo", ""), runtime.ErrNotFound)
	assert.ErrorIs(t, root.Hide("b", "echo", ""), runtime.ErrNotFound)
}

func TestHiddenListsCommandsThenProceduresInDefinitionOrder(t *testing.T) {
	tree := newTestTree(t)
	root := tree.Root()
	a := mustCreate(t, root, "a", CreateOptions{NoInitialize: true})
	ok := func(*Call) runtime.Result { return runtime.OK("") }

	for _, spec := range []CommandSpec{
		{Name: "zeta", Kind: CommandProcedure, Fn: ok},
		{Name: "alpha", Fn: ok},
		{Name: "mid", Kind: CommandProcedure, Fn: ok},
		{Name: "beta", Kind: CommandExecute, Fn: ok},
	} {
		_, err := a.DefineCommand(spec)
		require.NoError(t, err)
	}
	for _, name := range []string{"mid", "beta", "zeta", "alpha"} {
		require.NoError(t, root.Hide("a", name, ""))
	}

	hidden, err := root.Hidden("a")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta", "zeta", "mid"}, hidden)
}

func TestDefineCommandRules(t *testing.T) {
	tree := newTestTree(t)
	a := mustCreate(t, tree.Root(), "a", CreateOptions{NoInitialize: true})
	fn := func(c *Call) runtime.Result { return runtime.OK(c.Name) }

	first, err := a.DefineCommand(CommandSpec{Name: "x", Fn: fn})
	require.NoError(t, err)
	assert.Equal(t, "x", first.Type)
	second, err := a.DefineCommand(CommandSpec{Name: "x", Fn: fn, Type: "custom"})
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Greater(t, second.Seq(), first.Seq())

	_, err = a.DefineCommand(CommandSpec{Name: "locked", Flags: CommandNoRemove, Fn: fn})
	require.NoError(t, err)
	assert.ErrorIs(t, a.RemoveCommand("locked"), runtime.ErrPermissionDenied)
	_, err = a.DefineCommand(CommandSpec{Name: "locked", Fn: fn})
	assert.ErrorIs(t, err, runtime.ErrPermissionDenied)

	_, err = a.DefineCommand(CommandSpec{Name: "nofn"})
	assert.ErrorIs(t, err, runtime.ErrInvalidArgument)

	require.NoError(t, a.RemoveCommand("x"))
	res := a.Invoke(context.Background(), "x")
	require.True(t, res.IsError())
	assert.Equal(t, `invalid command name "x"`, res.Value)
}
