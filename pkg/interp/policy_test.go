package interp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hive/interp-go/pkg/runtime"
)

func TestPolicyRequiresDiscriminator(t *testing.T) {
	tree := newTestTree(t)
	root := tree.Root()
	mustCreate(t, root, "a", CreateOptions{Safe: true})

	_, err := root.AddPolicy("a", PolicySpec{Script: "echo 1"})
	require.ErrorIs(t, err, runtime.ErrInvalidArgument)
	assert.EqualError(t, err, "-type or -token required")

	name, err := root.AddPolicy("a", PolicySpec{Type: "exit"})
	require.NoError(t, err)
	assert.Equal(t, "policy1", name)
	names, err := root.Policies("a")
	require.NoError(t, err)
	assert.Equal(t, []string{"policy1"}, names)

	require.NoError(t, root.RemovePolicy("a", name))
	assert.ErrorIs(t, root.RemovePolicy("a", name), runtime.ErrNotFound)
}

func TestInvokeHiddenConsultsPolicies(t *testing.T) {
	tree := newTestTree(t)
	root := tree.Root()
	a := mustCreate(t, root, "a", CreateOptions{Safe: true})
	ctx := context.Background()

	res := root.InvokeHidden(ctx, "a", "exit", nil, InvokeOptions{})
	require.Equal(t, runtime.Ok, res.Code, res.Value)
	assert.Equal(t, "exit", res.Value)

	var seen *PolicyContext
	_, err := root.AddPolicy("a", PolicySpec{Type: "exit", Guard: func(ctx context.Context, pc *PolicyContext) (PolicyDecision, error) {
		seen = pc
		return PolicyDenied, nil
	}})
	require.NoError(t, err)

	res = root.InvokeHidden(ctx, "a", "exit", []string{"0"}, InvokeOptions{})
	require.True(t, res.IsError())
	assert.ErrorIs(t, res.Err, runtime.ErrPermissionDenied)
	require.NotNil(t, seen)
	assert.Same(t, root, seen.Caller)
	assert.Same(t, a, seen.Target)
	assert.Equal(t, []string{"0"}, seen.Args)

	// policies for other types do not apply
	res = root.InvokeHidden(ctx, "a", "file", nil, InvokeOptions{})
	assert.Equal(t, runtime.Ok, res.Code)
	assert.Equal(t, 0, a.Frames().Depth())
}

func TestPolicyScriptRunsInOwner(t *testing.T) {
	tree := newTestTree(t)
	root := tree.Root()
	mustCreate(t, root, "a", CreateOptions{Safe: true})
	rec := &recorder{}
	_, err := root.DefineCommand(CommandSpec{Name: "decide", Fn: func(c *Call) runtime.Result {
		rec.command(c)
		pc, ok := PolicyContextFrom(c.Ctx)
		if !ok || pc.Name != "exit" {
			return runtime.OK("undecided")
		}
		return runtime.OK(c.Args[0])
	}})
	require.NoError(t, err)

	_, err = root.AddPolicy("a", PolicySpec{Type: "*", Script: "decide 0"})
	require.NoError(t, err)

	res := root.InvokeHidden(context.Background(), "a", "exit", nil, InvokeOptions{})
	require.True(t, res.IsError())
	assert.ErrorIs(t, res.Err, runtime.ErrPermissionDenied)
	_, node := rec.last()
	assert.Same(t, root, node)

	res = root.InvokeHidden(context.Background(), "a", "file", nil, InvokeOptions{})
	assert.Equal(t, runtime.Ok, res.Code)
}

func TestFirstDenialWins(t *testing.T) {
	tree := newTestTree(t)
	root := tree.Root()
	mustCreate(t, root, "a", CreateOptions{Safe: true})
	var order []string
	guard := func(name string, d PolicyDecision, err error) GuardFunc {
		return func(context.Context, *PolicyContext) (PolicyDecision, error) {
			order = append(order, name)
			return d, err
		}
	}
	for _, g := range []GuardFunc{
		guard("approve", PolicyApproved, nil),
		guard("undecided", PolicyUndecided, nil),
		guard("broken", PolicyUndecided, errors.New("guard exploded")),
		guard("never", PolicyApproved, nil),
	} {
		_, err := root.AddPolicy("a", PolicySpec{Type: "exit", Guard: g})
		require.NoError(t, err)
	}

	res := root.InvokeHidden(context.Background(), "a", "exit", nil, InvokeOptions{})
	require.True(t, res.IsError())
	assert.Equal(t, []string{"approve", "undecided", "broken"}, order)
	assert.Equal(t, `permission denied: policy3 denied "exit"`, res.Value)
}

func TestPolicyMatchesToken(t *testing.T) {
	tree := newTestTree(t)
	root := tree.Root()
	a := mustCreate(t, root, "a", CreateOptions{Safe: true, NoInitialize: true})
	_, err := a.DefineCommand(CommandSpec{Name: "tok", Token: 42, Fn: func(*Call) runtime.Result { return runtime.OK("") }})
	require.NoError(t, err)
	require.NoError(t, root.Hide("a", "tok", ""))

	_, err = root.AddPolicy("a", PolicySpec{Token: 42, Guard: func(context.Context, *PolicyContext) (PolicyDecision, error) {
		return PolicyDenied, nil
	}})
	require.NoError(t, err)
	res := root.InvokeHidden(context.Background(), "a", "tok", nil, InvokeOptions{})
	assert.ErrorIs(t, res.Err, runtime.ErrPermissionDenied)
}

func TestInvokeHiddenErrors(t *testing.T) {
	tree := newTestTree(t)
	root := tree.Root()
	a := mustCreate(t, root, "a", CreateOptions{Safe: true})

	res := root.InvokeHidden(context.Background(), "a", "echo", nil, InvokeOptions{})
	assert.ErrorIs(t, res.Err, runtime.ErrNotFound)
	res = a.InvokeHidden(context.Background(), "", "exit", nil, InvokeOptions{})
	assert.ErrorIs(t, res.Err, runtime.ErrPermissionDenied)
}

func TestEvalConsultsEvaluatePolicies(t *testing.T) {
	tree := newTestTree(t)
	root := tree.Root()
	a := mustCreate(t, root, "a", CreateOptions{Safe: true})

	res := root.Eval(context.Background(), "a", "set x 1")
	require.Equal(t, runtime.Ok, res.Code)
	v, _ := a.Variables().Get("x")
	assert.Equal(t, "1", v)

	_, err := root.AddPolicy("a", PolicySpec{Flags: PolicyEvaluate, Type: "eval", Guard: func(_ context.Context, pc *PolicyContext) (PolicyDecision, error) {
		if pc.Script == "set x 2" {
			return PolicyDenied, nil
		}
		return PolicyApproved, nil
	}})
	require.NoError(t, err)

	res = root.Eval(context.Background(), "a", "set x 2")
	assert.ErrorIs(t, res.Err, runtime.ErrPermissionDenied)
	res = root.Eval(context.Background(), "a", "fail now")
	require.True(t, res.IsError())
	assert.Equal(t, []string{`(in interp eval "a")`}, res.ErrorInfo)
	v, _ = a.Variables().Get("x")
	assert.Equal(t, "1", v)
}
