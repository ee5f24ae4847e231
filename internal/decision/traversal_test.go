package decision

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindByName(t *testing.T) {
	t.Parallel()

	t.Run("Should return a shared node once", func(t *testing.T) {
		t.Parallel()
		root := NewNode("root", nil)
		shared := NewNode("shared", nil)
		left := NewNode("left", nil)
		right := NewNode("right", nil)
		root.OnSuccess(left).OnSuccess(shared)
		root.OnFailure(right).OnFailure(shared)

		found := FindByName(root, "shared")
		require.Len(t, found, 1)
		assert.Same(t, shared, found[0])
	})

	t.Run("Should return distinct instances sharing a name", func(t *testing.T) {
		t.Parallel()
		root := NewNode("root", nil)
		a := NewNode("dup", nil)
		b := NewNode("dup", nil)
		root.OnSuccess(a)
		root.OnFailure(b)

		found := FindByName(root, "dup")
		assert.Len(t, found, 2)
	})

	t.Run("Should terminate on cycles", func(t *testing.T) {
		t.Parallel()
		root := NewNode("root", nil)
		retry := NewNode("retry", nil)
		root.OnFailure(retry).OnSuccess(root)

		assert.Len(t, FindByName(root, "root"), 1)
		assert.Empty(t, FindByName(root, "absent"))
	})

	t.Run("Should handle a nil root", func(t *testing.T) {
		t.Parallel()
		assert.Empty(t, FindByName(nil, "root"))
	})
}

func TestFindExperimentNodes(t *testing.T) {
	t.Parallel()

	t.Run("Should return one entry for an instance on both edges", func(t *testing.T) {
		t.Parallel()
		exp := NewExperimentNode(newStubPolicy(1, "exp"))
		root := NewNode("root", nil)
		root.OnSuccess(exp)
		root.OnFailure(exp)

		found := FindExperimentNodes(root)
		require.Len(t, found, 1)
		assert.Same(t, exp, found[0])
	})

	t.Run("Should collapse distinct instances with the same name", func(t *testing.T) {
		t.Parallel()
		root := NewNode("root", nil)
		root.OnSuccess(NewExperimentNode(newStubPolicy(1, "exp")))
		root.OnFailure(NewExperimentNode(newStubPolicy(1, "exp")))

		assert.Len(t, FindExperimentNodes(root), 1)
	})

	t.Run("Should ignore plain nodes", func(t *testing.T) {
		t.Parallel()
		root := NewNode("root", nil)
		a := root.OnSuccess(NewExperimentNode(newStubPolicy(1, "first")))
		a.OnSuccess(NewNode("plain", nil)).OnSuccess(NewExperimentNode(newStubPolicy(2, "second")))

		found := FindExperimentNodes(root)
		require.Len(t, found, 2)
		assert.Equal(t, "first", found[0].Name())
		assert.Equal(t, "second", found[1].Name())
	})
}

func TestWalk_StopsEarly(t *testing.T) {
	t.Parallel()

	root := NewNode("a", nil)
	root.OnSuccess(NewNode("b", nil)).OnSuccess(NewNode("c", nil))

	var seen []string
	Walk(root, func(n *Node) bool {
		seen = append(seen, n.Name())
		return n.Name() != "b"
	})
	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestRenderDOT(t *testing.T) {
	t.Parallel()

	root := NewNode("root", []Case{{Name: "noop", Run: func(context.Context, *Context, Result, Updates) (CaseOutcome, error) {
		return Pass(nil), nil
	}}})
	shared := NewNode("end", nil)
	root.OnSuccess(NewExperimentNode(newStubPolicy(1, "gate"))).OnSuccess(shared)
	root.OnFailure(shared)

	dot, err := RenderDOT(root)
	require.NoError(t, err)

	assert.Contains(t, dot, "digraph decision")
	assert.Contains(t, dot, `label="gate"`)
	assert.Contains(t, dot, "shape=diamond")
	assert.Contains(t, dot, `n0->n2`)
	assert.Equal(t, 1, strings.Count(dot, `label="end"`), "shared node rendered once")
}

