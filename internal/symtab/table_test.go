package symtab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureSymbolStability(t *testing.T) {
	tab := New()

	id1 := tab.Ensure("foo")
	id2 := tab.Ensure("foo")
	require.Equal(t, id1, id2, "repeated Ensure calls must return the same id")
	assert.Equal(t, "foo", tab.Name(id1))
}

func TestEnsureAssignsFreshIdsInOrder(t *testing.T) {
	tab := New()

	a := tab.Ensure("a")
	b := tab.Ensure("b")
	c := tab.Ensure("a")

	assert.Equal(t, 0, a)
	assert.Equal(t, 1, b)
	assert.Equal(t, a, c)
	assert.Equal(t, 2, tab.Count())
}

func TestAddRejectsDuplicates(t *testing.T) {
	tab := New()

	first := tab.Add("dup")
	require.NotEqual(t, -1, first)

	second := tab.Add("dup")
	assert.Equal(t, -1, second, "Add must fail on a name already interned")
	assert.Equal(t, 1, tab.Count(), "a failed Add must not grow the table")
}

func TestFindUnknownSymbol(t *testing.T) {
	tab := New()
	assert.Equal(t, -1, tab.Find("nope"))

	tab.Ensure("known")
	assert.GreaterOrEqual(t, tab.Find("known"), 0)
}

func TestNamePanicsOutOfRange(t *testing.T) {
	tab := New()
	assert.Panics(t, func() { tab.Name(0) })
	assert.Panics(t, func() { tab.Name(-1) })
}

func TestNamesPreservesAssignmentOrder(t *testing.T) {
	tab := New()
	tab.Ensure("first")
	tab.Ensure("second")
	tab.Ensure("third")

	assert.Equal(t, []string{"first", "second", "third"}, tab.Names())
}
