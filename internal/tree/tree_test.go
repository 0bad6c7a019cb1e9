package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tabletop/internal/ir"
)

func testRegistry() *Registry {
	return NewRegistry().MustRegister(
		&Class{Name: "Player"},
		&Class{Name: "Zone"},
		&Class{Name: "Card", Leaf: true, Const: func(t *Tree, h Handle) ir.IRObject {
			return ir.IRObject{"cost": ir.IRInt(t.Props(h).Int("cost", 0) * 2)}
		}},
	)
}

func mustCreate(t *testing.T, tr *Tree, class, typ, id string) Handle {
	t.Helper()
	h, err := tr.Create(class, typ, id, id)
	require.NoError(t, err)
	return h
}

func mustAdd(t *testing.T, tr *Tree, parent, child Handle) {
	t.Helper()
	require.NoError(t, tr.AddChild(parent, child, false))
}

// buildTree creates root -> alice -> hand -> {c1, c2} and root -> deck -> c3.
func buildTree(t *testing.T) (*Tree, map[string]Handle) {
	t.Helper()
	tr := New(testRegistry())
	hs := map[string]Handle{
		"alice": mustCreate(t, tr, "Player", "player", "alice"),
		"hand":  mustCreate(t, tr, "Zone", "zone", "hand"),
		"deck":  mustCreate(t, tr, "Zone", "zone", "deck"),
		"c1":    mustCreate(t, tr, "Card", "card", "c1"),
		"c2":    mustCreate(t, tr, "Card", "card", "c2"),
		"c3":    mustCreate(t, tr, "Card", "card", "c3"),
	}
	mustAdd(t, tr, RootHandle, hs["alice"])
	mustAdd(t, tr, hs["alice"], hs["hand"])
	mustAdd(t, tr, hs["hand"], hs["c1"])
	mustAdd(t, tr, hs["hand"], hs["c2"])
	mustAdd(t, tr, RootHandle, hs["deck"])
	mustAdd(t, tr, hs["deck"], hs["c3"])
	tr.SetProp(hs["c1"], "cost", ir.IRInt(2))
	return tr, hs
}

func TestAddChildIndexesSubtree(t *testing.T) {
	tr := New(testRegistry())
	p := mustCreate(t, tr, "Player", "player", "alice")
	c := mustCreate(t, tr, "Card", "card", "c1")

	// Building a detached subtree does not index it.
	mustAdd(t, tr, p, c)
	_, ok := tr.Get("card", "c1")
	assert.False(t, ok)

	mustAdd(t, tr, RootHandle, p)
	got, ok := tr.Get("card", "c1")
	require.True(t, ok)
	assert.Equal(t, c, got)
	assert.True(t, tr.Reachable(c))
	require.NoError(t, tr.Check())
}

func TestMoveLeavesNoStaleEntries(t *testing.T) {
	tr, hs := buildTree(t)

	mustAdd(t, tr, hs["deck"], hs["hand"])
	require.NoError(t, tr.Check())
	assert.Equal(t, hs["deck"], tr.Parent(hs["hand"]))
	assert.Equal(t, []Handle{hs["c3"], hs["hand"]}, tr.Children(hs["deck"]))
	assert.Empty(t, tr.Children(hs["alice"]))
	assert.Equal(t, "zone/deck/zone/hand/card/c1", tr.Path(hs["c1"]))
}

func TestAddChildOnTop(t *testing.T) {
	tr, hs := buildTree(t)

	require.NoError(t, tr.AddChild(hs["hand"], hs["c3"], true))
	assert.Equal(t, []Handle{hs["c3"], hs["c1"], hs["c2"]}, tr.Children(hs["hand"]))
	require.NoError(t, tr.Check())
}

func TestAddChildRejections(t *testing.T) {
	tr, hs := buildTree(t)

	assert.ErrorIs(t, tr.AddChild(hs["hand"], hs["hand"], false), ErrSelfParent)
	assert.ErrorIs(t, tr.AddChild(hs["hand"], hs["alice"], false), ErrCycle)
	assert.ErrorIs(t, tr.AddChild(hs["c1"], hs["c2"], false), ErrLeaf)

	dup := mustCreate(t, tr, "Card", "card", "c1")
	assert.ErrorIs(t, tr.AddChild(hs["deck"], dup, false), ErrDuplicateKey)

	// Rejections leave the tree untouched.
	require.NoError(t, tr.Check())
	assert.Equal(t, []Handle{hs["c1"], hs["c2"]}, tr.Children(hs["hand"]))
}

func TestAddChildRejectsKeyRepeatedInDetachedSubtree(t *testing.T) {
	tr := New(testRegistry())
	zone := mustCreate(t, tr, "Zone", "zone", "hand")
	inner := mustCreate(t, tr, "Zone", "zone", "pile")
	first := mustCreate(t, tr, "Card", "card", "c1")
	second := mustCreate(t, tr, "Card", "card", "c1")

	// detached subtrees are not checked until they join the root
	mustAdd(t, tr, zone, first)
	mustAdd(t, tr, zone, inner)
	mustAdd(t, tr, inner, second)

	assert.ErrorIs(t, tr.AddChild(RootHandle, zone, false), ErrDuplicateKey)
	assert.False(t, tr.Reachable(zone))
	_, ok := tr.Get("card", "c1")
	assert.False(t, ok)
	require.NoError(t, tr.Check())

	// without the repeat the subtree attaches
	require.NoError(t, tr.Prune(second, true))
	mustAdd(t, tr, RootHandle, zone)
	h, ok := tr.Get("card", "c1")
	require.True(t, ok)
	assert.Equal(t, first, h)
	require.NoError(t, tr.Check())
}

func TestAddChildRejectsParentAndChildSharingKey(t *testing.T) {
	tr := New(testRegistry())
	outer := mustCreate(t, tr, "Zone", "zone", "x")
	inner := mustCreate(t, tr, "Zone", "zone", "x")
	mustAdd(t, tr, outer, inner)

	assert.ErrorIs(t, tr.AddChild(RootHandle, outer, false), ErrDuplicateKey)
	require.NoError(t, tr.Check())
}

func TestPruneDeep(t *testing.T) {
	tr, hs := buildTree(t)

	require.NoError(t, tr.Prune(hs["alice"], true))
	require.NoError(t, tr.Check())

	for _, name := range []string{"alice", "hand", "c1", "c2"} {
		assert.False(t, tr.Reachable(hs[name]), name)
	}
	_, ok := tr.Get("card", "c1")
	assert.False(t, ok)
	assert.Equal(t, NoHandle, tr.Parent(hs["c1"]))
	assert.ErrorIs(t, tr.Prune(RootHandle, true), ErrPruneRoot)
}

func TestPruneShallowRehomesChildren(t *testing.T) {
	tr, hs := buildTree(t)

	require.NoError(t, tr.Prune(hs["hand"], false))
	require.NoError(t, tr.Check())

	assert.False(t, tr.Reachable(hs["hand"]))
	assert.Equal(t, RootHandle, tr.Parent(hs["c1"]))
	assert.Equal(t, RootHandle, tr.Parent(hs["c2"]))
	got, ok := tr.Get("card", "c2")
	require.True(t, ok)
	assert.Equal(t, hs["c2"], got)
}

func TestUnparent(t *testing.T) {
	tr, hs := buildTree(t)

	require.NoError(t, tr.Unparent(hs["c1"]))
	assert.Equal(t, RootHandle, tr.Parent(hs["c1"]))
	require.NoError(t, tr.Check())
}

func TestFindType(t *testing.T) {
	tr, hs := buildTree(t)
	assert.Equal(t, []Handle{hs["c1"], hs["c2"], hs["c3"]}, tr.FindType("card"))
}
