package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/tabletop/internal/ir"
)

func TestSerializeTiers(t *testing.T) {
	tr, hs := buildTree(t)
	tr.SetHidden(hs["c2"], true)

	lite := tr.LiteSerialize(hs["c1"])
	assert.Equal(t, ir.IRObject{"class": ir.IRString("Card"), "type": ir.IRString("card"), "id": ir.IRString("c1")}, lite)

	consts := tr.ConstSerialize(hs["c1"])
	assert.Equal(t, ir.IRString("player/alice/zone/hand/card/c1"), consts["$path"])
	assert.Equal(t, ir.IRInt(4), consts["$cost"])

	full := tr.Serialize(hs["hand"], false)
	kids := full.Array(FieldChildren)
	require.Len(t, kids, 2)
	assert.Equal(t, ir.IRInt(4), kids[0].(ir.IRObject)["$cost"])
	assert.True(t, kids[1].(ir.IRObject).Bool(FieldHidden))

	liteTree := tr.Serialize(hs["hand"], true)
	_, hasConst := liteTree.Array(FieldChildren)[0].(ir.IRObject)["$cost"]
	assert.False(t, hasConst)
}

func TestRoundTripOnFreshTree(t *testing.T) {
	tr, _ := buildTree(t)
	want := tr.Serialize(RootHandle, false)

	fresh := New(testRegistry())
	require.NoError(t, fresh.Parse(RootHandle, tr.Serialize(RootHandle, true), true))
	require.NoError(t, fresh.Check())

	wantBytes, err := ir.MarshalCanonical(want)
	require.NoError(t, err)
	gotBytes, err := ir.MarshalCanonical(fresh.Serialize(RootHandle, false))
	require.NoError(t, err)
	assert.Equal(t, string(wantBytes), string(gotBytes))
}

func TestParseReconcilesInPlace(t *testing.T) {
	tr, hs := buildTree(t)
	before := tr.Serialize(RootHandle, true)

	// Scramble: move a card, drop another, add a node, change a prop.
	mustAdd(t, tr, hs["deck"], hs["c1"])
	require.NoError(t, tr.Prune(hs["c2"], true))
	extra := mustCreate(t, tr, "Card", "card", "c9")
	mustAdd(t, tr, hs["alice"], extra)
	tr.SetProp(hs["c3"], "cost", ir.IRInt(7))

	require.NoError(t, tr.Parse(RootHandle, before, true))
	require.NoError(t, tr.Check())

	assert.True(t, ir.Equal(before, tr.Serialize(RootHandle, true)))
	// Surviving nodes keep their handles.
	got, _ := tr.Get("card", "c1")
	assert.Equal(t, hs["c1"], got)
	assert.False(t, tr.Reachable(extra))
}

func TestParseIgnoresConstFields(t *testing.T) {
	tr, _ := buildTree(t)
	full := tr.Serialize(RootHandle, false)

	fresh := New(testRegistry())
	require.NoError(t, fresh.Parse(RootHandle, full, true))
	h, ok := fresh.Get("card", "c1")
	require.True(t, ok)
	_, has := fresh.Prop(h, "$cost")
	assert.False(t, has)
}

func TestParseErrors(t *testing.T) {
	tr, _ := buildTree(t)
	snap := tr.Serialize(RootHandle, true)

	t.Run("missing without create", func(t *testing.T) {
		fresh := New(testRegistry())
		assert.ErrorIs(t, fresh.Parse(RootHandle, snap, false), ErrMissingNode)
	})

	t.Run("unregistered class", func(t *testing.T) {
		fresh := New(NewRegistry())
		assert.ErrorIs(t, fresh.Parse(RootHandle, snap, true), ErrUnregisteredClass)
	})

	t.Run("class mismatch", func(t *testing.T) {
		bad := snap.Clone()
		alice := bad.Array(FieldChildren)[0].(ir.IRObject)
		alice[FieldClass] = ir.IRString("Zone")
		assert.ErrorIs(t, tr.Parse(RootHandle, bad, true), ErrMismatch)
	})

	t.Run("root identity mismatch", func(t *testing.T) {
		assert.ErrorIs(t, tr.Parse(RootHandle, ir.IRObject{
			"class": ir.IRString("Root"), "type": ir.IRString("root"), "id": ir.IRString("other"),
		}, true), ErrMismatch)
	})

	t.Run("repeated key into detached node", func(t *testing.T) {
		fresh := New(testRegistry())
		zone := mustCreate(t, fresh, "Zone", "zone", "hand")
		card := func() ir.IRObject {
			return ir.IRObject{"class": ir.IRString("Card"), "type": ir.IRString("card"), "id": ir.IRString("c1")}
		}
		err := fresh.Parse(zone, ir.IRObject{
			"class": ir.IRString("Zone"), "type": ir.IRString("zone"), "id": ir.IRString("hand"),
			"children": ir.IRArray{
				card(),
				ir.IRObject{
					"class": ir.IRString("Zone"), "type": ir.IRString("zone"), "id": ir.IRString("pile"),
					"children": ir.IRArray{card()},
				},
			},
		}, true)
		assert.ErrorIs(t, err, ErrDuplicateKey)
		assert.Empty(t, fresh.Children(zone))
	})

	t.Run("repeated key under root", func(t *testing.T) {
		bad := snap.Clone()
		kids := bad.Array(FieldChildren)
		bad[FieldChildren] = append(kids, kids[1])
		assert.ErrorIs(t, tr.Parse(RootHandle, bad, true), ErrDuplicateKey)
		require.NoError(t, tr.Check())
	})

	t.Run("malformed child", func(t *testing.T) {
		fresh := New(testRegistry())
		err := fresh.Parse(RootHandle, ir.IRObject{
			"class": ir.IRString("Root"), "type": ir.IRString("root"), "id": ir.IRString("root"),
			"children": ir.IRArray{ir.IRString("nope")},
		}, true)
		assert.ErrorIs(t, err, ErrMalformed)
	})
}
