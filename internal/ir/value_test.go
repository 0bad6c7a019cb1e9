package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortedKeysUTF16(t *testing.T) {
	// U+FFFF sorts after U+10000 in UTF-16 code units, the opposite of UTF-8.
	obj := IRObject{"\uffff": IRInt(1), "\U00010000": IRInt(2), "a": IRInt(3)}
	assert.Equal(t, []string{"a", "\U00010000", "\uffff"}, obj.SortedKeys())
}

func TestCloneIsDeep(t *testing.T) {
	orig := IRObject{
		"resources": IRObject{"gold": IRInt(1)},
		"tags":      IRArray{IRString("a")},
	}
	cp := orig.Clone()
	cp["resources"].(IRObject)["gold"] = IRInt(9)
	cp["tags"] = append(cp["tags"].(IRArray), IRString("b"))

	assert.Equal(t, IRInt(1), orig.Object("resources")["gold"])
	assert.Len(t, orig.Array("tags"), 1)
	assert.False(t, Equal(orig, cp))
	assert.True(t, Equal(orig, orig.Clone()))
}

func TestObjectAccessors(t *testing.T) {
	obj := O("supply", 3, "name", "north", "open", true, "nested", map[string]any{"x": 1})

	assert.Equal(t, int64(3), obj.Int("supply", 0))
	assert.Equal(t, int64(7), obj.Int("missing", 7))
	assert.Equal(t, "north", obj.String("name"))
	assert.True(t, obj.Bool("open"))
	assert.Equal(t, int64(1), obj.Object("nested").Int("x", 0))
	assert.Nil(t, obj.Array("name"))
}

func TestFromAnyRejectsFractions(t *testing.T) {
	v, err := FromAny(float64(4))
	require.NoError(t, err)
	assert.Equal(t, IRInt(4), v)

	_, err = FromAny(4.5)
	assert.Error(t, err)

	_, err = FromAny(struct{}{})
	assert.Error(t, err)
}

func TestJSONDecodeRoundTrip(t *testing.T) {
	src := `{"b":[1,"two",true,null],"a":{"n":-5}}`

	var obj IRObject
	require.NoError(t, json.Unmarshal([]byte(src), &obj))

	assert.Equal(t, IRInt(-5), obj.Object("a")["n"])
	assert.Equal(t, IRNull{}, obj.Array("b")[3])

	out, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Equal(t, `{"a":{"n":-5},"b":[1,"two",true,null]}`, string(out))
}

func TestJSONDecodeRejectsFloats(t *testing.T) {
	var obj IRObject
	err := json.Unmarshal([]byte(`{"x":1.25}`), &obj)
	assert.ErrorContains(t, err, "floats are forbidden")
}

func TestToAny(t *testing.T) {
	v := ToAny(IRObject{"a": IRArray{IRInt(1), IRBool(false)}})
	assert.Equal(t, map[string]any{"a": []any{int64(1), false}}, v)
}
