package dmap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeLeafUint(t *testing.T) {
	// mstt = 200, a 4-byte unsigned leaf.
	data := Encode([]Node{{Tag: "mstt", Kind: KindUint, Uint: 200, Width: 4}})
	nodes, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, uint64(200), nodes[0].Uint)
	assert.Equal(t, "mstt", nodes[0].Tag)
}

func TestRoundTripEveryLeafKind(t *testing.T) {
	cases := []Node{
		{Tag: "caps", Kind: KindUint, Uint: 4, Width: 1},
		{Tag: "mper", Kind: KindUint, Uint: 123456789012, Width: 8},
		{Tag: "minm", Kind: KindString, Str: "Living Room"},
		{Tag: "asdf", Kind: KindBytes, Bytes: []byte{0xDE, 0xAD, 0xBE, 0xEF}},
	}
	for _, c := range cases {
		data := Encode([]Node{c})
		nodes, err := Decode(data)
		require.NoError(t, err)
		require.Len(t, nodes, 1)
		got := nodes[0]
		switch c.Kind {
		case KindUint:
			assert.Equal(t, c.Uint, got.Uint, c.Tag)
		case KindString:
			assert.Equal(t, c.Str, got.Str, c.Tag)
		case KindBytes:
			assert.Equal(t, c.Bytes, got.Bytes, c.Tag)
		}
	}
}

func TestDecodeNestedContainer(t *testing.T) {
	inner := []Node{{Tag: "mlid", Kind: KindUint, Uint: 42, Width: 4}}
	data := Encode([]Node{{Tag: "mlog", Kind: KindContainer, Children: inner}})

	nodes, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	require.Len(t, nodes[0].Children, 1)
	assert.Equal(t, uint64(42), nodes[0].Children[0].Uint)
}

func TestFirstFindsNestedPath(t *testing.T) {
	inner := []Node{{Tag: "mlid", Kind: KindUint, Uint: 7, Width: 4}}
	nodes := []Node{{Tag: "mlog", Kind: KindContainer, Children: inner}}

	found, ok := First(nodes, "mlog", "mlid")
	require.True(t, ok)
	assert.Equal(t, uint64(7), found.Uint)

	_, ok = First(nodes, "mlog", "nope")
	assert.False(t, ok)
}

func TestUnknownTagPreservedAsBytes(t *testing.T) {
	data := Encode([]Node{{Tag: "zzzz", Kind: KindBytes, Bytes: []byte("hello")}})
	nodes, err := Decode(data)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, KindBytes, nodes[0].Kind)
	assert.Equal(t, []byte("hello"), nodes[0].Bytes)
}

func TestDecodeTruncatedPayloadFails(t *testing.T) {
	data := Encode([]Node{{Tag: "minm", Kind: KindString, Str: "hello"}})
	_, err := Decode(data[:len(data)-2])
	assert.Error(t, err)
}

func TestPprintIncludesTagsAndValues(t *testing.T) {
	nodes := []Node{{Tag: "minm", Kind: KindString, Str: "Office"}}
	out := Pprint(nodes)
	assert.Contains(t, out, "minm")
	assert.Contains(t, out, "Office")
}
