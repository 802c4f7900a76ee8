package dmap

// Kind classifies how a tag's payload is interpreted (spec.md §3 "DMAP
// node").
type Kind int

const (
	KindContainer Kind = iota
	KindUint
	KindInt
	KindString
	KindBytes
	KindDate
)

// tagDef describes one known four-byte ASCII tag.
type tagDef struct {
	kind  Kind
	width int // byte width for Uint/Int; ignored otherwise
}

// tagDefs is the fixed set of tags the core cares about. Unknown tags fall
// back to raw bytes (spec.md §4.F); this set only needs to cover what the
// DAAP projection helpers and device metadata actually read.
var tagDefs = map[string]tagDef{
	"mlcl": {kind: KindContainer},
	"mlit": {kind: KindContainer},
	"mlog": {kind: KindContainer},
	"cmst": {kind: KindContainer},
	"caps": {kind: KindUint, width: 1},
	"cash": {kind: KindUint, width: 4},
	"cant": {kind: KindUint, width: 4},
	"cast": {kind: KindUint, width: 4},
	"mstt": {kind: KindUint, width: 4},
	"mlid": {kind: KindUint, width: 4},
	"miid": {kind: KindUint, width: 4},
	"mikd": {kind: KindUint, width: 1},
	"minm": {kind: KindString},
	"asar": {kind: KindString},
	"asal": {kind: KindString},
	"cann": {kind: KindString},
	"cana": {kind: KindString},
	"canl": {kind: KindString},
	"cmmk": {kind: KindUint, width: 4},
	"cmpr": {kind: KindUint, width: 1},
	"capr": {kind: KindUint, width: 1},
	"cavc": {kind: KindUint, width: 1},
	"cavs": {kind: KindUint, width: 1},
	"mper": {kind: KindUint, width: 8},
	"astm": {kind: KindUint, width: 4},
	"msrv": {kind: KindContainer},
}

func definitionFor(tag string) tagDef {
	if def, ok := tagDefs[tag]; ok {
		return def
	}
	return tagDef{kind: KindBytes}
}
