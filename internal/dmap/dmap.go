// Package dmap implements Apple's DMAP binary tag-length-value format:
// recursive container/leaf decoding, encoding of leaves for round-trip
// tests, and a small lookup/pretty-print surface for daap's projection
// helpers (spec.md §4.F). Grounded on internal/packet's big-endian
// reader/writer, the same primitives the teacher's RTP/RTCP codecs use for
// fixed-width header fields, generalized here to a recursive tag/length
// container format.
package dmap

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/lanikai/atvkit/internal/logging"
	"github.com/lanikai/atvkit/internal/packet"
)

var log = logging.DefaultLogger.WithTag(logging.TagDMAP)

const headerSize = 4 + 4 // 4-byte ASCII tag + uint32 big-endian length

// Node is one element of a decoded DMAP tree (spec.md §3).
type Node struct {
	Tag      string
	Kind     Kind
	Children []Node // KindContainer
	Uint     uint64 // KindUint
	Int      int64  // KindInt
	Str      string // KindString
	Bytes    []byte // KindBytes, and the raw payload backing every kind
	Date     time.Time
	Width    int // byte width of Uint/Int payload (1, 2, 4, or 8)
}

// Decode parses a full DMAP byte stream into a forest of top-level nodes.
func Decode(data []byte) ([]Node, error) {
	r := packet.NewReader(data)
	var nodes []Node
	for r.Remaining() > 0 {
		n, err := decodeOne(r)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func decodeOne(r *packet.Reader) (Node, error) {
	if err := r.CheckRemaining(headerSize); err != nil {
		return Node{}, errors.Wrap(err, "dmap: truncated header")
	}
	tag := string(r.ReadSlice(4))
	length := r.ReadUint32()
	if err := r.CheckRemaining(int(length)); err != nil {
		return Node{}, errors.Wrapf(err, "dmap: truncated payload for tag %q", tag)
	}
	payload := r.ReadSlice(int(length))

	def := definitionFor(tag)
	n := Node{Tag: tag, Kind: def.kind, Bytes: payload, Width: len(payload)}

	switch def.kind {
	case KindContainer:
		children, err := Decode(payload)
		if err != nil {
			return Node{}, errors.Wrapf(err, "dmap: decoding container %q", tag)
		}
		n.Children = children
	case KindUint:
		n.Uint = decodeUint(payload)
	case KindInt:
		n.Int = int64(decodeUint(payload))
	case KindString:
		n.Str = string(payload)
	case KindDate:
		n.Date = time.Unix(int64(decodeUint(payload)), 0).UTC()
	case KindBytes:
		log.Debug("dmap: unknown tag %q preserved as %d raw bytes", tag, len(payload))
	}
	return n, nil
}

func decodeUint(payload []byte) uint64 {
	r := packet.NewReader(payload)
	switch len(payload) {
	case 1:
		return uint64(r.ReadByte())
	case 2:
		return uint64(r.ReadUint16())
	case 4:
		return uint64(r.ReadUint32())
	case 8:
		return r.ReadUint64()
	default:
		var v uint64
		for _, b := range payload {
			v = v<<8 | uint64(b)
		}
		return v
	}
}

// Encode writes a forest of nodes back to DMAP wire format. Used by tests to
// exercise the round-trip property on leaves (spec.md §8, property 2); not
// part of the client's runtime request path (DAAP only ever decodes).
func Encode(nodes []Node) []byte {
	payloads := make([][]byte, len(nodes))
	size := 0
	for i, n := range nodes {
		payloads[i] = payloadFor(n)
		size += headerSize + len(payloads[i])
	}

	w := packet.NewWriterSize(size)
	for i, n := range nodes {
		w.WriteSlice([]byte(n.Tag))
		w.WriteUint32(uint32(len(payloads[i])))
		w.WriteSlice(payloads[i])
	}
	return w.Bytes()
}

func payloadFor(n Node) []byte {
	switch n.Kind {
	case KindContainer:
		return Encode(n.Children)
	case KindUint:
		return encodeUint(n.Uint, n.Width)
	case KindInt:
		return encodeUint(uint64(n.Int), n.Width)
	case KindString:
		return []byte(n.Str)
	case KindDate:
		return encodeUint(uint64(n.Date.Unix()), 4)
	default:
		return n.Bytes
	}
}

func encodeUint(v uint64, width int) []byte {
	if width == 0 {
		width = 4
	}
	out := make([]byte, width)
	for i := width - 1; i >= 0; i-- {
		out[i] = byte(v)
		v >>= 8
	}
	return out
}

// First returns the node at the given tag path, descending at each level
// into the first node whose tag matches, or (Node{}, false) if that descent
// does not reach the full path (spec.md §4.F). Later siblings with the same
// tag are not searched.
func First(nodes []Node, path ...string) (Node, bool) {
	if len(path) == 0 {
		return Node{}, false
	}
	for _, n := range nodes {
		if n.Tag != path[0] {
			continue
		}
		if len(path) == 1 {
			return n, true
		}
		return First(n.Children, path[1:]...)
	}
	return Node{}, false
}

// Pprint renders an indented, human-readable tree for debug logging only
// (spec.md §4.F).
func Pprint(nodes []Node) string {
	var b strings.Builder
	pprintLevel(&b, nodes, 0)
	return b.String()
}

func pprintLevel(b *strings.Builder, nodes []Node, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, n := range nodes {
		switch n.Kind {
		case KindContainer:
			fmt.Fprintf(b, "%s%s:\n", indent, n.Tag)
			pprintLevel(b, n.Children, depth+1)
		case KindUint:
			fmt.Fprintf(b, "%s%s = %d\n", indent, n.Tag, n.Uint)
		case KindInt:
			fmt.Fprintf(b, "%s%s = %d\n", indent, n.Tag, n.Int)
		case KindString:
			fmt.Fprintf(b, "%s%s = %q\n", indent, n.Tag, n.Str)
		case KindDate:
			fmt.Fprintf(b, "%s%s = %s\n", indent, n.Tag, n.Date.Format(time.RFC3339))
		default:
			fmt.Fprintf(b, "%s%s = % x\n", indent, n.Tag, n.Bytes)
		}
	}
}
