// Package tlv implements the tag-length-value byte encoding used by the MRP
// pairing handshake: one byte tag, one byte length, followed by that many
// payload bytes. Values longer than 255 bytes are split across consecutive
// records sharing the same tag; Decode concatenates them back together.
package tlv

import (
	"github.com/lanikai/atvkit/internal/packet"
	"github.com/pkg/errors"
)

const maxChunk = 255

// Encode serializes a tag->value mapping into the wire format, splitting any
// value longer than 255 bytes into multiple same-tag records.
func Encode(fields map[byte][]byte) []byte {
	size := 0
	for tag, value := range fields {
		size += recordedSize(tag, value)
	}

	w := packet.NewWriterSize(size)
	for tag, value := range fields {
		writeChunked(w, tag, value)
	}
	return w.Bytes()
}

// EncodeOrdered is like Encode but writes fields in the given tag order,
// useful for producing byte-identical output in tests against recorded wire
// captures.
func EncodeOrdered(order []byte, fields map[byte][]byte) []byte {
	size := 0
	for _, tag := range order {
		if value, ok := fields[tag]; ok {
			size += recordedSize(tag, value)
		}
	}

	w := packet.NewWriterSize(size)
	for _, tag := range order {
		if value, ok := fields[tag]; ok {
			writeChunked(w, tag, value)
		}
	}
	return w.Bytes()
}

func recordedSize(tag byte, value []byte) int {
	n := len(value)
	if n == 0 {
		return 2
	}
	chunks := (n + maxChunk - 1) / maxChunk
	return chunks*2 + n
}

func writeChunked(w *packet.Writer, tag byte, value []byte) {
	if len(value) == 0 {
		w.WriteByte(tag)
		w.WriteByte(0)
		return
	}
	for len(value) > 0 {
		n := len(value)
		if n > maxChunk {
			n = maxChunk
		}
		w.WriteByte(tag)
		w.WriteByte(byte(n))
		w.WriteSlice(value[:n])
		value = value[n:]
	}
}

// Decode parses the wire format back into a tag->value mapping. A record
// whose payload was exactly 255 bytes is concatenated with the next record
// of the same tag, so long values round-trip through Encode/Decode.
func Decode(data []byte) (map[byte][]byte, error) {
	r := packet.NewReader(data)
	fields := make(map[byte][]byte)
	lastTag := byte(0)
	lastWasFull := false

	for r.Remaining() > 0 {
		if err := r.CheckRemaining(2); err != nil {
			return nil, errors.Wrap(err, "tlv: truncated record header")
		}
		tag := r.ReadByte()
		length := int(r.ReadByte())
		if err := r.CheckRemaining(length); err != nil {
			return nil, errors.Wrap(err, "tlv: truncated record payload")
		}
		payload := r.ReadSlice(length)

		if lastWasFull && tag == lastTag {
			fields[tag] = append(fields[tag], payload...)
		} else {
			// A record that does not continue a full chunk starts a fresh
			// value for its tag. Unknown tags are kept like known ones; an
			// earlier value for the same tag is replaced.
			buf := make([]byte, length)
			copy(buf, payload)
			fields[tag] = buf
		}

		lastTag = tag
		lastWasFull = length == maxChunk
	}

	return fields, nil
}
