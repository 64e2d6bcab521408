package dtx

import (
	"encoding/binary"

	"github.com/nsdtx/dtx/pkg/dtx/archive"
)

// auxMagic is the constant that opens every auxiliary blob (spec.md §3).
const auxMagic uint32 = 0x1f0

// Auxiliary entry type tags (spec.md §3). OBJECT and INT64 are required;
// INT32 is an additional primitive tag the codec tolerates on decode.
const (
	auxTagInt32  uint32 = 3
	auxTagObject uint32 = 2
	auxTagInt64  uint32 = 4
)

// AuxEntry is one decoded positional argument from an auxiliary blob. It is
// exactly one of an int64, an int32, or an Object (a keyed-archive decoded
// value).
type AuxEntry struct {
	// Int64 and Int32 are set for INT64/INT32 entries (tag-dependent; only
	// one of Int64Set/Int32Set/IsObject is true for a given entry).
	Int64    int64
	Int32    int32
	Object   interface{}
	Int64Set bool
	Int32Set bool
	IsObject bool
}

// Builder accumulates positional auxiliary arguments the way the
// original's MessageAux helper does (AppendObj/AppendInt), in the order
// they must appear on the wire.
type Builder struct {
	entries []AuxEntry
}

// NewBuilder returns an empty auxiliary argument builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AppendObject appends a keyed-archive-encodable object argument (string,
// number, bool, map, list, or nil).
func (b *Builder) AppendObject(v interface{}) *Builder {
	b.entries = append(b.entries, AuxEntry{IsObject: true, Object: v})
	return b
}

// AppendInt64 appends a signed 64-bit integer argument.
func (b *Builder) AppendInt64(v int64) *Builder {
	b.entries = append(b.entries, AuxEntry{Int64Set: true, Int64: v})
	return b
}

// Entries returns the accumulated entries, in append order.
func (b *Builder) Entries() []AuxEntry {
	return b.entries
}

// encodeAux serializes entries into the auxiliary blob format of spec.md
// §3: magic, length, then one {type,value} pair per entry.
func encodeAux(entries []AuxEntry) ([]byte, error) {
	if len(entries) == 0 {
		return nil, nil
	}
	var body []byte
	for _, e := range entries {
		switch {
		case e.IsObject:
			obj, err := archive.Encode(e.Object)
			if err != nil {
				return nil, err
			}
			tagLen := make([]byte, 8)
			binary.LittleEndian.PutUint32(tagLen[0:4], auxTagObject)
			binary.LittleEndian.PutUint32(tagLen[4:8], uint32(len(obj)))
			body = append(body, tagLen...)
			body = append(body, obj...)
		case e.Int64Set:
			buf := make([]byte, 12)
			binary.LittleEndian.PutUint32(buf[0:4], auxTagInt64)
			binary.LittleEndian.PutUint64(buf[4:12], uint64(e.Int64))
			body = append(body, buf...)
		case e.Int32Set:
			buf := make([]byte, 8)
			binary.LittleEndian.PutUint32(buf[0:4], auxTagInt32)
			binary.LittleEndian.PutUint32(buf[4:8], uint32(e.Int32))
			body = append(body, buf...)
		}
	}
	out := make([]byte, 8, 8+len(body))
	binary.LittleEndian.PutUint32(out[0:4], auxMagic)
	binary.LittleEndian.PutUint32(out[4:8], uint32(len(body)))
	out = append(out, body...)
	return out, nil
}

// decodeAux parses an auxiliary blob back into entries, dispatching OBJECT
// entries through reg so a session-scoped registry (dtx.WithRegistry) sees
// classes embedded in auxiliary arguments, not just top-level return
// values. Unknown tags fail loudly, per spec.md §3 ("decoding must
// tolerate unknown tags only by failing loudly").
func decodeAux(b []byte, reg *archive.Registry) ([]AuxEntry, error) {
	if len(b) < 8 {
		return nil, &FrameError{Reason: "auxiliary blob shorter than header"}
	}
	magic := binary.LittleEndian.Uint32(b[0:4])
	if magic != auxMagic {
		return nil, &FrameError{Reason: "auxiliary blob has wrong magic"}
	}
	length := binary.LittleEndian.Uint32(b[4:8])
	body := b[8:]
	if uint32(len(body)) < length {
		return nil, &FrameError{Reason: "auxiliary blob shorter than declared length"}
	}
	body = body[:length]

	var entries []AuxEntry
	for len(body) > 0 {
		if len(body) < 4 {
			return nil, &FrameError{Reason: "truncated auxiliary entry tag"}
		}
		tag := binary.LittleEndian.Uint32(body[0:4])
		body = body[4:]
		switch tag {
		case auxTagObject:
			if len(body) < 4 {
				return nil, &FrameError{Reason: "truncated auxiliary OBJECT length"}
			}
			objLen := binary.LittleEndian.Uint32(body[0:4])
			body = body[4:]
			if uint32(len(body)) < objLen {
				return nil, &FrameError{Reason: "truncated auxiliary OBJECT payload"}
			}
			raw := body[:objLen]
			body = body[objLen:]
			v, err := archive.DecodeWithRegistry(raw, reg)
			if err != nil {
				return nil, err
			}
			entries = append(entries, AuxEntry{IsObject: true, Object: v})
		case auxTagInt64:
			if len(body) < 8 {
				return nil, &FrameError{Reason: "truncated auxiliary INT64"}
			}
			v := int64(binary.LittleEndian.Uint64(body[0:8]))
			body = body[8:]
			entries = append(entries, AuxEntry{Int64Set: true, Int64: v})
		case auxTagInt32:
			if len(body) < 4 {
				return nil, &FrameError{Reason: "truncated auxiliary INT32"}
			}
			v := int32(binary.LittleEndian.Uint32(body[0:4]))
			body = body[4:]
			entries = append(entries, AuxEntry{Int32Set: true, Int32: v})
		default:
			return nil, &FrameError{Reason: "unknown auxiliary entry tag"}
		}
	}
	return entries, nil
}
