package delta

import (
	"fmt"

	"github.com/unixfreak0037/freeciv-agent/schema"
	"github.com/unixfreak0037/freeciv-agent/wire"
)

// decodeArrayDiff implements the array-diff subdecode: a
// working copy of baseline is produced, then (index, value) pairs are
// read and overwrite slots in the copy until the sentinel (== Capacity)
// is read. Index width is 1 byte for Capacity <= 255, big-endian
// 2 bytes otherwise.
func decodeArrayDiff(f schema.FieldSchema, body []byte, offset int, baseline any) (any, int, error) {
	working := cloneArray(baseline, f)

	for {
		idx, next, err := readIndex(f, body, offset)
		if err != nil {
			return nil, offset, err
		}
		offset = next

		if idx == f.Capacity {
			return working, offset, nil
		}
		if idx > f.Capacity {
			return nil, offset, fmt.Errorf("%w: index %d exceeds capacity %d", ErrArrayIndexOutOfRange, idx, f.Capacity)
		}

		next, err = decodeArrayElement(f.ElementKind, body, offset, working, idx)
		if err != nil {
			return nil, offset, err
		}
		offset = next
	}
}

func readIndex(f schema.FieldSchema, body []byte, offset int) (int, int, error) {
	if f.IndexWidth() == 1 {
		v, next, err := wire.ReadU8(body, offset)
		return int(v), next, err
	}
	v, next, err := wire.ReadU16(body, offset)
	return int(v), next, err
}

// decodeArrayElement decodes one element of ElementKind at offset and
// overwrites working[idx] in place.
func decodeArrayElement(elem schema.FieldKind, body []byte, offset int, working any, idx int) (int, error) {
	switch elem {
	case schema.U8:
		v, next, err := wire.ReadU8(body, offset)
		if err == nil {
			working.([]uint8)[idx] = v
		}
		return next, err
	case schema.U16:
		v, next, err := wire.ReadU16(body, offset)
		if err == nil {
			working.([]uint16)[idx] = v
		}
		return next, err
	case schema.U32:
		v, next, err := wire.ReadU32(body, offset)
		if err == nil {
			working.([]uint32)[idx] = v
		}
		return next, err
	case schema.S8:
		v, next, err := wire.ReadS8(body, offset)
		if err == nil {
			working.([]int8)[idx] = v
		}
		return next, err
	case schema.S16:
		v, next, err := wire.ReadS16(body, offset)
		if err == nil {
			working.([]int16)[idx] = v
		}
		return next, err
	case schema.S32:
		v, next, err := wire.ReadS32(body, offset)
		if err == nil {
			working.([]int32)[idx] = v
		}
		return next, err
	case schema.BOOL:
		v, next, err := wire.ReadBool(body, offset)
		if err == nil {
			working.([]bool)[idx] = v
		}
		return next, err
	case schema.STRING:
		v, next, err := wire.ReadString(body, offset)
		if err == nil {
			working.([]string)[idx] = v
		}
		return next, err
	default:
		return offset, fmt.Errorf("delta: unsupported array-diff element kind %v", elem)
	}
}

func cloneArray(v any, f schema.FieldSchema) any {
	switch s := v.(type) {
	case []uint8:
		return append([]uint8(nil), s...)
	case []uint16:
		return append([]uint16(nil), s...)
	case []uint32:
		return append([]uint32(nil), s...)
	case []int8:
		return append([]int8(nil), s...)
	case []int16:
		return append([]int16(nil), s...)
	case []int32:
		return append([]int32(nil), s...)
	case []bool:
		return append([]bool(nil), s...)
	case []string:
		return append([]string(nil), s...)
	default:
		// No baseline was present for this field (fresh cache entry
		// with no prior Put covering it); fall back to the field's
		// zero-valued array of the declared capacity.
		return schema.DefaultValue(f)
	}
}
