package delta

import (
	"fmt"

	"github.com/unixfreak0037/freeciv-agent/schema"
	"github.com/unixfreak0037/freeciv-agent/wire"
)

// EncodeNonDelta serializes rec according to sch in declaration
// order. sch.HasDelta must be false. This is the only encode path the
// core needs for its own purposes (the join-request packet);
// everything else is provided for round-trip testing of the decoder.
func EncodeNonDelta(sch *schema.PacketSchema, rec schema.DecodedRecord) ([]byte, error) {
	if sch.HasDelta {
		return nil, fmt.Errorf("delta: EncodeNonDelta called on delta schema %d", sch.PacketType)
	}

	var body []byte
	for _, f := range sch.Fields {
		var err error
		body, err = appendFieldValue(body, f, rec[f.Name])
		if err != nil {
			return nil, fmt.Errorf("packet %d field %q: %w", sch.PacketType, f.Name, err)
		}
	}
	return body, nil
}

// EncodeDelta serializes rec as a delta packet. dirty names the
// non-key fields whose bit should be set (payload-present); fields not
// named there are encoded as "reuse baseline" (bit clear, no payload
// bytes), except standalone booleans, whose bit always carries the
// value itself, and array-diff fields, whose bit reflects membership
// in dirty regardless of baseline.
//
// For array-diff fields present in dirty, every element that differs
// from baseline (or, if baseline is nil, from the field's default
// value) is emitted as an index/value pair, terminated by the
// sentinel == Capacity.
func EncodeDelta(sch *schema.PacketSchema, rec schema.DecodedRecord, dirty map[string]bool, baseline schema.DecodedRecord) ([]byte, error) {
	if !sch.HasDelta {
		return nil, fmt.Errorf("delta: EncodeDelta called on non-delta schema %d", sch.PacketType)
	}

	nonKey := sch.NonKeyFields()
	bv := wire.NewBitvector(len(nonKey))

	var payload []byte
	for i, f := range nonKey {
		switch {
		case f.Kind == schema.BOOL:
			if rec[f.Name].(bool) {
				wire.SetBit(bv, i)
			}

		case f.Kind == schema.ARRAY && f.UseDiff:
			if !dirty[f.Name] {
				continue
			}
			wire.SetBit(bv, i)

			var base any
			if baseline != nil {
				base = baseline[f.Name]
			}
			if base == nil {
				base = schema.DefaultValue(f)
			}

			encoded, err := appendArrayDiff(nil, f, base, rec[f.Name])
			if err != nil {
				return nil, fmt.Errorf("packet %d field %q: %w", sch.PacketType, f.Name, err)
			}
			payload = append(payload, encoded...)

		default:
			if !dirty[f.Name] {
				continue
			}
			wire.SetBit(bv, i)

			var err error
			payload, err = appendFieldValue(payload, f, rec[f.Name])
			if err != nil {
				return nil, fmt.Errorf("packet %d field %q: %w", sch.PacketType, f.Name, err)
			}
		}
	}

	body := make([]byte, 0, len(bv)+8+len(payload))
	for _, f := range sch.KeyFields() {
		var err error
		body, err = appendFieldValue(body, f, rec[f.Name])
		if err != nil {
			return nil, fmt.Errorf("packet %d key field %q: %w", sch.PacketType, f.Name, err)
		}
	}
	body = append(body, bv...)
	body = append(body, payload...)

	return body, nil
}

func appendFieldValue(buf []byte, f schema.FieldSchema, v any) ([]byte, error) {
	if f.Kind == schema.ARRAY {
		return appendDenseArray(buf, f, v)
	}
	return appendScalar(buf, f.Kind, v)
}

func appendScalar(buf []byte, kind schema.FieldKind, v any) ([]byte, error) {
	switch kind {
	case schema.U8:
		return wire.AppendU8(buf, v.(uint8)), nil
	case schema.U16:
		return wire.AppendU16(buf, v.(uint16)), nil
	case schema.U32:
		return wire.AppendU32(buf, v.(uint32)), nil
	case schema.S8:
		return wire.AppendS8(buf, v.(int8)), nil
	case schema.S16:
		return wire.AppendS16(buf, v.(int16)), nil
	case schema.S32:
		return wire.AppendS32(buf, v.(int32)), nil
	case schema.BOOL:
		return wire.AppendBool(buf, v.(bool)), nil
	case schema.STRING:
		return wire.AppendString(buf, v.(string)), nil
	default:
		return nil, fmt.Errorf("delta: unsupported scalar kind %v", kind)
	}
}

func appendDenseArray(buf []byte, f schema.FieldSchema, v any) ([]byte, error) {
	switch arr := v.(type) {
	case []uint8:
		for _, e := range arr {
			buf = wire.AppendU8(buf, e)
		}
	case []uint16:
		for _, e := range arr {
			buf = wire.AppendU16(buf, e)
		}
	case []uint32:
		for _, e := range arr {
			buf = wire.AppendU32(buf, e)
		}
	case []int8:
		for _, e := range arr {
			buf = wire.AppendS8(buf, e)
		}
	case []int16:
		for _, e := range arr {
			buf = wire.AppendS16(buf, e)
		}
	case []int32:
		for _, e := range arr {
			buf = wire.AppendS32(buf, e)
		}
	case []bool:
		for _, e := range arr {
			buf = wire.AppendBool(buf, e)
		}
	case []string:
		for _, e := range arr {
			buf = wire.AppendString(buf, e)
		}
	default:
		return nil, fmt.Errorf("delta: unsupported array element kind %v", f.ElementKind)
	}
	return buf, nil
}

func appendIndex(buf []byte, f schema.FieldSchema, idx int) []byte {
	if f.IndexWidth() == 1 {
		return wire.AppendU8(buf, uint8(idx))
	}
	return wire.AppendU16(buf, uint16(idx))
}

func appendArrayDiff(buf []byte, f schema.FieldSchema, base, current any) ([]byte, error) {
	diffed := func(idx int) ([]byte, bool, error) {
		switch b := base.(type) {
		case []uint8:
			c := current.([]uint8)
			if b[idx] == c[idx] {
				return nil, false, nil
			}
			out := appendIndex(nil, f, idx)
			return wire.AppendU8(out, c[idx]), true, nil
		case []uint16:
			c := current.([]uint16)
			if b[idx] == c[idx] {
				return nil, false, nil
			}
			out := appendIndex(nil, f, idx)
			return wire.AppendU16(out, c[idx]), true, nil
		case []uint32:
			c := current.([]uint32)
			if b[idx] == c[idx] {
				return nil, false, nil
			}
			out := appendIndex(nil, f, idx)
			return wire.AppendU32(out, c[idx]), true, nil
		case []int8:
			c := current.([]int8)
			if b[idx] == c[idx] {
				return nil, false, nil
			}
			out := appendIndex(nil, f, idx)
			return wire.AppendS8(out, c[idx]), true, nil
		case []int16:
			c := current.([]int16)
			if b[idx] == c[idx] {
				return nil, false, nil
			}
			out := appendIndex(nil, f, idx)
			return wire.AppendS16(out, c[idx]), true, nil
		case []int32:
			c := current.([]int32)
			if b[idx] == c[idx] {
				return nil, false, nil
			}
			out := appendIndex(nil, f, idx)
			return wire.AppendS32(out, c[idx]), true, nil
		case []bool:
			c := current.([]bool)
			if b[idx] == c[idx] {
				return nil, false, nil
			}
			out := appendIndex(nil, f, idx)
			return wire.AppendBool(out, c[idx]), true, nil
		case []string:
			c := current.([]string)
			if b[idx] == c[idx] {
				return nil, false, nil
			}
			out := appendIndex(nil, f, idx)
			return wire.AppendString(out, c[idx]), true, nil
		default:
			return nil, false, fmt.Errorf("delta: unsupported array-diff baseline type %T", base)
		}
	}

	for idx := 0; idx < f.Capacity; idx++ {
		entry, changed, err := diffed(idx)
		if err != nil {
			return nil, err
		}
		if changed {
			buf = append(buf, entry...)
		}
	}

	buf = appendIndex(buf, f, f.Capacity) // sentinel
	return buf, nil
}
