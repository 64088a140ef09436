// Package schema holds the declarative, registration-based packet
// schema table: the static mapping from a packet type number to the
// ordered field list that describes how its body is laid out on the
// wire, which fields participate in the delta cache key, and which
// fields are arrays (dense or array-diff).
package schema

import "fmt"

// FieldKind is the closed set of scalar and array field kinds a
// packet field can have.
type FieldKind int

const (
	U8 FieldKind = iota + 1
	U16
	U32
	S8
	S16
	S32
	BOOL
	STRING
	ARRAY
)

func (k FieldKind) String() string {
	switch k {
	case U8:
		return "U8"
	case U16:
		return "U16"
	case U32:
		return "U32"
	case S8:
		return "S8"
	case S16:
		return "S16"
	case S32:
		return "S32"
	case BOOL:
		return "BOOL"
	case STRING:
		return "STRING"
	case ARRAY:
		return "ARRAY"
	default:
		return fmt.Sprintf("FieldKind(%d)", int(k))
	}
}

// FieldSchema describes one field of a packet.
type FieldSchema struct {
	Name  string
	Kind  FieldKind
	IsKey bool

	// ElementKind, Capacity and UseDiff apply only when Kind == ARRAY.
	ElementKind FieldKind
	Capacity    int
	UseDiff     bool
}

// IndexWidth returns the byte width of array-diff indices for this
// field's declared capacity: 1 byte for capacity <= 255, 2 bytes
// otherwise. Only meaningful when Kind == ARRAY && UseDiff.
func (f FieldSchema) IndexWidth() int {
	if f.Capacity <= 255 {
		return 1
	}
	return 2
}

// PacketSchema describes the full wire layout of one packet type.
type PacketSchema struct {
	PacketType uint16
	HasDelta   bool
	Fields     []FieldSchema
}

// KeyFields returns the fields marked as cache keys, in declaration
// order. Key fields are transmitted unconditionally and precede
// non-key fields on the wire regardless of their position in Fields.
func (p *PacketSchema) KeyFields() []FieldSchema {
	var out []FieldSchema
	for _, f := range p.Fields {
		if f.IsKey {
			out = append(out, f)
		}
	}
	return out
}

// NonKeyFields returns the non-key fields, in declaration order. The
// index of a field within this slice is its bit index in the delta
// bitvector.
func (p *PacketSchema) NonKeyFields() []FieldSchema {
	var out []FieldSchema
	for _, f := range p.Fields {
		if !f.IsKey {
			out = append(out, f)
		}
	}
	return out
}

// BitvectorBitCount is the number of non-key fields, i.e. the number
// of bits the delta bitvector must carry.
func (p *PacketSchema) BitvectorBitCount() int {
	return len(p.NonKeyFields())
}

// BitvectorByteCount is ceil(BitvectorBitCount / 8).
func (p *PacketSchema) BitvectorByteCount() int {
	return (p.BitvectorBitCount() + 7) / 8
}

// Validate checks the structural invariants a schema must hold:
// key fields form a prefix of Fields, array fields declare a capacity
// in [1, 65535], and field names are non-empty and unique.
func (p *PacketSchema) Validate() error {
	seenNonKey := false
	names := make(map[string]bool, len(p.Fields))

	for _, f := range p.Fields {
		if f.Name == "" {
			return fmt.Errorf("schema %d: field with empty name", p.PacketType)
		}
		if names[f.Name] {
			return fmt.Errorf("schema %d: duplicate field name %q", p.PacketType, f.Name)
		}
		names[f.Name] = true

		if f.IsKey && seenNonKey {
			return fmt.Errorf("schema %d: key field %q declared after a non-key field", p.PacketType, f.Name)
		}
		if !f.IsKey {
			seenNonKey = true
		}

		if f.Kind == ARRAY {
			if f.Capacity < 1 || f.Capacity > 65535 {
				return fmt.Errorf("schema %d: field %q capacity %d out of range [1, 65535]", p.PacketType, f.Name, f.Capacity)
			}
			if f.ElementKind == 0 || f.ElementKind == ARRAY {
				return fmt.Errorf("schema %d: field %q has invalid element kind %v", p.PacketType, f.Name, f.ElementKind)
			}
		}
	}

	return nil
}

// DecodedRecord is a mapping from field name to decoded value. Scalar
// fields hold their native Go type (uint8, int32, bool, string, ...);
// array fields hold a slice of length exactly Capacity.
type DecodedRecord map[string]any

// Clone returns a deep copy of r, copying any slice-valued (array)
// fields so the returned record shares no backing storage with r.
func (r DecodedRecord) Clone() DecodedRecord {
	out := make(DecodedRecord, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
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
		return v
	}
}

// DefaultValue returns the zero value used as a baseline when a field
// has never been seen in the delta cache: 0 for numeric kinds, false
// for BOOL, "" for STRING, and a Capacity-length slice of
// default-valued elements for ARRAY.
func DefaultValue(f FieldSchema) any {
	switch f.Kind {
	case U8:
		return uint8(0)
	case U16:
		return uint16(0)
	case U32:
		return uint32(0)
	case S8:
		return int8(0)
	case S16:
		return int16(0)
	case S32:
		return int32(0)
	case BOOL:
		return false
	case STRING:
		return ""
	case ARRAY:
		return defaultArray(f.ElementKind, f.Capacity)
	default:
		panic(fmt.Sprintf("schema: unknown field kind %v", f.Kind))
	}
}

func defaultArray(elem FieldKind, capacity int) any {
	switch elem {
	case U8:
		return make([]uint8, capacity)
	case U16:
		return make([]uint16, capacity)
	case U32:
		return make([]uint32, capacity)
	case S8:
		return make([]int8, capacity)
	case S16:
		return make([]int16, capacity)
	case S32:
		return make([]int32, capacity)
	case BOOL:
		return make([]bool, capacity)
	case STRING:
		return make([]string, capacity)
	default:
		panic(fmt.Sprintf("schema: unsupported array element kind %v", elem))
	}
}
