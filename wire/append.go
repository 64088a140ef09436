package wire

import "encoding/binary"

// AppendU8 appends an unsigned 8-bit integer.
func AppendU8(buf []byte, v uint8) []byte {
	return append(buf, v)
}

// AppendU16 appends a big-endian unsigned 16-bit integer.
func AppendU16(buf []byte, v uint16) []byte {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	return append(buf, tmp[:]...)
}

// AppendU32 appends a big-endian unsigned 32-bit integer.
func AppendU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

// AppendS8 appends a signed 8-bit integer.
func AppendS8(buf []byte, v int8) []byte {
	return AppendU8(buf, uint8(v))
}

// AppendS16 appends a big-endian signed 16-bit integer.
func AppendS16(buf []byte, v int16) []byte {
	return AppendU16(buf, uint16(v))
}

// AppendS32 appends a big-endian signed 32-bit integer.
func AppendS32(buf []byte, v int32) []byte {
	return AppendU32(buf, uint32(v))
}

// AppendBool appends a bool8: 1 for true, 0 for false.
func AppendBool(buf []byte, v bool) []byte {
	if v {
		return append(buf, 1)
	}
	return append(buf, 0)
}

// AppendString appends value followed by a 0x00 terminator.
func AppendString(buf []byte, value string) []byte {
	buf = append(buf, value...)
	return append(buf, 0x00)
}

// NewBitvector allocates a zeroed bitvector sized for bitCount bits.
func NewBitvector(bitCount int) []byte {
	return make([]byte, (bitCount+7)/8)
}

// SetBit sets bit i in bv using the same little-endian-within-byte
// order BitSet reads.
func SetBit(bv []byte, i int) {
	bv[i/8] |= 1 << uint(i%8)
}
