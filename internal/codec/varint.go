// Package codec decodes the compact integer streams used by trip bundles:
// unsigned LEB128 varints carrying zigzag-encoded deltas.
package codec

import "errors"

var (
	ErrTruncated = errors.New("codec: varint truncated")
	ErrOverflow  = errors.New("codec: varint overflows 32 bits")
)

// maxVarintLen32 is the number of 7-bit groups needed for a uint32.
const maxVarintLen32 = 5

// DecodeVarint reads one varint starting at b[i] and returns the value and
// the index of the first byte after it.
func DecodeVarint(b []byte, i int) (uint32, int, error) {
	var x uint32
	var shift uint
	for n := 0; ; n++ {
		if n == maxVarintLen32 {
			return 0, i, ErrOverflow
		}
		if i >= len(b) {
			return 0, i, ErrTruncated
		}
		c := b[i]
		i++
		x |= uint32(c&0x7f) << shift
		if c&0x80 == 0 {
			return x, i, nil
		}
		shift += 7
	}
}

// AppendVarint appends the varint encoding of u to b.
func AppendVarint(b []byte, u uint32) []byte {
	for u >= 0x80 {
		b = append(b, byte(u)|0x80)
		u >>= 7
	}
	return append(b, byte(u))
}

func ZigzagDecode(u uint32) int32 {
	return int32(u>>1) ^ -int32(u&1)
}

func ZigzagEncode(n int32) uint32 {
	return uint32(n<<1) ^ uint32(n>>31)
}
