package codec

import (
	"encoding/base64"
	"fmt"
)

// DecodeDeltas decodes a stream of zigzag varint deltas into absolute values.
// The running total starts at zero.
func DecodeDeltas(b []byte) ([]int32, error) {
	out := make([]int32, 0, len(b))
	var prev int32
	for i := 0; i < len(b); {
		u, next, err := DecodeVarint(b, i)
		if err != nil {
			return nil, fmt.Errorf("decode value %d at byte %d: %w", len(out), i, err)
		}
		prev += ZigzagDecode(u)
		out = append(out, prev)
		i = next
	}
	return out, nil
}

// DecodeDeltasBase64 is DecodeDeltas over a standard base64 payload.
func DecodeDeltasBase64(s string) ([]int32, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("base64: %w", err)
	}
	return DecodeDeltas(b)
}

// EncodeDeltas is the inverse of DecodeDeltas.
func EncodeDeltas(values []int32) []byte {
	out := make([]byte, 0, len(values)*2)
	var prev int32
	for _, v := range values {
		out = AppendVarint(out, ZigzagEncode(v-prev))
		prev = v
	}
	return out
}

func EncodeDeltasBase64(values []int32) string {
	return base64.StdEncoding.EncodeToString(EncodeDeltas(values))
}
