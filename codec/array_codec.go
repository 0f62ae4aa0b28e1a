package codec

import (
	"encoding/binary"
	"fmt"
	"math"
)

const float64Size = 8

// ArrayCodec packs a []float64 as consecutive 64-bit native-endian floats.
// There is no length prefix: the element count is len(payload)/8.
type ArrayCodec struct{}

func (c ArrayCodec) Encode(v any) ([]byte, error) {
	values, ok := v.([]float64)
	if !ok {
		return nil, fmt.Errorf("%w: ArrayCodec wants []float64, got %T", ErrInvalidValue, v)
	}
	buf := make([]byte, len(values)*float64Size)

	offset := 0
	for _, f := range values {
		binary.NativeEndian.PutUint64(buf[offset:offset+float64Size], math.Float64bits(f))
		offset += float64Size
	}
	return buf, nil
}

func (c ArrayCodec) Decode(data []byte) (any, error) {
	if len(data)%float64Size != 0 {
		return nil, fmt.Errorf("%w: array payload of %d bytes is not a multiple of %d", ErrMalformed, len(data), float64Size)
	}
	values := make([]float64, len(data)/float64Size)

	offset := 0
	for i := range values {
		values[i] = math.Float64frombits(binary.NativeEndian.Uint64(data[offset : offset+float64Size]))
		offset += float64Size
	}
	return values, nil
}

func (c ArrayCodec) Type() CodecType {
	return CodecTypeArray
}
