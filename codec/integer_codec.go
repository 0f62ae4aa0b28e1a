package codec

import (
	"fmt"
	"strconv"
)

// IntegerCodec writes integers as decimal ASCII. Range is the backend's problem.
type IntegerCodec struct{}

func (c IntegerCodec) Encode(v any) ([]byte, error) {
	var n int64
	switch x := v.(type) {
	case int:
		n = int64(x)
	case int32:
		n = int64(x)
	case int64:
		n = x
	default:
		return nil, fmt.Errorf("%w: IntegerCodec wants an int, got %T", ErrInvalidValue, v)
	}
	return strconv.AppendInt(nil, n, 10), nil
}

func (c IntegerCodec) Decode(data []byte) (any, error) {
	n, err := strconv.Atoi(string(data))
	if err != nil {
		return nil, fmt.Errorf("%w: integer payload %q", ErrMalformed, data)
	}
	return n, nil
}

func (c IntegerCodec) Type() CodecType {
	return CodecTypeInteger
}
