package codec

import (
	"fmt"
	"unicode/utf8"
)

// TextCodec carries ASCII strings unescaped.
type TextCodec struct{}

func (c TextCodec) Encode(v any) ([]byte, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("%w: TextCodec wants a string, got %T", ErrInvalidValue, v)
	}
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return nil, fmt.Errorf("%w: non-ASCII byte at offset %d", ErrInvalidValue, i)
		}
	}
	return []byte(s), nil
}

func (c TextCodec) Decode(data []byte) (any, error) {
	return string(data), nil
}

func (c TextCodec) Type() CodecType {
	return CodecTypeText
}

// EmptyCodec is used for calls that take or return nothing.
type EmptyCodec struct{}

func (c EmptyCodec) Encode(any) ([]byte, error) {
	return []byte{}, nil
}

func (c EmptyCodec) Decode([]byte) (any, error) {
	return nil, nil
}

func (c EmptyCodec) Type() CodecType {
	return CodecTypeEmpty
}
