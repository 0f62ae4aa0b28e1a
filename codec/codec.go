// Package codec implements the per-argument encodings carried in an event payload.
//
// Each codec is a pure transform between a Go value and a byte sequence:
//
//	Integer       decimal ASCII text         int      <-> "10000"
//	Text          raw ASCII bytes            string   <-> "EMU00000"
//	NumericArray  8-byte native-endian float []float64 <-> len(v)*8 bytes
//	Empty         zero-length payload        nil      <-> ""
package codec

import (
	"errors"
	"fmt"
)

type CodecType byte

const (
	CodecTypeEmpty   CodecType = 0
	CodecTypeInteger CodecType = 1
	CodecTypeText    CodecType = 2
	CodecTypeArray   CodecType = 3
)

var (
	// ErrCodec is the category every encode/decode failure wraps.
	ErrCodec = errors.New("codec: error")

	ErrMalformed    = fmt.Errorf("%w: malformed payload", ErrCodec)
	ErrInvalidValue = fmt.Errorf("%w: invalid value", ErrCodec)
)

type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte) (any, error)
	Type() CodecType
}

var (
	Empty        Codec = EmptyCodec{}
	Integer      Codec = IntegerCodec{}
	Text         Codec = TextCodec{}
	NumericArray Codec = ArrayCodec{}
)

// GetCodec returns the shared codec for codecType, or nil if unknown.
func GetCodec(codecType CodecType) Codec {
	switch codecType {
	case CodecTypeEmpty:
		return Empty
	case CodecTypeInteger:
		return Integer
	case CodecTypeText:
		return Text
	case CodecTypeArray:
		return NumericArray
	}
	return nil
}

func (t CodecType) String() string {
	switch t {
	case CodecTypeEmpty:
		return "empty"
	case CodecTypeInteger:
		return "integer"
	case CodecTypeText:
		return "text"
	case CodecTypeArray:
		return "array"
	}
	return "unknown"
}
