// Package protocol implements the wire units exchanged between spectroctl and spectrod.
//
// The basic unit is an Event: a direction byte, a subtype byte and a codec-specific
// payload. Events travel in one of two disciplines on a TCP connection:
//
// Line discipline (one exchange per connection): the client writes the event
// followed by '\n'; the server answers with one event followed by '\n' and then
// closes, so the client reads until EOF.
//
//	┌───┬───┬──────────────┬────┐
//	│dir│sub│ payload ...  │ \n │
//	└───┴───┴──────────────┴────┘
//
// Envelope discipline (persistent connection): every event is wrapped in a fixed
// 13-byte header carrying its length, so payload bytes are never scanned for a
// terminator. The magic starts with 'S', which is never a direction code, and the
// server peeks at the first byte of a connection to pick the discipline.
//
//	0      3  4  5         9         13
//	┌──────┬──┬──┬─────────┬─────────┬──────────────────┐
//	│magic │v │mt│   seq   │ bodyLen │ event bytes ...  │
//	│ SBR  │01│  │ uint32  │ uint32  │ bodyLen bytes    │
//	└──────┴──┴──┴─────────┴─────────┴──────────────────┘
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"spectro-rpc/operation"
)

const (
	MagicNumber byte = 'S'
	MagicByte2  byte = 'B'
	MagicByte3  byte = 'R'
	Version     byte = 0x01
	HeaderSize  int  = 13 // 3 (magic) + 1 (version) + 1 (msgType) + 4 (seq) + 4 (bodyLen)
)

// MsgType distinguishes request and response envelopes.
type MsgType byte

const (
	MsgTypeRequest  MsgType = 0
	MsgTypeResponse MsgType = 1
)

var (
	ErrInvalidMagic       = fmt.Errorf("%w: invalid magic number", operation.ErrProtocol)
	ErrUnsupportedVersion = fmt.Errorf("%w: unsupported version", operation.ErrProtocol)
	ErrUnknownMsgType     = fmt.Errorf("%w: unsupported message type", operation.ErrProtocol)
	ErrFrameTooLarge      = fmt.Errorf("%w: frame exceeds limit", operation.ErrProtocol)
)

// Limits bounds how much a single frame may make the reader allocate.
type Limits struct {
	MaxFrameBytes int
}

func DefaultLimits() Limits {
	return Limits{MaxFrameBytes: 8 * 1024 * 1024}
}

// Header is the envelope header minus the constant magic and version.
type Header struct {
	MsgType MsgType
	Seq     uint32
	BodyLen uint32
}

// Encode writes header and body in a single Write so concurrent writers on
// different connections never observe a torn frame. BodyLen is taken from body.
func Encode(w io.Writer, h *Header, body []byte) error {
	buf := make([]byte, HeaderSize+len(body))

	copy(buf[0:3], []byte{MagicNumber, MagicByte2, MagicByte3})
	buf[3] = Version
	buf[4] = byte(h.MsgType)
	binary.BigEndian.PutUint32(buf[5:9], h.Seq)
	binary.BigEndian.PutUint32(buf[9:13], uint32(len(body)))
	copy(buf[HeaderSize:], body)

	_, err := w.Write(buf)
	return err
}

// Decode reads one envelope from r. io.EOF is returned untouched when the peer
// closed between frames.
func Decode(r io.Reader, limits Limits) (*Header, []byte, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, nil, err
	}

	if headerBuf[0] != MagicNumber || headerBuf[1] != MagicByte2 || headerBuf[2] != MagicByte3 {
		return nil, nil, fmt.Errorf("%w: %x", ErrInvalidMagic, headerBuf[0:3])
	}
	if headerBuf[3] != Version {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, headerBuf[3])
	}
	msgType := MsgType(headerBuf[4])
	if msgType != MsgTypeRequest && msgType != MsgTypeResponse {
		return nil, nil, fmt.Errorf("%w: %d", ErrUnknownMsgType, msgType)
	}

	seq := binary.BigEndian.Uint32(headerBuf[5:9])
	bodyLen := binary.BigEndian.Uint32(headerBuf[9:13])
	if limits.MaxFrameBytes > 0 && uint64(bodyLen) > uint64(limits.MaxFrameBytes) {
		return nil, nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, bodyLen)
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, nil, err
	}

	return &Header{
		MsgType: msgType,
		Seq:     seq,
		BodyLen: bodyLen,
	}, body, nil
}

// IsEnvelope reports whether a connection's first byte starts an envelope.
func IsEnvelope(first byte) bool {
	return first == MagicNumber
}
