package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"spectro-rpc/operation"
)

// Terminator ends a line-discipline frame.
const Terminator byte = '\n'

// errorSubtype is the placeholder subtype written in the error signal.
const errorSubtype byte = '0'

var (
	ErrShortEvent          = fmt.Errorf("%w: event shorter than header", operation.ErrProtocol)
	ErrTerminatorInPayload = fmt.Errorf("%w: payload contains the frame terminator", operation.ErrProtocol)
	ErrPartialFrame        = fmt.Errorf("%w: connection closed inside a frame", operation.ErrProtocol)

	// ErrCallFailed is what a peer learns about any failed call: nothing more.
	ErrCallFailed = errors.New("protocol: remote call failed")
)

// Event is the header plus payload of one message. Treat it as immutable.
type Event struct {
	Direction operation.Direction
	Subtype   byte
	Payload   []byte
}

// Bytes returns direction || subtype || payload, the envelope body form.
func (e Event) Bytes() []byte {
	buf := make([]byte, 0, 2+len(e.Payload))
	buf = append(buf, byte(e.Direction), e.Subtype)
	return append(buf, e.Payload...)
}

// Encode returns the line-discipline form: Bytes() followed by the terminator.
func (e Event) Encode() []byte {
	return append(e.Bytes(), Terminator)
}

func (e Event) String() string {
	preview := e.Payload
	if len(preview) > 10 {
		preview = preview[:10]
	}
	return fmt.Sprintf("<Event: %c%c|%q>", byte(e.Direction), e.Subtype, preview)
}

// ParseEvent decodes a line-discipline frame. A single trailing terminator is
// stripped; everything after the two header bytes is payload.
func ParseEvent(frame []byte) (Event, error) {
	if n := len(frame); n > 0 && frame[n-1] == Terminator {
		frame = frame[:n-1]
	}
	return DecodeEvent(frame)
}

// DecodeEvent decodes an unterminated event, as carried in an envelope body.
func DecodeEvent(body []byte) (Event, error) {
	if len(body) == 0 {
		return Event{}, ErrShortEvent
	}
	dir, err := operation.ParseDirection(body[0])
	if err != nil {
		return Event{}, err
	}
	if dir == operation.DirectionError {
		// The error signal carries no usable subtype or payload.
		return Event{Direction: dir, Subtype: errorSubtype}, nil
	}
	if len(body) < 2 {
		return Event{}, fmt.Errorf("%w: %d byte(s)", ErrShortEvent, len(body))
	}
	return Event{
		Direction: dir,
		Subtype:   body[1],
		Payload:   bytes.Clone(body[2:]),
	}, nil
}

// ReadLine reads one terminated frame from r, terminator included. It returns
// io.EOF when the peer closed before sending anything and ErrPartialFrame when
// it closed mid-frame.
func ReadLine(r *bufio.Reader, limits Limits) ([]byte, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice(Terminator)
		line = append(line, chunk...)
		if limits.MaxFrameBytes > 0 && len(line) > limits.MaxFrameBytes {
			return nil, fmt.Errorf("%w: more than %d bytes without terminator", ErrFrameTooLarge, limits.MaxFrameBytes)
		}
		switch {
		case err == nil:
			return line, nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if len(line) == 0 {
				return nil, io.EOF
			}
			return nil, ErrPartialFrame
		default:
			return nil, err
		}
	}
}
