package protocol

import (
	"bytes"
	"fmt"

	"spectro-rpc/operation"
)

// Request is an event sent by a client.
type Request struct {
	Event
}

// Response is an event sent back by the server.
type Response struct {
	Event
}

// NewRequest builds the request for callName ("get_x" or "set_x"). A nil value
// produces an empty payload.
func NewRequest(table *operation.Table, callName string, value any) (Request, error) {
	dir, d, err := table.Resolve(callName)
	if err != nil {
		return Request{}, err
	}
	payload := []byte{}
	if value != nil {
		c, err := d.ArgCodec(dir)
		if err != nil {
			return Request{}, err
		}
		if payload, err = c.Encode(value); err != nil {
			return Request{}, fmt.Errorf("encode %s argument: %w", callName, err)
		}
	}
	// The server reads requests up to the first terminator.
	if bytes.IndexByte(payload, Terminator) >= 0 {
		return Request{}, fmt.Errorf("%w: %s", ErrTerminatorInPayload, callName)
	}
	return Request{Event{Direction: dir, Subtype: d.Subtype, Payload: payload}}, nil
}

// ParseRequest decodes a line-discipline request frame.
func ParseRequest(frame []byte) (Request, error) {
	e, err := ParseEvent(frame)
	if err != nil {
		return Request{}, err
	}
	return Request{e}, nil
}

// ResolveCall decodes the request into its prefixed call name and an argument
// list holding zero or one value.
func (r Request) ResolveCall(table *operation.Table) (string, []any, error) {
	if r.Direction == operation.DirectionError {
		return "", nil, fmt.Errorf("%w: error signal sent as a request", operation.ErrUnknownDirection)
	}
	d, err := table.BySubtype(r.Subtype)
	if err != nil {
		return "", nil, err
	}
	callName := operation.CallName(r.Direction, d.Name)
	c, err := d.ArgCodec(r.Direction)
	if err != nil {
		return "", nil, err
	}
	value, err := c.Decode(r.Payload)
	if err != nil {
		return callName, nil, fmt.Errorf("decode %s argument: %w", callName, err)
	}
	if value == nil {
		return callName, []any{}, nil
	}
	return callName, []any{value}, nil
}

func (r Request) String() string {
	return fmt.Sprintf("<Request: %s>", r.Event)
}

// NewResponse encodes value with the return codec of callName. A nil value
// produces an empty payload.
func NewResponse(table *operation.Table, callName string, value any) (Response, error) {
	dir, d, err := table.Resolve(callName)
	if err != nil {
		return Response{}, err
	}
	payload := []byte{}
	if value != nil {
		c, err := d.ReturnCodec(dir)
		if err != nil {
			return Response{}, err
		}
		if payload, err = c.Encode(value); err != nil {
			return Response{}, fmt.Errorf("encode %s return: %w", callName, err)
		}
	}
	return Response{Event{Direction: dir, Subtype: d.Subtype, Payload: payload}}, nil
}

// ErrorResponse is the opaque failure signal. It encodes to "00\n".
func ErrorResponse() Response {
	return Response{Event{Direction: operation.DirectionError, Subtype: errorSubtype}}
}

// ParseResponse decodes a response as read by the client: everything up to EOF,
// with a trailing terminator.
func ParseResponse(frame []byte) (Response, error) {
	e, err := ParseEvent(frame)
	if err != nil {
		return Response{}, err
	}
	return Response{e}, nil
}

func (r Response) Failed() bool {
	return r.Direction == operation.DirectionError
}

// ResolveReturn decodes the response into its prefixed call name and value.
// The error signal yields ErrCallFailed.
func (r Response) ResolveReturn(table *operation.Table) (string, any, error) {
	if r.Failed() {
		return "", nil, ErrCallFailed
	}
	d, err := table.BySubtype(r.Subtype)
	if err != nil {
		return "", nil, err
	}
	callName := operation.CallName(r.Direction, d.Name)
	c, err := d.ReturnCodec(r.Direction)
	if err != nil {
		return "", nil, err
	}
	value, err := c.Decode(r.Payload)
	if err != nil {
		return callName, nil, fmt.Errorf("decode %s return: %w", callName, err)
	}
	return callName, value, nil
}

func (r Response) String() string {
	if r.Failed() {
		return "<Error>"
	}
	return fmt.Sprintf("<Response: %s>", r.Event)
}
