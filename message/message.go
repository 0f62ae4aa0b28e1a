// Package message defines the values that flow through the server's handler chain.
//
// A Call is what the protocol layer decoded from a request frame; a Result is what
// the session manager produced for it. The protocol layer turns a Result back into
// a response frame, collapsing any error into the opaque error signal.
package message

import "time"

// Call is one decoded remote call.
//
//   - Name carries the direction prefix, e.g. "set_integration_time_micros".
//   - Args holds zero or one decoded argument.
type Call struct {
	Name     string
	Args     []any
	ConnID   string // Correlates log lines of one connection
	Received time.Time
}

// Arg returns the single argument of the call, or nil.
func (c *Call) Arg() any {
	if len(c.Args) == 0 {
		return nil
	}
	return c.Args[0]
}

// Result carries either a return value or an error. Err never reaches the wire.
type Result struct {
	Name  string
	Value any
	Err   error
}

func Failed(name string, err error) *Result {
	return &Result{Name: name, Err: err}
}
