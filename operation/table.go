// Package operation holds the fixed table mapping operation names to the
// one-byte subtype codes used on the wire, and the codecs each direction uses.
//
// The table is compiled in on both ends. Adding an operation means shipping the
// new table to the server and every client together.
package operation

import (
	"errors"
	"fmt"
	"strings"

	"spectro-rpc/codec"
)

// Direction is the first header byte of every event.
type Direction byte

const (
	DirectionError Direction = '0'
	DirectionGet   Direction = '1'
	DirectionSet   Direction = '2'
)

const (
	getPrefix = "get_"
	setPrefix = "set_"
)

// ErrProtocol is the category for every table, header and framing failure.
var ErrProtocol = errors.New("protocol: error")

var (
	ErrUnknownSubtype       = fmt.Errorf("%w: unknown subtype code", ErrProtocol)
	ErrUnknownOperation     = fmt.Errorf("%w: unknown operation", ErrProtocol)
	ErrUnknownDirection     = fmt.Errorf("%w: unknown direction code", ErrProtocol)
	ErrUnsupportedDirection = fmt.Errorf("%w: operation does not support direction", ErrProtocol)
	ErrInvalidCallName      = fmt.Errorf("%w: call name must start with get_ or set_", ErrProtocol)
)

// Kind identifies what an operation does, independent of its wire name.
type Kind int

const (
	KindIntegrationTime Kind = iota + 1
	KindIntensities
	KindWavelengths
	KindSerialNumber
	KindDeviceList
	KindSelection
)

// Session reports whether the operation is answered by the session manager
// itself rather than forwarded to the selected device.
func (k Kind) Session() bool {
	return k == KindDeviceList || k == KindSelection
}

// Descriptor describes one row of the table. A nil codec slot means the
// operation does not support that direction.
type Descriptor struct {
	Subtype   byte
	Name      string
	Kind      Kind
	GetArg    codec.Codec
	GetReturn codec.Codec
	SetArg    codec.Codec
	SetReturn codec.Codec
}

func (d Descriptor) Supports(dir Direction) bool {
	switch dir {
	case DirectionGet:
		return d.GetArg != nil && d.GetReturn != nil
	case DirectionSet:
		return d.SetArg != nil && d.SetReturn != nil
	}
	return false
}

// ArgCodec returns the codec for the call argument in direction dir.
func (d Descriptor) ArgCodec(dir Direction) (codec.Codec, error) {
	if !d.Supports(dir) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDirection, CallName(dir, d.Name))
	}
	if dir == DirectionSet {
		return d.SetArg, nil
	}
	return d.GetArg, nil
}

// ReturnCodec returns the codec for the call's return value in direction dir.
func (d Descriptor) ReturnCodec(dir Direction) (codec.Codec, error) {
	if !d.Supports(dir) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDirection, CallName(dir, d.Name))
	}
	if dir == DirectionSet {
		return d.SetReturn, nil
	}
	return d.GetReturn, nil
}

// Table is immutable after construction and safe for concurrent use.
type Table struct {
	descriptors []Descriptor
	bySubtype   map[byte]int
	byName      map[string]int
}

// NewTable validates descs and indexes them by subtype and by name.
func NewTable(descs ...Descriptor) (*Table, error) {
	t := &Table{
		descriptors: make([]Descriptor, 0, len(descs)),
		bySubtype:   make(map[byte]int, len(descs)),
		byName:      make(map[string]int, len(descs)),
	}
	for _, d := range descs {
		if d.Name == "" {
			return nil, fmt.Errorf("operation: descriptor for subtype %q has no name", d.Subtype)
		}
		if _, dup := t.bySubtype[d.Subtype]; dup {
			return nil, fmt.Errorf("operation: duplicate subtype %q (%s)", d.Subtype, d.Name)
		}
		if _, dup := t.byName[d.Name]; dup {
			return nil, fmt.Errorf("operation: duplicate name %q", d.Name)
		}
		if !d.Supports(DirectionGet) && !d.Supports(DirectionSet) {
			return nil, fmt.Errorf("operation: %s supports neither get nor set", d.Name)
		}
		t.bySubtype[d.Subtype] = len(t.descriptors)
		t.byName[d.Name] = len(t.descriptors)
		t.descriptors = append(t.descriptors, d)
	}
	return t, nil
}

// MustNewTable is NewTable for tables known at compile time.
func MustNewTable(descs ...Descriptor) *Table {
	t, err := NewTable(descs...)
	if err != nil {
		panic(err)
	}
	return t
}

func (t *Table) BySubtype(subtype byte) (Descriptor, error) {
	i, ok := t.bySubtype[subtype]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownSubtype, subtype)
	}
	return t.descriptors[i], nil
}

func (t *Table) ByName(name string) (Descriptor, error) {
	i, ok := t.byName[name]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrUnknownOperation, name)
	}
	return t.descriptors[i], nil
}

// Descriptors returns a copy of the table rows in declaration order.
func (t *Table) Descriptors() []Descriptor {
	out := make([]Descriptor, len(t.descriptors))
	copy(out, t.descriptors)
	return out
}

// Resolve looks up a prefixed call name such as "set_integration_time_micros".
func (t *Table) Resolve(callName string) (Direction, Descriptor, error) {
	dir, name, err := ParseCallName(callName)
	if err != nil {
		return 0, Descriptor{}, err
	}
	d, err := t.ByName(name)
	if err != nil {
		return 0, Descriptor{}, err
	}
	if !d.Supports(dir) {
		return 0, Descriptor{}, fmt.Errorf("%w: %s", ErrUnsupportedDirection, callName)
	}
	return dir, d, nil
}

// ParseCallName splits "get_intensities" into (DirectionGet, "intensities").
func ParseCallName(callName string) (Direction, string, error) {
	switch {
	case strings.HasPrefix(callName, getPrefix) && len(callName) > len(getPrefix):
		return DirectionGet, callName[len(getPrefix):], nil
	case strings.HasPrefix(callName, setPrefix) && len(callName) > len(setPrefix):
		return DirectionSet, callName[len(setPrefix):], nil
	}
	return 0, "", fmt.Errorf("%w: %q", ErrInvalidCallName, callName)
}

func CallName(dir Direction, name string) string {
	if dir == DirectionSet {
		return setPrefix + name
	}
	return getPrefix + name
}

// ParseDirection validates a header byte.
func ParseDirection(b byte) (Direction, error) {
	switch d := Direction(b); d {
	case DirectionError, DirectionGet, DirectionSet:
		return d, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownDirection, b)
}

func (d Direction) String() string {
	switch d {
	case DirectionGet:
		return "get"
	case DirectionSet:
		return "set"
	case DirectionError:
		return "error"
	}
	return fmt.Sprintf("direction(%q)", byte(d))
}
