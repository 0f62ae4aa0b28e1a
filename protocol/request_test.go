package protocol

import (
	"bytes"
	"errors"
	"math"
	"testing"

	"spectro-rpc/codec"
	"spectro-rpc/operation"
)

var table = operation.Default()

func TestRequestWireForm(t *testing.T) {
	cases := []struct {
		call  string
		value any
		wire  string
	}{
		{"get_integration_time_micros", nil, "10\n"},
		{"set_integration_time_micros", 10000, "2010000\n"},
		{"get_intensities", nil, "1a\n"},
		{"get_wavelengths", nil, "1b\n"},
		{"get_serial_number", nil, "1c\n"},
		{"set_spectrometer", 0, "2s0\n"},
	}
	for _, tc := range cases {
		req, err := NewRequest(table, tc.call, tc.value)
		if err != nil {
			t.Fatalf("NewRequest(%s) failed: %v", tc.call, err)
		}
		if got := string(req.Encode()); got != tc.wire {
			t.Errorf("%s: wire %q, want %q", tc.call, got, tc.wire)
		}
	}
}

func TestRequestResolveCall(t *testing.T) {
	req, err := NewRequest(table, "set_integration_time_micros", 10000)
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := ParseRequest(req.Encode())
	if err != nil {
		t.Fatalf("ParseRequest failed: %v", err)
	}
	name, args, err := parsed.ResolveCall(table)
	if err != nil {
		t.Fatalf("ResolveCall failed: %v", err)
	}
	if name != "set_integration_time_micros" {
		t.Errorf("name mismatch: got %q", name)
	}
	if len(args) != 1 || args[0] != 10000 {
		t.Errorf("args mismatch: got %v", args)
	}

	req, _ = NewRequest(table, "get_intensities", nil)
	parsed, _ = ParseRequest(req.Encode())
	name, args, err = parsed.ResolveCall(table)
	if err != nil || name != "get_intensities" || len(args) != 0 {
		t.Errorf("got (%q, %v, %v), want (get_intensities, [], nil)", name, args, err)
	}
}

func TestRequestErrors(t *testing.T) {
	if _, err := NewRequest(table, "get_boxcar_width", nil); !errors.Is(err, operation.ErrUnknownOperation) {
		t.Errorf("expect ErrUnknownOperation, got %v", err)
	}
	if _, err := NewRequest(table, "set_integration_time_micros", "fast"); !errors.Is(err, codec.ErrInvalidValue) {
		t.Errorf("expect ErrInvalidValue, got %v", err)
	}

	bad, _ := ParseRequest([]byte("1z\n"))
	if _, _, err := bad.ResolveCall(table); !errors.Is(err, operation.ErrUnknownSubtype) {
		t.Errorf("expect ErrUnknownSubtype, got %v", err)
	}
	bad, _ = ParseRequest([]byte("20abc\n"))
	if _, _, err := bad.ResolveCall(table); !errors.Is(err, codec.ErrMalformed) {
		t.Errorf("expect ErrMalformed, got %v", err)
	}
	bad, _ = ParseRequest([]byte("2a\n"))
	if _, _, err := bad.ResolveCall(table); !errors.Is(err, operation.ErrUnsupportedDirection) {
		t.Errorf("expect ErrUnsupportedDirection, got %v", err)
	}
	if _, err := ParseRequest([]byte("9a\n")); !errors.Is(err, operation.ErrUnknownDirection) {
		t.Errorf("expect ErrUnknownDirection, got %v", err)
	}
	if _, err := ParseRequest([]byte("1\n")); !errors.Is(err, ErrShortEvent) {
		t.Errorf("expect ErrShortEvent, got %v", err)
	}
	if _, err := ParseRequest([]byte("\n")); !errors.Is(err, ErrShortEvent) {
		t.Errorf("expect ErrShortEvent for empty frame, got %v", err)
	}
}

func TestResponseSymmetry(t *testing.T) {
	arr := []float64{100, 2048.5, 0, 4001, math.Float64frombits(0x0A0A0A0A0A0A0A0A)}
	resp, err := NewResponse(table, "get_intensities", arr)
	if err != nil {
		t.Fatalf("NewResponse failed: %v", err)
	}

	parsed, err := ParseResponse(resp.Encode())
	if err != nil {
		t.Fatalf("ParseResponse failed: %v", err)
	}
	name, value, err := parsed.ResolveReturn(table)
	if err != nil {
		t.Fatalf("ResolveReturn failed: %v", err)
	}
	if name != "get_intensities" {
		t.Errorf("name mismatch: got %q", name)
	}
	got := value.([]float64)
	if len(got) != len(arr) {
		t.Fatalf("length mismatch: got %d, want %d", len(got), len(arr))
	}
	for i := range arr {
		if got[i] != arr[i] {
			t.Errorf("element %d: got %v, want %v", i, got[i], arr[i])
		}
	}
}

func TestResponseText(t *testing.T) {
	resp, err := NewResponse(table, "get_serial_number", "EMU00000")
	if err != nil {
		t.Fatal(err)
	}
	if string(resp.Encode()) != "1cEMU00000\n" {
		t.Errorf("wire mismatch: got %q", resp.Encode())
	}
	_, value, err := resp.ResolveReturn(table)
	if err != nil || value != "EMU00000" {
		t.Errorf("got (%v, %v), want EMU00000", value, err)
	}
}

func TestErrorResponse(t *testing.T) {
	resp := ErrorResponse()
	if !bytes.Equal(resp.Encode(), []byte("00\n")) {
		t.Fatalf("error signal wire form: got %q, want %q", resp.Encode(), "00\n")
	}

	for _, frame := range []string{"00\n", "0\n", "0"} {
		parsed, err := ParseResponse([]byte(frame))
		if err != nil {
			t.Fatalf("ParseResponse(%q) failed: %v", frame, err)
		}
		if _, _, err := parsed.ResolveReturn(table); !errors.Is(err, ErrCallFailed) {
			t.Errorf("ResolveReturn(%q): expect ErrCallFailed, got %v", frame, err)
		}
	}
}

func TestEventBytesAndString(t *testing.T) {
	e := Event{Direction: operation.DirectionGet, Subtype: 'a', Payload: []byte("xyz")}
	if string(e.Bytes()) != "1axyz" {
		t.Errorf("Bytes mismatch: got %q", e.Bytes())
	}
	if ErrorResponse().String() != "<Error>" {
		t.Errorf("unexpected error response repr %q", ErrorResponse().String())
	}
}

func TestRequestRefusesTerminatorInPayload(t *testing.T) {
	labels := operation.MustNewTable(operation.Descriptor{
		Subtype:   't',
		Name:      "label",
		Kind:      operation.KindSerialNumber,
		GetArg:    codec.Empty,
		GetReturn: codec.Text,
		SetArg:    codec.Text,
		SetReturn: codec.Text,
	})

	if _, err := NewRequest(labels, "set_label", "a\nb"); !errors.Is(err, ErrTerminatorInPayload) {
		t.Fatalf("expect ErrTerminatorInPayload, got %v", err)
	}
	if !errors.Is(ErrTerminatorInPayload, operation.ErrProtocol) {
		t.Errorf("expect terminator error in the protocol category")
	}
	req, err := NewRequest(labels, "set_label", "a b")
	if err != nil {
		t.Fatal(err)
	}
	if got := string(req.Encode()); got != "2ta b\n" {
		t.Errorf("wire %q, want %q", got, "2ta b\n")
	}
}
