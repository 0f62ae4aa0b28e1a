package message

import (
	"errors"
	"testing"
)

func TestCallArg(t *testing.T) {
	call := &Call{Name: "get_intensities"}
	if call.Arg() != nil {
		t.Fatalf("expect nil argument, got %v", call.Arg())
	}

	call = &Call{Name: "set_integration_time_micros", Args: []any{10000}}
	if call.Arg() != 10000 {
		t.Fatalf("expect argument 10000, got %v", call.Arg())
	}
}

func TestFailed(t *testing.T) {
	cause := errors.New("boom")
	res := Failed("get_serial_number", cause)
	if res.Name != "get_serial_number" || !errors.Is(res.Err, cause) || res.Value != nil {
		t.Fatalf("unexpected result: %+v", res)
	}
}
