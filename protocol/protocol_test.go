package protocol

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"spectro-rpc/operation"
)

func TestEncodeDecode(t *testing.T) {
	header := Header{
		MsgType: MsgTypeRequest,
		Seq:     12345,
	}
	body := []byte("1a")

	var buf bytes.Buffer
	if err := Encode(&buf, &header, body); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if buf.Len() != HeaderSize+len(body) {
		t.Fatalf("frame length mismatch: got %d, want %d", buf.Len(), HeaderSize+len(body))
	}

	decodedHeader, decodedBody, err := Decode(&buf, DefaultLimits())
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decodedHeader.MsgType != header.MsgType {
		t.Errorf("MsgType mismatch: got %d, want %d", decodedHeader.MsgType, header.MsgType)
	}
	if decodedHeader.Seq != header.Seq {
		t.Errorf("Seq mismatch: got %d, want %d", decodedHeader.Seq, header.Seq)
	}
	if decodedHeader.BodyLen != uint32(len(body)) {
		t.Errorf("BodyLen mismatch: got %d, want %d", decodedHeader.BodyLen, len(body))
	}
	if !bytes.Equal(decodedBody, body) {
		t.Errorf("Body mismatch: got %q, want %q", decodedBody, body)
	}
}

func TestDecodeInvalidMagic(t *testing.T) {
	frame := []byte{'m', 'r', 'p', Version, byte(MsgTypeRequest), 0, 0, 0, 1, 0, 0, 0, 0}
	_, _, err := Decode(bytes.NewReader(frame), DefaultLimits())
	if !errors.Is(err, ErrInvalidMagic) {
		t.Fatalf("expect ErrInvalidMagic, got %v", err)
	}
	if !errors.Is(err, operation.ErrProtocol) {
		t.Errorf("expect magic error in ErrProtocol category, got %v", err)
	}
}

func TestDecodeInvalidVersion(t *testing.T) {
	frame := []byte{MagicNumber, MagicByte2, MagicByte3, 0xFF, byte(MsgTypeRequest), 0, 0, 0, 1, 0, 0, 0, 0}
	_, _, err := Decode(bytes.NewReader(frame), DefaultLimits())
	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("expect ErrUnsupportedVersion, got %v", err)
	}
}

func TestDecodeFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, &Header{MsgType: MsgTypeResponse}, make([]byte, 64)); err != nil {
		t.Fatal(err)
	}
	_, _, err := Decode(&buf, Limits{MaxFrameBytes: 32})
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expect ErrFrameTooLarge, got %v", err)
	}
}

func TestDecodeTruncatedBody(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, &Header{MsgType: MsgTypeResponse}, []byte("1a0123456789")); err != nil {
		t.Fatal(err)
	}
	truncated := buf.Bytes()[:HeaderSize+3]
	_, _, err := Decode(bytes.NewReader(truncated), DefaultLimits())
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expect io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestDecodeBinaryBodyWithTerminator(t *testing.T) {
	body := []byte{'1', 'a', 0x0A, 0x00, 0x0A, 0x0A}
	var buf bytes.Buffer
	if err := Encode(&buf, &Header{MsgType: MsgTypeResponse, Seq: 7}, body); err != nil {
		t.Fatal(err)
	}
	_, got, err := Decode(&buf, DefaultLimits())
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	e, err := DecodeEvent(got)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}
	if !bytes.Equal(e.Payload, body[2:]) {
		t.Errorf("payload mismatch: got %v, want %v", e.Payload, body[2:])
	}
}

func TestIsEnvelope(t *testing.T) {
	if !IsEnvelope(MagicNumber) {
		t.Errorf("expect magic byte to select envelope discipline")
	}
	for _, b := range []byte{'0', '1', '2'} {
		if IsEnvelope(b) {
			t.Errorf("direction %q must not look like an envelope", b)
		}
	}
}

func TestReadLine(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("10\n2010000\n"))
	first, err := ReadLine(r, DefaultLimits())
	if err != nil || string(first) != "10\n" {
		t.Fatalf("first line: got %q, %v", first, err)
	}
	second, err := ReadLine(r, DefaultLimits())
	if err != nil || string(second) != "2010000\n" {
		t.Fatalf("second line: got %q, %v", second, err)
	}
	if _, err := ReadLine(r, DefaultLimits()); err != io.EOF {
		t.Fatalf("expect io.EOF after last line, got %v", err)
	}
}

func TestReadLinePartialAndOversized(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("1a"))
	if _, err := ReadLine(r, DefaultLimits()); !errors.Is(err, ErrPartialFrame) {
		t.Errorf("expect ErrPartialFrame, got %v", err)
	}

	long := strings.Repeat("x", 64) + "\n"
	r = bufio.NewReaderSize(strings.NewReader(long), 16)
	if _, err := ReadLine(r, Limits{MaxFrameBytes: 32}); !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("expect ErrFrameTooLarge, got %v", err)
	}

	r = bufio.NewReaderSize(strings.NewReader(long), 16)
	line, err := ReadLine(r, DefaultLimits())
	if err != nil || len(line) != len(long) {
		t.Errorf("expect line spanning several buffers, got %d bytes, %v", len(line), err)
	}
}
