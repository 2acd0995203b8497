package tcpmsg

import (
	"testing"

	opcerrors "github.com/balsa02/opcua/internal/errors"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{Type: TypeMessage, Final: Final, Size: 42}
	buf := EncodeHeader(h)
	got, err := DecodeHeader(buf)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if got != h {
		t.Fatalf("round trip mismatch: want %+v got %+v", h, got)
	}
}

func TestDecodeHeaderInvalidType(t *testing.T) {
	buf := []byte{'X', 'Y', 'Z', 'F', 8, 0, 0, 0}
	if _, err := DecodeHeader(buf); opcerrors.CodeOf(err) != opcerrors.BadTcpMessageTypeInvalid {
		t.Fatalf("expected BadTcpMessageTypeInvalid, got %v", err)
	}
}

func TestHelloRoundTrip(t *testing.T) {
	h := Hello{
		ProtocolVersion:   0,
		ReceiveBufferSize: 65536,
		SendBufferSize:    65536,
		MaxMessageSize:    65536,
		MaxChunkCount:     5,
		EndpointURL:       "opc.tcp://h:4855",
	}
	raw := WriteHello(h)
	hdr, err := DecodeHeader(raw)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if hdr.Type != TypeHello || hdr.Final != Final {
		t.Fatalf("unexpected header: %+v", hdr)
	}
	decoded, err := DecodeHello(raw[HeaderSize:])
	if err != nil {
		t.Fatalf("DecodeHello: %v", err)
	}
	if decoded != h {
		t.Fatalf("hello round trip mismatch: want %+v got %+v", h, decoded)
	}
}

func TestAckRoundTrip(t *testing.T) {
	a := Ack{ProtocolVersion: 0, ReceiveBufferSize: 65536, SendBufferSize: 65536, MaxMessageSize: 65536, MaxChunkCount: 5}
	raw := WriteAck(a)
	hdr, err := DecodeHeader(raw)
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if int(hdr.Size) != len(raw) {
		t.Fatalf("declared size %d != actual %d", hdr.Size, len(raw))
	}
	decoded, err := DecodeAck(raw[HeaderSize:])
	if err != nil {
		t.Fatalf("DecodeAck: %v", err)
	}
	if decoded != a {
		t.Fatalf("ack round trip mismatch: want %+v got %+v", a, decoded)
	}
}

func TestReaderStoreBytesAssemblesFrames(t *testing.T) {
	r := NewReader(65536, 65536)
	hello := Hello{ProtocolVersion: 0, ReceiveBufferSize: 65536, SendBufferSize: 65536, MaxMessageSize: 65536, MaxChunkCount: 5, EndpointURL: "opc.tcp://h:4855"}
	raw := WriteHello(hello)

	// Feed one byte at a time to exercise partial-frame accumulation.
	var frames []Frame
	for i := range raw {
		got, err := r.StoreBytes(raw[i : i+1])
		if err != nil {
			t.Fatalf("StoreBytes: %v", err)
		}
		frames = append(frames, got...)
	}
	if len(frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(frames))
	}
	decoded, err := DecodeHello(frames[0].Body)
	if err != nil {
		t.Fatalf("DecodeHello: %v", err)
	}
	if decoded != hello {
		t.Fatalf("mismatch: want %+v got %+v", hello, decoded)
	}
}

func TestReaderStoreBytesMultipleFramesInOneCall(t *testing.T) {
	r := NewReader(65536, 65536)
	ack := Ack{ProtocolVersion: 0, ReceiveBufferSize: 65536, SendBufferSize: 65536, MaxMessageSize: 65536, MaxChunkCount: 5}
	both := append(append([]byte{}, WriteAck(ack)...), WriteAck(ack)...)
	frames, err := r.StoreBytes(both)
	if err != nil {
		t.Fatalf("StoreBytes: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
}

func TestReaderRejectsOversizedMessage(t *testing.T) {
	r := NewReader(65536, 16)
	ack := Ack{}
	raw := WriteAck(ack)
	if _, err := r.StoreBytes(raw); opcerrors.CodeOf(err) != opcerrors.BadTcpMessageTooLarge {
		t.Fatalf("expected BadTcpMessageTooLarge, got %v", err)
	}
}

func TestWriterSequenceMonotonic(t *testing.T) {
	w := NewWriter()
	first := w.Next()
	second := w.Next()
	if second != first+1 {
		t.Fatalf("expected monotonic sequence, got %d then %d", first, second)
	}
}
