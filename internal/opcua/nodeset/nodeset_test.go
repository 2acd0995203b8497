package nodeset

import "testing"

func TestHandleMessageEcho(t *testing.T) {
	h := New()
	resp, err := h.HandleMessage(1, EchoRequest{Payload: []byte("hi")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	echo, ok := resp.(EchoResponse)
	if !ok || string(echo.Payload) != "hi" {
		t.Fatalf("unexpected echo response: %+v", resp)
	}
}

func TestHandleMessageRead(t *testing.T) {
	h := New()
	resp, err := h.HandleMessage(2, ReadRequest{NodesToRead: []uint32{1, 2, 3}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	read, ok := resp.(ReadResponse)
	if !ok || len(read.Results) != 3 {
		t.Fatalf("unexpected read response: %+v", resp)
	}
}

func TestHandleMessagePublishIsHeld(t *testing.T) {
	h := New()
	resp, err := h.HandleMessage(7, PublishRequest{})
	if err != nil || resp != nil {
		t.Fatalf("expected nil, nil for held publish request, got %v, %v", resp, err)
	}
	ids := h.HeldRequestIDs()
	if len(ids) != 1 || ids[0] != 7 {
		t.Fatalf("expected request 7 held, got %v", ids)
	}
}

func TestHandleMessageUnsupportedType(t *testing.T) {
	h := New()
	if _, err := h.HandleMessage(1, 42); err == nil {
		t.Fatalf("expected error for unsupported request type")
	}
}
