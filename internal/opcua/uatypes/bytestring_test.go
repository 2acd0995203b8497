package uatypes

import (
	"bytes"
	"testing"
)

func TestByteStringRoundTrip(t *testing.T) {
	cases := [][]byte{nil, {}, {1, 2, 3}, []byte("certificate bytes")}
	for _, b := range cases {
		buf := EncodeByteString(nil, b)
		got, n, err := DecodeByteString(buf)
		if err != nil {
			t.Fatalf("DecodeByteString(%v): %v", b, err)
		}
		if n != len(buf) {
			t.Fatalf("consumed %d, want %d", n, len(buf))
		}
		if b == nil {
			if got != nil {
				t.Fatalf("expected nil for null byte string, got %v", got)
			}
			continue
		}
		if !bytes.Equal(got, b) {
			t.Fatalf("round trip mismatch: want %v got %v", b, got)
		}
	}
}

func TestDecodeByteStringTruncated(t *testing.T) {
	if _, _, err := DecodeByteString([]byte{1, 2}); err == nil {
		t.Fatalf("expected error on truncated length field")
	}
}
