// Package uatypes implements the small set of OPC UA built-in encodings
// (IEC 62541-6 §5.2) needed by the TCP transport: UAString and the 32-bit
// primitives read directly via encoding/binary elsewhere.
package uatypes

import (
	"encoding/binary"
	"fmt"
)

// nullStringLength is the wire encoding of a null (as opposed to empty) string.
const nullStringLength = -1

// MaxStringLength bounds decode to avoid a hostile length field causing a
// multi-gigabyte allocation attempt.
const MaxStringLength = 1 << 28

// DecodeString reads a UAString (length i32, −1 = null, else UTF-8 bytes)
// from the front of buf. Returns the decoded string (empty for both null and
// zero-length), the number of bytes consumed, and an error for truncated or
// oversized input.
func DecodeString(buf []byte) (string, int, error) {
	if len(buf) < 4 {
		return "", 0, fmt.Errorf("uatypes: truncated string length, have %d bytes", len(buf))
	}
	n := int32(binary.LittleEndian.Uint32(buf[0:4]))
	if n == nullStringLength {
		return "", 4, nil
	}
	if n < 0 {
		return "", 0, fmt.Errorf("uatypes: negative string length %d", n)
	}
	if int64(n) > MaxStringLength {
		return "", 0, fmt.Errorf("uatypes: string length %d exceeds max %d", n, MaxStringLength)
	}
	total := 4 + int(n)
	if len(buf) < total {
		return "", 0, fmt.Errorf("uatypes: truncated string body, want %d have %d", n, len(buf)-4)
	}
	return string(buf[4:total]), total, nil
}

// EncodeString appends the wire encoding of s to dst and returns the result.
// An empty string is encoded as zero-length, not null; callers that need to
// distinguish null strings should use EncodeNullString.
func EncodeString(dst []byte, s string) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
	dst = append(dst, lenBuf[:]...)
	return append(dst, s...)
}

// EncodeNullString appends the null-string wire encoding to dst.
func EncodeNullString(dst []byte) []byte {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], 0xFFFFFFFF) // nullStringLength (-1) as i32
	return append(dst, lenBuf[:]...)
}
