package uatypes

import (
	"encoding/binary"
	"fmt"
)

// DecodeByteString reads a ByteString (same wire shape as UAString: length
// i32, −1 = null) from the front of buf, returning nil for null. Like
// DecodeString it does no UTF-8 validation; it returns a copy of the raw bytes.
func DecodeByteString(buf []byte) ([]byte, int, error) {
	if len(buf) < 4 {
		return nil, 0, fmt.Errorf("uatypes: truncated byte string length, have %d bytes", len(buf))
	}
	n := int32(binary.LittleEndian.Uint32(buf[0:4]))
	if n == nullStringLength {
		return nil, 4, nil
	}
	if n < 0 {
		return nil, 0, fmt.Errorf("uatypes: negative byte string length %d", n)
	}
	if int64(n) > MaxStringLength {
		return nil, 0, fmt.Errorf("uatypes: byte string length %d exceeds max %d", n, MaxStringLength)
	}
	total := 4 + int(n)
	if len(buf) < total {
		return nil, 0, fmt.Errorf("uatypes: truncated byte string body, want %d have %d", n, len(buf)-4)
	}
	out := make([]byte, n)
	copy(out, buf[4:total])
	return out, total, nil
}

// EncodeByteString appends the wire encoding of b to dst. A nil slice is
// encoded as null (length -1); a non-nil empty slice is encoded as
// zero-length.
func EncodeByteString(dst []byte, b []byte) []byte {
	if b == nil {
		return EncodeNullString(dst)
	}
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
	dst = append(dst, lenBuf[:]...)
	return append(dst, b...)
}
