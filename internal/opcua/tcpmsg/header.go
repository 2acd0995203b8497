package tcpmsg

import (
	"encoding/binary"
	"fmt"

	opcerrors "github.com/balsa02/opcua/internal/errors"
)

func le32(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }

func putLE32(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

func errTruncated(what string, want, have int) error {
	return opcerrors.NewTransportError(what+".decode", opcerrors.BadDecodingError,
		fmt.Errorf("want at least %d bytes, have %d", want, have))
}

// DecodeHeader parses the 8-byte OPC UA TCP frame header at the front of buf.
func DecodeHeader(buf []byte) (Header, error) {
	var h Header
	if len(buf) < HeaderSize {
		return h, errTruncated("header", HeaderSize, len(buf))
	}
	t := MsgType(buf[0:3])
	if !t.valid() {
		return h, opcerrors.NewTransportError("header.decode", opcerrors.BadTcpMessageTypeInvalid,
			fmt.Errorf("unknown message type %q", buf[0:3]))
	}
	final := Finality(buf[3])
	if !final.valid() {
		return h, opcerrors.NewTransportError("header.decode", opcerrors.BadDecodingError,
			fmt.Errorf("invalid finality byte %q", buf[3]))
	}
	h.Type = t
	h.Final = final
	h.Size = le32(buf[4:8])
	return h, nil
}

// EncodeHeader serializes an 8-byte OPC UA TCP frame header.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:3], h.Type)
	buf[3] = byte(h.Final)
	binary.LittleEndian.PutUint32(buf[4:8], h.Size)
	return buf
}
