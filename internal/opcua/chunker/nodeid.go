package chunker

import (
	"encoding/binary"
	"fmt"

	opcerrors "github.com/balsa02/opcua/internal/errors"
)

// NodeID is the minimal two-byte/four-byte numeric NodeId encoding
// (IEC 62541-6 §5.2.2.9) used to identify service request/response types.
// String and GUID NodeId encodings are out of scope: every standard service
// type id is a small numeric id in namespace 0.
type NodeID struct {
	Namespace  uint8
	Identifier uint32
}

const (
	nodeIDTwoByte  = 0x00
	nodeIDFourByte = 0x01
)

// decodeNodeID reads a NodeId from the front of buf, returning the value and
// bytes consumed.
func decodeNodeID(buf []byte) (NodeID, int, error) {
	if len(buf) < 1 {
		return NodeID{}, 0, opcerrors.NewChunkError("nodeid.decode", opcerrors.BadDecodingError,
			fmt.Errorf("empty buffer"))
	}
	switch buf[0] {
	case nodeIDTwoByte:
		if len(buf) < 2 {
			return NodeID{}, 0, opcerrors.NewChunkError("nodeid.decode", opcerrors.BadDecodingError,
				fmt.Errorf("truncated two-byte NodeId"))
		}
		return NodeID{Namespace: 0, Identifier: uint32(buf[1])}, 2, nil
	case nodeIDFourByte:
		if len(buf) < 4 {
			return NodeID{}, 0, opcerrors.NewChunkError("nodeid.decode", opcerrors.BadDecodingError,
				fmt.Errorf("truncated four-byte NodeId"))
		}
		return NodeID{Namespace: buf[1], Identifier: uint32(binary.LittleEndian.Uint16(buf[2:4]))}, 4, nil
	default:
		return NodeID{}, 0, opcerrors.NewChunkError("nodeid.decode", opcerrors.BadServiceUnsupported,
			fmt.Errorf("unsupported NodeId encoding mask 0x%02x", buf[0]))
	}
}

// encodeNodeID appends the four-byte numeric NodeId encoding to dst.
func encodeNodeID(dst []byte, id NodeID) []byte {
	var idBuf [2]byte
	binary.LittleEndian.PutUint16(idBuf[:], uint16(id.Identifier))
	return append(dst, nodeIDFourByte, id.Namespace, idBuf[0], idBuf[1])
}
