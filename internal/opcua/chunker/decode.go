package chunker

import (
	"fmt"

	opcerrors "github.com/balsa02/opcua/internal/errors"
)

// Decode concatenates the bodies of an already-validated chunk group and
// reads the leading NodeId identifying the service. The remainder is handed
// back unparsed: per-service structural decoding is generated code out of
// this subsystem's scope (see internal/opcua/handler).
func Decode(chunks []*Chunk) (*ServiceRequest, error) {
	if len(chunks) == 0 {
		return nil, opcerrors.NewChunkError("decode", opcerrors.BadDecodingError, fmt.Errorf("empty chunk group"))
	}

	total := 0
	for _, c := range chunks {
		total += len(c.Body)
	}
	body := make([]byte, 0, total)
	for _, c := range chunks {
		body = append(body, c.Body...)
	}

	nodeID, n, err := decodeNodeID(body)
	if err != nil {
		return nil, err
	}
	return &ServiceRequest{ServiceNodeID: nodeID, Body: body[n:]}, nil
}
