package nodeset

import (
	"encoding/binary"
	"fmt"

	opcerrors "github.com/balsa02/opcua/internal/errors"
	"github.com/balsa02/opcua/internal/opcua/chunker"
)

// Service identifiers for the three request shapes this stub understands.
// Real address-space code generation (deliberately out of scope) would
// assign these from the standard OPC UA numeric id table; these are demo ids
// local to this package.
const (
	NodeIDEcho    uint32 = 1
	NodeIDRead    uint32 = 2
	NodeIDPublish uint32 = 3
)

// DecodeRequest maps a chunker.ServiceRequest's leading NodeId and body into
// one of this package's request types. Per-service structural decoding in a
// full server is generated from the OPC UA XML schema; this hand-written
// codec exists only so the transport has a concrete handler to dispatch to.
func DecodeRequest(req *chunker.ServiceRequest) (any, error) {
	switch req.ServiceNodeID.Identifier {
	case NodeIDEcho:
		return EchoRequest{Payload: append([]byte(nil), req.Body...)}, nil
	case NodeIDRead:
		if len(req.Body) < 4 {
			return nil, opcerrors.NewChunkError("nodeset.decodeRequest", opcerrors.BadDecodingError,
				fmt.Errorf("truncated read request"))
		}
		count := binary.LittleEndian.Uint32(req.Body[0:4])
		if uint64(4+4*count) > uint64(len(req.Body)) {
			return nil, opcerrors.NewChunkError("nodeset.decodeRequest", opcerrors.BadDecodingError,
				fmt.Errorf("read request declares %d nodes but body is short", count))
		}
		nodes := make([]uint32, count)
		for i := range nodes {
			off := 4 + 4*i
			nodes[i] = binary.LittleEndian.Uint32(req.Body[off : off+4])
		}
		return ReadRequest{NodesToRead: nodes}, nil
	case NodeIDPublish:
		return PublishRequest{}, nil
	default:
		return nil, opcerrors.NewChunkError("nodeset.decodeRequest", opcerrors.BadServiceUnsupported,
			fmt.Errorf("unknown service node id %d", req.ServiceNodeID.Identifier))
	}
}

// EncodeResponse serializes one of this package's response types back into a
// body and the NodeId it should be framed under.
func EncodeResponse(resp any) ([]byte, chunker.NodeID, error) {
	switch r := resp.(type) {
	case EchoResponse:
		return r.Payload, chunker.NodeID{Namespace: 0, Identifier: NodeIDEcho}, nil
	case ReadResponse:
		buf := make([]byte, 4, 4+4*len(r.Results))
		binary.LittleEndian.PutUint32(buf, uint32(len(r.Results)))
		for range r.Results {
			buf = append(buf, 0, 0, 0, 0) // opaque placeholder value; real values are address-space content
		}
		return buf, chunker.NodeID{Namespace: 0, Identifier: NodeIDRead}, nil
	case PublishResponse:
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, r.SubscriptionID)
		return buf, chunker.NodeID{Namespace: 0, Identifier: NodeIDPublish}, nil
	default:
		return nil, chunker.NodeID{}, fmt.Errorf("nodeset: unsupported response type %T", resp)
	}
}

// PublishResponse is the payload delivered for a subscription's publish
// cycle, produced by MakePublishResponse and carried through Session.Tick.
type PublishResponse struct {
	SubscriptionID uint32
}

// MakePublishResponse is a session.Session-compatible publish response
// factory for wiring into transport.Options.
func MakePublishResponse(subscriptionID uint32) any {
	return PublishResponse{SubscriptionID: subscriptionID}
}
