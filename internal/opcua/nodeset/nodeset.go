// Package nodeset provides a minimal MessageHandler implementation for
// exercising the transport without a full address-space/service layer
// (deliberately out of scope). It models three request shapes the
// transport's end-to-end tests need: an echo request that always answers
// immediately, a Read request, and a Publish request that is held pending
// data rather than answered inline.
package nodeset

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/balsa02/opcua/internal/logger"
)

// ReadRequest is a minimal stand-in for a structurally decoded Read service
// request: the handler only needs to know it arrived to produce a response.
type ReadRequest struct {
	NodesToRead []uint32
}

// ReadResponse answers a ReadRequest with one opaque value per requested node.
type ReadResponse struct {
	Results []any
}

// PublishRequest is a minimal stand-in for a Publish service request: the
// handler retains it until the subscription engine has data to deliver.
type PublishRequest struct {
	SubscriptionAcknowledgements []uint32
}

// EchoRequest/EchoResponse exist purely to exercise the handler contract end
// to end without any service-specific decoding at all.
type EchoRequest struct{ Payload []byte }
type EchoResponse struct{ Payload []byte }

// Handler is a test-weight MessageHandler: it answers Read and Echo requests
// immediately and retains Publish requests (returns nil, nil), recording
// them so a caller (typically a test) can later trigger delivery via a
// Session's Tick.
type Handler struct {
	mu      sync.Mutex
	held    map[uint32]PublishRequest
	log     *slog.Logger
}

// New builds a Handler with no requests held.
func New() *Handler {
	return &Handler{
		held: make(map[uint32]PublishRequest),
		log:  logger.Logger().With("component", "nodeset"),
	}
}

// HandleMessage implements handler.MessageHandler.
func (h *Handler) HandleMessage(requestID uint32, request any) (any, error) {
	switch req := request.(type) {
	case EchoRequest:
		return EchoResponse{Payload: req.Payload}, nil
	case ReadRequest:
		results := make([]any, len(req.NodesToRead))
		for i := range req.NodesToRead {
			results[i] = nil
		}
		return ReadResponse{Results: results}, nil
	case PublishRequest:
		h.mu.Lock()
		h.held[requestID] = req
		h.mu.Unlock()
		h.log.Debug("publish request held pending data", "request_id", requestID)
		return nil, nil
	default:
		return nil, fmt.Errorf("nodeset: unsupported request type %T", request)
	}
}

// HeldRequestIDs returns the request ids of Publish requests currently
// retained, for tests that want to assert on hand-off into the session's
// publish queue.
func (h *Handler) HeldRequestIDs() []uint32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]uint32, 0, len(h.held))
	for id := range h.held {
		ids = append(ids, id)
	}
	return ids
}
