package tcpmsg

import (
	"sync/atomic"

	"github.com/balsa02/opcua/internal/opcua/uatypes"
)

// Writer owns the outbound sequence-number counter shared by every chunk
// emitted on one channel's lifetime, held as an atomic value rather than
// under a lock. It has no other connection state.
type Writer struct {
	seq atomic.Uint32
}

// NewWriter builds a Writer whose first assigned sequence number is 1. OPC UA
// reserves sequence number 0; the first chunk on a channel always carries 1.
func NewWriter() *Writer {
	w := &Writer{}
	w.seq.Store(0)
	return w
}

// Next returns the next outbound sequence number, wrapping at 2^32 per the
// wire's mod-2^32 arithmetic. Implements chunker.SeqSource.
func (w *Writer) Next() uint32 {
	return w.seq.Add(1)
}

// WriteHello serializes a HELLO frame (header + body), used only by clients;
// kept here for symmetry and test fixtures.
func WriteHello(h Hello) []byte {
	body := make([]byte, 0, 20+len(h.EndpointURL)+4)
	body = putLE32(body, h.ProtocolVersion)
	body = putLE32(body, h.ReceiveBufferSize)
	body = putLE32(body, h.SendBufferSize)
	body = putLE32(body, h.MaxMessageSize)
	body = putLE32(body, h.MaxChunkCount)
	body = uatypes.EncodeString(body, h.EndpointURL)
	return frame(TypeHello, Final, body)
}

// WriteAck serializes a complete ACK frame (header + body).
func WriteAck(a Ack) []byte {
	return frame(TypeAck, Final, EncodeAck(a))
}

// WriteError serializes a complete ERR frame (header + body). ERR frames are
// always sent unsecured, per spec §7's "emitted without security" rule.
func WriteError(e ErrorBody) []byte {
	return frame(TypeError, Final, EncodeError(e))
}

func frame(t MsgType, final Finality, body []byte) []byte {
	h := Header{Type: t, Final: final, Size: uint32(HeaderSize + len(body))}
	out := EncodeHeader(h)
	return append(out, body...)
}

