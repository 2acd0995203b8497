package tcpmsg

import (
	"fmt"

	opcerrors "github.com/balsa02/opcua/internal/errors"
	"github.com/balsa02/opcua/internal/bufpool"
)

// Reader accumulates inbound bytes and extracts complete frames. It holds no
// connection state beyond its receive buffer; sequence counters and security
// verification live further up the stack (chunker, securechannel).
type Reader struct {
	buf            []byte
	receiveBufSize int
	maxMessageSize uint32
}

// NewReader builds a Reader whose growable buffer is bounded by
// receiveBufferSize and whose frames may not declare a size larger than
// maxMessageSize.
func NewReader(receiveBufferSize int, maxMessageSize uint32) *Reader {
	return &Reader{
		buf:            bufpool.Get(1024)[:0],
		receiveBufSize: receiveBufferSize,
		maxMessageSize: maxMessageSize,
	}
}

// StoreBytes appends data to the receive buffer and returns every complete
// frame now extractable, in arrival order. A frame is complete once its
// 8-byte header is present and Size-HeaderSize further bytes have arrived.
func (r *Reader) StoreBytes(data []byte) ([]Frame, error) {
	if len(r.buf)+len(data) > r.receiveBufSize {
		return nil, opcerrors.NewTransportError("tcpmsg.storeBytes", opcerrors.BadTcpMessageTooLarge,
			fmt.Errorf("receive buffer would exceed %d bytes", r.receiveBufSize))
	}
	r.buf = append(r.buf, data...)

	var frames []Frame
	for {
		if len(r.buf) < HeaderSize {
			break
		}
		h, err := DecodeHeader(r.buf)
		if err != nil {
			return frames, err
		}
		if h.Size < HeaderSize {
			return frames, opcerrors.NewTransportError("tcpmsg.storeBytes", opcerrors.BadDecodingError,
				fmt.Errorf("declared size %d smaller than header", h.Size))
		}
		if h.Size > r.maxMessageSize {
			return frames, opcerrors.NewTransportError("tcpmsg.storeBytes", opcerrors.BadTcpMessageTooLarge,
				fmt.Errorf("message size %d exceeds max %d", h.Size, r.maxMessageSize))
		}
		if uint32(len(r.buf)) < h.Size {
			break // wait for more bytes
		}
		body := make([]byte, h.Size-HeaderSize)
		copy(body, r.buf[HeaderSize:h.Size])
		frames = append(frames, Frame{Header: h, Body: body})
		remaining := copy(r.buf, r.buf[h.Size:])
		r.buf = r.buf[:remaining]
	}
	return frames, nil
}

// Close releases the receive buffer back to the pool. Callers must not use
// the Reader after calling Close.
func (r *Reader) Close() {
	bufpool.Put(r.buf[:cap(r.buf)])
	r.buf = nil
}
