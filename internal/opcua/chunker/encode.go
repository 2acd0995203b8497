package chunker

import (
	"fmt"

	opcerrors "github.com/balsa02/opcua/internal/errors"
	"github.com/balsa02/opcua/internal/opcua/tcpmsg"
)

// Encode serializes a service response (identified by nodeID) into one or
// more Chunks, splitting the body so that each chunk's Body stays within
// maxChunkBodySize. Sequence numbers are minted from seq in emission order,
// the inverse of the rule ValidateChunks enforces on the way in.
func Encode(
	messageType tcpmsg.MsgType,
	channelID uint32,
	requestID uint32,
	nodeID NodeID,
	payload []byte,
	security SecurityHeader,
	seq SeqSource,
	maxChunkBodySize int,
) ([]*Chunk, error) {
	if maxChunkBodySize <= 0 {
		return nil, opcerrors.NewChunkError("encode", opcerrors.BadUnexpectedError,
			fmt.Errorf("max chunk body size must be positive, got %d", maxChunkBodySize))
	}

	body := encodeNodeID(make([]byte, 0, len(payload)+4), nodeID)
	body = append(body, payload...)

	var chunks []*Chunk
	for offset := 0; offset < len(body) || len(chunks) == 0; {
		end := offset + maxChunkBodySize
		if end > len(body) {
			end = len(body)
		}
		piece := body[offset:end]
		final := tcpmsg.Intermediate
		if end == len(body) {
			final = tcpmsg.Final
		}
		chunks = append(chunks, &Chunk{
			MessageType: messageType,
			Final:       final,
			ChannelID:   channelID,
			Security:    security,
			Sequence:    SequenceHeader{SequenceNumber: seq.Next(), RequestID: requestID},
			Body:        piece,
		})
		offset = end
	}
	return chunks, nil
}
