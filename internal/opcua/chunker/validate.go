package chunker

import (
	"fmt"

	opcerrors "github.com/balsa02/opcua/internal/errors"
	"github.com/balsa02/opcua/internal/opcua/tcpmsg"
)

// ValidateChunks checks that chunks (all sharing one request_id) form a
// well-formed group: strictly increasing sequence numbers starting at
// expectedSeqStart (mod 2^32), a single shared channel id, a security
// header that passes hv.VerifyHeader, and exactly one Final/FinalError
// chunk as the last element. It returns the next expected sequence number
// for the channel.
//
// Sequence-number wraparound: the running counter is itself a uint32, so
// expectedSeqStart+1 already wraps through 2^32 via normal unsigned
// arithmetic; equality against the wrapped value is what admits the single
// valid successor and rejects every other value, closing the "exact
// wraparound window" case.
func ValidateChunks(expectedSeqStart uint32, hv HeaderVerifier, chunks []*Chunk) (uint32, error) {
	if len(chunks) == 0 {
		return expectedSeqStart, opcerrors.NewChunkError("validateChunks", opcerrors.BadDecodingError,
			fmt.Errorf("empty chunk group"))
	}

	expected := expectedSeqStart
	channelID := chunks[0].ChannelID
	requestID := chunks[0].Sequence.RequestID

	for i, c := range chunks {
		if c.Sequence.SequenceNumber != expected {
			return expected, opcerrors.NewChunkError("validateChunks", opcerrors.BadSequenceNumberInvalid,
				fmt.Errorf("chunk %d: want sequence %d, got %d", i, expected, c.Sequence.SequenceNumber))
		}
		if c.ChannelID != channelID {
			return expected, opcerrors.NewChunkError("validateChunks", opcerrors.BadSecureChannelIdInvalid,
				fmt.Errorf("chunk %d: channel id %d != group channel %d", i, c.ChannelID, channelID))
		}
		if c.Sequence.RequestID != requestID {
			return expected, opcerrors.NewChunkError("validateChunks", opcerrors.BadDecodingError,
				fmt.Errorf("chunk %d: request id %d != group request %d", i, c.Sequence.RequestID, requestID))
		}
		if err := hv.VerifyHeader(c.Security); err != nil {
			return expected, opcerrors.NewChunkError("validateChunks", opcerrors.BadSecurityChecksFailed, err)
		}
		if i < len(chunks)-1 && c.Final != tcpmsg.Intermediate {
			return expected, opcerrors.NewChunkError("validateChunks", opcerrors.BadDecodingError,
				fmt.Errorf("chunk %d: non-final chunk must be Intermediate", i))
		}
		expected++
	}

	last := chunks[len(chunks)-1]
	if last.Final == tcpmsg.Intermediate {
		return expected, opcerrors.NewChunkError("validateChunks", opcerrors.BadDecodingError,
			fmt.Errorf("chunk group has no Final chunk"))
	}

	return expected, nil
}
