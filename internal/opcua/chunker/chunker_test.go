package chunker

import (
	"testing"

	opcerrors "github.com/balsa02/opcua/internal/errors"
	"github.com/balsa02/opcua/internal/opcua/tcpmsg"
)

type acceptAllVerifier struct{}

func (acceptAllVerifier) VerifyHeader(SecurityHeader) error { return nil }

type rejectVerifier struct{}

func (rejectVerifier) VerifyHeader(SecurityHeader) error { return opcerrors.NewSecurityError("verify", opcerrors.BadSecurityChecksFailed, nil) }

func chunk(seq, requestID, channelID uint32, final tcpmsg.Finality, body []byte) *Chunk {
	return &Chunk{
		MessageType: tcpmsg.TypeMessage,
		Final:       final,
		ChannelID:   channelID,
		Security:    NoSecurityHeader{Policy: "http://opcfoundation.org/UA/SecurityPolicy#None"},
		Sequence:    SequenceHeader{SequenceNumber: seq, RequestID: requestID},
		Body:        body,
	}
}

func TestValidateChunksAcceptsInOrderSingleChunk(t *testing.T) {
	c := chunk(5, 1, 1, tcpmsg.Final, []byte("body"))
	next, err := ValidateChunks(5, acceptAllVerifier{}, []*Chunk{c})
	if err != nil {
		t.Fatalf("ValidateChunks: %v", err)
	}
	if next != 6 {
		t.Fatalf("expected next=6, got %d", next)
	}
}

func TestValidateChunksRejectsSkippedSequence(t *testing.T) {
	c := chunk(7, 1, 1, tcpmsg.Final, []byte("body"))
	if _, err := ValidateChunks(5, acceptAllVerifier{}, []*Chunk{c}); opcerrors.CodeOf(err) != opcerrors.BadSequenceNumberInvalid {
		t.Fatalf("expected BadSequenceNumberInvalid, got %v", err)
	}
}

func TestValidateChunksRejectsMismatchedChannel(t *testing.T) {
	chunks := []*Chunk{
		chunk(5, 1, 1, tcpmsg.Intermediate, []byte("a")),
		chunk(6, 1, 2, tcpmsg.Final, []byte("b")),
	}
	if _, err := ValidateChunks(5, acceptAllVerifier{}, chunks); opcerrors.CodeOf(err) != opcerrors.BadSecureChannelIdInvalid {
		t.Fatalf("expected BadSecureChannelIdInvalid, got %v", err)
	}
}

func TestValidateChunksPropagatesHeaderVerifyFailure(t *testing.T) {
	c := chunk(5, 1, 1, tcpmsg.Final, []byte("body"))
	if _, err := ValidateChunks(5, rejectVerifier{}, []*Chunk{c}); opcerrors.CodeOf(err) != opcerrors.BadSecurityChecksFailed {
		t.Fatalf("expected BadSecurityChecksFailed, got %v", err)
	}
}

func TestValidateChunksRequiresFinalChunk(t *testing.T) {
	c := chunk(5, 1, 1, tcpmsg.Intermediate, []byte("body"))
	if _, err := ValidateChunks(5, acceptAllVerifier{}, []*Chunk{c}); err == nil {
		t.Fatalf("expected error for group with no Final chunk")
	}
}

func TestDecodeReadsLeadingNodeID(t *testing.T) {
	nodeID := NodeID{Namespace: 0, Identifier: 450}
	body := encodeNodeID(nil, nodeID)
	body = append(body, []byte("payload")...)
	c := chunk(1, 1, 1, tcpmsg.Final, body)

	req, err := Decode([]*Chunk{c})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if req.ServiceNodeID != nodeID {
		t.Fatalf("NodeId mismatch: want %+v got %+v", nodeID, req.ServiceNodeID)
	}
	if string(req.Body) != "payload" {
		t.Fatalf("unexpected body: %q", req.Body)
	}
}

type fixedSeq struct{ n uint32 }

func (f *fixedSeq) Next() uint32 { f.n++; return f.n }

func TestEncodeDecodeRoundTrip(t *testing.T) {
	nodeID := NodeID{Namespace: 0, Identifier: 451}
	payload := []byte("hello world response")
	seq := &fixedSeq{}
	chunks, err := Encode(tcpmsg.TypeMessage, 7, 9, nodeID, payload, NoSecurityHeader{}, seq, 4096)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected single chunk for small payload, got %d", len(chunks))
	}
	req, err := Decode(chunks)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if req.ServiceNodeID != nodeID || string(req.Body) != string(payload) {
		t.Fatalf("round trip mismatch: %+v", req)
	}
}

func TestEncodeSplitsOversizedPayload(t *testing.T) {
	nodeID := NodeID{Namespace: 0, Identifier: 1}
	payload := make([]byte, 20)
	for i := range payload {
		payload[i] = byte(i)
	}
	seq := &fixedSeq{}
	chunks, err := Encode(tcpmsg.TypeMessage, 1, 1, nodeID, payload, NoSecurityHeader{}, seq, 8)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if i < len(chunks)-1 && c.Final != tcpmsg.Intermediate {
			t.Fatalf("chunk %d should be Intermediate", i)
		}
	}
	if chunks[len(chunks)-1].Final != tcpmsg.Final {
		t.Fatalf("last chunk should be Final")
	}
	// Sequence numbers must be strictly increasing across the group.
	for i := 1; i < len(chunks); i++ {
		if chunks[i].Sequence.SequenceNumber != chunks[i-1].Sequence.SequenceNumber+1 {
			t.Fatalf("non-monotonic sequence at chunk %d", i)
		}
	}
}
