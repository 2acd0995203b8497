package securechannel

import (
	"bytes"
	"testing"
	"time"

	opcerrors "github.com/balsa02/opcua/internal/errors"
	"github.com/balsa02/opcua/internal/opcua/chunker"
	"github.com/balsa02/opcua/internal/opcua/tcpmsg"
)

func TestOpenSecureChannelIssueThenRenew(t *testing.T) {
	svc := NewService(1 * time.Hour)
	ch := NewNone(svc.NextChannelID())

	resp, err := svc.OpenSecureChannel(ch, OpenRequest{Type: Issue, SecurityMode: ModeNone, ClientNonce: []byte("client-nonce")}, []byte("server-nonce-1"))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if resp.TokenID != 1 {
		t.Fatalf("expected first token id 1, got %d", resp.TokenID)
	}

	renewed, err := svc.OpenSecureChannel(ch, OpenRequest{Type: Renew, SecurityMode: ModeNone, ClientNonce: []byte("client-nonce")}, []byte("server-nonce-2"))
	if err != nil {
		t.Fatalf("Renew: %v", err)
	}
	if renewed.TokenID != 2 {
		t.Fatalf("expected renewed token id 2, got %d", renewed.TokenID)
	}

	// Both old and new tokens verify until the new one is used once.
	if err := ch.VerifyHeader(chunker.SymmetricSecurityHeader{TokenID: 1}); err != nil {
		t.Fatalf("expected previous token still valid: %v", err)
	}
	if err := ch.VerifyHeader(chunker.SymmetricSecurityHeader{TokenID: 2}); err != nil {
		t.Fatalf("expected new token valid: %v", err)
	}
}

func TestCloseSecureChannelAlwaysFaults(t *testing.T) {
	svc := NewService(time.Hour)
	if err := svc.CloseSecureChannel(); opcerrors.CodeOf(err) != opcerrors.BadSecureChannelClosed {
		t.Fatalf("expected BadSecureChannelClosed, got %v", err)
	}
}

func TestOpenSecureChannelRejectsUnsupportedMode(t *testing.T) {
	svc := NewService(time.Hour)
	ch := NewNone(svc.NextChannelID())
	_, err := svc.OpenSecureChannel(ch, OpenRequest{Type: Issue, SecurityMode: ModeSignAndEncrypt, ClientNonce: []byte("n")}, []byte("s"))
	if opcerrors.CodeOf(err) != opcerrors.BadSecurityModeRejected {
		t.Fatalf("expected BadSecurityModeRejected, got %v", err)
	}
}

func TestApplySecurityThenVerifyAndRemoveRoundTrip(t *testing.T) {
	svc := NewService(time.Hour)
	ch := NewNone(svc.NextChannelID())
	resp, err := svc.OpenSecureChannel(ch, OpenRequest{Type: Issue, SecurityMode: ModeNone, ClientNonce: []byte("n")}, []byte("s"))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	c := &chunker.Chunk{
		MessageType: tcpmsg.TypeMessage,
		Final:       tcpmsg.Final,
		ChannelID:   resp.ChannelID,
		Security:    chunker.SymmetricSecurityHeader{TokenID: resp.TokenID},
		Sequence:    chunker.SequenceHeader{SequenceNumber: 1, RequestID: 42},
		Body:        []byte("request body"),
	}

	var buf bytes.Buffer
	if _, err := ch.ApplySecurity(c, &buf); err != nil {
		t.Fatalf("ApplySecurity: %v", err)
	}

	got, err := ch.VerifyAndRemoveSecurity(tcpmsg.TypeMessage, tcpmsg.Final, buf.Bytes())
	if err != nil {
		t.Fatalf("VerifyAndRemoveSecurity: %v", err)
	}
	if got.ChannelID != c.ChannelID || got.Sequence != c.Sequence || string(got.Body) != string(c.Body) {
		t.Fatalf("round trip mismatch: want %+v got %+v", c, got)
	}
}

func TestVerifyAndRemoveSecurityRejectsUnknownToken(t *testing.T) {
	svc := NewService(time.Hour)
	ch := NewNone(svc.NextChannelID())
	if _, err := svc.OpenSecureChannel(ch, OpenRequest{Type: Issue, SecurityMode: ModeNone, ClientNonce: []byte("n")}, []byte("s")); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	c := &chunker.Chunk{
		MessageType: tcpmsg.TypeMessage,
		Final:       tcpmsg.Final,
		ChannelID:   ch.ChannelID(),
		Security:    chunker.SymmetricSecurityHeader{TokenID: 9999},
		Sequence:    chunker.SequenceHeader{SequenceNumber: 1, RequestID: 1},
		Body:        []byte("x"),
	}
	var buf bytes.Buffer
	if _, err := ch.ApplySecurity(c, &buf); err != nil {
		t.Fatalf("ApplySecurity: %v", err)
	}
	if _, err := ch.VerifyAndRemoveSecurity(tcpmsg.TypeMessage, tcpmsg.Final, buf.Bytes()); opcerrors.CodeOf(err) != opcerrors.BadSecureChannelIdInvalid {
		t.Fatalf("expected BadSecureChannelIdInvalid, got %v", err)
	}
}
