package securechannel

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	opcerrors "github.com/balsa02/opcua/internal/errors"
	"github.com/balsa02/opcua/internal/opcua/chunker"
	"github.com/balsa02/opcua/internal/opcua/tcpmsg"
	"github.com/balsa02/opcua/internal/opcua/uatypes"
)

// None implements SecureChannel for the SecurityPolicy=None profile: it
// performs the structural header parsing and token bookkeeping every policy
// needs, but no signing or encryption.
//
// Locking discipline: write during OPN/renew and when
// VerifyAndRemoveSecurity drops the previous token; read during ApplySecurity. The
// lock is never held across I/O.
type None struct {
	mu       sync.RWMutex
	channelID uint32
	current  *Token
	previous *Token
}

// NewNone builds a None secure channel bound to channelID (assigned by
// Service.OpenSecureChannel on Issue).
func NewNone(channelID uint32) *None {
	return &None{channelID: channelID}
}

// SetToken installs tok as the current token, demoting the prior current
// token to previous (retained until the new token's first verified use).
func (n *None) SetToken(tok *Token) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.previous = n.current
	n.current = tok
}

// ChannelID returns the channel id this instance was issued under.
func (n *None) ChannelID() uint32 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.channelID
}

// CurrentTokenID returns the current token's id, or 0 if none has been
// issued yet. Used by the outbound path to stamp the symmetric security
// header on MSG/CLO chunks.
func (n *None) CurrentTokenID() uint32 {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.current == nil {
		return 0
	}
	return n.current.TokenID
}

// VerifyHeader checks that h names the None policy (OPN) or carries a known
// token id (MSG/CLO).
func (n *None) VerifyHeader(h chunker.SecurityHeader) error {
	switch hdr := h.(type) {
	case chunker.AsymmetricSecurityHeader:
		if hdr.Policy != NoneSecurityPolicyURI {
			return opcerrors.NewSecurityError("verifyHeader", opcerrors.BadSecurityPolicyRejected,
				fmt.Errorf("unexpected policy %q", hdr.Policy))
		}
		return nil
	case chunker.NoSecurityHeader:
		if hdr.Policy != NoneSecurityPolicyURI {
			return opcerrors.NewSecurityError("verifyHeader", opcerrors.BadSecurityPolicyRejected,
				fmt.Errorf("unexpected policy %q", hdr.Policy))
		}
		return nil
	case chunker.SymmetricSecurityHeader:
		n.mu.RLock()
		defer n.mu.RUnlock()
		now := time.Now()
		if n.current != nil && hdr.TokenID == n.current.TokenID {
			if n.current.expired(now) {
				return opcerrors.NewSecurityError("verifyHeader", opcerrors.BadSecureChannelClosed,
					fmt.Errorf("token %d expired", hdr.TokenID))
			}
			return nil
		}
		if n.previous != nil && hdr.TokenID == n.previous.TokenID {
			if n.previous.expired(now) {
				return opcerrors.NewSecurityError("verifyHeader", opcerrors.BadSecureChannelClosed,
					fmt.Errorf("token %d expired", hdr.TokenID))
			}
			return nil
		}
		return opcerrors.NewSecurityError("verifyHeader", opcerrors.BadSecureChannelIdInvalid,
			fmt.Errorf("unknown token id %d", hdr.TokenID))
	default:
		return opcerrors.NewSecurityError("verifyHeader", opcerrors.BadSecurityChecksFailed,
			fmt.Errorf("unrecognized security header type %T", h))
	}
}

// VerifyAndRemoveSecurity parses channel_id | security_header | sequence_header
// | body from raw and, on a symmetric header whose token id matches the
// *current* token (not previous), drops the retained previous token. This is
// the renewal overlap-window rule: a previous token stays valid only until a
// message first verifies against its successor.
func (n *None) VerifyAndRemoveSecurity(msgType tcpmsg.MsgType, final tcpmsg.Finality, raw []byte) (*chunker.Chunk, error) {
	if len(raw) < 4 {
		return nil, opcerrors.NewSecurityError("verifyAndRemoveSecurity", opcerrors.BadDecodingError,
			fmt.Errorf("truncated channel id"))
	}
	channelID := binary.LittleEndian.Uint32(raw[0:4])
	offset := 4

	var header chunker.SecurityHeader
	switch msgType {
	case tcpmsg.TypeOpen:
		h, n2, err := decodeAsymmetricHeader(raw[offset:])
		if err != nil {
			return nil, err
		}
		header, offset = h, offset+n2
	case tcpmsg.TypeMessage, tcpmsg.TypeClose:
		if len(raw) < offset+4 {
			return nil, opcerrors.NewSecurityError("verifyAndRemoveSecurity", opcerrors.BadDecodingError,
				fmt.Errorf("truncated symmetric security header"))
		}
		tokenID := binary.LittleEndian.Uint32(raw[offset : offset+4])
		header = chunker.SymmetricSecurityHeader{TokenID: tokenID}
		offset += 4
	default:
		return nil, opcerrors.NewSecurityError("verifyAndRemoveSecurity", opcerrors.BadTcpMessageTypeInvalid,
			fmt.Errorf("message type %s is not a chunked type", msgType))
	}

	if err := n.VerifyHeader(header); err != nil {
		return nil, err
	}

	if sym, ok := header.(chunker.SymmetricSecurityHeader); ok {
		n.mu.Lock()
		if n.current != nil && sym.TokenID == n.current.TokenID {
			n.previous = nil
		}
		n.mu.Unlock()
	}

	if len(raw) < offset+8 {
		return nil, opcerrors.NewSecurityError("verifyAndRemoveSecurity", opcerrors.BadDecodingError,
			fmt.Errorf("truncated sequence header"))
	}
	seqHeader := chunker.SequenceHeader{
		SequenceNumber: binary.LittleEndian.Uint32(raw[offset : offset+4]),
		RequestID:      binary.LittleEndian.Uint32(raw[offset+4 : offset+8]),
	}
	offset += 8

	body := make([]byte, len(raw)-offset)
	copy(body, raw[offset:])

	return &chunker.Chunk{
		MessageType: msgType,
		Final:       final,
		ChannelID:   channelID,
		Security:    header,
		Sequence:    seqHeader,
		Body:        body,
	}, nil
}

// ApplySecurity serializes channel_id | security_header | sequence_header |
// body into out. The None policy performs no signing or encryption.
func (n *None) ApplySecurity(c *chunker.Chunk, out *bytes.Buffer) (int, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	start := out.Len()
	var chID [4]byte
	binary.LittleEndian.PutUint32(chID[:], c.ChannelID)
	out.Write(chID[:])

	switch h := c.Security.(type) {
	case chunker.AsymmetricSecurityHeader:
		out = encodeAsymmetricHeader(out, h)
	case chunker.SymmetricSecurityHeader:
		var tok [4]byte
		binary.LittleEndian.PutUint32(tok[:], h.TokenID)
		out.Write(tok[:])
	default:
		return 0, opcerrors.NewSecurityError("applySecurity", opcerrors.BadSecurityChecksFailed,
			fmt.Errorf("unrecognized security header type %T", c.Security))
	}

	var seq [8]byte
	binary.LittleEndian.PutUint32(seq[0:4], c.Sequence.SequenceNumber)
	binary.LittleEndian.PutUint32(seq[4:8], c.Sequence.RequestID)
	out.Write(seq[:])
	out.Write(c.Body)

	return out.Len() - start, nil
}

func decodeAsymmetricHeader(buf []byte) (chunker.AsymmetricSecurityHeader, int, error) {
	var h chunker.AsymmetricSecurityHeader
	policy, n, err := uatypes.DecodeString(buf)
	if err != nil {
		return h, 0, opcerrors.NewSecurityError("decodeAsymmetricHeader", opcerrors.BadDecodingError, err)
	}
	offset := n
	cert, n, err := uatypes.DecodeByteString(buf[offset:])
	if err != nil {
		return h, 0, opcerrors.NewSecurityError("decodeAsymmetricHeader", opcerrors.BadDecodingError, err)
	}
	offset += n
	thumb, n, err := uatypes.DecodeByteString(buf[offset:])
	if err != nil {
		return h, 0, opcerrors.NewSecurityError("decodeAsymmetricHeader", opcerrors.BadDecodingError, err)
	}
	offset += n
	h.Policy = policy
	h.SenderCertificate = cert
	h.ReceiverCertificateThumbprint = thumb
	return h, offset, nil
}

func encodeAsymmetricHeader(out *bytes.Buffer, h chunker.AsymmetricSecurityHeader) *bytes.Buffer {
	buf := uatypes.EncodeString(nil, h.Policy)
	buf = uatypes.EncodeByteString(buf, h.SenderCertificate)
	buf = uatypes.EncodeByteString(buf, h.ReceiverCertificateThumbprint)
	out.Write(buf)
	return out
}
