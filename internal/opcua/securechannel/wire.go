package securechannel

import (
	"fmt"
	"time"

	opcerrors "github.com/balsa02/opcua/internal/errors"
	"github.com/balsa02/opcua/internal/opcua/uatypes"
)

// OpenSecureChannelRequest/Response wire bodies are the fixed-field subset of
// the full OPC UA service structures this subsystem is responsible for; the
// remaining service-specific fields (certificates for Sign/SignAndEncrypt,
// policy URI negotiation) are a fuller policy implementation's concern (see
// securechannel.None's doc comment).

func le32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLE32(dst []byte, v uint32) []byte {
	return append(dst, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

// DecodeOpenRequest parses RequestType(u32) | SecurityMode(u32) |
// ClientNonce(ByteString) | RequestedLifetime(u32, milliseconds) from body.
func DecodeOpenRequest(body []byte) (OpenRequest, error) {
	var req OpenRequest
	if len(body) < 8 {
		return req, opcerrors.NewSecurityError("decodeOpenRequest", opcerrors.BadDecodingError,
			fmt.Errorf("truncated open secure channel request"))
	}
	reqType := le32(body[0:4])
	switch reqType {
	case 0:
		req.Type = Issue
	case 1:
		req.Type = Renew
	default:
		return req, opcerrors.NewSecurityError("decodeOpenRequest", opcerrors.BadDecodingError,
			fmt.Errorf("unknown request type %d", reqType))
	}
	req.SecurityMode = SecurityMode(le32(body[4:8]))

	nonce, n, err := uatypes.DecodeByteString(body[8:])
	if err != nil {
		return req, opcerrors.NewSecurityError("decodeOpenRequest", opcerrors.BadDecodingError, err)
	}
	req.ClientNonce = nonce
	offset := 8 + n

	if len(body) < offset+4 {
		return req, opcerrors.NewSecurityError("decodeOpenRequest", opcerrors.BadDecodingError,
			fmt.Errorf("truncated requested lifetime"))
	}
	req.RequestedLifetime = time.Duration(le32(body[offset:offset+4])) * time.Millisecond
	return req, nil
}

// EncodeOpenResponse serializes ChannelID(u32) | TokenID(u32) |
// RevisedLifetime(u32, ms) | ServerNonce(ByteString).
func EncodeOpenResponse(resp *OpenResponse) []byte {
	buf := make([]byte, 0, 16+len(resp.ServerNonce))
	buf = putLE32(buf, resp.ChannelID)
	buf = putLE32(buf, resp.TokenID)
	buf = putLE32(buf, uint32(resp.RevisedLifetime/time.Millisecond))
	buf = uatypes.EncodeByteString(buf, resp.ServerNonce)
	return buf
}

// EncodeServiceFault serializes a minimal service fault body: just the
// status code, which is all the transport's best-effort ERR/fault path needs.
func EncodeServiceFault(code opcerrors.StatusCode) []byte {
	return putLE32(nil, uint32(code))
}
