package tcpmsg

import "github.com/balsa02/opcua/internal/opcua/uatypes"

// MsgType is the 3-byte ASCII message type code from the OPC UA TCP header.
type MsgType string

const (
	TypeHello   MsgType = "HEL"
	TypeAck     MsgType = "ACK"
	TypeError   MsgType = "ERR"
	TypeOpen    MsgType = "OPN"
	TypeMessage MsgType = "MSG"
	TypeClose   MsgType = "CLO"
)

func (t MsgType) valid() bool {
	switch t {
	case TypeHello, TypeAck, TypeError, TypeOpen, TypeMessage, TypeClose:
		return true
	}
	return false
}

// IsChunked reports whether frames of this type carry a chunk body
// (channel id, security header, sequence header) as opposed to a flat,
// unsecured body (HEL/ACK/ERR).
func (t MsgType) IsChunked() bool {
	return t == TypeOpen || t == TypeMessage || t == TypeClose
}

// Finality is the 1-byte chunk-finality indicator following the message type.
type Finality byte

const (
	Final       Finality = 'F'
	Intermediate Finality = 'C'
	FinalError   Finality = 'A'
)

func (f Finality) valid() bool {
	switch f {
	case Final, Intermediate, FinalError:
		return true
	}
	return false
}

// HeaderSize is the fixed 8-byte OPC UA TCP frame header size.
const HeaderSize = 8

// MinBufferSize is the protocol-mandated minimum for receive/send buffer
// sizes negotiated during HELLO (IEC 62541-6 §7.1.2.2).
const MinBufferSize = 8192

// Header is the decoded 8-byte frame header common to every message type.
type Header struct {
	Type  MsgType
	Final Finality
	// Size is the total frame size including the 8-byte header.
	Size uint32
}

// Frame is one fully reassembled frame: the decoded header plus the raw
// bytes that followed it (length Size-HeaderSize). Frames of a chunked type
// (OPN/MSG/CLO) are handed to the chunker/securechannel layer for further
// structural decoding; HEL/ACK/ERR are decoded in this package.
type Frame struct {
	Header Header
	Body   []byte
}

// Hello is the HELLO message body (IEC 62541-6 §7.1.2.2).
type Hello struct {
	ProtocolVersion   uint32
	ReceiveBufferSize uint32
	SendBufferSize    uint32
	MaxMessageSize    uint32
	MaxChunkCount     uint32
	EndpointURL       string
}

// MaxEndpointURLLength bounds the HELLO endpoint_url field per spec.
const MaxEndpointURLLength = 4096

// Ack is the ACK message body (IEC 62541-6 §7.1.2.3); mirrors Hello's size
// quartet without the endpoint URL.
type Ack struct {
	ProtocolVersion   uint32
	ReceiveBufferSize uint32
	SendBufferSize    uint32
	MaxMessageSize    uint32
	MaxChunkCount     uint32
}

// ErrorBody is the ERR message body: a status code plus a human-readable reason.
type ErrorBody struct {
	Code   uint32
	Reason string
}

// DecodeHello parses a HELLO body (everything after the 8-byte header).
func DecodeHello(body []byte) (Hello, error) {
	var h Hello
	if len(body) < 20 {
		return h, errTruncated("hello", 20, len(body))
	}
	h.ProtocolVersion = le32(body[0:4])
	h.ReceiveBufferSize = le32(body[4:8])
	h.SendBufferSize = le32(body[8:12])
	h.MaxMessageSize = le32(body[12:16])
	h.MaxChunkCount = le32(body[16:20])
	url, _, err := uatypes.DecodeString(body[20:])
	if err != nil {
		return h, err
	}
	h.EndpointURL = url
	return h, nil
}

// EncodeAck serializes an ACK body (no header).
func EncodeAck(a Ack) []byte {
	buf := make([]byte, 0, 20)
	buf = putLE32(buf, a.ProtocolVersion)
	buf = putLE32(buf, a.ReceiveBufferSize)
	buf = putLE32(buf, a.SendBufferSize)
	buf = putLE32(buf, a.MaxMessageSize)
	buf = putLE32(buf, a.MaxChunkCount)
	return buf
}

// DecodeAck parses an ACK body (everything after the 8-byte header).
func DecodeAck(body []byte) (Ack, error) {
	var a Ack
	if len(body) < 20 {
		return a, errTruncated("ack", 20, len(body))
	}
	a.ProtocolVersion = le32(body[0:4])
	a.ReceiveBufferSize = le32(body[4:8])
	a.SendBufferSize = le32(body[8:12])
	a.MaxMessageSize = le32(body[12:16])
	a.MaxChunkCount = le32(body[16:20])
	return a, nil
}

// EncodeError serializes an ERR body (no header).
func EncodeError(e ErrorBody) []byte {
	buf := make([]byte, 0, 8+len(e.Reason))
	buf = putLE32(buf, e.Code)
	buf = uatypes.EncodeString(buf, e.Reason)
	return buf
}
