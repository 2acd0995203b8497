// Package chunker validates and assembles OPC UA TCP chunk groups (IEC
// 62541-6 §6.7) into service requests, and encodes service responses back
// into one or more chunks. It has no network or security-policy knowledge of
// its own: verification is delegated to a HeaderVerifier (implemented by
// internal/opcua/securechannel) and outbound sequence numbers are minted by
// a SeqSource (implemented by internal/opcua/tcpmsg.Writer).
package chunker

import "github.com/balsa02/opcua/internal/opcua/tcpmsg"

// SecurityHeader is policy-dependent: OPN chunks carry an asymmetric header
// (certificates), MSG/CLO chunks carry a symmetric header (a token id), and
// the None security policy carries only a policy URI.
type SecurityHeader interface {
	PolicyURI() string
}

// NoSecurityHeader is used for the None security policy, which still
// transmits a policy URI but no cryptographic material.
type NoSecurityHeader struct {
	Policy string
}

func (h NoSecurityHeader) PolicyURI() string { return h.Policy }

// AsymmetricSecurityHeader appears only on OPN chunks: it carries the
// sender's certificate and the thumbprint of the certificate the receiver
// should use to decrypt, alongside the policy URI.
type AsymmetricSecurityHeader struct {
	Policy                         string
	SenderCertificate              []byte
	ReceiverCertificateThumbprint  []byte
}

func (h AsymmetricSecurityHeader) PolicyURI() string { return h.Policy }

// SymmetricSecurityHeader appears on MSG/CLO chunks and identifies which
// secure-channel token's keys were used to sign/encrypt.
type SymmetricSecurityHeader struct {
	TokenID uint32
}

func (h SymmetricSecurityHeader) PolicyURI() string { return "" }

// SequenceHeader is the per-chunk sequencing pair every chunked frame carries.
type SequenceHeader struct {
	SequenceNumber uint32
	RequestID      uint32
}

// Chunk is one cleartext, structurally-parsed OPC UA chunk: the Framer only
// hands over raw frame bytes; SecureChannel.VerifyAndRemoveSecurity is
// responsible for producing a Chunk by parsing ChannelID/SecurityHeader/
// SequenceHeader and decrypting Body.
type Chunk struct {
	MessageType tcpmsg.MsgType
	Final       tcpmsg.Finality
	ChannelID   uint32
	Security    SecurityHeader
	Sequence    SequenceHeader
	Body        []byte
}

// SeqSource mints the next outbound sequence number. Implemented by
// tcpmsg.Writer, which owns the counter as an atomic value, while this
// package stays decoupled from tcpmsg's connection-level state.
type SeqSource interface {
	Next() uint32
}

// HeaderVerifier checks that a chunk's security header is consistent with
// the secure channel it arrived on. Implemented by securechannel.SecureChannel;
// declared here (rather than imported) to avoid a chunker<->securechannel cycle,
// since securechannel.VerifyAndRemoveSecurity constructs *Chunk values.
type HeaderVerifier interface {
	VerifyHeader(h SecurityHeader) error
}

// ServiceRequest is the structural decode result of a chunk group's
// concatenated body: the leading NodeId identifying the service, and the
// remaining bytes for a service-specific decoder (out of this package's
// scope, see internal/opcua/handler).
type ServiceRequest struct {
	ServiceNodeID NodeID
	Body          []byte
}
