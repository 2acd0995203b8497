// Package securechannel implements the OPC UA secure-channel key lifecycle
// (Issue, Renew, Close) and per-chunk security verification. The exported
// SecureChannel interface is the collaborator the transport depends on at
// arm's length; None is the single concrete SecurityPolicy=None
// implementation this module ships so the transport and its tests can run
// without a full crypto-policy matrix.
package securechannel

import (
	"bytes"

	"github.com/balsa02/opcua/internal/opcua/chunker"
	"github.com/balsa02/opcua/internal/opcua/tcpmsg"
)

// NoneSecurityPolicyURI is the wire identifier for the SecurityPolicy=None
// profile: no signing, no encryption, structural checks only.
const NoneSecurityPolicyURI = "http://opcfoundation.org/UA/SecurityPolicy#None"

// SecureChannel is the per-connection security boundary: it verifies and
// strips security from inbound chunks and applies it to outbound ones.
// msgType/final are passed explicitly because the TCP frame header they come
// from is already stripped by the time tcpmsg hands bytes to this layer.
type SecureChannel interface {
	VerifyAndRemoveSecurity(msgType tcpmsg.MsgType, final tcpmsg.Finality, raw []byte) (*chunker.Chunk, error)
	ApplySecurity(c *chunker.Chunk, out *bytes.Buffer) (int, error)
	VerifyHeader(h chunker.SecurityHeader) error
}
