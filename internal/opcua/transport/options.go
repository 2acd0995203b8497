package transport

import (
	"fmt"
	"strings"
	"time"

	opcerrors "github.com/balsa02/opcua/internal/errors"
	"github.com/balsa02/opcua/internal/opcua/audit"
	"github.com/balsa02/opcua/internal/opcua/chunker"
	"github.com/balsa02/opcua/internal/opcua/handler"
	"github.com/balsa02/opcua/internal/opcua/tcpmsg"
)

// ServerProtocolVersion is the only OPC UA TCP protocol version this server
// speaks; HELLO requests naming a newer version are rejected.
const ServerProtocolVersion uint32 = 0

// Default values for Options. The buffer sizes are above the protocol
// minimum of 8192 bytes (IEC 62541-6 §7.1.2.2).
const (
	DefaultReceiveBufferSize       = 65536
	DefaultSendBufferSize          = 65536
	DefaultMaxMessageSize          = 4 * 1024 * 1024
	DefaultMaxChunkCount           = 64
	DefaultHelloTimeout            = 5 * time.Second
	DefaultHelloTimeoutPollRate    = 250 * time.Millisecond
	DefaultSubscriptionTickRate    = 500 * time.Millisecond
	DefaultSecureChannelMaxLife    = 1 * time.Hour
	DefaultPublishRequestTimeout   = 60 * time.Second
	defaultChunkOverhead           = 32
)

// Options carries the per-connection configuration HELLO negotiates against:
// buffer/message/chunk-count defaults, timers, and the application-layer
// collaborators (MessageHandler, request/response codec, publish-response
// factory) the transport calls into without knowing their concrete types.
type Options struct {
	ReceiveBufferSize uint32
	SendBufferSize    uint32
	MaxMessageSize    uint32
	MaxChunkCount     uint32

	HelloTimeout         time.Duration
	HelloTimeoutPollRate time.Duration
	SubscriptionTickRate time.Duration
	SecureChannelMaxLife time.Duration
	PublishRequestTimeout time.Duration

	Handler         handler.MessageHandler
	DecodeRequest   func(*chunker.ServiceRequest) (any, error)
	EncodeResponse  func(any) ([]byte, chunker.NodeID, error)
	MakePublishResp func(subscriptionID uint32) any

	// Audit, if non-nil, receives connection and secure-channel lifecycle
	// events. Optional: a nil Audit silently disables reporting.
	Audit *audit.Manager
}

// ApplyDefaults fills zero-valued fields with protocol-conformant defaults.
func (o *Options) ApplyDefaults() {
	if o.ReceiveBufferSize == 0 {
		o.ReceiveBufferSize = DefaultReceiveBufferSize
	}
	if o.SendBufferSize == 0 {
		o.SendBufferSize = DefaultSendBufferSize
	}
	if o.MaxMessageSize == 0 {
		o.MaxMessageSize = DefaultMaxMessageSize
	}
	if o.MaxChunkCount == 0 {
		o.MaxChunkCount = DefaultMaxChunkCount
	}
	if o.HelloTimeout == 0 {
		o.HelloTimeout = DefaultHelloTimeout
	}
	if o.HelloTimeoutPollRate == 0 {
		o.HelloTimeoutPollRate = DefaultHelloTimeoutPollRate
	}
	if o.SubscriptionTickRate == 0 {
		o.SubscriptionTickRate = DefaultSubscriptionTickRate
	}
	if o.SecureChannelMaxLife == 0 {
		o.SecureChannelMaxLife = DefaultSecureChannelMaxLife
	}
	if o.PublishRequestTimeout == 0 {
		o.PublishRequestTimeout = DefaultPublishRequestTimeout
	}
}

// maxChunkBodySize is the largest outbound chunk body this connection may
// emit, derived from the negotiated send buffer size less frame overhead.
func (o *Options) maxChunkBodySize() int {
	size := int(o.SendBufferSize) - tcpmsg.HeaderSize - defaultChunkOverhead
	if size < 1 {
		size = 1
	}
	return size
}

// validateHello checks a HELLO body's fields against this server's limits
// and the protocol minimums (IEC 62541-6 §7.1.2.2).
func (o *Options) validateHello(h tcpmsg.Hello) error {
	if h.ProtocolVersion > ServerProtocolVersion {
		return opcerrors.NewTransportError("validateHello", opcerrors.BadProtocolVersionUnsupported,
			fmt.Errorf("client protocol version %d unsupported (server=%d)", h.ProtocolVersion, ServerProtocolVersion))
	}
	if h.ReceiveBufferSize < tcpmsg.MinBufferSize || h.SendBufferSize < tcpmsg.MinBufferSize {
		return opcerrors.NewTransportError("validateHello", opcerrors.BadCommunicationError,
			fmt.Errorf("buffer sizes below protocol minimum %d", tcpmsg.MinBufferSize))
	}
	if len(h.EndpointURL) > tcpmsg.MaxEndpointURLLength {
		return opcerrors.NewTransportError("validateHello", opcerrors.BadTcpEndpointUrlInvalid,
			fmt.Errorf("endpoint url exceeds %d bytes", tcpmsg.MaxEndpointURLLength))
	}
	if !strings.HasPrefix(h.EndpointURL, "opc.tcp://") {
		return opcerrors.NewTransportError("validateHello", opcerrors.BadTcpEndpointUrlInvalid,
			fmt.Errorf("endpoint url %q is not an opc.tcp:// URL", h.EndpointURL))
	}
	return nil
}
