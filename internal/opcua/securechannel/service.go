package securechannel

import (
	"fmt"
	"sync/atomic"
	"time"

	opcerrors "github.com/balsa02/opcua/internal/errors"
)

// RequestType distinguishes an OpenSecureChannel request that creates a new
// channel from one that renews an existing one.
type RequestType int

const (
	Issue RequestType = iota
	Renew
)

// SecurityMode mirrors the OPC UA MessageSecurityMode enumeration; only
// None is meaningfully supported by the None policy implementation.
type SecurityMode int

const (
	ModeNone SecurityMode = iota
	ModeSign
	ModeSignAndEncrypt
)

// OpenRequest carries the fields of an OpenSecureChannel request this
// service needs; structural decoding of the rest of the request is the
// chunker/handler's concern.
type OpenRequest struct {
	Type               RequestType
	SecurityMode       SecurityMode
	ClientNonce        []byte
	RequestedLifetime  time.Duration
	ClientProtocolVer  uint32
}

// OpenResponse is the subset of OpenSecureChannelResponse fields this
// subsystem is responsible for producing.
type OpenResponse struct {
	ChannelID       uint32
	TokenID         uint32
	RevisedLifetime time.Duration
	ServerNonce     []byte
}

// Service is the state-free OPC UA OpenSecureChannel/CloseSecureChannel
// handler (IEC 62541-6 §7.1.3): it mutates an injected SecureChannel (here,
// a *None) rather than holding per-channel state itself. channel_id and
// token_id counters are server-global and monotonic.
type Service struct {
	channelIDCounter atomic.Uint32
	tokenIDCounter   atomic.Uint32
	maxLifetime      time.Duration
}

// NewService builds a Service whose revised token lifetime is capped at maxLifetime.
func NewService(maxLifetime time.Duration) *Service {
	return &Service{maxLifetime: maxLifetime}
}

// NextChannelID allocates a fresh server-global channel id for a new channel.
func (s *Service) NextChannelID() uint32 { return s.channelIDCounter.Add(1) }

// OpenSecureChannel implements both Issue and Renew. serverNonce is supplied
// by the caller (the transport) since it is randomness, not a pure function
// of the request.
func (s *Service) OpenSecureChannel(ch *None, req OpenRequest, serverNonce []byte) (*OpenResponse, error) {
	if req.SecurityMode != ModeNone {
		return nil, opcerrors.NewSecurityError("openSecureChannel", opcerrors.BadSecurityModeRejected,
			fmt.Errorf("security mode %d not supported by the None policy", req.SecurityMode))
	}

	lifetime := req.RequestedLifetime
	if lifetime <= 0 || lifetime > s.maxLifetime {
		lifetime = s.maxLifetime
	}

	signingKey, encryptingKey, iv, err := deriveKeys(req.ClientNonce, serverNonce, NoneSecurityPolicyURI)
	if err != nil {
		return nil, opcerrors.NewSecurityError("openSecureChannel", opcerrors.BadSecurityChecksFailed, err)
	}

	tokenID := s.tokenIDCounter.Add(1)
	tok := &Token{
		ChannelID:       ch.ChannelID(),
		TokenID:         tokenID,
		CreatedAt:       time.Now(),
		RevisedLifetime: lifetime,
		SigningKey:      signingKey,
		EncryptingKey:   encryptingKey,
		IV:              iv,
	}

	switch req.Type {
	case Issue, Renew:
		ch.SetToken(tok)
	default:
		return nil, opcerrors.NewSecurityError("openSecureChannel", opcerrors.BadUnexpectedError,
			fmt.Errorf("unknown request type %d", req.Type))
	}

	return &OpenResponse{
		ChannelID:       ch.ChannelID(),
		TokenID:         tokenID,
		RevisedLifetime: lifetime,
		ServerNonce:     serverNonce,
	}, nil
}

// CloseSecureChannel always reports BadSecureChannelClosed: a CLO request
// never succeeds as a service call, it is the transport's signal to finish
// the connection after acknowledging it.
func (s *Service) CloseSecureChannel() error {
	return opcerrors.NewSecurityError("closeSecureChannel", opcerrors.BadSecureChannelClosed, nil)
}
