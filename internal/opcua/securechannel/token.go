package securechannel

import (
	"crypto/sha256"
	"io"
	"time"

	"golang.org/x/crypto/hkdf"
)

// Token is one issued or renewed secure-channel token. At most one token is
// "current" per channel; a renewed token's predecessor is retained as
// "previous" until the first inbound message verified against the new
// token's id, per the §3 overlap-window rule.
type Token struct {
	ChannelID       uint32
	TokenID         uint32
	CreatedAt       time.Time
	RevisedLifetime time.Duration
	SigningKey      []byte
	EncryptingKey   []byte
	IV              []byte
}

// expired reports whether the token's lifetime has elapsed as of now.
func (t *Token) expired(now time.Time) bool {
	if t == nil {
		return true
	}
	return now.After(t.CreatedAt.Add(t.RevisedLifetime))
}

// keySizes for the None policy's placeholder derivation: real policies
// (Basic256Sha256, Aes256_Sha256_RsaPss, ...) would size these per their
// cipher suite; None never uses them for anything but bookkeeping.
const (
	signingKeySize    = 32
	encryptingKeySize = 32
	ivSize            = 16
)

// deriveKeys expands (clientNonce, serverNonce) via HKDF-SHA256 into a
// signing key, an encrypting key, and an IV in one pass, in place of the
// PSHA1 construction the OPC UA specification names for this purpose.
func deriveKeys(clientNonce, serverNonce []byte, info string) (signingKey, encryptingKey, iv []byte, err error) {
	secret := append(append([]byte(nil), clientNonce...), serverNonce...)
	reader := hkdf.New(sha256.New, secret, serverNonce, []byte(info))

	signingKey = make([]byte, signingKeySize)
	if _, err = io.ReadFull(reader, signingKey); err != nil {
		return nil, nil, nil, err
	}
	encryptingKey = make([]byte, encryptingKeySize)
	if _, err = io.ReadFull(reader, encryptingKey); err != nil {
		return nil, nil, nil, err
	}
	iv = make([]byte, ivSize)
	if _, err = io.ReadFull(reader, iv); err != nil {
		return nil, nil, nil, err
	}
	return signingKey, encryptingKey, iv, nil
}
