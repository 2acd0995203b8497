// Package session implements the per-connection Session/Subscription bridge:
// pending publish requests, subscriptions, and the stale-request expiry and
// tick surface the subscription pump drives.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// PublishResponseEntry pairs a held Publish request id with the response the
// subscription engine produced for it once data (or a keep-alive) was ready.
type PublishResponseEntry struct {
	RequestID uint32
	Response  any
}

// pendingPublish is a Publish request the MessageHandler retained (returned
// nil, nil) pending data, tagged with the deadline after which it expires.
type pendingPublish struct {
	requestID uint32
	deadline  time.Time
}

// subscription is the minimal state a Session needs to drive a tick: an
// identifier and the next-due wall-clock time.
type subscription struct {
	id            uint32
	publishingInterval time.Duration
	nextDue       time.Time
}

// Session is per-connection mutable state: pending publish requests (with
// expiry), subscriptions, a termination flag, and a back-reference to the
// channel id it rides on. It is exclusively owned by its TcpTransport and
// shared for read with the subscription-pump task, guarded by mu since it is
// the one piece of transport state more than one goroutine touches.
type Session struct {
	mu sync.RWMutex

	id uuid.UUID // log/metrics correlation only, never serialized on the wire

	channelID uint32

	pending       []pendingPublish
	subscriptions map[uint32]*subscription
	nextSubID     uint32

	outgoing []PublishResponseEntry

	terminated bool
}

// New builds a Session bound to channelID, tagged with a fresh correlation id.
func New(channelID uint32) *Session {
	return &Session{
		id:            uuid.New(),
		channelID:     channelID,
		subscriptions: make(map[uint32]*subscription),
	}
}

// ID returns the session's log/metrics correlation identifier.
func (s *Session) ID() uuid.UUID {
	return s.id
}

// ChannelID returns the secure channel this session rides on.
func (s *Session) ChannelID() uint32 {
	return s.channelID
}

// HoldPublishRequest records that requestID was retained by the handler
// (Publish request awaiting data), expiring at deadline if never served.
func (s *Session) HoldPublishRequest(requestID uint32, deadline time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, pendingPublish{requestID: requestID, deadline: deadline})
}

// AddSubscription registers a subscription with the given publishing
// interval, due for its first tick at now+interval, and returns its id.
func (s *Session) AddSubscription(now time.Time, publishingInterval time.Duration) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subscriptions[id] = &subscription{
		id:                 id,
		publishingInterval: publishingInterval,
		nextDue:            now.Add(publishingInterval),
	}
	return id
}

// RemoveSubscription deletes a subscription by id.
func (s *Session) RemoveSubscription(id uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscriptions, id)
}

// ExpireStalePublishRequests drops pending publish requests whose deadline
// has passed as of now. Wall-clock semantics are used rather than
// lifetimeCount*publishingInterval bookkeeping, which would require
// subscription-lifetime state this package does not otherwise own (see
// DESIGN.md).
func (s *Session) ExpireStalePublishRequests(now time.Time) []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []uint32
	live := s.pending[:0]
	for _, p := range s.pending {
		if now.After(p.deadline) {
			expired = append(expired, p.requestID)
			continue
		}
		live = append(live, p)
	}
	s.pending = live
	return expired
}

// Tick advances every due subscription and returns the publish responses
// produced, each carrying the oldest still-pending request id so the caller
// can surface it on the write channel. A subscription with no pending
// request to satisfy is skipped (nothing to deliver yet).
func (s *Session) Tick(now time.Time, makeResponse func(subscriptionID uint32) any) []PublishResponseEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	var produced []PublishResponseEntry
	for _, sub := range s.subscriptions {
		if now.Before(sub.nextDue) {
			continue
		}
		sub.nextDue = now.Add(sub.publishingInterval)

		if len(s.pending) == 0 {
			continue
		}
		req := s.pending[0]
		s.pending = s.pending[1:]

		produced = append(produced, PublishResponseEntry{
			RequestID: req.requestID,
			Response:  makeResponse(sub.id),
		})
	}
	s.outgoing = append(s.outgoing, produced...)
	return produced
}

// TakePublishResponses drains and returns every publish response queued by
// Tick since the last call, in production order.
func (s *Session) TakePublishResponses() []PublishResponseEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.outgoing
	s.outgoing = nil
	return out
}

// Terminate marks the session terminated. Monotonic: never cleared once set.
func (s *Session) Terminate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminated = true
}

// Terminated reports whether the session has been marked terminated.
func (s *Session) Terminated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.terminated
}

// PendingCount reports the number of publish requests currently held,
// exposed for tests and metrics.
func (s *Session) PendingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending)
}
