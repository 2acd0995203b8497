package session

import (
	"testing"
	"time"
)

func TestHoldAndExpireStalePublishRequests(t *testing.T) {
	s := New(1)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	s.HoldPublishRequest(1, start.Add(1*time.Second))
	s.HoldPublishRequest(2, start.Add(10*time.Second))

	if got := s.PendingCount(); got != 2 {
		t.Fatalf("expected 2 pending, got %d", got)
	}

	expired := s.ExpireStalePublishRequests(start.Add(5 * time.Second))
	if len(expired) != 1 || expired[0] != 1 {
		t.Fatalf("expected request 1 expired, got %v", expired)
	}
	if got := s.PendingCount(); got != 1 {
		t.Fatalf("expected 1 remaining pending, got %d", got)
	}
}

func TestTickProducesResponseForDueSubscription(t *testing.T) {
	s := New(1)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	subID := s.AddSubscription(start, 2*time.Second)
	s.HoldPublishRequest(7, start.Add(time.Minute))

	produced := s.Tick(start.Add(2*time.Second), func(sub uint32) any {
		if sub != subID {
			t.Fatalf("unexpected subscription id %d", sub)
		}
		return "publish-response"
	})
	if len(produced) != 1 || produced[0].RequestID != 7 {
		t.Fatalf("expected one response for request 7, got %+v", produced)
	}

	drained := s.TakePublishResponses()
	if len(drained) != 1 {
		t.Fatalf("expected 1 drained response, got %d", len(drained))
	}
	if again := s.TakePublishResponses(); len(again) != 0 {
		t.Fatalf("expected drain to be empty on second call, got %d", len(again))
	}
}

func TestTickSkipsWhenNoPendingRequest(t *testing.T) {
	s := New(1)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.AddSubscription(start, time.Second)

	produced := s.Tick(start.Add(time.Second), func(uint32) any { return "x" })
	if len(produced) != 0 {
		t.Fatalf("expected no responses with no pending requests, got %d", len(produced))
	}
}

func TestTerminateIsMonotonic(t *testing.T) {
	s := New(1)
	if s.Terminated() {
		t.Fatalf("expected not terminated initially")
	}
	s.Terminate()
	s.Terminate()
	if !s.Terminated() {
		t.Fatalf("expected terminated after Terminate()")
	}
}

func TestRemoveSubscriptionStopsTicks(t *testing.T) {
	s := New(1)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	subID := s.AddSubscription(start, time.Second)
	s.HoldPublishRequest(1, start.Add(time.Minute))
	s.RemoveSubscription(subID)

	produced := s.Tick(start.Add(time.Second), func(uint32) any { return "x" })
	if len(produced) != 0 {
		t.Fatalf("expected no responses after subscription removal, got %d", len(produced))
	}
}
