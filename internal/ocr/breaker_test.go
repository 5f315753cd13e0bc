package ocr

import (
	"testing"
	"time"
)

func TestBreakerTransitions(t *testing.T) {
	now := time.Unix(0, 0)
	b := NewBreaker(3, 10*time.Second)
	b.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		b.RecordFailure()
	}
	if !b.Allow() {
		t.Fatal("breaker opened before threshold")
	}
	b.RecordSuccess()
	for i := 0; i < 3; i++ {
		b.RecordFailure()
	}
	if b.Allow() || b.State() != BreakerOpen {
		t.Fatal("breaker should be open after threshold failures")
	}

	now = now.Add(10 * time.Second)
	if b.State() != BreakerHalfOpen {
		t.Fatalf("state = %s, want half_open", b.State())
	}
	if !b.Allow() {
		t.Fatal("half-open breaker should admit a probe")
	}
	if b.Allow() {
		t.Fatal("half-open breaker admits only one probe at a time")
	}
	b.RecordSuccess()
	if b.State() != BreakerClosed || !b.Allow() {
		t.Fatal("successful probe should close the breaker")
	}
}

func TestNilBreakerAllowsEverything(t *testing.T) {
	var b *Breaker
	if NewBreaker(0, time.Second) != nil {
		t.Fatal("zero threshold should disable the breaker")
	}
	b.RecordFailure()
	b.RecordSuccess()
	if !b.Allow() || b.State() != BreakerClosed {
		t.Fatal("nil breaker must allow calls")
	}
}
