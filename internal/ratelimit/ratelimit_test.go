package ratelimit

import (
	"testing"
	"time"
)

func withFakeClock(l *Limiter, start time.Time) *time.Time {
	cur := start
	l.now = func() time.Time { return cur }
	return &cur
}

func TestRecordAtLimit(t *testing.T) {
	l := New(10)
	cur := withFakeClock(l, time.Unix(0, 0))
	for i := 0; i < 10; i++ {
		if !l.Record() {
			t.Fatalf("record %d failed, want success", i)
		}
	}
	if l.Record() {
		t.Fatalf("11th record succeeded, want failure")
	}
	if l.CanProceed() {
		t.Fatalf("CanProceed true at limit")
	}

	*cur = cur.Add(1000 * time.Millisecond)
	if !l.Record() {
		t.Fatalf("record after 1000ms window elapsed failed, want success")
	}
}

func TestDefaultRate(t *testing.T) {
	l := New(0)
	if l.maxPerSecond != DefaultMaxPerSecond {
		t.Fatalf("maxPerSecond = %d, want default %d", l.maxPerSecond, DefaultMaxPerSecond)
	}
}

func TestReset(t *testing.T) {
	l := New(1)
	cur := withFakeClock(l, time.Unix(0, 0))
	_ = cur
	if !l.Record() {
		t.Fatalf("first record failed")
	}
	if l.Record() {
		t.Fatalf("second record succeeded before reset")
	}
	l.Reset()
	if !l.Record() {
		t.Fatalf("record after reset failed")
	}
}

func TestCanProceedDoesNotRecord(t *testing.T) {
	l := New(1)
	withFakeClock(l, time.Unix(0, 0))
	if !l.CanProceed() {
		t.Fatalf("CanProceed false on empty limiter")
	}
	if !l.CanProceed() {
		t.Fatalf("CanProceed should be idempotent")
	}
	if !l.Record() {
		t.Fatalf("record failed")
	}
	if l.CanProceed() {
		t.Fatalf("CanProceed true after hitting limit of 1")
	}
}
