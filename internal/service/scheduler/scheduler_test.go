package scheduler

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestNewRejectsInvalidSpec(t *testing.T) {
	if _, err := New("not a cron spec", func() {}); err == nil {
		t.Fatalf("expected error for invalid spec")
	}
}

func TestWeeklySpecAccepted(t *testing.T) {
	s, err := New("0 0 * * 0", func() {})
	if err != nil {
		t.Fatalf("weekly spec should parse: %v", err)
	}
	s.Start()
	defer s.Stop()

	if s.NextRun() == "" {
		t.Fatalf("NextRun should report a scheduled time")
	}
}

func TestTriggerFires(t *testing.T) {
	var fired int32
	s, err := New("@every 100ms", func() {
		atomic.AddInt32(&fired, 1)
	})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	s.Start()
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if atomic.LoadInt32(&fired) > 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("trigger never fired")
}
