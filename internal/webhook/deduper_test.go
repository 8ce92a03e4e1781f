package webhook

import (
	"testing"
	"time"
)

func TestRequestDeduper(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	d := newRequestDeduper(time.Hour)
	d.now = func() time.Time { return now }

	if !d.markIfNew("req-1") {
		t.Fatal("first delivery should be new")
	}
	if d.markIfNew("req-1") {
		t.Fatal("redelivery within ttl should be a duplicate")
	}
	if !d.markIfNew("") || !d.markIfNew("") {
		t.Fatal("requests without an id are never deduplicated")
	}

	now = now.Add(59 * time.Minute)
	if d.markIfNew("req-1") {
		t.Fatal("redelivery before expiry should be a duplicate")
	}

	now = now.Add(2 * time.Minute)
	if !d.markIfNew("req-1") {
		t.Fatal("redelivery after expiry should be new")
	}

	d.forget("req-1")
	if !d.markIfNew("req-1") {
		t.Fatal("forgotten id should be new")
	}
}

func TestNewRequestDeduper_DefaultTTL(t *testing.T) {
	if d := newRequestDeduper(0); d.ttl != time.Hour {
		t.Errorf("ttl = %v, want 1h", d.ttl)
	}
}
