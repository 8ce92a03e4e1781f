package webhook

import (
	"sync"
	"time"
)

// requestDeduper remembers X-Request-ID values for a while so redelivered
// submissions are not applied twice.
type requestDeduper struct {
	mu      sync.Mutex
	entries map[string]time.Time
	ttl     time.Duration
	now     func() time.Time
}

func newRequestDeduper(ttl time.Duration) *requestDeduper {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &requestDeduper{
		entries: make(map[string]time.Time),
		ttl:     ttl,
		now:     time.Now,
	}
}

// markIfNew returns true if id has not been seen recently and records it.
// An empty id is always new.
func (d *requestDeduper) markIfNew(id string) bool {
	if id == "" {
		return true
	}
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	for key, expiry := range d.entries {
		if now.After(expiry) {
			delete(d.entries, key)
		}
	}

	if expiry, ok := d.entries[id]; ok && now.Before(expiry) {
		return false
	}
	d.entries[id] = now.Add(d.ttl)
	return true
}

// forget drops id so a failed submission can be retried with the same id.
func (d *requestDeduper) forget(id string) {
	if id == "" {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.entries, id)
}
