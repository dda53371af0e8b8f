// Package fingerprint remembers the latest confirmed blob SHA of the shared document.
package fingerprint

import "sync"

// Ticket orders remote requests. A ticket is issued before the request starts.
type Ticket uint64

// Tracker holds the most recent confirmed fingerprint. The zero value is ready to use.
type Tracker struct {
	mu          sync.Mutex
	issued      Ticket
	applied     Ticket
	fingerprint string
	known       bool
}

// Issue returns a ticket newer than every ticket issued before it.
func (t *Tracker) Issue() Ticket {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.issued++
	return t.issued
}

// Observe records sha when ticket is newer than the ticket behind the current value.
// A response to an older request never replaces a newer fingerprint.
func (t *Tracker) Observe(ticket Ticket, sha string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ticket <= t.applied {
		return false
	}
	t.applied = ticket
	t.fingerprint = sha
	t.known = sha != ""
	return true
}

// Current returns the tracked fingerprint; false means the document is assumed absent.
func (t *Tracker) Current() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fingerprint, t.known
}
