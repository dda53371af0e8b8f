package fingerprint

import (
	"sync"
	"testing"
)

func TestTrackerStartsUnknown(t *testing.T) {
	var tracker Tracker
	if sha, ok := tracker.Current(); ok || sha != "" {
		t.Fatalf("expected unknown fingerprint, got %q", sha)
	}
}

func TestTrackerRejectsStaleResponses(t *testing.T) {
	var tracker Tracker
	older := tracker.Issue()
	newer := tracker.Issue()

	if !tracker.Observe(newer, "sha-new") {
		t.Fatalf("expected newer observation to apply")
	}
	if tracker.Observe(older, "sha-old") {
		t.Fatalf("expected older observation to be rejected")
	}
	if sha, ok := tracker.Current(); !ok || sha != "sha-new" {
		t.Fatalf("expected sha-new, got %q (%v)", sha, ok)
	}
}

func TestTrackerAppliesInOrder(t *testing.T) {
	var tracker Tracker
	first := tracker.Issue()
	second := tracker.Issue()
	if !tracker.Observe(first, "a") || !tracker.Observe(second, "b") {
		t.Fatalf("expected both in-order observations to apply")
	}
	if tracker.Observe(second, "c") {
		t.Fatalf("expected replayed ticket to be rejected")
	}
	if sha, _ := tracker.Current(); sha != "b" {
		t.Fatalf("expected b, got %q", sha)
	}
}

func TestTrackerConcurrentObservationsKeepNewest(t *testing.T) {
	var tracker Tracker
	tickets := make([]Ticket, 64)
	for index := range tickets {
		tickets[index] = tracker.Issue()
	}

	var wg sync.WaitGroup
	for index := len(tickets) - 1; index >= 0; index-- {
		wg.Add(1)
		go func(ticket Ticket) {
			defer wg.Done()
			tracker.Observe(ticket, "sha")
		}(tickets[index])
	}
	wg.Wait()

	last := tickets[len(tickets)-1]
	if tracker.Observe(last, "later") {
		t.Fatalf("expected newest ticket to have been applied already")
	}
}
