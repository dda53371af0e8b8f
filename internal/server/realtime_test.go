package server

import (
	"context"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/frostlog/internal/status"
)

func TestRealtimeDispatcherForwardsStatusTransitions(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	surface := status.NewSurface(status.Config{DisplayDuration: time.Hour})
	detach := dispatcher.Attach(surface)
	defer detach()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream, cleanup := dispatcher.Subscribe(ctx)
	defer cleanup()

	surface.Fail(status.CategoryConflict, "Someone else saved changes first.")

	select {
	case received := <-stream:
		if received.EventType != RealtimeEventStatus {
			t.Fatalf("expected event type %s, got %s", RealtimeEventStatus, received.EventType)
		}
		if received.Status.Category != status.CategoryConflict || received.Status.State != status.StateError {
			t.Fatalf("unexpected status %+v", received.Status)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected realtime message within deadline")
	}
}

func TestRealtimeDispatcherDropsCancelledSubscribers(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	_, cleanup := dispatcher.Subscribe(ctx)
	defer cleanup()
	if dispatcher.Subscribers() != 1 {
		t.Fatalf("expected one subscriber")
	}

	cancel()
	deadline := time.Now().Add(time.Second)
	for dispatcher.Subscribers() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected subscriber to be removed after cancellation")
		}
		time.Sleep(5 * time.Millisecond)
	}

	dispatcher.Publish(RealtimeMessage{EventType: RealtimeEventStatus})
}
