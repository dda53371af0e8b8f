package server

import (
	"context"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/frostlog/internal/status"
)

const (
	RealtimeEventStatus    = "status"
	realtimeEventHeartbeat = "heartbeat"
	realtimeHeartbeatEvery = 25 * time.Second
)

// RealtimeMessage is one server-sent event for dashboard clients.
type RealtimeMessage struct {
	EventType string          `json:"-"`
	Status    status.Snapshot `json:"status"`
	Timestamp time.Time       `json:"timestamp"`
}

// RealtimeDispatcher fans status transitions out to every open stream. Slow subscribers
// miss messages instead of blocking the publisher.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[int64]*realtimeSubscriber),
		bufferSize:  16,
	}
}

// Attach forwards every transition of surface until the returned func is called.
func (d *RealtimeDispatcher) Attach(surface *status.Surface) func() {
	return surface.Subscribe(func(snapshot status.Snapshot) {
		d.Publish(RealtimeMessage{
			EventType: RealtimeEventStatus,
			Status:    snapshot,
			Timestamp: time.Now().UTC(),
		})
	})
}

func (d *RealtimeDispatcher) Subscribe(ctx context.Context) (<-chan RealtimeMessage, func()) {
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() { d.unregisterSubscriber(subscriber.id) })
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.EventType == "" {
		return
	}
	d.mu.RLock()
	copies := make([]*realtimeSubscriber, 0, len(d.subscribers))
	for _, subscriber := range d.subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// Subscribers reports how many streams are open.
func (d *RealtimeDispatcher) Subscribers() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers)
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers[subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(subscriberID int64) {
	d.mu.Lock()
	delete(d.subscribers, subscriberID)
	d.mu.Unlock()
}
