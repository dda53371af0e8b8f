// Package status keeps the single sync banner shown to operators.
package status

import (
	"sync"
	"time"
)

// State is the banner state.
type State string

const (
	StateIdle    State = "idle"
	StateSyncing State = "syncing"
	StateSuccess State = "success"
	StateError   State = "error"
)

// Category classifies a failure. Successful states carry no category.
type Category string

const (
	CategoryNone             Category = ""
	CategoryConfigMissing    Category = "ConfigMissing"
	CategoryConfigIncomplete Category = "ConfigIncomplete"
	CategoryUnauthorized     Category = "Unauthorized"
	CategoryNotFound         Category = "NotFound"
	CategoryConflict         Category = "ConflictError"
	CategoryTransient        Category = "TransientError"
	CategoryDecode           Category = "DecodeError"
)

const DefaultDisplayDuration = 5 * time.Second

// Snapshot is one rendered banner.
type Snapshot struct {
	State     State     `json:"state"`
	Category  Category  `json:"category,omitempty"`
	Message   string    `json:"message"`
	Sequence  uint64    `json:"sequence"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Config struct {
	DisplayDuration time.Duration
	Clock           func() time.Time
}

// Surface holds the current banner. Success and Error return to Idle after the display duration.
type Surface struct {
	mu        sync.Mutex
	current   Snapshot
	display   time.Duration
	clock     func() time.Time
	timer     *time.Timer
	listeners map[int]func(Snapshot)
	nextID    int
}

func NewSurface(cfg Config) *Surface {
	display := cfg.DisplayDuration
	if display <= 0 {
		display = DefaultDisplayDuration
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	surface := &Surface{
		display:   display,
		clock:     clock,
		listeners: make(map[int]func(Snapshot)),
	}
	surface.current = Snapshot{State: StateIdle, UpdatedAt: clock().UTC()}
	return surface
}

// Current returns the banner being shown.
func (s *Surface) Current() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Subscribe registers listener for every transition. The returned func removes it.
// Listeners run on the goroutine that caused the transition and must not block.
func (s *Surface) Subscribe(listener func(Snapshot)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = listener
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Surface) Begin(message string) {
	s.transition(StateSyncing, CategoryNone, message, false)
}

func (s *Surface) Succeed(message string) {
	s.transition(StateSuccess, CategoryNone, message, true)
}

func (s *Surface) Fail(category Category, message string) {
	s.transition(StateError, category, message, true)
}

// Dismiss returns to Idle immediately.
func (s *Surface) Dismiss() {
	s.transition(StateIdle, CategoryNone, "", false)
}

func (s *Surface) transition(state State, category Category, message string, expire bool) {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.current = Snapshot{
		State:     state,
		Category:  category,
		Message:   message,
		Sequence:  s.current.Sequence + 1,
		UpdatedAt: s.clock().UTC(),
	}
	snapshot := s.current
	if expire {
		sequence := snapshot.Sequence
		s.timer = time.AfterFunc(s.display, func() { s.expire(sequence) })
	}
	listeners := s.listenersLocked()
	s.mu.Unlock()

	for _, listener := range listeners {
		listener(snapshot)
	}
}

// expire resets to Idle unless another transition happened after sequence.
func (s *Surface) expire(sequence uint64) {
	s.mu.Lock()
	if s.current.Sequence != sequence {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	s.current = Snapshot{
		State:     StateIdle,
		Sequence:  sequence + 1,
		UpdatedAt: s.clock().UTC(),
	}
	snapshot := s.current
	listeners := s.listenersLocked()
	s.mu.Unlock()

	for _, listener := range listeners {
		listener(snapshot)
	}
}

func (s *Surface) listenersLocked() []func(Snapshot) {
	listeners := make([]func(Snapshot), 0, len(s.listeners))
	for _, listener := range s.listeners {
		listeners = append(listeners, listener)
	}
	return listeners
}
