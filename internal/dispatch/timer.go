package dispatch

import (
	"sync"
	"time"

	"github.com/safevault/vault/internal/ids"
)

// TimeoutSentinel is passed to a timer callback's final invocation
// when the deadline fires before remaining_count reaches zero.
const TimeoutSentinel = -1

// timerEntry is one pending registration: a callback, how many more
// arrivals it expects, and when it times out regardless.
type timerEntry struct {
	callback  func(remaining int)
	remaining int
	timer     *time.Timer
}

// TimerRegistry is the deadline timer registry: message-id to
// (callback, remaining_count, deadline). Every arrival for a
// registered id decrements remaining_count and invokes the callback
// once with the new count; the arrival that brings it to zero is the
// last invocation and removes the entry. If the deadline fires first,
// the callback is invoked one final time with TimeoutSentinel and the
// entry is removed.
type TimerRegistry struct {
	mu      sync.Mutex
	entries map[ids.MessageID]*timerEntry
}

// NewTimerRegistry returns an empty registry.
func NewTimerRegistry() *TimerRegistry {
	return &TimerRegistry{entries: make(map[ids.MessageID]*timerEntry)}
}

// Register anchors a new pending operation under msgID. callback is
// invoked on every Arrive and once more, with TimeoutSentinel, if the
// deadline elapses before expectedCount arrivals are seen.
func (r *TimerRegistry) Register(msgID ids.MessageID, expectedCount int, deadline time.Duration, callback func(remaining int)) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := &timerEntry{callback: callback, remaining: expectedCount}
	e.timer = time.AfterFunc(deadline, func() { r.fire(msgID, TimeoutSentinel) })
	r.entries[msgID] = e
}

// Arrive records one response for msgID. Returns false if msgID is
// not (or no longer) registered — the response arrived after
// finalization and must be silently dropped.
func (r *TimerRegistry) Arrive(msgID ids.MessageID) bool {
	return r.fire(msgID, -2)
}

// fire is shared by Arrive (kind -2, a normal decrement) and the
// deadline callback (kind TimeoutSentinel). Returns whether msgID was
// found and live.
func (r *TimerRegistry) fire(msgID ids.MessageID, kind int) bool {
	r.mu.Lock()
	e, ok := r.entries[msgID]
	if !ok {
		r.mu.Unlock()
		return false
	}

	if kind == TimeoutSentinel {
		delete(r.entries, msgID)
		r.mu.Unlock()
		e.callback(TimeoutSentinel)
		return true
	}

	e.remaining--
	remaining := e.remaining
	done := remaining <= 0
	if done {
		delete(r.entries, msgID)
	}
	r.mu.Unlock()

	e.callback(remaining)
	if done {
		e.timer.Stop()
	}
	return true
}

// Cancel removes a registration without invoking its callback, for
// operations finalized through some other path.
func (r *TimerRegistry) Cancel(msgID ids.MessageID) {
	r.mu.Lock()
	e, ok := r.entries[msgID]
	if ok {
		delete(r.entries, msgID)
	}
	r.mu.Unlock()
	if ok {
		e.timer.Stop()
	}
}

// Pending reports how many operations are currently registered, for
// the per-node concurrent Get Operation bound.
func (r *TimerRegistry) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
