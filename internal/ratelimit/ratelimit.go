// Package ratelimit provides rate limiting for WebSocket connections and
// inbound events. A per-user connection cap is enforced at upgrade time and
// a sliding-window event limiter guards the read loop against floods.
package ratelimit

import (
	"sync"
	"time"
)

// ConnectionLimiter limits the number of concurrent connections per user
type ConnectionLimiter struct {
	connections map[string]int // userID -> connection count
	maxPerUser  int
	mu          sync.Mutex
}

// NewConnectionLimiter creates a new connection limiter
func NewConnectionLimiter(maxPerUser int) *ConnectionLimiter {
	return &ConnectionLimiter{
		connections: make(map[string]int),
		maxPerUser:  maxPerUser,
	}
}

// Allow checks if a new connection is allowed for the user and reserves a
// slot when it is.
func (cl *ConnectionLimiter) Allow(userID string) bool {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	count := cl.connections[userID]
	if count >= cl.maxPerUser {
		return false
	}

	cl.connections[userID] = count + 1
	return true
}

// Release decrements the connection count for a user
func (cl *ConnectionLimiter) Release(userID string) {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	if count, ok := cl.connections[userID]; ok {
		if count <= 1 {
			delete(cl.connections, userID)
		} else {
			cl.connections[userID] = count - 1
		}
	}
}

// Count returns the current connection count for a user
func (cl *ConnectionLimiter) Count(userID string) int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return cl.connections[userID]
}

// EventLimiter limits the rate of inbound events per user using a sliding window
type EventLimiter struct {
	events map[string][]time.Time // userID -> event timestamps
	window time.Duration
	limit  int
	mu     sync.Mutex

	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	cleanupWg       sync.WaitGroup
}

// NewEventLimiter creates a new event rate limiter.
// window: sliding window duration (e.g. 1 minute)
// limit: maximum number of events allowed in the window
func NewEventLimiter(window time.Duration, limit int) *EventLimiter {
	return &EventLimiter{
		events:          make(map[string][]time.Time),
		window:          window,
		limit:           limit,
		cleanupInterval: 5 * time.Minute,
		stopCleanup:     make(chan struct{}),
	}
}

// Allow reports whether another event is permitted for the user and records
// it when allowed.
func (el *EventLimiter) Allow(userID string) bool {
	el.mu.Lock()
	defer el.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-el.window)

	// Drop events that have slid out of the window
	recent := el.events[userID][:0]
	for _, t := range el.events[userID] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= el.limit {
		el.events[userID] = recent
		return false
	}

	el.events[userID] = append(recent, now)
	return true
}

// Reset clears the rate limit history for a user
func (el *EventLimiter) Reset(userID string) {
	el.mu.Lock()
	defer el.mu.Unlock()
	delete(el.events, userID)
}

// Cleanup removes expired events to prevent unbounded memory growth.
func (el *EventLimiter) Cleanup() {
	el.mu.Lock()
	defer el.mu.Unlock()

	cutoff := time.Now().Add(-el.window)
	for userID, events := range el.events {
		var recent []time.Time
		for _, t := range events {
			if t.After(cutoff) {
				recent = append(recent, t)
			}
		}

		if len(recent) == 0 {
			delete(el.events, userID)
		} else {
			el.events[userID] = recent
		}
	}
}

// StartCleanup starts a background goroutine that periodically expires old events
func (el *EventLimiter) StartCleanup() {
	el.cleanupWg.Add(1)
	go func() {
		defer el.cleanupWg.Done()
		ticker := time.NewTicker(el.cleanupInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				el.Cleanup()
			case <-el.stopCleanup:
				return
			}
		}
	}()
}

// StopCleanup stops the cleanup goroutine and waits for it to finish
func (el *EventLimiter) StopCleanup() {
	el.stopOnce.Do(func() {
		close(el.stopCleanup)
	})
	el.cleanupWg.Wait()
}
