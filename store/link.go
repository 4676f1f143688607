package store

import (
	"sync"
	"time"
)

// linkState tracks the health of the connection to an external backend.
//
// States:
//   - up: commands flow normally; consecutive failures are counted.
//   - down: commands are skipped; after retryAfter the link turns to probing.
//   - probing: commands flow again; the first success brings the link up,
//     the first failure takes it down again.
type linkState int

const (
	linkUp linkState = iota
	linkDown
	linkProbing
)

// link is a small circuit breaker guarding an external backend. All methods
// are safe for concurrent use.
type link struct {
	mu sync.Mutex

	threshold  int
	retryAfter time.Duration

	state     linkState
	failures  int
	downSince time.Time
	nowFunc   func() time.Time
}

func newLink(threshold int, retryAfter time.Duration) *link {
	return &link{
		threshold:  threshold,
		retryAfter: retryAfter,
		nowFunc:    time.Now,
	}
}

// allow reports whether a command may be sent to the backend.
func (l *link) allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == linkDown && l.nowFunc().Sub(l.downSince) >= l.retryAfter {
		l.state = linkProbing
	}
	return l.state != linkDown
}

func (l *link) success() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = linkUp
	l.failures = 0
}

func (l *link) failure() {
	l.mu.Lock()
	defer l.mu.Unlock()

	// A threshold of zero disables tripping.
	if l.threshold <= 0 {
		return
	}
	l.failures++
	if l.state == linkProbing || l.failures >= l.threshold {
		l.state = linkDown
		l.downSince = l.nowFunc()
	}
}

func (l *link) current() linkState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}
