// Package sessions keeps the process-wide table of live voice connections.
// Entries are inserted on connect and removed on disconnect; nothing else mutates it.
package sessions

import (
	"context"
	"errors"
	"sync"
)

// ErrAtCapacity is returned by TryRegister when the table is full.
var ErrAtCapacity = errors.New("voice session capacity reached")

// Handle lets shutdown code reach a session without owning it.
type Handle struct {
	Cancel func()
	Notify func(message string) error
}

type Tracker struct {
	mu       sync.Mutex
	sessions map[string]*trackedSession
	wg       sync.WaitGroup
	limit    int
}

type trackedSession struct {
	handle Handle
	once   sync.Once
}

// NewTracker returns a tracker that admits at most limit sessions. limit <= 0 means unlimited.
func NewTracker(limit int) *Tracker {
	if limit < 0 {
		limit = 0
	}
	return &Tracker{
		sessions: make(map[string]*trackedSession),
		limit:    limit,
	}
}

// TryRegister inserts a session unless the tracker is full. The returned func removes it
// and is safe to call more than once.
func (t *Tracker) TryRegister(sessionID string, h Handle) (unregister func(), err error) {
	if t == nil {
		return func() {}, nil
	}

	entry := &trackedSession{handle: h}

	t.mu.Lock()
	if t.sessions == nil {
		t.sessions = make(map[string]*trackedSession)
	}
	old := t.sessions[sessionID]
	if old == nil && t.limit > 0 && len(t.sessions) >= t.limit {
		t.mu.Unlock()
		return func() {}, ErrAtCapacity
	}
	t.sessions[sessionID] = entry
	t.wg.Add(1)
	t.mu.Unlock()

	if old != nil {
		t.release(old)
	}

	return func() { t.unregister(sessionID, entry) }, nil
}

func (t *Tracker) unregister(sessionID string, entry *trackedSession) {
	if t == nil || entry == nil {
		return
	}
	t.mu.Lock()
	if t.sessions != nil && t.sessions[sessionID] == entry {
		delete(t.sessions, sessionID)
	}
	t.mu.Unlock()
	t.release(entry)
}

func (t *Tracker) release(entry *trackedSession) {
	entry.once.Do(t.wg.Done)
}

func (t *Tracker) Count() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

// Limit returns the configured capacity, 0 when unlimited.
func (t *Tracker) Limit() int {
	if t == nil {
		return 0
	}
	return t.limit
}

// NotifyAll sends message to every session. Delivery is best-effort.
func (t *Tracker) NotifyAll(message string) (sent int) {
	if t == nil {
		return 0
	}

	var notifies []func(string) error
	t.mu.Lock()
	for _, entry := range t.sessions {
		if entry == nil || entry.handle.Notify == nil {
			continue
		}
		notifies = append(notifies, entry.handle.Notify)
	}
	t.mu.Unlock()

	for _, notify := range notifies {
		_ = notify(message)
		sent++
	}
	return sent
}

func (t *Tracker) CancelAll() (canceled int) {
	if t == nil {
		return 0
	}

	var cancels []func()
	t.mu.Lock()
	for _, entry := range t.sessions {
		if entry == nil || entry.handle.Cancel == nil {
			continue
		}
		cancels = append(cancels, entry.handle.Cancel)
	}
	t.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
		canceled++
	}
	return canceled
}

// Wait blocks until every registered session has been removed or ctx is done.
func (t *Tracker) Wait(ctx context.Context) bool {
	if t == nil {
		return true
	}
	if ctx == nil {
		t.wg.Wait()
		return true
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		t.wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
