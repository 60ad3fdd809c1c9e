// Package lifecycle tracks whether the process is accepting new voice sessions.
package lifecycle

import "sync/atomic"

// Lifecycle is shared by the /ws and /readyz handlers and flipped by shutdown.
// The zero value is ready to use.
type Lifecycle struct {
	draining atomic.Bool
}

func (l *Lifecycle) SetDraining(draining bool) {
	if l == nil {
		return
	}
	l.draining.Store(draining)
}

func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	return l.draining.Load()
}
