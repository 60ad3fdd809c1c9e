package session

import (
	"time"

	"golang.org/x/time/rate"
)

// inboundAudioLimiter drops audio arriving faster than the configured number of
// samples per second. It meters samples, not frames, so the browser's frame size
// does not matter. Control events are never limited.
type inboundAudioLimiter struct {
	now     func() time.Time
	samples *rate.Limiter
}

func newInboundAudioLimiter(now func() time.Time, samplesPerSecond int, burstSeconds int) *inboundAudioLimiter {
	if samplesPerSecond <= 0 {
		return nil
	}
	if now == nil {
		now = time.Now
	}
	if burstSeconds <= 0 {
		burstSeconds = 1
	}
	return &inboundAudioLimiter{
		now:     now,
		samples: rate.NewLimiter(rate.Limit(samplesPerSecond), samplesPerSecond*burstSeconds),
	}
}

// AllowSamples reports whether a frame of n samples fits the budget.
func (l *inboundAudioLimiter) AllowSamples(n int) bool {
	if l == nil {
		return true
	}
	return l.samples.AllowN(l.now(), n)
}
