package streaming

import (
	"time"

	"golang.org/x/time/rate"
)

// Skip reasons reported when a tick does not send.
const (
	SkipInFlight    = "in_flight"
	SkipRateLimited = "rate_limited"
	SkipNoFrame     = "no_frame"
)

// FrameBudget allows at most one frame in flight and spaces sends by at
// least half the push interval.
type FrameBudget struct {
	limiter  *rate.Limiter
	inFlight bool
	lastSent time.Time
}

// NewFrameBudget creates a budget for a push loop running every interval.
func NewFrameBudget(interval time.Duration) *FrameBudget {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval / 2)
	}
	return &FrameBudget{limiter: rate.NewLimiter(limit, 1)}
}

// Check reports why a frame may not be sent at now, or "" if it may.
// A successful Check consumes the rate token.
func (b *FrameBudget) Check(now time.Time) string {
	if b.inFlight {
		return SkipInFlight
	}
	if !b.limiter.AllowN(now, 1) {
		return SkipRateLimited
	}
	return ""
}

// MarkSent records a frame sent at now.
func (b *FrameBudget) MarkSent(now time.Time) {
	b.inFlight = true
	b.lastSent = now
}

// Release clears the in-flight flag.
func (b *FrameBudget) Release() {
	b.inFlight = false
}

// InFlight reports whether a frame awaits a reply.
func (b *FrameBudget) InFlight() bool {
	return b.inFlight
}

// LastSent returns when the last frame was sent.
func (b *FrameBudget) LastSent() time.Time {
	return b.lastSent
}

// Reset clears the in-flight flag and the send history.
func (b *FrameBudget) Reset() {
	b.inFlight = false
	b.lastSent = time.Time{}
	b.limiter = rate.NewLimiter(b.limiter.Limit(), 1)
}
