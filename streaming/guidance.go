package streaming

import (
	"strings"
	"time"
)

// DefaultStartupQuiet is how long the missing-sidewalk caution is suppressed
// after a session starts.
const DefaultStartupQuiet = 5 * time.Second

const startupCaution = "caution: no sidewalk detected"

// GuidanceFilter decides which navigation guidance is worth speaking. It
// drops guidance identical to the last spoken text and suppresses the
// missing-sidewalk caution while the camera settles.
type GuidanceFilter struct {
	StartupQuiet time.Duration

	started   time.Time
	lastSpoke string
}

// NewGuidanceFilter creates a filter with the default startup quiet period.
func NewGuidanceFilter() *GuidanceFilter {
	return &GuidanceFilter{StartupQuiet: DefaultStartupQuiet}
}

// Reset starts a new session at now.
func (f *GuidanceFilter) Reset(now time.Time) {
	f.started = now
	f.lastSpoke = ""
}

// Allow reports whether text should be spoken at now and records it if so.
// Empty text is never allowed.
func (f *GuidanceFilter) Allow(now time.Time, text string) bool {
	if text == "" || text == f.lastSpoke {
		return false
	}
	if now.Sub(f.started) < f.StartupQuiet && strings.Contains(strings.ToLower(text), startupCaution) {
		return false
	}
	f.lastSpoke = text
	return true
}
