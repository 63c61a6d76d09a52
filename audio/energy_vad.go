package audio

import (
	"time"
)

// stateChangeBufferSize is the buffer size for the state change channel.
const stateChangeBufferSize = 16

// EnergyVAD is a loudness-threshold voice activity detector with debounced
// silence. It keeps the state for a single capture window and is reset at
// the start of every window.
//
// EnergyVAD is not safe for concurrent use; the capture cycle drives it from
// the scheduler thread.
type EnergyVAD struct {
	params VADParams

	maxLevel    float64
	speechStart time.Time
	confirmed   bool
	silence     int

	state       VADState
	stateChange chan VADEvent
}

// NewEnergyVAD creates a detector with the given parameters.
func NewEnergyVAD(params VADParams) (*EnergyVAD, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &EnergyVAD{
		params:      params,
		stateChange: make(chan VADEvent, stateChangeBufferSize),
	}, nil
}

// Name returns the detector identifier.
func (v *EnergyVAD) Name() string {
	return "energy-rms"
}

// Params returns the detector parameters.
func (v *EnergyVAD) Params() VADParams {
	return v.params
}

// Observe computes the loudness of samples and feeds it to the detector.
// It returns the loudness.
func (v *EnergyVAD) Observe(now time.Time, samples []byte) float64 {
	level := Loudness(samples, v.params.Format, v.params.gain())
	v.ObserveLevel(now, level)
	return level
}

// ObserveLevel applies the hysteresis rule to one loudness sample.
func (v *EnergyVAD) ObserveLevel(now time.Time, level float64) {
	if level > v.maxLevel {
		v.maxLevel = level
	}

	if level > v.params.Threshold {
		v.silence = 0
		if v.speechStart.IsZero() {
			v.speechStart = now
		} else if now.Sub(v.speechStart) >= v.params.MinSpeechDuration {
			v.confirmed = true
		}
	} else {
		v.silence++
		if v.silence >= v.params.SilenceFrames {
			v.speechStart = time.Time{}
			v.silence = 0
		}
	}

	v.updateState(now, level)
}

// computeState derives the detector state from the current speech run.
func (v *EnergyVAD) computeState(now time.Time) VADState {
	if v.speechStart.IsZero() {
		return VADStateQuiet
	}
	if now.Sub(v.speechStart) >= v.params.MinSpeechDuration {
		return VADStateSpeaking
	}
	return VADStateStarting
}

func (v *EnergyVAD) updateState(now time.Time, level float64) {
	next := v.computeState(now)
	if next == v.state {
		return
	}
	event := VADEvent{
		State:     next,
		PrevState: v.state,
		Timestamp: now,
		Level:     level,
	}
	v.state = next

	// Non-blocking send to event channel
	select {
	case v.stateChange <- event:
	default:
	}
}

// Accept reports whether a finished window is worth delivering: speech was
// confirmed, the peak exceeded the threshold, no speech output was playing,
// and the clip is non-empty.
func (v *EnergyVAD) Accept(clipLen int, outputActive bool) bool {
	return v.confirmed &&
		v.maxLevel > v.params.Threshold &&
		!outputActive &&
		clipLen > 0
}

// State returns the current detector state.
func (v *EnergyVAD) State() VADState {
	return v.state
}

// Snapshot returns the per-window detector state.
func (v *EnergyVAD) Snapshot() VADSnapshot {
	return VADSnapshot{
		MaxLevel:        v.maxLevel,
		SpeechStart:     v.speechStart,
		SpeechConfirmed: v.confirmed,
		SilenceCount:    v.silence,
	}
}

// OnStateChange returns a channel that receives state transitions.
// The channel is buffered and drops events if not consumed.
func (v *EnergyVAD) OnStateChange() <-chan VADEvent {
	return v.stateChange
}

// Reset clears the window state.
func (v *EnergyVAD) Reset() {
	v.maxLevel = 0
	v.speechStart = time.Time{}
	v.confirmed = false
	v.silence = 0
	v.state = VADStateQuiet

	for len(v.stateChange) > 0 {
		<-v.stateChange
	}
}
