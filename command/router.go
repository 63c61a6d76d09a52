package command

import (
	"encoding/json"
	"time"
)

// StreamResult is one analysis result received on a streaming session.
type StreamResult struct {
	// Type is the message tag ("result" or "navigation_update").
	Type string

	// Payload is the decoded message body.
	Payload map[string]any

	// Raw is the undecoded message.
	Raw json.RawMessage

	Received time.Time
}

// Text returns the first string field a feature would speak: guidance,
// description, text, or message.
func (r StreamResult) Text() string {
	for _, key := range []string{"guidance", "description", "text", "message"} {
		if s, ok := r.Payload[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// Router is the surface feature pages implement to receive dispatched events.
// All methods are called on the scheduler thread.
type Router interface {
	// OnUtterance receives a debounced free-text utterance.
	OnUtterance(text string)

	// OnDirective receives a recognized navigation or action command.
	OnDirective(d Directive)

	// OnStreamResult receives an analysis result from a streaming session.
	OnStreamResult(r StreamResult)

	// OnStreamStatus receives a status message from a streaming session.
	OnStreamStatus(status string)

	// OnStreamError receives a user-facing streaming error.
	OnStreamError(message string)

	// OnStatus receives the coordinator's visible status text.
	OnStatus(status string)
}

// RouterFuncs adapts optional callbacks to Router. Nil fields are ignored.
type RouterFuncs struct {
	Utterance    func(text string)
	Directive    func(d Directive)
	StreamResult func(r StreamResult)
	StreamStatus func(status string)
	StreamError  func(message string)
	Status       func(status string)
}

// OnUtterance implements Router.
func (f RouterFuncs) OnUtterance(text string) {
	if f.Utterance != nil {
		f.Utterance(text)
	}
}

// OnDirective implements Router.
func (f RouterFuncs) OnDirective(d Directive) {
	if f.Directive != nil {
		f.Directive(d)
	}
}

// OnStreamResult implements Router.
func (f RouterFuncs) OnStreamResult(r StreamResult) {
	if f.StreamResult != nil {
		f.StreamResult(r)
	}
}

// OnStreamStatus implements Router.
func (f RouterFuncs) OnStreamStatus(status string) {
	if f.StreamStatus != nil {
		f.StreamStatus(status)
	}
}

// OnStreamError implements Router.
func (f RouterFuncs) OnStreamError(message string) {
	if f.StreamError != nil {
		f.StreamError(message)
	}
}

// OnStatus implements Router.
func (f RouterFuncs) OnStatus(status string) {
	if f.Status != nil {
		f.Status(status)
	}
}

// MultiRouter fans events out to several routers in order.
type MultiRouter []Router

// OnUtterance implements Router.
func (m MultiRouter) OnUtterance(text string) {
	for _, r := range m {
		r.OnUtterance(text)
	}
}

// OnDirective implements Router.
func (m MultiRouter) OnDirective(d Directive) {
	for _, r := range m {
		r.OnDirective(d)
	}
}

// OnStreamResult implements Router.
func (m MultiRouter) OnStreamResult(res StreamResult) {
	for _, r := range m {
		r.OnStreamResult(res)
	}
}

// OnStreamStatus implements Router.
func (m MultiRouter) OnStreamStatus(status string) {
	for _, r := range m {
		r.OnStreamStatus(status)
	}
}

// OnStreamError implements Router.
func (m MultiRouter) OnStreamError(message string) {
	for _, r := range m {
		r.OnStreamError(message)
	}
}

// OnStatus implements Router.
func (m MultiRouter) OnStatus(status string) {
	for _, r := range m {
		r.OnStatus(status)
	}
}
