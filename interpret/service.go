// Package interpret sends captured clips to the remote command interpreter
// and decodes its intent classification.
package interpret

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/VietHungUET/SightTech/audio"
	"github.com/VietHungUET/SightTech/command"
)

// Interpreter transcribes a clip and classifies the intent. It blocks and
// must be called off the scheduler thread.
type Interpreter interface {
	Interpret(ctx context.Context, clip audio.Clip, feature string) (*Result, error)
}

// InterpreterFunc adapts a function to Interpreter.
type InterpreterFunc func(ctx context.Context, clip audio.Clip, feature string) (*Result, error)

// Interpret implements Interpreter.
func (f InterpreterFunc) Interpret(ctx context.Context, clip audio.Clip, feature string) (*Result, error) {
	return f(ctx, clip, feature)
}

// Result is the interpreter's reply.
type Result struct {
	Transcript Transcript         `json:"transcript"`
	Intent     command.IntentKind `json:"intent"`
	Command    string             `json:"command,omitempty"`
	Target     string             `json:"target_feature,omitempty"`
	Confidence float64            `json:"confidence"`
	Query      string             `json:"query,omitempty"`
}

// Transcript accepts both `"text"` and `{"transcript": "text"}`.
type Transcript string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Transcript) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = Transcript(s)
		return nil
	}
	var obj struct {
		Transcript string `json:"transcript"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*t = Transcript(obj.Transcript)
	return nil
}

// Text returns the trimmed transcript.
func (r *Result) Text() string {
	return strings.TrimSpace(string(r.Transcript))
}

// Kind normalizes the intent. Queries are routed like free text, and
// anything unrecognized is IntentNone.
func (r *Result) Kind() command.IntentKind {
	switch command.IntentKind(strings.ToLower(string(r.Intent))) {
	case command.IntentNavigate:
		return command.IntentNavigate
	case command.IntentAction:
		return command.IntentAction
	default:
		return command.IntentNone
	}
}

// Directive converts a navigate or action reply into a directive.
func (r *Result) Directive() (command.Directive, bool) {
	kind := r.Kind()
	if kind == command.IntentNone || r.Command == "" {
		return command.Directive{}, false
	}
	return command.Directive{
		Kind:       kind,
		Name:       r.Command,
		Target:     r.Target,
		Text:       r.Text(),
		Confidence: r.Confidence,
	}, true
}
