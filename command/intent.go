// Package command turns recognized speech into routed commands. It holds the
// intent grammar, the feature table, the fragment debouncer, and the routing
// surface feature pages implement.
package command

import "fmt"

// IntentKind classifies an interpreted utterance.
type IntentKind string

const (
	// IntentNavigate switches to another feature.
	IntentNavigate IntentKind = "navigate"
	// IntentAction triggers an action verb on the current or named feature.
	IntentAction IntentKind = "action"
	// IntentQuery is free text routed to a feature as a query.
	IntentQuery IntentKind = "query"
	// IntentNone means no structured intent was recognized.
	IntentNone IntentKind = "none"
)

// Confidence scores assigned by the grammar.
const (
	ConfidenceTriggered  = 0.95 // trigger phrase followed by a feature alias
	ConfidenceActionVerb = 0.85 // utterance begins with an action verb
	ConfidenceExactAlias = 0.75 // utterance is exactly a feature alias
	ConfidenceVerbInside = 0.65 // action verb somewhere in the utterance
)

// Directive is a classified command ready for dispatch.
type Directive struct {
	Kind IntentKind `json:"intent" yaml:"intent"`

	// Name is the feature for navigate directives and the action verb for
	// action directives.
	Name string `json:"command" yaml:"command"`

	// Target is the feature an action applies to, if one was named.
	Target string `json:"target_feature,omitempty" yaml:"target_feature,omitempty"`

	// Text is the utterance the directive was recognized from.
	Text string `json:"query,omitempty" yaml:"query,omitempty"`

	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// IsZero reports whether d carries no directive.
func (d Directive) IsZero() bool {
	return d.Kind == "" && d.Name == ""
}

// String returns a compact representation for logs.
func (d Directive) String() string {
	if d.Target != "" {
		return fmt.Sprintf("%s:%s(%s)", d.Kind, d.Name, d.Target)
	}
	return fmt.Sprintf("%s:%s", d.Kind, d.Name)
}

// Classifier recognizes immediate directives in a text fragment.
type Classifier interface {
	// Directive returns the directive text names and whether it is one.
	Directive(text string) (Directive, bool)
}

// ClassifierFunc adapts a function to Classifier.
type ClassifierFunc func(text string) (Directive, bool)

// Directive implements Classifier.
func (f ClassifierFunc) Directive(text string) (Directive, bool) {
	return f(text)
}
