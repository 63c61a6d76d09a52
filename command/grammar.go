package command

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

//go:embed grammar.yaml
var defaultGrammarYAML []byte

// Language holds the trigger phrases, feature aliases, and action verbs of
// one language.
type Language struct {
	Code     string              `yaml:"code"`
	Triggers []string            `yaml:"triggers"`
	Aliases  map[string][]string `yaml:"aliases"`
	Actions  map[string]string   `yaml:"actions"`
}

// Grammar recognizes navigation and action intents in transcripts.
type Grammar struct {
	Features  []string   `yaml:"features"`
	Languages []Language `yaml:"languages"`

	triggers []string
	aliases  []featureAlias
	actions  map[string]string
}

type featureAlias struct {
	feature string
	alias   string
}

var (
	defaultGrammar     *Grammar
	defaultGrammarOnce sync.Once
)

// DefaultGrammar returns the built-in English and Vietnamese grammar.
func DefaultGrammar() *Grammar {
	defaultGrammarOnce.Do(func() {
		g, err := ParseGrammar(defaultGrammarYAML)
		if err != nil {
			panic(fmt.Sprintf("command: invalid built-in grammar: %v", err))
		}
		defaultGrammar = g
	})
	return defaultGrammar
}

// LoadGrammar reads a grammar from a YAML file.
func LoadGrammar(path string) (*Grammar, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from the operator's config
	if err != nil {
		return nil, fmt.Errorf("failed to read grammar file %s: %w", path, err)
	}
	g, err := ParseGrammar(data)
	if err != nil {
		return nil, fmt.Errorf("grammar file %s: %w", path, err)
	}
	return g, nil
}

// ParseGrammar parses and compiles a YAML grammar.
func ParseGrammar(data []byte) (*Grammar, error) {
	var g Grammar
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to parse grammar: %w", err)
	}
	if err := g.compile(); err != nil {
		return nil, err
	}
	return &g, nil
}

func (g *Grammar) compile() error {
	if len(g.Features) == 0 {
		return fmt.Errorf("grammar defines no features")
	}
	if len(g.Languages) == 0 {
		return fmt.Errorf("grammar defines no languages")
	}

	known := make(map[string]bool, len(g.Features))
	for _, f := range g.Features {
		known[f] = true
	}

	g.triggers = nil
	g.aliases = nil
	g.actions = make(map[string]string)

	for _, lang := range g.Languages {
		for _, t := range lang.Triggers {
			if t = normalize(t); t != "" {
				g.triggers = append(g.triggers, t)
			}
		}
		for feature := range lang.Aliases {
			if !known[feature] {
				return fmt.Errorf("language %q: aliases for unknown feature %q", lang.Code, feature)
			}
		}
		for verb, action := range lang.Actions {
			if verb = normalize(verb); verb != "" && action != "" {
				g.actions[verb] = action
			}
		}
	}

	// Feature order wins over language order so matching is deterministic.
	for _, feature := range g.Features {
		for _, lang := range g.Languages {
			for _, a := range lang.Aliases[feature] {
				if a = normalize(a); a != "" {
					g.aliases = append(g.aliases, featureAlias{feature: feature, alias: a})
				}
			}
		}
	}
	return nil
}

// normalize composes text to NFC, lowercases it, and collapses whitespace.
// Recognizers may emit Vietnamese diacritics as combining marks.
func normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(norm.NFC.String(text))), " ")
}

// hasWordPrefix reports whether text starts with prefix followed by a word
// boundary.
func hasWordPrefix(text, prefix string) bool {
	if !strings.HasPrefix(text, prefix) {
		return false
	}
	return len(text) == len(prefix) || text[len(prefix)] == ' '
}

// Navigation returns a navigate directive when text names a feature, either
// after a trigger phrase or as a bare alias.
func (g *Grammar) Navigation(text string) (Directive, bool) {
	phrase := normalize(text)
	if phrase == "" {
		return Directive{}, false
	}

	for _, trigger := range g.triggers {
		if !strings.HasPrefix(phrase, trigger+" ") {
			continue
		}
		rest := strings.TrimSpace(phrase[len(trigger):])
		if feature, ok := g.featurePrefix(rest); ok {
			return Directive{
				Kind:       IntentNavigate,
				Name:       feature,
				Text:       text,
				Confidence: ConfidenceTriggered,
			}, true
		}
	}

	for _, fa := range g.aliases {
		if phrase == fa.alias {
			return Directive{
				Kind:       IntentNavigate,
				Name:       fa.feature,
				Text:       text,
				Confidence: ConfidenceExactAlias,
			}, true
		}
	}
	return Directive{}, false
}

// Action returns an action directive when text begins with, or contains, an
// action verb.
func (g *Grammar) Action(text string) (Directive, bool) {
	phrase := normalize(text)
	if phrase == "" {
		return Directive{}, false
	}

	verb := ""
	for v := range g.actions {
		if hasWordPrefix(phrase, v) && len(v) > len(verb) {
			verb = v
		}
	}
	if verb != "" {
		d := Directive{
			Kind:       IntentAction,
			Name:       g.actions[verb],
			Text:       text,
			Confidence: ConfidenceActionVerb,
		}
		if rest := strings.TrimSpace(phrase[len(verb):]); rest != "" {
			d.Target, _ = g.featurePrefix(rest)
		}
		return d, true
	}

	for _, word := range strings.Fields(phrase) {
		if action, ok := g.actions[word]; ok {
			return Directive{
				Kind:       IntentAction,
				Name:       action,
				Text:       text,
				Confidence: ConfidenceVerbInside,
			}, true
		}
	}
	return Directive{}, false
}

// Classify returns the strongest intent in text. Navigation wins over
// actions; text with neither is IntentNone.
func (g *Grammar) Classify(text string) Directive {
	if d, ok := g.Navigation(text); ok {
		return d
	}
	if d, ok := g.Action(text); ok {
		return d
	}
	return Directive{Kind: IntentNone, Text: text}
}

// Directive implements Classifier. Only high-confidence matches count as
// immediate directives; a verb buried inside a sentence does not.
func (g *Grammar) Directive(text string) (Directive, bool) {
	d := g.Classify(text)
	if d.Kind == IntentNone || d.Confidence < ConfidenceExactAlias {
		return Directive{}, false
	}
	return d, true
}

func (g *Grammar) featurePrefix(phrase string) (string, bool) {
	for _, fa := range g.aliases {
		if hasWordPrefix(phrase, fa.alias) {
			return fa.feature, true
		}
	}
	return "", false
}
