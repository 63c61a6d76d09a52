package command

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/unicode/norm"

	"github.com/VietHungUET/SightTech/logger"
	"github.com/VietHungUET/SightTech/scheduler"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type recordingRouter struct {
	RouterFuncs
	utterances []string
	directives []Directive
}

func newRecordingRouter() *recordingRouter {
	r := &recordingRouter{}
	r.RouterFuncs = RouterFuncs{
		Utterance: func(text string) { r.utterances = append(r.utterances, text) },
		Directive: func(d Directive) { r.directives = append(r.directives, d) },
	}
	return r
}

func newTestDebouncer(router Router, outputActive *bool) (*Debouncer, *scheduler.Manual) {
	sched := scheduler.NewManual(epoch)
	d := NewDebouncer(sched, DebouncerConfig{
		Classifier:   DefaultGrammar(),
		OutputActive: func() bool { return outputActive != nil && *outputActive },
		Router:       router,
		Logger:       logger.Discard(),
	})
	return d, sched
}

func TestGrammar_Navigation(t *testing.T) {
	g := DefaultGrammar()

	tests := []struct {
		text       string
		wantOK     bool
		feature    string
		confidence float64
	}{
		{"switch to music", true, FeatureMusic, ConfidenceTriggered},
		{"Go To   News please", true, FeatureNews, ConfidenceTriggered},
		{"open read aloud", true, FeatureText, ConfidenceTriggered},
		{"i want to use barcode", true, FeatureProduct, ConfidenceTriggered},
		{"chuyển sang tin tức", true, FeatureNews, ConfidenceTriggered},
		{"mở nhạc", true, FeatureMusic, ConfidenceTriggered},
		{"currency", true, FeatureCurrency, ConfidenceExactAlias},
		{"khuôn mặt", true, FeatureFace, ConfidenceExactAlias},
		{"open the fridge", false, "", 0},
		{"tell me about currency", false, "", 0},
		{"", false, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			d, ok := g.Navigation(tt.text)
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, IntentNavigate, d.Kind)
			assert.Equal(t, tt.feature, d.Name)
			assert.Equal(t, tt.confidence, d.Confidence)
			assert.Equal(t, tt.text, d.Text)
		})
	}
}

func TestGrammar_DecomposedDiacritics(t *testing.T) {
	g := DefaultGrammar()
	d, ok := g.Navigation(norm.NFD.String("chuyển sang tin tức"))
	require.True(t, ok)
	assert.Equal(t, FeatureNews, d.Name)
}

func TestGrammar_AliasNeedsWordBoundary(t *testing.T) {
	g := DefaultGrammar()
	_, ok := g.Navigation("go to textbook")
	assert.False(t, ok)
}

func TestGrammar_Action(t *testing.T) {
	g := DefaultGrammar()

	tests := []struct {
		text       string
		action     string
		target     string
		confidence float64
	}{
		{"play music", "Play", FeatureMusic, ConfidenceActionVerb},
		{"stop", "Stop", "", ConfidenceActionVerb},
		{"snap a picture", "Capture", "", ConfidenceActionVerb},
		{"tạm dừng nhạc", "Stop", FeatureMusic, ConfidenceActionVerb},
		{"please pause now", "Stop", "", ConfidenceVerbInside},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			d, ok := g.Action(tt.text)
			require.True(t, ok)
			assert.Equal(t, IntentAction, d.Kind)
			assert.Equal(t, tt.action, d.Name)
			assert.Equal(t, tt.target, d.Target)
			assert.Equal(t, tt.confidence, d.Confidence)
		})
	}

	_, ok := g.Action("what is the weather")
	assert.False(t, ok)
}

func TestGrammar_ClassifyAndDirective(t *testing.T) {
	g := DefaultGrammar()

	assert.Equal(t, IntentNavigate, g.Classify("find").Kind, "navigation wins over actions")
	assert.Equal(t, IntentAction, g.Classify("play song").Kind)
	none := g.Classify("how much is this")
	assert.Equal(t, IntentNone, none.Kind)
	assert.Equal(t, "how much is this", none.Text)

	_, ok := g.Directive("could you stop")
	assert.False(t, ok, "buried verbs are not immediate")
	d, ok := g.Directive("stop")
	require.True(t, ok)
	assert.Equal(t, "Stop", d.Name)
}

func TestParseGrammar_Errors(t *testing.T) {
	_, err := ParseGrammar([]byte("features: [A]\n"))
	assert.ErrorContains(t, err, "no languages")

	_, err = ParseGrammar([]byte("languages: [{code: en}]\n"))
	assert.ErrorContains(t, err, "no features")

	_, err = ParseGrammar([]byte("features: [A]\nlanguages:\n  - code: en\n    aliases:\n      B: [b]\n"))
	assert.ErrorContains(t, err, "unknown feature")

	_, err = ParseGrammar([]byte("features: [\n"))
	assert.ErrorContains(t, err, "failed to parse grammar")
}

func TestLoadGrammar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grammar.yaml")
	data := `
features: [Radio]
languages:
  - code: en
    triggers: [tune]
    aliases:
      Radio: [radio, fm]
    actions:
      mute: Stop
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	g, err := LoadGrammar(path)
	require.NoError(t, err)

	d, ok := g.Navigation("tune fm")
	require.True(t, ok)
	assert.Equal(t, "Radio", d.Name)

	d, ok = g.Action("mute radio")
	require.True(t, ok)
	assert.Equal(t, "Stop", d.Name)
	assert.Equal(t, "Radio", d.Target)

	_, err = LoadGrammar(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestFeatures(t *testing.T) {
	f, ok := LookupFeature("product")
	require.True(t, ok)
	assert.Equal(t, "/image/barcode", f.Route)

	assert.Equal(t, "Navigating to Face Recognition", Announcement(FeatureFace))
	assert.Equal(t, "Navigating to Help", Announcement("Help"))

	for _, name := range DefaultGrammar().Features {
		_, ok := LookupFeature(name)
		assert.True(t, ok, "grammar feature %s has no route", name)
	}
}

func TestDebouncer_FlushAfterSilenceWindow(t *testing.T) {
	router := newRecordingRouter()
	d, sched := newTestDebouncer(router, nil)

	assert.Equal(t, FragmentBuffered, d.AddFragment("what is"))
	sched.Advance(400 * time.Millisecond)
	assert.Equal(t, FragmentBuffered, d.AddFragment("the price"))
	sched.Advance(500 * time.Millisecond)
	assert.Equal(t, FragmentBuffered, d.AddFragment("of this"))

	assert.Equal(t, epoch.Add(2900*time.Millisecond), d.Deadline())
	assert.Equal(t, "what is the price of this", d.Pending())

	sched.Advance(1999 * time.Millisecond)
	assert.Empty(t, router.utterances, "no flush before 2900ms")

	sched.Advance(time.Millisecond)
	require.Equal(t, []string{"what is the price of this"}, router.utterances)
	assert.Empty(t, d.Pending())
	assert.True(t, d.Deadline().IsZero())
	assert.Zero(t, sched.PendingTimers())
}

func TestDebouncer_DirectiveBypass(t *testing.T) {
	router := newRecordingRouter()
	d, sched := newTestDebouncer(router, nil)

	d.AddFragment("tell me")
	sched.Advance(300 * time.Millisecond)

	assert.Equal(t, FragmentDispatched, d.AddFragment("switch to news"))
	require.Len(t, router.directives, 1)
	assert.Equal(t, FeatureNews, router.directives[0].Name)
	assert.Empty(t, d.Pending())
	assert.Zero(t, sched.PendingTimers())

	sched.Advance(5 * time.Second)
	assert.Empty(t, router.utterances, "discarded text is never delivered")
}

func TestDebouncer_IgnoresEmptyAndOutputActive(t *testing.T) {
	router := newRecordingRouter()
	speaking := false
	d, sched := newTestDebouncer(router, &speaking)

	d.AddFragment("hello")
	deadline := d.Deadline()

	sched.Advance(1500 * time.Millisecond)
	assert.Equal(t, FragmentIgnored, d.AddFragment("   "))
	speaking = true
	assert.Equal(t, FragmentIgnored, d.AddFragment("navigating to news"))
	assert.Equal(t, FragmentIgnored, d.AddFragment("stop"), "directives are ignored too")
	assert.Equal(t, deadline, d.Deadline(), "timer not reset")

	sched.Advance(500 * time.Millisecond)
	assert.Equal(t, []string{"hello"}, router.utterances)
	assert.Empty(t, router.directives)
}

func TestDebouncer_ResetDiscards(t *testing.T) {
	router := newRecordingRouter()
	d, sched := newTestDebouncer(router, nil)

	d.AddFragment("half a thought")
	d.Reset()
	sched.Advance(10 * time.Second)

	assert.Empty(t, router.utterances)
	d.Flush()
	assert.Empty(t, router.utterances, "flush with nothing pending is a no-op")
}

func TestDebouncer_DefaultsAndNoClassifier(t *testing.T) {
	sched := scheduler.NewManual(epoch)
	d := NewDebouncer(sched, DebouncerConfig{Logger: logger.Discard()})

	assert.Equal(t, FragmentBuffered, d.AddFragment("stop"))
	assert.Equal(t, epoch.Add(DefaultSilenceWindow), d.Deadline())
	sched.Advance(DefaultSilenceWindow)
	assert.Empty(t, d.Pending())
}

func TestMultiRouter(t *testing.T) {
	var a, b []string
	m := MultiRouter{
		RouterFuncs{Status: func(s string) { a = append(a, s) }},
		RouterFuncs{Status: func(s string) { b = append(b, s) }},
	}
	m.OnStatus("Listening...")
	m.OnUtterance("ignored")
	m.OnStreamError("ignored")

	assert.Equal(t, []string{"Listening..."}, a)
	assert.Equal(t, []string{"Listening..."}, b)
}

func TestStreamResult_Text(t *testing.T) {
	r := StreamResult{Payload: map[string]any{"description": "a person ahead", "text": "x"}}
	assert.Equal(t, "a person ahead", r.Text())
	assert.Empty(t, StreamResult{}.Text())
}

func TestFragmentResultAndDirectiveString(t *testing.T) {
	assert.Equal(t, "buffered", FragmentBuffered.String())
	assert.Equal(t, "unknown", FragmentResult(9).String())
	assert.Equal(t, "action:Play(Music)", Directive{Kind: IntentAction, Name: "Play", Target: "Music"}.String())
	assert.True(t, Directive{}.IsZero())
}
