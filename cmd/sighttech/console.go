package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/VietHungUET/SightTech/command"
	"github.com/VietHungUET/SightTech/logger"
)

// consoleRouter is the headless feature page: it prints what a page would
// show and speaks stream results. Navigation announcements are spoken by the
// coordinator.
type consoleRouter struct {
	app *app
}

func (r *consoleRouter) printf(format string, args ...any) {
	fmt.Fprintf(r.app.out, format+"\n", args...)
}

// OnUtterance implements command.Router.
func (r *consoleRouter) OnUtterance(text string) {
	r.printf("[%s] you said: %s", r.app.feature, text)
}

// OnDirective implements command.Router.
func (r *consoleRouter) OnDirective(d command.Directive) {
	r.printf("[%s] directive: %s", r.app.feature, d)
	switch d.Kind {
	case command.IntentNavigate:
		f, ok := command.LookupFeature(d.Name)
		if !ok {
			return
		}
		r.app.setFeature(f.Name)
	case command.IntentAction:
		if d.Target != "" && !strings.EqualFold(d.Target, r.app.feature) {
			r.app.setFeature(d.Target)
		}
		switch d.Name {
		case "Track", "Detect":
			r.app.connectStream()
		case "Stop":
			r.app.disconnectStream()
		}
	}
}

// OnStreamResult implements command.Router.
func (r *consoleRouter) OnStreamResult(res command.StreamResult) {
	text := res.Text()
	if text == "" {
		return
	}
	r.printf("[%s] %s", r.app.feature, text)
	r.app.say(text)
}

// OnStreamStatus implements command.Router.
func (r *consoleRouter) OnStreamStatus(status string) {
	r.printf("[%s] stream: %s", r.app.feature, status)
	if status != "" {
		r.app.say(status)
	}
}

// OnStreamError implements command.Router. The error is shown as transient
// status and spoken.
func (r *consoleRouter) OnStreamError(message string) {
	r.printf("[%s] stream error: %s", r.app.feature, message)
	r.app.coord.ReportError(message, message)
}

// OnStatus implements command.Router.
func (r *consoleRouter) OnStatus(status string) {
	r.printf("status: %s", status)
}

const consoleHelp = `commands:
  start | stop | toggle      control listening
  say <text>                 speak text
  type <text>                feed recognized text to the debouncer
  feature <name>             switch feature
  connect | disconnect       control streaming
  status                     print the current state
  help                       print this help`

// readCommands reads console commands from in and runs them on the loop.
func (a *app) readCommands(ctx context.Context, in io.Reader) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := a.loop.Do(ctx, func() { a.execute(line) }); err != nil {
			return
		}
	}
}

// execute runs one console command. It must be called on the loop.
func (a *app) execute(line string) {
	verb, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	var err error
	switch strings.ToLower(verb) {
	case "start":
		err = a.coord.Start()
	case "stop":
		a.coord.Stop()
	case "toggle":
		err = a.coord.Toggle()
	case "say":
		err = a.coord.Say(rest)
	case "type":
		a.coord.Debouncer().AddFragment(rest)
	case "feature":
		f, ok := command.LookupFeature(rest)
		if !ok {
			fmt.Fprintf(a.out, "unknown feature %q\n", rest)
			return
		}
		a.setFeature(f.Name)
	case "connect":
		a.connectStream()
	case "disconnect":
		a.disconnectStream()
	case "status":
		a.printStatus()
	case "help":
		fmt.Fprintln(a.out, consoleHelp)
	default:
		fmt.Fprintf(a.out, "unknown command %q (try help)\n", verb)
	}
	if err != nil {
		logger.Warn("sighttech: command failed", "command", verb, "error", err)
		fmt.Fprintf(a.out, "%s: %v\n", verb, err)
	}
}

func (a *app) printStatus() {
	snap := a.coord.Snapshot()
	fmt.Fprintf(a.out, "feature=%s state=%s active=%t status=%q mic=%t speaker=%t queued=%d\n",
		a.feature, snap.State, snap.Active, snap.Status, snap.MicHeld, snap.SpeakerHeld, snap.Queued)
	if a.stream != nil {
		s := a.stream.Snapshot()
		fmt.Fprintf(a.out, "stream=%s epoch=%d in_flight=%t reconnects=%d\n",
			s.State, s.Epoch, s.InFlight, s.ReconnectAttempts)
	}
}
