package speech

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

const (
	wordsPerMinute      = 150
	estimatePadding     = 500 * time.Millisecond
	minEstimateDuration = 2 * time.Second
)

// EstimateDuration approximates how long text takes to speak:
// max(words / 150wpm + 500ms, 2s).
func EstimateDuration(text string) time.Duration {
	words := len(strings.Fields(text))
	d := time.Duration(words) * time.Minute / wordsPerMinute
	return max(d+estimatePadding, minEstimateDuration)
}

// ConsoleService prints text instead of playing audio and holds the output
// for the estimated speaking duration.
type ConsoleService struct {
	mu  sync.Mutex
	out io.Writer

	// Wait blocks for d or until ctx is done. Defaults to a timer.
	Wait func(ctx context.Context, d time.Duration) error
}

// NewConsoleService creates a console speech service writing to out.
func NewConsoleService(out io.Writer) *ConsoleService {
	return &ConsoleService{out: out, Wait: sleepContext}
}

// Name implements Service.
func (s *ConsoleService) Name() string {
	return "console"
}

// Speak implements Service.
func (s *ConsoleService) Speak(ctx context.Context, text string) error {
	if text == "" {
		return ErrEmptyText
	}
	s.mu.Lock()
	_, err := fmt.Fprintf(s.out, "[speech] %s\n", text)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to write speech: %w", err)
	}
	return s.Wait(ctx, EstimateDuration(text))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
