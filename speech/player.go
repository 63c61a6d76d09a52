package speech

import (
	"context"
	"sync/atomic"

	"github.com/VietHungUET/SightTech/scheduler"
)

// Player adapts a blocking Service to Output. Playback runs on a scheduler
// worker and completion is posted back to the scheduler thread.
type Player struct {
	sched   scheduler.Scheduler
	service Service
}

// NewPlayer creates a player for service.
func NewPlayer(sched scheduler.Scheduler, service Service) *Player {
	return &Player{sched: sched, service: service}
}

type playback struct {
	cancel    context.CancelFunc
	cancelled atomic.Bool
}

// Cancel implements Playback.
func (p *playback) Cancel() {
	p.cancelled.Store(true)
	p.cancel()
}

// Speak implements Output.
func (p *Player) Speak(text string, done func(error)) Playback {
	ctx, cancel := context.WithCancel(context.Background())
	pb := &playback{cancel: cancel}

	p.sched.Go(func() {
		err := p.service.Speak(ctx, text)
		cancel()
		p.sched.Post(func() {
			if pb.cancelled.Load() || done == nil {
				return
			}
			done(err)
		})
	})
	return pb
}
