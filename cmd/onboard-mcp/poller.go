package main

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/matthewjhunter/onboard"
)

// pollJobs run on every poll cycle, in order.
var pollJobs = []string{"ingest-feeds", "embed-refresh"}

// poller keeps the catalog fresh while the MCP server is up.
type poller struct {
	engine   *onboard.Engine
	interval time.Duration
	log      zerolog.Logger

	cycle  sync.Mutex // serializes poll cycles
	cancel context.CancelFunc
	exited chan struct{}
}

func newPoller(engine *onboard.Engine, interval time.Duration, log zerolog.Logger) *poller {
	return &poller{engine: engine, interval: interval, log: log}
}

// start runs one cycle right away and then one per interval until stop is
// called or ctx ends.
func (p *poller) start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.exited = make(chan struct{})
	go func() {
		defer close(p.exited)
		p.run(ctx)
	}()
	p.log.Info().Dur("interval", p.interval).Msg("poller started")
}

// stop cancels the loop and waits for an in-flight cycle to return.
func (p *poller) stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.exited
	p.log.Info().Msg("poller stopped")
}

func (p *poller) poll(ctx context.Context) ([]onboard.JobResult, error) {
	p.cycle.Lock()
	defer p.cycle.Unlock()

	results, err := p.engine.RunJobs(ctx, pollJobs, time.Now())
	ev := p.log.Info()
	for _, r := range results {
		ev = ev.Int(r.Job, r.Processed)
	}
	ev.Msg("poll cycle complete")
	return results, err
}

func (p *poller) run(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if _, err := p.poll(ctx); err != nil && ctx.Err() == nil {
			p.log.Warn().Err(err).Msg("poll cycle failed")
		}
		timer.Reset(p.interval)
	}
}
