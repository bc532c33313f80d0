package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/matthewjhunter/onboard"
)

type fakeRunner struct {
	mu   sync.Mutex
	runs []string
	ran  chan string
}

func (f *fakeRunner) RunJob(_ context.Context, name string, now time.Time) (*onboard.JobResult, error) {
	f.mu.Lock()
	f.runs = append(f.runs, name)
	f.mu.Unlock()
	if f.ran != nil {
		select {
		case f.ran <- name:
		default:
		}
	}
	return &onboard.JobResult{Job: name}, nil
}

func (f *fakeRunner) JobNames() []string {
	return []string{"decay-sweep", "embed-refresh"}
}

func TestNewScheduler(t *testing.T) {
	runner := &fakeRunner{}
	schedule := map[string]string{
		"decay-sweep":   "0 3 * * *",
		"embed-refresh": "5,35 * * * *",
		"not-a-job":     "* * * * *",
		"source-priors": "",
	}

	c, n, err := newScheduler(context.Background(), runner, schedule, time.UTC, zerolog.Nop())
	if err != nil {
		t.Fatalf("newScheduler: %v", err)
	}
	if n != 2 {
		t.Errorf("added = %d, want 2", n)
	}
	if got := len(c.Entries()); got != 2 {
		t.Errorf("entries = %d, want 2", got)
	}
}

func TestNewScheduler_BadSpec(t *testing.T) {
	_, _, err := newScheduler(context.Background(), &fakeRunner{},
		map[string]string{"decay-sweep": "every tuesday"}, time.UTC, zerolog.Nop())
	if err == nil {
		t.Fatal("expected error for invalid cron spec")
	}
}

func TestNewScheduler_Runs(t *testing.T) {
	runner := &fakeRunner{ran: make(chan string, 1)}
	c, _, err := newScheduler(context.Background(), runner,
		map[string]string{"embed-refresh": "@every 1s"}, time.UTC, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	c.Start()
	defer c.Stop()

	select {
	case name := <-runner.ran:
		if name != "embed-refresh" {
			t.Errorf("ran %s, want embed-refresh", name)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("scheduled job did not run")
	}
}

func TestNewScheduler_CancelledContextSkipsRuns(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	runner := &fakeRunner{}
	c, _, err := newScheduler(ctx, runner, map[string]string{"decay-sweep": "@every 1s"}, time.UTC, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range c.Entries() {
		e.WrappedJob.Run()
	}

	runner.mu.Lock()
	defer runner.mu.Unlock()
	if len(runner.runs) != 0 {
		t.Errorf("runs = %v, want none after cancel", runner.runs)
	}
}
