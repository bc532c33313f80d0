// Package jobs holds the maintenance and ingestion batch drivers. Each job is
// registered by name and run on demand or from the daemon's schedule.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/matthewjhunter/onboard/internal/metrics"
)

// ErrUnknownJob is returned when running a name that was never registered.
var ErrUnknownJob = errors.New("unknown job")

// Job names.
const (
	NameDecaySweep       = "decay-sweep"
	NamePruneTopics      = "prune-topics"
	NameSourcePriors     = "source-priors"
	NameTopicsFromTitles = "topics-from-titles"
	NameTopicsBackfill   = "topics-backfill"
	NameSeedBookmarks    = "seed-bookmarks"
	NameHydrateClicks    = "hydrate-clicks"
	NameEmbedRefresh     = "embed-refresh"
	NameIngestFeeds      = "ingest-feeds"
	NameIngestBookmarks  = "ingest-bookmarks"
	NameSyncClicks       = "sync-clicks"
)

// Result summarizes one job run. Processed counts whatever unit the job
// works in: rows decayed, tokens bumped, items embedded.
type Result struct {
	Job       string        `json:"job"`
	Processed int           `json:"processed"`
	DryRun    bool          `json:"dry_run,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Job is a single batch driver. now is the logical run time.
type Job interface {
	Name() string
	Description() string
	Run(ctx context.Context, now time.Time) (Result, error)
}

// Registry maps job names to jobs.
type Registry struct {
	jobs map[string]Job
	log  zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{jobs: make(map[string]Job), log: log}
}

// Register adds j, replacing any job with the same name.
func (r *Registry) Register(j Job) {
	r.jobs[j.Name()] = j
}

// Get looks up a job by name.
func (r *Registry) Get(name string) (Job, bool) {
	j, ok := r.jobs[name]
	return j, ok
}

// Names returns the registered job names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.jobs))
	for n := range r.jobs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Run executes the named job and records its outcome.
func (r *Registry) Run(ctx context.Context, name string, now time.Time) (Result, error) {
	j, ok := r.jobs[name]
	if !ok {
		return Result{Job: name}, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}

	start := time.Now()
	res, err := j.Run(ctx, now)
	res.Job = name
	res.Duration = time.Since(start)
	metrics.RecordJob(name, start, err)

	if err != nil {
		r.log.Error().Err(err).Str("job", name).Int("processed", res.Processed).Msg("job failed")
		return res, fmt.Errorf("job %s: %w", name, err)
	}
	r.log.Info().Str("job", name).Int("processed", res.Processed).Dur("duration", res.Duration).Msg("job finished")
	return res, nil
}

// RunAll runs the named jobs in order, continuing past failures. The
// returned error joins every failure.
func (r *Registry) RunAll(ctx context.Context, names []string, now time.Time) ([]Result, error) {
	results := make([]Result, 0, len(names))
	var errs []error
	for _, name := range names {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		res, err := r.Run(ctx, name, now)
		results = append(results, res)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return results, errors.Join(errs...)
}
