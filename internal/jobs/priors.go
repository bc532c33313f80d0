package jobs

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/matthewjhunter/onboard/internal/ranking"
	"github.com/matthewjhunter/onboard/internal/storage"
)

// SourcePriors turns each source's share of recent clicks into a ranking
// prior in [-0.1, 0.1]: an even split gives every source a negative prior,
// a source with all the clicks gets +0.1.
type SourcePriors struct {
	Store  storage.Store
	Window time.Duration
}

func (j *SourcePriors) Name() string { return NameSourcePriors }
func (j *SourcePriors) Description() string {
	return "recompute per-source priors from recent click share"
}

func (j *SourcePriors) Run(_ context.Context, now time.Time) (Result, error) {
	counts, err := j.Store.CountClicksBySource(now.Add(-j.Window))
	if err != nil {
		return Result{}, err
	}
	total := 0
	for _, c := range counts {
		total += c
	}
	if total == 0 {
		return Result{}, nil
	}

	sources := make([]string, 0, len(counts))
	for src := range counts {
		sources = append(sources, src)
	}
	sort.Strings(sources)

	for i, src := range sources {
		prior := float64(counts[src])/float64(total)*0.2 - 0.1
		val := strconv.FormatFloat(prior, 'g', -1, 64)
		if err := j.Store.SetModelParam(ranking.SourcePriorPrefix+src, val); err != nil {
			return Result{Processed: i}, err
		}
	}
	return Result{Processed: len(sources)}, nil
}
