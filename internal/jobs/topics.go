package jobs

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/matthewjhunter/onboard/internal/decay"
	"github.com/matthewjhunter/onboard/internal/storage"
	"github.com/matthewjhunter/onboard/internal/topics"
)

// ClickUpdater is the part of the interest service the topic jobs replay
// clicks and bookmarks through.
type ClickUpdater interface {
	UpdateFromClick(ctx context.Context, itemID string, ts time.Time) (int, error)
	SeedFromBookmark(itemID string, at time.Time) (int, error)
}

// DecaySweep ages every topic's weights by the time since it was last
// touched and stamps it with now. Topics never stamped decay from the epoch.
type DecaySweep struct {
	Store         storage.Store
	LongHalfLife  time.Duration
	ShortHalfLife time.Duration
}

func (j *DecaySweep) Name() string { return NameDecaySweep }
func (j *DecaySweep) Description() string {
	return "decay topic weights by time since last update"
}

func (j *DecaySweep) Run(_ context.Context, now time.Time) (Result, error) {
	all, err := j.Store.GetAllTopics()
	if err != nil {
		return Result{}, err
	}
	if len(all) == 0 {
		return Result{}, nil
	}

	// Stamps are stored in whole seconds.
	now = now.Truncate(time.Second)
	for i := range all {
		last := time.Unix(0, 0)
		if all[i].LastUpdated != nil {
			last = *all[i].LastUpdated
		}
		dt := max(0, now.Sub(last))
		all[i].WtLong *= decay.Since(dt, j.LongHalfLife)
		all[i].WtShort *= decay.Since(dt, j.ShortHalfLife)
		all[i].LastUpdated = &now
	}
	if err := j.Store.UpdateTopicWeights(all); err != nil {
		return Result{}, err
	}
	return Result{Processed: len(all)}, nil
}

// PruneTopics deletes stopwords and tokens too common across item titles to
// carry signal. In dry-run mode it only counts the candidates.
type PruneTopics struct {
	Store      storage.Store
	MaxDFRatio float64
	DryRun     bool
	Stopwords  topics.Set
}

func (j *PruneTopics) Name() string { return NamePruneTopics }
func (j *PruneTopics) Description() string {
	return "remove stopword and over-common topics"
}

func (j *PruneTopics) Run(context.Context, time.Time) (Result, error) {
	stop := j.Stopwords
	if stop == nil {
		stop = topics.DefaultStopwords()
	}

	titles, err := j.Store.GetItemTitles()
	if err != nil {
		return Result{}, err
	}
	n := max(len(titles), 1)

	prune := make(map[string]struct{})
	for tok, df := range topics.DocumentFrequency(titles, stop) {
		if stop.Has(tok) || float64(df)/float64(n) > j.MaxDFRatio {
			prune[tok] = struct{}{}
		}
	}
	for _, w := range stop.Words() {
		prune[w] = struct{}{}
	}

	if j.DryRun {
		return Result{Processed: len(prune), DryRun: true}, nil
	}

	tokens := make([]string, 0, len(prune))
	for tok := range prune {
		tokens = append(tokens, tok)
	}
	sort.Strings(tokens)
	deleted, err := j.Store.DeleteTopics(tokens)
	return Result{Processed: deleted}, err
}

// TopicsFromTitles selects each title's most distinctive terms across the
// whole title corpus and gives each a small bump.
type TopicsFromTitles struct {
	Store     storage.Store
	Options   topics.SelectOptions
	BumpLong  float64
	BumpShort float64
}

func (j *TopicsFromTitles) Name() string { return NameTopicsFromTitles }
func (j *TopicsFromTitles) Description() string {
	return "bump distinctive title terms across all items"
}

func (j *TopicsFromTitles) Run(_ context.Context, now time.Time) (Result, error) {
	titles, err := j.Store.GetItemTitles()
	if err != nil {
		return Result{}, err
	}

	total := 0
	for _, terms := range topics.CorpusSelectTerms(titles, j.Options) {
		if len(terms) == 0 {
			continue
		}
		n, err := j.Store.BumpTopics(terms, j.BumpLong, j.BumpShort, now)
		total += n
		if err != nil {
			return Result{Processed: total}, err
		}
	}
	return Result{Processed: total}, nil
}

// TopicsBackfill replays every recorded click, oldest first, through the
// click topic update.
type TopicsBackfill struct {
	Store    storage.Store
	Interest ClickUpdater
}

func (j *TopicsBackfill) Name() string { return NameTopicsBackfill }
func (j *TopicsBackfill) Description() string {
	return "rebuild click topics from the full click history"
}

func (j *TopicsBackfill) Run(ctx context.Context, _ time.Time) (Result, error) {
	clicks, err := j.Store.GetAllClicks()
	if err != nil {
		return Result{}, err
	}
	total := 0
	for _, c := range clicks {
		if ctx.Err() != nil {
			return Result{Processed: total}, ctx.Err()
		}
		n, err := j.Interest.UpdateFromClick(ctx, c.ItemID, c.ClickedAt)
		if err != nil {
			return Result{Processed: total}, fmt.Errorf("click %d: %w", c.ID, err)
		}
		total += n
	}
	return Result{Processed: total}, nil
}

// SeedBookmarks seeds long-term topics from every bookmark item. Processed
// counts bookmarks visited, not tokens.
type SeedBookmarks struct {
	Store    storage.Store
	Interest ClickUpdater
}

func (j *SeedBookmarks) Name() string { return NameSeedBookmarks }
func (j *SeedBookmarks) Description() string {
	return "seed long-term topics from bookmark titles"
}

func (j *SeedBookmarks) Run(_ context.Context, now time.Time) (Result, error) {
	ids, err := j.Store.GetItemIDsBySource(storage.SourceBookmark, false)
	if err != nil {
		return Result{}, err
	}
	for i, id := range ids {
		if _, err := j.Interest.SeedFromBookmark(id, now); err != nil {
			return Result{Processed: i}, err
		}
	}
	return Result{Processed: len(ids)}, nil
}
