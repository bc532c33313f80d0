// Package ranking scores candidate items against the interest profile with a
// weighted blend of similarity, freshness, source prior, and a penalty for
// items shown recently, then applies an exploration policy.
package ranking

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/matthewjhunter/onboard/internal/decay"
	"github.com/matthewjhunter/onboard/internal/interest"
	"github.com/matthewjhunter/onboard/internal/metrics"
	"github.com/matthewjhunter/onboard/internal/storage"
	"github.com/matthewjhunter/onboard/internal/vecmath"
	"github.com/matthewjhunter/onboard/internal/vectorstore"
)

// SourcePriorPrefix namespaces per-source priors in model_params.
const SourcePriorPrefix = "source:"

// Params are the scoring weights.
type Params struct {
	WLong         float64
	WShort        float64
	WTime         float64
	WSrc          float64
	ShownPenalty  float64
	FreshHalfDays float64
	Epsilon       float64
	ExploreBoost  float64
	// ShownWindow is how far back a serving counts as "shown recently".
	ShownWindow time.Duration
}

// DefaultParams returns the standard weights.
func DefaultParams() Params {
	return Params{
		WLong:         0.40,
		WShort:        0.45,
		WTime:         0.10,
		WSrc:          0.07,
		ShownPenalty:  -0.12,
		FreshHalfDays: 3,
		Epsilon:       0.05,
		ExploreBoost:  0.01,
		ShownWindow:   24 * time.Hour,
	}
}

// ScoredItem is one ranked candidate.
type ScoredItem struct {
	ItemID      string     `json:"item_id"`
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Score       float64    `json:"score"`
	Source      string     `json:"source,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	Explored    bool       `json:"explored,omitempty"`
}

// Profiler supplies the current interest profile.
type Profiler interface {
	ComputeProfiles(ctx context.Context, now time.Time) (*interest.Profile, error)
}

// Engine scores items. It is safe for concurrent use when its explorer is.
type Engine struct {
	store    storage.Store
	vectors  vectorstore.Store
	profiler Profiler
	explorer Explorer
	params   Params
	log      zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithExplorer replaces the default epsilon-greedy explorer.
func WithExplorer(x Explorer) Option {
	return func(e *Engine) { e.explorer = x }
}

// NewEngine creates an Engine. Without WithExplorer it explores with
// probability params.Epsilon using a randomly seeded source.
func NewEngine(store storage.Store, vectors vectorstore.Store, profiler Profiler, params Params, log zerolog.Logger, opts ...Option) *Engine {
	if vectors == nil {
		vectors = vectorstore.Noop{}
	}
	if params.ShownWindow <= 0 {
		params.ShownWindow = 24 * time.Hour
	}
	e := &Engine{
		store:    store,
		vectors:  vectors,
		profiler: profiler,
		params:   params,
		log:      log,
	}
	for _, o := range opts {
		o(e)
	}
	if e.explorer == nil {
		e.explorer = NewEpsilonGreedy(params.Epsilon, params.ExploreBoost, nil)
	}
	return e
}

// Params returns the engine weights.
func (e *Engine) Params() Params {
	return e.params
}

// ScoreItems ranks itemIDs, best first. Items without a vector are left
// out. Duplicate ids are scored once.
func (e *Engine) ScoreItems(ctx context.Context, itemIDs []string, now time.Time) ([]ScoredItem, error) {
	start := time.Now()
	defer func() { metrics.ScoreDuration.Observe(time.Since(start).Seconds()) }()
	metrics.ScoreCalls.Inc()

	ids := dedupe(itemIDs)
	if len(ids) == 0 {
		return []ScoredItem{}, nil
	}

	profile, err := e.profiler.ComputeProfiles(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("compute profile: %w", err)
	}
	priors, err := e.SourcePriors()
	if err != nil {
		return nil, err
	}
	meta, err := e.store.GetItems(ids)
	if err != nil {
		return nil, fmt.Errorf("load item metadata: %w", err)
	}
	shown, err := e.store.GetRecentlyServed(ids, now.Add(-e.params.ShownWindow))
	if err != nil {
		return nil, fmt.Errorf("load serving history: %w", err)
	}
	vecs := e.vectors.GetVectorsForItems(ctx, ids)

	freshHalf := decay.Days(e.params.FreshHalfDays)
	scored := make([]ScoredItem, 0, len(ids))
	for _, id := range ids {
		v, ok := vecs[id]
		if !ok || len(v) == 0 {
			metrics.ItemsScored.WithLabelValues("no_vector").Inc()
			continue
		}
		it := meta[id]

		sLong := vecmath.CosineToUnit(vecmath.Cosine(v, profile.Long))
		sShort := vecmath.CosineToUnit(vecmath.Cosine(v, profile.Short))
		sTime := 0.0
		if it.PublishedAt != nil {
			sTime = decay.Since(now.Sub(*it.PublishedAt), freshHalf)
		}
		sSrc := priors[it.Source]

		score := e.params.WLong*sLong +
			e.params.WShort*sShort +
			e.params.WTime*sTime +
			e.params.WSrc*sSrc
		if shown[id] {
			score += e.params.ShownPenalty
		}

		scored = append(scored, ScoredItem{
			ItemID:      id,
			URL:         it.URL,
			Title:       it.Title,
			Score:       score,
			Source:      it.Source,
			PublishedAt: it.PublishedAt,
		})
		metrics.ItemsScored.WithLabelValues("scored").Inc()
	}

	sortByScore(scored)
	if len(scored) == 0 {
		return scored, nil
	}

	explored := e.explorer.Explore(scored)
	sortByScore(explored)
	for _, it := range explored {
		if it.Explored {
			metrics.ExplorationBoosts.Inc()
			e.log.Debug().Str("item_id", it.ItemID).Float64("score", it.Score).Msg("exploration boost")
			break
		}
	}
	return explored, nil
}

// SourcePriors loads the per-source priors, skipping unparsable values.
func (e *Engine) SourcePriors() (map[string]float64, error) {
	params, err := e.store.GetModelParams(nil)
	if err != nil {
		return nil, fmt.Errorf("load source priors: %w", err)
	}
	priors := make(map[string]float64)
	for k, v := range params {
		src, ok := strings.CutPrefix(k, SourcePriorPrefix)
		if !ok {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			e.log.Debug().Str("key", k).Str("val", v).Msg("ignoring unparsable source prior")
			continue
		}
		priors[src] = f
	}
	return priors, nil
}

func sortByScore(items []ScoredItem) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].Score > items[j].Score })
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
