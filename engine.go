package onboard

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	embedding "github.com/matthewjhunter/go-embedding"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/matthewjhunter/onboard/internal/config"
	"github.com/matthewjhunter/onboard/internal/decay"
	"github.com/matthewjhunter/onboard/internal/embed"
	"github.com/matthewjhunter/onboard/internal/extract"
	"github.com/matthewjhunter/onboard/internal/feeds"
	"github.com/matthewjhunter/onboard/internal/interest"
	"github.com/matthewjhunter/onboard/internal/jobs"
	"github.com/matthewjhunter/onboard/internal/logging"
	"github.com/matthewjhunter/onboard/internal/ranking"
	"github.com/matthewjhunter/onboard/internal/storage"
	"github.com/matthewjhunter/onboard/internal/urltools"
	"github.com/matthewjhunter/onboard/internal/vecmath"
	"github.com/matthewjhunter/onboard/internal/vectorstore"
)

const (
	defaultRecommendLimit = 20
	defaultTopicsLimit    = 20
	defaultDiscoverLimit  = 10
	discoverCandidates    = 100
	discoverTopics        = 10
	discoverSources       = 5
)

var (
	// ErrInvalidURL is returned for a click whose URL cannot be canonicalized.
	ErrInvalidURL = errors.New("invalid url")
	// ErrInvalidSignal is returned for feedback other than "up" or "down".
	ErrInvalidSignal = interest.ErrInvalidSignal
	// ErrUnknownJob is returned when running a job that does not exist.
	ErrUnknownJob = jobs.ErrUnknownJob
)

// Engine is the public API for onboard's personalization pipeline. It wires
// the relational and vector stores, the embedding and extraction backends,
// the interest service, the ranker, and the job registry.
type Engine struct {
	cfg      *config.Config
	log      zerolog.Logger
	store    *storage.SQLiteStore
	vectors  vectorstore.Store
	embedder *embed.Service
	interest *interest.Service
	ranker   *ranking.Engine
	fetcher  *feeds.Fetcher
	jobs     *jobs.Registry
}

type backends struct {
	embedder    embedding.Embedder
	noEmbedding bool
	offline     bool
}

// NewEngine creates an engine from a minimal EngineConfig. Everything not
// set in cfg takes the config package defaults.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	c := config.Default()
	if cfg.DBPath != "" {
		c.Database.Path = cfg.DBPath
		c.Database.VectorPath = cfg.DBPath
	}
	if cfg.VectorDBPath != "" {
		c.Database.VectorPath = cfg.VectorDBPath
	}
	if cfg.OllamaBaseURL != "" {
		c.Ollama.BaseURL = cfg.OllamaBaseURL
	}
	if cfg.EmbedModel != "" {
		c.Ollama.EmbedModel = cfg.EmbedModel
	}
	if cfg.Epsilon != nil {
		c.Ranking.Epsilon = *cfg.Epsilon
	}
	return newEngine(c, cfg.Logger, backends{
		embedder:    cfg.Embedder,
		noEmbedding: cfg.NoEmbedding,
		offline:     cfg.Offline,
	})
}

// NewEngineFromConfig creates an engine from a fully loaded configuration.
func NewEngineFromConfig(cfg *config.Config, log zerolog.Logger) (*Engine, error) {
	return newEngine(cfg, log, backends{})
}

func newEngine(cfg *config.Config, log zerolog.Logger, b backends) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	store, err := storage.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	var vectors vectorstore.Store = vectorstore.Noop{}
	if cfg.Database.VectorPath != "" {
		vs, err := vectorstore.NewSQLiteStore(cfg.Database.VectorPath, logging.Component(log, "vectorstore"))
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("open vector store: %w", err)
		}
		vectors = vs
	}

	emb := b.embedder
	if emb == nil && !b.noEmbedding {
		ollama, err := embed.NewOllamaEmbedder(cfg.Ollama.BaseURL, cfg.Ollama.EmbedModel, cfg.Ollama.Timeout)
		if err != nil {
			store.Close()
			vectors.Close()
			return nil, fmt.Errorf("create embedder: %w", err)
		}
		emb = ollama
	}
	embedder := embed.NewService(emb, vecmath.Dim, logging.Component(log, "embed"))

	var extractor interest.TextExtractor = extract.Offline{}
	if !b.offline {
		extractor = extract.New(extract.Options{
			Timeout:       cfg.Extract.Timeout,
			MaxChars:      cfg.Extract.MaxChars,
			RatePerSecond: cfg.Extract.RatePerSecond,
			UserAgent:     cfg.Extract.UserAgent,
		}, logging.Component(log, "extract"))
	}

	ip := interest.DefaultParams()
	ip.HalfLifeShortDays = cfg.Interest.HalfLifeShortDays
	ip.HalfLifeLongDays = cfg.Interest.HalfLifeLongDays
	ip.BaseClickWt = cfg.Interest.BaseClickWt
	ip.BookmarkWt = cfg.Interest.BookmarkWt
	ip.BetaShort = cfg.Interest.BetaShort
	ip.BetaLong = cfg.Interest.BetaLong
	interestSvc := interest.NewService(store, vectors, extractor, ip, logging.Component(log, "interest"))

	rp := ranking.DefaultParams()
	rp.WLong = cfg.Ranking.WLong
	rp.WShort = cfg.Ranking.WShort
	rp.WTime = cfg.Ranking.WTime
	rp.WSrc = cfg.Ranking.WSrc
	rp.ShownPenalty = cfg.Ranking.ShownPenalty
	rp.FreshHalfDays = cfg.Ranking.FreshHalfDays
	rp.Epsilon = cfg.Ranking.Epsilon
	rp.ExploreBoost = cfg.Ranking.ExploreBoost
	ranker := ranking.NewEngine(store, vectors, interestSvc, rp, logging.Component(log, "ranking"),
		ranking.WithExplorer(ranking.NewEpsilonGreedy(rp.Epsilon, rp.ExploreBoost, nil)))

	fetcher := feeds.NewFetcher(store, logging.Component(log, "feeds"))

	registry := jobs.NewDefaultRegistry(jobs.Deps{
		Store:     store,
		Vectors:   vectors,
		Interest:  interestSvc,
		Embedder:  embedder,
		Extractor: extractor,
		Fetcher:   fetcher,
		Config:    cfg,
		Log:       logging.Component(log, "jobs"),
	})

	return &Engine{
		cfg:      cfg,
		log:      log,
		store:    store,
		vectors:  vectors,
		embedder: embedder,
		interest: interestSvc,
		ranker:   ranker,
		fetcher:  fetcher,
		jobs:     registry,
	}, nil
}

// Config returns the configuration the engine was built with.
func (e *Engine) Config() *config.Config {
	return e.cfg
}

// Recommend ranks recent embedded items and logs the served batch. Items
// published within the candidate window, or undated, are eligible.
func (e *Engine) Recommend(ctx context.Context, limit int, now time.Time) (*Recommendations, error) {
	if limit <= 0 {
		limit = defaultRecommendLimit
	}
	since := now.Add(-decay.Days(e.cfg.Ranking.CandidateWindowDays))
	candidates, err := e.store.GetCandidateItems(since, e.cfg.Ranking.CandidateLimit)
	if err != nil {
		return nil, fmt.Errorf("load candidates: %w", err)
	}
	ids := make([]string, len(candidates))
	for i, c := range candidates {
		ids[i] = c.ItemID
	}

	scored, err := e.ranker.ScoreItems(ctx, ids, now)
	if err != nil {
		return nil, fmt.Errorf("score candidates: %w", err)
	}
	if len(scored) > limit {
		scored = scored[:limit]
	}

	recs := &Recommendations{GeneratedAt: now, Items: scoredFromInternal(scored)}
	if len(scored) == 0 {
		return recs, nil
	}

	recID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate rec id: %w", err)
	}
	recs.RecID = recID.String()
	entries := make([]storage.RecLog, len(scored))
	for i, s := range scored {
		entries[i] = storage.RecLog{ItemID: s.ItemID, Score: s.Score}
	}
	if err := e.store.LogRecommendations(recs.RecID, now, entries); err != nil {
		return nil, fmt.Errorf("log recommendations: %w", err)
	}
	return recs, nil
}

// ScoreItems ranks the given items without logging a serving.
func (e *Engine) ScoreItems(ctx context.Context, itemIDs []string, now time.Time) ([]ScoredItem, error) {
	scored, err := e.ranker.ScoreItems(ctx, itemIDs, now)
	if err != nil {
		return nil, err
	}
	return scoredFromInternal(scored), nil
}

// Profile computes the interest profile as of now.
func (e *Engine) Profile(ctx context.Context, now time.Time) (*Profile, error) {
	p, err := e.interest.ComputeProfiles(ctx, now)
	if err != nil {
		return nil, err
	}
	return &Profile{
		Short:      p.Short,
		Long:       p.Long,
		Magnitudes: Magnitudes{Short: p.Magnitudes.Short, Long: p.Magnitudes.Long},
	}, nil
}

// Topics returns the k strongest topics.
func (e *Engine) Topics(_ context.Context, k int) ([]Topic, error) {
	if k <= 0 {
		k = defaultTopicsLimit
	}
	tt, err := e.interest.GetTopics(k)
	if err != nil {
		return nil, err
	}
	return topicsFromInternal(tt), nil
}

// RecordClick stores a click, creates the clicked item if it is new, marks
// the latest serving of it as clicked, and feeds its content to the topics
// histogram.
func (e *Engine) RecordClick(ctx context.Context, c Click) (*ClickResult, error) {
	canon, itemID := urltools.CanonicalID(c.URL)
	if u, err := url.Parse(canon); canon == "" || err != nil || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, c.URL)
	}
	at := c.At
	if at.IsZero() {
		at = time.Now()
	}
	title := strings.TrimSpace(c.Title)

	existing, err := e.store.GetItem(itemID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		if _, err := e.store.AddItem(&storage.Item{
			ItemID: itemID,
			URL:    canon,
			Title:  title,
			Source: storage.SourceClick,
		}); err != nil {
			return nil, fmt.Errorf("add clicked item: %w", err)
		}
	} else if title == "" {
		title = existing.Title
	}

	recorded, err := e.store.AddClick(&storage.ClickEvent{
		SourceID:  c.SourceID,
		ItemID:    itemID,
		URL:       canon,
		Title:     title,
		ClickedAt: at,
	})
	if err != nil {
		return nil, err
	}
	res := &ClickResult{ItemID: itemID, Recorded: recorded}
	if !recorded {
		return res, nil
	}
	if _, err := e.store.MarkRecommendationClicked(itemID); err != nil {
		e.log.Warn().Err(err).Str("item_id", itemID).Msg("failed to mark recommendation clicked")
	}
	res.Updated, err = e.interest.UpdateFromClick(ctx, itemID, at)
	if err != nil {
		return res, fmt.Errorf("update topics: %w", err)
	}
	return res, nil
}

// Feedback applies an explicit "up" or "down" signal to an item. Returns
// the number of topics touched.
func (e *Engine) Feedback(_ context.Context, itemID, signal string) (int, error) {
	itemID = strings.TrimSpace(itemID)
	signal = strings.ToLower(strings.TrimSpace(signal))
	return e.interest.ApplyFeedback(itemID, signal, time.Now())
}

// RunJob runs one maintenance job by name.
func (e *Engine) RunJob(ctx context.Context, name string, now time.Time) (*JobResult, error) {
	res, err := e.jobs.Run(ctx, name, now)
	out := jobResultFromInternal(res)
	if err != nil {
		return &out, err
	}
	return &out, nil
}

// RunJobs runs several jobs in order, continuing past failures.
func (e *Engine) RunJobs(ctx context.Context, names []string, now time.Time) ([]JobResult, error) {
	results, err := e.jobs.RunAll(ctx, names, now)
	out := make([]JobResult, len(results))
	for i, r := range results {
		out[i] = jobResultFromInternal(r)
	}
	return out, err
}

// JobNames lists the available jobs, sorted.
func (e *Engine) JobNames() []string {
	return e.jobs.Names()
}

// JobDescription returns a one-line description of the named job.
func (e *Engine) JobDescription(name string) string {
	if j, ok := e.jobs.Get(name); ok {
		return j.Description()
	}
	return ""
}

// AddFeed registers a feed for the ingest-feeds job.
func (e *Engine) AddFeed(feedURL, name string) error {
	if name == "" {
		name = feedURL
	}
	_, err := e.store.AddFeed(feedURL, name)
	return err
}

// ImportOPML registers every feed in an OPML file.
func (e *Engine) ImportOPML(path string) (int, error) {
	return e.fetcher.ImportOPML(path)
}

// Stats returns counts of the stored state.
func (e *Engine) Stats() (*Stats, error) {
	st, err := e.store.GetStats()
	if err != nil {
		return nil, err
	}
	out := statsFromInternal(st)
	return &out, nil
}

// Discover summarizes the data set and previews the top recommendations
// drawn from the most recently embedded items. Nothing is logged as served.
func (e *Engine) Discover(ctx context.Context, limit int, now time.Time) (*DiscoverReport, error) {
	if limit <= 0 {
		limit = defaultDiscoverLimit
	}
	st, err := e.store.GetStats()
	if err != nil {
		return nil, err
	}
	report := &DiscoverReport{Stats: statsFromInternal(st), TopSources: topSources(st.SourceCounts, discoverSources)}

	profile, err := e.interest.ComputeProfiles(ctx, now)
	if err != nil {
		return nil, err
	}
	report.Magnitudes = Magnitudes{Short: profile.Magnitudes.Short, Long: profile.Magnitudes.Long}

	tt, err := e.interest.GetTopics(discoverTopics)
	if err != nil {
		return nil, err
	}
	report.Topics = topicsFromInternal(tt)

	ids, err := e.store.GetRecentlyEmbeddedIDs(discoverCandidates)
	if err != nil {
		return nil, err
	}
	scored, err := e.ranker.ScoreItems(ctx, ids, now)
	if err != nil {
		return nil, err
	}
	if len(scored) > limit {
		scored = scored[:limit]
	}
	report.Recommendations = scoredFromInternal(scored)
	return report, nil
}

// Close releases all resources held by the engine.
func (e *Engine) Close() error {
	return errors.Join(e.store.Close(), e.vectors.Close())
}

// --- internal type conversion helpers ---

func scoredFromInternal(items []ranking.ScoredItem) []ScoredItem {
	out := make([]ScoredItem, len(items))
	for i, s := range items {
		out[i] = ScoredItem{
			ItemID:      s.ItemID,
			URL:         s.URL,
			Title:       s.Title,
			Score:       s.Score,
			Source:      s.Source,
			PublishedAt: s.PublishedAt,
			Explored:    s.Explored,
		}
	}
	return out
}

func topicsFromInternal(tt []storage.Topic) []Topic {
	out := make([]Topic, len(tt))
	for i, t := range tt {
		out[i] = Topic{Token: t.Token, WtLong: t.WtLong, WtShort: t.WtShort, LastUpdated: t.LastUpdated}
	}
	return out
}

func jobResultFromInternal(r jobs.Result) JobResult {
	return JobResult{Job: r.Job, Processed: r.Processed, DryRun: r.DryRun, Duration: r.Duration}
}

func statsFromInternal(st *storage.Stats) Stats {
	return Stats{
		Items:         st.Items,
		EmbeddedItems: st.EmbeddedItems,
		Bookmarks:     st.Bookmarks,
		Clicks:        st.Clicks,
		Topics:        st.Topics,
		RecLogs:       st.RecLogs,
	}
}

func topSources(counts map[string]int, n int) []SourceCount {
	out := make([]SourceCount, 0, len(counts))
	for src, c := range counts {
		if src == "" {
			src = "unknown"
		}
		out = append(out, SourceCount{Source: src, Items: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Items != out[j].Items {
			return out[i].Items > out[j].Items
		}
		return out[i].Source < out[j].Source
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
