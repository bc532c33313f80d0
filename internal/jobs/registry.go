package jobs

import (
	"github.com/rs/zerolog"

	"github.com/matthewjhunter/onboard/internal/config"
	"github.com/matthewjhunter/onboard/internal/decay"
	"github.com/matthewjhunter/onboard/internal/interest"
	"github.com/matthewjhunter/onboard/internal/storage"
	"github.com/matthewjhunter/onboard/internal/topics"
	"github.com/matthewjhunter/onboard/internal/vectorstore"
)

// Deps are the collaborators the standard jobs draw on.
type Deps struct {
	Store     storage.Store
	Vectors   vectorstore.Store
	Interest  ClickUpdater
	Embedder  TextEmbedder
	Extractor interest.TextExtractor
	Fetcher   FeedFetcher
	Config    *config.Config
	Log       zerolog.Logger
}

// NewDefaultRegistry registers every standard job, configured from d.Config.
func NewDefaultRegistry(d Deps) *Registry {
	cfg := d.Config
	if cfg == nil {
		cfg = config.Default()
	}
	r := NewRegistry(d.Log)

	r.Register(&DecaySweep{
		Store:         d.Store,
		LongHalfLife:  decay.Days(cfg.Interest.HalfLifeLongDays),
		ShortHalfLife: decay.Days(cfg.Interest.HalfLifeShortDays),
	})
	r.Register(&PruneTopics{
		Store:      d.Store,
		MaxDFRatio: cfg.Topics.PruneMaxDFRatio,
		DryRun:     cfg.Topics.PruneDryRun,
	})
	r.Register(&SourcePriors{
		Store:  d.Store,
		Window: decay.Days(cfg.Priors.WindowDays),
	})
	r.Register(&TopicsFromTitles{
		Store: d.Store,
		Options: topics.SelectOptions{
			TopKPerDoc: cfg.Topics.TopKPerTitle,
			MinDF:      cfg.Topics.MinDF,
			MaxDFRatio: cfg.Topics.MaxDFRatio,
			UseBigrams: cfg.Topics.UseBigrams,
		},
		BumpLong:  cfg.Topics.BumpLong,
		BumpShort: cfg.Topics.BumpShort,
	})

	if d.Interest != nil {
		r.Register(&TopicsBackfill{Store: d.Store, Interest: d.Interest})
		r.Register(&SeedBookmarks{Store: d.Store, Interest: d.Interest})
	}

	if d.Embedder != nil && d.Extractor != nil {
		vectors := d.Vectors
		if vectors == nil {
			vectors = vectorstore.Noop{}
		}
		refresh := &EmbedRefresh{
			Store:     d.Store,
			Vectors:   vectors,
			Embedder:  d.Embedder,
			Extractor: d.Extractor,
			Limit:     DefaultEmbedLimit,
			Log:       d.Log.With().Str("job", NameEmbedRefresh).Logger(),
		}
		r.Register(refresh)
		r.Register(&HydrateClicks{Store: d.Store, Refresh: refresh})
	} else {
		r.Register(&HydrateClicks{Store: d.Store})
	}

	if d.Fetcher != nil {
		r.Register(&IngestFeeds{
			Store:   d.Store,
			Fetcher: d.Fetcher,
			Feeds:   cfg.Feeds,
			Log:     d.Log.With().Str("job", NameIngestFeeds).Logger(),
		})
	}
	r.Register(&IngestBookmarks{Store: d.Store, Path: cfg.Bookmarks.Path})
	r.Register(&SyncClicks{
		Store:      d.Store,
		TrackingDB: cfg.Tracking.DBPath,
		Log:        d.Log.With().Str("job", NameSyncClicks).Logger(),
	})
	return r
}
