package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/matthewjhunter/onboard/internal/interest"
	"github.com/matthewjhunter/onboard/internal/storage"
	"github.com/matthewjhunter/onboard/internal/vectorstore"
)

// DefaultEmbedLimit caps items embedded per scheduled refresh.
const DefaultEmbedLimit = 100

// TextEmbedder turns texts into vectors, one per text.
type TextEmbedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedRefresh embeds items that have no vector yet. Each item's text is its
// title followed by the extracted page body. A missing embedding backend
// fails the run.
type EmbedRefresh struct {
	Store     storage.Store
	Vectors   vectorstore.Store
	Embedder  TextEmbedder
	Extractor interest.TextExtractor
	// Limit caps items per run; zero or less embeds everything pending.
	Limit int
	Log   zerolog.Logger
}

func (j *EmbedRefresh) Name() string { return NameEmbedRefresh }
func (j *EmbedRefresh) Description() string {
	return "embed items that have no vector yet"
}

func (j *EmbedRefresh) Run(ctx context.Context, now time.Time) (Result, error) {
	items, err := j.Store.GetItemsNeedingEmbedding(j.Limit)
	if err != nil {
		return Result{}, err
	}
	if len(items) == 0 {
		return Result{}, nil
	}

	texts := make([]string, len(items))
	metas := make([]map[string]string, len(items))
	for i, it := range items {
		res := j.Extractor.Extract(ctx, it.URL)
		texts[i] = it.Title + "\n\n" + res.Text
		metas[i] = map[string]string{
			"item_id":      it.ItemID,
			"url":          it.URL,
			"title":        it.Title,
			"content_hash": res.ContentHash,
		}
	}

	vecs, err := j.Embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return Result{}, fmt.Errorf("failed to embed %d items: %w", len(items), err)
	}
	if len(vecs) != len(items) {
		return Result{}, fmt.Errorf("embedder returned %d vectors for %d items", len(vecs), len(items))
	}

	done := 0
	for i, it := range items {
		vid, err := j.Vectors.Upsert(ctx, it.ItemID, vecs[i], metas[i])
		if err != nil {
			return Result{Processed: done}, fmt.Errorf("failed to store vector for %s: %w", it.ItemID, err)
		}
		if err := j.Store.MarkItemEmbedded(it.ItemID, vid, metas[i]["content_hash"], now); err != nil {
			return Result{Processed: done}, err
		}
		done++
	}
	j.Log.Debug().Int("items", done).Msg("embedded items")
	return Result{Processed: done}, nil
}

// HydrateClicks creates items rows for clicked URLs the catalog has never
// seen, then embeds everything still pending.
type HydrateClicks struct {
	Store storage.Store
	// Refresh runs after hydration when set.
	Refresh *EmbedRefresh
}

func (j *HydrateClicks) Name() string { return NameHydrateClicks }
func (j *HydrateClicks) Description() string {
	return "add items for clicked urls and embed them"
}

func (j *HydrateClicks) Run(ctx context.Context, now time.Time) (Result, error) {
	missing, err := j.Store.GetClicksMissingItems()
	if err != nil {
		return Result{}, err
	}
	if len(missing) == 0 {
		return Result{}, nil
	}

	for i, c := range missing {
		_, err := j.Store.AddItem(&storage.Item{
			ItemID: c.ItemID,
			URL:    c.URL,
			Title:  c.Title,
			Source: storage.SourceClick,
		})
		if err != nil {
			return Result{Processed: i}, err
		}
	}

	res := Result{Processed: len(missing)}
	if j.Refresh == nil {
		return res, nil
	}
	refresh := *j.Refresh
	refresh.Limit = 0
	if _, err := refresh.Run(ctx, now); err != nil {
		return res, fmt.Errorf("hydrated %d items but embedding failed: %w", len(missing), err)
	}
	return res, nil
}
