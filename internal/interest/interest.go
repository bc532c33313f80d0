// Package interest maintains the user's interest profile: two decayed taste
// vectors built from click history and bookmarks, and a weighted topics
// histogram fed by clicked and bookmarked content.
package interest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/matthewjhunter/onboard/internal/decay"
	"github.com/matthewjhunter/onboard/internal/extract"
	"github.com/matthewjhunter/onboard/internal/storage"
	"github.com/matthewjhunter/onboard/internal/topics"
	"github.com/matthewjhunter/onboard/internal/vecmath"
	"github.com/matthewjhunter/onboard/internal/vectorstore"
)

const (
	clickTokenCap = 100
	seedTokenCap  = 30
	// FeedbackTokenCap bounds the title tokens touched by one feedback signal.
	FeedbackTokenCap = 30
	minSeedBump      = 0.05
	seedBumpFactor   = 0.2
)

// ErrInvalidSignal is returned by ApplyFeedback for anything but up or down.
var ErrInvalidSignal = errors.New("feedback signal must be \"up\" or \"down\"")

// Params holds the blending and bump coefficients.
type Params struct {
	HalfLifeShortDays float64
	HalfLifeLongDays  float64
	BaseClickWt       float64
	BookmarkWt        float64
	BetaShort         float64
	BetaLong          float64
	// Dim is the profile vector width.
	Dim int
	// ChunkSize bounds the ids per vector-store lookup.
	ChunkSize int
	// Window limits which clicks contribute to the profile.
	Window time.Duration
}

// DefaultParams returns the standard coefficients.
func DefaultParams() Params {
	return Params{
		HalfLifeShortDays: 7,
		HalfLifeLongDays:  90,
		BaseClickWt:       0.5,
		BookmarkWt:        0.8,
		BetaShort:         1.0,
		BetaLong:          0.3,
		Dim:               vecmath.Dim,
		ChunkSize:         200,
		Window:            365 * decay.Day,
	}
}

// TextExtractor is the subset of extract.Extractor used for click topics.
type TextExtractor interface {
	Extract(ctx context.Context, url string) extract.Result
}

// Profile is the pair of taste vectors plus their L2 magnitudes.
type Profile struct {
	Short      []float32
	Long       []float32
	Magnitudes Magnitudes
}

type Magnitudes struct {
	Short float64 `json:"short"`
	Long  float64 `json:"long"`
}

// Service computes profiles and updates the topics histogram.
type Service struct {
	store     storage.Store
	vectors   vectorstore.Store
	extractor TextExtractor
	params    Params
	stopwords topics.Set
	log       zerolog.Logger
}

// NewService wires a Service. A nil vectors store behaves as one that
// holds no vectors; a nil extractor limits click topics to the title.
func NewService(store storage.Store, vectors vectorstore.Store, extractor TextExtractor, params Params, log zerolog.Logger) *Service {
	if vectors == nil {
		vectors = vectorstore.Noop{}
	}
	if params.Dim <= 0 {
		params.Dim = vecmath.Dim
	}
	if params.ChunkSize <= 0 {
		params.ChunkSize = 200
	}
	if params.Window <= 0 {
		params.Window = 365 * decay.Day
	}
	return &Service{
		store:     store,
		vectors:   vectors,
		extractor: extractor,
		params:    params,
		stopwords: topics.DefaultStopwords(),
		log:       log,
	}
}

// Params returns the service coefficients.
func (s *Service) Params() Params {
	return s.params
}

// ComputeProfiles folds recent clicks, newest first, into the short and long
// vectors, then blends every embedded bookmark into the long vector. The
// fold is order dependent: each step renormalizes.
func (s *Service) ComputeProfiles(ctx context.Context, now time.Time) (*Profile, error) {
	clicks, err := s.store.GetClicksSince(now.Add(-s.params.Window))
	if err != nil {
		return nil, fmt.Errorf("load clicks: %w", err)
	}

	short := vecmath.Zero(s.params.Dim)
	long := vecmath.Zero(s.params.Dim)
	halfShort := decay.Days(s.params.HalfLifeShortDays)
	halfLong := decay.Days(s.params.HalfLifeLongDays)

	for start := 0; start < len(clicks); start += s.params.ChunkSize {
		end := min(start+s.params.ChunkSize, len(clicks))
		chunk := clicks[start:end]

		ids := make([]string, 0, len(chunk))
		for _, c := range chunk {
			ids = append(ids, c.ItemID)
		}
		vecs := s.vectors.GetVectorsForItems(ctx, ids)

		for _, c := range chunk {
			v, ok := vecs[c.ItemID]
			if !ok || len(v) != s.params.Dim {
				continue
			}
			dt := now.Sub(c.ClickedAt)
			if dt < 0 {
				dt = 0
			}
			aShort := s.params.BaseClickWt * decay.Since(dt, halfShort)
			aLong := s.params.BaseClickWt * decay.Since(dt, halfLong)
			short = vecmath.Blend(short, v, aShort)
			long = vecmath.Blend(long, v, aLong)
		}
	}

	bookmarkIDs, err := s.store.GetItemIDsBySource(storage.SourceBookmark, true)
	if err != nil {
		return nil, fmt.Errorf("load bookmarks: %w", err)
	}
	for start := 0; start < len(bookmarkIDs); start += s.params.ChunkSize {
		end := min(start+s.params.ChunkSize, len(bookmarkIDs))
		chunk := bookmarkIDs[start:end]
		vecs := s.vectors.GetVectorsForItems(ctx, chunk)
		for _, id := range chunk {
			v, ok := vecs[id]
			if !ok || len(v) != s.params.Dim {
				continue
			}
			long = vecmath.Blend(long, v, s.params.BookmarkWt)
		}
	}

	return &Profile{
		Short: short,
		Long:  long,
		Magnitudes: Magnitudes{
			Short: vecmath.Norm(short),
			Long:  vecmath.Norm(long),
		},
	}, nil
}

// GetTopics returns the top topics by combined weight.
func (s *Service) GetTopics(limit int) ([]storage.Topic, error) {
	if limit <= 0 {
		return nil, nil
	}
	return s.store.GetTopTopics(limit)
}

// UpdateFromClick bumps the topics found in the clicked item's title and
// extracted body. Returns the number of tokens updated; an unknown item
// updates nothing.
func (s *Service) UpdateFromClick(ctx context.Context, itemID string, ts time.Time) (int, error) {
	item, err := s.store.GetItem(itemID)
	if err != nil {
		return 0, err
	}
	if item == nil {
		return 0, nil
	}

	text := item.Title
	if s.extractor != nil && item.URL != "" {
		res := s.extractor.Extract(ctx, item.URL)
		text = item.Title + "\n\n" + res.Text
	}

	tokens := topics.ExtractTokens(text, clickTokenCap, s.stopwords)
	if len(tokens) == 0 {
		return 0, nil
	}
	// Decay at click time is always 1; the bump is sized by beta alone.
	dLong := s.params.BetaLong * decay.Weight(0, s.params.HalfLifeLongDays)
	dShort := s.params.BetaShort * decay.Weight(0, s.params.HalfLifeShortDays)
	return s.store.BumpTopics(tokens, dLong, dShort, ts)
}

// SeedFromBookmark gives a bookmark's title tokens a long-term-only bump.
// Items that are missing or not bookmarks are ignored.
func (s *Service) SeedFromBookmark(itemID string, at time.Time) (int, error) {
	item, err := s.store.GetItem(itemID)
	if err != nil {
		return 0, err
	}
	if item == nil || item.Source != storage.SourceBookmark {
		return 0, nil
	}
	tokens := topics.ExtractTokens(item.Title, seedTokenCap, s.stopwords)
	if len(tokens) == 0 {
		return 0, nil
	}
	bump := math.Max(minSeedBump, s.params.BetaLong*seedBumpFactor)
	return s.store.BumpTopics(tokens, bump, 0, at)
}

// ApplyFeedback nudges the item's title topics up or down by the click bump.
// An "up" also marks the latest serving of the item as clicked.
func (s *Service) ApplyFeedback(itemID, signal string, at time.Time) (int, error) {
	var sign float64
	switch signal {
	case "up":
		sign = 1
	case "down":
		sign = -1
	default:
		return 0, ErrInvalidSignal
	}

	item, err := s.store.GetItem(itemID)
	if err != nil {
		return 0, err
	}
	if item == nil {
		return 0, nil
	}

	if sign > 0 {
		if _, err := s.store.MarkRecommendationClicked(itemID); err != nil {
			s.log.Warn().Err(err).Str("item_id", itemID).Msg("failed to mark recommendation clicked")
		}
	}

	tokens := topics.ExtractTokens(item.Title, FeedbackTokenCap, s.stopwords)
	if len(tokens) == 0 {
		return 0, nil
	}
	return s.store.BumpTopics(tokens, sign*s.params.BetaLong, sign*s.params.BetaShort, at)
}
