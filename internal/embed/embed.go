// Package embed turns item text into fixed-width vectors through a pluggable
// embedding backend guarded by a circuit breaker.
package embed

import (
	"context"
	"errors"
	"fmt"
	"time"

	embedding "github.com/matthewjhunter/go-embedding"
	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/matthewjhunter/onboard/internal/metrics"
	"github.com/matthewjhunter/onboard/internal/vecmath"
)

var (
	// ErrNoBackend is returned when no embedder is configured.
	ErrNoBackend = errors.New("no embedding backend configured")
	// ErrDimension is returned when the backend produces vectors of the
	// wrong width.
	ErrDimension = errors.New("embedding dimension mismatch")
)

// Service embeds batches of texts. A nil embedder yields ErrNoBackend.
type Service struct {
	embedder embedding.Embedder
	dim      int
	cb       *gobreaker.CircuitBreaker[[][]float32]
	log      zerolog.Logger
}

// NewService wraps embedder. dim <= 0 selects vecmath.Dim.
func NewService(embedder embedding.Embedder, dim int, log zerolog.Logger) *Service {
	if dim <= 0 {
		dim = vecmath.Dim
	}
	s := &Service{embedder: embedder, dim: dim, log: log}
	s.cb = gobreaker.NewCircuitBreaker[[][]float32](gobreaker.Settings{
		Name:        "embed",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	})
	return s
}

// Dim is the vector width this service enforces.
func (s *Service) Dim() int {
	return s.dim
}

// Available reports whether a backend is configured.
func (s *Service) Available() bool {
	return s != nil && s.embedder != nil
}

// EmbedTexts returns one vector per text, in input order.
func (s *Service) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if !s.Available() {
		return nil, ErrNoBackend
	}
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := s.cb.Execute(func() ([][]float32, error) {
		return s.embedder.Embed(ctx, texts)
	})
	if err != nil {
		return nil, fmt.Errorf("embed %d texts: %w", len(texts), err)
	}
	metrics.EmbedTexts.Add(float64(len(texts)))
	for i, v := range vecs {
		if len(v) != s.dim {
			return nil, fmt.Errorf("%w: text %d has %d dims, want %d", ErrDimension, i, len(v), s.dim)
		}
	}
	return vecs, nil
}

// EmbedText embeds a single text.
func (s *Service) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vecs, err := s.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}
