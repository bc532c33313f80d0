package onboard

import (
	"time"

	embedding "github.com/matthewjhunter/go-embedding"
	"github.com/rs/zerolog"
)

// EngineConfig configures the onboard engine. Zero values select the
// built-in defaults.
type EngineConfig struct {
	DBPath string
	// VectorDBPath holds item vectors; empty keeps them in DBPath.
	VectorDBPath  string
	OllamaBaseURL string
	EmbedModel    string
	// Embedder overrides the Ollama backend.
	Embedder embedding.Embedder
	// NoEmbedding runs without any embedding backend; embed jobs fail.
	NoEmbedding bool
	// Offline skips page fetches; topics and embeddings use titles only.
	Offline bool
	// Epsilon overrides the exploration rate when non-nil.
	Epsilon *float64
	Logger  zerolog.Logger
}

// ScoredItem is a ranked recommendation.
type ScoredItem struct {
	ItemID      string     `json:"item_id"`
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Score       float64    `json:"score"`
	Source      string     `json:"source"`
	PublishedAt *time.Time `json:"published_at"`
	Explored    bool       `json:"explored,omitempty"`
}

// Recommendations is one served batch. RecID ties the batch to its rec_logs
// rows.
type Recommendations struct {
	RecID       string       `json:"rec_id"`
	GeneratedAt time.Time    `json:"generated_at"`
	Items       []ScoredItem `json:"items"`
}

// Topic is one entry of the interest histogram.
type Topic struct {
	Token       string     `json:"token"`
	WtLong      float64    `json:"wt_long"`
	WtShort     float64    `json:"wt_short"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
}

// Magnitudes are the L2 norms of the profile vectors.
type Magnitudes struct {
	Short float64 `json:"short"`
	Long  float64 `json:"long"`
}

// Profile is the user's current interest profile.
type Profile struct {
	Short      []float32  `json:"-"`
	Long       []float32  `json:"-"`
	Magnitudes Magnitudes `json:"magnitudes"`
}

// Click is an observed click on a link.
type Click struct {
	URL      string    `json:"url"`
	Title    string    `json:"title,omitempty"`
	SourceID string    `json:"source_id,omitempty"`
	At       time.Time `json:"clicked_at,omitempty"`
}

// ClickResult reports what recording a click changed.
type ClickResult struct {
	ItemID   string `json:"item_id"`
	Recorded bool   `json:"recorded"`
	Updated  int    `json:"updated"`
}

// JobResult summarizes a maintenance job run.
type JobResult struct {
	Job       string        `json:"job"`
	Processed int           `json:"processed"`
	DryRun    bool          `json:"dry_run,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Stats counts the engine's stored state.
type Stats struct {
	Items         int `json:"items"`
	EmbeddedItems int `json:"embedded_items"`
	Bookmarks     int `json:"bookmarks"`
	Clicks        int `json:"clicks"`
	Topics        int `json:"topics"`
	RecLogs       int `json:"rec_logs"`
}

// SourceCount is the number of items from one source.
type SourceCount struct {
	Source string `json:"source"`
	Items  int    `json:"items"`
}

// DiscoverReport is a one-shot overview of ingested data and what the
// engine would recommend from it.
type DiscoverReport struct {
	Stats           Stats         `json:"stats"`
	TopSources      []SourceCount `json:"top_sources"`
	Magnitudes      Magnitudes    `json:"magnitudes"`
	Topics          []Topic       `json:"topics"`
	Recommendations []ScoredItem  `json:"recommendations"`
}
