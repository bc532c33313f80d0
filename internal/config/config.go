// Package config loads onboard's settings in three layers: built-in
// defaults, an optional YAML or TOML file, then environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/matthewjhunter/onboard/internal/logging"
)

// Config is the full runtime configuration.
type Config struct {
	Database  DatabaseConfig    `koanf:"database" yaml:"database"`
	Log       logging.Config    `koanf:"log" yaml:"log"`
	Ollama    OllamaConfig      `koanf:"ollama" yaml:"ollama"`
	Interest  InterestConfig    `koanf:"interest" yaml:"interest"`
	Ranking   RankingConfig     `koanf:"ranking" yaml:"ranking"`
	Topics    TopicsConfig      `koanf:"topics" yaml:"topics"`
	Priors    PriorsConfig      `koanf:"priors" yaml:"priors"`
	Extract   ExtractConfig     `koanf:"extract" yaml:"extract"`
	Feeds     []FeedConfig      `koanf:"feeds" yaml:"feeds"`
	Bookmarks BookmarksConfig   `koanf:"bookmarks" yaml:"bookmarks"`
	Tracking  TrackingConfig    `koanf:"tracking" yaml:"tracking"`
	Schedule  map[string]string `koanf:"schedule" yaml:"schedule"`
	Web       WebConfig         `koanf:"web" yaml:"web"`
}

type DatabaseConfig struct {
	Path string `koanf:"path" yaml:"path"`
	// VectorPath holds item vectors. Empty disables the vector backend.
	VectorPath string `koanf:"vector_path" yaml:"vector_path"`
}

type OllamaConfig struct {
	BaseURL    string        `koanf:"base_url" yaml:"base_url"`
	EmbedModel string        `koanf:"embed_model" yaml:"embed_model"`
	Timeout    time.Duration `koanf:"timeout" yaml:"timeout"`
}

type InterestConfig struct {
	HalfLifeShortDays float64 `koanf:"half_life_short_days" yaml:"half_life_short_days"`
	HalfLifeLongDays  float64 `koanf:"half_life_long_days" yaml:"half_life_long_days"`
	BaseClickWt       float64 `koanf:"base_click_wt" yaml:"base_click_wt"`
	BookmarkWt        float64 `koanf:"bookmark_wt" yaml:"bookmark_wt"`
	BetaShort         float64 `koanf:"beta_short" yaml:"beta_short"`
	BetaLong          float64 `koanf:"beta_long" yaml:"beta_long"`
}

type RankingConfig struct {
	WLong               float64 `koanf:"w_long" yaml:"w_long"`
	WShort              float64 `koanf:"w_short" yaml:"w_short"`
	WTime               float64 `koanf:"w_time" yaml:"w_time"`
	WSrc                float64 `koanf:"w_src" yaml:"w_src"`
	ShownPenalty        float64 `koanf:"shown_penalty" yaml:"shown_penalty"`
	FreshHalfDays       float64 `koanf:"fresh_half_days" yaml:"fresh_half_days"`
	Epsilon             float64 `koanf:"epsilon" yaml:"epsilon"`
	ExploreBoost        float64 `koanf:"explore_boost" yaml:"explore_boost"`
	CandidateLimit      int     `koanf:"candidate_limit" yaml:"candidate_limit"`
	CandidateWindowDays float64 `koanf:"candidate_window_days" yaml:"candidate_window_days"`
}

type TopicsConfig struct {
	PruneMaxDFRatio float64 `koanf:"prune_max_df_ratio" yaml:"prune_max_df_ratio"`
	PruneDryRun     bool    `koanf:"prune_dry_run" yaml:"prune_dry_run"`
	BumpLong        float64 `koanf:"bump_long" yaml:"bump_long"`
	BumpShort       float64 `koanf:"bump_short" yaml:"bump_short"`
	TopKPerTitle    int     `koanf:"top_k_per_title" yaml:"top_k_per_title"`
	MinDF           int     `koanf:"min_df" yaml:"min_df"`
	MaxDFRatio      float64 `koanf:"max_df_ratio" yaml:"max_df_ratio"`
	UseBigrams      bool    `koanf:"use_bigrams" yaml:"use_bigrams"`
}

type PriorsConfig struct {
	WindowDays float64 `koanf:"window_days" yaml:"window_days"`
}

type ExtractConfig struct {
	Timeout       time.Duration `koanf:"timeout" yaml:"timeout"`
	MaxChars      int           `koanf:"max_chars" yaml:"max_chars"`
	RatePerSecond float64       `koanf:"rate_per_second" yaml:"rate_per_second"`
	UserAgent     string        `koanf:"user_agent" yaml:"user_agent"`
}

type FeedConfig struct {
	Name string `koanf:"name" yaml:"name"`
	URL  string `koanf:"url" yaml:"url"`
}

type BookmarksConfig struct {
	Path string `koanf:"path" yaml:"path"`
}

// TrackingConfig points at an external click-tracking database whose
// CLICK_EVENTS table is mirrored into click_events.
type TrackingConfig struct {
	DBPath string `koanf:"db_path" yaml:"db_path"`
}

type WebConfig struct {
	Addr string `koanf:"addr" yaml:"addr"`
	// JWTSecret enables HS256 bearer auth on mutating routes when set.
	JWTSecret string `koanf:"jwt_secret" yaml:"jwt_secret"`
}

// Default returns a config with sensible defaults
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:       "./onboard.db",
			VectorPath: "./onboard-vectors.db",
		},
		Log: logging.DefaultConfig(),
		Ollama: OllamaConfig{
			BaseURL:    "http://localhost:11434",
			EmbedModel: "all-minilm",
			Timeout:    30 * time.Second,
		},
		Interest: InterestConfig{
			HalfLifeShortDays: 7,
			HalfLifeLongDays:  90,
			BaseClickWt:       0.5,
			BookmarkWt:        0.8,
			BetaShort:         1.0,
			BetaLong:          0.3,
		},
		Ranking: RankingConfig{
			WLong:               0.40,
			WShort:              0.45,
			WTime:               0.10,
			WSrc:                0.07,
			ShownPenalty:        -0.12,
			FreshHalfDays:       3,
			Epsilon:             0.05,
			ExploreBoost:        0.01,
			CandidateLimit:      200,
			CandidateWindowDays: 7,
		},
		Topics: TopicsConfig{
			PruneMaxDFRatio: 0.6,
			BumpLong:        0.05,
			BumpShort:       0.02,
			TopKPerTitle:    5,
			MinDF:           2,
			MaxDFRatio:      0.5,
			UseBigrams:      true,
		},
		Priors: PriorsConfig{WindowDays: 30},
		Extract: ExtractConfig{
			Timeout:       8 * time.Second,
			MaxChars:      10000,
			RatePerSecond: 2,
			UserAgent:     "onboard/1.0",
		},
		Schedule: map[string]string{
			"ingest-feeds":       "*/30 * * * *",
			"hydrate-clicks":     "*/15 * * * *",
			"embed-refresh":      "5,35 * * * *",
			"decay-sweep":        "0 3 * * *",
			"source-priors":      "10 3 * * *",
			"topics-from-titles": "20 3 * * *",
			"prune-topics":       "30 3 * * 0",
		},
		Web: WebConfig{Addr: ":8080"},
	}
}

// Validate rejects settings the engine cannot run with.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Ranking.Epsilon < 0 || c.Ranking.Epsilon > 1 {
		return fmt.Errorf("ranking.epsilon must be in [0,1], got %v", c.Ranking.Epsilon)
	}
	if c.Topics.PruneMaxDFRatio <= 0 || c.Topics.PruneMaxDFRatio > 1 {
		return fmt.Errorf("topics.prune_max_df_ratio must be in (0,1], got %v", c.Topics.PruneMaxDFRatio)
	}
	if c.Topics.MaxDFRatio <= 0 || c.Topics.MaxDFRatio > 1 {
		return fmt.Errorf("topics.max_df_ratio must be in (0,1], got %v", c.Topics.MaxDFRatio)
	}
	if c.Ranking.CandidateLimit <= 0 {
		return fmt.Errorf("ranking.candidate_limit must be positive")
	}
	return nil
}
