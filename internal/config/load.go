package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	yamlv3 "gopkg.in/yaml.v3"
)

// PathEnvVar names a config file when no explicit path is given.
const PathEnvVar = "ONBOARD_CONFIG"

// Load layers defaults, the config file at path (optional; falls back to
// $ONBOARD_CONFIG), and environment variables, then validates the result.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = os.Getenv(PathEnvVar)
	}
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), parserFor(path)); err != nil {
				return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("stat config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	mergeSchedule(cfg, Default().Schedule)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// mergeSchedule restores default jobs missing from cfg.Schedule. The
// defaults provider loads the schedule as one value, which a file's
// schedule section replaces whole. An entry set to "" is kept and disables
// that job.
func mergeSchedule(cfg *Config, defaults map[string]string) {
	if cfg.Schedule == nil {
		cfg.Schedule = make(map[string]string, len(defaults))
	}
	for name, spec := range defaults {
		if _, ok := cfg.Schedule[name]; !ok {
			cfg.Schedule[name] = spec
		}
	}
}

func parserFor(path string) koanf.Parser {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return tomlParser{}
	}
	return yaml.Parser()
}

// Save writes cfg as YAML, or TOML when path ends in .toml.
func Save(cfg *Config, path string) error {
	var data []byte
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		k := koanf.New(".")
		if err := k.Load(structs.Provider(cfg, "koanf"), nil); err != nil {
			return fmt.Errorf("failed to flatten config: %w", err)
		}
		b, err := k.Marshal(tomlParser{})
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		data = b
	} else {
		b, err := yamlv3.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		data = b
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// tomlParser adapts BurntSushi/toml to koanf.Parser.
type tomlParser struct{}

func (tomlParser) Unmarshal(b []byte) (map[string]interface{}, error) {
	out := make(map[string]interface{})
	if _, err := toml.Decode(string(b), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (tomlParser) Marshal(m map[string]interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// envMappings lists every recognized environment variable. Unlisted
// variables are ignored.
var envMappings = map[string]string{
	"onboard_db_path":     "database.path",
	"vector_db_path":      "database.vector_path",
	"onboard_vector_path": "database.vector_path",

	"onboard_log_level":  "log.level",
	"onboard_log_format": "log.format",

	"onboard_ollama_url":     "ollama.base_url",
	"onboard_embed_model":    "ollama.embed_model",
	"onboard_ollama_timeout": "ollama.timeout",

	"onboard_half_life_short_days": "interest.half_life_short_days",
	"onboard_half_life_long_days":  "interest.half_life_long_days",
	"onboard_base_click_wt":        "interest.base_click_wt",
	"onboard_bookmark_wt":          "interest.bookmark_wt",
	"onboard_beta_short":           "interest.beta_short",
	"onboard_beta_long":            "interest.beta_long",

	"onboard_w_long":                "ranking.w_long",
	"onboard_w_short":               "ranking.w_short",
	"onboard_w_time":                "ranking.w_time",
	"onboard_w_src":                 "ranking.w_src",
	"onboard_shown_penalty":         "ranking.shown_penalty",
	"onboard_fresh_half_days":       "ranking.fresh_half_days",
	"onboard_epsilon":               "ranking.epsilon",
	"onboard_explore_boost":         "ranking.explore_boost",
	"onboard_candidate_limit":       "ranking.candidate_limit",
	"onboard_candidate_window_days": "ranking.candidate_window_days",

	"topic_prune_max_df_ratio": "topics.prune_max_df_ratio",
	"topic_prune_dry_run":      "topics.prune_dry_run",
	"topic_bump_long":          "topics.bump_long",
	"topic_bump_short":         "topics.bump_short",
	"topic_top_k_per_title":    "topics.top_k_per_title",
	"topic_min_df":             "topics.min_df",
	"topic_max_df_ratio":       "topics.max_df_ratio",
	"topic_use_bigrams":        "topics.use_bigrams",

	"onboard_prior_window_days": "priors.window_days",

	"onboard_extract_timeout":   "extract.timeout",
	"onboard_extract_max_chars": "extract.max_chars",
	"onboard_extract_rate":      "extract.rate_per_second",

	"onboard_bookmarks_path": "bookmarks.path",
	"tracking_db_path":       "tracking.db_path",

	"onboard_web_addr":   "web.addr",
	"onboard_jwt_secret": "web.jwt_secret",
}

func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
