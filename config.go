package plotline

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all settings for the pipeline. Everything is loadable from
// the environment; only the Neo4j password has no default.
type Config struct {
	// ContentDir is the root of the writing workspace. Drafts live in
	// its drafts/ subdirectory and processed files are filed under it
	// by kind.
	ContentDir string `env:"PLOTLINE_CONTENT_DIR" envDefault:"content"`

	// DraftsDir overrides where unprocessed notes are picked up.
	// Defaults to <ContentDir>/drafts.
	DraftsDir string `env:"PLOTLINE_DRAFTS_DIR"`

	// LedgerPath is the SQLite ingestion ledger. Defaults to
	// <ContentDir>/plotline.db.
	LedgerPath string `env:"PLOTLINE_LEDGER_PATH"`

	Neo4jURI      string `env:"NEO4J_URI" envDefault:"bolt://localhost:7687"`
	Neo4jUsername string `env:"NEO4J_USERNAME" envDefault:"neo4j"`
	Neo4jPassword string `env:"NEO4J_PASSWORD"`
	Neo4jDatabase string `env:"NEO4J_DATABASE"`

	// Completion service used for extraction, translation, and answers.
	LLMProvider string        `env:"PLOTLINE_LLM_PROVIDER" envDefault:"openai"`
	LLMModel    string        `env:"PLOTLINE_LLM_MODEL" envDefault:"gpt-4o"`
	LLMBaseURL  string        `env:"PLOTLINE_LLM_BASE_URL"`
	LLMAPIKey   string        `env:"OPENAI_API_KEY"`
	LLMTimeout  time.Duration `env:"PLOTLINE_LLM_TIMEOUT" envDefault:"60s"`
}

// LoadConfig reads configuration from the environment and fills the
// path defaults. Missing required settings are an error here, not later
// at first use.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultConfig returns a Config pointed at a local Neo4j and OpenAI,
// with paths rooted in ./content.
func DefaultConfig() Config {
	cfg := Config{
		ContentDir:    "content",
		Neo4jURI:      "bolt://localhost:7687",
		Neo4jUsername: "neo4j",
		LLMProvider:   "openai",
		LLMModel:      "gpt-4o",
		LLMTimeout:    60 * time.Second,
	}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.DraftsDir == "" {
		c.DraftsDir = filepath.Join(c.ContentDir, "drafts")
	}
	if c.LedgerPath == "" {
		c.LedgerPath = filepath.Join(c.ContentDir, "plotline.db")
	}
}

// Validate checks the settings that cannot default.
func (c Config) Validate() error {
	if c.Neo4jPassword == "" {
		return fmt.Errorf("%w: NEO4J_PASSWORD", ErrMissingConfig)
	}
	if c.LLMProvider == "" {
		return fmt.Errorf("%w: PLOTLINE_LLM_PROVIDER", ErrMissingConfig)
	}
	return nil
}
