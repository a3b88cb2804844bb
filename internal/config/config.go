// Package config loads pipeline configuration from file, environment, and .env.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Database  Database  `mapstructure:"database"`
	Embedding Embedding `mapstructure:"embedding"`
	Ingest    Ingest    `mapstructure:"ingest"`
	Timeouts  Timeouts  `mapstructure:"fetch_timeouts"`
	Scoring   Scoring   `mapstructure:"scoring"`
	Cluster   Cluster   `mapstructure:"cluster"`
}

// Database holds Postgres connection settings. Credentials come from the
// environment (DATABASE_*), loaded through .env when present.
type Database struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// ConnString builds a lib/pq connection string.
func (d Database) ConnString() string {
	return fmt.Sprintf("host=%s port=%s dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Name, d.Username, d.Password, d.SSLMode)
}

// Embedding holds embedder settings. Dim must match the embedding model output.
type Embedding struct {
	Dim    int    `mapstructure:"dim"`
	Model  string `mapstructure:"model"`
	APIKey string `mapstructure:"api_key"`
}

// Ingest holds ingestion settings.
type Ingest struct {
	Concurrency   int `mapstructure:"concurrency"`     // Enrichment worker count
	MaxResultsCap int `mapstructure:"max_results_cap"` // Hard ceiling on requested max_results
}

// Timeouts holds per-adapter call deadlines, in seconds.
type Timeouts struct {
	PubMed    int `mapstructure:"pubmed"`
	Citations int `mapstructure:"citations"`
	Mesh      int `mapstructure:"mesh"`
	Embedder  int `mapstructure:"embedder"`
}

// PubMedTimeout returns the bibliographic adapter deadline.
func (t Timeouts) PubMedTimeout() time.Duration { return time.Duration(t.PubMed) * time.Second }

// CitationsTimeout returns the per-article citation adapter deadline.
func (t Timeouts) CitationsTimeout() time.Duration { return time.Duration(t.Citations) * time.Second }

// MeshTimeout returns the vocabulary adapter deadline.
func (t Timeouts) MeshTimeout() time.Duration { return time.Duration(t.Mesh) * time.Second }

// EmbedderTimeout returns the embedder call deadline.
func (t Timeouts) EmbedderTimeout() time.Duration { return time.Duration(t.Embedder) * time.Second }

// Scoring holds score weights and the recency decay constant.
type Scoring struct {
	RecencyTauYears float64 `mapstructure:"recency_tau_years"`
	NoveltyWeight   float64 `mapstructure:"novelty_weight"`
	VelocityWeight  float64 `mapstructure:"velocity_weight"`
	RecencyWeight   float64 `mapstructure:"recency_weight"`
}

// Cluster holds clustering parameters.
type Cluster struct {
	MinSize    int   `mapstructure:"min_size"`
	RandomSeed int64 `mapstructure:"random_seed"`
}

// Load reads configuration from an optional config file plus the environment.
// Environment variables use the PRIMETIME_ prefix with underscores
// (e.g. PRIMETIME_INGEST_CONCURRENCY), except database credentials which use
// the conventional DATABASE_* names.
func Load(configFile string) (*Config, error) {
	// Best effort; a missing .env is not an error.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PRIMETIME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDatabaseEnv(&cfg.Database)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration without touching the environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "prime_time")
	v.SetDefault("database.username", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("embedding.dim", 768)
	v.SetDefault("embedding.model", "gemini-embedding-001")

	v.SetDefault("ingest.concurrency", 8)
	v.SetDefault("ingest.max_results_cap", 100)

	v.SetDefault("fetch_timeouts.pubmed", 30)
	v.SetDefault("fetch_timeouts.citations", 15)
	v.SetDefault("fetch_timeouts.mesh", 10)
	v.SetDefault("fetch_timeouts.embedder", 5)

	v.SetDefault("scoring.recency_tau_years", 5.0)
	v.SetDefault("scoring.novelty_weight", 0.4)
	v.SetDefault("scoring.velocity_weight", 0.4)
	v.SetDefault("scoring.recency_weight", 0.2)

	v.SetDefault("cluster.min_size", 5)
	v.SetDefault("cluster.random_seed", 42)
}

// applyDatabaseEnv overlays the conventional DATABASE_* variables used by the
// deployment environment.
func applyDatabaseEnv(d *Database) {
	if v := os.Getenv("DATABASE_HOST"); v != "" {
		d.Host = v
	}
	if v := os.Getenv("DATABASE_PORT"); v != "" {
		d.Port = v
	}
	if v := os.Getenv("DATABASE_NAME"); v != "" {
		d.Name = v
	}
	if v := os.Getenv("DATABASE_USERNAME"); v != "" {
		d.Username = v
	}
	if v := os.Getenv("DATABASE_PASSWORD"); v != "" {
		d.Password = v
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Embedding.Dim <= 0 {
		return fmt.Errorf("embedding.dim must be positive, got %d", c.Embedding.Dim)
	}
	if c.Ingest.Concurrency <= 0 {
		return fmt.Errorf("ingest.concurrency must be positive, got %d", c.Ingest.Concurrency)
	}
	if c.Ingest.MaxResultsCap <= 0 {
		return fmt.Errorf("ingest.max_results_cap must be positive, got %d", c.Ingest.MaxResultsCap)
	}
	if c.Scoring.RecencyTauYears <= 0 {
		return fmt.Errorf("scoring.recency_tau_years must be positive, got %f", c.Scoring.RecencyTauYears)
	}
	sum := c.Scoring.NoveltyWeight + c.Scoring.VelocityWeight + c.Scoring.RecencyWeight
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("score weights must sum to 1.0, got %f", sum)
	}
	if c.Cluster.MinSize < 2 {
		return fmt.Errorf("cluster.min_size must be at least 2, got %d", c.Cluster.MinSize)
	}
	return nil
}
