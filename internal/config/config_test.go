package config

import "testing"

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got: %v", err)
	}
	if cfg.Embedding.Dim != 768 {
		t.Errorf("expected embedding dim 768, got %d", cfg.Embedding.Dim)
	}
	if cfg.Ingest.Concurrency != 8 {
		t.Errorf("expected ingest concurrency 8, got %d", cfg.Ingest.Concurrency)
	}
	if cfg.Cluster.MinSize != 5 {
		t.Errorf("expected cluster min size 5, got %d", cfg.Cluster.MinSize)
	}
}

func TestValidateRejectsBadWeights(t *testing.T) {
	cfg := Default()
	cfg.Scoring.NoveltyWeight = 0.5
	cfg.Scoring.VelocityWeight = 0.5
	cfg.Scoring.RecencyWeight = 0.5
	if err := cfg.Validate(); err == nil {
		t.Error("weights summing to 1.5 should be rejected")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero embedding dim", func(c *Config) { c.Embedding.Dim = 0 }},
		{"zero concurrency", func(c *Config) { c.Ingest.Concurrency = 0 }},
		{"zero results cap", func(c *Config) { c.Ingest.MaxResultsCap = 0 }},
		{"zero tau", func(c *Config) { c.Scoring.RecencyTauYears = 0 }},
		{"min size one", func(c *Config) { c.Cluster.MinSize = 1 }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			cfg := Default()
			c.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestConnString(t *testing.T) {
	d := Database{Host: "db", Port: "5433", Name: "pt", Username: "u", Password: "p", SSLMode: "disable"}
	want := "host=db port=5433 dbname=pt user=u password=p sslmode=disable"
	if got := d.ConnString(); got != want {
		t.Errorf("ConnString() = %q, want %q", got, want)
	}
}
