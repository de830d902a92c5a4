package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const base = `
environment: test
alphavantage:
  api_key: demo
  tickers: [JPM, GS, BAC, C]
`

const sample = base + `
budget:
  daily_limit: 25
cache:
  backend: memory
  ttl: 30s
`

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Server.Port != 8080 {
		t.Fatalf("expected default port, got %d", c.Server.Port)
	}
	if c.AlphaVantage.OutputSize != "full" || c.Budget.Backend != "file" {
		t.Fatalf("unexpected defaults %+v %+v", c.AlphaVantage, c.Budget)
	}
	if c.Cache.TTL != 30*time.Second {
		t.Fatalf("expected ttl 30s, got %v", c.Cache.TTL)
	}
	if c.Analysis.MAWindow != 20 || c.Analysis.TestRatio != 0.25 || c.Analysis.PredictTicker != "JPM" {
		t.Fatalf("unexpected analysis defaults %+v", c.Analysis)
	}
}

func TestParseRejectsInvalid(t *testing.T) {
	if _, err := Parse([]byte("environment: test\n")); err == nil {
		t.Fatalf("expected error for missing tickers")
	}
	bad := base + "budget:\n  backend: sqlite\n"
	if _, err := Parse([]byte(bad)); err == nil {
		t.Fatalf("expected error for unknown budget backend")
	}
	redis := base + "cache:\n  backend: redis\n"
	if _, err := Parse([]byte(redis)); err == nil {
		t.Fatalf("expected error for redis without addr")
	}
	layered := base + "cache:\n  backend: layered\n"
	if _, err := Parse([]byte(layered)); err == nil {
		t.Fatalf("expected error for layered without addr")
	}
}

func TestApplyEnv(t *testing.T) {
	c, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	env := map[string]string{
		"ALPHAVANTAGE_API_KEY": "secret",
		"TICKERS":              "JPM, WFC ,",
		"KAFKA_BROKERS":        "k1:9092,k2:9092",
	}
	c.ApplyEnv(func(k string) string { return env[k] })
	if c.AlphaVantage.APIKey != "secret" {
		t.Fatalf("api key not overridden")
	}
	if len(c.AlphaVantage.Tickers) != 2 || c.AlphaVantage.Tickers[1] != "WFC" {
		t.Fatalf("unexpected tickers %v", c.AlphaVantage.Tickers)
	}
	if len(c.Kafka.Brokers) != 2 {
		t.Fatalf("unexpected brokers %v", c.Kafka.Brokers)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Environment != "test" {
		t.Fatalf("unexpected environment %q", c.Environment)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
