package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.Mode != "offline" {
		t.Fatalf("default gateway mode = %q", cfg.Gateway.Mode)
	}
	if cfg.Session.Store != "inmemory" {
		t.Fatalf("default session store = %q", cfg.Session.Store)
	}
	if cfg.Search.DefaultFPS != 30 {
		t.Fatalf("default fps = %v", cfg.Search.DefaultFPS)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("default address = %q", cfg.Server.Address)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
gateway:
  mode: remote
  base_url: http://retrieval.internal:8000
  timeout: 10s
session:
  store: redis
  ttl: 1h
redis:
  host: cache.internal
  port: "6380"
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Gateway.Mode != "remote" || cfg.Gateway.BaseURL != "http://retrieval.internal:8000" {
		t.Fatalf("gateway config: %+v", cfg.Gateway)
	}
	if cfg.Gateway.Timeout != 10*time.Second {
		t.Fatalf("timeout = %v", cfg.Gateway.Timeout)
	}
	if cfg.Redis.Addr() != "cache.internal:6380" {
		t.Fatalf("redis addr = %q", cfg.Redis.Addr())
	}
	if cfg.Session.TTL != time.Hour {
		t.Fatalf("ttl = %v", cfg.Session.TTL)
	}
}

func TestRemoteModeRequiresBaseURL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("gateway:\n  mode: remote\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("remote mode without base_url should fail validation")
	}
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{Host: "db.internal", User: "keyseek", Password: "pw", DBName: "keyseek"}
	dsn, err := p.DSN()
	if err != nil {
		t.Fatalf("DSN: %v", err)
	}
	want := "postgres://keyseek:pw@db.internal:5432/keyseek?sslmode=disable"
	if dsn != want {
		t.Fatalf("dsn = %q, want %q", dsn, want)
	}

	p2 := PostgresConfig{URL: "postgres://u:p@h:5/db"}
	if dsn, _ := p2.DSN(); dsn != "postgres://u:p@h:5/db" {
		t.Fatalf("url passthrough = %q", dsn)
	}

	if (PostgresConfig{}).Enabled() {
		t.Fatal("empty postgres config should be disabled")
	}
}
