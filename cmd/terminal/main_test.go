package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap/zaptest"

	"retailpos/terminal/internal/config"
	"retailpos/terminal/internal/session"
)

func validConfig() config.Config {
	return config.Config{
		BackendURL:     "https://pos.example.com",
		SessionBackend: config.SessionBackendFile,
		TerminalID:     "terminal-1",
	}
}

func TestValidateConfigRejectsBadValues(t *testing.T) {
	tests := map[string]func(*config.Config){
		"backend scheme":   func(c *config.Config) { c.BackendURL = "ftp://pos.example.com" },
		"backend host":     func(c *config.Config) { c.BackendURL = "http://" },
		"session backend":  func(c *config.Config) { c.SessionBackend = "sqlite" },
		"redis no addr":    func(c *config.Config) { c.SessionBackend = config.SessionBackendRedis },
		"short key":        func(c *config.Config) { c.SessionKey = "short" },
	}

	for name, mutate := range tests {
		cfg := validConfig()
		mutate(&cfg)
		if err := validateConfig(cfg); err == nil {
			t.Fatalf("%s: expected config to be rejected", name)
		}
	}
}

func TestValidateConfigAcceptsGoodValues(t *testing.T) {
	cfg := validConfig()
	cfg.SessionKey = "correct-horse-battery"
	if err := validateConfig(cfg); err != nil {
		t.Fatalf("expected config to pass, got %v", err)
	}
}

func TestOpenSessionStoreRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := validConfig()
	cfg.SessionBackend = config.SessionBackendRedis
	cfg.RedisAddr = mr.Addr()

	store, err := openSessionStore(context.Background(), cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	if _, ok := store.(*session.RedisStore); !ok {
		t.Fatalf("expected redis store, got %T", store)
	}
}

func TestOpenSessionStoreFallsBackToFile(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := validConfig()
	cfg.SessionBackend = config.SessionBackendRedis
	cfg.RedisAddr = addr
	cfg.SessionPath = filepath.Join(t.TempDir(), "session.json")

	store, err := openSessionStore(context.Background(), cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()
	if _, ok := store.(*session.FileStore); !ok {
		t.Fatalf("expected file store fallback, got %T", store)
	}
}

func TestOpenSessionStoreMemory(t *testing.T) {
	cfg := validConfig()
	cfg.SessionBackend = config.SessionBackendMemory

	store, err := openSessionStore(context.Background(), cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if _, ok := store.(*session.MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
}
