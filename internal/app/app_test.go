package app

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"notiontools/dashboard-gateway/internal/config"
	"notiontools/dashboard-gateway/internal/observability"
)

func fileBackedConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	return config.Config{
		Env:      config.EnvDevelopment,
		LogLevel: "error",
		HTTP: config.HTTPConfig{
			Addr:            "127.0.0.1:0",
			ReadTimeout:     time.Second,
			WriteTimeout:    time.Second,
			ShutdownTimeout: time.Second,
		},
		Auth: config.AuthConfig{
			TokenSecret:      config.DevTokenSecret,
			SessionTTL:       time.Hour,
			PruneInterval:    10 * time.Millisecond,
			SessionStateFile: filepath.Join(dir, "sessions.json"),
			UserStateFile:    filepath.Join(dir, "users.json"),
		},
		AuditLogFile:    filepath.Join(dir, "audit.log"),
		SigninStateFile: filepath.Join(dir, "signin.json"),
		Notion:          config.UpstreamConfig{URL: "http://127.0.0.1:1", Timeout: time.Second},
	}
}

func TestNewWithFileStoresSeedsDefaultUser(t *testing.T) {
	a, err := New(fileBackedConfig(t), observability.NewLoggerTo(io.Discard, "error"), "test")
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer a.close()

	session, user, err := a.auth.Login("test@example.com", "password123")
	if err != nil {
		t.Fatalf("expected seeded user to log in: %v", err)
	}
	if user.Name != "Test User" || session.Token == "" {
		t.Fatalf("unexpected login result %+v %+v", user, session)
	}
	if err := a.ready(context.Background()); err != nil {
		t.Fatalf("expected file-backed app to be ready, got %v", err)
	}
}

func TestNewRejectsUnreachableRedis(t *testing.T) {
	cfg := fileBackedConfig(t)
	cfg.Redis.Addr = "127.0.0.1:1"

	if _, err := New(cfg, observability.NewLoggerTo(io.Discard, "error"), "test"); err == nil {
		t.Fatalf("expected redis ping failure")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	a, err := New(fileBackedConfig(t), observability.NewLoggerTo(io.Discard, "error"), "test")
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run() did not stop after cancel")
	}
}
