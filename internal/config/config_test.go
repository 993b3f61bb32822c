package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func loadConfig(t *testing.T, path string) *Config {
	t.Helper()

	l, err := NewLoader(path)
	if err != nil {
		t.Fatalf("NewLoader() error: %v", err)
	}
	cfg, err := l.Config()
	if err != nil {
		t.Fatalf("Config() error: %v", err)
	}
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := loadConfig(t, "")

	if cfg.Server.Addr != ":5000" {
		t.Errorf("Server.Addr = %q, want :5000", cfg.Server.Addr)
	}
	if cfg.Download.Folder != "downloads" || cfg.Download.DefaultFolder != "default" {
		t.Errorf("Unexpected download folders: %+v", cfg.Download)
	}
	if cfg.Download.Engine != EngineYtdlp || cfg.Download.MaxParallel != 3 {
		t.Errorf("Unexpected engine settings: %+v", cfg.Download)
	}
	if cfg.Database.Path != "data/downloads.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Cache.TreeTTL != 30*time.Second {
		t.Errorf("Cache.TreeTTL = %v", cfg.Cache.TreeTTL)
	}
	if cfg.Telegram.Folder != "telegram" || cfg.TelegramEnabled() {
		t.Errorf("Unexpected telegram settings: %+v", cfg.Telegram)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DOWNLOAD_FOLDER", "/srv/videos")
	t.Setenv("DOWNLOAD_MAX_PARALLEL", "5")
	t.Setenv("DB_PATH", "/tmp/history.db")
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_ALLOWED_USERS", "11,22")

	cfg := loadConfig(t, "")

	if cfg.Download.Folder != "/srv/videos" {
		t.Errorf("Download.Folder = %q", cfg.Download.Folder)
	}
	if cfg.Download.MaxParallel != 5 {
		t.Errorf("Download.MaxParallel = %d", cfg.Download.MaxParallel)
	}
	if cfg.Database.Path != "/tmp/history.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if !cfg.TelegramEnabled() {
		t.Error("Expected telegram to be enabled by TELEGRAM_BOT_TOKEN")
	}
	if len(cfg.Telegram.AllowedUsers) != 2 || cfg.Telegram.AllowedUsers[1] != 22 {
		t.Errorf("Telegram.AllowedUsers = %v", cfg.Telegram.AllowedUsers)
	}
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  addr: ":8080"
download:
  engine: native
  max_parallel: 100
cache:
  tree_ttl: 2m
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg := loadConfig(t, path)

	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
	if cfg.Download.Engine != EngineNative {
		t.Errorf("Download.Engine = %q", cfg.Download.Engine)
	}
	if cfg.Download.MaxParallel != maxParallelLimit {
		t.Errorf("Expected max_parallel clamped to %d, got %d", maxParallelLimit, cfg.Download.MaxParallel)
	}
	if cfg.Cache.TreeTTL != 2*time.Minute {
		t.Errorf("Cache.TreeTTL = %v", cfg.Cache.TreeTTL)
	}
}

func TestMissingConfigFile(t *testing.T) {
	if _, err := NewLoader(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for a missing config file")
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		engine  string
		want    string
		wantErr bool
	}{
		{"ytdlp", "ytdlp", EngineYtdlp, false},
		{"dashed alias", "yt-dlp", EngineYtdlp, false},
		{"case insensitive", " Native ", EngineNative, false},
		{"unknown", "ffmpeg", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Download: DownloadConfig{Engine: tt.engine, MaxParallel: -2}}
			err := cfg.normalize()
			if tt.wantErr {
				if err == nil {
					t.Error("Expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("normalize() error: %v", err)
			}
			if cfg.Download.Engine != tt.want {
				t.Errorf("Engine = %q, want %q", cfg.Download.Engine, tt.want)
			}
			if cfg.Download.MaxParallel != 0 {
				t.Errorf("Negative max_parallel should clamp to 0, got %d", cfg.Download.MaxParallel)
			}
		})
	}
}

func TestApplyArgs(t *testing.T) {
	l, err := NewLoader("")
	if err != nil {
		t.Fatalf("NewLoader() error: %v", err)
	}
	l.ApplyArgs(&Args{Addr: "127.0.0.1:9000", LogLevel: "debug"})

	cfg, err := l.Config()
	if err != nil {
		t.Fatalf("Config() error: %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:9000" || cfg.Log.Level != "debug" {
		t.Errorf("Flags not applied: addr=%q level=%q", cfg.Server.Addr, cfg.Log.Level)
	}
}
