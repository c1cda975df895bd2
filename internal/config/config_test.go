package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BufferCache.Capacity != 128 {
		t.Errorf("expected default buffer_cache.capacity 128, got %d", cfg.BufferCache.Capacity)
	}
	if cfg.WAL.LogSize != 16 {
		t.Errorf("expected default wal.log_size 16, got %d", cfg.WAL.LogSize)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log_level \"info\", got %q", cfg.LogLevel)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pagectl.yaml")
	contents := "buffer_cache:\n  capacity: 256\nlog_level: debug\n"
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.BufferCache.Capacity != 256 {
		t.Errorf("expected buffer_cache.capacity 256 from file, got %d", cfg.BufferCache.Capacity)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected log_level debug from file, got %q", cfg.LogLevel)
	}
	// Unset settings should still fall back to their defaults.
	if cfg.WAL.BlockSize != 4096 {
		t.Errorf("expected default wal.block_size 4096, got %d", cfg.WAL.BlockSize)
	}
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("PAGECTL_LOG_LEVEL", "warn")
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("expected PAGECTL_LOG_LEVEL to override log_level, got %q", cfg.LogLevel)
	}
}

func TestValidateRejectsOutOfRangeValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pagectl.yaml")
	if err := os.WriteFile(path, []byte("buffer_cache:\n  capacity: 0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation to reject a zero buffer cache capacity")
	}
}

func TestLoadMissingFileErrors(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml")); err == nil {
		t.Fatal("expected an error loading a nonexistent config file")
	}
}
