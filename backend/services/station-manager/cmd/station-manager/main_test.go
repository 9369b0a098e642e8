package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

func TestLoadConfigFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	body := "http:\n  port: \"4000\"\nlivestatus:\n  command: nc localhost 6557\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := loadConfig([]string{"--config", path, "-p", "5000", "--log-level", "debug"})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.HTTPAddress() != ":5000" || cfg.Log.Level != "debug" {
		t.Errorf("flags not applied: port %q level %q", cfg.HTTP.Port, cfg.Log.Level)
	}
	if cfg.Livestatus.Command != "nc localhost 6557" {
		t.Errorf("file values lost: %+v", cfg.Livestatus)
	}
}

func TestLoadConfigValidates(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	if _, err := loadConfig(nil); err == nil {
		t.Error("expected error without a livestatus transport")
	}
	if _, err := loadConfig([]string{"--test-backend"}); err != nil {
		t.Errorf("test backend needs no transport: %v", err)
	}
	if _, err := loadConfig([]string{"--test-backend", "extra"}); err == nil {
		t.Error("expected error for positional argument")
	}
	if _, err := loadConfig([]string{"--help"}); !errors.Is(err, pflag.ErrHelp) {
		t.Errorf("expected ErrHelp, got %v", err)
	}
}
