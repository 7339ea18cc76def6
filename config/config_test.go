package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Server.HTTPAddress != ":8080" {
		t.Errorf("Expected default http address :8080, got %q", cfg.Server.HTTPAddress)
	}
	if cfg.Game.TieBreakerQuestions != 5 || cfg.Game.MaxTieBreakerRounds != 0 {
		t.Errorf("Unexpected tie-breaker defaults %+v", cfg.Game)
	}
	if cfg.Game.ForfeitAfter != 30*time.Second || cfg.Game.QueueMaxWait != 2*time.Minute {
		t.Errorf("Unexpected timing defaults %+v", cfg.Game)
	}
	if cfg.Postgres() {
		t.Error("Default driver should be memory")
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := t.TempDir()
	yaml := []byte("database:\n  driver: postgres\ngame:\n  advance_delay: 500ms\n  tie_breaker_questions: 3\n")
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), yaml, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("QUIZARENA_REDIS_URL", "redis://localhost:6379/1")

	cfg, err := load(viper.New(), dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Postgres() {
		t.Error("Expected postgres driver from file")
	}
	if cfg.Game.AdvanceDelay != 500*time.Millisecond || cfg.Game.TieBreakerQuestions != 3 {
		t.Errorf("File values not applied: %+v", cfg.Game)
	}
	if cfg.Game.InviteTTL != 60*time.Second {
		t.Errorf("Defaults should fill missing keys, got invite ttl %s", cfg.Game.InviteTTL)
	}
	if cfg.Redis.URL != "redis://localhost:6379/1" {
		t.Errorf("Env override not applied, got %q", cfg.Redis.URL)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := load(viper.New(), t.TempDir())
	if err != nil {
		t.Fatalf("A missing config file should not fail: %v", err)
	}
	if cfg.Database.Driver != "memory" {
		t.Errorf("Expected memory driver, got %q", cfg.Database.Driver)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"driver":      "database:\n  driver: mysql\n",
		"tie breaker": "game:\n  tie_breaker_questions: 0\n",
		"max rounds":  "game:\n  max_tie_breaker_rounds: -1\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := load(viper.New(), dir); err == nil {
				t.Error("Expected validation error")
			}
		})
	}
}
