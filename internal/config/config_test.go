package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg == nil {
		t.Fatal("DefaultConfig returned nil")
	}

	if len(cfg.API.WebSocket.AllowedOrigins) != 0 {
		t.Errorf("expected empty allowed origins by default, got %v", cfg.API.WebSocket.AllowedOrigins)
	}
	if cfg.Simulation.Trials != 1000 || cfg.Simulation.MaxActions != 1000 {
		t.Errorf("simulation defaults = %+v", cfg.Simulation)
	}
	if cfg.Database.Driver != "sqlite" {
		t.Errorf("expected sqlite history by default, got %q", cfg.Database.Driver)
	}
	if cfg.Cache.Enabled {
		t.Error("expected cache disabled by default")
	}
	if cfg.API.TokenHash != "" {
		t.Error("expected no API token by default")
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	cfg, err := LoadConfig("/nonexistent/path/config.yaml")
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}

	if cfg.API.Listen != ":8080" {
		t.Errorf("expected default listen address, got %q", cfg.API.Listen)
	}
}

func TestLoadConfig_ValidFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	content := `
simulation:
  workers: 3
  trials: 250
player:
  attack_type: ranged
  max_hit: 42
economy:
  sell_bones: true
pets:
  skill: Slayer
export:
  time_multiplier: 60
  time_unit: /min
api:
  listen: 127.0.0.1:9000
  websocket:
    allowed_origins:
      - "https://example.com"
    max_message_size: 8192
database:
  driver: postgres
  keep_runs: 5
  postgres:
    host: db.internal
cache:
  enabled: true
  ttl: 1h
filters:
  monsters: [3, 4]
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Simulation.Workers != 3 || cfg.Simulation.Trials != 250 {
		t.Errorf("simulation = %+v", cfg.Simulation)
	}
	// Unset fields keep their defaults
	if cfg.Simulation.MaxActions != 1000 {
		t.Errorf("expected default max actions, got %d", cfg.Simulation.MaxActions)
	}
	if cfg.Player.AttackType != "ranged" || cfg.Player.MaxHit != 42 {
		t.Errorf("player = %+v", cfg.Player)
	}
	if !cfg.Economy.SellBones || cfg.Economy.GPBonus != 1 {
		t.Errorf("economy = %+v", cfg.Economy)
	}
	if cfg.API.Listen != "127.0.0.1:9000" {
		t.Errorf("listen = %q", cfg.API.Listen)
	}
	if len(cfg.API.WebSocket.AllowedOrigins) != 1 || cfg.API.WebSocket.AllowedOrigins[0] != "https://example.com" {
		t.Errorf("allowed origins = %v", cfg.API.WebSocket.AllowedOrigins)
	}
	if cfg.API.WebSocket.MaxMessageSize != 8192 {
		t.Errorf("expected max message size 8192, got %d", cfg.API.WebSocket.MaxMessageSize)
	}
	if cfg.Database.Driver != "postgres" || cfg.Database.KeepRuns != 5 {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Database.Postgres.Host != "db.internal" || cfg.Database.Postgres.Port != 5432 {
		t.Errorf("postgres = %+v", cfg.Database.Postgres)
	}
	if !cfg.Cache.Enabled || cfg.Cache.TTL != time.Hour {
		t.Errorf("cache = %+v", cfg.Cache)
	}

	settings := cfg.LootSettings()
	if settings.PetSkill != "Slayer" || settings.TimeMultiplier != 60 {
		t.Errorf("loot settings = %+v", settings)
	}

	filters := cfg.SimFilters()
	if filters.Monster(3) || !filters.Monster(1) {
		t.Errorf("filters = %+v", filters)
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("simulation: [unterminated"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(configPath)
	if err == nil {
		t.Fatal("expected error for invalid YAML")
	}
	if cfg == nil || cfg.Simulation.Trials != 1000 {
		t.Error("expected defaults alongside the error")
	}
}

func TestLoadConfig_Normalize(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	content := `
simulation:
  workers: -2
  trials: 0
  max_actions: -5
export:
  time_multiplier: 0
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(configPath)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Simulation.Workers != 0 || cfg.Simulation.Trials != 1000 || cfg.Simulation.MaxActions != 1000 {
		t.Errorf("simulation = %+v", cfg.Simulation)
	}
	if cfg.Export.TimeMultiplier != -1 {
		t.Errorf("time multiplier = %v, want -1", cfg.Export.TimeMultiplier)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("COMBATSIM_WORKERS", "6")
	t.Setenv("COMBATSIM_DB_DRIVER", "POSTGRES")
	t.Setenv("COMBATSIM_REDIS_ADDR", "redis:6380")

	cfg, err := LoadConfig("/nonexistent/config.yaml")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Simulation.Workers != 6 {
		t.Errorf("workers = %d, want 6", cfg.Simulation.Workers)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("driver = %q, want postgres", cfg.Database.Driver)
	}
	if !cfg.Cache.Enabled || cfg.Cache.Addr != "redis:6380" {
		t.Errorf("cache = %+v", cfg.Cache)
	}
}

func TestLoadConfig_InvalidWorkersEnvIgnored(t *testing.T) {
	t.Setenv("COMBATSIM_WORKERS", "many")

	cfg, err := LoadConfig("/nonexistent/config.yaml")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Simulation.Workers != 0 {
		t.Errorf("workers = %d, want 0", cfg.Simulation.Workers)
	}
}

func TestFingerprint(t *testing.T) {
	a, b := DefaultConfig(), DefaultConfig()
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatal("identical configs should share a fingerprint")
	}
	if len(a.Fingerprint()) != 64 {
		t.Errorf("fingerprint length = %d, want 64", len(a.Fingerprint()))
	}

	// Server settings do not affect results
	b.API.Listen = ":9999"
	b.Cache.Enabled = true
	if a.Fingerprint() != b.Fingerprint() {
		t.Error("API and cache settings should not change the fingerprint")
	}

	b.Player.MaxHit++
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("player change should change the fingerprint")
	}

	c := DefaultConfig()
	c.Filters.Dungeons = []int{2}
	if a.Fingerprint() == c.Fingerprint() {
		t.Error("filter change should change the fingerprint")
	}
}

func TestRunSettings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Simulation.Trials = 77
	settings := cfg.RunSettings()

	for _, want := range []string{"trials: 77", "player:", "economy:", "pet_skill: Hitpoints"} {
		if !strings.Contains(settings, want) {
			t.Errorf("run settings missing %q:\n%s", want, settings)
		}
	}
}

func TestIsOriginAllowed_EmptyList_SameOrigin(t *testing.T) {
	cfg := WebSocketConfig{
		AllowedOrigins: []string{},
	}

	// Same origin (no Origin header)
	if !cfg.IsOriginAllowed("", "localhost:8080") {
		t.Error("expected empty origin to be allowed (same-origin)")
	}

	// Same origin (matching host)
	if !cfg.IsOriginAllowed("http://localhost:8080", "localhost:8080") {
		t.Error("expected matching origin to be allowed (same-origin)")
	}

	// Different origin should be rejected
	if cfg.IsOriginAllowed("http://evil.com", "localhost:8080") {
		t.Error("expected different origin to be rejected (same-origin policy)")
	}
}

func TestIsOriginAllowed_Wildcard(t *testing.T) {
	cfg := WebSocketConfig{
		AllowedOrigins: []string{"*"},
	}

	if !cfg.IsOriginAllowed("http://anything.com", "localhost:8080") {
		t.Error("expected wildcard to allow any origin")
	}

	if !cfg.IsOriginAllowed("", "localhost:8080") {
		t.Error("expected wildcard to allow empty origin")
	}
}

func TestIsOriginAllowed_ExactMatch(t *testing.T) {
	cfg := WebSocketConfig{
		AllowedOrigins: []string{
			"https://example.com",
			"http://localhost:3000",
		},
	}

	if !cfg.IsOriginAllowed("https://example.com", "localhost:8080") {
		t.Error("expected exact match to be allowed")
	}

	if !cfg.IsOriginAllowed("http://localhost:3000", "localhost:8080") {
		t.Error("expected exact match to be allowed")
	}

	if cfg.IsOriginAllowed("http://evil.com", "localhost:8080") {
		t.Error("expected non-matching origin to be rejected")
	}

	// Partial match should not work
	if cfg.IsOriginAllowed("https://example.com:8080", "localhost:8080") {
		t.Error("expected partial match to be rejected")
	}
}

func TestIsSameOrigin(t *testing.T) {
	tests := []struct {
		origin      string
		requestHost string
		expected    bool
	}{
		{"", "localhost:8080", true},                       // No origin header
		{"http://localhost:8080", "localhost:8080", true},  // HTTP match
		{"https://localhost:8080", "localhost:8080", true}, // HTTPS match
		{"http://localhost:8080/", "localhost:8080", true}, // Trailing slash
		{"http://example.com", "localhost:8080", false},    // Different host
		{"http://localhost:3000", "localhost:8080", false}, // Different port
		{"ws://localhost:8080", "localhost:8080", true},    // WebSocket scheme
	}

	for _, tt := range tests {
		result := isSameOrigin(tt.origin, tt.requestHost)
		if result != tt.expected {
			t.Errorf("isSameOrigin(%q, %q) = %v, want %v",
				tt.origin, tt.requestHost, result, tt.expected)
		}
	}
}
