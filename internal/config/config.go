// Package config loads the simulator configuration: run options, the player
// snapshot, economy settings, export layout, API, persistence and cache.
package config

import (
	"encoding/hex"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
	"gopkg.in/yaml.v3"

	"github.com/lawnchairsociety/combatsim/internal/cache"
	"github.com/lawnchairsociety/combatsim/internal/combat"
	"github.com/lawnchairsociety/combatsim/internal/database"
	"github.com/lawnchairsociety/combatsim/internal/export"
	"github.com/lawnchairsociety/combatsim/internal/logger"
	"github.com/lawnchairsociety/combatsim/internal/loot"
	"github.com/lawnchairsociety/combatsim/internal/simulation"
)

// Config is the full simulator configuration.
type Config struct {
	Simulation SimulationConfig `yaml:"simulation"`
	Player     combat.Player    `yaml:"player"`
	Economy    loot.Settings    `yaml:"economy"`
	Pets       PetsConfig       `yaml:"pets"`
	Export     export.Options   `yaml:"export"`
	Filters    FiltersConfig    `yaml:"filters"`
	API        APIConfig        `yaml:"api"`
	Database   DatabaseConfig   `yaml:"database"`
	Cache      cache.Config     `yaml:"cache"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// SimulationConfig holds worker and trial settings.
type SimulationConfig struct {
	// Workers is the number of executor slots. 0 means one per CPU.
	Workers      int   `yaml:"workers"`
	Trials       int   `yaml:"trials"`
	MaxActions   int   `yaml:"max_actions"`
	ForceFullSim bool  `yaml:"force_full_sim"`
	TestRuns     int   `yaml:"test_runs"`
	Seed         int64 `yaml:"seed"` // 0 seeds from the clock
}

// PetsConfig selects the skill whose pet chance is reported.
type PetsConfig struct {
	Skill string `yaml:"skill" json:"skill"`
}

// FiltersConfig lists entities excluded from simulation.
type FiltersConfig struct {
	Monsters    []int `yaml:"monsters" json:"monsters"`
	Dungeons    []int `yaml:"dungeons" json:"dungeons"`
	SlayerTiers []int `yaml:"slayer_tiers" json:"slayer_tiers"`
}

// APIConfig holds HTTP and WebSocket server settings.
type APIConfig struct {
	Listen string `yaml:"listen"`

	// TokenHash is a bcrypt hash of the bearer token required to start or
	// cancel runs or change settings. Empty disables authentication.
	TokenHash string `yaml:"token_hash"`

	WebSocket   WebSocketConfig   `yaml:"websocket"`
	Connections ConnectionsConfig `yaml:"connections"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
}

// RateLimitConfig holds lockout settings for failed API authentication.
type RateLimitConfig struct {
	// MaxAttempts is the maximum failed attempts before lockout.
	MaxAttempts int `yaml:"max_attempts"`

	// LockoutSeconds is the initial lockout duration in seconds.
	LockoutSeconds int `yaml:"lockout_seconds"`

	// MaxLockoutSeconds caps the exponential backoff.
	MaxLockoutSeconds int `yaml:"max_lockout_seconds"`
}

// ConnectionsConfig holds progress stream subscriber limits.
type ConnectionsConfig struct {
	// MaxPerIP is the maximum concurrent subscribers from a single IP address.
	// 0 means unlimited.
	MaxPerIP int `yaml:"max_per_ip"`

	// MaxTotal is the maximum total concurrent subscribers. 0 means unlimited.
	MaxTotal int `yaml:"max_total"`
}

// WebSocketConfig holds WebSocket-specific settings.
type WebSocketConfig struct {
	// AllowedOrigins is a list of origins allowed to connect via WebSocket.
	// Empty list enforces same-origin policy.
	// Use "*" to allow all origins.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// MaxMessageSize is the maximum inbound WebSocket message size in bytes.
	MaxMessageSize int64 `yaml:"max_message_size"`
}

// DatabaseConfig holds run history settings.
type DatabaseConfig struct {
	database.Config `yaml:",inline"`

	// Enabled records every completed run. The -history flag also enables it.
	Enabled bool `yaml:"enabled"`

	// KeepRuns prunes history to the newest runs. 0 keeps everything.
	KeepRuns int `yaml:"keep_runs"`
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// DefaultConfig returns a Config with defaults.
func DefaultConfig() *Config {
	economy := loot.DefaultSettings()
	return &Config{
		Simulation: SimulationConfig{
			Trials:     1000,
			MaxActions: 1000,
			TestRuns:   10,
		},
		Player: combat.Player{
			Levels:         map[string]int{"Hitpoints": 10},
			AttackType:     combat.AttackMelee,
			AttackInterval: 2400,
			MaxHit:         10,
			Accuracy:       100,
			Evasion:        100,
		},
		Economy: economy,
		Pets:    PetsConfig{Skill: economy.PetSkill},
		Export:  export.DefaultOptions(),
		API: APIConfig{
			Listen: ":8080",
			WebSocket: WebSocketConfig{
				AllowedOrigins: []string{}, // Same-origin only by default
				MaxMessageSize: 4096,
			},
			Connections: ConnectionsConfig{
				MaxPerIP: 5,
				MaxTotal: 100,
			},
			RateLimit: RateLimitConfig{
				MaxAttempts:       5,
				LockoutSeconds:    30,
				MaxLockoutSeconds: 300,
			},
		},
		Database: DatabaseConfig{
			Config:   database.DefaultConfig("data/combatsim.db"),
			KeepRuns: 100,
		},
		Cache:   cache.DefaultConfig(),
		Metrics: MetricsConfig{Enabled: true},
	}
}

// LoadConfig loads configuration from a YAML file over the defaults, then
// applies environment overrides. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return config, err
		}
	} else if err := yaml.Unmarshal(data, config); err != nil {
		return DefaultConfig(), err
	}

	config.applyEnv()
	config.normalize()
	return config, nil
}

// applyEnv overrides settings from the environment:
// COMBATSIM_WORKERS, COMBATSIM_DB_DRIVER and COMBATSIM_REDIS_ADDR.
func (c *Config) applyEnv() {
	if v := os.Getenv("COMBATSIM_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Simulation.Workers = n
		} else {
			logger.Warning("Ignoring invalid COMBATSIM_WORKERS", "value", v)
		}
	}
	if v := os.Getenv("COMBATSIM_DB_DRIVER"); v != "" {
		c.Database.Driver = strings.ToLower(v)
	}
	if v := os.Getenv("COMBATSIM_REDIS_ADDR"); v != "" {
		c.Cache.Addr = v
		c.Cache.Enabled = true
	}
}

// normalize fixes values the simulator cannot run with
func (c *Config) normalize() {
	if c.Simulation.Workers < 0 {
		logger.Warning("Config auto-correction applied",
			"field", "simulation.workers",
			"issue", "negative",
			"action", "one per CPU")
		c.Simulation.Workers = 0
	}
	if c.Simulation.Trials <= 0 {
		logger.Warning("Config auto-correction applied",
			"field", "simulation.trials",
			"issue", "not positive",
			"action", "set to 1000")
		c.Simulation.Trials = 1000
	}
	if c.Simulation.MaxActions <= 0 {
		logger.Warning("Config auto-correction applied",
			"field", "simulation.max_actions",
			"issue", "not positive",
			"action", "set to 1000")
		c.Simulation.MaxActions = 1000
	}
	if c.Export.TimeMultiplier == 0 {
		logger.Warning("Config auto-correction applied",
			"field", "export.time_multiplier",
			"issue", "zero",
			"action", "set to -1 (per kill)")
		c.Export.TimeMultiplier = -1
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = 24 * time.Hour
	}
}

// SimOptions returns the per-request simulation options.
func (c *Config) SimOptions() combat.Options {
	return combat.Options{
		Trials:       c.Simulation.Trials,
		MaxActions:   c.Simulation.MaxActions,
		ForceFullSim: c.Simulation.ForceFullSim,
	}
}

// SimFilters returns the exclusion sets for the scheduler.
func (c *Config) SimFilters() simulation.Filters {
	return simulation.NewFilters(c.Filters.Monsters, c.Filters.Dungeons, c.Filters.SlayerTiers)
}

// LootSettings returns the economy settings with the pet skill and export
// time period applied.
func (c *Config) LootSettings() loot.Settings {
	s := c.Economy
	if c.Pets.Skill != "" {
		s.PetSkill = c.Pets.Skill
	}
	s.TimeMultiplier = c.Export.TimeMultiplier
	return s
}

// runInputs are the settings that change simulation or valuation results
type runInputs struct {
	Options combat.Options `yaml:"options"`
	Player  combat.Player  `yaml:"player"`
	Economy loot.Settings  `yaml:"economy"`
	Filters FiltersConfig  `yaml:"filters"`
}

func (c *Config) runInputs() runInputs {
	return runInputs{
		Options: c.SimOptions(),
		Player:  c.Player,
		Economy: c.LootSettings(),
		Filters: c.Filters,
	}
}

// RunSettings returns a YAML snapshot of every setting that affects results.
func (c *Config) RunSettings() string {
	out, err := yaml.Marshal(c.runInputs())
	if err != nil {
		logger.Error("Failed to encode run settings", "error", err)
		return ""
	}
	return string(out)
}

// Fingerprint returns a BLAKE2b-256 hex digest of RunSettings. Two configs with
// the same fingerprint produce comparable results.
func (c *Config) Fingerprint() string {
	sum := blake2b.Sum256([]byte(c.RunSettings()))
	return hex.EncodeToString(sum[:])
}

// IsOriginAllowed checks if the given origin is allowed based on the config.
// Returns true if:
// - AllowedOrigins contains "*" (allow all)
// - AllowedOrigins contains the exact origin
// - AllowedOrigins is empty and origin matches the request host (same-origin)
func (c *WebSocketConfig) IsOriginAllowed(origin, requestHost string) bool {
	if len(c.AllowedOrigins) == 0 {
		return isSameOrigin(origin, requestHost)
	}

	for _, allowed := range c.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// isSameOrigin checks if the origin matches the request host.
func isSameOrigin(origin, requestHost string) bool {
	if origin == "" {
		return true // Non-browser clients send no Origin
	}

	originHost := origin
	if idx := strings.Index(origin, "://"); idx != -1 {
		originHost = origin[idx+3:]
	}
	originHost = strings.TrimSuffix(originHost, "/")

	return originHost == requestHost
}
