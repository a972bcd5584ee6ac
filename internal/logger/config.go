package logger

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds logging configuration
type Config struct {
	Level          string `yaml:"level"`
	ConsoleEnabled bool   `yaml:"console_enabled"`
	ConsoleFormat  string `yaml:"console_format"`
	FileEnabled    bool   `yaml:"file_enabled"`
	FilePath       string `yaml:"file_path"`
	FileFormat     string `yaml:"file_format"`
	FileMaxSizeMB  int    `yaml:"file_max_size_mb"`
	FileMaxBackups int    `yaml:"file_max_backups"`
	FileMaxAgeDays int    `yaml:"file_max_age_days"`
}

// LoggingConfig wraps the Config for YAML parsing
type LoggingConfig struct {
	Logging Config `yaml:"logging"`
}

// DefaultConfig returns console-only INFO logging with file rotation settings
// ready for when the file output is switched on.
func DefaultConfig() Config {
	return Config{
		Level:          "INFO",
		ConsoleEnabled: true,
		ConsoleFormat:  "text",
		FileEnabled:    false,
		FilePath:       "logs/combatsim.log",
		FileFormat:     "text",
		FileMaxSizeMB:  10,
		FileMaxBackups: 5,
		FileMaxAgeDays: 30,
	}
}

// LoadConfig loads logging configuration from a YAML file
// and applies environment variable overrides.
// A missing or unparsable file silently falls back to defaults.
func LoadConfig(configPath string) (Config, error) {
	config := DefaultConfig()

	if configPath != "" {
		if data, err := os.ReadFile(configPath); err == nil {
			var loaded LoggingConfig
			if err := yaml.Unmarshal(data, &loaded); err == nil {
				config.merge(loaded.Logging)
			}
		}
	}

	config.applyEnv()
	return config, nil
}

// merge copies the values set in the file over the defaults
func (c *Config) merge(file Config) {
	if file.Level != "" {
		c.Level = file.Level
	}
	// Bools always come from the file once it parsed
	c.ConsoleEnabled = file.ConsoleEnabled
	c.FileEnabled = file.FileEnabled
	if file.ConsoleFormat != "" {
		c.ConsoleFormat = file.ConsoleFormat
	}
	if file.FilePath != "" {
		c.FilePath = file.FilePath
	}
	if file.FileFormat != "" {
		c.FileFormat = file.FileFormat
	}
	if file.FileMaxSizeMB > 0 {
		c.FileMaxSizeMB = file.FileMaxSizeMB
	}
	if file.FileMaxBackups > 0 {
		c.FileMaxBackups = file.FileMaxBackups
	}
	if file.FileMaxAgeDays > 0 {
		c.FileMaxAgeDays = file.FileMaxAgeDays
	}
}

// applyEnv applies LOG_* environment variable overrides
func (c *Config) applyEnv() {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Level = v
	}
	if v := os.Getenv("LOG_CONSOLE_FORMAT"); v != "" {
		c.ConsoleFormat = v
	}
	if v := os.Getenv("LOG_FILE_ENABLED"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			c.FileEnabled = enabled
		}
	}
	if v := os.Getenv("LOG_FILE_PATH"); v != "" {
		c.FilePath = v
	}
	if v := os.Getenv("LOG_FILE_FORMAT"); v != "" {
		c.FileFormat = v
	}
}
