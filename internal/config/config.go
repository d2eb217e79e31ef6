package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// #region config
// Config holds the coordinator's tunables. Zero values are filled in by
// applyDefaults, so a partial (or absent) file is fine.
type Config struct {
	// PollIntervalSeconds is the cadence of background evidence monitoring.
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`
	// ProvenancePath is the sqlite file for the gate decision log.
	ProvenancePath string `yaml:"provenance_path"`
	// ExtraFailureKeywords extends the approach-failed rule.
	ExtraFailureKeywords []string `yaml:"extra_failure_keywords"`
	// ContextShifts adds incompatible context-label pairs on top of the
	// built-in table. Keys are context families, values the families
	// considered incompatible with them.
	ContextShifts map[string][]string `yaml:"context_shifts"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	return Config{
		PollIntervalSeconds: 5,
		ProvenancePath:      "coordination.db",
	}
}

// PollInterval returns the poll cadence as a duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// #endregion config

// #region load
// Load reads a yaml config file. A missing file yields the defaults; a
// malformed file is an error.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.PollIntervalSeconds == 0 {
		c.PollIntervalSeconds = def.PollIntervalSeconds
	}
	if c.ProvenancePath == "" {
		c.ProvenancePath = def.ProvenancePath
	}
}

func (c *Config) validate() error {
	if c.PollIntervalSeconds < 0 {
		return fmt.Errorf("poll_interval_seconds must be positive, got %d", c.PollIntervalSeconds)
	}
	for family, others := range c.ContextShifts {
		if family == "" {
			return fmt.Errorf("context_shifts: empty context family")
		}
		for _, other := range others {
			if other == "" {
				return fmt.Errorf("context_shifts: empty entry under %q", family)
			}
		}
	}
	return nil
}

// #endregion load

// #region merge
// MergedContextShifts overlays the configured pairs on a base table.
func (c Config) MergedContextShifts(base map[string][]string) map[string][]string {
	merged := make(map[string][]string, len(base)+len(c.ContextShifts))
	for family, others := range base {
		merged[family] = append([]string(nil), others...)
	}
	for family, others := range c.ContextShifts {
		merged[family] = append(merged[family], others...)
	}
	return merged
}

// #endregion merge
