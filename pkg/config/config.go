// Package config holds the tunable backend parameters: direct-page layout of
// the scratch pool and temporaries, match-table thresholds and parallelism.
// Values are read from YAML over the defaults.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the backend configuration.
type Config struct {
	// ScratchBase is the direct-page address of the scratch pool.
	ScratchBase int `yaml:"scratch_base"`
	// ScratchSize is the pool size in bytes.
	ScratchSize int `yaml:"scratch_size"`
	// TempBase is the direct-page address of the 8 reserved temporary bytes
	// used by instruction selection (operand, pointer, and save areas).
	TempBase int `yaml:"temp_base"`

	// DenseRatio is the minimum values/span ratio for table strategies.
	DenseRatio float64 `yaml:"dense_ratio"`
	// MinTableValues is the minimum number of discrete values for a table.
	MinTableValues int `yaml:"min_table_values"`
	// MaxTableSpan bounds the size of jump and lookup tables.
	MaxTableSpan int `yaml:"max_table_span"`

	// MaxTypeTags is the tag-space limit for dispatch-capable types.
	MaxTypeTags int `yaml:"max_type_tags"`

	// Jobs bounds concurrent function lowering; 0 means serial.
	Jobs int `yaml:"jobs"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		ScratchBase:    0x10,
		ScratchSize:    16,
		TempBase:       0x08,
		DenseRatio:     0.5,
		MinTableValues: 3,
		MaxTableSpan:   256,
		MaxTypeTags:    255,
		Jobs:           0,
	}
}

// Load reads a YAML configuration file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration over the defaults and validates it.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for impossible values.
func (c *Config) Validate() error {
	if c.ScratchSize < 0 || c.ScratchBase < 0 || c.ScratchBase+c.ScratchSize > 0x100 {
		return fmt.Errorf("config: scratch pool [%#x, %#x) must lie in the direct page", c.ScratchBase, c.ScratchBase+c.ScratchSize)
	}
	if c.TempBase < 0 || c.TempBase+8 > 0x100 {
		return fmt.Errorf("config: temp area at %#x must lie in the direct page", c.TempBase)
	}
	if c.TempBase < c.ScratchBase+c.ScratchSize && c.ScratchBase < c.TempBase+8 {
		return fmt.Errorf("config: temp area overlaps the scratch pool")
	}
	if c.DenseRatio <= 0 || c.DenseRatio > 1 {
		return fmt.Errorf("config: dense_ratio must be in (0, 1], got %v", c.DenseRatio)
	}
	if c.MinTableValues < 1 {
		return fmt.Errorf("config: min_table_values must be positive")
	}
	if c.MaxTableSpan < 1 || c.MaxTableSpan > 256 {
		return fmt.Errorf("config: max_table_span must be in [1, 256]")
	}
	if c.MaxTypeTags < 1 || c.MaxTypeTags > 255 {
		return fmt.Errorf("config: max_type_tags must be in [1, 255]")
	}
	if c.Jobs < 0 {
		return fmt.Errorf("config: jobs must not be negative")
	}
	return nil
}

// Temporaries in the reserved direct-page area.

// OperandTemp holds a register operand that must be read from memory.
func (c *Config) OperandTemp() int { return c.TempBase }

// PointerTemp holds a 3-byte pointer for indirect accesses.
func (c *Config) PointerTemp() int { return c.TempBase + 2 }

// SaveTemp preserves the accumulator across stack adjustments.
func (c *Config) SaveTemp() int { return c.TempBase + 5 }
