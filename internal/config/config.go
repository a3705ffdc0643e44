// Package config handles editor configuration loading and management.
package config

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
)

// Config holds all editor settings.
type Config struct {
	Data    DataConfig    `yaml:"data"`
	Editor  EditorConfig  `yaml:"editor"`
	Brush   BrushConfig   `yaml:"brush"`
	Logging LoggingConfig `yaml:"logging"`
}

// DataConfig holds game data locations.
type DataConfig struct {
	SearchPaths []string `yaml:"search_paths"` // Extracted client data, later paths win
	OutputDir   string   `yaml:"output_dir"`   // Where saved tiles go
	BackupDir   string   `yaml:"backup_dir"`   // Empty disables backups
	Continent   string   `yaml:"continent"`
}

// EditorConfig holds terrain editing settings.
type EditorConfig struct {
	NewBlend       bool          `yaml:"new_blend"`      // 8-bit alpha maps
	CompressAlpha  bool          `yaml:"compress_alpha"` // RLE-compress painted layers
	UnloadInterval time.Duration `yaml:"unload_interval"`
	CacheFiles     bool          `yaml:"cache_files"`
}

// BrushConfig holds the brush defaults used by scripts.
type BrushConfig struct {
	Method      string  `yaml:"method"`
	Algorithm   string  `yaml:"algorithm"`
	Falloff     string  `yaml:"falloff"`
	InnerRadius float32 `yaml:"inner_radius"`
	OuterRadius float32 `yaml:"outer_radius"`
	Amount      float32 `yaml:"amount"`
	TargetValue float32 `yaml:"target_value"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"`
	JSON    bool   `yaml:"json"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Data: DataConfig{
			SearchPaths: []string{"Data"},
			OutputDir:   "Output",
			BackupDir:   "",
			Continent:   "Azeroth",
		},
		Editor: EditorConfig{
			NewBlend:       true,
			CompressAlpha:  false,
			UnloadInterval: 200 * time.Millisecond,
			CacheFiles:     true,
		},
		Brush: BrushConfig{
			Method:      "elevate",
			Algorithm:   "linear",
			Falloff:     "linear",
			InnerRadius: 5,
			OuterRadius: 15,
			Amount:      10,
			TargetValue: 255,
		},
		Logging: LoggingConfig{
			Level:   "info",
			LogFile: "",
		},
	}
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var err error
	if len(c.Data.SearchPaths) == 0 {
		err = multierr.Append(err, fmt.Errorf("data.search_paths is empty"))
	}
	if c.Editor.UnloadInterval < 0 {
		err = multierr.Append(err, fmt.Errorf("editor.unload_interval %v is negative", c.Editor.UnloadInterval))
	}
	b := c.Brush
	if b.OuterRadius <= 0 {
		err = multierr.Append(err, fmt.Errorf("brush.outer_radius %v must be positive", b.OuterRadius))
	}
	if b.InnerRadius < 0 || b.InnerRadius > b.OuterRadius {
		err = multierr.Append(err, fmt.Errorf("brush.inner_radius %v must be within [0, outer_radius]", b.InnerRadius))
	}
	if b.TargetValue < 0 || b.TargetValue > 255 {
		err = multierr.Append(err, fmt.Errorf("brush.target_value %v must be within [0, 255]", b.TargetValue))
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		err = multierr.Append(err, fmt.Errorf("logging.level %q is unknown", c.Logging.Level))
	}
	return err
}
