package config

// Overrides are command-line settings that take priority over the file.
type Overrides struct {
	ConfigPath  string
	Debug       bool
	SearchPaths []string
	OutputDir   string
	BackupDir   string
	Continent   string
	LegacyAlpha bool
}

// apply applies CLI overrides to the config.
func (o Overrides) apply(cfg *Config) {
	if o.Debug {
		cfg.Logging.Level = "debug"
	}
	if len(o.SearchPaths) > 0 {
		cfg.Data.SearchPaths = append([]string(nil), o.SearchPaths...)
	}
	if o.OutputDir != "" {
		cfg.Data.OutputDir = o.OutputDir
	}
	if o.BackupDir != "" {
		cfg.Data.BackupDir = o.BackupDir
	}
	if o.Continent != "" {
		cfg.Data.Continent = o.Continent
	}
	if o.LegacyAlpha {
		cfg.Editor.NewBlend = false
	}
}
