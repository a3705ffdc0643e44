// adtedit inspects and edits map tiles from the command line.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/Faultbox/adtedit/internal/config"
	"github.com/Faultbox/adtedit/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newApp(os.Stdout, os.Stderr).RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// cfgKey stores the loaded config in the app metadata.
const cfgKey = "config"

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "adtedit",
		Usage:     "inspect and edit map tiles",
		Writer:    stdout,
		ErrWriter: stderr,
		// Tile flags are "X,Y" and data paths may contain commas.
		DisableSliceFlagSeparator: true,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "config file", EnvVars: []string{"ADTEDIT_CONFIG"}},
			&cli.BoolFlag{Name: "debug", Usage: "enable debug logging"},
			&cli.StringSliceFlag{Name: "data", Usage: "data directory (repeatable, later wins)"},
			&cli.StringFlag{Name: "output", Usage: "output directory"},
			&cli.StringFlag{Name: "backup", Usage: "backup directory"},
			&cli.StringFlag{Name: "continent", Usage: "map name"},
			&cli.BoolFlag{Name: "legacy-alpha", Usage: "read and write 4-bit alpha maps"},
		},
		Before: func(c *cli.Context) error {
			cfg, err := config.Load(config.Overrides{
				ConfigPath:  c.String("config"),
				Debug:       c.Bool("debug"),
				SearchPaths: c.StringSlice("data"),
				OutputDir:   c.String("output"),
				BackupDir:   c.String("backup"),
				Continent:   c.String("continent"),
				LegacyAlpha: c.Bool("legacy-alpha"),
			})
			if err != nil {
				return err
			}
			if err := logger.Setup(logger.Options{
				Level:   cfg.Logging.Level,
				JSON:    cfg.Logging.JSON,
				Console: c.App.ErrWriter,
				File:    logFile(cfg.Logging.LogFile),
			}); err != nil {
				return err
			}
			logger.Debug("config loaded", zap.Strings("data", cfg.Data.SearchPaths), zap.String("output", cfg.Data.OutputDir))
			c.App.Metadata = map[string]any{cfgKey: cfg}
			return nil
		},
		After: func(*cli.Context) error {
			logger.Sync()
			return nil
		},
		Commands: []*cli.Command{
			infoCommand(),
			newCommand(),
			resaveCommand(),
			scriptCommand(),
			restoreCommand(),
		},
	}
}

func logFile(path string) logger.FileConfig {
	if path == "" {
		return logger.FileConfig{}
	}
	return logger.DefaultFileConfig(path)
}

func configFrom(c *cli.Context) *config.Config {
	return c.App.Metadata[cfgKey].(*config.Config)
}
