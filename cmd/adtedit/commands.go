package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/Faultbox/adtedit/internal/assets"
	"github.com/Faultbox/adtedit/internal/config"
	"github.com/Faultbox/adtedit/internal/models"
	"github.com/Faultbox/adtedit/internal/script"
	"github.com/Faultbox/adtedit/internal/session"
	"github.com/Faultbox/adtedit/internal/terrain"
	"github.com/Faultbox/adtedit/pkg/formats"
)

var tileFlag = &cli.StringFlag{Name: "tile", Aliases: []string{"t"}, Usage: "tile index as X,Y", Required: true}

// parseTile parses "X,Y".
func parseTile(s string) (int, int, error) {
	var x, y int
	if _, err := fmt.Sscanf(strings.ReplaceAll(s, " ", ""), "%d,%d", &x, &y); err != nil {
		return 0, 0, errors.Errorf("invalid tile %q, want X,Y", s)
	}
	if x < 0 || y < 0 || x >= terrain.TilesPerMap || y >= terrain.TilesPerMap {
		return 0, 0, errors.Errorf("tile %d,%d is outside the map", x, y)
	}
	return x, y, nil
}

// tileFromFileName reads the tile index from names like Azeroth_32_48.adt.
func tileFromFileName(path string) (string, int, int) {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	parts := strings.Split(base, "_")
	if len(parts) < 3 {
		return base, 0, 0
	}
	var x, y int
	if _, err := fmt.Sscanf(parts[len(parts)-2]+" "+parts[len(parts)-1], "%d %d", &x, &y); err != nil {
		return base, 0, 0
	}
	return strings.Join(parts[:len(parts)-2], "_"), x, y
}

func alphaMode(cfg *config.Config) formats.AlphaMode {
	if cfg.Editor.NewBlend {
		return formats.AlphaModeBig
	}
	return formats.AlphaModeLegacy
}

func newProvider(cfg *config.Config) (*assets.Provider, error) {
	var paths []string
	for _, p := range cfg.Data.SearchPaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			paths = append(paths, p)
		}
	}
	return assets.NewProvider(assets.Options{
		SearchPaths: paths,
		OutputDir:   cfg.Data.OutputDir,
		BackupDir:   cfg.Data.BackupDir,
		Cache:       cfg.Editor.CacheFiles,
	})
}

// textureFiles resolves texture names to the files found in the data directories.
// A texture that no data directory holds resolves to nil.
type textureFiles struct {
	files *assets.Provider
}

func (t textureFiles) GetTexture(name string) terrain.Texture {
	path, err := t.files.Resolve(name)
	if err != nil {
		return nil
	}
	return path
}

func infoCommand() *cli.Command {
	return &cli.Command{
		Name:      "info",
		Usage:     "summarize a tile file",
		ArgsUsage: "<file.adt>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "chunks", Usage: "list every chunk"},
			&cli.IntFlag{Name: "dump", Value: -1, Usage: "dump the header of chunk `N`"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New("info needs one tile file")
			}
			path := c.Args().First()
			data, err := os.ReadFile(path)
			if err != nil {
				return errors.Wrap(err, "reading tile")
			}
			cfg := configFrom(c)
			files, err := newProvider(cfg)
			if err != nil {
				return err
			}
			defer files.Close()

			continent, ix, iy := tileFromFileName(path)
			a, err := terrain.ParseArea(data, continent, ix, iy, terrain.AreaOptions{
				AlphaMode: alphaMode(cfg),
				Textures:  textureFiles{files},
			})
			if err != nil {
				return err
			}
			defer a.Close()

			w := c.App.Writer
			box := a.BoundingBox
			fmt.Fprintf(w, "Tile:        %s %d,%d (%d bytes)\n", continent, ix, iy, len(data))
			fmt.Fprintf(w, "Heights:     %.2f .. %.2f\n", box.Min[2], box.Max[2])
			fmt.Fprintf(w, "Textures:    %d\n", len(a.TextureNames()))
			textures := a.Textures()
			for i, name := range a.TextureNames() {
				if textures[i] == nil {
					fmt.Fprintf(w, "  %3d %s (missing)\n", i, name)
				} else {
					fmt.Fprintf(w, "  %3d %s\n", i, name)
				}
			}
			fmt.Fprintf(w, "Doodads:     %d\n", len(a.Doodads()))
			fmt.Fprintf(w, "Map objects: %d\n", len(a.MapObjects()))
			for _, o := range a.MapObjects() {
				fmt.Fprintf(w, "  %8d %s at %.1f,%.1f,%.1f\n", o.UUID, o.Name, o.Position[0], o.Position[1], o.Position[2])
			}

			holes := 0
			for i := range formats.ChunksPerTile {
				if ch := a.Chunk(i); ch != nil && ch.Header.Holes != 0 {
					holes++
				}
			}
			fmt.Fprintf(w, "Chunks with holes: %d\n", holes)

			if c.Bool("chunks") {
				for i := range formats.ChunksPerTile {
					ch := a.Chunk(i)
					if ch == nil {
						continue
					}
					fmt.Fprintf(w, "  chunk %3d  area %5d  doodads %2d  holes %#04x  impassable %v  layers %s\n",
						i, ch.Header.AreaID, len(ch.DoodadRefs), ch.Header.Holes, ch.HasImpassFlag(),
						strings.Join(ch.TextureNames(a), ", "))
				}
			}
			if n := c.Int("dump"); n >= 0 {
				ch := a.Chunk(n)
				if ch == nil {
					return errors.Errorf("chunk %d does not exist", n)
				}
				spew.Fdump(w, ch.Header, ch.Layers)
			}
			return nil
		},
	}
}

func newCommand() *cli.Command {
	return &cli.Command{
		Name:  "new",
		Usage: "create a flat tile in the output directory",
		Flags: []cli.Flag{
			tileFlag,
			&cli.Float64Flag{Name: "height", Usage: "ground height"},
			&cli.StringFlag{Name: "texture", Usage: "base texture of every chunk"},
			&cli.BoolFlag{Name: "force", Usage: "overwrite an existing tile"},
		},
		Action: func(c *cli.Context) error {
			cfg := configFrom(c)
			ix, iy, err := parseTile(c.String("tile"))
			if err != nil {
				return err
			}
			files, err := newProvider(cfg)
			if err != nil {
				return err
			}
			defer files.Close()

			path := terrain.FilePath(cfg.Data.Continent, ix, iy)
			if files.Exists(path) && !c.Bool("force") {
				return errors.Errorf("%s already exists, use --force to replace it", path)
			}
			a, err := terrain.NewArea(cfg.Data.Continent, ix, iy, float32(c.Float64("height")), c.String("texture"),
				terrain.AreaOptions{AlphaMode: alphaMode(cfg), CompressAlpha: cfg.Editor.CompressAlpha})
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.Save(files); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "created %s\n", path)
			return nil
		},
	}
}

func resaveCommand() *cli.Command {
	return &cli.Command{
		Name:  "resave",
		Usage: "load tiles and write them back to the output directory",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "tile", Aliases: []string{"t"}, Usage: "tile index as X,Y (repeatable)", Required: true},
		},
		Action: func(c *cli.Context) error {
			cfg := configFrom(c)
			files, err := newProvider(cfg)
			if err != nil {
				return err
			}
			defer files.Close()

			s := session.New(session.Options{
				Continent:     cfg.Data.Continent,
				Files:         files,
				Textures:      textureFiles{files},
				AlphaMode:     alphaMode(cfg),
				CompressAlpha: cfg.Editor.CompressAlpha,
			})
			defer s.Close()

			for _, t := range c.StringSlice("tile") {
				ix, iy, err := parseTile(t)
				if err != nil {
					return err
				}
				a, err := s.LoadArea(ix, iy)
				if err != nil {
					return err
				}
				if err := a.SaveForce(files); err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "resaved %s\n", terrain.FilePath(cfg.Data.Continent, ix, iy))
			}
			return nil
		},
	}
}

func scriptCommand() *cli.Command {
	return &cli.Command{
		Name:      "script",
		Usage:     "run a brush script",
		ArgsUsage: "<script.yaml>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "save", Usage: "save changed tiles when the script ends"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return errors.New("script needs one script file")
			}
			sc, err := script.Load(c.Args().First())
			if err != nil {
				return err
			}

			cfg := configFrom(c)
			files, err := newProvider(cfg)
			if err != nil {
				return err
			}
			defer files.Close()

			reg := models.NewRegistry(models.PlaceholderLoader{Files: files}, nil, cfg.Editor.UnloadInterval)
			reg.Start(c.Context)
			defer reg.Shutdown()

			s := session.New(session.Options{
				Continent:     cfg.Data.Continent,
				Files:         files,
				Models:        reg,
				Textures:      textureFiles{files},
				AlphaMode:     alphaMode(cfg),
				CompressAlpha: cfg.Editor.CompressAlpha,
			})
			res, runErr := script.Run(s, sc, cfg.Brush)
			fmt.Fprintf(c.App.Writer, "%d steps, %d changes, %d saves\n", res.Steps, res.Changed, res.Saves)

			if c.Bool("save") {
				if err := s.SaveAll(); err != nil {
					runErr = errors.Wrap(err, "saving")
				}
			}
			if err := s.Close(); err != nil {
				fmt.Fprintf(c.App.ErrWriter, "warning: %v\n", err)
			}
			return runErr
		},
	}
}

func restoreCommand() *cli.Command {
	return &cli.Command{
		Name:  "restore",
		Usage: "put a backed up tile back into the output directory",
		Flags: []cli.Flag{
			tileFlag,
			&cli.IntFlag{Name: "back", Value: 1, Usage: "restore the `N`th newest backup"},
			&cli.BoolFlag{Name: "list", Usage: "list backups only"},
		},
		Action: func(c *cli.Context) error {
			cfg := configFrom(c)
			ix, iy, err := parseTile(c.String("tile"))
			if err != nil {
				return err
			}
			files, err := newProvider(cfg)
			if err != nil {
				return err
			}
			defer files.Close()

			path := terrain.FilePath(cfg.Data.Continent, ix, iy)
			backups, err := files.Backups(path)
			if err != nil {
				return err
			}
			if c.Bool("list") {
				for _, b := range backups {
					fmt.Fprintln(c.App.Writer, b)
				}
				return nil
			}
			n := c.Int("back")
			if n < 1 || n > len(backups) {
				return errors.Errorf("%s has %d backups", path, len(backups))
			}
			data, err := assets.ReadBackup(backups[len(backups)-n])
			if err != nil {
				return err
			}
			if _, err := terrain.ParseArea(data, cfg.Data.Continent, ix, iy, terrain.AreaOptions{AlphaMode: alphaMode(cfg)}); err != nil {
				return errors.Wrap(err, "backup is not a valid tile")
			}

			w, err := files.CreateOutputStream(path)
			if err != nil {
				return err
			}
			if _, err := w.Write(data); err != nil {
				w.Close()
				return errors.Wrapf(err, "writing %s", path)
			}
			if err := w.Close(); err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "restored %s from %s\n", path, filepath.Base(backups[len(backups)-n]))
			return nil
		},
	}
}
