package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Faultbox/adtedit/internal/terrain"
	"github.com/Faultbox/adtedit/pkg/formats"
)

type env struct {
	dir, data, out, backup string
	config                 string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{dir: t.TempDir()}
	e.data = filepath.Join(e.dir, "data")
	e.out = filepath.Join(e.dir, "out")
	e.backup = filepath.Join(e.dir, "backup")
	for _, d := range []string{e.data, e.out, e.backup} {
		require.NoError(t, os.MkdirAll(d, 0o755))
	}
	e.config = filepath.Join(e.dir, "adtedit.yaml")
	cfg := fmt.Sprintf(`
data:
  search_paths: [%q]
  output_dir: %q
  backup_dir: %q
  continent: Azeroth
editor:
  new_blend: true
logging:
  level: error
`, e.data, e.out, e.backup)
	require.NoError(t, os.WriteFile(e.config, []byte(cfg), 0o644))
	return e
}

func (e *env) writeTile(t *testing.T, ix, iy int, height float32) string {
	t.Helper()
	return writeTileIn(t, e.data, ix, iy, height)
}

func writeTileIn(t *testing.T, root string, ix, iy int, height float32) string {
	t.Helper()
	data, err := terrain.BlankTile(ix, iy, height, `tileset\grass.blp`)
	require.NoError(t, err)
	path := filepath.Join(root, "World", "Maps", "Azeroth", fmt.Sprintf("Azeroth_%d_%d.adt", ix, iy))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func (e *env) outTile(ix, iy int) string {
	return filepath.Join(e.out, "World", "Maps", "Azeroth", fmt.Sprintf("Azeroth_%d_%d.adt", ix, iy))
}

func (e *env) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := newApp(&stdout, &stderr).Run(append([]string{"adtedit", "--config", e.config}, args...))
	return stdout.String(), err
}

func TestParseTile(t *testing.T) {
	x, y, err := parseTile("32, 48")
	require.NoError(t, err)
	assert.Equal(t, 32, x)
	assert.Equal(t, 48, y)

	_, _, err = parseTile("64,0")
	assert.Error(t, err)
	_, _, err = parseTile("north")
	assert.Error(t, err)
}

func TestTileFromFileName(t *testing.T) {
	continent, x, y := tileFromFileName("/tmp/Kalimdor_Old_12_40.adt")
	assert.Equal(t, "Kalimdor_Old", continent)
	assert.Equal(t, 12, x)
	assert.Equal(t, 40, y)

	continent, x, y = tileFromFileName("tile.adt")
	assert.Equal(t, "tile", continent)
	assert.Zero(t, x)
	assert.Zero(t, y)
}

func TestNew(t *testing.T) {
	e := newEnv(t)
	out, err := e.run(t, "new", "--tile", "30,31", "--height", "25", "--texture", `tileset\dirt.blp`)
	require.NoError(t, err)
	assert.Contains(t, out, "Azeroth_30_31.adt")

	data, err := os.ReadFile(e.outTile(30, 31))
	require.NoError(t, err)
	a, err := terrain.ParseArea(data, "Azeroth", 30, 31, terrain.AreaOptions{AlphaMode: formats.AlphaModeBig})
	require.NoError(t, err)
	assert.Equal(t, []string{`tileset\dirt.blp`}, a.TextureNames())
	assert.InDelta(t, 25, a.BoundingBox.Max[2], 1e-3)

	_, err = e.run(t, "new", "--tile", "30,31")
	assert.ErrorContains(t, err, "already exists")
	_, err = e.run(t, "new", "--tile", "30,31", "--force")
	assert.NoError(t, err)
}

func TestInfo(t *testing.T) {
	e := newEnv(t)
	path := e.writeTile(t, 32, 32, 10)

	out, err := e.run(t, "info", path)
	require.NoError(t, err)
	assert.Contains(t, out, `tileset\grass.blp (missing)`)

	tex := filepath.Join(e.data, "TILESET", "Grass.BLP")
	require.NoError(t, os.MkdirAll(filepath.Dir(tex), 0o755))
	require.NoError(t, os.WriteFile(tex, []byte("BLP2"), 0o644))

	out, err = e.run(t, "info", "--chunks", "--dump", "17", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Azeroth 32,32")
	assert.Contains(t, out, "  0 tileset\\grass.blp\n")
	assert.NotContains(t, out, "(missing)")
	assert.Contains(t, out, `layers tileset\grass.blp`)
	assert.Contains(t, out, "Doodads:     0")
	assert.Contains(t, out, "chunk 255")
	assert.Contains(t, out, "IndexX")

	_, err = e.run(t, "info", "--dump", "300", path)
	assert.Error(t, err)
	_, err = e.run(t, "info")
	assert.Error(t, err)
}

func TestResave(t *testing.T) {
	e := newEnv(t)
	src := e.writeTile(t, 32, 32, 10)

	_, err := e.run(t, "resave", "--tile", "32,32")
	require.NoError(t, err)

	want, err := os.ReadFile(src)
	require.NoError(t, err)
	got, err := os.ReadFile(e.outTile(32, 32))
	require.NoError(t, err)
	assert.Equal(t, want, got)

	_, err = e.run(t, "resave", "--tile", "40,40")
	assert.Error(t, err)
}

func TestResave_SeveralTiles(t *testing.T) {
	e := newEnv(t)
	e.writeTile(t, 32, 32, 10)
	extra := filepath.Join(e.dir, "patch,1")
	writeTileIn(t, extra, 33, 32, 20)

	out, err := e.run(t, "--data", e.data, "--data", extra, "resave", "--tile", "32,32", "--tile", "33, 32")
	require.NoError(t, err)
	assert.Contains(t, out, "Azeroth_32_32.adt")
	assert.Contains(t, out, "Azeroth_33_32.adt")
	assert.FileExists(t, e.outTile(32, 32))
	assert.FileExists(t, e.outTile(33, 32))
}

func TestScriptAndRestore(t *testing.T) {
	e := newEnv(t)
	e.writeTile(t, 32, 32, 10)

	script := filepath.Join(e.dir, "raise.yaml")
	require.NoError(t, os.WriteFile(script, []byte(`
name: raise
tiles: [[32, 32]]
steps:
  - op: terrain
    method: flatten
    tile: [32, 32]
    at: [266, 266]
    height: 40
    outer_radius: 20
    inner_radius: 20
    amount: 100
    repeat: 4
  - op: save
`), 0o644))

	out, err := e.run(t, "script", script)
	require.NoError(t, err)
	assert.Contains(t, out, "2 steps")
	assert.Contains(t, out, "1 saves")

	saved, err := os.ReadFile(e.outTile(32, 32))
	require.NoError(t, err)
	a, err := terrain.ParseArea(saved, "Azeroth", 32, 32, terrain.AreaOptions{AlphaMode: formats.AlphaModeBig})
	require.NoError(t, err)
	assert.Greater(t, a.BoundingBox.Max[2], float32(10))

	// A second save backs up the first one.
	_, err = e.run(t, "script", script)
	require.NoError(t, err)

	list, err := e.run(t, "restore", "--tile", "32,32", "--list")
	require.NoError(t, err)
	assert.Contains(t, list, ".zst")

	out, err = e.run(t, "restore", "--tile", "32,32")
	require.NoError(t, err)
	assert.Contains(t, out, "restored")
	restored, err := os.ReadFile(e.outTile(32, 32))
	require.NoError(t, err)
	assert.Equal(t, saved, restored)

	_, err = e.run(t, "restore", "--tile", "32,32", "--back", "5")
	assert.Error(t, err)
}
