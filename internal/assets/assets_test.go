package assets

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, data string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))
}

func readAll(t *testing.T, p *Provider, path string) string {
	t.Helper()
	r, err := p.OpenFile(path)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(data)
}

func TestProvider_SearchOrder(t *testing.T) {
	base := t.TempDir()
	patch := t.TempDir()
	writeFile(t, filepath.Join(base, "World", "Maps", "Azeroth", "Azeroth_32_32.adt"), "base")
	writeFile(t, filepath.Join(base, "World", "Maps", "Azeroth", "Azeroth_32_33.adt"), "only base")
	writeFile(t, filepath.Join(patch, "world", "maps", "azeroth", "azeroth_32_32.adt"), "patch")

	p, err := NewProvider(Options{SearchPaths: []string{base, patch}})
	require.NoError(t, err)

	assert.Equal(t, "patch", readAll(t, p, `World\Maps\Azeroth\Azeroth_32_32.adt`))
	assert.Equal(t, "only base", readAll(t, p, `World/Maps/Azeroth/Azeroth_32_33.adt`))
	assert.True(t, p.Exists(`WORLD\MAPS\AZEROTH\AZEROTH_32_33.ADT`))
	assert.False(t, p.Exists(`World\Maps\Azeroth`), "directories are not files")

	_, err = p.OpenFile(`World\Maps\Kalimdor\Kalimdor_1_1.adt`)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestProvider_InvalidSearchPath(t *testing.T) {
	file := filepath.Join(t.TempDir(), "data.mpq")
	writeFile(t, file, "x")

	_, err := NewProvider(Options{SearchPaths: []string{file}})
	assert.Error(t, err)
	_, err = NewProvider(Options{SearchPaths: []string{filepath.Join(t.TempDir(), "missing")}})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestProvider_CreateOutputStream(t *testing.T) {
	data := t.TempDir()
	out := t.TempDir()
	writeFile(t, filepath.Join(data, "World", "Maps", "Azeroth", "Azeroth_1_1.adt"), "original")

	p, err := NewProvider(Options{SearchPaths: []string{data}, OutputDir: out, Cache: true})
	require.NoError(t, err)
	path := `World\Maps\Azeroth\Azeroth_1_1.adt`
	assert.Equal(t, "original", readAll(t, p, path))

	w, err := p.CreateOutputStream(path)
	require.NoError(t, err)
	_, err = io.WriteString(w, "edited")
	require.NoError(t, err)

	target := filepath.Join(out, "World", "Maps", "Azeroth", "Azeroth_1_1.adt")
	_, err = os.Stat(target)
	assert.True(t, os.IsNotExist(err), "target must not appear before Close")

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "edited", string(got))
	assert.Equal(t, "edited", readAll(t, p, path), "output directory wins and the cache is invalidated")

	entries, err := os.ReadDir(filepath.Dir(target))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file left behind")
}

func TestProvider_NoOutputDir(t *testing.T) {
	p, err := NewProvider(Options{})
	require.NoError(t, err)
	_, err = p.CreateOutputStream(`World\Maps\a.adt`)
	assert.Error(t, err)
}

func TestProvider_Backups(t *testing.T) {
	out := t.TempDir()
	backups := t.TempDir()
	p, err := NewProvider(Options{OutputDir: out, BackupDir: backups})
	require.NoError(t, err)

	stamp := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	now = func() time.Time {
		stamp = stamp.Add(time.Second)
		return stamp
	}
	defer func() { now = time.Now }()

	path := `World\Maps\Azeroth\Azeroth_2_2.adt`
	for _, content := range []string{"first", "second", "third"} {
		w, err := p.CreateOutputStream(path)
		require.NoError(t, err)
		_, err = io.WriteString(w, content)
		require.NoError(t, err)
		require.NoError(t, w.Close())
	}

	list, err := p.Backups(path)
	require.NoError(t, err)
	require.Len(t, list, 2, "the first save has nothing to back up")

	first, err := ReadBackup(list[0])
	require.NoError(t, err)
	assert.Equal(t, "first", string(first))
	second, err := ReadBackup(list[1])
	require.NoError(t, err)
	assert.Equal(t, "second", string(second))

	none, err := p.Backups(`World\Maps\Kalimdor\Kalimdor_1_1.adt`)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCache(t *testing.T) {
	c := NewCache()
	_, ok := c.Get("A")
	assert.False(t, ok)

	c.Set("A", []byte("1234"))
	c.Set("B", []byte("12"))
	c.Set("A", []byte("1"))
	data, ok := c.Get("A")
	assert.True(t, ok)
	assert.Equal(t, "1", string(data))
	assert.Equal(t, 3, c.Size())

	c.Delete("B")
	assert.Equal(t, 1, c.Size())

	hits, misses := c.Stats()
	assert.Equal(t, 1, hits)
	assert.Equal(t, 1, misses)

	c.Clear()
	hits, misses = c.Stats()
	assert.Zero(t, hits+misses+c.Size())
}
