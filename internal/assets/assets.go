// Package assets resolves game files against a set of data directories and
// writes edited files to an output directory.
package assets

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Faultbox/adtedit/internal/logger"
	"github.com/Faultbox/adtedit/pkg/encoding"
)

// Options configures a Provider.
type Options struct {
	SearchPaths []string // Data directories, later entries take priority
	OutputDir   string   // Edited files go here; also searched first when set
	BackupDir   string   // Overwritten files are archived here when set
	Cache       bool     // Keep loaded files in memory
}

// Provider serves game files from data directories.
type Provider struct {
	searchPaths []string
	outputDir   string
	backupDir   string
	cache       *Cache
	mu          sync.RWMutex
}

// NewProvider creates a provider. Every search path must be a directory.
func NewProvider(opts Options) (*Provider, error) {
	p := &Provider{
		outputDir: opts.OutputDir,
		backupDir: opts.BackupDir,
	}
	if opts.Cache {
		p.cache = NewCache()
	}
	for _, dir := range opts.SearchPaths {
		if err := p.AddSearchPath(dir); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// AddSearchPath adds a data directory with the highest priority.
func (p *Provider) AddSearchPath(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return errors.Wrapf(err, "adding search path %s", dir)
	}
	if !info.IsDir() {
		return errors.Errorf("search path %s is not a directory", dir)
	}

	p.mu.Lock()
	p.searchPaths = append(p.searchPaths, dir)
	p.mu.Unlock()
	return nil
}

// roots returns the directories to search, highest priority first.
func (p *Provider) roots() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.searchPaths)+1)
	if p.outputDir != "" {
		out = append(out, p.outputDir)
	}
	for i := len(p.searchPaths) - 1; i >= 0; i-- {
		out = append(out, p.searchPaths[i])
	}
	return out
}

// Resolve returns the file system path of a game path such as
// `World\Maps\Azeroth\Azeroth_32_32.adt`. Path components match case-insensitively.
func (p *Provider) Resolve(path string) (string, error) {
	parts := splitGamePath(path)
	if len(parts) == 0 {
		return "", errors.Errorf("empty path")
	}
	for _, root := range p.roots() {
		if full, ok := lookupFold(root, parts); ok {
			return full, nil
		}
	}
	return "", errors.Wrap(os.ErrNotExist, path)
}

// Exists reports whether a game path resolves to a file.
func (p *Provider) Exists(path string) bool {
	_, err := p.Resolve(path)
	return err == nil
}

// Load reads a file, from the cache when enabled.
func (p *Provider) Load(path string) ([]byte, error) {
	key := cacheKey(path)
	if p.cache != nil {
		if data, ok := p.cache.Get(key); ok {
			return data, nil
		}
	}

	full, err := p.Resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	if p.cache != nil {
		p.cache.Set(key, data)
	}
	return data, nil
}

// OpenFile opens a game file for reading.
func (p *Provider) OpenFile(path string) (io.ReadCloser, error) {
	data, err := p.Load(path)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// OutputPath returns where a game path is written.
func (p *Provider) OutputPath(path string) (string, error) {
	if p.outputDir == "" {
		return "", errors.New("no output directory configured")
	}
	return filepath.Join(append([]string{p.outputDir}, splitGamePath(path)...)...), nil
}

// CreateOutputStream returns a writer for a game path below the output
// directory. Data goes to a temporary file that replaces the target on Close;
// the previous file is archived first when a backup directory is set.
func (p *Provider) CreateOutputStream(path string) (io.WriteCloser, error) {
	target, err := p.OutputPath(path)
	if err != nil {
		return nil, err
	}
	if existing, ok := lookupFold(p.outputDir, splitGamePath(path)); ok {
		target = existing
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating directory for %s", path)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), filepath.Base(target)+".*.tmp")
	if err != nil {
		return nil, errors.Wrapf(err, "creating %s", path)
	}
	return &outputFile{File: tmp, provider: p, gamePath: path, target: target}, nil
}

// Close drops cached data.
func (p *Provider) Close() {
	if p.cache != nil {
		p.cache.Clear()
	}
}

type outputFile struct {
	*os.File
	provider *Provider
	gamePath string
	target   string
	closed   bool
}

func (f *outputFile) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true
	tmp := f.Name()

	if err := f.Sync(); err != nil {
		f.File.Close()
		os.Remove(tmp)
		return errors.Wrapf(err, "syncing %s", f.gamePath)
	}
	if err := f.File.Close(); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "closing %s", f.gamePath)
	}

	p := f.provider
	if p.backupDir != "" {
		if err := p.backup(f.gamePath, f.target); err != nil {
			os.Remove(tmp)
			return err
		}
	}
	if err := os.Rename(tmp, f.target); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "replacing %s", f.gamePath)
	}
	if p.cache != nil {
		p.cache.Delete(cacheKey(f.gamePath))
	}
	logger.Debug("file written", zap.String("path", f.gamePath), zap.String("target", f.target))
	return nil
}

func splitGamePath(path string) []string {
	return strings.FieldsFunc(path, func(r rune) bool { return r == '\\' || r == '/' })
}

func cacheKey(path string) string {
	return strings.Join(splitGamePath(encoding.UpperName(path)), `\`)
}

// lookupFold walks parts below root, matching each component exactly first and
// case-insensitively otherwise.
func lookupFold(root string, parts []string) (string, bool) {
	cur := root
	for i, part := range parts {
		next := filepath.Join(cur, part)
		if _, err := os.Stat(next); err != nil {
			entries, err := os.ReadDir(cur)
			if err != nil {
				return "", false
			}
			found := false
			for _, e := range entries {
				if encoding.EqualFold(e.Name(), part) {
					next = filepath.Join(cur, e.Name())
					found = true
					break
				}
			}
			if !found {
				return "", false
			}
		}
		cur = next
		if i == len(parts)-1 {
			info, err := os.Stat(cur)
			if err != nil || info.IsDir() {
				return "", false
			}
		}
	}
	return cur, true
}
