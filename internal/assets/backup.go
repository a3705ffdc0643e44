package assets

import (
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Faultbox/adtedit/internal/logger"
)

const backupExt = ".zst"

// backupStamp orders backups of one file lexically.
const backupStamp = "20060102T150405.000000000"

var now = time.Now

// backup compresses the current content of target into the backup directory.
// A missing target is not an error.
func (p *Provider) backup(gamePath, target string) error {
	src, err := os.Open(target)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "opening %s for backup", gamePath)
	}
	defer src.Close()

	dir := filepath.Join(append([]string{p.backupDir}, splitGamePath(gamePath)...)...)
	dir = filepath.Dir(dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating backup directory for %s", gamePath)
	}
	name := filepath.Join(dir, filepath.Base(target)+"."+now().UTC().Format(backupStamp)+backupExt)

	dst, err := os.Create(name)
	if err != nil {
		return errors.Wrapf(err, "creating backup of %s", gamePath)
	}
	if err := compressTo(dst, src); err != nil {
		dst.Close()
		os.Remove(name)
		return errors.Wrapf(err, "compressing backup of %s", gamePath)
	}
	if err := dst.Close(); err != nil {
		return errors.Wrapf(err, "closing backup of %s", gamePath)
	}
	logger.Debug("backup written", zap.String("path", gamePath), zap.String("backup", name))
	return nil
}

func compressTo(w io.Writer, r io.Reader) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return err
	}
	if _, err := io.Copy(enc, r); err != nil {
		enc.Close()
		return err
	}
	return enc.Close()
}

// Backups lists the backups of a game path, oldest first.
func (p *Provider) Backups(gamePath string) ([]string, error) {
	if p.backupDir == "" {
		return nil, nil
	}
	parts := splitGamePath(gamePath)
	if len(parts) == 0 {
		return nil, errors.New("empty path")
	}
	dir := filepath.Join(append([]string{p.backupDir}, parts[:len(parts)-1]...)...)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "listing backups of %s", gamePath)
	}

	prefix := strings.ToLower(parts[len(parts)-1]) + "."
	var out []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(strings.ToLower(name), prefix) && strings.HasSuffix(name, backupExt) {
			out = append(out, filepath.Join(dir, name))
		}
	}
	sort.Strings(out)
	return out, nil
}

// ReadBackup decompresses one backup file.
func ReadBackup(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening backup")
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, errors.Wrap(err, "reading backup")
	}
	defer dec.Close()

	data, err := io.ReadAll(dec)
	if err != nil {
		return nil, errors.Wrapf(err, "decompressing %s", path)
	}
	return data, nil
}
