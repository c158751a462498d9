package archive

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/lox/shrimpwatch/internal/census"
	"github.com/lox/shrimpwatch/internal/dataset"
)

// ErrSnapshotExists is returned instead of overwriting an archived snapshot.
var ErrSnapshotExists = errors.New("archive: snapshot already exists")

const (
	snapshotPrefix = "shrimp_imports_snapshot_"
	stampLayout    = "20060102_150405"
)

// SnapshotName is the archive file name for a fetch completed at t (UTC).
func SnapshotName(t time.Time) string {
	return snapshotPrefix + t.UTC().Format(stampLayout) + ".csv"
}

// Local is an append-only directory of raw fetch snapshots.
type Local struct {
	dir string
}

func NewLocal(dir string) *Local {
	return &Local{dir: dir}
}

// Write stores exactly what a fetch returned, named by its completion time. Existing files are
// never replaced.
func (l *Local) Write(fetchedAt time.Time, t census.Table) (string, error) {
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}

	path := filepath.Join(l.dir, SnapshotName(fetchedAt))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o444)
	if errors.Is(err, fs.ErrExist) {
		return "", fmt.Errorf("%w: %s", ErrSnapshotExists, path)
	}
	if err != nil {
		return "", fmt.Errorf("create snapshot: %w", err)
	}

	if err := dataset.WriteTable(f, t.Header, t.Rows); err != nil {
		f.Close()
		return "", fmt.Errorf("write snapshot %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close snapshot %s: %w", path, err)
	}
	return path, nil
}

// List returns snapshot paths oldest first.
func (l *Local) List() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, snapshotPrefix) || filepath.Ext(name) != ".csv" {
			continue
		}
		paths = append(paths, filepath.Join(l.dir, name))
	}
	sort.Strings(paths)
	return paths, nil
}
