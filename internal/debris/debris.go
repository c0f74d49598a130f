// Package debris implements the sync debris layout of spec.md §4.6.3:
// a hidden per-sync folder holding soft-deleted and conflict-loser
// files, plus the transient download lock file.
package debris

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	// DirName is the hidden folder at the local sync root.
	DirName = ".debris"
	// lockRelPath is the transient lock created during any download to
	// prevent concurrent syncs from clobbering in-flight downloads.
	lockRelPath = "tmp/lock"
)

// Mover moves locally-deleted or conflict-loser files into the sync
// debris instead of unlinking them outright.
type Mover struct {
	syncRoot string
	now      func() time.Time
}

// New constructs a Mover rooted at syncRoot.
func New(syncRoot string) *Mover {
	return &Mover{syncRoot: syncRoot, now: time.Now}
}

// dayDir returns today's per-day subfolder, creating it if necessary.
func (m *Mover) dayDir() (string, error) {
	day := filepath.Join(m.syncRoot, DirName, m.now().Format("2006-01-02"))
	if err := os.MkdirAll(day, 0o755); err != nil {
		return "", fmt.Errorf("create debris day folder: %w", err)
	}
	return day, nil
}

// Move relocates the file or folder at localPath (absolute) into
// today's debris subfolder, preserving originalRelPath as the
// destination's relative layout under the day folder.
func (m *Mover) Move(localPath, originalRelPath string) error {
	day, err := m.dayDir()
	if err != nil {
		return err
	}
	dest := filepath.Join(day, filepath.FromSlash(originalRelPath))
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create debris destination dir: %w", err)
	}
	// If a prior debris entry already occupies dest (e.g. two deletes of
	// the same relative path on the same day), disambiguate by
	// appending a numeric suffix rather than clobbering history.
	dest = disambiguate(dest)
	if err := os.Rename(localPath, dest); err != nil {
		return fmt.Errorf("move to debris: %w", err)
	}
	return nil
}

func disambiguate(path string) string {
	if _, err := os.Stat(path); err != nil {
		return path
	}
	ext := filepath.Ext(path)
	base := path[:len(path)-len(ext)]
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s.%d%s", base, i, ext)
		if _, err := os.Stat(candidate); err != nil {
			return candidate
		}
	}
}

// LockPath returns the absolute path of the transient download lock
// file under this sync's debris folder.
func (m *Mover) LockPath() string {
	return filepath.Join(m.syncRoot, DirName, filepath.FromSlash(lockRelPath))
}

// AcquireDownloadLock creates the transient lock file exclusively,
// returning an error if another download already holds it.
func (m *Mover) AcquireDownloadLock() (*os.File, error) {
	path := m.LockPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("acquire download lock: %w", err)
	}
	return f, nil
}

// ReleaseDownloadLock closes and removes the lock file.
func (m *Mover) ReleaseDownloadLock(f *os.File) error {
	path := f.Name()
	if err := f.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}

// IsDebrisPath reports whether relPath falls under the .debris folder,
// so scanners can skip it (it is never a sync candidate itself).
func IsDebrisPath(relPath string) bool {
	rel := filepath.ToSlash(relPath)
	return rel == DirName || len(rel) > len(DirName) && rel[:len(DirName)+1] == DirName+"/"
}
