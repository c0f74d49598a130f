// Package local implements the filesystem-facing half of the Transfer
// Orchestrator: opening, writing, and fingerprinting files under one
// sync root. It is adapted from the teacher's fs/local adapter, with
// whole-file MD5 replaced by the sparse-sample CRC fingerprint
// (internal/model.Sample) and every path component passed through
// internal/canon so a cloud name's %XX escapes survive the round trip
// to a real file on disk.
package local

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/shuryanc/cloudsync/internal/canon"
	"github.com/shuryanc/cloudsync/internal/model"
)

// Adapter is the local filesystem half of one sync root.
type Adapter struct {
	rootDir string
}

// New constructs an Adapter rooted at rootDir, resolved to an absolute
// path so callers can move their working directory without breaking it.
func New(rootDir string) *Adapter {
	abs, err := filepath.Abs(rootDir)
	if err != nil {
		abs = rootDir
	}
	return &Adapter{rootDir: abs}
}

// Root returns the adapter's absolute root directory.
func (a *Adapter) Root() string {
	return a.rootDir
}

// SysPath returns the absolute filesystem path for a cloud-canonical
// relative path, for callers (debris, locks) that need to pass a real
// path to an os.* call rather than go through Open/Write/Delete.
func (a *Adapter) SysPath(relPath string) string {
	return a.toSysPath(relPath)
}

// toSysPath converts a cloud-canonical slash-separated relative path
// into an absolute filesystem path, encoding each component with
// canon.Encode so the cloud name's reserved characters become %XX escapes.
func (a *Adapter) toSysPath(cloudRelPath string) string {
	parts := strings.Split(cloudRelPath, "/")
	for i, p := range parts {
		parts[i] = canon.Encode(p)
	}
	return filepath.Join(a.rootDir, filepath.FromSlash(strings.Join(parts, "/")))
}

// toCloudRelPath reverses toSysPath: given an absolute filesystem path
// under the root, returns the cloud-canonical relative path.
func (a *Adapter) toCloudRelPath(fullPath string) (string, error) {
	rel, err := filepath.Rel(a.rootDir, fullPath)
	if err != nil {
		return "", err
	}
	parts := strings.Split(filepath.ToSlash(rel), "/")
	for i, p := range parts {
		parts[i] = canon.Decode(p)
	}
	return path.Join(parts...), nil
}

// Entry is one node observed during a full local rescan.
type Entry struct {
	RelPath string
	IsDir   bool
	Size    int64
	MTime   time.Time
}

// ListAll walks the root and returns every entry, used by the
// Reconciler's bootstrap scan and by the post-watcher-loss full rescan
// (spec.md §4.4).
func (a *Adapter) ListAll() ([]Entry, error) {
	var entries []Entry
	err := filepath.Walk(a.rootDir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if p == a.rootDir {
			return nil
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return nil
		}
		rel, err := a.toCloudRelPath(p)
		if err != nil {
			return err
		}
		entries = append(entries, Entry{
			RelPath: rel,
			IsDir:   info.IsDir(),
			Size:    info.Size(),
			MTime:   info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("local scan: %w", err)
	}
	return entries, nil
}

// Open opens relPath for reading, satisfying transfer.LocalReader.
func (a *Adapter) Open(relPath string) (io.ReadCloser, error) {
	return os.Open(a.toSysPath(relPath))
}

// StatFingerprint computes relPath's sparse-sample fingerprint without
// reading the whole file, satisfying transfer.LocalReader.
func (a *Adapter) StatFingerprint(relPath string) (model.Fingerprint, error) {
	sysPath := a.toSysPath(relPath)
	f, err := os.Open(sysPath)
	if err != nil {
		return model.Fingerprint{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return model.Fingerprint{}, err
	}
	return model.Sample(f, info.Size(), info.ModTime())
}

// Write creates (or overwrites) relPath with the contents of r, restores
// mtime, and returns the fingerprint of what landed on disk, satisfying
// transfer.LocalWriter.
func (a *Adapter) Write(relPath string, r io.Reader, mtime time.Time) (model.Fingerprint, error) {
	sysPath := a.toSysPath(relPath)

	if err := os.MkdirAll(filepath.Dir(sysPath), 0755); err != nil {
		return model.Fingerprint{}, fmt.Errorf("create parent dir: %w", err)
	}

	f, err := os.Create(sysPath)
	if err != nil {
		return model.Fingerprint{}, fmt.Errorf("create file: %w", err)
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return model.Fingerprint{}, fmt.Errorf("write file: %w", err)
	}
	if err := f.Close(); err != nil {
		return model.Fingerprint{}, err
	}

	if !mtime.IsZero() {
		if err := os.Chtimes(sysPath, time.Now(), mtime); err != nil {
			return model.Fingerprint{}, fmt.Errorf("restore mtime: %w", err)
		}
	}

	return a.StatFingerprint(relPath)
}

// Delete removes relPath (file or, recursively, directory).
func (a *Adapter) Delete(relPath string) error {
	return os.RemoveAll(a.toSysPath(relPath))
}

// Rename moves oldRelPath to newRelPath, creating the destination's
// parent directory if needed.
func (a *Adapter) Rename(oldRelPath, newRelPath string) error {
	oldSys := a.toSysPath(oldRelPath)
	newSys := a.toSysPath(newRelPath)
	if err := os.MkdirAll(filepath.Dir(newSys), 0755); err != nil {
		return err
	}
	return os.Rename(oldSys, newSys)
}

// Mkdir creates relPath as a directory, including any missing parents.
func (a *Adapter) Mkdir(relPath string) error {
	return os.MkdirAll(a.toSysPath(relPath), 0755)
}
