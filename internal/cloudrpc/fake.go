package cloudrpc

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"path"
	"sort"
	"sync"
	"time"
)

// Fake is a deterministic in-process stand-in for Client, satisfying the
// same path-addressed surface used by transfer.CloudTransport and the
// Reconciler's remote scan. It exists so scenario tests can drive a
// complete two-way sync without a network, grounded on the teacher's
// pattern of one concrete adapter per backend rather than reaching for
// an interface-mocking library.
type Fake struct {
	mu       sync.Mutex
	nextID   uint64
	entries  map[string]*fakeEntry // keyed by clean path
}

type fakeEntry struct {
	handle uint64
	isDir  bool
	data   []byte
	md5    string
	mtime  time.Time
}

// NewFake constructs an empty fake cloud rooted at "/".
func NewFake() *Fake {
	f := &Fake{entries: make(map[string]*fakeEntry)}
	f.entries["/"] = &fakeEntry{handle: 0, isDir: true, mtime: time.Now()}
	return f
}

func (f *Fake) nextHandle() uint64 {
	f.nextID++
	return f.nextID
}

// ListDir lists direct children of remotePath.
func (f *Fake) ListDir(ctx context.Context, remotePath string) ([]RemoteEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	dir := path.Clean(remotePath)
	var out []RemoteEntry
	for p, e := range f.entries {
		if p == "/" {
			continue
		}
		if path.Dir(p) != dir {
			continue
		}
		out = append(out, RemoteEntry{
			Handle: e.handle,
			Name:   path.Base(p),
			Size:   int64(len(e.data)),
			MTime:  e.mtime,
			IsDir:  e.isDir,
			MD5:    e.md5,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Download returns the stored bytes for remotePath.
func (f *Fake) Download(ctx context.Context, remotePath string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	e, ok := f.entries[path.Clean(remotePath)]
	if !ok || e.isDir {
		return nil, fmt.Errorf("cloudrpc/fake: not found: %s", remotePath)
	}
	return io.NopCloser(bytes.NewReader(e.data)), nil
}

// Upload stores content at remotePath, creating parent directories as
// needed, and assigns a fresh handle.
func (f *Fake) Upload(ctx context.Context, remotePath string, content io.Reader) (uint64, string, int64, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return 0, "", 0, err
	}

	sum := md5.Sum(data)
	digest := hex.EncodeToString(sum[:])

	f.mu.Lock()
	defer f.mu.Unlock()

	f.ensureDirLocked(path.Dir(remotePath))

	clean := path.Clean(remotePath)
	e, existed := f.entries[clean]
	if !existed {
		e = &fakeEntry{handle: f.nextHandle()}
		f.entries[clean] = e
	}
	e.data = data
	e.md5 = digest
	e.mtime = time.Now()
	e.isDir = false

	return e.handle, digest, int64(len(data)), nil
}

func (f *Fake) ensureDirLocked(dir string) {
	dir = path.Clean(dir)
	if dir == "." || dir == "/" {
		f.entries["/"] = &fakeEntry{handle: 0, isDir: true}
		return
	}
	if _, ok := f.entries[dir]; ok {
		return
	}
	f.ensureDirLocked(path.Dir(dir))
	f.entries[dir] = &fakeEntry{handle: f.nextHandle(), isDir: true}
}

// Delete removes remotePath (file or empty directory).
func (f *Fake) Delete(ctx context.Context, remotePath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clean := path.Clean(remotePath)
	if _, ok := f.entries[clean]; !ok {
		return fmt.Errorf("cloudrpc/fake: not found: %s", remotePath)
	}
	delete(f.entries, clean)
	return nil
}

// Rename moves oldPath to newName within the same parent directory.
func (f *Fake) Rename(ctx context.Context, oldPath, newName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	clean := path.Clean(oldPath)
	e, ok := f.entries[clean]
	if !ok {
		return fmt.Errorf("cloudrpc/fake: not found: %s", oldPath)
	}
	newPath := path.Join(path.Dir(clean), newName)
	delete(f.entries, clean)
	f.entries[newPath] = e
	return nil
}
