// Package watcher implements the Filesystem Watcher of spec.md §4.4: a
// bounded, coalesced stream of (path, event) notifications per sync
// root, grounded on the fsnotify-based watcher used across the
// retrieval pack's filebrowser-style repos.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/shuryanc/cloudsync/internal/debris"
)

// EventKind is the strongest kind of change observed for a path this
// debounce window, ordered create > modify > attr-change per spec.md
// §4.4.
type EventKind int

const (
	KindModify EventKind = iota
	KindAttr
	KindCreate
	KindRemove
	KindRename
)

// strength orders kinds for coalescing: a later event replaces a path's
// pending kind when it is stronger. Remove and Rename always replace the
// pending kind, and a later Create, the strongest, replaces them in turn.
// Every kind is delivered when the debounce timer flushes.
func (k EventKind) strength() int {
	switch k {
	case KindCreate:
		return 2
	case KindAttr:
		return 0
	default:
		return 1
	}
}

// Event is one coalesced notification.
type Event struct {
	Path string
	Kind EventKind
}

// ErrLost is returned by Run when the watch is no longer usable: fsnotify
// reported an event overflow or closed its event or error channel. Other
// fsnotify errors are logged and tolerated. engine.Sync.Start logs the
// loss and keeps running on its poll ticker, whose passes rescan both
// sides in full; there is no separate lock-retry state.
var ErrLost = errors.New("watcher: lost")

const debounceInterval = 300 * time.Millisecond

// defaultQueueCapacity is the bounded-size queue default of spec.md
// §4.4.
const defaultQueueCapacity = 4096

// AnomalyReporter mirrors canon.Reporter so the watcher can flag ignored
// symlinks without importing internal/canon's anomaly enum directly into
// the hot path; the Sync runner wires this to the real reporter.
type AnomalyReporter func(path string)

// Watcher monitors one sync root and feeds a coalesced stream of Events
// into Out.
type Watcher struct {
	root    string
	Out     chan Event
	fsw     *fsnotify.Watcher
	OnSymlinkIgnored AnomalyReporter
}

// New creates a filesystem watcher rooted at root.
func New(root string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		root: root,
		Out:  make(chan Event, defaultQueueCapacity),
		fsw:  fsw,
	}, nil
}

// Run begins watching and debouncing events. It blocks until ctx is
// cancelled or the watch is lost, in which case it returns ErrLost.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.addRecursive(w.root); err != nil {
		return err
	}

	pending := make(map[string]EventKind)
	timer := time.NewTimer(debounceInterval)
	timer.Stop()

	flush := func() {
		if len(pending) == 0 {
			return
		}
		for p, k := range pending {
			select {
			case w.Out <- Event{Path: p, Kind: k}:
			default:
				slog.Warn("watcher queue full, dropping event; caller should rescan", "path", p)
			}
		}
		pending = make(map[string]EventKind)
	}

	for {
		select {
		case <-ctx.Done():
			w.fsw.Close()
			flush()
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return ErrLost
			}
			w.handleFSEvent(event, pending)
			timer.Reset(debounceInterval)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return ErrLost
			}
			slog.Warn("watcher error", "root", w.root, "err", err)
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				return ErrLost
			}
			// Other errors (a single unreadable entry, a transient
			// permission blip) are tolerated per spec.md §4.4; only
			// overflow forces a full rescan.

		case <-timer.C:
			flush()
		}
	}
}

func (w *Watcher) handleFSEvent(event fsnotify.Event, pending map[string]EventKind) {
	if w.isDebrisEvent(event.Name) {
		return
	}

	kind := classify(event)
	if existing, ok := pending[event.Name]; !ok || kind.strength() > existing.strength() || kind == KindRemove || kind == KindRename {
		pending[event.Name] = kind
	}

	if event.Has(fsnotify.Create) {
		info, err := os.Lstat(event.Name)
		if err == nil {
			if info.Mode()&os.ModeSymlink != 0 {
				if w.OnSymlinkIgnored != nil {
					w.OnSymlinkIgnored(event.Name)
				}
				return
			}
			if info.IsDir() {
				w.fsw.Add(event.Name) //nolint:errcheck
			}
		}
	}
}

// isDebrisEvent reports whether path falls under the sync debris root,
// the only dotfile-prefixed tree events should never surface for: a
// synced ordinary dotfile (.env, .gitignore) still needs to trigger a
// pass, so the filter can't be a blanket "starts with a dot" check.
func (w *Watcher) isDebrisEvent(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	return debris.IsDebrisPath(filepath.ToSlash(rel))
}

func classify(event fsnotify.Event) EventKind {
	switch {
	case event.Has(fsnotify.Remove):
		return KindRemove
	case event.Has(fsnotify.Rename):
		return KindRename
	case event.Has(fsnotify.Create):
		return KindCreate
	case event.Has(fsnotify.Chmod):
		return KindAttr
	default:
		return KindModify
	}
}

// addRecursive adds root and every subdirectory to the watch, skipping
// hidden directories (including .debris) and symlinks, which spec.md §9
// resolves as ignored-by-default.
func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // transient access errors are tolerated, not fatal
		}
		if d.Type()&os.ModeSymlink != 0 {
			if w.OnSymlinkIgnored != nil {
				w.OnSymlinkIgnored(path)
			}
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			base := filepath.Base(path)
			if strings.HasPrefix(base, ".") && path != root {
				return filepath.SkipDir
			}
			return w.fsw.Add(path)
		}
		return nil
	})
}

// Close releases the underlying fsnotify watch.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
