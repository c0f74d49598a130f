// Package backup implements the mirror/monitor state machine for
// backup-type syncs, spec.md §4.9. It is a tiny explicit state machine
// driven entirely by Reconciler pass results and remote deltas — no
// timers, no polling — grounded on the teacher's preference for small,
// directly-driven state rather than a generic FSM library.
package backup

import (
	"log/slog"
	"sync"

	"github.com/shuryanc/cloudsync/internal/model"
	"github.com/shuryanc/cloudsync/internal/remote"
	"github.com/shuryanc/cloudsync/internal/store"
	"github.com/shuryanc/cloudsync/internal/syncerr"
)

// Controller tracks in-flight request tags so deltas the engine itself
// caused (an upload completing, a mirrored delete) can be told apart from
// deltas a foreign actor made on the backup destination. The tag
// allocator lives here, not as a package-level counter, per spec.md §9's
// "isolate global mutable state behind a single engine context".
type Controller struct {
	store *store.ConfigStore
	log   *slog.Logger

	mu       sync.Mutex
	nextTag  uint64
	inflight map[uint64]struct{}
}

// New constructs a Controller persisting state transitions through cs.
func New(cs *store.ConfigStore, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		store:    cs,
		log:      log,
		inflight: make(map[uint64]struct{}),
	}
}

// Tag allocates a fresh request tag to stamp on an outgoing cloud RPC so
// the resulting delta can be recognized as self-originated.
func (c *Controller) Tag() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextTag++
	tag := c.nextTag
	c.inflight[tag] = struct{}{}
	return tag
}

// Settle marks tag as no longer in flight once its RPC has completed
// (successfully or not) and its corresponding delta, if any, has arrived.
func (c *Controller) Settle(tag uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, tag)
}

func (c *Controller) isSelfOriginated(d remote.Delta) bool {
	if !d.SelfOriginated {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inflight[d.RequestTag]
	return ok
}

// OnPassConverged transitions mirroring -> monitoring once the
// Reconciler reports zero pending actions and local==remote for cfg
// (property P4). A no-op outside mirroring or for non-backup syncs.
func (c *Controller) OnPassConverged(cfg *model.SyncConfig) error {
	if cfg.Type != model.TypeBackup || cfg.BackupState != model.StateMirroring {
		return nil
	}
	cfg.BackupState = model.StateMonitoring
	c.log.Info("backup converged, entering monitoring", "backupId", cfg.BackupID)
	return c.store.SetBackupState(cfg.BackupID, model.StateMonitoring)
}

// OnForeignDelta disables cfg with BackupModified if d arrived while
// cfg is monitoring and was not self-originated.
func (c *Controller) OnForeignDelta(cfg *model.SyncConfig, d remote.Delta) error {
	if cfg.Type != model.TypeBackup || cfg.BackupState != model.StateMonitoring {
		return nil
	}
	if c.isSelfOriginated(d) {
		return nil
	}
	cfg.Enabled = false
	cfg.LastError = syncerr.BackupModified
	c.log.Warn("foreign change on backup destination, disabling",
		"backupId", cfg.BackupID, "handle", d.Handle)
	return c.store.Disable(cfg.BackupID, syncerr.BackupModified)
}

// OnForeignChange disables cfg with BackupModified when a monitoring
// backup's reconciliation pass finds the destination diverged from the
// local mirror at path. Unlike OnForeignDelta, which distinguishes a
// self-originated push notification from a foreign one by request tag,
// this path has no push delta to inspect: a polling Sync only ever
// asks the destination to change local state when something other than
// this engine wrote there, so any such action while monitoring is
// foreign by construction.
func (c *Controller) OnForeignChange(cfg *model.SyncConfig, path string) error {
	if cfg.Type != model.TypeBackup || cfg.BackupState != model.StateMonitoring {
		return nil
	}
	cfg.Enabled = false
	cfg.LastError = syncerr.BackupModified
	c.log.Warn("foreign change on backup destination, disabling",
		"backupId", cfg.BackupID, "path", path)
	return c.store.Disable(cfg.BackupID, syncerr.BackupModified)
}

// Reenable always re-enters mirroring, regardless of the prior state,
// including on external-drive resumption (spec.md §4.9: "a re-enabled
// backup never resumes straight into monitoring").
func (c *Controller) Reenable(cfg *model.SyncConfig) error {
	cfg.Enabled = true
	cfg.LastError = syncerr.NoSyncError
	cfg.BackupState = model.StateMirroring
	c.log.Info("backup re-enabled, mirroring from scratch", "backupId", cfg.BackupID)
	if err := c.store.Enable(cfg.BackupID); err != nil {
		return err
	}
	return c.store.SetBackupState(cfg.BackupID, model.StateMirroring)
}
