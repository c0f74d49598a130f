package engine

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/shuryanc/cloudsync/internal/backup"
	"github.com/shuryanc/cloudsync/internal/canon"
	"github.com/shuryanc/cloudsync/internal/model"
	"github.com/shuryanc/cloudsync/internal/store"
	"github.com/shuryanc/cloudsync/internal/syncerr"
)

// AnomalyReporter is the shape of the observer installed via
// SetFilenameAnomalyReporter: it is called with the local path, the
// cloud-canonical path, and a human-readable anomaly type whenever a
// name crosses the local/cloud boundary with a mismatch.
type AnomalyReporter func(localPath, remotePath, anomalyType string)

// Context owns the Sync Config Store, the Backup Controller, and one
// running Sync per enabled backup ID. It is the single struct the rest
// of the process talks to; nothing here is a package-level singleton
// (grounded on the teacher's Engine being constructed once in main.go
// and passed down, never reached for through a global).
type Context struct {
	store     *store.ConfigStore
	backupCtl *backup.Controller
	cloud     CloudStore
	log       *slog.Logger
	encKey    []byte

	mu    sync.Mutex
	syncs map[uint64]*runningSync

	ctx    context.Context
	cancel context.CancelFunc
}

type runningSync struct {
	sync   *Sync
	cancel context.CancelFunc
	done   chan struct{}
}

// NewContext constructs a Context backed by st and driving cloud. It
// does not start any syncs; call Restore to bring up every enabled
// config persisted in st (typically once, at process startup). encKey
// is the process-wide encrypted-transfer key (empty when crypto is
// disabled); every sync started by this Context shares it.
func NewContext(st *store.ConfigStore, cloud CloudStore, log *slog.Logger, encKey []byte) *Context {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Context{
		store:     st,
		backupCtl: backup.New(st, log),
		cloud:     cloud,
		log:       log,
		encKey:    encKey,
		syncs:     make(map[uint64]*runningSync),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Restore starts a Sync for every persisted config with Enabled set,
// the way the teacher's main.go re-armed every configured sync on
// daemon startup. Each sync is started concurrently: c.start only seeds
// a map entry and launches a goroutine, so there is no reason a
// hundred-sync store should pay a hundred sequential lock round-trips.
func (c *Context) Restore() error {
	var toStart []model.SyncConfig
	if err := c.store.ForEach(func(cfg model.SyncConfig) error {
		if cfg.Enabled {
			toStart = append(toStart, cfg)
		}
		return nil
	}); err != nil {
		return err
	}

	var g errgroup.Group
	for _, cfg := range toStart {
		cfg := cfg
		g.Go(func() error {
			return c.start(cfg)
		})
	}
	return g.Wait()
}

// Close stops every running sync and releases the context's background
// goroutines, satisfying property P5's "no in-memory state references
// id" once RemoveSync has also been called for each.
func (c *Context) Close() {
	c.mu.Lock()
	ids := make([]uint64, 0, len(c.syncs))
	for id := range c.syncs {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	for _, id := range ids {
		c.stop(id)
	}
	c.cancel()
}

func (c *Context) start(cfg model.SyncConfig) error {
	c.mu.Lock()
	if _, running := c.syncs[cfg.BackupID]; running {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	s, err := newSync(cfg, c.store, c.backupCtl, c.cloud, c.log, c.encKey)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(c.ctx)
	done := make(chan struct{})

	c.mu.Lock()
	c.syncs[cfg.BackupID] = &runningSync{sync: s, cancel: cancel, done: done}
	c.mu.Unlock()

	go func() {
		defer close(done)
		if err := s.Start(runCtx); err != nil {
			c.log.Error("sync stopped", "backupId", cfg.BackupID, "err", err)
		}
	}()
	return nil
}

func (c *Context) stop(backupID uint64) {
	c.mu.Lock()
	rs, ok := c.syncs[backupID]
	if ok {
		delete(c.syncs, backupID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	rs.cancel()
	<-rs.done
}

// AddSync persists cfg under a freshly assigned backup ID and, if
// cfg.Enabled, starts it immediately.
func (c *Context) AddSync(cfg model.SyncConfig) (uint64, error) {
	id, err := c.store.Add(cfg)
	if err != nil {
		return 0, err
	}
	cfg.BackupID = id
	if cfg.Enabled {
		if err := c.start(cfg); err != nil {
			return id, err
		}
	}
	return id, nil
}

// RemoveSync stops backupID's sync (if running) and deletes its config
// row, dropping its shadow-tree cache too unless keepCache is set.
func (c *Context) RemoveSync(backupID uint64, keepCache bool) error {
	c.stop(backupID)
	return c.store.Remove(backupID, keepCache)
}

// EnableSync re-arms backupID. A backup-type sync always re-enters
// mirroring via the Backup Controller, regardless of the state it was
// disabled in.
func (c *Context) EnableSync(backupID uint64) error {
	cfg, err := c.store.ByBackupID(backupID)
	if err != nil {
		return err
	}
	if cfg.Type == model.TypeBackup {
		if err := c.backupCtl.Reenable(&cfg); err != nil {
			return err
		}
	} else if err := c.store.Enable(backupID); err != nil {
		return err
	}
	cfg.Enabled = true
	return c.start(cfg)
}

// DisableSync stops backupID's sync and records reason against it.
func (c *Context) DisableSync(backupID uint64, reason syncerr.Code) error {
	c.stop(backupID)
	return c.store.Disable(backupID, reason)
}

// SyncConfigByBackupID returns the persisted config for id.
func (c *Context) SyncConfigByBackupID(id uint64) (model.SyncConfig, error) {
	return c.store.ByBackupID(id)
}

// ForEachSyncConfig visits every persisted config.
func (c *Context) ForEachSyncConfig(fn func(model.SyncConfig) error) error {
	return c.store.ForEach(fn)
}

// ExportSyncConfigs serializes every persisted config into the
// versioned wire envelope of spec.md §6.
func (c *Context) ExportSyncConfigs() ([]byte, error) {
	return c.store.ExportAll()
}

// ImportSyncConfigs decodes blob and persists each record under a fresh
// backup ID, disabled, per spec.md §4.8.
func (c *Context) ImportSyncConfigs(blob []byte) ([]uint64, error) {
	return c.store.ImportAll(blob)
}

// BackupOpenDrive revives every external backup bound to the drive now
// mounted at drivePath, always re-entering mirroring (never monitoring)
// per spec.md §4.9.
func (c *Context) BackupOpenDrive(drivePath string) ([]uint64, error) {
	cfgs, err := c.store.OpenDrive(drivePath)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(cfgs))
	for _, cfg := range cfgs {
		if err := c.store.Enable(cfg.BackupID); err != nil {
			return ids, err
		}
		cfg.Enabled = true
		if err := c.start(cfg); err != nil {
			return ids, err
		}
		ids = append(ids, cfg.BackupID)
	}
	return ids, nil
}

// SetFilenameAnomalyReporter installs fn as the process-wide observer
// for name-canonicalization anomalies (spec.md §6). A nil fn disables
// reporting.
func (c *Context) SetFilenameAnomalyReporter(fn AnomalyReporter) {
	if fn == nil {
		canon.SetReporter(nil)
		return
	}
	canon.SetReporter(reporterFunc(fn))
}

// reporterFunc adapts an AnomalyReporter to canon.Reporter.
type reporterFunc AnomalyReporter

func (f reporterFunc) Report(localPath, remotePath string, a canon.Anomaly) {
	f(localPath, remotePath, a.String())
}
