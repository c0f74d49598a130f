// Package store persists the Sync Config Store of spec.md §4.8: the
// backup-ID-keyed table of every sync root the engine knows about. It is
// adapted from the teacher's internal/database boltdb wrapper, generalized
// from a single flat file-state bucket into one bucket per backup ID plus
// a top-level config table.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/shuryanc/cloudsync/internal/model"
	"github.com/shuryanc/cloudsync/internal/syncerr"
)

// ConfigsBucket holds one row per backup ID, keyed by big-endian uint64.
const ConfigsBucket = "SyncConfigs"

// ErrNotFound is returned by ByBackupID when no config exists.
var ErrNotFound = errors.New("store: backup id not found")

// ErrOverlap is returned by Add when LocalPath overlaps an existing
// enabled sync's root.
var ErrOverlap = errors.New("store: local path overlaps an existing sync")

// ConfigStore wraps a *bbolt.DB holding the persistent Sync Config table.
// Each backup additionally owns a shadow-tree bucket named
// "shadow-<backupID>", created lazily by PutFileState and removed here
// by Remove when keepCache is false.
type ConfigStore struct {
	db *bbolt.DB
}

// Open opens (creating if absent) the bbolt file at path and ensures the
// configs bucket exists.
func Open(path string) (*ConfigStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open config store: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(ConfigsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create configs bucket: %w", err)
	}
	return &ConfigStore{db: db}, nil
}

// Close closes the underlying bbolt handle.
func (s *ConfigStore) Close() error {
	return s.db.Close()
}

func keyFor(backupID uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, backupID)
	return k
}

// Add assigns a fresh, never-reused backup ID via bbolt's sequence
// counter and persists cfg, rejecting overlapping LocalPath roots against
// every existing enabled config (spec.md §4.8).
func (s *ConfigStore) Add(cfg model.SyncConfig) (uint64, error) {
	var backupID uint64
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(ConfigsBucket))

		if err := b.ForEach(func(_, v []byte) error {
			existing, err := decodeConfig(v)
			if err != nil {
				return err
			}
			if existing.Enabled && overlaps(existing.LocalPath, cfg.LocalPath) {
				return ErrOverlap
			}
			return nil
		}); err != nil {
			return err
		}

		id, err := b.NextSequence()
		if err != nil {
			return err
		}
		backupID = id
		cfg.BackupID = backupID

		return b.Put(keyFor(backupID), encodeConfig(cfg))
	})
	if err != nil {
		return 0, err
	}
	return backupID, nil
}

func overlaps(a, b string) bool {
	if a == b {
		return true
	}
	return hasPathPrefix(a, b) || hasPathPrefix(b, a)
}

func hasPathPrefix(path, prefix string) bool {
	if len(path) < len(prefix) {
		return false
	}
	if path[:len(prefix)] != prefix {
		return false
	}
	return len(path) == len(prefix) || path[len(prefix)] == '/'
}

// Remove deletes the config row for backupID. When keepCache is false it
// also drops the paired shadow-<backupID> bucket, so property P5 (no
// on-disk state references a removed id) holds.
func (s *ConfigStore) Remove(backupID uint64, keepCache bool) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(ConfigsBucket))
		if err := b.Delete(keyFor(backupID)); err != nil {
			return err
		}
		if !keepCache {
			_ = tx.DeleteBucket([]byte(shadowBucketName(backupID)))
		}
		return nil
	})
}

func shadowBucketName(backupID uint64) string {
	return fmt.Sprintf("shadow-%d", backupID)
}

// Enable flips Enabled on and clears LastError.
func (s *ConfigStore) Enable(backupID uint64) error {
	return s.mutate(backupID, func(cfg *model.SyncConfig) {
		cfg.Enabled = true
		cfg.LastError = syncerr.NoSyncError
		cfg.Stalled = false
	})
}

// Disable flips Enabled off and records reason.
func (s *ConfigStore) Disable(backupID uint64, reason syncerr.Code) error {
	return s.mutate(backupID, func(cfg *model.SyncConfig) {
		cfg.Enabled = false
		cfg.LastError = reason
	})
}

// SetBackupState updates a backup sync's mirroring/monitoring state.
func (s *ConfigStore) SetBackupState(backupID uint64, state model.BackupState) error {
	return s.mutate(backupID, func(cfg *model.SyncConfig) {
		cfg.BackupState = state
	})
}

func (s *ConfigStore) mutate(backupID uint64, fn func(*model.SyncConfig)) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(ConfigsBucket))
		v := b.Get(keyFor(backupID))
		if v == nil {
			return ErrNotFound
		}
		cfg, err := decodeConfig(v)
		if err != nil {
			return err
		}
		fn(&cfg)
		return b.Put(keyFor(backupID), encodeConfig(cfg))
	})
}

// ByBackupID looks up a single config.
func (s *ConfigStore) ByBackupID(backupID uint64) (model.SyncConfig, error) {
	var cfg model.SyncConfig
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(ConfigsBucket))
		v := b.Get(keyFor(backupID))
		if v == nil {
			return ErrNotFound
		}
		var err error
		cfg, err = decodeConfig(v)
		return err
	})
	return cfg, err
}

// ByLocalPath returns the config rooted at localPath, if any.
func (s *ConfigStore) ByLocalPath(localPath string) (model.SyncConfig, error) {
	var found model.SyncConfig
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(ConfigsBucket))
		return b.ForEach(func(_, v []byte) error {
			cfg, err := decodeConfig(v)
			if err != nil {
				return err
			}
			if cfg.LocalPath == localPath {
				found = cfg
				return errStopIteration
			}
			return nil
		})
	})
	if errors.Is(err, errStopIteration) {
		return found, nil
	}
	if err != nil {
		return found, err
	}
	return found, ErrNotFound
}

var errStopIteration = errors.New("store: stop iteration")

// ForEach visits every persisted config in key (backup ID) order.
func (s *ConfigStore) ForEach(fn func(model.SyncConfig) error) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(ConfigsBucket))
		return b.ForEach(func(_, v []byte) error {
			cfg, err := decodeConfig(v)
			if err != nil {
				return err
			}
			return fn(cfg)
		})
	})
}
