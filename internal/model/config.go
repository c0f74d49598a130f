package model

import "github.com/shuryanc/cloudsync/internal/syncerr"

// SyncType distinguishes a regular two-way sync from a backup (mirror)
// sync, per spec.md §3.
type SyncType uint16

const (
	TypeTwoWay SyncType = iota
	TypeBackup
)

func (t SyncType) String() string {
	if t == TypeBackup {
		return "backup"
	}
	return "two-way"
}

// BackupState is meaningful only when Type == TypeBackup.
type BackupState uint16

const (
	StateMirroring BackupState = iota
	StateMonitoring
)

func (s BackupState) String() string {
	if s == StateMonitoring {
		return "monitoring"
	}
	return "mirroring"
}

// ConflictPolicy selects how a two-way sync resolves a content-diverged
// node (spec.md §4.6.1 default), or opts into the teacher's simpler
// rename-based strategies as a supplemental per-sync choice.
type ConflictPolicy uint16

const (
	// ConflictDebrisMtimeWins is the spec default: the newer mtime wins,
	// the loser is moved to sync debris.
	ConflictDebrisMtimeWins ConflictPolicy = iota
	ConflictRenameLocal
	ConflictRenameRemote
	ConflictForceUpload
	ConflictForceDownload
)

// SyncConfig is the persistent descriptor for one sync root, per
// spec.md §3.
type SyncConfig struct {
	BackupID     uint64
	LocalPath    string
	RemoteHandle uint64
	RemotePath   string // advisory; RemoteHandle is authoritative
	DrivePath    string // external backups only
	DriveID      uint64 // external backups only

	Type         SyncType
	BackupState  BackupState
	Enabled      bool
	LastError    syncerr.Code
	Conflict     ConflictPolicy

	// Stalled is a non-fatal, non-persisted flag: a quota/permission
	// error leaves the sync enabled but stalled (spec.md §7).
	Stalled bool
}

// IsExternal reports whether cfg is bound to a removable drive.
func (cfg *SyncConfig) IsExternal() bool {
	return cfg.DrivePath != ""
}
