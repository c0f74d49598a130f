// Package syncerr defines the engine's closed set of error codes and the
// error type used to carry a disable reason on a sync, per spec.md §6-7.
package syncerr

import "fmt"

// Code is one of the engine's well-known error codes. It is a closed
// enum, not a general-purpose error, because the Sync Config Store
// persists it as a raw u16 (spec.md §6 binary format).
type Code uint16

const (
	NoSyncError Code = iota
	BackupModified
	FSAccessLost
	RemotePathGone
	LocalPathGone
	QuotaExceeded
	InternalInconsistency
)

func (c Code) String() string {
	switch c {
	case NoSyncError:
		return "NO_SYNC_ERROR"
	case BackupModified:
		return "BACKUP_MODIFIED"
	case FSAccessLost:
		return "FS_ACCESS_LOST"
	case RemotePathGone:
		return "REMOTE_PATH_GONE"
	case LocalPathGone:
		return "LOCAL_PATH_GONE"
	case QuotaExceeded:
		return "QUOTA_EXCEEDED"
	case InternalInconsistency:
		return "INTERNAL_INCONSISTENCY"
	default:
		return fmt.Sprintf("UNKNOWN_ERROR(%d)", uint16(c))
	}
}

// SyncError wraps an underlying error with the backup ID and code it
// caused a sync to be disabled with. No package outside syncerr
// constructs one: store.Disable records a bare Code.
type SyncError struct {
	Backup uint64
	Code   Code
	Err    error
}

func (e *SyncError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sync %d: %s: %v", e.Backup, e.Code, e.Err)
	}
	return fmt.Sprintf("sync %d: %s", e.Backup, e.Code)
}

func (e *SyncError) Unwrap() error { return e.Err }

// New constructs a SyncError for backupID with code and wrapped cause.
func New(backupID uint64, code Code, err error) *SyncError {
	return &SyncError{Backup: backupID, Code: code, Err: err}
}

// FatalError marks an invariant violation (I1-I4): fatal for the
// affected sync, never for the process.
type FatalError struct {
	Backup uint64
	Reason string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("sync %d: internal inconsistency: %s", e.Backup, e.Reason)
}

// Fatal constructs a FatalError. No code path in this module raises
// one: the Reconciler does not check I1-I4 during a pass, and nothing
// converts a FatalError into Disable(InternalInconsistency).
func Fatal(backupID uint64, reason string) *FatalError {
	return &FatalError{Backup: backupID, Reason: reason}
}
