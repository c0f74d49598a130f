// Package engine ties the Path Canonicalizer, shadow tree, Reconciler,
// Filesystem Watcher, Remote Delta Consumer, Transfer Orchestrator, Sync
// Config Store, and Backup Controller into one runnable process, per
// spec.md §6. External Interfaces lists a closed surface of named
// operations (addSync, removeSync, enableSync, disableSync, listSyncs,
// backupOpenDrive, exportConfigs, importConfigs,
// setFilenameAnomalyReporter); Context implements all of them as methods
// on the single struct that owns every collaborator (spec.md §9 "no
// process-wide singletons in the core").
package engine

import (
	"context"
	"io"

	"github.com/shuryanc/cloudsync/internal/cloudrpc"
)

// CloudStore is the direct cloud RPC surface the engine drives: listing a
// directory's children, opening a download stream, uploading a new
// file's bytes, and the two mutations (delete, rename) that don't need
// the Transfer Orchestrator's dedup/retry machinery. Both *cloudrpc.Client
// and *cloudrpc.Fake satisfy it with the exact same method set, so a
// scenario test swaps one for the other without an adapter or a mocking
// framework.
type CloudStore interface {
	ListDir(ctx context.Context, remotePath string) ([]cloudrpc.RemoteEntry, error)
	Download(ctx context.Context, remotePath string) (io.ReadCloser, error)
	Upload(ctx context.Context, remotePath string, content io.Reader) (handle uint64, md5 string, size int64, err error)
	Delete(ctx context.Context, remotePath string) error
	Rename(ctx context.Context, oldPath, newName string) error
}
