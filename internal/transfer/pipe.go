// Package transfer implements the Transfer Orchestrator of spec.md
// §4.7: direction-specific queues that dedup in-flight work by
// fingerprint and drive the actual byte-moving through a narrow Pipe
// interface. It is adapted from the teacher's direct doUpload/doDownload
// calls in internal/sync/engine.go, generalized into a worker pool that
// engine.Sync enqueues into and registers completion callbacks on,
// instead of calling transfer methods synchronously from the pass.
package transfer

import (
	"context"
	"io"
	"time"

	"github.com/shuryanc/cloudsync/internal/model"
)

// Pipe moves one file's bytes in one direction. LocalToCloudPipe and
// CloudToLocalPipe are the two concrete implementations; both wrap the
// crypto stream the same way the teacher's doUpload/doDownload did.
type Pipe interface {
	// Upload reads node's current local content and returns the
	// resulting cloud handle, the fingerprint recorded for it, and the
	// MD5 the remote side reported for what it now holds.
	Upload(ctx context.Context, node *model.LocalNode) (newHandle uint64, fp model.Fingerprint, remoteMD5 string, err error)
	// Download fetches the cloud content for node and writes it to the
	// local path, returning the fingerprint recorded for the local copy
	// and the MD5 of the bytes as received from the cloud side.
	Download(ctx context.Context, node *model.LocalNode) (fp model.Fingerprint, remoteMD5 string, err error)
}

// LocalReader opens the plaintext bytes of a local path for upload.
// Satisfied by the local filesystem adapter.
type LocalReader interface {
	Open(relPath string) (io.ReadCloser, error)
	StatFingerprint(relPath string) (model.Fingerprint, error)
}

// LocalWriter writes downloaded bytes to a local path and reports the
// fingerprint of what landed on disk.
type LocalWriter interface {
	Write(relPath string, r io.Reader, mtime time.Time) (model.Fingerprint, error)
}

// CloudTransport is the subset of the cloud RPC client transfer needs:
// opening a download stream by remote path and uploading a new file's
// bytes under a request tag the Backup Controller can recognize as
// self-originated. Addressing by path, not handle, matches how the real
// wire protocol works (the server only learns the handle back from the
// create response); the pipes resolve a LocalNode to its remote path
// themselves with node.Path().
type CloudTransport interface {
	Download(ctx context.Context, remotePath string) (io.ReadCloser, error)
	Upload(ctx context.Context, remotePath string, r io.Reader, requestTag uint64) (handle uint64, md5 string, err error)
}
