package cloudrpc

import (
	"context"
	"io"
)

// uploaderDownloader is the shape both *Client and *Fake satisfy. Transport
// is defined over this narrow interface rather than *Client concretely so
// the same adapter works against the in-memory Fake in scenario tests.
type uploaderDownloader interface {
	Download(ctx context.Context, remotePath string) (io.ReadCloser, error)
	Upload(ctx context.Context, remotePath string, content io.Reader) (handle uint64, md5 string, size int64, err error)
}

// Transport adapts a Client or Fake to the narrow transfer.CloudTransport
// shape: it drops the size return value the full Upload call produces
// (the Reconciler already knows the local size) but keeps the MD5, since
// that is the only content identity the remote side hands back and the
// shadow cache needs it to tell a real remote change from a stale listing.
type Transport struct {
	Store uploaderDownloader
}

func (t *Transport) Download(ctx context.Context, remotePath string) (io.ReadCloser, error) {
	return t.Store.Download(ctx, remotePath)
}

func (t *Transport) Upload(ctx context.Context, remotePath string, r io.Reader, requestTag uint64) (uint64, string, error) {
	handle, md5, _, err := t.Store.Upload(ctx, remotePath, r)
	return handle, md5, err
}
