package transfer

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/shuryanc/cloudsync/internal/crypto"
	"github.com/shuryanc/cloudsync/internal/debris"
	"github.com/shuryanc/cloudsync/internal/model"
)

// LocalToCloudPipe uploads a LocalNode's current content to the cloud,
// wrapping the plaintext stream in the same encrypted-transfer envelope
// the teacher's doUpload used, when encryptKey is non-empty.
type LocalToCloudPipe struct {
	Local      LocalReader
	Cloud      CloudTransport
	EncryptKey []byte
	NextTag    func() uint64
	// SettleTag, if set, is called with the tag NextTag allocated once
	// this upload's RPC has returned. This engine has no push delta
	// stream to settle the tag for it (spec.md §4.5's Remote Delta
	// Consumer is exercised only in tests, not by the polling scanRemote
	// loop), so the tag must be retired here or backup.Controller's
	// inflight set grows forever.
	SettleTag func(tag uint64)
}

func (p *LocalToCloudPipe) Upload(ctx context.Context, node *model.LocalNode) (uint64, model.Fingerprint, string, error) {
	relPath := node.Path()

	fp, err := p.Local.StatFingerprint(relPath)
	if err != nil {
		return 0, model.Fingerprint{}, "", fmt.Errorf("stat local before upload: %w", err)
	}

	reader, err := p.Local.Open(relPath)
	if err != nil {
		return 0, model.Fingerprint{}, "", fmt.Errorf("open local for upload: %w", err)
	}
	defer reader.Close()

	var stream io.Reader = reader
	if len(p.EncryptKey) > 0 {
		enc, err := crypto.NewEncryptReader(reader, p.EncryptKey)
		if err != nil {
			return 0, model.Fingerprint{}, "", fmt.Errorf("crypto init failed: %w", err)
		}
		stream = enc
	}

	var tag uint64
	if p.NextTag != nil {
		tag = p.NextTag()
		if p.SettleTag != nil {
			defer p.SettleTag(tag)
		}
	}

	handle, remoteMD5, err := p.Cloud.Upload(ctx, relPath, stream, tag)
	if err != nil {
		return 0, model.Fingerprint{}, "", err
	}
	return handle, fp, remoteMD5, nil
}

func (p *LocalToCloudPipe) Download(context.Context, *model.LocalNode) (model.Fingerprint, string, error) {
	return model.Fingerprint{}, "", fmt.Errorf("transfer: LocalToCloudPipe does not support Download")
}

// CloudToLocalPipe downloads a LocalNode's remote content and writes it
// to disk, reversing the encrypted-transfer envelope when a key is set.
type CloudToLocalPipe struct {
	Local      LocalWriter
	Cloud      CloudTransport
	EncryptKey []byte
	// Debris, if set, guards every download with the transient
	// .debris/tmp/lock file so a concurrent sync process can't clobber
	// an in-flight write to the same local tree. Left nil in tests that
	// don't exercise the on-disk debris layout.
	Debris *debris.Mover
}

func (p *CloudToLocalPipe) Upload(context.Context, *model.LocalNode) (uint64, model.Fingerprint, string, error) {
	return 0, model.Fingerprint{}, "", fmt.Errorf("transfer: CloudToLocalPipe does not support Upload")
}

func (p *CloudToLocalPipe) Download(ctx context.Context, node *model.LocalNode) (model.Fingerprint, string, error) {
	relPath := node.Path()

	if p.Debris != nil {
		lock, err := p.Debris.AcquireDownloadLock()
		if err != nil {
			return model.Fingerprint{}, "", fmt.Errorf("acquire download lock: %w", err)
		}
		defer p.Debris.ReleaseDownloadLock(lock)
	}

	reader, err := p.Cloud.Download(ctx, relPath)
	if err != nil {
		return model.Fingerprint{}, "", fmt.Errorf("open cloud stream: %w", err)
	}
	defer reader.Close()

	// hasher sees the bytes exactly as received from the cloud side, so
	// the digest matches whatever the server reports for this content in
	// a directory listing, regardless of whether encryption unwraps it
	// further on the way to disk.
	hasher := md5.New()
	var stream io.Reader = io.TeeReader(reader, hasher)
	if len(p.EncryptKey) > 0 {
		dec, err := crypto.NewDecryptReader(stream, p.EncryptKey)
		if err != nil {
			return model.Fingerprint{}, "", fmt.Errorf("crypto init failed: %w", err)
		}
		stream = dec
	}

	mtime := node.Fingerprint
	var fp model.Fingerprint
	if mtime != nil {
		fp, err = p.Local.Write(relPath, stream, mtime.MTime)
	} else {
		fp, err = p.Local.Write(relPath, stream, fp.MTime)
	}
	if err != nil {
		return model.Fingerprint{}, "", fmt.Errorf("write local: %w", err)
	}
	return fp, hex.EncodeToString(hasher.Sum(nil)), nil
}
