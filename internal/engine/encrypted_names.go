package engine

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/shuryanc/cloudsync/internal/cloudrpc"
	"github.com/shuryanc/cloudsync/internal/crypto"
)

// encryptedNameStore wraps a CloudStore so every path crossing the
// boundary is encrypted component-by-component before it reaches the
// real cloud call and decrypted on the way back, generalizing the
// teacher's baidu.Adapter encryptPath/decryptPath pair into a CloudStore
// decorator: every other collaborator (the Reconciler, the Transfer
// Orchestrator, listRemoteRecursive) keeps working in plain relative
// paths and never learns encryption is happening underneath it.
type encryptedNameStore struct {
	inner CloudStore
	key   []byte
}

// NewEncryptedNameStore returns a CloudStore that encrypts every path
// component it sends to inner and decrypts every name inner reports
// back, using key (see config.CryptoConfig.AESKey). Call it only when
// CryptoConfig.EncryptFilenames is set; content encryption (the
// EncryptKey carried by the transfer pipes) is independent of this.
func NewEncryptedNameStore(inner CloudStore, key []byte) CloudStore {
	return &encryptedNameStore{inner: inner, key: key}
}

func (e *encryptedNameStore) encryptPath(relPath string) (string, error) {
	if relPath == "" || relPath == "." {
		return relPath, nil
	}
	parts := strings.Split(relPath, "/")
	for i, part := range parts {
		enc, err := crypto.EncryptName(part, e.key)
		if err != nil {
			return "", fmt.Errorf("encrypt path %q part %q: %w", relPath, part, err)
		}
		parts[i] = enc
	}
	return strings.Join(parts, "/"), nil
}

// decryptName reverses EncryptName for one path component. A component
// that fails to decrypt is passed through unchanged, the way the
// teacher's decryptPath tolerated pre-existing plaintext names left
// over from before encryption was enabled.
func (e *encryptedNameStore) decryptName(name string) string {
	dec, err := crypto.DecryptName(name, e.key)
	if err != nil {
		return name
	}
	return dec
}

func (e *encryptedNameStore) ListDir(ctx context.Context, remotePath string) ([]cloudrpc.RemoteEntry, error) {
	encPath, err := e.encryptPath(remotePath)
	if err != nil {
		return nil, err
	}
	entries, err := e.inner.ListDir(ctx, encPath)
	if err != nil {
		return nil, err
	}
	out := make([]cloudrpc.RemoteEntry, len(entries))
	for i, en := range entries {
		en.Name = e.decryptName(en.Name)
		out[i] = en
	}
	return out, nil
}

func (e *encryptedNameStore) Download(ctx context.Context, remotePath string) (io.ReadCloser, error) {
	encPath, err := e.encryptPath(remotePath)
	if err != nil {
		return nil, err
	}
	return e.inner.Download(ctx, encPath)
}

func (e *encryptedNameStore) Upload(ctx context.Context, remotePath string, content io.Reader) (uint64, string, int64, error) {
	encPath, err := e.encryptPath(remotePath)
	if err != nil {
		return 0, "", 0, err
	}
	return e.inner.Upload(ctx, encPath, content)
}

func (e *encryptedNameStore) Delete(ctx context.Context, remotePath string) error {
	encPath, err := e.encryptPath(remotePath)
	if err != nil {
		return err
	}
	return e.inner.Delete(ctx, encPath)
}

func (e *encryptedNameStore) Rename(ctx context.Context, oldPath, newName string) error {
	encOld, err := e.encryptPath(oldPath)
	if err != nil {
		return err
	}
	encName, err := crypto.EncryptName(newName, e.key)
	if err != nil {
		return err
	}
	return e.inner.Rename(ctx, encOld, encName)
}
