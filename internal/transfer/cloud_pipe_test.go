package transfer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shuryanc/cloudsync/internal/crypto"
	"github.com/shuryanc/cloudsync/internal/model"
)

type fakeLocal struct {
	content []byte
	written []byte
}

func (l *fakeLocal) Open(relPath string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(l.content)), nil
}

func (l *fakeLocal) StatFingerprint(relPath string) (model.Fingerprint, error) {
	return model.Fingerprint{Size: int64(len(l.content))}, nil
}

func (l *fakeLocal) Write(relPath string, r io.Reader, mtime time.Time) (model.Fingerprint, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return model.Fingerprint{}, err
	}
	l.written = data
	return model.Fingerprint{Size: int64(len(data)), MTime: mtime}, nil
}

type fakeCloudTransport struct {
	uploaded []byte
	toServe  []byte
}

func (c *fakeCloudTransport) Download(ctx context.Context, remotePath string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(c.toServe)), nil
}

func (c *fakeCloudTransport) Upload(ctx context.Context, remotePath string, r io.Reader, requestTag uint64) (uint64, string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return 0, "", err
	}
	c.uploaded = data
	return 1, "deadbeef", nil
}

func testKey() []byte {
	sum := sha256.Sum256([]byte("cloud-pipe-test"))
	return sum[:]
}

// testNode builds a single-file LocalNode whose Path() is just name, by
// giving it a root parent (LocalNode.Path treats a grandparent-less node
// as the top level).
func testNode(name string) *model.LocalNode {
	root := model.NewLocalNode(model.NodeFolder, "/", "/", nil)
	return model.NewLocalNode(model.NodeFile, name, name, root)
}

func encryptForTest(t *testing.T, plaintext, key []byte) []byte {
	t.Helper()
	enc, err := crypto.NewEncryptReader(bytes.NewReader(plaintext), key)
	require.NoError(t, err)
	ciphertext, err := io.ReadAll(enc)
	require.NoError(t, err)
	return ciphertext
}

func TestLocalToCloudPipeSettlesTagAfterUpload(t *testing.T) {
	local := &fakeLocal{content: []byte("hello")}
	cloud := &fakeCloudTransport{}

	var settled []uint64
	p := &LocalToCloudPipe{
		Local:     local,
		Cloud:     cloud,
		NextTag:   func() uint64 { return 42 },
		SettleTag: func(tag uint64) { settled = append(settled, tag) },
	}

	node := testNode("f")

	_, _, _, err := p.Upload(context.Background(), node)
	require.NoError(t, err)
	require.Equal(t, []uint64{42}, settled, "the tag must be settled since no delta stream ever will")
}

func TestLocalToCloudPipeEncryptsWhenKeySet(t *testing.T) {
	local := &fakeLocal{content: []byte("plaintext content")}
	cloud := &fakeCloudTransport{}

	p := &LocalToCloudPipe{
		Local:      local,
		Cloud:      cloud,
		EncryptKey: testKey(),
	}

	node := testNode("f")

	_, _, _, err := p.Upload(context.Background(), node)
	require.NoError(t, err)
	require.NotEqual(t, local.content, cloud.uploaded, "encrypted upload must not send plaintext over the wire")
}

func TestCloudToLocalPipeDecryptsWhenKeySet(t *testing.T) {
	key := testKey()
	local := &fakeLocal{}
	plaintext := []byte("round trip me")

	encrypted := encryptForTest(t, plaintext, key)
	cloud := &fakeCloudTransport{toServe: encrypted}

	p := &CloudToLocalPipe{
		Local:      local,
		Cloud:      cloud,
		EncryptKey: key,
	}

	node := testNode("f")

	_, _, err := p.Download(context.Background(), node)
	require.NoError(t, err)
	require.Equal(t, plaintext, local.written)
}
