package cloudrpc

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFakeUploadDownloadRoundtrip(t *testing.T) {
	f := NewFake()
	ctx := context.Background()

	handle, _, size, err := f.Upload(ctx, "/docs/report.txt", strings.NewReader("hello"))
	require.NoError(t, err)
	require.NotZero(t, handle)
	require.EqualValues(t, 5, size)

	r, err := f.Download(ctx, "/docs/report.txt")
	require.NoError(t, err)
	defer r.Close()

	entries, err := f.ListDir(ctx, "/docs")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "report.txt", entries[0].Name)
}

func TestFakeRenameAndDelete(t *testing.T) {
	f := NewFake()
	ctx := context.Background()

	_, _, _, err := f.Upload(ctx, "/a.txt", strings.NewReader("x"))
	require.NoError(t, err)

	require.NoError(t, f.Rename(ctx, "/a.txt", "b.txt"))

	_, err = f.Download(ctx, "/a.txt")
	require.Error(t, err)

	r, err := f.Download(ctx, "/b.txt")
	require.NoError(t, err)
	r.Close()

	require.NoError(t, f.Delete(ctx, "/b.txt"))
	_, err = f.Download(ctx, "/b.txt")
	require.Error(t, err)
}
