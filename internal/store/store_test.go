package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shuryanc/cloudsync/internal/model"
	"github.com/shuryanc/cloudsync/internal/syncerr"
)

func openTemp(t *testing.T) *ConfigStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "configs.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddAssignsNeverReusedID(t *testing.T) {
	s := openTemp(t)

	id1, err := s.Add(model.SyncConfig{LocalPath: "/a", Enabled: true})
	require.NoError(t, err)

	id2, err := s.Add(model.SyncConfig{LocalPath: "/b", Enabled: true})
	require.NoError(t, err)

	require.NotEqual(t, id1, id2)
	require.Greater(t, id2, id1)
}

func TestAddRejectsOverlappingRoots(t *testing.T) {
	s := openTemp(t)

	_, err := s.Add(model.SyncConfig{LocalPath: "/home/user/docs", Enabled: true})
	require.NoError(t, err)

	_, err = s.Add(model.SyncConfig{LocalPath: "/home/user/docs/sub", Enabled: true})
	require.ErrorIs(t, err, ErrOverlap)
}

func TestRemoveKeepCacheFalseDropsShadowBucket(t *testing.T) {
	s := openTemp(t)
	id, err := s.Add(model.SyncConfig{LocalPath: "/a", Enabled: true})
	require.NoError(t, err)
	require.NoError(t, s.PutFileState(id, FileState{RelPath: "a.txt"}))

	require.NoError(t, s.Remove(id, false))
	_, err = s.ByBackupID(id)
	require.ErrorIs(t, err, ErrNotFound)
	states, err := s.ListFileStates(id)
	require.NoError(t, err)
	require.Empty(t, states)
}

func TestEnableDisableRoundtrip(t *testing.T) {
	s := openTemp(t)
	id, err := s.Add(model.SyncConfig{LocalPath: "/a", Enabled: true})
	require.NoError(t, err)

	require.NoError(t, s.Disable(id, syncerr.QuotaExceeded))
	cfg, err := s.ByBackupID(id)
	require.NoError(t, err)
	require.False(t, cfg.Enabled)
	require.Equal(t, syncerr.QuotaExceeded, cfg.LastError)

	require.NoError(t, s.Enable(id))
	cfg, err = s.ByBackupID(id)
	require.NoError(t, err)
	require.True(t, cfg.Enabled)
	require.Equal(t, syncerr.NoSyncError, cfg.LastError)
}

func TestExportImportRoundtrip(t *testing.T) {
	src := openTemp(t)
	_, err := src.Add(model.SyncConfig{LocalPath: "/a", RemotePath: "/cloud/a", Enabled: true})
	require.NoError(t, err)
	_, err = src.Add(model.SyncConfig{LocalPath: "/b", RemotePath: "/cloud/b", Type: model.TypeBackup, Enabled: true})
	require.NoError(t, err)

	blob, err := src.ExportAll()
	require.NoError(t, err)

	dst := openTemp(t)
	ids, err := dst.ImportAll(blob)
	require.NoError(t, err)
	require.Len(t, ids, 2)

	for _, id := range ids {
		cfg, err := dst.ByBackupID(id)
		require.NoError(t, err)
		require.False(t, cfg.Enabled, "imported configs must start disabled")
	}
}

func TestByLocalPathNotFound(t *testing.T) {
	s := openTemp(t)
	_, err := s.ByLocalPath("/nope")
	require.ErrorIs(t, err, ErrNotFound)
}
