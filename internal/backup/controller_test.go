package backup

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shuryanc/cloudsync/internal/model"
	"github.com/shuryanc/cloudsync/internal/remote"
	"github.com/shuryanc/cloudsync/internal/store"
	"github.com/shuryanc/cloudsync/internal/syncerr"
)

func newTestController(t *testing.T) (*Controller, *store.ConfigStore, model.SyncConfig) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "cfg.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	id, err := s.Add(model.SyncConfig{LocalPath: "/a", Type: model.TypeBackup, Enabled: true})
	require.NoError(t, err)

	cfg, err := s.ByBackupID(id)
	require.NoError(t, err)

	return New(s, nil), s, cfg
}

func TestOnPassConvergedEntersMonitoring(t *testing.T) {
	c, s, cfg := newTestController(t)

	require.NoError(t, c.OnPassConverged(&cfg))
	require.Equal(t, model.StateMonitoring, cfg.BackupState)

	persisted, err := s.ByBackupID(cfg.BackupID)
	require.NoError(t, err)
	require.Equal(t, model.StateMonitoring, persisted.BackupState)
}

func TestOnForeignDeltaDisablesWhenMonitoring(t *testing.T) {
	c, s, cfg := newTestController(t)
	require.NoError(t, c.OnPassConverged(&cfg))

	err := c.OnForeignDelta(&cfg, remote.Delta{Handle: 42})
	require.NoError(t, err)
	require.False(t, cfg.Enabled)
	require.Equal(t, syncerr.BackupModified, cfg.LastError)

	persisted, err := s.ByBackupID(cfg.BackupID)
	require.NoError(t, err)
	require.False(t, persisted.Enabled)
}

func TestSelfOriginatedDeltaDoesNotDisable(t *testing.T) {
	c, _, cfg := newTestController(t)
	require.NoError(t, c.OnPassConverged(&cfg))

	tag := c.Tag()
	err := c.OnForeignDelta(&cfg, remote.Delta{Handle: 1, SelfOriginated: true, RequestTag: tag})
	require.NoError(t, err)
	require.True(t, cfg.Enabled)
}

func TestReenableAlwaysEntersMirroring(t *testing.T) {
	c, s, cfg := newTestController(t)
	require.NoError(t, c.OnPassConverged(&cfg))
	require.NoError(t, c.OnForeignDelta(&cfg, remote.Delta{Handle: 1}))

	require.NoError(t, c.Reenable(&cfg))
	require.True(t, cfg.Enabled)
	require.Equal(t, model.StateMirroring, cfg.BackupState)

	persisted, err := s.ByBackupID(cfg.BackupID)
	require.NoError(t, err)
	require.Equal(t, model.StateMirroring, persisted.BackupState)
}
