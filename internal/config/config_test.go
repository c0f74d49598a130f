package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyDefaultsFillsZeroValues(t *testing.T) {
	cfg := &Config{}
	cfg.System.TempDir = t.TempDir() + "/tmp"

	require.NoError(t, cfg.ApplyDefaults())

	require.Equal(t, "5m", cfg.Sync.Interval)
	require.Equal(t, "debris", cfg.Sync.ConflictPolicy)
	require.Equal(t, "./cloudsync.db", cfg.System.StorePath)
	require.Equal(t, int64(300000000000), cfg.Sync.IntervalDuration.Nanoseconds())
}

func TestApplyDefaultsRejectsUnknownConflictPolicy(t *testing.T) {
	cfg := &Config{}
	cfg.Sync.ConflictPolicy = "not_a_policy"
	cfg.System.TempDir = t.TempDir()

	require.Error(t, cfg.ApplyDefaults())
}

func TestParseSyncType(t *testing.T) {
	require.Equal(t, "backup", ParseSyncType("backup").String())
	require.Equal(t, "two-way", ParseSyncType("two_way").String())
	require.Equal(t, "two-way", ParseSyncType("").String())
}

func TestAESKeyIsDeterministicAndFullLength(t *testing.T) {
	c := &CryptoConfig{Password: "hunter2"}
	key := c.AESKey()
	require.Len(t, key, 32)
	require.Equal(t, key, c.AESKey())
}
