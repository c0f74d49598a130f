package engine

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shuryanc/cloudsync/internal/backup"
	"github.com/shuryanc/cloudsync/internal/cloudrpc"
	"github.com/shuryanc/cloudsync/internal/debris"
	"github.com/shuryanc/cloudsync/internal/model"
	"github.com/shuryanc/cloudsync/internal/store"
	"github.com/shuryanc/cloudsync/internal/syncerr"
)

// newTestSync wires a Sync against a fresh on-disk ConfigStore and an
// in-memory Fake cloud, the way Context.start would for one backup ID,
// and returns the live collaborators a test needs to poke at directly.
func newTestSync(t *testing.T, localDir string, mutate func(*model.SyncConfig)) (*Sync, *cloudrpc.Fake, *store.ConfigStore) {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "config.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cloud := cloudrpc.NewFake()
	ctl := backup.New(st, nil)

	cfg := model.SyncConfig{LocalPath: localDir, RemotePath: ".", Enabled: true}
	if mutate != nil {
		mutate(&cfg)
	}
	id, err := st.Add(cfg)
	if err != nil {
		t.Fatalf("add config: %v", err)
	}
	cfg.BackupID = id

	s, err := newSync(cfg, st, ctl, cloud, nil, nil)
	if err != nil {
		t.Fatalf("new sync: %v", err)
	}
	return s, cloud, st
}

func writeLocalFile(t *testing.T, dir, relPath, content string) {
	t.Helper()
	full := filepath.Join(dir, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

func TestRemoteDeleteMovesLocalCopyToDebris(t *testing.T) {
	dir := t.TempDir()
	writeLocalFile(t, dir, "f_2/f_2_1", "hello")

	s, cloud, _ := newTestSync(t, dir, nil)
	ctx := context.Background()

	if err := s.RunOnce(ctx); err != nil {
		t.Fatalf("initial pass: %v", err)
	}
	if _, err := cloud.Download(ctx, "f_2/f_2_1"); err != nil {
		t.Fatalf("expected remote copy after bootstrap: %v", err)
	}

	if err := cloud.Delete(ctx, "f_2/f_2_1"); err != nil {
		t.Fatalf("remote delete: %v", err)
	}

	if err := s.RunOnce(ctx); err != nil {
		t.Fatalf("second pass: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "f_2", "f_2_1")); !os.IsNotExist(err) {
		t.Fatalf("expected local copy removed, stat err = %v", err)
	}

	found := false
	debrisRoot := filepath.Join(dir, debris.DirName)
	_ = filepath.Walk(debrisRoot, func(p string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() && info.Name() == "f_2_1" {
			found = true
		}
		return nil
	})
	if !found {
		t.Fatalf("expected f_2_1 to land in sync debris under %s", debrisRoot)
	}
}

func TestLocalRenameWithoutContentChangeSkipsReupload(t *testing.T) {
	dir := t.TempDir()
	writeLocalFile(t, dir, "f", "f")

	s, cloud, _ := newTestSync(t, dir, nil)
	ctx := context.Background()

	if err := s.RunOnce(ctx); err != nil {
		t.Fatalf("initial pass: %v", err)
	}

	entries, err := cloud.ListDir(ctx, ".")
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one remote entry after bootstrap, got %v err=%v", entries, err)
	}
	originalHandle := entries[0].Handle

	if err := os.Rename(filepath.Join(dir, "f"), filepath.Join(dir, "g")); err != nil {
		t.Fatalf("local rename: %v", err)
	}

	if err := s.RunOnce(ctx); err != nil {
		t.Fatalf("second pass: %v", err)
	}

	entries, err = cloud.ListDir(ctx, ".")
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one remote entry after rename, got %v err=%v", entries, err)
	}
	if entries[0].Name != "g" {
		t.Fatalf("expected remote entry renamed to g, got %q", entries[0].Name)
	}
	if entries[0].Handle != originalHandle {
		t.Fatalf("expected same handle across rename (no re-upload), got %d want %d", entries[0].Handle, originalHandle)
	}
}

func TestRepeatedPassWithNoChangesProducesNoActions(t *testing.T) {
	dir := t.TempDir()
	writeLocalFile(t, dir, "a", "stable content")
	writeLocalFile(t, dir, "sub/b", "also stable")

	s, cloud, _ := newTestSync(t, dir, nil)
	ctx := context.Background()

	if err := s.RunOnce(ctx); err != nil {
		t.Fatalf("initial pass: %v", err)
	}
	before, err := cloud.ListDir(ctx, ".")
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	// A converged pass must not reclassify untouched files as Modified
	// due to the local and remote fingerprint schemes disagreeing.
	if err := s.RunOnce(ctx); err != nil {
		t.Fatalf("second pass: %v", err)
	}
	after, err := cloud.ListDir(ctx, ".")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(before) != len(after) {
		t.Fatalf("expected stable listing, before=%v after=%v", before, after)
	}
	for i := range before {
		if before[i].Handle != after[i].Handle {
			t.Fatalf("handle churn on an unchanged file: %+v vs %+v", before[i], after[i])
		}
	}
}

func TestBackupMonitoringDisablesOnForeignRemoteWrite(t *testing.T) {
	dir := t.TempDir()
	writeLocalFile(t, dir, "f", "f")

	s, cloud, st := newTestSync(t, dir, func(cfg *model.SyncConfig) {
		cfg.Type = model.TypeBackup
	})
	ctx := context.Background()

	if err := s.RunOnce(ctx); err != nil {
		t.Fatalf("initial pass: %v", err)
	}
	cfg, err := st.ByBackupID(s.cfg.BackupID)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.BackupState != model.StateMonitoring {
		t.Fatalf("expected backup to converge to monitoring, got %v", cfg.BackupState)
	}
	s.cfg = cfg

	if _, _, _, err := cloud.Upload(ctx, "d", strings.NewReader("foreign")); err != nil {
		t.Fatalf("foreign remote write: %v", err)
	}

	if err := s.RunOnce(ctx); err != nil {
		t.Fatalf("third pass: %v", err)
	}

	cfg, err = st.ByBackupID(s.cfg.BackupID)
	if err != nil {
		t.Fatalf("reload config: %v", err)
	}
	if cfg.Enabled {
		t.Fatalf("expected sync disabled after foreign remote write")
	}
	if cfg.LastError != syncerr.BackupModified {
		t.Fatalf("expected BackupModified, got %v", cfg.LastError)
	}
	if _, err := os.Stat(filepath.Join(dir, "d")); !os.IsNotExist(err) {
		t.Fatalf("foreign file should not have been materialized locally, stat err = %v", err)
	}
}

func TestBackupMirroringRemovesRemoteOnlyFile(t *testing.T) {
	dir := t.TempDir()
	writeLocalFile(t, dir, "f", "f")

	s, cloud, st := newTestSync(t, dir, func(cfg *model.SyncConfig) {
		cfg.Type = model.TypeBackup
	})
	ctx := context.Background()

	if err := s.RunOnce(ctx); err != nil {
		t.Fatalf("initial pass: %v", err)
	}
	cfg, err := st.ByBackupID(s.cfg.BackupID)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.BackupState != model.StateMonitoring {
		t.Fatalf("expected backup to converge to monitoring, got %v", cfg.BackupState)
	}

	// Force back into mirroring, as a re-enable would, without touching
	// what it already mirrored.
	if err := st.SetBackupState(s.cfg.BackupID, model.StateMirroring); err != nil {
		t.Fatalf("force mirroring: %v", err)
	}
	cfg.BackupState = model.StateMirroring
	s.cfg = cfg

	if _, _, _, err := cloud.Upload(ctx, "foreign", strings.NewReader("not local")); err != nil {
		t.Fatalf("remote-only write: %v", err)
	}

	if err := s.RunOnce(ctx); err != nil {
		t.Fatalf("mirroring pass: %v", err)
	}

	if _, err := cloud.Download(ctx, "foreign"); err == nil {
		t.Fatalf("expected remote-only file removed to mirror the local side")
	}
	if _, err := os.Stat(filepath.Join(dir, "foreign")); !os.IsNotExist(err) {
		t.Fatalf("remote-only file should never have been pulled to local, stat err = %v", err)
	}
}

func TestConflictForceUploadOverwritesRemoteWithLocal(t *testing.T) {
	dir := t.TempDir()
	writeLocalFile(t, dir, "f", "v1")

	s, cloud, _ := newTestSync(t, dir, func(cfg *model.SyncConfig) {
		cfg.Conflict = model.ConflictForceUpload
	})
	ctx := context.Background()

	if err := s.RunOnce(ctx); err != nil {
		t.Fatalf("initial pass: %v", err)
	}

	writeLocalFile(t, dir, "f", "v2-local")
	if _, _, _, err := cloud.Upload(ctx, "f", strings.NewReader("v2-remote")); err != nil {
		t.Fatalf("remote edit: %v", err)
	}

	if err := s.RunOnce(ctx); err != nil {
		t.Fatalf("conflict pass: %v", err)
	}

	r, err := cloud.Download(ctx, "f")
	if err != nil {
		t.Fatalf("download after conflict: %v", err)
	}
	defer r.Close()
	body, _ := io.ReadAll(r)
	if string(body) != "v2-local" {
		t.Fatalf("expected force-upload to push local content, got %q", body)
	}
}

func TestConflictRenameLocalKeepsBothCopies(t *testing.T) {
	dir := t.TempDir()
	writeLocalFile(t, dir, "f", "v1")

	s, cloud, _ := newTestSync(t, dir, func(cfg *model.SyncConfig) {
		cfg.Conflict = model.ConflictRenameLocal
	})
	ctx := context.Background()

	if err := s.RunOnce(ctx); err != nil {
		t.Fatalf("initial pass: %v", err)
	}

	writeLocalFile(t, dir, "f", "v2-local")
	if _, _, _, err := cloud.Upload(ctx, "f", strings.NewReader("v2-remote")); err != nil {
		t.Fatalf("remote edit: %v", err)
	}

	if err := s.RunOnce(ctx); err != nil {
		t.Fatalf("conflict pass: %v", err)
	}

	renamed, err := os.ReadFile(filepath.Join(dir, "f.local"))
	if err != nil {
		t.Fatalf("expected local copy kept aside as f.local: %v", err)
	}
	if string(renamed) != "v2-local" {
		t.Fatalf("expected f.local to keep the original local content, got %q", renamed)
	}

	downloaded, err := os.ReadFile(filepath.Join(dir, "f"))
	if err != nil {
		t.Fatalf("expected remote content downloaded to f: %v", err)
	}
	if string(downloaded) != "v2-remote" {
		t.Fatalf("expected f to hold the remote content after the conflict resolves, got %q", downloaded)
	}
}

func TestBackupMirroringRestoresRemoteDelete(t *testing.T) {
	dir := t.TempDir()
	writeLocalFile(t, dir, "f", "f")

	s, cloud, st := newTestSync(t, dir, func(cfg *model.SyncConfig) {
		cfg.Type = model.TypeBackup
	})
	ctx := context.Background()

	if err := s.RunOnce(ctx); err != nil {
		t.Fatalf("initial pass: %v", err)
	}
	cfg, err := st.ByBackupID(s.cfg.BackupID)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if err := st.SetBackupState(s.cfg.BackupID, model.StateMirroring); err != nil {
		t.Fatalf("force mirroring: %v", err)
	}
	cfg.BackupState = model.StateMirroring
	s.cfg = cfg

	if err := cloud.Delete(ctx, "f"); err != nil {
		t.Fatalf("remote delete: %v", err)
	}

	if err := s.RunOnce(ctx); err != nil {
		t.Fatalf("mirroring pass: %v", err)
	}

	if _, err := cloud.Download(ctx, "f"); err != nil {
		t.Fatalf("expected local content re-pushed to the cloud after mirroring pass: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "f")); err != nil {
		t.Fatalf("expected local copy to remain untouched: %v", err)
	}
}
