package debris

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestMoveRelocatesIntoDayFolder(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "f_2_1")
	if err := os.WriteFile(src, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := New(root)
	fixed := time.Date(2026, 8, 6, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	if err := m.Move(src, "f_2/f_2_1"); err != nil {
		t.Fatal(err)
	}

	want := filepath.Join(root, DirName, "2026-08-06", "f_2", "f_2_1")
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("expected debris file at %s: %v", want, err)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("original path should be gone, got err=%v", err)
	}
}

func TestDownloadLockExclusivity(t *testing.T) {
	root := t.TempDir()
	m := New(root)

	f, err := m.AcquireDownloadLock()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.AcquireDownloadLock(); err == nil {
		t.Fatalf("expected second lock acquisition to fail")
	}
	if err := m.ReleaseDownloadLock(f); err != nil {
		t.Fatal(err)
	}
	f2, err := m.AcquireDownloadLock()
	if err != nil {
		t.Fatalf("expected lock to be acquirable after release: %v", err)
	}
	m.ReleaseDownloadLock(f2)
}

func TestIsDebrisPath(t *testing.T) {
	cases := map[string]bool{
		".debris":          true,
		".debris/tmp/lock": true,
		"docs/report.pdf":  false,
		".debrisnotreally": false,
	}
	for path, want := range cases {
		if got := IsDebrisPath(path); got != want {
			t.Errorf("IsDebrisPath(%q) = %v, want %v", path, got, want)
		}
	}
}
