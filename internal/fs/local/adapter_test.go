package local

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWriteThenStatFingerprintStable(t *testing.T) {
	a := New(t.TempDir())

	mtime := time.Now().Truncate(time.Second)
	fp, err := a.Write("docs/report.txt", strings.NewReader("hello world"), mtime)
	require.NoError(t, err)
	require.EqualValues(t, 11, fp.Size)

	fp2, err := a.StatFingerprint("docs/report.txt")
	require.NoError(t, err)
	require.Equal(t, fp.CRC, fp2.CRC)
}

func TestListAllFindsWrittenEntry(t *testing.T) {
	a := New(t.TempDir())
	_, err := a.Write("a/b/c.txt", strings.NewReader("data"), time.Now())
	require.NoError(t, err)

	entries, err := a.ListAll()
	require.NoError(t, err)

	var found bool
	for _, e := range entries {
		if e.RelPath == "a/b/c.txt" && !e.IsDir {
			found = true
		}
	}
	require.True(t, found)
}

func TestRenameMovesFile(t *testing.T) {
	a := New(t.TempDir())
	_, err := a.Write("old.txt", strings.NewReader("x"), time.Now())
	require.NoError(t, err)

	require.NoError(t, a.Rename("old.txt", "new.txt"))

	_, err = a.Open("old.txt")
	require.Error(t, err)

	r, err := a.Open("new.txt")
	require.NoError(t, err)
	r.Close()
}

func TestReservedCharacterRoundtrips(t *testing.T) {
	a := New(t.TempDir())
	// "report:final" is a cloud-legal name with a character reserved on
	// the local filesystem; canon.Encode escapes it to a safe on-disk
	// name and ListAll's decode must recover the original.
	_, err := a.Write("report:final.txt", strings.NewReader("x"), time.Now())
	require.NoError(t, err)

	entries, err := a.ListAll()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "report:final.txt", entries[0].RelPath)
}
