package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shuryanc/cloudsync/internal/model"
	"github.com/shuryanc/cloudsync/internal/shadow"
)

func fpRC(size int64, crc uint32, mtime time.Time) model.Fingerprint {
	return model.Fingerprint{Size: size, CRC: [4]uint32{crc, crc, crc, crc}, MTime: mtime}
}

func TestPassUploadsBrandNewLocalFile(t *testing.T) {
	r := New(shadow.New(1))

	locals := []LocalEntry{{RelPath: "a.txt", Fingerprint: fpRC(10, 1, time.Now())}}
	actions := r.Pass(locals, nil, nil)

	require.Len(t, actions, 1)
	require.Equal(t, OpUpload, actions[0].Op)
	require.Equal(t, "a.txt", actions[0].RelPath)
}

func TestPassDownloadsBrandNewRemoteFile(t *testing.T) {
	r := New(shadow.New(1))

	remotes := []RemoteEntry{{Handle: 5, RelPath: "b.txt", Fingerprint: fpRC(20, 2, time.Now())}}
	actions := r.Pass(nil, remotes, nil)

	require.Len(t, actions, 1)
	require.Equal(t, OpDownload, actions[0].Op)
	require.Equal(t, "b.txt", actions[0].RelPath)
}

func TestPassNoopWhenBothSidesUnchangedFromBaseline(t *testing.T) {
	r := New(shadow.New(1))
	base := fpRC(10, 1, time.Now())

	locals := []LocalEntry{{RelPath: "a.txt", Fingerprint: base}}
	remotes := []RemoteEntry{{Handle: 1, RelPath: "a.txt", Fingerprint: base}}
	baseline := map[string]Baseline{"a.txt": {LocalFP: base, RemoteFP: base}}

	actions := r.Pass(locals, remotes, baseline)
	require.Empty(t, actions)
}

func TestPassLocalModificationUploads(t *testing.T) {
	r := New(shadow.New(1))
	baseFP := fpRC(10, 1, time.Now())
	newFP := fpRC(11, 9, time.Now())

	locals := []LocalEntry{{RelPath: "a.txt", Fingerprint: newFP}}
	remotes := []RemoteEntry{{Handle: 1, RelPath: "a.txt", Fingerprint: baseFP}}
	baseline := map[string]Baseline{"a.txt": {LocalFP: baseFP, RemoteFP: baseFP}}

	actions := r.Pass(locals, remotes, baseline)
	require.Len(t, actions, 1)
	require.Equal(t, OpUpload, actions[0].Op)
}

func TestPassConflictPicksNewerMtime(t *testing.T) {
	r := New(shadow.New(1))
	baseFP := fpRC(10, 1, time.Now().Add(-time.Hour))
	localFP := fpRC(11, 9, time.Now())
	remoteFP := fpRC(12, 8, time.Now().Add(-30*time.Minute))

	locals := []LocalEntry{{RelPath: "a.txt", Fingerprint: localFP}}
	remotes := []RemoteEntry{{Handle: 1, RelPath: "a.txt", Fingerprint: remoteFP}}
	baseline := map[string]Baseline{"a.txt": {LocalFP: baseFP, RemoteFP: baseFP}}

	actions := r.Pass(locals, remotes, baseline)
	require.Len(t, actions, 1)
	require.Equal(t, OpUpload, actions[0].Op, "local mtime is newer, local should win")
}

func TestPassDeletesPropagateWhenOtherSideUnchanged(t *testing.T) {
	r := New(shadow.New(1))
	baseFP := fpRC(10, 1, time.Now())

	remotes := []RemoteEntry{{Handle: 1, RelPath: "a.txt", Fingerprint: baseFP}}
	baseline := map[string]Baseline{"a.txt": {LocalFP: baseFP, RemoteFP: baseFP}}

	actions := r.Pass(nil, remotes, baseline)
	require.Len(t, actions, 1)
	require.Equal(t, OpRemoteDelete, actions[0].Op)
}

func TestPassDetectsLocalMoveInsteadOfDeleteAndCreate(t *testing.T) {
	r := New(shadow.New(1))
	content := fpRC(10, 1, time.Now())

	locals := []LocalEntry{{RelPath: "new/name.txt", Fingerprint: content}}
	remotes := []RemoteEntry{{Handle: 1, RelPath: "old/name.txt", Fingerprint: content}}
	baseline := map[string]Baseline{"old/name.txt": {LocalFP: content, RemoteFP: content}}

	actions := r.Pass(locals, remotes, baseline)
	require.Len(t, actions, 1)
	require.Equal(t, OpRemoteMove, actions[0].Op)
	require.Equal(t, "old/name.txt", actions[0].FromPath)
	require.Equal(t, "new/name.txt", actions[0].RelPath)
}

func TestPassConflictNoopsWhenHashLocalConfirmsSameContent(t *testing.T) {
	r := New(shadow.New(1))
	baseFP := fpRC(10, 1, time.Now().Add(-time.Hour))
	// Local and remote CRCs differ (sparse-sample vs MD5-derived), which
	// would normally read as a real divergence, but HashLocal confirms
	// the bytes actually match the MD5 the remote side reported.
	localFP := fpRC(11, 9, time.Now())
	remoteFP := fpRC(11, 7, time.Now())
	remoteFP.MD5 = "abc123"

	locals := []LocalEntry{{RelPath: "a.txt", Fingerprint: localFP}}
	remotes := []RemoteEntry{{Handle: 1, RelPath: "a.txt", Fingerprint: remoteFP}}
	baseline := map[string]Baseline{"a.txt": {LocalFP: baseFP, RemoteFP: baseFP}}

	r.HashLocal = func(relPath string) (string, error) { return "abc123", nil }

	actions := r.Pass(locals, remotes, baseline)
	require.Empty(t, actions, "matching content confirmed by HashLocal should be a no-op")
}

func TestPassConflictHonorsForceDownloadPolicy(t *testing.T) {
	r := New(shadow.New(1))
	r.ConflictPolicy = model.ConflictForceDownload
	baseFP := fpRC(10, 1, time.Now().Add(-time.Hour))
	localFP := fpRC(11, 9, time.Now())
	remoteFP := fpRC(12, 8, time.Now().Add(-30*time.Minute))

	locals := []LocalEntry{{RelPath: "a.txt", Fingerprint: localFP}}
	remotes := []RemoteEntry{{Handle: 1, RelPath: "a.txt", Fingerprint: remoteFP}}
	baseline := map[string]Baseline{"a.txt": {LocalFP: baseFP, RemoteFP: baseFP}}

	actions := r.Pass(locals, remotes, baseline)
	require.Len(t, actions, 1)
	require.Equal(t, OpConflictForceDownload, actions[0].Op, "an explicit force-download policy must override the mtime-wins default even though local is newer")
	require.Equal(t, remoteFP, actions[0].Fingerprint)
}

func TestPassConflictHonorsRenameRemotePolicy(t *testing.T) {
	r := New(shadow.New(1))
	r.ConflictPolicy = model.ConflictRenameRemote
	baseFP := fpRC(10, 1, time.Now().Add(-time.Hour))
	localFP := fpRC(11, 9, time.Now())
	remoteFP := fpRC(12, 8, time.Now())

	locals := []LocalEntry{{RelPath: "a.txt", Fingerprint: localFP}}
	remotes := []RemoteEntry{{Handle: 1, RelPath: "a.txt", Fingerprint: remoteFP}}
	baseline := map[string]Baseline{"a.txt": {LocalFP: baseFP, RemoteFP: baseFP}}

	actions := r.Pass(locals, remotes, baseline)
	require.Len(t, actions, 1)
	require.Equal(t, OpConflictRenameRemote, actions[0].Op)
	require.Equal(t, localFP, actions[0].Fingerprint)
}

func TestPassConflictDefaultPolicyStillUsesMtimeWins(t *testing.T) {
	r := New(shadow.New(1))
	baseFP := fpRC(10, 1, time.Now().Add(-time.Hour))
	localFP := fpRC(11, 9, time.Now())
	remoteFP := fpRC(12, 8, time.Now().Add(-30*time.Minute))

	locals := []LocalEntry{{RelPath: "a.txt", Fingerprint: localFP}}
	remotes := []RemoteEntry{{Handle: 1, RelPath: "a.txt", Fingerprint: remoteFP}}
	baseline := map[string]Baseline{"a.txt": {LocalFP: baseFP, RemoteFP: baseFP}}

	actions := r.Pass(locals, remotes, baseline)
	require.Len(t, actions, 1)
	require.Equal(t, OpUpload, actions[0].Op, "the zero-value ConflictPolicy must keep the existing debris/mtime-wins behavior")
}

func TestPassBothSidesMovedDifferentlyPicksLexicallySmallerParent(t *testing.T) {
	r := New(shadow.New(1))
	content := fpRC(10, 1, time.Now())

	locals := []LocalEntry{{RelPath: "alpha/name.txt", Fingerprint: content}}
	remotes := []RemoteEntry{{Handle: 1, RelPath: "beta/name.txt", Fingerprint: content}}
	baseline := map[string]Baseline{"old/name.txt": {LocalFP: content, RemoteFP: content}}

	actions := r.Pass(locals, remotes, baseline)
	require.Len(t, actions, 1)
	require.Equal(t, OpComparePathsPickOne, actions[0].Op)

	// "alpha" sorts before "beta", so the local destination wins and the
	// remote side must be moved from beta/ to alpha/ to converge.
	require.True(t, actions[0].LocalWins)
	require.Equal(t, "beta/name.txt", actions[0].FromPath)
	require.Equal(t, "alpha/name.txt", actions[0].RelPath)
}
