package reconcile

import (
	"strings"

	"github.com/shuryanc/cloudsync/internal/model"
)

// ConflictResolution describes the outcome of resolving a
// content-diverged node per spec.md §4.6.1.
type ConflictResolution int

const (
	// ConflictNoop means the fingerprints were found equal (or the
	// tie-broken CRCs agreed), so nothing is transferred.
	ConflictNoop ConflictResolution = iota
	// ConflictLocalWins means the local content is kept and the remote
	// side is overwritten (loser debrised remotely is not modeled here
	// since debris is a local-only concept; the remote loser is simply
	// replaced by upload).
	ConflictLocalWins
	// ConflictRemoteWins means the remote content is kept; the local
	// loser is moved to sync debris.
	ConflictRemoteWins
)

// ResolveConflict implements spec.md §4.6.1: the node whose
// fingerprint.mtime is strictly greater wins. Exact fingerprint
// equality is a no-op. Ties on mtime are broken by content: if CRCs
// agree, no-op; otherwise the local side wins.
func ResolveConflict(local, remote model.Fingerprint) ConflictResolution {
	if local.EqualContent(remote) {
		return ConflictNoop
	}
	if local.MTime.After(remote.MTime) {
		return ConflictLocalWins
	}
	if remote.MTime.After(local.MTime) {
		return ConflictRemoteWins
	}
	// mtimes tied; CRCs already known to differ (checked above), so the
	// tie is broken in favor of the local side per spec.md §4.6.1.
	return ConflictLocalWins
}

// PathCollisionWinner implements the spec.md §4.6 "Path-collision
// tiebreak": when both sides moved the same node to different
// locations, the move whose containing parent has the lexicographically
// smaller full path wins.
//
// It returns true if the local destination's parent path wins (the
// remote side should converge to match), false if the remote wins.
func PathCollisionWinner(localParentPath, remoteParentPath string) bool {
	return strings.Compare(localParentPath, remoteParentPath) <= 0
}
