package shadow

import "github.com/shuryanc/cloudsync/internal/model"

// NodeState is one of the six observable pairing states of spec.md
// §4.3. It is computed, never stored, from a node's current
// local-presence/remote-presence/fingerprint fields.
type NodeState int

const (
	StateFullyPaired NodeState = iota
	StateUploadPending
	StateDownloadPending
	StateLocalOnlyDeletePending
	StateRemoteOnlyDeletePending
	StateContentDiverged
)

func (s NodeState) String() string {
	switch s {
	case StateUploadPending:
		return "upload-pending"
	case StateDownloadPending:
		return "download-pending"
	case StateLocalOnlyDeletePending:
		return "local-only-delete-pending"
	case StateRemoteOnlyDeletePending:
		return "remote-only-delete-pending"
	case StateContentDiverged:
		return "content-diverged"
	default:
		return "fully-paired"
	}
}

// Presence describes whether a node is currently observed to exist on
// one side, independent of pairing.
type Presence struct {
	LocalPresent  bool
	RemotePresent bool
	LocalFP       *model.Fingerprint
	RemoteFP      *model.Fingerprint
}

// Classify computes a best-effort NodeState from presence alone, with no
// knowledge of what changed since the last pass. It correctly
// distinguishes upload/download/fully-paired/content-diverged, but
// cannot distinguish "download pending" (a brand new remote file) from
// "local-only delete pending" (a remote file whose local copy the user
// deleted) — both present as remote-only. That distinction needs the
// base/history dimension of the spec.md §4.6 decision table, which is
// what internal/reconcile.decide resolves; Classify is used where only
// the current snapshot is available (e.g. logging, first-seen nodes).
func Classify(p Presence) NodeState {
	switch {
	case p.LocalPresent && !p.RemotePresent:
		return StateUploadPending
	case !p.LocalPresent && p.RemotePresent:
		return StateDownloadPending
	case !p.LocalPresent && !p.RemotePresent:
		return StateLocalOnlyDeletePending
	case p.LocalPresent && p.RemotePresent:
		if p.LocalFP == nil || p.RemoteFP == nil {
			return StateFullyPaired
		}
		if p.LocalFP.EqualContent(*p.RemoteFP) {
			return StateFullyPaired
		}
		return StateContentDiverged
	}
	return StateFullyPaired
}
