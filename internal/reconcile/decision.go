// Package reconcile implements the Reconciler: the core decision engine
// of spec.md §4.6. Each pass classifies the local scan, the remote scan
// and the persisted baseline by path, detects moves, and emits at most
// one action per node. It does not walk the shadow tree in separate
// scan-up, scan-down and act phases.
package reconcile

// ChangeKind is one column/row header of the spec.md §4.6 decision
// table: what happened to a side since the last pass.
type ChangeKind int

const (
	Unchanged ChangeKind = iota
	Modified
	Moved
	Deleted
)

// OpType is the action the decision table assigns to a (local, remote)
// change pair.
type OpType int

const (
	OpNoop OpType = iota
	OpDownload
	OpLocalMove
	OpLocalDelete
	OpUpload
	OpConflict
	OpUploadAndMove
	OpRecreateRemote
	OpRemoteMove
	OpRemoteMoveAndDownload
	OpComparePathsPickOne
	OpRecreateLocal
	OpRemoteDelete
	OpConflictRenameLocal
	OpConflictRenameRemote
	OpConflictForceUpload
	OpConflictForceDownload
)

func (o OpType) String() string {
	switch o {
	case OpDownload:
		return "download"
	case OpLocalMove:
		return "local-move"
	case OpLocalDelete:
		return "local-delete"
	case OpUpload:
		return "upload"
	case OpConflict:
		return "conflict"
	case OpUploadAndMove:
		return "upload+move"
	case OpRecreateRemote:
		return "recreate-remote"
	case OpRemoteMove:
		return "remote-move"
	case OpRemoteMoveAndDownload:
		return "remote-move+download"
	case OpComparePathsPickOne:
		return "compare-paths"
	case OpRecreateLocal:
		return "recreate-local"
	case OpRemoteDelete:
		return "remote-delete"
	case OpConflictRenameLocal:
		return "conflict-rename-local"
	case OpConflictRenameRemote:
		return "conflict-rename-remote"
	case OpConflictForceUpload:
		return "conflict-force-upload"
	case OpConflictForceDownload:
		return "conflict-force-download"
	default:
		return "no-op"
	}
}

// decisionTable is the literal transcription of spec.md §4.6's table,
// indexed [local][remote].
var decisionTable = [4][4]OpType{
	Unchanged: {
		Unchanged: OpNoop,
		Modified:  OpDownload,
		Moved:     OpLocalMove,
		Deleted:   OpLocalDelete,
	},
	Modified: {
		Unchanged: OpUpload,
		Modified:  OpConflict,
		Moved:     OpUploadAndMove,
		Deleted:   OpRecreateRemote,
	},
	Moved: {
		Unchanged: OpRemoteMove,
		Modified:  OpRemoteMoveAndDownload,
		Moved:     OpComparePathsPickOne,
		Deleted:   OpRecreateRemote,
	},
	Deleted: {
		Unchanged: OpRemoteDelete,
		Modified:  OpRecreateLocal,
		Moved:     OpComparePathsPickOne,
		Deleted:   OpNoop,
	},
}

// decide looks up the decision table cell for the given local/remote
// change kinds.
func decide(local, remote ChangeKind) OpType {
	return decisionTable[local][remote]
}
