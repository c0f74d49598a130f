package reconcile

import (
	"sort"
	"strings"

	"github.com/shuryanc/cloudsync/internal/model"
	"github.com/shuryanc/cloudsync/internal/shadow"
)

// LocalEntry is one node observed during a local filesystem scan.
type LocalEntry struct {
	RelPath     string
	IsDir       bool
	Fingerprint model.Fingerprint
}

// RemoteEntry is one node observed in the cloud mirror.
type RemoteEntry struct {
	Handle      uint64
	RelPath     string
	IsDir       bool
	Fingerprint model.Fingerprint
}

// Baseline is what both sides looked like after the previous successful
// pass: the "base" dimension of the spec.md §4.6 decision table.
type Baseline struct {
	LocalFP  model.Fingerprint
	RemoteFP model.Fingerprint
}

// Action is one unit of work the Act phase emits for the Transfer
// Orchestrator, the cloud RPC client, or the local adapter to execute.
// The Reconciler itself never performs I/O.
type Action struct {
	Op   OpType
	Node *model.LocalNode

	// RelPath is the node's current cloud-canonical path.
	RelPath string
	// FromPath is set only for OpLocalMove/OpRemoteMove: the path the
	// node moved from, so the executor can issue a rename instead of a
	// delete-and-create.
	FromPath string
	// Fingerprint is the side's fingerprint the executor needs to carry
	// out the action: the local fingerprint for an upload/recreate-remote,
	// the remote fingerprint for a download/recreate-local.
	Fingerprint model.Fingerprint

	// LocalWins is set only for OpComparePathsPickOne: true means the
	// local destination (RelPath) won the tiebreak and the remote side
	// (currently at FromPath) must be moved to match; false means the
	// remote destination won and the local side must be moved instead.
	LocalWins bool
}

// Reconciler runs the pass of spec.md §4.6 for one sync: Pass classifies
// the scanned local and remote entries against the baseline by path and
// walks the decision table to produce Actions. It generalizes
// the teacher's diff.go compare() function, which only ever distinguished
// upload/download/delete/conflict, into the full sixteen-cell table plus
// move detection and conflict resolution.
type Reconciler struct {
	Tree    *shadow.Tree
	Clashes *ClashRegistry

	// HashLocal, if set, computes relPath's full content MD5. It is
	// consulted only when both sides changed since baseline (OpConflict):
	// the local sparse-sample CRC and the remote MD5-derived CRC use
	// different schemes and can never agree with each other even for
	// byte-identical content, so ResolveConflict's own equality check
	// never fires across sides. A real MD5-to-MD5 comparison is the only
	// way to confirm the two divergent copies are actually the same
	// bytes, and it is worth the one full read because this path is rare
	// (both sides edited the same file since the last pass). Left nil in
	// tests that don't exercise local I/O, which simply skips the check.
	HashLocal func(relPath string) (string, error)

	// ConflictPolicy selects how a content-diverged node (both sides
	// changed since baseline) is resolved. The zero value,
	// model.ConflictDebrisMtimeWins, keeps the ResolveConflict behavior
	// below; any other value routes straight to one of the teacher's
	// rename/force strategies instead.
	ConflictPolicy model.ConflictPolicy
}

// New constructs a Reconciler operating on tree.
func New(tree *shadow.Tree) *Reconciler {
	return &Reconciler{Tree: tree, Clashes: NewClashRegistry()}
}

// Conflicts returns every currently active name clash, backing the
// public "list conflicts" interface of spec.md §4.6.2.
func (r *Reconciler) Conflicts() []ClashRecord {
	return r.Clashes.Conflicts()
}

type move struct{ from, to string }

// Pass runs one full cycle: it classifies every path observed locally,
// remotely, or in the baseline against the decision table, resolving
// moves and conflicts along the way, and returns the actions to execute.
// It also updates the shadow tree so each Action's Node carries the
// current Fingerprint/RemoteHandle pairing.
func (r *Reconciler) Pass(locals []LocalEntry, remotes []RemoteEntry, baseline map[string]Baseline) []Action {
	localByPath := indexLocal(locals)
	remoteByPath := indexRemote(remotes)

	var actions []Action
	handled := r.detectClashes(locals, remotes)

	localMoves, localKinds := r.detectLocalMoves(localByPath, baseline)
	remoteMoves, remoteKinds := r.detectRemoteMoves(remoteByPath, baseline)

	collisions, collisionHandled := r.resolvePathCollisions(localMoves, remoteMoves, localByPath, remoteByPath)
	actions = append(actions, collisions...)
	for p := range collisionHandled {
		handled[p] = true
	}

	for _, mv := range localMoves {
		if handled[mv.from] || handled[mv.to] {
			continue
		}
		handled[mv.from] = true
		handled[mv.to] = true
		actions = append(actions, Action{
			Op:          OpRemoteMove,
			RelPath:     mv.to,
			FromPath:    mv.from,
			Node:        r.nodeFor(mv.to, localByPath[mv.to], remoteByPath[mv.to]),
			Fingerprint: localByPath[mv.to].Fingerprint,
		})
	}

	for _, mv := range remoteMoves {
		if handled[mv.from] || handled[mv.to] {
			continue
		}
		handled[mv.from] = true
		handled[mv.to] = true
		actions = append(actions, Action{
			Op:          OpLocalMove,
			RelPath:     mv.to,
			FromPath:    mv.from,
			Node:        r.nodeFor(mv.to, localByPath[mv.to], remoteByPath[mv.to]),
			Fingerprint: remoteByPath[mv.to].Fingerprint,
		})
	}

	for _, p := range unionPaths(localByPath, remoteByPath, baseline) {
		if handled[p] {
			continue
		}
		lk := localKinds[p]
		rk := remoteKinds[p]
		if lk == Unchanged && rk == Unchanged {
			continue
		}

		op := decide(lk, rk)
		if op == OpConflict {
			if r.contentMatches(p, remoteByPath[p].Fingerprint.MD5) {
				continue
			}
			switch r.ConflictPolicy {
			case model.ConflictRenameLocal:
				op = OpConflictRenameLocal
			case model.ConflictRenameRemote:
				op = OpConflictRenameRemote
			case model.ConflictForceUpload:
				op = OpConflictForceUpload
			case model.ConflictForceDownload:
				op = OpConflictForceDownload
			default:
				switch ResolveConflict(localByPath[p].Fingerprint, remoteByPath[p].Fingerprint) {
				case ConflictNoop:
					continue
				case ConflictLocalWins:
					op = OpUpload
				case ConflictRemoteWins:
					op = OpDownload
				}
			}
		}
		if op == OpNoop {
			continue
		}

		action := Action{
			Op:      op,
			RelPath: p,
			Node:    r.nodeFor(p, localByPath[p], remoteByPath[p]),
		}
		switch op {
		case OpUpload, OpRecreateRemote, OpConflictRenameRemote, OpConflictForceUpload:
			action.Fingerprint = localByPath[p].Fingerprint
		case OpDownload, OpRecreateLocal, OpConflictRenameLocal, OpConflictForceDownload:
			action.Fingerprint = remoteByPath[p].Fingerprint
		}
		actions = append(actions, action)
	}

	return actions
}

// detectLocalMoves matches local paths that vanished this pass (present
// in baseline, absent from the current scan) against newly-appeared
// local paths with no baseline entry, by exact fingerprint, reusing
// MoveIndex so a rename/move is recognized instead of a delete+create.
func (r *Reconciler) detectLocalMoves(byPath map[string]LocalEntry, baseline map[string]Baseline) ([]move, map[string]ChangeKind) {
	kinds := make(map[string]ChangeKind)

	var vanishedNodes []*model.LocalNode
	pathOf := make(map[*model.LocalNode]string)
	for p, b := range baseline {
		if _, ok := byPath[p]; !ok {
			fp := b.LocalFP
			n := &model.LocalNode{Fingerprint: &fp}
			vanishedNodes = append(vanishedNodes, n)
			pathOf[n] = p
		}
	}
	idx := NewMoveIndex(vanishedNodes)

	var fresh []string
	for p, e := range byPath {
		b, hasBase := baseline[p]
		if !hasBase {
			fresh = append(fresh, p)
			continue
		}
		if e.Fingerprint.EqualContent(b.LocalFP) {
			kinds[p] = Unchanged
		} else {
			kinds[p] = Modified
		}
	}

	var moves []move
	matched := make(map[*model.LocalNode]bool)
	for _, p := range fresh {
		if origin, ok := idx.MatchMove(byPath[p].Fingerprint); ok {
			idx.Consume(origin)
			moves = append(moves, move{from: pathOf[origin], to: p})
			matched[origin] = true
			continue
		}
		kinds[p] = Modified
	}
	for _, n := range vanishedNodes {
		if !matched[n] {
			kinds[pathOf[n]] = Deleted
		}
	}
	return moves, kinds
}

// detectRemoteMoves mirrors detectLocalMoves for the remote side.
// engine.Sync feeds Pass a full remote listing every pass, with no
// handle continuity between passes, so remote moves are found with the
// same fingerprint-match heuristic.
func (r *Reconciler) detectRemoteMoves(byPath map[string]RemoteEntry, baseline map[string]Baseline) ([]move, map[string]ChangeKind) {
	kinds := make(map[string]ChangeKind)

	var vanishedNodes []*model.LocalNode
	pathOf := make(map[*model.LocalNode]string)
	for p, b := range baseline {
		if _, ok := byPath[p]; !ok {
			fp := b.RemoteFP
			n := &model.LocalNode{Fingerprint: &fp}
			vanishedNodes = append(vanishedNodes, n)
			pathOf[n] = p
		}
	}
	idx := NewMoveIndex(vanishedNodes)

	var fresh []string
	for p, e := range byPath {
		b, hasBase := baseline[p]
		if !hasBase {
			fresh = append(fresh, p)
			continue
		}
		if e.Fingerprint.EqualContent(b.RemoteFP) {
			kinds[p] = Unchanged
		} else {
			kinds[p] = Modified
		}
	}

	var moves []move
	matched := make(map[*model.LocalNode]bool)
	for _, p := range fresh {
		if origin, ok := idx.MatchMove(byPath[p].Fingerprint); ok {
			idx.Consume(origin)
			moves = append(moves, move{from: pathOf[origin], to: p})
			matched[origin] = true
			continue
		}
		kinds[p] = Modified
	}
	for _, n := range vanishedNodes {
		if !matched[n] {
			kinds[pathOf[n]] = Deleted
		}
	}
	return moves, kinds
}

// resolvePathCollisions finds baseline paths that both sides moved to
// different destinations this pass (decisionTable's Moved/Moved cell)
// and applies the spec.md §4.6 path-collision tiebreak to each via
// PathCollisionWinner. Without this, the plain localMoves/remoteMoves
// loops in Pass would let whichever side happens to be processed first
// win by marking both paths handled, leaving the other side's move
// permanently unconverged. The returned actions carry
// OpComparePathsPickOne; the returned set is every path (the shared
// baseline origin and both destinations) that must be excluded from
// the ordinary move loops and the decision table for this pass.
func (r *Reconciler) resolvePathCollisions(localMoves, remoteMoves []move, localByPath map[string]LocalEntry, remoteByPath map[string]RemoteEntry) ([]Action, map[string]bool) {
	remoteMoveByFrom := make(map[string]move, len(remoteMoves))
	for _, mv := range remoteMoves {
		remoteMoveByFrom[mv.from] = mv
	}

	var actions []Action
	handled := make(map[string]bool)
	for _, lmv := range localMoves {
		rmv, ok := remoteMoveByFrom[lmv.from]
		if !ok || rmv.to == lmv.to {
			continue
		}
		localParent, _ := parentAndName(lmv.to)
		remoteParent, _ := parentAndName(rmv.to)

		action := Action{Op: OpComparePathsPickOne}
		if PathCollisionWinner(localParent, remoteParent) {
			action.LocalWins = true
			action.RelPath = lmv.to
			action.FromPath = rmv.to
			action.Node = r.nodeFor(lmv.to, localByPath[lmv.to], remoteByPath[lmv.to])
			action.Fingerprint = localByPath[lmv.to].Fingerprint
		} else {
			action.LocalWins = false
			action.RelPath = rmv.to
			action.FromPath = lmv.to
			action.Node = r.nodeFor(rmv.to, localByPath[rmv.to], remoteByPath[rmv.to])
			action.Fingerprint = remoteByPath[rmv.to].Fingerprint
		}
		actions = append(actions, action)

		handled[lmv.from] = true
		handled[lmv.to] = true
		handled[rmv.to] = true
	}
	return actions, handled
}

// nodeFor finds or creates the shadow tree node for relPath, creating
// intermediate folder nodes as needed, and stamps its current
// Fingerprint/RemoteHandle pairing from this pass's observations.
func (r *Reconciler) nodeFor(relPath string, local LocalEntry, remote RemoteEntry) *model.LocalNode {
	parts := strings.Split(relPath, "/")
	isDir := local.IsDir || remote.IsDir

	parent := r.Tree.Root
	var node *model.LocalNode
	for i, name := range parts {
		child, ok := r.Tree.ChildByName(parent, name)
		if !ok {
			typ := model.NodeFolder
			if i == len(parts)-1 && !isDir {
				typ = model.NodeFile
			}
			child = r.Tree.NewChild(parent, typ, name, name)
			r.Tree.Insert(parent, child)
		}
		node = child
		parent = child
	}

	if local.RelPath != "" {
		fp := local.Fingerprint
		node.Fingerprint = &fp
	}
	if remote.RelPath != "" {
		node.RemoteHandle = remote.Handle
		node.RemoteHandleValid = true
	}
	return node
}

// contentMatches reports whether relPath's local content hashes to
// remoteMD5. It is the only comparison that can confirm two diverged
// sides hold identical bytes; it answers false (not "unknown") whenever
// HashLocal is unset or remoteMD5 is empty, leaving ResolveConflict's
// mtime-based decision as the fallback.
func (r *Reconciler) contentMatches(relPath, remoteMD5 string) bool {
	if r.HashLocal == nil || remoteMD5 == "" {
		return false
	}
	h, err := r.HashLocal(relPath)
	if err != nil {
		return false
	}
	return h == remoteMD5
}

// detectClashes groups this pass's local and remote siblings by parent
// directory and feeds each group through the Clashes registry. It reads
// from the raw scan slices rather than localByPath/remoteByPath: two
// on-disk names that canonicalize to the same cloud name (e.g. "f0" and
// the escaped "f%30", both decoding to "f0") already collapsed to one
// entry by the time indexLocal built its map, so by then the clash is
// invisible. The slices still carry both occurrences, each under the
// same decoded RelPath, so grouping by decoded leaf name here is enough
// to see the duplicate. Paths involved in an active clash are held back
// from both move detection and the decision table for this pass: with
// two or more siblings canonicalizing to the same name, there is no
// unambiguous mapping to pick a winner from, so the Reconciler waits
// for the clash to resolve itself (one side renamed or removed) rather
// than guessing.
func (r *Reconciler) detectClashes(locals []LocalEntry, remotes []RemoteEntry) map[string]bool {
	localSiblings := make(map[string][]string)
	for _, e := range locals {
		parent, name := parentAndName(e.RelPath)
		localSiblings[parent] = append(localSiblings[parent], name)
	}
	remoteSiblings := make(map[string][]string)
	for _, e := range remotes {
		parent, name := parentAndName(e.RelPath)
		remoteSiblings[parent] = append(remoteSiblings[parent], name)
	}

	held := make(map[string]bool)
	for parent, names := range localSiblings {
		for _, n := range r.Clashes.DetectClashes(parent, SideLocal, names) {
			held[joinRel(parent, n)] = true
		}
	}
	for parent, names := range remoteSiblings {
		for _, n := range r.Clashes.DetectClashes(parent, SideRemote, names) {
			held[joinRel(parent, n)] = true
		}
	}
	return held
}

func parentAndName(relPath string) (string, string) {
	idx := strings.LastIndex(relPath, "/")
	if idx < 0 {
		return "", relPath
	}
	return relPath[:idx], relPath[idx+1:]
}

func joinRel(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

func indexLocal(entries []LocalEntry) map[string]LocalEntry {
	m := make(map[string]LocalEntry, len(entries))
	for _, e := range entries {
		m[e.RelPath] = e
	}
	return m
}

func indexRemote(entries []RemoteEntry) map[string]RemoteEntry {
	m := make(map[string]RemoteEntry, len(entries))
	for _, e := range entries {
		m[e.RelPath] = e
	}
	return m
}

func unionPaths(locals map[string]LocalEntry, remotes map[string]RemoteEntry, baseline map[string]Baseline) []string {
	seen := make(map[string]bool, len(locals)+len(remotes)+len(baseline))
	for p := range locals {
		seen[p] = true
	}
	for p := range remotes {
		seen[p] = true
	}
	for p := range baseline {
		seen[p] = true
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
