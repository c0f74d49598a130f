package reconcile

import "github.com/shuryanc/cloudsync/internal/model"

// MoveIndex tracks LocalNodes that disappeared from one side this pass,
// keyed by fingerprint, so a newly appeared entry with a matching
// fingerprint is recognized as a move rather than a delete+create
// (spec.md §4.6 "Move detection").
type MoveIndex struct {
	byFingerprint map[fpKey][]*model.LocalNode
}

type fpKey struct {
	size int64
	crc  [4]uint32
}

func keyOf(fp model.Fingerprint) fpKey {
	return fpKey{size: fp.Size, crc: fp.CRC}
}

// NewMoveIndex builds an index from the nodes that vanished this pass.
func NewMoveIndex(vanished []*model.LocalNode) *MoveIndex {
	idx := &MoveIndex{byFingerprint: make(map[fpKey][]*model.LocalNode)}
	for _, n := range vanished {
		if n.Fingerprint == nil {
			continue
		}
		k := keyOf(*n.Fingerprint)
		idx.byFingerprint[k] = append(idx.byFingerprint[k], n)
	}
	return idx
}

// MatchMove looks up exactly one vanished node whose fingerprint matches
// fp. If zero or more than one candidate matches, it returns (nil,
// false): an ambiguous match is treated conservatively as a
// delete+create rather than guessed at, since spec.md requires the
// match be exact and unique ("fingerprint matches exactly one existing
// LocalNode").
func (idx *MoveIndex) MatchMove(fp model.Fingerprint) (*model.LocalNode, bool) {
	candidates := idx.byFingerprint[keyOf(fp)]
	if len(candidates) != 1 {
		return nil, false
	}
	return candidates[0], true
}

// Consume removes n from the index so it cannot be matched twice within
// the same pass.
func (idx *MoveIndex) Consume(n *model.LocalNode) {
	k := keyOf(*n.Fingerprint)
	list := idx.byFingerprint[k]
	for i, c := range list {
		if c == n {
			idx.byFingerprint[k] = append(list[:i], list[i+1:]...)
			return
		}
	}
}
