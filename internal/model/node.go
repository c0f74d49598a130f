package model

import "fmt"

// NodeType distinguishes files from folders, on both sides of a sync.
type NodeType int

const (
	NodeFile NodeType = iota
	NodeFolder
)

// LocalNode pairs one live entry in the synced subtree with its cloud
// counterpart, identified by name within a parent rather than by path.
// It is the sole place a filesystem path and a cloud handle meet; every
// action the Reconciler emits refers to a LocalNode.
//
// LocalNodes are owned by a per-sync arena (see internal/shadow); a
// LocalNode never outlives the arena that created it, which is how the
// parent/children back-pointers avoid becoming a GC-visible cycle
// problem in practice (they still point at each other, but the arena
// bounds their lifetime as a unit).
type LocalNode struct {
	Type     NodeType
	Name     string // cloud-canonical name
	LocalName string // filesystem-canonical name, may differ (see internal/canon)

	Parent   *LocalNode
	Children map[string]*LocalNode // keyed by Name (I2)

	Fingerprint *Fingerprint // nil for folders or not-yet-scanned files

	RemoteHandle      uint64
	RemoteHandleValid bool

	Deleted bool // tombstone kept until both sides observed the removal

	// Clashing marks a node whose LocalName collides with a sibling's
	// after canonicalization; clashing nodes are never propagated.
	Clashing bool
}

// NewLocalNode constructs a folder or file node with an initialized
// Children map for folders.
func NewLocalNode(typ NodeType, name, localName string, parent *LocalNode) *LocalNode {
	n := &LocalNode{
		Type:      typ,
		Name:      name,
		LocalName: localName,
		Parent:    parent,
	}
	if typ == NodeFolder {
		n.Children = make(map[string]*LocalNode)
	}
	return n
}

// Path reconstructs the cloud-canonical path by walking parents. The
// transfer pipes, store.FromLocalNode and engine logging use it to
// address a node by path.
func (n *LocalNode) Path() string {
	if n == nil {
		return ""
	}
	if n.Parent == nil {
		return "/"
	}
	if n.Parent.Parent == nil {
		return n.Name
	}
	return n.Parent.Path() + "/" + n.Name
}

// CheckInvariants verifies I1-I4 for n and its direct children. It does
// not recurse past one level; callers walk the tree and call this at
// every node.
func (n *LocalNode) CheckInvariants() error {
	if n.Parent != nil && n.Parent.Type != NodeFolder {
		return fmt.Errorf("I1 violated: parent of %q is not a folder", n.Name)
	}
	if n.Type != NodeFolder {
		return nil
	}
	seenCloud := make(map[string]bool, len(n.Children))
	seenLocal := make(map[string]bool, len(n.Children))
	for key, child := range n.Children {
		if key != child.Name {
			return fmt.Errorf("I2 violated: child keyed %q has Name %q", key, child.Name)
		}
		if seenCloud[child.Name] {
			return fmt.Errorf("I2 violated: duplicate cloud name %q under %q", child.Name, n.Name)
		}
		seenCloud[child.Name] = true

		if child.RemoteHandleValid {
			// I3 is checked by the caller against the live CloudNode
			// mirror; here we only confirm the LocalNode side is
			// internally consistent (non-empty name).
			if child.Name == "" {
				return fmt.Errorf("I3 violated: paired node has empty name")
			}
		}
		if !child.Clashing {
			if seenLocal[child.LocalName] {
				return fmt.Errorf("I4 violated: duplicate local name %q under %q", child.LocalName, n.Name)
			}
			seenLocal[child.LocalName] = true
		}
	}
	return nil
}
