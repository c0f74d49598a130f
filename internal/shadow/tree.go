// Package shadow implements the LocalNode shadow tree: a persistent
// in-memory mirror of one synced subtree, pairing filesystem entries
// with cloud nodes by identity rather than by path (spec.md §4.3).
package shadow

import (
	"github.com/shuryanc/cloudsync/internal/model"
)

// Tree owns every LocalNode for one sync root as a single arena, so
// that the parent/children back-pointers inside model.LocalNode have a
// lifetime bounded by the Tree itself (spec.md §9 "arena-per-sync").
type Tree struct {
	BackupID uint64
	Root     *model.LocalNode
	arena    []*model.LocalNode
}

// New creates an empty shadow tree rooted at an unnamed folder node.
func New(backupID uint64) *Tree {
	root := model.NewLocalNode(model.NodeFolder, "", "", nil)
	t := &Tree{BackupID: backupID, Root: root}
	t.arena = append(t.arena, root)
	return t
}

// NewChild allocates a new LocalNode under parent and registers it in
// the arena. It does not insert the node into parent.Children; callers
// do that explicitly via Insert so renames and moves can reuse the same
// allocation.
func (t *Tree) NewChild(parent *model.LocalNode, typ model.NodeType, name, localName string) *model.LocalNode {
	n := model.NewLocalNode(typ, name, localName, parent)
	t.arena = append(t.arena, n)
	return n
}

// Insert adds child under parent, keyed by its cloud-canonical name
// (I2).
func (t *Tree) Insert(parent, child *model.LocalNode) {
	child.Parent = parent
	parent.Children[child.Name] = child
}

// Remove detaches child from its parent's Children map. The node stays
// allocated in the arena (it may still be referenced, e.g. mid-transfer)
// but is no longer reachable from a tree walk.
func (t *Tree) Remove(child *model.LocalNode) {
	if child.Parent != nil {
		delete(child.Parent.Children, child.Name)
	}
}

// ChildByName looks up a child of parent by its cloud-canonical name.
// This, not a path string, is the shadow tree's sole lookup primitive
// (spec.md §4.3).
func (t *Tree) ChildByName(parent *model.LocalNode, name string) (*model.LocalNode, bool) {
	if parent == nil || parent.Children == nil {
		return nil, false
	}
	c, ok := parent.Children[name]
	return c, ok
}

// Walk performs a depth-first traversal of the tree, calling fn for
// every node including the root. If fn returns false, that subtree's
// children are not visited.
func (t *Tree) Walk(fn func(n *model.LocalNode) bool) {
	var walk func(n *model.LocalNode)
	walk = func(n *model.LocalNode) {
		if !fn(n) {
			return
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(t.Root)
}

// CheckInvariants walks the whole tree and validates I1-I4 at every
// folder node, returning the first violation found.
func (t *Tree) CheckInvariants() error {
	var firstErr error
	t.Walk(func(n *model.LocalNode) bool {
		if firstErr != nil {
			return false
		}
		if err := n.CheckInvariants(); err != nil {
			firstErr = err
			return false
		}
		return true
	})
	return firstErr
}

// Size reports the number of live (non-tombstoned) nodes reachable from
// the root, root excluded.
func (t *Tree) Size() int {
	n := 0
	t.Walk(func(node *model.LocalNode) bool {
		if node != t.Root && !node.Deleted {
			n++
		}
		return true
	})
	return n
}
