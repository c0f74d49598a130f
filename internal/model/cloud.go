package model

// CloudNode is a local mirror of one node in the external cloud tree,
// carrying only the attributes the sync engine needs.
type CloudNode struct {
	Handle       uint64
	ParentHandle uint64
	Type         NodeType
	Name         string
	Fingerprint  *Fingerprint // files only
	Owner        string
	Attrs        map[string]string
}

// RRAttrKey is the cloud attribute holding the base64-encoded handle of
// a node's original parent, stamped when the node is moved to the cloud
// rubbish bin so a later undelete can restore it (spec.md §4.6.4).
const RRAttrKey = "rr"

// SetRestoreParent stamps the rr attribute with the base64 encoding of
// originalParent, called when n is moved into cloud rubbish.
func (n *CloudNode) SetRestoreParent(encodedHandle string) {
	if n.Attrs == nil {
		n.Attrs = make(map[string]string)
	}
	n.Attrs[RRAttrKey] = encodedHandle
}

// ClearRestoreParent removes the rr attribute, called when n is moved
// back out of rubbish.
func (n *CloudNode) ClearRestoreParent() {
	delete(n.Attrs, RRAttrKey)
}

// RestoreParent returns the stamped rr attribute and whether it is set.
func (n *CloudNode) RestoreParent() (string, bool) {
	v, ok := n.Attrs[RRAttrKey]
	return v, ok
}
