// Package remote implements the Remote Delta Consumer of spec.md §4.5:
// applying the cloud server's push stream to an in-memory CloudNode
// mirror, atomically per batch.
package remote

import (
	"sync"

	"github.com/shuryanc/cloudsync/internal/model"
)

// DeltaKind identifies the mutation a Delta carries.
type DeltaKind int

const (
	DeltaAdd DeltaKind = iota
	DeltaRemove
	DeltaMove
	DeltaSetAttr
)

// Delta is one server-pushed tree mutation, identified by immutable
// handle (spec.md §4.5).
type Delta struct {
	Kind         DeltaKind
	Handle       uint64
	ParentHandle uint64 // DeltaAdd, DeltaMove
	Name         string // DeltaAdd, DeltaMove (rename)
	Node         *model.CloudNode // DeltaAdd: full node; DeltaSetAttr: new attrs/fingerprint
	// SelfOriginated marks a delta caused by this client's own RPCs
	// (upload/rename/etc.), so the Backup Controller does not treat it
	// as a foreign mutation (spec.md §4.9).
	SelfOriginated bool
	// RequestTag correlates a self-originated delta back to the request
	// that caused it, allocated by backup.Controller.Tag.
	RequestTag uint64
}

// DeltaConsumer owns the in-memory cloud tree mirror for one sync.
type DeltaConsumer struct {
	mu       sync.Mutex
	nodes    map[uint64]*model.CloudNode
	touched  []uint64 // handles marked for re-examination since last drain
}

// New creates an empty consumer.
func New() *DeltaConsumer {
	return &DeltaConsumer{nodes: make(map[uint64]*model.CloudNode)}
}

// Apply stages the whole batch into a copy-on-write overlay and swaps it
// in under one lock acquisition, so the Reconciler never observes a
// partially applied batch (spec.md §4.5 "Ordering").
func (c *DeltaConsumer) Apply(batch []Delta) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	overlay := make(map[uint64]*model.CloudNode, len(c.nodes))
	for k, v := range c.nodes {
		overlay[k] = v
	}

	var touched []uint64
	for _, d := range batch {
		switch d.Kind {
		case DeltaAdd:
			overlay[d.Handle] = d.Node
		case DeltaRemove:
			delete(overlay, d.Handle)
		case DeltaMove:
			if n, ok := overlay[d.Handle]; ok {
				n.ParentHandle = d.ParentHandle
				if d.Name != "" {
					n.Name = d.Name
				}
			}
		case DeltaSetAttr:
			if n, ok := overlay[d.Handle]; ok && d.Node != nil {
				n.Attrs = d.Node.Attrs
				n.Fingerprint = d.Node.Fingerprint
			}
		}
		touched = append(touched, d.Handle)
	}

	c.nodes = overlay
	c.touched = append(c.touched, touched...)
	return nil
}

// MarkedForReexamination drains and returns the handles touched since
// the last call.
func (c *DeltaConsumer) MarkedForReexamination() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.touched
	c.touched = nil
	return out
}

// ByHandle returns the current mirrored node for handle, if any.
func (c *DeltaConsumer) ByHandle(handle uint64) (*model.CloudNode, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.nodes[handle]
	return n, ok
}

// Children returns every node currently mirrored under parentHandle.
func (c *DeltaConsumer) Children(parentHandle uint64) []*model.CloudNode {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*model.CloudNode
	for _, n := range c.nodes {
		if n.ParentHandle == parentHandle {
			out = append(out, n)
		}
	}
	return out
}

// Snapshot returns every mirrored node, used to rebuild a full shadow
// tree after watcher/session loss forces a rescan.
func (c *DeltaConsumer) Snapshot() map[uint64]*model.CloudNode {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[uint64]*model.CloudNode, len(c.nodes))
	for k, v := range c.nodes {
		out[k] = v
	}
	return out
}
