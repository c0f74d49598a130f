package remote

import (
	"testing"

	"github.com/shuryanc/cloudsync/internal/model"
)

func TestApplyAddThenMove(t *testing.T) {
	c := New()
	err := c.Apply([]Delta{
		{Kind: DeltaAdd, Handle: 1, Node: &model.CloudNode{Handle: 1, ParentHandle: 0, Name: "a"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	n, ok := c.ByHandle(1)
	if !ok || n.Name != "a" {
		t.Fatalf("expected node 1 named a, got %v ok=%v", n, ok)
	}

	if err := c.Apply([]Delta{{Kind: DeltaMove, Handle: 1, ParentHandle: 5, Name: "b"}}); err != nil {
		t.Fatal(err)
	}
	n, _ = c.ByHandle(1)
	if n.Name != "b" || n.ParentHandle != 5 {
		t.Fatalf("move not applied: %+v", n)
	}
}

func TestMarkedForReexaminationDrains(t *testing.T) {
	c := New()
	c.Apply([]Delta{{Kind: DeltaAdd, Handle: 1, Node: &model.CloudNode{Handle: 1, Name: "a"}}})

	touched := c.MarkedForReexamination()
	if len(touched) != 1 || touched[0] != 1 {
		t.Fatalf("expected handle 1 touched, got %v", touched)
	}
	// draining again yields nothing new
	if touched2 := c.MarkedForReexamination(); len(touched2) != 0 {
		t.Fatalf("expected empty after drain, got %v", touched2)
	}
}

func TestRemoveDeletesNode(t *testing.T) {
	c := New()
	c.Apply([]Delta{{Kind: DeltaAdd, Handle: 1, Node: &model.CloudNode{Handle: 1, Name: "a"}}})
	c.Apply([]Delta{{Kind: DeltaRemove, Handle: 1}})
	if _, ok := c.ByHandle(1); ok {
		t.Fatalf("expected node 1 removed")
	}
}
