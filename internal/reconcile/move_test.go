package reconcile

import (
	"testing"
	"time"

	"github.com/shuryanc/cloudsync/internal/model"
)

func TestMatchMoveUniqueFingerprint(t *testing.T) {
	n := &model.LocalNode{Name: "f", Fingerprint: &model.Fingerprint{Size: 1, MTime: time.Now(), CRC: [4]uint32{1, 2, 3, 4}}}
	idx := NewMoveIndex([]*model.LocalNode{n})

	got, ok := idx.MatchMove(*n.Fingerprint)
	if !ok || got != n {
		t.Fatalf("expected unique match, got %v ok=%v", got, ok)
	}
}

func TestMatchMoveAmbiguousIsRejected(t *testing.T) {
	fp := model.Fingerprint{Size: 1, MTime: time.Now(), CRC: [4]uint32{1, 2, 3, 4}}
	a := &model.LocalNode{Name: "a", Fingerprint: &fp}
	b := &model.LocalNode{Name: "b", Fingerprint: &fp}
	idx := NewMoveIndex([]*model.LocalNode{a, b})

	_, ok := idx.MatchMove(fp)
	if ok {
		t.Fatalf("expected ambiguous match to be rejected")
	}
}

func TestConsumeRemovesFromIndex(t *testing.T) {
	n := &model.LocalNode{Name: "f", Fingerprint: &model.Fingerprint{Size: 1, CRC: [4]uint32{9, 9, 9, 9}}}
	idx := NewMoveIndex([]*model.LocalNode{n})
	idx.Consume(n)
	if _, ok := idx.MatchMove(*n.Fingerprint); ok {
		t.Fatalf("expected no match after consume")
	}
}
