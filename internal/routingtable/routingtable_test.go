package routingtable

import (
	"testing"

	"chordring/internal/domain"
)

func newTestSpace(t *testing.T) domain.Space {
	t.Helper()
	sp, err := domain.NewSpace(8, 3)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	return sp
}

func TestNew_SoloRingInitialization(t *testing.T) {
	sp := newTestSpace(t)
	self := domain.NewNodeRef(sp, "localhost", 5000)
	rt := New(self, sp, sp.SuccListSize)

	if !rt.Self().Equal(self) {
		t.Fatalf("Self() = %v, want %v", rt.Self(), self)
	}
	if !rt.Seed().Equal(self) {
		t.Fatalf("a freshly created table should seed itself, got %v", rt.Seed())
	}
	if pred := rt.GetPredecessor(); pred != nil {
		t.Fatalf("a solo ring should have no predecessor, got %v", pred)
	}
	for i := 0; i < rt.SuccListSize(); i++ {
		succ := rt.GetSuccessor(i)
		if succ == nil || !succ.Equal(self) {
			t.Fatalf("successor[%d] = %v, want self (%v)", i, succ, self)
		}
	}
	for i := 0; i < rt.NumFingers(); i++ {
		f := rt.GetFinger(i)
		if f == nil || !f.Equal(self) {
			t.Fatalf("finger[%d] = %v, want self (%v)", i, f, self)
		}
		wantStart := sp.FingerStart(self.ID, i)
		if !rt.FingerStart(i).Equal(wantStart) {
			t.Fatalf("FingerStart(%d) = %s, want %s", i, rt.FingerStart(i).ToHexString(false), wantStart.ToHexString(false))
		}
	}
	if rt.HasReJoinRun() {
		t.Fatalf("hasReJoinRun should start false")
	}
}

func TestSetAndGetPredecessor(t *testing.T) {
	sp := newTestSpace(t)
	self := domain.NewNodeRef(sp, "localhost", 5000)
	rt := New(self, sp, sp.SuccListSize)

	other := domain.NewNodeRef(sp, "localhost", 5001)
	rt.SetPredecessor(&other)
	got := rt.GetPredecessor()
	if got == nil || !got.Equal(other) {
		t.Fatalf("GetPredecessor() = %v, want %v", got, other)
	}

	rt.SetPredecessor(nil)
	if got := rt.GetPredecessor(); got != nil {
		t.Fatalf("GetPredecessor() after clear = %v, want nil", got)
	}
}

func TestSetSuccessor_PanicsOnInvalidNodeRef(t *testing.T) {
	sp := newTestSpace(t)
	self := domain.NewNodeRef(sp, "localhost", 5000)
	rt := New(self, sp, sp.SuccListSize)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected SetSuccessor to panic on a NodeRef with an empty host")
		}
	}()
	rt.SetSuccessor(0, &domain.NodeRef{Host: "", Port: 5001})
}

func TestReplaceSuccessors_RejectsLengthMismatch(t *testing.T) {
	sp := newTestSpace(t)
	self := domain.NewNodeRef(sp, "localhost", 5000)
	rt := New(self, sp, sp.SuccListSize)

	before := rt.SuccessorList()
	rt.ReplaceSuccessors([]*domain.NodeRef{&self}) // wrong length: 1 vs SuccListSize=3
	after := rt.SuccessorList()

	for i := range before {
		if (before[i] == nil) != (after[i] == nil) {
			t.Fatalf("successor list changed despite length mismatch at index %d", i)
		}
	}
}

func TestReplaceSuccessors_AppliesInOrder(t *testing.T) {
	sp := newTestSpace(t)
	self := domain.NewNodeRef(sp, "localhost", 5000)
	rt := New(self, sp, sp.SuccListSize)

	a := domain.NewNodeRef(sp, "localhost", 5001)
	b := domain.NewNodeRef(sp, "localhost", 5002)
	rt.ReplaceSuccessors([]*domain.NodeRef{&a, &b, nil})

	list := rt.SuccessorList()
	if !list[0].Equal(a) || !list[1].Equal(b) || list[2] != nil {
		t.Fatalf("ReplaceSuccessors did not apply in order: %v", list)
	}
}

func TestNextFingerToUpdate_WrapsAroundNumFingers(t *testing.T) {
	sp := newTestSpace(t)
	self := domain.NewNodeRef(sp, "localhost", 5000)
	rt := New(self, sp, sp.SuccListSize)

	for i := 0; i < rt.NumFingers(); i++ {
		if got := rt.NextFingerToUpdate(); got != i {
			t.Fatalf("NextFingerToUpdate() = %d, want %d", got, i)
		}
		rt.AdvanceNextFingerToUpdate()
	}
	if got := rt.NextFingerToUpdate(); got != 0 {
		t.Fatalf("NextFingerToUpdate() after a full cycle = %d, want 0", got)
	}
}

func TestHasReJoinRunFlag(t *testing.T) {
	sp := newTestSpace(t)
	self := domain.NewNodeRef(sp, "localhost", 5000)
	rt := New(self, sp, sp.SuccListSize)

	rt.SetHasReJoinRun(true)
	if !rt.HasReJoinRun() {
		t.Fatalf("HasReJoinRun() = false after SetHasReJoinRun(true)")
	}
	rt.SetHasReJoinRun(false)
	if rt.HasReJoinRun() {
		t.Fatalf("HasReJoinRun() = true after SetHasReJoinRun(false)")
	}
}

func TestFingerList_OmitsNilEntries(t *testing.T) {
	sp := newTestSpace(t)
	self := domain.NewNodeRef(sp, "localhost", 5000)
	rt := New(self, sp, sp.SuccListSize)

	rt.ReplaceFinger(0, nil)
	list := rt.FingerList()
	if len(list) != rt.NumFingers()-1 {
		t.Fatalf("FingerList() returned %d entries, want %d (one cleared)", len(list), rt.NumFingers()-1)
	}
}
