package node

import (
	"context"
	"errors"
	"sync"
	"testing"

	"chordring/internal/domain"
	"chordring/internal/routingtable"
)

// errUnreachable stands in for client.ErrUnreachable without pulling in the
// real HTTP client: the scenario tests below never touch a socket.
var errUnreachable = errors.New("fake network: peer unreachable")

// fakeNetwork is an in-process PeerClient implementation shared by every
// Node under test: it looks the target peer up in its own registry and
// calls straight into that Node's exported methods, simulating an RPC
// without any transport. Marking an address dead makes every call to it
// fail, simulating a crashed or partitioned peer.
type fakeNetwork struct {
	mu    sync.Mutex
	nodes map[string]*Node
	dead  map[string]bool
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{nodes: make(map[string]*Node), dead: make(map[string]bool)}
}

func (f *fakeNetwork) register(n *Node) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nodes[n.Self().Addr()] = n
}

func (f *fakeNetwork) setDead(addr string, dead bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dead[addr] = dead
}

func (f *fakeNetwork) lookup(peer domain.NodeRef) (*Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dead[peer.Addr()] {
		return nil, errUnreachable
	}
	n, ok := f.nodes[peer.Addr()]
	if !ok {
		return nil, errUnreachable
	}
	return n, nil
}

func (f *fakeNetwork) FindSuccessor(ctx context.Context, peer domain.NodeRef, target domain.ID, hops int) (int, domain.NodeRef, error) {
	n, err := f.lookup(peer)
	if err != nil {
		return 0, domain.NodeRef{}, err
	}
	return n.FindSuccessor(ctx, target, hops)
}

func (f *fakeNetwork) GetPredecessor(ctx context.Context, peer domain.NodeRef) (*domain.NodeRef, error) {
	n, err := f.lookup(peer)
	if err != nil {
		return nil, err
	}
	return n.Predecessor(), nil
}

func (f *fakeNetwork) GetSuccessors(ctx context.Context, peer domain.NodeRef) ([]*domain.NodeRef, error) {
	n, err := f.lookup(peer)
	if err != nil {
		return nil, err
	}
	return n.SuccessorList(), nil
}

func (f *fakeNetwork) Notify(ctx context.Context, peer domain.NodeRef, self domain.NodeRef) error {
	n, err := f.lookup(peer)
	if err != nil {
		return err
	}
	n.Notify(self)
	return nil
}

func (f *fakeNetwork) Ping(ctx context.Context, peer domain.NodeRef) error {
	_, err := f.lookup(peer)
	return err
}

func newTestNode(t *testing.T, net *fakeNetwork, sp domain.Space, host string, port int) *Node {
	t.Helper()
	self := domain.NewNodeRef(sp, host, port)
	rt := routingtable.New(self, sp, sp.SuccListSize)
	n := New(rt, net, 0)
	net.register(n)
	return n
}

// S6: notify's predecessor-update policy — adopt when null, advance when
// the candidate falls in (current predecessor, self], ignore anything else. Ids are constructed explicitly (0x80 self, ring
// positions chosen by hand) so every case is deterministic.
func TestNotify_PolicySequence(t *testing.T) {
	sp, err := domain.NewSpace(8, 3)
	net := newFakeNetwork()
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	selfRef := domain.NodeRef{Host: "self", Port: 1, ID: domain.ID{0x80}}
	rt := routingtable.New(selfRef, sp, sp.SuccListSize)
	self := New(rt, net, 0)
	net.register(self)

	if got := self.Predecessor(); got != nil {
		t.Fatalf("fresh node should have no predecessor, got %v", got)
	}

	// First candidate: adopted unconditionally because predecessor is null.
	first := domain.NodeRef{Host: "cand-a", Port: 1, ID: domain.ID{0x40}}
	self.Notify(first)
	if got := self.Predecessor(); got == nil || !got.Equal(first) {
		t.Fatalf("Notify did not adopt the first candidate when predecessor was null: got %v", got)
	}

	// Out of (predecessor, self] = (0x40, 0x80]: must be ignored.
	outOfRange := domain.NodeRef{Host: "cand-out", Port: 1, ID: domain.ID{0x20}}
	self.Notify(outOfRange)
	if got := self.Predecessor(); got == nil || !got.Equal(first) {
		t.Fatalf("Notify replaced predecessor with an out-of-range candidate: got %v", got)
	}

	// Inside (0x40, 0x80]: must advance the predecessor.
	closer := domain.NodeRef{Host: "cand-closer", Port: 1, ID: domain.ID{0x60}}
	self.Notify(closer)
	if got := self.Predecessor(); got == nil || !got.Equal(closer) {
		t.Fatalf("Notify did not advance predecessor to a strictly closer candidate: got %v", got)
	}
}

// S3: two-node join convergence. After B joins A and one stabilization
// round runs on each side, the pair forms a consistent 2-node ring: each
// is the other's successor and predecessor.
func TestJoin_TwoNodeConvergence(t *testing.T) {
	sp, err := domain.NewSpace(16, 3)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	ctx := context.Background()
	net := newFakeNetwork()

	a := newTestNode(t, net, sp, "node-a", 5000)
	b := newTestNode(t, net, sp, "node-b", 5001)

	if ok := b.Join(ctx, a.Self()); !ok {
		t.Fatalf("Join against a solo seed should succeed")
	}
	if succ := b.SuccessorList()[0]; succ == nil || !succ.Equal(a.Self()) {
		t.Fatalf("after Join, B's successor = %v, want A", succ)
	}

	// One stabilization round on each side, B first (so A learns about B),
	// then A (so A promotes B to successor and B learns A as predecessor).
	b.stabilizeSuccessors(ctx)
	a.stabilizeSuccessors(ctx)

	aSucc := a.SuccessorList()[0]
	bSucc := b.SuccessorList()[0]
	aPred := a.Predecessor()
	bPred := b.Predecessor()

	if aSucc == nil || !aSucc.Equal(b.Self()) {
		t.Fatalf("A's successor = %v, want B", aSucc)
	}
	if bSucc == nil || !bSucc.Equal(a.Self()) {
		t.Fatalf("B's successor = %v, want A", bSucc)
	}
	if aPred == nil || !aPred.Equal(b.Self()) {
		t.Fatalf("A's predecessor = %v, want B", aPred)
	}
	if bPred == nil || !bPred.Equal(a.Self()) {
		t.Fatalf("B's predecessor = %v, want A", bPred)
	}
}

// S4: three-node convergence. Three nodes are wired up front into the
// correct successor-cache topology (as stabilization would eventually
// produce), and a lookup originating at the first node is verified to
// resolve via exactly one forwarded hop to the correct owner.
func TestFindSuccessor_ThreeNodeRing(t *testing.T) {
	sp, err := domain.NewSpace(8, 3)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	ctx := context.Background()
	net := newFakeNetwork()

	mkRef := func(name string, id byte) domain.NodeRef {
		return domain.NodeRef{Host: name, Port: 1, ID: domain.ID{id}}
	}
	a := mkRef("node-a", 0x10)
	b := mkRef("node-b", 0x50)
	c := mkRef("node-c", 0x90)

	build := func(self domain.NodeRef, succs [3]domain.NodeRef, pred domain.NodeRef) *Node {
		rt := routingtable.New(self, sp, sp.SuccListSize)
		rt.ReplaceSuccessors([]*domain.NodeRef{&succs[0], &succs[1], &succs[2]})
		rt.SetPredecessor(&pred)
		n := New(rt, net, 0)
		net.register(n)
		return n
	}

	nodeA := build(a, [3]domain.NodeRef{b, c, a}, c)
	build(b, [3]domain.NodeRef{c, a, b}, a)
	build(c, [3]domain.NodeRef{a, b, c}, b)

	// 0x70 is owned by C: it falls in (B, C] = (0x50, 0x90].
	target := domain.ID{0x70}
	hops, succ, err := nodeA.FindSuccessor(ctx, target, 0)
	if err != nil {
		t.Fatalf("FindSuccessor: %v", err)
	}
	if !succ.Equal(c) {
		t.Fatalf("FindSuccessor(0x70) starting at A = %v, want C", succ)
	}
	if hops != 1 {
		t.Fatalf("expected exactly one forwarded hop (A -> B -> C's answer), got hops=%d", hops)
	}
}

// S5: successor failure and cache repair. When successor-cache slot 0 is
// dead, recoverSuccessor promotes the next live entry, notifies it, and
// refreshes the cache from it.
func TestRecoverSuccessor_PromotesNextLiveEntry(t *testing.T) {
	sp, err := domain.NewSpace(8, 3)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	ctx := context.Background()
	net := newFakeNetwork()

	a := newTestNode(t, net, sp, "node-a", 5000)
	b := newTestNode(t, net, sp, "node-b", 5001)
	c := newTestNode(t, net, sp, "node-c", 5002)

	bRef, cRef := b.Self(), c.Self()
	a.rt.ReplaceSuccessors([]*domain.NodeRef{&bRef, &cRef, nil})
	net.setDead(bRef.Addr(), true)

	a.recoverSuccessor(ctx)

	got := a.SuccessorList()[0]
	if got == nil || !got.Equal(cRef) {
		t.Fatalf("recoverSuccessor promoted %v, want C", got)
	}
	pred := c.Predecessor()
	if pred == nil || !pred.Equal(a.Self()) {
		t.Fatalf("recoverSuccessor should have notified the promoted successor, C's predecessor = %v, want A", pred)
	}
}

// When every successor-cache entry is dead, recoverSuccessor gives up on
// the cache and falls back to rejoining the seed.
func TestRecoverSuccessor_FallsBackToSeedWhenCacheExhausted(t *testing.T) {
	sp, err := domain.NewSpace(8, 3)
	if err != nil {
		t.Fatalf("NewSpace: %v", err)
	}
	ctx := context.Background()
	net := newFakeNetwork()

	a := newTestNode(t, net, sp, "node-a", 5000)
	seed := newTestNode(t, net, sp, "node-seed", 5099)

	bRef := domain.NewNodeRef(sp, "node-b", 5001)
	cRef := domain.NewNodeRef(sp, "node-c", 5002)
	a.rt.ReplaceSuccessors([]*domain.NodeRef{&bRef, &cRef, nil})
	net.setDead(bRef.Addr(), true)
	net.setDead(cRef.Addr(), true)
	a.rt.SetSeed(seed.Self())

	a.recoverSuccessor(ctx)

	got := a.SuccessorList()[0]
	if got == nil || !got.Equal(seed.Self()) {
		t.Fatalf("with an exhausted cache, recoverSuccessor should rejoin the seed; successor = %v, want seed", got)
	}
}
