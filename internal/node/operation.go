package node

import (
	"context"
	"errors"
	"fmt"

	"chordring/internal/domain"
	"chordring/internal/logger"
)

// ErrLookupFailed is returned by FindSuccessor when the hop ceiling is
// reached without resolving the query — a safety net against pathological
// routing loops during churn.
var ErrLookupFailed = errors.New("lookup failed: hop ceiling reached")

// Space returns the identifier space configuration.
func (n *Node) Space() domain.Space {
	return n.rt.Space()
}

// Self returns this node's own identity.
func (n *Node) Self() domain.NodeRef {
	return n.rt.Self()
}

// Predecessor returns the currently known predecessor, or nil.
func (n *Node) Predecessor() *domain.NodeRef {
	return n.rt.GetPredecessor()
}

// SuccessorList returns a snapshot of the successor cache.
func (n *Node) SuccessorList() []*domain.NodeRef {
	return n.rt.SuccessorList()
}

// FingerList returns a snapshot of the non-nil finger table entries.
func (n *Node) FingerList() []*domain.NodeRef {
	return n.rt.FingerList()
}

// IsValidID reports whether id is a well-formed identifier in this node's
// space.
func (n *Node) IsValidID(id []byte) error {
	return n.rt.Space().IsValidID(id)
}

// maxHops bounds findSuccessor recursion at 2*M, a safety ceiling against
// pathological routing loops during churn.
func (n *Node) maxHops() int {
	return 2 * n.rt.Space().Bits
}

// FindSuccessor resolves the node responsible for target: the live node
// whose id is the smallest id greater than or equal to target on the ring.
//
// If target already falls in (local.id, successor.id], the local successor
// is the answer. Otherwise the query is forwarded to the closest preceding
// finger, carrying the caller's original target id forward unchanged — a
// forwarded hop never substitutes the forwarding node's own id for the
// query it is relaying.
func (n *Node) FindSuccessor(ctx context.Context, target domain.ID, hops int) (int, domain.NodeRef, error) {
	if hops > n.maxHops() {
		return hops, domain.NodeRef{}, ErrLookupFailed
	}

	self := n.rt.Self()
	succ := n.rt.FirstSuccessor()
	if succ == nil {
		return hops, self, nil
	}
	if domain.IsIdInRange(target, self.ID, succ.ID) {
		return hops, *succ, nil
	}

	next := n.closestPrecedingFinger(ctx, target)
	if next.Equal(self) {
		// No live candidate closer than ourselves: we are the best answer
		// we can give, which terminates the recursion.
		return hops, *succ, nil
	}

	rpcCtx, cancel := n.callCtx(ctx)
	defer cancel()
	respHops, resNode, err := n.cp.FindSuccessor(rpcCtx, next, target, hops+1)
	if err != nil {
		n.lgr.Warn("FindSuccessor: forward failed",
			logger.F("target", target.ToHexString(true)),
			logger.FNode("forwarded_to", next),
			logger.F("err", err.Error()))
		return hops, domain.NodeRef{}, fmt.Errorf("findSuccessor: forwarding to %s: %w", next.Addr(), err)
	}
	return respHops, resNode, nil
}

// closestPrecedingFinger scans the finger table from the highest index
// downward for the node that makes the largest safe leap toward target,
// probing each candidate for liveness before committing to it. It falls
// back to the successor cache, and finally to the local node itself.
func (n *Node) closestPrecedingFinger(ctx context.Context, target domain.ID) domain.NodeRef {
	self := n.rt.Self()

	for i := n.rt.NumFingers() - 1; i >= 0; i-- {
		c := n.rt.GetFinger(i)
		if c == nil || c.Equal(self) {
			continue
		}
		if !domain.FingerInRange(c.ID, self.ID, target) {
			continue
		}
		if n.probe(ctx, *c) {
			return *c
		}
	}

	for i := 0; i < n.rt.SuccListSize(); i++ {
		c := n.rt.GetSuccessor(i)
		if c == nil || c.Equal(self) {
			continue
		}
		if !domain.FingerInRange(c.ID, self.ID, target) {
			continue
		}
		if n.probe(ctx, *c) {
			return *c
		}
	}

	return self
}

// probe is a cheap liveness check used before forwarding a lookup to a
// candidate finger or successor.
func (n *Node) probe(ctx context.Context, peer domain.NodeRef) bool {
	rpcCtx, cancel := n.callCtx(ctx)
	defer cancel()
	return n.cp.Ping(rpcCtx, peer) == nil
}

// Notify is invoked by a remote node that believes it may be this node's
// predecessor. Idempotent and safe against repeated or out-of-order
// callers.
func (n *Node) Notify(candidate domain.NodeRef) {
	self := n.rt.Self()
	pred := n.rt.GetPredecessor()

	if pred == nil {
		n.rt.SetPredecessor(&candidate)
		n.lgr.Debug("Notify: predecessor adopted (was null)", logger.FNode("candidate", candidate))
		return
	}
	if domain.IsIdInRange(candidate.ID, pred.ID, self.ID) {
		n.rt.SetPredecessor(&candidate)
		n.lgr.Debug("Notify: predecessor advanced", logger.FNode("candidate", candidate), logger.FNode("previous", *pred))
		return
	}
	n.lgr.Debug("Notify: candidate ignored, out of range", logger.FNode("candidate", candidate))
}

// Join asks seed to resolve this node's own identifier and adopts the
// response as the new successor. Does not touch predecessor: the existing
// predecessor of the new successor will learn about this node through
// notify.
func (n *Node) Join(ctx context.Context, seed domain.NodeRef) bool {
	n.rt.SetSeed(seed)

	probeCtx, cancel := n.callCtx(ctx)
	if err := n.cp.Ping(probeCtx, seed); err != nil {
		cancel()
		n.lgr.Warn("Join: seed unreachable", logger.FNode("seed", seed), logger.F("err", err.Error()))
		return false
	}
	cancel()

	self := n.rt.Self()
	rpcCtx, cancel := n.callCtx(ctx)
	defer cancel()
	_, succ, err := n.cp.FindSuccessor(rpcCtx, seed, self.ID, 0)
	if err != nil {
		n.lgr.Warn("Join: findSuccessor against seed failed", logger.FNode("seed", seed), logger.F("err", err.Error()))
		return false
	}

	n.rt.SetSuccessor(0, &succ)
	n.lgr.Info("Join: joined ring", logger.FNode("seed", seed), logger.FNode("successor", succ))
	return true
}
