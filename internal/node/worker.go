package node

import (
	"context"
	"time"

	"chordring/internal/domain"
	"chordring/internal/logger"
)

// StabilizerIntervals configures the wall-clock periods of the four
// periodic maintenance tasks. Zero values fall back to conservative
// defaults tuned for a small cluster.
type StabilizerIntervals struct {
	UpdateFingerTable     time.Duration
	StabilizePredecessors time.Duration
	StabilizeSuccessors   time.Duration
	ReJoin                time.Duration
}

func (si StabilizerIntervals) withDefaults() StabilizerIntervals {
	if si.UpdateFingerTable <= 0 {
		si.UpdateFingerTable = time.Second
	}
	if si.StabilizePredecessors <= 0 {
		si.StabilizePredecessors = 5 * time.Second
	}
	if si.StabilizeSuccessors <= 0 {
		si.StabilizeSuccessors = 5 * time.Second
	}
	if si.ReJoin <= 0 {
		si.ReJoin = 30 * time.Second
	}
	return si
}

// Start launches the four periodic stabilizer tasks. A repeated call to
// Start stops the previous task set first.
func (n *Node) Start(ctx context.Context, intervals StabilizerIntervals) {
	n.Stop()

	intervals = intervals.withDefaults()
	runCtx, cancel := context.WithCancel(ctx)

	n.stopMu.Lock()
	n.cancel = cancel
	n.stopMu.Unlock()

	n.wg.Add(4)
	go n.runLoop(runCtx, intervals.UpdateFingerTable, n.updateFingerTable)
	go n.runLoop(runCtx, intervals.StabilizePredecessors, n.stabilizePredecessors)
	go n.runLoop(runCtx, intervals.StabilizeSuccessors, n.stabilizeSuccessors)
	go n.runLoop(runCtx, intervals.ReJoin, n.reJoin)
}

// Stop cancels all four stabilizer tasks and waits for them to quiesce.
func (n *Node) Stop() {
	n.stopMu.Lock()
	cancel := n.cancel
	n.cancel = nil
	n.stopMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	n.wg.Wait()
}

// runLoop drives one stabilizer task on a ticker. A single goroutine per
// task is what gives "serialized with itself": the task body runs to
// completion before the next tick is handled, and time.Ticker silently
// drops ticks that arrive while the previous one is still running.
func (n *Node) runLoop(ctx context.Context, interval time.Duration, task func(context.Context)) {
	defer n.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			task(ctx)
		}
	}
}

// updateFingerTable refreshes one finger entry per tick, round-robin.
func (n *Node) updateFingerTable(ctx context.Context) {
	i := n.rt.NextFingerToUpdate()
	start := n.rt.FingerStart(i)

	_, succ, err := n.FindSuccessor(ctx, start, 0)
	if err != nil {
		n.lgr.Debug("updateFingerTable: lookup failed",
			logger.F("finger_index", i),
			logger.F("start", start.ToHexString(true)),
			logger.F("err", err.Error()))
		n.rt.AdvanceNextFingerToUpdate()
		return
	}

	n.rt.ReplaceFinger(i, &succ)
	n.rt.AdvanceNextFingerToUpdate()
}

// stabilizePredecessors clears the predecessor if it no longer responds.
// Recovery is deferred to the next notify from an upstream peer.
func (n *Node) stabilizePredecessors(ctx context.Context) {
	pred := n.rt.GetPredecessor()
	if pred == nil {
		return
	}
	rpcCtx, cancel := n.callCtx(ctx)
	err := n.cp.Ping(rpcCtx, *pred)
	cancel()
	if err != nil {
		n.lgr.Warn("stabilizePredecessors: predecessor unreachable, clearing", logger.FNode("predecessor", *pred))
		n.rt.SetPredecessor(nil)
	}
}

// stabilizeSuccessors repairs successor slot 0 and refreshes the successor
// cache.
func (n *Node) stabilizeSuccessors(ctx context.Context) {
	self := n.rt.Self()
	succ := n.rt.FirstSuccessor()
	if succ == nil {
		return
	}

	rpcCtx, cancel := n.callCtx(ctx)
	x, err := n.cp.GetPredecessor(rpcCtx, *succ)
	cancel()

	if err != nil {
		n.recoverSuccessor(ctx)
		return
	}

	if x != nil && domain.IsIdInRange(x.ID, self.ID, succ.ID) {
		n.rt.SetSuccessor(0, x)
		succ = x
	}

	notifyCtx, cancel := n.callCtx(ctx)
	if nerr := n.cp.Notify(notifyCtx, *succ, self); nerr != nil {
		n.lgr.Debug("stabilizeSuccessors: notify failed", logger.FNode("successor", *succ), logger.F("err", nerr.Error()))
	}
	cancel()

	n.refreshSuccessorCache(ctx, *succ)
}

// recoverSuccessor handles an unreachable successor by scanning the
// successor cache from slot 1 onward for the first live entry; if none
// responds, it rejoins the seed. A successor that answers with no
// predecessor does not come here: stabilizeSuccessors notifies it and
// refreshes the cache from it directly.
func (n *Node) recoverSuccessor(ctx context.Context) {
	self := n.rt.Self()

	for i := 1; i < n.rt.SuccListSize(); i++ {
		cand := n.rt.GetSuccessor(i)
		if cand == nil {
			continue
		}
		rpcCtx, cancel := n.callCtx(ctx)
		err := n.cp.Ping(rpcCtx, *cand)
		cancel()
		if err != nil {
			continue
		}

		n.rt.SetSuccessor(0, cand)
		notifyCtx, cancel := n.callCtx(ctx)
		if nerr := n.cp.Notify(notifyCtx, *cand, self); nerr != nil {
			n.lgr.Debug("recoverSuccessor: notify failed", logger.FNode("candidate", *cand), logger.F("err", nerr.Error()))
		}
		cancel()
		n.refreshSuccessorCache(ctx, *cand)
		return
	}

	n.lgr.Error("recoverSuccessor: ring consistency lost, no successor cache entry responded")
	seed := n.rt.Seed()
	n.Join(ctx, seed)
}

// refreshSuccessorCache fetches s's successor cache and shifts it down by
// one, prepending s itself — the cache-refresh rule of Chord stabilization.
func (n *Node) refreshSuccessorCache(ctx context.Context, s domain.NodeRef) {
	rpcCtx, cancel := n.callCtx(ctx)
	remote, err := n.cp.GetSuccessors(rpcCtx, s)
	cancel()
	if err != nil {
		n.lgr.Debug("refreshSuccessorCache: fetch failed", logger.FNode("from", s), logger.F("err", err.Error()))
		return
	}

	size := n.rt.SuccListSize()
	newList := make([]*domain.NodeRef, size)
	newList[0] = &s
	for i := 1; i < size; i++ {
		if i-1 < len(remote) {
			newList[i] = remote[i-1]
		}
	}
	n.rt.ReplaceSuccessors(newList)
}

// reJoin checks ring consistency against the seed and re-joins if the ring
// has partitioned.
//
// The first invocation after startup only flips hasReJoinRun, as a grace
// period before the ring has had a chance to stabilize.
func (n *Node) reJoin(ctx context.Context) {
	if !n.rt.HasReJoinRun() {
		n.rt.SetHasReJoinRun(true)
		return
	}

	seed := n.rt.Seed()
	_, seedSuccessor, err := n.FindSuccessor(ctx, seed.ID, 0)
	if err != nil {
		n.lgr.Debug("reJoin: lookup failed", logger.F("err", err.Error()))
		return
	}
	if seedSuccessor.ID.Equal(seed.ID) {
		// Seed is still reachable through the ring: nothing to do.
		return
	}

	rpcCtx, cancel := n.callCtx(ctx)
	err = n.cp.Ping(rpcCtx, seed)
	cancel()
	if err != nil {
		// Seed itself is unreachable; can't tell partition from seed death.
		return
	}

	n.lgr.Error("reJoin: ring appears partitioned from seed, rejoining", logger.FNode("seed", seed))
	n.Join(ctx, seed)
}
