package routingtable

import (
	"chordring/internal/domain"
	"chordring/internal/logger"
	"fmt"
	"sync"
	"sync/atomic"
)

// routingEntry holds a single NodeRef pointer behind its own lock, so a read
// of one entry never blocks a write to another. This is the fine-grained,
// field-level locking the concurrency model requires: no single mutex
// guards the whole routing state.
type routingEntry struct {
	node *domain.NodeRef
	mu   sync.RWMutex
}

func (e *routingEntry) get() *domain.NodeRef {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.node
}

func (e *routingEntry) set(n *domain.NodeRef) {
	e.mu.Lock()
	e.node = n
	e.mu.Unlock()
}

// RoutingTable is the routing state of a single Chord node: its identity,
// its seed, its predecessor, its successor cache, and its finger table.
//
// It is owned by exactly one node and mutated only by that node's stabilizer
// tasks and by its notify handler; reads come from the lookup engine and
// from inbound RPC handlers. Every field that the concurrency model
// requires to be atomic is stored in its own routingEntry or guarded by its
// own lock, so no operation here ever holds a lock across an RPC.
type RoutingTable struct {
	logger logger.Logger
	space  domain.Space
	self   domain.NodeRef

	seedMu sync.RWMutex
	seed   domain.NodeRef

	predecessor *routingEntry

	succMu       sync.RWMutex
	successorList []*routingEntry
	succListSize  int

	fingerMu    sync.RWMutex
	fingerStart []domain.ID
	fingerTable []*routingEntry

	nextFingerMu       sync.Mutex
	nextFingerToUpdate int

	hasReJoinRunFlag atomic.Bool // single writer: the reJoin task
}

// New creates a routing table for self, initialized as a solo ring: every
// successor and finger entry points at self, and predecessor is null.
func New(self domain.NodeRef, space domain.Space, succListSize int, opts ...Option) *RoutingTable {
	rt := &RoutingTable{
		self:          self,
		seed:          self,
		space:         space,
		predecessor:   &routingEntry{},
		successorList: make([]*routingEntry, succListSize),
		succListSize:  succListSize,
		fingerStart:   make([]domain.ID, space.Bits),
		fingerTable:   make([]*routingEntry, space.Bits),
		logger:        &logger.NopLogger{},
	}
	for i := range rt.successorList {
		rt.successorList[i] = &routingEntry{node: &self}
	}
	for i := range rt.fingerTable {
		rt.fingerStart[i] = space.FingerStart(self.ID, i)
		rt.fingerTable[i] = &routingEntry{node: &self}
	}
	for _, opt := range opts {
		opt(rt)
	}
	rt.logger.Debug("routing table initialized", logger.FNode("self", self))
	return rt
}

// Space returns the identifier space configuration.
func (rt *RoutingTable) Space() domain.Space {
	return rt.space
}

// Self returns the local node owning this routing table.
func (rt *RoutingTable) Self() domain.NodeRef {
	return rt.self
}

// SuccListSize returns the configured size of the successor cache.
func (rt *RoutingTable) SuccListSize() int {
	return rt.succListSize
}

// Seed returns the current bootstrap peer (initially self).
func (rt *RoutingTable) Seed() domain.NodeRef {
	rt.seedMu.RLock()
	defer rt.seedMu.RUnlock()
	return rt.seed
}

// SetSeed replaces the bootstrap peer, e.g. after a successful join.
func (rt *RoutingTable) SetSeed(n domain.NodeRef) {
	rt.seedMu.Lock()
	rt.seed = n
	rt.seedMu.Unlock()
	rt.logger.Debug("SetSeed: seed updated", logger.FNode("seed", n))
}

// HasReJoinRun reports whether the reJoin task has completed its first,
// grace-period tick. Written only by the reJoin task; every other task
// leaves this field alone.
func (rt *RoutingTable) HasReJoinRun() bool {
	return rt.hasReJoinRunFlag.Load()
}

// SetHasReJoinRun flips the rejoin grace-period flag. Only the reJoin task
// calls this.
func (rt *RoutingTable) SetHasReJoinRun(v bool) {
	rt.hasReJoinRunFlag.Store(v)
}

// GetPredecessor returns the current predecessor, or nil if none is known.
func (rt *RoutingTable) GetPredecessor() *domain.NodeRef {
	node := rt.predecessor.get()
	rt.logger.Debug("GetPredecessor: predecessor retrieved", fnodePtr("predecessor", node))
	return node
}

// SetPredecessor updates the predecessor pointer. Pass nil to clear it.
func (rt *RoutingTable) SetPredecessor(node *domain.NodeRef) {
	rt.predecessor.set(node)
	rt.logger.Debug("SetPredecessor: predecessor updated", fnodePtr("predecessor", node))
}

// GetSuccessor returns the i-th entry of the successor cache, or nil if the
// index is out of range or unset.
func (rt *RoutingTable) GetSuccessor(i int) *domain.NodeRef {
	rt.succMu.RLock()
	defer rt.succMu.RUnlock()
	if i < 0 || i >= len(rt.successorList) {
		rt.logger.Warn("GetSuccessor: index out of range",
			logger.F("requested", i),
			logger.F("valid_range", fmt.Sprintf("[0..%d]", len(rt.successorList)-1)))
		return nil
	}
	return rt.successorList[i].get()
}

// FirstSuccessor is a convenience equivalent to GetSuccessor(0): the node's
// current successor.
func (rt *RoutingTable) FirstSuccessor() *domain.NodeRef {
	return rt.GetSuccessor(0)
}

// SetSuccessor updates the i-th successor cache entry. Rejects a NodeRef
// with an empty host or a zero port — an internal invariant violation, not
// a recoverable condition.
func (rt *RoutingTable) SetSuccessor(i int, node *domain.NodeRef) {
	if node != nil && (node.Host == "" || node.Port == 0) {
		panic(fmt.Sprintf("SetSuccessor: refusing to store invalid NodeRef %+v at index %d", *node, i))
	}
	rt.succMu.RLock()
	if i < 0 || i >= len(rt.successorList) {
		rt.succMu.RUnlock()
		rt.logger.Warn("SetSuccessor: index out of range",
			logger.F("requested", i),
			logger.F("valid_range", fmt.Sprintf("[0..%d]", len(rt.successorList)-1)))
		return
	}
	entry := rt.successorList[i]
	rt.succMu.RUnlock()
	entry.set(node)
	rt.logger.Debug("SetSuccessor: updated successor", logger.F("index", i), fnodePtr("successor", node))
}

// SuccessorList returns a snapshot of the successor cache, including nil
// entries, in order.
func (rt *RoutingTable) SuccessorList() []*domain.NodeRef {
	rt.succMu.RLock()
	entries := make([]*routingEntry, len(rt.successorList))
	copy(entries, rt.successorList)
	rt.succMu.RUnlock()

	out := make([]*domain.NodeRef, len(entries))
	for i, e := range entries {
		out[i] = e.get()
	}
	return out
}

// ReplaceSuccessors overwrites the whole successor cache. The given slice
// must have length SuccListSize(); shorter/longer slices are rejected.
func (rt *RoutingTable) ReplaceSuccessors(nodes []*domain.NodeRef) {
	rt.succMu.RLock()
	n := len(rt.successorList)
	rt.succMu.RUnlock()
	if len(nodes) != n {
		rt.logger.Warn("ReplaceSuccessors: length mismatch",
			logger.F("expected", n), logger.F("got", len(nodes)))
		return
	}
	for i, node := range nodes {
		rt.SetSuccessor(i, node)
	}
	rt.logger.Debug("ReplaceSuccessors: successor cache replaced", logger.F("count", len(nodes)))
}

// FingerStart returns the precomputed start identifier for finger index i:
// (local.id + 2^i) mod 2^Bits.
func (rt *RoutingTable) FingerStart(i int) domain.ID {
	rt.fingerMu.RLock()
	defer rt.fingerMu.RUnlock()
	if i < 0 || i >= len(rt.fingerStart) {
		return nil
	}
	return rt.fingerStart[i]
}

// GetFinger returns the successor currently recorded for finger index i.
func (rt *RoutingTable) GetFinger(i int) *domain.NodeRef {
	rt.fingerMu.RLock()
	if i < 0 || i >= len(rt.fingerTable) {
		rt.fingerMu.RUnlock()
		return nil
	}
	entry := rt.fingerTable[i]
	rt.fingerMu.RUnlock()
	return entry.get()
}

// ReplaceFinger updates the successor recorded for finger index i.
func (rt *RoutingTable) ReplaceFinger(i int, node *domain.NodeRef) {
	rt.fingerMu.RLock()
	if i < 0 || i >= len(rt.fingerTable) {
		rt.fingerMu.RUnlock()
		rt.logger.Warn("ReplaceFinger: index out of range",
			logger.F("requested", i),
			logger.F("valid_range", fmt.Sprintf("[0..%d]", len(rt.fingerTable)-1)))
		return
	}
	entry := rt.fingerTable[i]
	rt.fingerMu.RUnlock()
	entry.set(node)
	rt.logger.Debug("ReplaceFinger: updated finger",
		logger.F("index", i), logger.F("start", rt.FingerStart(i).ToHexString(false)), fnodePtr("successor", node))
}

// FingerList returns a snapshot of every non-nil finger table entry in
// index order, used for debugging. Entries pointing at self and repeated
// entries are kept; only nil entries are left out.
func (rt *RoutingTable) FingerList() []*domain.NodeRef {
	rt.fingerMu.RLock()
	entries := make([]*routingEntry, len(rt.fingerTable))
	copy(entries, rt.fingerTable)
	rt.fingerMu.RUnlock()

	out := make([]*domain.NodeRef, 0, len(entries))
	for _, e := range entries {
		if n := e.get(); n != nil {
			out = append(out, n)
		}
	}
	return out
}

// NumFingers is the size of the finger table (M in the spec).
func (rt *RoutingTable) NumFingers() int {
	return rt.space.Bits
}

// NextFingerToUpdate returns the round-robin cursor used by the
// updateFingerTable stabilizer task.
func (rt *RoutingTable) NextFingerToUpdate() int {
	rt.nextFingerMu.Lock()
	defer rt.nextFingerMu.Unlock()
	return rt.nextFingerToUpdate
}

// AdvanceNextFingerToUpdate increments the cursor, wrapping back to 0 once
// it reaches M.
func (rt *RoutingTable) AdvanceNextFingerToUpdate() {
	rt.nextFingerMu.Lock()
	rt.nextFingerToUpdate++
	if rt.nextFingerToUpdate >= rt.space.Bits {
		rt.nextFingerToUpdate = 0
	}
	rt.nextFingerMu.Unlock()
}

// DebugLog emits a single structured DEBUG-level snapshot of the routing
// table: self, predecessor, successor cache, and finger table. Intended for
// the operator console and for periodic diagnostics; does not mutate state.
func (rt *RoutingTable) DebugLog() {
	pred := rt.predecessor.get()

	successors := make([]map[string]any, 0, rt.succListSize)
	for i, n := range rt.SuccessorList() {
		successors = append(successors, nodeLogEntry(i, n))
	}

	fingers := make([]map[string]any, 0, rt.space.Bits)
	for i := 0; i < rt.space.Bits; i++ {
		fingers = append(fingers, nodeLogEntry(i, rt.GetFinger(i)))
	}

	rt.logger.Debug("RoutingTable snapshot",
		logger.FNode("self", rt.self),
		fnodePtr("predecessor", pred),
		logger.F("successors", successors),
		logger.F("fingers", fingers),
	)
}

func nodeLogEntry(i int, n *domain.NodeRef) map[string]any {
	if n == nil {
		return map[string]any{"index": i, "node": nil}
	}
	return map[string]any{"index": i, "id": n.ID.ToHexString(false), "addr": n.Addr()}
}

func fnodePtr(key string, n *domain.NodeRef) logger.Field {
	if n == nil {
		return logger.F(key, nil)
	}
	return logger.FNode(key, *n)
}
