package node

import (
	"context"
	"sync"
	"time"

	"chordring/internal/domain"
	"chordring/internal/logger"
	"chordring/internal/routingtable"
)

// PeerClient is the outbound RPC surface a Node needs from a peer
// connection pool. *client.Pool satisfies this; tests substitute an
// in-process fake that never touches the network, to exercise multi-node
// convergence without sockets.
type PeerClient interface {
	FindSuccessor(ctx context.Context, peer domain.NodeRef, target domain.ID, hops int) (int, domain.NodeRef, error)
	GetPredecessor(ctx context.Context, peer domain.NodeRef) (*domain.NodeRef, error)
	GetSuccessors(ctx context.Context, peer domain.NodeRef) ([]*domain.NodeRef, error)
	Notify(ctx context.Context, peer domain.NodeRef, self domain.NodeRef) error
	Ping(ctx context.Context, peer domain.NodeRef) error
}

// Node orchestrates the routing state store, the outbound peer client, and
// the four stabilizer tasks for a single ring participant.
type Node struct {
	rt  *routingtable.RoutingTable
	cp  PeerClient
	lgr logger.Logger

	rpcTimeout time.Duration

	stopMu sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Node around an already-initialized routing table and peer
// client pool.
func New(rt *routingtable.RoutingTable, cp PeerClient, rpcTimeout time.Duration, opts ...Option) *Node {
	n := &Node{
		rt:         rt,
		cp:         cp,
		lgr:        &logger.NopLogger{},
		rpcTimeout: rpcTimeout,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// callCtx derives a bounded context for one outbound RPC.
func (n *Node) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, n.rpcTimeout)
}
