package node

import "chordring/internal/logger"

// Option customizes a Node at construction time.
type Option func(*Node)

// WithLogger sets the logger used by the node.
func WithLogger(l logger.Logger) Option {
	return func(n *Node) {
		if l != nil {
			n.lgr = l
		}
	}
}
