package routingtable

import "chordring/internal/logger"

// Option customizes a RoutingTable at construction time.
type Option func(*RoutingTable)

// WithLogger sets the logger used by the routing table.
func WithLogger(l logger.Logger) Option {
	return func(rt *RoutingTable) {
		if l != nil {
			rt.logger = l
		}
	}
}
