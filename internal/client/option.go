package client

import "chordring/internal/logger"

// Option customizes a Pool at construction time.
type Option func(pool *Pool)

// WithLogger sets the logger used by the pool.
func WithLogger(l logger.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.lgr = l
		}
	}
}
