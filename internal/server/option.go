package server

import "chordring/internal/logger"

// Option customizes a Server at construction time.
type Option func(*Server)

// WithLogger sets the logger used by the server.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.lgr = l
		}
	}
}
