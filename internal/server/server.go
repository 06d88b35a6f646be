package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"chordring/internal/logger"
	"chordring/internal/node"
)

// Server hosts the /dht/v1/ reference HTTP binding documented for this
// overlay, using a plain net/http server and mux instead of the gRPC
// transport this code was originally built around — see DESIGN.md.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	lgr        logger.Logger
}

// New creates a new HTTP server bound to lis, serving the DHT RPC surface
// of n.
func New(lis net.Listener, n *node.Node, srvOpts ...Option) (*Server, error) {
	s := &Server{
		listener: lis,
		lgr:      &logger.NopLogger{},
	}
	for _, opt := range srvOpts {
		opt(s)
	}

	mux := http.NewServeMux()
	registerRoutes(mux, NewDHTService(n, s.lgr))

	s.httpServer = &http.Server{
		Handler:      otelhttp.NewHandler(mux, "dht"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s, nil
}

// Start runs the HTTP server and blocks until it stops. Returns
// http.ErrServerClosed on a clean shutdown.
func (s *Server) Start() error {
	return s.httpServer.Serve(s.listener)
}

// Stop immediately closes the server and any active connections.
func (s *Server) Stop() {
	_ = s.httpServer.Close()
}

// GracefulStop shuts the server down, waiting for in-flight requests to
// complete or for ctx to expire, whichever comes first.
func (s *Server) GracefulStop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
