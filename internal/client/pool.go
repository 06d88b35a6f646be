package client

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"chordring/internal/domain"
	"chordring/internal/logger"
)

// Pool is the node's outbound RPC capability toward any peer NodeRef.
//
// A single shared *http.Client already keeps idle keep-alive connections
// per host in its Transport — there is no dial cost to amortize by
// hand-tracking one connection per address, so Pool wraps one instrumented
// client rather than a map of per-address entries. The per-call RPC
// timeout plays the role of a per-connection dial timeout.
type Pool struct {
	lgr        logger.Logger
	space      domain.Space
	httpClient *http.Client
	timeout    time.Duration
}

// New builds a Pool whose outbound calls are bounded by timeout unless the
// caller's context specifies a shorter deadline. space is used to validate
// and decode identifiers found on the wire in peer responses.
func New(space domain.Space, timeout time.Duration, opts ...Option) *Pool {
	p := &Pool{
		lgr:     &logger.NopLogger{},
		space:   space,
		timeout: timeout,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Close releases idle connections held by the pool.
func (p *Pool) Close() {
	p.httpClient.CloseIdleConnections()
}
