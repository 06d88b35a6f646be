package ctxutil

import (
	"context"
	"errors"
	"net/http"
	"time"

	"chordring/internal/domain"
	"chordring/internal/trace"
)

// ContextOption configures the behavior of NewContext. Multiple options can
// be combined.
type ContextOption func(*ctxConfig)

type ctxConfig struct {
	withTrace bool
	nodeID    domain.ID
	timeout   time.Duration
}

// WithTrace enables attaching a fresh trace id to the created context,
// derived from nodeID.
func WithTrace(nodeID domain.ID) ContextOption {
	return func(cfg *ctxConfig) {
		cfg.withTrace = true
		cfg.nodeID = nodeID
	}
}

// WithTimeout sets a timeout duration for the created context. The caller
// must defer the returned cancel function.
func WithTimeout(d time.Duration) ContextOption {
	return func(cfg *ctxConfig) {
		cfg.timeout = d
	}
}

// NewContext creates a new context configured according to the provided
// options, returning the context and a cancel function (nil if no timeout
// was set).
func NewContext(opts ...ContextOption) (context.Context, context.CancelFunc) {
	cfg := &ctxConfig{}
	for _, o := range opts {
		o(cfg)
	}

	var ctx context.Context
	var cancel context.CancelFunc
	if cfg.timeout > 0 {
		ctx, cancel = context.WithTimeout(context.Background(), cfg.timeout)
	} else {
		ctx = context.Background()
	}
	if cfg.withTrace {
		ctx, _ = trace.AttachTraceID(ctx, cfg.nodeID)
	}

	return ctx, cancel
}

// TraceIDFromContext extracts the trace id from the context, or "" if
// absent.
func TraceIDFromContext(ctx context.Context) string {
	return trace.GetTraceID(ctx)
}

// EnsureTraceID attaches a trace id derived from nodeID if the context does
// not already carry one.
func EnsureTraceID(ctx context.Context, nodeID domain.ID) context.Context {
	if id := trace.GetTraceID(ctx); id == "" {
		ctx, _ = trace.AttachTraceID(ctx, nodeID)
	}
	return ctx
}

// CheckContext reports the HTTP status that should be returned when ctx has
// already been canceled or its deadline has expired, or 0 if it is still
// active. Handlers call this before doing any work.
func CheckContext(ctx context.Context) int {
	switch err := ctx.Err(); {
	case errors.Is(err, context.Canceled):
		return 499 // client closed request, nginx convention
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return 0
	}
}
