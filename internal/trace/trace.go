package trace

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"chordring/internal/domain"

	"github.com/oklog/ulid/v2"
)

type traceKey struct{}

// GenerateTraceID builds a globally unique trace id in the form
// "<nodeID>-<ULID>".
func GenerateTraceID(nodeID string) string {
	t := time.Now().UTC()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	id := ulid.MustNew(ulid.Timestamp(t), entropy)
	return fmt.Sprintf("%s-%s", nodeID, id.String())
}

// AttachTraceID generates a trace id from nodeID and stores it in the
// context. Returns the new context and the generated id.
func AttachTraceID(ctx context.Context, nodeID domain.ID) (context.Context, string) {
	traceID := GenerateTraceID(nodeID.ToHexString(false))
	return context.WithValue(ctx, traceKey{}, traceID), traceID
}

// GetTraceID retrieves the trace id from the context, or "" if absent.
func GetTraceID(ctx context.Context) string {
	if v := ctx.Value(traceKey{}); v != nil {
		if id, ok := v.(string); ok && id != "" {
			return id
		}
	}
	return ""
}
