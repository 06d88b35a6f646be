package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"chordring/internal/ctxutil"
	"chordring/internal/logger"
	"chordring/internal/node"
	"chordring/internal/wire"
)

// dhtService implements the /dht/v1/ HTTP binding for the overlay's RPC
// surface, dispatching each route to the underlying node.Node.
type dhtService struct {
	node *node.Node
	lgr  logger.Logger
}

// NewDHTService binds a dhtService to n.
func NewDHTService(n *node.Node, lgr logger.Logger) *dhtService {
	if lgr == nil {
		lgr = &logger.NopLogger{}
	}
	return &dhtService{node: n, lgr: lgr}
}

// registerRoutes wires every /dht/v1/ route onto mux.
func registerRoutes(mux *http.ServeMux, svc *dhtService) {
	mux.HandleFunc("GET /dht/v1/successor", svc.handleSuccessor)
	mux.HandleFunc("GET /dht/v1/predecessor", svc.handlePredecessor)
	mux.HandleFunc("GET /dht/v1/successor/{id}", svc.handleFindSuccessor)
	mux.HandleFunc("GET /dht/v1/successors", svc.handleSuccessors)
	mux.HandleFunc("POST /dht/v1/notify", svc.handleNotify)
	mux.HandleFunc("GET /dht/v1/ping", svc.handlePing)
	mux.HandleFunc("GET /dht/v1/fingers", svc.handleFingers)
}

func (svc *dhtService) handleSuccessor(w http.ResponseWriter, r *http.Request) {
	if status := ctxutil.CheckContext(r.Context()); status != 0 {
		writeError(w, status, "request context expired")
		return
	}
	list := svc.node.SuccessorList()
	if len(list) == 0 || list[0] == nil {
		writeError(w, http.StatusNotFound, "no successor known")
		return
	}
	writeJSON(w, http.StatusOK, wire.FromNodeRef(*list[0]))
}

func (svc *dhtService) handlePredecessor(w http.ResponseWriter, r *http.Request) {
	if status := ctxutil.CheckContext(r.Context()); status != 0 {
		writeError(w, status, "request context expired")
		return
	}
	pred := svc.node.Predecessor()
	if pred == nil {
		writeError(w, http.StatusNotFound, "no predecessor set")
		return
	}
	writeJSON(w, http.StatusOK, wire.FromNodeRef(*pred))
}

func (svc *dhtService) handleFindSuccessor(w http.ResponseWriter, r *http.Request) {
	if status := ctxutil.CheckContext(r.Context()); status != 0 {
		writeError(w, status, "request context expired")
		return
	}

	idHex := r.PathValue("id")
	target, err := svc.node.Space().FromHexString(idHex)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id: "+err.Error())
		return
	}

	hops := 0
	if h := r.URL.Query().Get("hops"); h != "" {
		parsed, perr := strconv.Atoi(h)
		if perr != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid hops parameter")
			return
		}
		hops = parsed
	}

	ctx := ctxutil.EnsureTraceID(r.Context(), svc.node.Self().ID)
	traceID := ctxutil.TraceIDFromContext(ctx)

	respHops, succ, err := svc.node.FindSuccessor(ctx, target, hops)
	if err != nil {
		svc.lgr.Warn("handleFindSuccessor: lookup failed",
			logger.F("trace_id", traceID), logger.F("target", idHex), logger.F("err", err.Error()))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("X-Trace-Id", traceID)
	writeJSON(w, http.StatusOK, wire.FindSuccessorResponse{
		Hops:      respHops,
		Successor: wire.FromNodeRef(succ),
	})
}

func (svc *dhtService) handleSuccessors(w http.ResponseWriter, r *http.Request) {
	if status := ctxutil.CheckContext(r.Context()); status != 0 {
		writeError(w, status, "request context expired")
		return
	}
	list := svc.node.SuccessorList()
	out := make([]*wire.NodeResource, len(list))
	for i, n := range list {
		if n == nil {
			continue
		}
		res := wire.FromNodeRef(*n)
		out[i] = &res
	}
	writeJSON(w, http.StatusOK, wire.SuccessorListResponse{Successors: out})
}

func (svc *dhtService) handleNotify(w http.ResponseWriter, r *http.Request) {
	if status := ctxutil.CheckContext(r.Context()); status != 0 {
		writeError(w, status, "request context expired")
		return
	}

	var res wire.NodeResource
	if err := json.NewDecoder(r.Body).Decode(&res); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if res.Host == "" || res.Port == 0 {
		writeError(w, http.StatusBadRequest, "missing host or port")
		return
	}
	candidate, err := wire.ToNodeRef(svc.node.Space(), res)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid node: "+err.Error())
		return
	}

	svc.node.Notify(candidate)
	w.WriteHeader(http.StatusOK)
}

func (svc *dhtService) handlePing(w http.ResponseWriter, r *http.Request) {
	if status := ctxutil.CheckContext(r.Context()); status != 0 {
		writeError(w, status, "request context expired")
		return
	}
	w.WriteHeader(http.StatusOK)
}

// handleFingers is an operator-console debug route outside the core Chord
// RPC surface: it exposes the finger table for the interactive console.
func (svc *dhtService) handleFingers(w http.ResponseWriter, r *http.Request) {
	if status := ctxutil.CheckContext(r.Context()); status != 0 {
		writeError(w, status, "request context expired")
		return
	}
	list := svc.node.FingerList()
	out := make([]*wire.NodeResource, 0, len(list))
	for _, n := range list {
		if n == nil {
			continue
		}
		res := wire.FromNodeRef(*n)
		out = append(out, &res)
	}
	writeJSON(w, http.StatusOK, wire.FingerListResponse{Fingers: out})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, wire.ErrorResponse{Error: msg})
}
