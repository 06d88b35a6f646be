// Package wire defines the JSON shapes exchanged by the /dht/v1/ reference
// HTTP binding, shared between the outbound client and the inbound server
// so the two sides can never disagree about the schema.
package wire

import (
	"fmt"

	"chordring/internal/domain"
)

// NodeResource is the wire shape of a domain.NodeRef: host, port, and the
// 40-character lowercase hex identifier.
type NodeResource struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	ID   string `json:"id"`
}

// FromNodeRef converts a NodeRef to its wire representation.
func FromNodeRef(n domain.NodeRef) NodeResource {
	return NodeResource{
		Host: n.Host,
		Port: n.Port,
		ID:   n.ID.ToHexString(false),
	}
}

// ToNodeRef parses a wire NodeResource back into a NodeRef, validating the
// identifier against sp.
func ToNodeRef(sp domain.Space, r NodeResource) (domain.NodeRef, error) {
	id, err := sp.FromHexString(r.ID)
	if err != nil {
		return domain.NodeRef{}, fmt.Errorf("invalid node id %q: %w", r.ID, err)
	}
	return domain.NodeRef{Host: r.Host, Port: r.Port, ID: id}, nil
}

// FindSuccessorResponse is the wire shape returned by
// GET /dht/v1/successor/{id}?hops=H.
type FindSuccessorResponse struct {
	Hops      int          `json:"hops"`
	Successor NodeResource `json:"successor"`
}

// SuccessorListResponse is the wire shape returned by GET /dht/v1/successors.
type SuccessorListResponse struct {
	Successors []*NodeResource `json:"successors"`
}

// ErrorResponse is the JSON body returned alongside non-2xx status codes.
type ErrorResponse struct {
	Error string `json:"error"`
}

// FingerListResponse is the wire shape returned by the operator-console
// debug route GET /dht/v1/fingers: every non-nil finger table entry in
// index order, self and repeated entries included.
type FingerListResponse struct {
	Fingers []*NodeResource `json:"fingers"`
}
